package worker

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/middleware"
	"github.com/tracker-census/tracker-census-go/internal/registry"
	"github.com/tracker-census/tracker-census-go/internal/repository"
)

// ProgressBroadcaster 执行进度广播接口（websocket 推送由 API 层实现）
type ProgressBroadcaster interface {
	BroadcastProgress(runID, stage string, done, total int)
	BroadcastStatus(runID, status string)
}

// Orchestrator 归因执行编排器
// 一次执行：加载注册表与观测 → 跑归因流水线 → 持久化查找表与长格式结果
type Orchestrator struct {
	companyRepo     repository.CompanyRepository
	datasetRepo     repository.DatasetRepository
	runRepo         repository.RunRepository
	attributionRepo repository.AttributionRepository
	metrics         *middleware.PrometheusMetrics
	broadcaster     ProgressBroadcaster
	scanWorkers     int
	logger          *logrus.Logger
}

// NewOrchestrator 创建编排器
// metrics 与 broadcaster 可为 nil（CLI 场景不需要）
func NewOrchestrator(
	companyRepo repository.CompanyRepository,
	datasetRepo repository.DatasetRepository,
	runRepo repository.RunRepository,
	attributionRepo repository.AttributionRepository,
	metrics *middleware.PrometheusMetrics,
	broadcaster ProgressBroadcaster,
	scanWorkers int,
	logger *logrus.Logger,
) *Orchestrator {
	if scanWorkers < 1 {
		scanWorkers = 1
	}
	return &Orchestrator{
		companyRepo:     companyRepo,
		datasetRepo:     datasetRepo,
		runRepo:         runRepo,
		attributionRepo: attributionRepo,
		metrics:         metrics,
		broadcaster:     broadcaster,
		scanWorkers:     scanWorkers,
		logger:          logger,
	}
}

// ExecuteRun 执行一次完整的归因
func (o *Orchestrator) ExecuteRun(ctx context.Context, runID, crawl string) error {
	startTime := time.Now()

	if err := o.runRepo.MarkRunning(ctx, runID); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.RecordRunStarted()
	}
	o.broadcastStatus(runID, string(domain.RunStatusRunning))

	result, err := o.execute(ctx, runID, crawl)
	if err != nil {
		o.failRun(ctx, runID, startTime, err)
		return err
	}

	if err := o.persist(ctx, runID, crawl, result); err != nil {
		o.failRun(ctx, runID, startTime, err)
		return err
	}

	if o.metrics != nil {
		o.metrics.RecordRunCompleted(crawl, time.Since(startTime),
			result.PatternCount, result.DistinctHosts, result.UnknownHosts, len(result.Rows))
	}
	o.broadcastStatus(runID, string(domain.RunStatusCompleted))

	o.logger.WithFields(logrus.Fields{
		"run_id":         runID,
		"crawl":          crawl,
		"patterns":       result.PatternCount,
		"distinct_hosts": result.DistinctHosts,
		"unknown_hosts":  result.UnknownHosts,
		"rows":           len(result.Rows),
		"duration":       time.Since(startTime).Seconds(),
	}).Info("Attribution run finished")

	return nil
}

// execute 加载输入并运行流水线
func (o *Orchestrator) execute(ctx context.Context, runID, crawl string) (*attribution.Result, error) {
	companies, err := o.companyRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		// 空注册表合法：所有 host 都归为 unknown
		o.logger.WithField("run_id", runID).Warn("Company registry is empty, all hosts will be unknown")
	}

	stored, err := o.datasetRepo.ListObservations(ctx, crawl)
	if err != nil {
		return nil, err
	}

	observations := make([]attribution.Observation, len(stored))
	for i, obs := range stored {
		observations[i] = attribution.Observation{AppID: obs.AppID, Hostname: obs.Hostname}
	}

	pipeline := attribution.NewPipeline(o.logger).
		WithWorkers(o.scanWorkers).
		WithProgress(func(stage string, done, total int) {
			o.broadcastProgress(runID, stage, done, total)
		})

	return pipeline.Run(ctx, registry.ToRegistryEntries(companies), observations)
}

// persist 在数据库中落盘查找表与长格式结果，并写回统计
func (o *Orchestrator) persist(ctx context.Context, runID, crawl string, result *attribution.Result) error {
	// 查找表按 hostname 排序写入，保证落盘顺序确定
	hostnames := make([]string, 0, len(result.Lookup))
	for h := range result.Lookup {
		hostnames = append(hostnames, h)
	}
	sort.Strings(hostnames)

	lookup := make([]domain.HostLookupEntry, 0, len(hostnames))
	for _, h := range hostnames {
		lookup = append(lookup, domain.HostLookupEntry{Hostname: h, Company: result.Lookup[h]})
	}

	rows := make([]domain.AttributedHost, len(result.Rows))
	for i, row := range result.Rows {
		rows[i] = domain.AttributedHost{
			Crawl:    crawl,
			Seq:      i,
			AppID:    row.AppID,
			Hostname: row.Hostname,
			Company:  row.Company,
		}
	}

	if err := o.attributionRepo.SaveResult(ctx, runID, lookup, rows); err != nil {
		return err
	}

	return o.runRepo.MarkCompleted(ctx, runID, repository.RunStats{
		PatternCount:  result.PatternCount,
		DistinctHosts: result.DistinctHosts,
		UnknownHosts:  result.UnknownHosts,
		RowCount:      len(result.Rows),
	})
}

func (o *Orchestrator) failRun(ctx context.Context, runID string, startTime time.Time, cause error) {
	if err := o.runRepo.MarkFailed(ctx, runID, cause.Error()); err != nil {
		o.logger.WithError(err).WithField("run_id", runID).Error("Failed to record run failure")
	}
	if o.metrics != nil {
		o.metrics.RecordRunFailed(time.Since(startTime))
	}
	o.broadcastStatus(runID, string(domain.RunStatusFailed))
}

func (o *Orchestrator) broadcastStatus(runID, status string) {
	if o.broadcaster != nil {
		o.broadcaster.BroadcastStatus(runID, status)
	}
}

func (o *Orchestrator) broadcastProgress(runID, stage string, done, total int) {
	if o.broadcaster != nil {
		o.broadcaster.BroadcastProgress(runID, stage, done, total)
	}
}
