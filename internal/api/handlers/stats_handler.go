package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/repository"
	"github.com/tracker-census/tracker-census-go/internal/stats"
	"gorm.io/gorm"
)

// StatsHandler 分布统计 API，消费最近一次成功执行的长格式表
type StatsHandler struct {
	runRepo         repository.RunRepository
	attributionRepo repository.AttributionRepository
	datasetRepo     repository.DatasetRepository
	companyRepo     repository.CompanyRepository
	logger          *logrus.Logger
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(
	runRepo repository.RunRepository,
	attributionRepo repository.AttributionRepository,
	datasetRepo repository.DatasetRepository,
	companyRepo repository.CompanyRepository,
	logger *logrus.Logger,
) *StatsHandler {
	return &StatsHandler{
		runRepo:         runRepo,
		attributionRepo: attributionRepo,
		datasetRepo:     datasetRepo,
		companyRepo:     companyRepo,
		logger:          logger,
	}
}

// HostsPerApp GET /api/stats/hosts-per-app
// 查询参数: crawl (必填), group_by (overall|super_genre|company|country),
// distinct (true 时按每应用不同 host 计数), both_crawls (true 时仅保留两次抓取都有的应用)
func (h *StatsHandler) HostsPerApp(c *gin.Context) {
	crawl := c.Query("crawl")
	if crawl != domain.Crawl2017 && crawl != domain.Crawl2020 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "crawl must be 2017 or 2020"})
		return
	}

	opts := stats.QueryOptions{
		Crawl:          crawl,
		GroupBy:        stats.Dimension(c.DefaultQuery("group_by", string(stats.DimensionOverall))),
		Distinct:       c.Query("distinct") == "true",
		BothCrawlsOnly: c.Query("both_crawls") == "true",
	}

	ctx := c.Request.Context()

	run, err := h.runRepo.LatestCompleted(ctx, crawl)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no completed run for crawl " + crawl})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}

	stored, err := h.attributionRepo.ListRows(ctx, run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attributed rows"})
		return
	}

	rows := make([]attribution.AttributedRow, len(stored))
	for i, r := range stored {
		rows[i] = attribution.AttributedRow{AppID: r.AppID, Hostname: r.Hostname, Company: r.Company}
	}

	apps, err := h.datasetRepo.ListApps(ctx, crawl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load apps"})
		return
	}
	companies, err := h.companyRepo.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load companies"})
		return
	}
	mappings, err := h.datasetRepo.ListMappings(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load app mappings"})
		return
	}

	aggregator := stats.NewAggregator(apps, companies, mappings, h.logger)
	summaries, err := aggregator.HostsPerApp(rows, opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":           run.ID,
		"crawl":            crawl,
		"group_by":         opts.GroupBy,
		"distinct":         opts.Distinct,
		"both_crawls_only": opts.BothCrawlsOnly,
		"groups":           summaries,
	})
}
