package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct {
	logger *logrus.Logger

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 归因执行指标
	runsTotal      *prometheus.CounterVec
	runsInProgress prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	distinctHosts  *prometheus.GaugeVec
	unknownHosts   *prometheus.GaugeVec
	attributedRows *prometheus.CounterVec
	patternsTotal  prometheus.Gauge

	// Worker Pool 指标
	workerPoolSize      prometheus.Gauge
	workerPoolQueueSize prometheus.Gauge

	// 数据库指标
	dbConnectionsOpen  prometheus.Gauge
	dbConnectionsIdle  prometheus.Gauge
	dbConnectionsInUse prometheus.Gauge
}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics(logger *logrus.Logger, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "tracker_census"
	}

	pm := &PrometheusMetrics{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"method", "path"},
		),

		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribution_runs_total",
				Help:      "Total number of attribution runs",
			},
			[]string{"status"}, // queued, running, completed, failed
		),
		runsInProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "attribution_runs_in_progress",
				Help:      "Number of attribution runs currently executing",
			},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attribution_run_duration_seconds",
				Help:      "Attribution run duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		distinctHosts: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "distinct_hosts",
				Help:      "Distinct hostnames attributed in the latest run per crawl",
			},
			[]string{"crawl"},
		),
		unknownHosts: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unknown_hosts",
				Help:      "Hostnames that matched no company in the latest run per crawl",
			},
			[]string{"crawl"},
		),
		attributedRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attributed_rows_total",
				Help:      "Total long-format rows produced",
			},
			[]string{"crawl"},
		),
		patternsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_patterns_total",
				Help:      "Number of compiled domain patterns in the latest run",
			},
		),

		workerPoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_size",
				Help:      "Total number of workers in the pool",
			},
		),
		workerPoolQueueSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_queue_size",
				Help:      "Number of runs waiting in the pool queue",
			},
		),

		dbConnectionsOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_open",
				Help:      "Number of open database connections",
			},
		),
		dbConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_idle",
				Help:      "Number of idle database connections",
			},
		),
		dbConnectionsInUse: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_in_use",
				Help:      "Number of database connections in use",
			},
		),
	}

	logger.Info("Prometheus metrics initialized")
	return pm
}

// HTTPMiddleware HTTP 请求监控中间件
func (pm *PrometheusMetrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		pm.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		pm.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP Handler
func (pm *PrometheusMetrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordRunQueued 记录执行排队
func (pm *PrometheusMetrics) RecordRunQueued() {
	pm.runsTotal.WithLabelValues("queued").Inc()
}

// RecordRunStarted 记录执行开始
func (pm *PrometheusMetrics) RecordRunStarted() {
	pm.runsTotal.WithLabelValues("running").Inc()
	pm.runsInProgress.Inc()
}

// RecordRunCompleted 记录执行完成及其结果统计
func (pm *PrometheusMetrics) RecordRunCompleted(crawl string, duration time.Duration, patterns, distinct, unknown, rows int) {
	pm.runsTotal.WithLabelValues("completed").Inc()
	pm.runsInProgress.Dec()
	pm.runDuration.WithLabelValues("completed").Observe(duration.Seconds())
	pm.patternsTotal.Set(float64(patterns))
	pm.distinctHosts.WithLabelValues(crawl).Set(float64(distinct))
	pm.unknownHosts.WithLabelValues(crawl).Set(float64(unknown))
	pm.attributedRows.WithLabelValues(crawl).Add(float64(rows))
}

// RecordRunFailed 记录执行失败
func (pm *PrometheusMetrics) RecordRunFailed(duration time.Duration) {
	pm.runsTotal.WithLabelValues("failed").Inc()
	pm.runsInProgress.Dec()
	pm.runDuration.WithLabelValues("failed").Observe(duration.Seconds())
}

// UpdateWorkerPoolStats 更新 Worker Pool 统计
func (pm *PrometheusMetrics) UpdateWorkerPoolStats(size, queueSize int) {
	pm.workerPoolSize.Set(float64(size))
	pm.workerPoolQueueSize.Set(float64(queueSize))
}

// UpdateDBStats 更新数据库连接统计
func (pm *PrometheusMetrics) UpdateDBStats(open, idle, inUse int) {
	pm.dbConnectionsOpen.Set(float64(open))
	pm.dbConnectionsIdle.Set(float64(idle))
	pm.dbConnectionsInUse.Set(float64(inUse))
}
