package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/api/handlers"
	"github.com/tracker-census/tracker-census-go/internal/config"
	"github.com/tracker-census/tracker-census-go/internal/middleware"
	"github.com/tracker-census/tracker-census-go/internal/repository"
	"gorm.io/gorm"
)

// SetupRouter 装配 HTTP 路由
// submit 由调用方注入：直接提交到 worker 池或发布到消息队列
func SetupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	db *gorm.DB,
	promMetrics *middleware.PrometheusMetrics,
	progressHandler *handlers.ProgressHandler,
	submit handlers.RunSubmitter,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
	}

	runRepo := repository.NewRunRepository(db, logger)
	attributionRepo := repository.NewAttributionRepository(db, logger)
	datasetRepo := repository.NewDatasetRepository(db, logger)
	companyRepo := repository.NewCompanyRepository(db, logger)

	runHandler := handlers.NewRunHandler(runRepo, attributionRepo, submit, logger)
	statsHandler := handlers.NewStatsHandler(runRepo, attributionRepo, datasetRepo, companyRepo, logger)
	companyHandler := handlers.NewCompanyHandler(companyRepo, logger)

	// Prometheus 指标端点
	if promMetrics != nil {
		r.GET("/metrics", promMetrics.Handler())
	}

	// 执行进度推送
	r.GET("/ws/runs/:id", progressHandler.HandleWebSocket)

	v1 := r.Group("/api")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"version": "1.0.0",
			})
		})

		// 归因执行
		v1.POST("/runs", runHandler.CreateRun)
		v1.GET("/runs", runHandler.ListRuns)
		v1.GET("/runs/:id", runHandler.GetRun)
		v1.GET("/runs/:id/lookup", runHandler.GetLookup)
		v1.GET("/runs/:id/export", runHandler.ExportRun)

		// 分布统计
		v1.GET("/stats/hosts-per-app", statsHandler.HostsPerApp)

		// 公司注册表
		v1.GET("/companies", companyHandler.ListCompanies)
		v1.GET("/companies/statistics", companyHandler.GetStatistics)
		v1.GET("/companies/:name", companyHandler.GetCompany)
	}

	return r
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(startTime).Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
