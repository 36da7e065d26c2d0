package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/api"
	"github.com/tracker-census/tracker-census-go/internal/api/handlers"
	"github.com/tracker-census/tracker-census-go/internal/config"
	"github.com/tracker-census/tracker-census-go/internal/dataset"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/middleware"
	"github.com/tracker-census/tracker-census-go/internal/queue"
	"github.com/tracker-census/tracker-census-go/internal/registry"
	"github.com/tracker-census/tracker-census-go/internal/repository"
	"github.com/tracker-census/tracker-census-go/internal/watcher"
	"github.com/tracker-census/tracker-census-go/internal/worker"
	"github.com/google/uuid"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fmt.Printf("Tracker Census - Attribution Service\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	configPath := "./configs/config.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting Tracker Census %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.Info("Database connected successfully")

	companyRepo := repository.NewCompanyRepository(db, logger)
	datasetRepo := repository.NewDatasetRepository(db, logger)
	runRepo := repository.NewRunRepository(db, logger)
	attributionRepo := repository.NewAttributionRepository(db, logger)

	// 启动时若配置了注册表文件且库中为空，先导入一次
	if err := seedRegistry(cfg, companyRepo, logger); err != nil {
		logger.WithError(err).Warn("Failed to seed company registry")
	}

	// 进度推送 (websocket)
	progressHandler := handlers.NewProgressHandler(logger)
	progressHandler.Start()

	promMetrics := middleware.NewPrometheusMetrics(logger, "tracker_census")

	orchestrator := worker.NewOrchestrator(
		companyRepo, datasetRepo, runRepo, attributionRepo,
		promMetrics, progressHandler, cfg.Attribution.ScanWorkers, logger)

	workerPool := worker.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize, orchestrator, logger)
	workerPool.Start(context.Background())
	defer workerPool.Stop()
	logger.Infof("Worker pool started with %d workers", cfg.Worker.Concurrency)

	// 提交路径：启用 RabbitMQ 时经队列中转，否则直接进 worker 池
	var submit handlers.RunSubmitter
	var mq *queue.RabbitMQ

	if cfg.RabbitMQ.Enabled {
		mqConfig := &queue.RabbitMQConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
		}
		mq, err = queue.NewRabbitMQ(mqConfig, cfg.RabbitMQ.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to init RabbitMQ: %v", err)
		}
		defer mq.Close()

		producer := queue.NewProducer(mq, logger)
		submit = func(ctx context.Context, runID, crawl string) error {
			return producer.PublishRun(ctx, &queue.RunMessage{RunID: runID, Crawl: crawl})
		}

		consumer := queue.NewConsumer(mq, func(ctx context.Context, msg *queue.RunMessage) error {
			return workerPool.SubmitAndWait(ctx, &worker.Task{RunID: msg.RunID, Crawl: msg.Crawl})
		}, logger)
		if err := consumer.Start(context.Background()); err != nil {
			logger.Fatalf("Failed to start consumer: %v", err)
		}
		defer consumer.Stop()
		logger.Info("Run consumer started")
	} else {
		submit = func(ctx context.Context, runID, crawl string) error {
			return workerPool.Submit(&worker.Task{RunID: runID, Crawl: crawl})
		}
		logger.Info("RabbitMQ disabled, runs are submitted to the in-process pool")
	}

	// 排队成功时计数
	enqueue := submit
	submit = func(ctx context.Context, runID, crawl string) error {
		if err := enqueue(ctx, runID, crawl); err != nil {
			return err
		}
		promMetrics.RecordRunQueued()
		return nil
	}

	// 数据目录监控：新数据集文件落盘后自动导入并排队执行
	fileWatcher, err := watcher.NewFileWatcher(cfg.DataDir, "*.csv",
		createDatasetHandler(companyRepo, datasetRepo, runRepo, submit, logger), logger)
	if err != nil {
		logger.Fatalf("Failed to create file watcher: %v", err)
	}
	defer fileWatcher.Stop()

	if err := fileWatcher.Start(context.Background()); err != nil {
		logger.Fatalf("Failed to start file watcher: %v", err)
	}
	logger.Infof("File watcher started for directory: %s", cfg.DataDir)

	// 周期刷新池与数据库连接指标
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			promMetrics.UpdateWorkerPoolStats(workerPool.Size(), workerPool.QueueSize())

			sqlDB, err := db.DB()
			if err != nil {
				continue
			}
			dbStats := sqlDB.Stats()
			promMetrics.UpdateDBStats(dbStats.OpenConnections, dbStats.Idle, dbStats.InUse)
		}
	}()

	router := api.SetupRouter(cfg, logger, db, promMetrics, progressHandler, submit)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("Server stopped")
}

// seedRegistry 注册表为空且配置了注册表文件时导入一次
func seedRegistry(cfg *config.Config, companyRepo repository.CompanyRepository, logger *logrus.Logger) error {
	if cfg.Attribution.RegistryFile == "" {
		return nil
	}

	count, err := companyRepo.Count(context.Background())
	if err != nil {
		return err
	}
	if count > 0 {
		logger.WithField("companies", count).Info("Company registry already loaded, skipping seed")
		return nil
	}

	companies, err := registry.NewLoader(logger).LoadFile(cfg.Attribution.RegistryFile)
	if err != nil {
		return err
	}

	return companyRepo.ReplaceAll(context.Background(), companies)
}

// createDatasetHandler 按文件名分发数据集导入
// observations_<crawl>.csv 导入观测并排队一次归因执行
// apps_<crawl>.csv / mappings.csv / registry.csv 只做导入
func createDatasetHandler(
	companyRepo repository.CompanyRepository,
	datasetRepo repository.DatasetRepository,
	runRepo repository.RunRepository,
	submit handlers.RunSubmitter,
	logger *logrus.Logger,
) watcher.FileHandler {
	loader := dataset.NewLoader(logger)
	registryLoader := registry.NewLoader(logger)

	return func(ctx context.Context, filePath string) error {
		fileName := filepath.Base(filePath)

		switch {
		case fileName == "registry.csv":
			companies, err := registryLoader.LoadFile(filePath)
			if err != nil {
				return err
			}
			return companyRepo.ReplaceAll(ctx, companies)

		case fileName == "mappings.csv":
			mappings, err := loader.LoadMappingsFile(filePath)
			if err != nil {
				return err
			}
			return datasetRepo.ReplaceMappings(ctx, mappings)

		case strings.HasPrefix(fileName, "apps_"):
			crawl, err := crawlFromFilename(fileName, "apps_")
			if err != nil {
				return err
			}
			apps, err := loader.LoadAppsFile(filePath, crawl)
			if err != nil {
				return err
			}
			return datasetRepo.ReplaceApps(ctx, crawl, apps)

		case strings.HasPrefix(fileName, "observations_"):
			crawl, err := crawlFromFilename(fileName, "observations_")
			if err != nil {
				return err
			}
			observations, err := loader.LoadObservationsFile(filePath, crawl)
			if err != nil {
				return err
			}
			if err := datasetRepo.ReplaceObservations(ctx, crawl, observations); err != nil {
				return err
			}

			run := &domain.AttributionRun{
				ID:    uuid.New().String(),
				Crawl: crawl,
			}
			if err := runRepo.Create(ctx, run); err != nil {
				return err
			}

			logger.WithFields(logrus.Fields{
				"run_id": run.ID,
				"crawl":  crawl,
				"rows":   len(observations),
			}).Info("New observations imported, attribution run queued")

			return submit(ctx, run.ID, crawl)

		default:
			logger.WithField("file", fileName).Debug("Ignoring unrecognized dataset file")
			return nil
		}
	}
}

// crawlFromFilename 从 <prefix><crawl>.csv 提取快照标签
func crawlFromFilename(fileName, prefix string) (string, error) {
	crawl := strings.TrimSuffix(strings.TrimPrefix(fileName, prefix), ".csv")
	if crawl != domain.Crawl2017 && crawl != domain.Crawl2020 {
		return "", fmt.Errorf("unknown crawl in filename %s", fileName)
	}
	return crawl, nil
}
