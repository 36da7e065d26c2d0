package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
	"github.com/tracker-census/tracker-census-go/internal/config"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/export"
	"github.com/tracker-census/tracker-census-go/internal/registry"
	"github.com/tracker-census/tracker-census-go/internal/repository"
	"github.com/tracker-census/tracker-census-go/internal/worker"
)

// attribute 命令：对指定快照同步执行一次归因并导出长格式 CSV
func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config file")
	crawl := flag.String("crawl", "", "crawl snapshot to attribute (2017 or 2020)")
	exportPath := flag.String("export", "", "export path for the long-format CSV (default <export_dir>/attributed_hosts_<crawl>.csv)")
	reuse := flag.Bool("reuse", false, "export the latest completed run instead of executing a new one")
	flag.Parse()

	if *crawl != domain.Crawl2017 && *crawl != domain.Crawl2020 {
		fmt.Fprintln(os.Stderr, "Usage: attribute --crawl 2017|2020 [--config path] [--export path] [--reuse]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := config.InitLogger(&cfg.Log)

	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	companyRepo := repository.NewCompanyRepository(db, logger)
	datasetRepo := repository.NewDatasetRepository(db, logger)
	runRepo := repository.NewRunRepository(db, logger)
	attributionRepo := repository.NewAttributionRepository(db, logger)

	ctx := context.Background()

	// 配置了注册表文件时每次执行前重新导入，保证归因用的是最新注册表
	if !*reuse && cfg.Attribution.RegistryFile != "" {
		companies, err := registry.NewLoader(logger).LoadFile(cfg.Attribution.RegistryFile)
		if err != nil {
			logger.Fatalf("Failed to load company registry: %v", err)
		}
		if err := companyRepo.ReplaceAll(ctx, companies); err != nil {
			logger.Fatalf("Failed to store company registry: %v", err)
		}
		logger.WithField("companies", len(companies)).Info("Company registry loaded")
	}

	var runID string
	if *reuse {
		run, err := runRepo.LatestCompleted(ctx, *crawl)
		if err != nil {
			logger.Fatalf("No completed run to reuse for crawl %s: %v", *crawl, err)
		}
		runID = run.ID
		logger.WithField("run_id", runID).Info("Reusing latest completed run")
	} else {
		runID = uuid.New().String()
		if err := runRepo.Create(ctx, &domain.AttributionRun{ID: runID, Crawl: *crawl}); err != nil {
			logger.Fatalf("Failed to create run: %v", err)
		}

		orchestrator := worker.NewOrchestrator(
			companyRepo, datasetRepo, runRepo, attributionRepo,
			nil, nil, cfg.Attribution.ScanWorkers, logger)
		if err := orchestrator.ExecuteRun(ctx, runID, *crawl); err != nil {
			logger.Fatalf("Attribution run failed: %v", err)
		}
	}

	stored, err := attributionRepo.ListRows(ctx, runID)
	if err != nil {
		logger.Fatalf("Failed to load attributed rows: %v", err)
	}

	rows := make([]attribution.AttributedRow, len(stored))
	for i, r := range stored {
		rows[i] = attribution.AttributedRow{AppID: r.AppID, Hostname: r.Hostname, Company: r.Company}
	}

	path := *exportPath
	if path == "" {
		exportDir := cfg.ExportDir
		if exportDir == "" {
			exportDir = "./exports"
		}
		path = filepath.Join(exportDir, fmt.Sprintf("attributed_hosts_%s.csv", *crawl))
	}

	if err := export.NewWriter(logger).WriteFile(path, rows); err != nil {
		logger.Fatalf("Failed to export long-format table: %v", err)
	}
}
