package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/config"
	"github.com/tracker-census/tracker-census-go/internal/dataset"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/registry"
	"github.com/tracker-census/tracker-census-go/internal/repository"
	"gorm.io/gorm"
)

// migrate 命令：建表，并可选地从数据目录批量导入数据集文件
func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config file")
	dataDir := flag.String("data-dir", "", "import dataset files from this directory after migration")
	flag.Parse()

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

	logger.Info("Database migration completed")

	if *dataDir == "" {
		return
	}

	if err := importDataDir(context.Background(), db, *dataDir, logger); err != nil {
		logger.Fatalf("Failed to import data directory: %v", err)
	}
}

// importDataDir 导入数据目录下存在的数据集文件，缺失的跳过
// 识别的文件名: registry.csv, mappings.csv, apps_<crawl>.csv, observations_<crawl>.csv
func importDataDir(ctx context.Context, db *gorm.DB, dataDir string, logger *logrus.Logger) error {
	companyRepo := repository.NewCompanyRepository(db, logger)
	datasetRepo := repository.NewDatasetRepository(db, logger)
	loader := dataset.NewLoader(logger)

	if path, ok := fileExists(dataDir, "registry.csv"); ok {
		companies, err := registry.NewLoader(logger).LoadFile(path)
		if err != nil {
			return err
		}
		if err := companyRepo.ReplaceAll(ctx, companies); err != nil {
			return err
		}
		logger.WithField("companies", len(companies)).Info("Company registry imported")
	}

	if path, ok := fileExists(dataDir, "mappings.csv"); ok {
		mappings, err := loader.LoadMappingsFile(path)
		if err != nil {
			return err
		}
		if err := datasetRepo.ReplaceMappings(ctx, mappings); err != nil {
			return err
		}
		logger.WithField("mappings", len(mappings)).Info("App ID mappings imported")
	}

	for _, crawl := range []string{domain.Crawl2017, domain.Crawl2020} {
		if path, ok := fileExists(dataDir, fmt.Sprintf("apps_%s.csv", crawl)); ok {
			apps, err := loader.LoadAppsFile(path, crawl)
			if err != nil {
				return err
			}
			if err := datasetRepo.ReplaceApps(ctx, crawl, apps); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{"crawl": crawl, "apps": len(apps)}).Info("Apps imported")
		}

		if path, ok := fileExists(dataDir, fmt.Sprintf("observations_%s.csv", crawl)); ok {
			observations, err := loader.LoadObservationsFile(path, crawl)
			if err != nil {
				return err
			}
			if err := datasetRepo.ReplaceObservations(ctx, crawl, observations); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{"crawl": crawl, "rows": len(observations)}).Info("Host observations imported")
		}
	}

	return nil
}

func fileExists(dir, name string) (string, bool) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}
