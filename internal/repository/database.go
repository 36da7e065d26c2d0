package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/config"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/retry"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接
// MySQL 不可达时按指数退避重试，SQLite 用于单机与测试场景
func InitDB(cfg *config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	if cfg.Type == "mysql" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
		dialector = mysql.Open(dsn)
	} else {
		path := cfg.SQLitePath
		if path == "" {
			path = "./data/census.db"
		}
		dialector = sqlite.Open(path)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = log

	db, err := retry.DoWithResult(context.Background(), retryCfg, func(ctx context.Context) (*gorm.DB, error) {
		return gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent), // 关闭 SQL 日志
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
			PrepareStmt: true,
		})
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db, log); err != nil {
		return nil, err
	}

	return db, nil
}

// autoMigrate 自动迁移数据库表结构
func autoMigrate(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	err := db.AutoMigrate(
		&domain.Company{},
		&domain.CompanyDomain{},
		&domain.App{},
		&domain.AppIDMapping{},
		&domain.HostObservation{},
		&domain.AttributionRun{},
		&domain.HostLookupEntry{},
		&domain.AttributedHost{},
	)
	if err != nil {
		return err
	}

	log.Info("Database migrations completed")
	return nil
}
