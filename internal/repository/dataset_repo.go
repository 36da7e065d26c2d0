package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"gorm.io/gorm"
)

// 批量插入的分批大小，兼顾 MySQL 包大小与 SQLite 变量上限
const insertBatchSize = 500

// DatasetRepository 快照输入数据的持久化：观测记录、应用元数据与跨快照映射
type DatasetRepository interface {
	// ReplaceObservations 整体替换一个快照的观测记录，自增 ID 保留输入顺序
	ReplaceObservations(ctx context.Context, crawl string, observations []domain.HostObservation) error
	// ListObservations 按插入顺序返回一个快照的全部观测（重复行原样保留）
	ListObservations(ctx context.Context, crawl string) ([]domain.HostObservation, error)
	CountObservations(ctx context.Context, crawl string) (int64, error)

	ReplaceApps(ctx context.Context, crawl string, apps []domain.App) error
	ListApps(ctx context.Context, crawl string) ([]domain.App, error)

	ReplaceMappings(ctx context.Context, mappings []domain.AppIDMapping) error
	ListMappings(ctx context.Context) ([]domain.AppIDMapping, error)
}

type datasetRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDatasetRepository(db *gorm.DB, logger *logrus.Logger) DatasetRepository {
	return &datasetRepo{db: db, logger: logger}
}

func (r *datasetRepo) ReplaceObservations(ctx context.Context, crawl string, observations []domain.HostObservation) error {
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM host_observations WHERE crawl = ?", crawl).Error; err != nil {
			return err
		}

		for i := range observations {
			observations[i].ID = 0
			observations[i].Crawl = crawl
			observations[i].CreatedAt = now
		}
		if len(observations) == 0 {
			return nil
		}
		return tx.CreateInBatches(observations, insertBatchSize).Error
	})

	if err != nil {
		r.logger.WithError(err).WithField("crawl", crawl).Error("Failed to replace observations")
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"crawl": crawl,
		"rows":  len(observations),
	}).Info("Observations replaced")
	return nil
}

func (r *datasetRepo) ListObservations(ctx context.Context, crawl string) ([]domain.HostObservation, error) {
	var observations []domain.HostObservation
	err := r.db.WithContext(ctx).
		Where("crawl = ?", crawl).
		Order("id ASC").
		Find(&observations).Error

	return observations, err
}

func (r *datasetRepo) CountObservations(ctx context.Context, crawl string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.HostObservation{}).
		Where("crawl = ?", crawl).
		Count(&count).Error
	return count, err
}

func (r *datasetRepo) ReplaceApps(ctx context.Context, crawl string, apps []domain.App) error {
	now := time.Now().UTC()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM apps WHERE crawl = ?", crawl).Error; err != nil {
			return err
		}

		for i := range apps {
			apps[i].ID = 0
			apps[i].Crawl = crawl
			apps[i].CreatedAt = now
		}
		if len(apps) == 0 {
			return nil
		}
		return tx.CreateInBatches(apps, insertBatchSize).Error
	})
}

func (r *datasetRepo) ListApps(ctx context.Context, crawl string) ([]domain.App, error) {
	var apps []domain.App
	err := r.db.WithContext(ctx).
		Where("crawl = ?", crawl).
		Order("id ASC").
		Find(&apps).Error

	return apps, err
}

func (r *datasetRepo) ReplaceMappings(ctx context.Context, mappings []domain.AppIDMapping) error {
	now := time.Now().UTC()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM app_id_mappings").Error; err != nil {
			return err
		}

		for i := range mappings {
			mappings[i].ID = 0
			mappings[i].CreatedAt = now
		}
		if len(mappings) == 0 {
			return nil
		}
		return tx.CreateInBatches(mappings, insertBatchSize).Error
	})
}

func (r *datasetRepo) ListMappings(ctx context.Context) ([]domain.AppIDMapping, error) {
	var mappings []domain.AppIDMapping
	err := r.db.WithContext(ctx).Order("id ASC").Find(&mappings).Error
	return mappings, err
}
