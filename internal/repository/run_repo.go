package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"gorm.io/gorm"
)

// RunStats 一次归因执行完成时写回的统计量
type RunStats struct {
	PatternCount  int
	DistinctHosts int
	UnknownHosts  int
	RowCount      int
}

type RunRepository interface {
	Create(ctx context.Context, run *domain.AttributionRun) error
	FindByID(ctx context.Context, id string) (*domain.AttributionRun, error)
	List(ctx context.Context, limit int) ([]*domain.AttributionRun, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, stats RunStats) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	// LatestCompleted 返回某快照最近一次成功的执行，不存在时返回 gorm.ErrRecordNotFound
	LatestCompleted(ctx context.Context, crawl string) (*domain.AttributionRun, error)
}

type runRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRunRepository(db *gorm.DB, logger *logrus.Logger) RunRepository {
	return &runRepo{db: db, logger: logger}
}

func (r *runRepo) Create(ctx context.Context, run *domain.AttributionRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusQueued
	}
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *runRepo) FindByID(ctx context.Context, id string) (*domain.AttributionRun, error) {
	var run domain.AttributionRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) List(ctx context.Context, limit int) ([]*domain.AttributionRun, error) {
	var runs []*domain.AttributionRun
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error

	return runs, err
}

func (r *runRepo) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.AttributionRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.RunStatusRunning,
			"started_at": &now,
		}).Error
}

func (r *runRepo) MarkCompleted(ctx context.Context, id string, stats RunStats) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Model(&domain.AttributionRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         domain.RunStatusCompleted,
			"pattern_count":  stats.PatternCount,
			"distinct_hosts": stats.DistinctHosts,
			"unknown_hosts":  stats.UnknownHosts,
			"row_count":      stats.RowCount,
			"completed_at":   &now,
		}).Error

	if err != nil {
		r.logger.WithError(err).WithField("run_id", id).Error("Failed to mark run completed")
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":         id,
		"distinct_hosts": stats.DistinctHosts,
		"unknown_hosts":  stats.UnknownHosts,
		"rows":           stats.RowCount,
	}).Info("Attribution run completed")
	return nil
}

func (r *runRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Model(&domain.AttributionRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.RunStatusFailed,
			"error_message": errorMessage,
			"completed_at":  &now,
		}).Error

	if err != nil {
		r.logger.WithError(err).WithField("run_id", id).Error("Failed to mark run failed")
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"run_id": id,
		"error":  errorMessage,
	}).Warn("Attribution run failed")
	return nil
}

func (r *runRepo) LatestCompleted(ctx context.Context, crawl string) (*domain.AttributionRun, error) {
	var run domain.AttributionRun
	err := r.db.WithContext(ctx).
		Where("crawl = ? AND status = ?", crawl, domain.RunStatusCompleted).
		Order("completed_at DESC").
		First(&run).Error

	if err != nil {
		return nil, err
	}
	return &run, nil
}
