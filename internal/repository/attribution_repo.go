package repository

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"gorm.io/gorm"
)

// AttributionRepository 归因结果的持久化：冻结查找表与长格式结果表
type AttributionRepository interface {
	// SaveResult 在单个事务内写入一次执行的查找表与全部结果行
	SaveResult(ctx context.Context, runID string, lookup []domain.HostLookupEntry, rows []domain.AttributedHost) error
	// GetLookup 返回某次执行的 hostname → company 查找表
	GetLookup(ctx context.Context, runID string) (map[string]string, error)
	// ListRows 按 Seq 升序返回某次执行的长格式结果，保证导出顺序与输入一致
	ListRows(ctx context.Context, runID string) ([]domain.AttributedHost, error)
	CountRows(ctx context.Context, runID string) (int64, error)
	// DeleteResult 删除某次执行的全部结果数据（run 记录本身保留）
	DeleteResult(ctx context.Context, runID string) error
}

type attributionRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAttributionRepository(db *gorm.DB, logger *logrus.Logger) AttributionRepository {
	return &attributionRepo{db: db, logger: logger}
}

func (r *attributionRepo) SaveResult(ctx context.Context, runID string, lookup []domain.HostLookupEntry, rows []domain.AttributedHost) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 幂等：重复保存同一 run 时先清掉旧数据
		if err := tx.Exec("DELETE FROM host_lookup_entries WHERE run_id = ?", runID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM attributed_hosts WHERE run_id = ?", runID).Error; err != nil {
			return err
		}

		for i := range lookup {
			lookup[i].ID = 0
			lookup[i].RunID = runID
		}
		if len(lookup) > 0 {
			if err := tx.CreateInBatches(lookup, insertBatchSize).Error; err != nil {
				return err
			}
		}

		for i := range rows {
			rows[i].ID = 0
			rows[i].RunID = runID
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		r.logger.WithError(err).WithField("run_id", runID).Error("Failed to save attribution result")
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":         runID,
		"lookup_entries": len(lookup),
		"rows":           len(rows),
	}).Info("Attribution result saved")
	return nil
}

func (r *attributionRepo) GetLookup(ctx context.Context, runID string) (map[string]string, error) {
	var entries []domain.HostLookupEntry
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	lookup := make(map[string]string, len(entries))
	for _, e := range entries {
		lookup[e.Hostname] = e.Company
	}
	return lookup, nil
}

func (r *attributionRepo) ListRows(ctx context.Context, runID string) ([]domain.AttributedHost, error) {
	var rows []domain.AttributedHost
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("seq ASC").
		Find(&rows).Error

	return rows, err
}

func (r *attributionRepo) CountRows(ctx context.Context, runID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.AttributedHost{}).
		Where("run_id = ?", runID).
		Count(&count).Error
	return count, err
}

func (r *attributionRepo) DeleteResult(ctx context.Context, runID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM host_lookup_entries WHERE run_id = ?", runID).Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM attributed_hosts WHERE run_id = ?", runID).Error
	})
}
