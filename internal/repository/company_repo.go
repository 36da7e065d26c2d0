package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"gorm.io/gorm"
)

type CompanyRepository interface {
	// ReplaceAll 整体替换公司注册表（注册表没有增量更新路径）
	ReplaceAll(ctx context.Context, companies []domain.Company) error
	// List 按入库顺序返回全部公司及其域名（域名按 Position 排序）
	List(ctx context.Context) ([]domain.Company, error)
	FindByName(ctx context.Context, name string) (*domain.Company, error)
	Count(ctx context.Context) (int64, error)
}

type companyRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewCompanyRepository(db *gorm.DB, logger *logrus.Logger) CompanyRepository {
	return &companyRepo{db: db, logger: logger}
}

func (r *companyRepo) ReplaceAll(ctx context.Context, companies []domain.Company) error {
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM company_domains").Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM companies").Error; err != nil {
			return err
		}

		for i := range companies {
			companies[i].ID = 0
			companies[i].CreatedAt = now
			for j := range companies[i].Domains {
				companies[i].Domains[j].ID = 0
				companies[i].Domains[j].CreatedAt = now
			}
			if err := tx.Create(&companies[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to replace company registry")
		return err
	}

	r.logger.WithField("companies", len(companies)).Info("Company registry replaced")
	return nil
}

func (r *companyRepo) List(ctx context.Context) ([]domain.Company, error) {
	var companies []domain.Company
	err := r.db.WithContext(ctx).
		Preload("Domains", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("id ASC").
		Find(&companies).Error

	return companies, err
}

func (r *companyRepo) FindByName(ctx context.Context, name string) (*domain.Company, error) {
	var company domain.Company
	err := r.db.WithContext(ctx).
		Preload("Domains", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&company, "name = ?", name).Error

	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Company{}).Count(&count).Error
	return count, err
}
