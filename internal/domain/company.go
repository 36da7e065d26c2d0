package domain

import (
	"strings"
	"time"
)

// Company 追踪公司（域名所有者）
// Country 入库前统一转为大写；RootParent 为最终母公司名称，可为空
type Company struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"type:varchar(255);uniqueIndex:uk_company_name;not null" json:"name"`
	Country    string    `gorm:"type:varchar(10)" json:"country,omitempty"`
	RootParent string    `gorm:"type:varchar(255)" json:"root_parent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Domains []CompanyDomain `gorm:"foreignKey:CompanyID;references:ID" json:"domains,omitempty"`
}

func (Company) TableName() string {
	return "companies"
}

// LeafParent 返回公司的最终归属方
// 有 RootParent 时返回 RootParent，否则返回公司自身名称，保证非空
func (c *Company) LeafParent() string {
	if strings.TrimSpace(c.RootParent) != "" {
		return c.RootParent
	}
	return c.Name
}

// CompanyDomain 公司持有的域名
// Position 保留注册表中的原始顺序，用于同长度模式的稳定排序
type CompanyDomain struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID uint      `gorm:"index:idx_company_id;not null" json:"company_id"`
	Domain    string    `gorm:"type:varchar(255);index:idx_domain;not null" json:"domain"`
	Position  int       `gorm:"not null" json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

func (CompanyDomain) TableName() string {
	return "company_domains"
}
