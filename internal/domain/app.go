package domain

import "time"

// 抓取快照标签
const (
	Crawl2017 = "2017"
	Crawl2020 = "2020"
)

// App 应用元数据（外部输入，归因核心只读）
type App struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AppID      string    `gorm:"type:varchar(255);uniqueIndex:uk_app_crawl,priority:1;not null" json:"app_id"`
	Crawl      string    `gorm:"type:varchar(4);uniqueIndex:uk_app_crawl,priority:2;not null" json:"crawl"`
	Genre      string    `gorm:"type:varchar(100)" json:"genre,omitempty"`
	SuperGenre string    `gorm:"type:varchar(100)" json:"super_genre,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (App) TableName() string {
	return "apps"
}

// AppIDMapping 跨快照应用标识映射（2017 ↔ 2020）
// 仅聚合层使用，用于限定两次抓取都存在的应用
type AppIDMapping struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AppID2017 string    `gorm:"type:varchar(255);index:idx_app_2017;not null" json:"app_id_2017"`
	AppID2020 string    `gorm:"type:varchar(255);index:idx_app_2020;not null" json:"app_id_2020"`
	CreatedAt time.Time `json:"created_at"`
}

func (AppIDMapping) TableName() string {
	return "app_id_mappings"
}

// HostObservation 原始 (app, host) 观测记录
// 源数据中的重复行原样保留，不做去重
type HostObservation struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Crawl     string    `gorm:"type:varchar(4);index:idx_obs_crawl;not null" json:"crawl"`
	AppID     string    `gorm:"type:varchar(255);index:idx_obs_app;not null" json:"app_id"`
	Hostname  string    `gorm:"type:varchar(255);not null" json:"hostname"`
	CreatedAt time.Time `json:"created_at"`
}

func (HostObservation) TableName() string {
	return "host_observations"
}
