package domain

import "time"

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AttributionRun 一次完整的归因执行记录
// 每次执行从零重建模式集与查找表，没有增量更新路径
type AttributionRun struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Crawl         string     `gorm:"type:varchar(4);index:idx_run_crawl;not null" json:"crawl"`
	Status        RunStatus  `gorm:"type:varchar(20);not null;default:'queued'" json:"status"`
	PatternCount  int        `json:"pattern_count"`
	DistinctHosts int        `json:"distinct_hosts"`
	UnknownHosts  int        `json:"unknown_hosts"`
	RowCount      int        `json:"row_count"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (AttributionRun) TableName() string {
	return "attribution_runs"
}

// HostLookupEntry 冻结后的 hostname → company 查找表条目
// 每个 run 内 hostname 唯一（归因缓存按构造保证）
type HostLookupEntry struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID    string `gorm:"type:varchar(36);uniqueIndex:uk_run_host,priority:1;not null" json:"run_id"`
	Hostname string `gorm:"type:varchar(255);uniqueIndex:uk_run_host,priority:2;not null" json:"hostname"`
	Company  string `gorm:"type:varchar(255);not null" json:"company"`
}

func (HostLookupEntry) TableName() string {
	return "host_lookup_entries"
}

// AttributedHost 长格式归因结果行：每条输入观测对应一行输出
// Seq 保留输入顺序，保证相同输入可逐字节重建导出文件
type AttributedHost struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID    string `gorm:"type:varchar(36);index:idx_att_run;not null" json:"run_id"`
	Crawl    string `gorm:"type:varchar(4);index:idx_att_crawl;not null" json:"crawl"`
	Seq      int    `gorm:"not null" json:"seq"`
	AppID    string `gorm:"type:varchar(255);index:idx_att_app;not null" json:"app_id"`
	Hostname string `gorm:"type:varchar(255);not null" json:"hostname"`
	Company  string `gorm:"type:varchar(255);index:idx_att_company;not null" json:"company"`
}

func (AttributedHost) TableName() string {
	return "attributed_hosts"
}
