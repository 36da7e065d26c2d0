package repository

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// setupTestDB 创建内存测试数据库并迁移全部表
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to open test database")

	err = db.AutoMigrate(
		&domain.Company{},
		&domain.CompanyDomain{},
		&domain.App{},
		&domain.AppIDMapping{},
		&domain.HostObservation{},
		&domain.AttributionRun{},
		&domain.HostLookupEntry{},
		&domain.AttributedHost{},
	)
	require.NoError(t, err, "Failed to migrate test database")

	return db
}

// TestCompanyRepository_ReplaceAllAndList 测试注册表整体替换与读取顺序
func TestCompanyRepository_ReplaceAllAndList(t *testing.T) {
	repo := NewCompanyRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	companies := []domain.Company{
		{Name: "OwnerA", Country: "US", Domains: []domain.CompanyDomain{
			{Domain: "tracker.com", Position: 0},
			{Domain: "trk.io", Position: 1},
		}},
		{Name: "OwnerB", Country: "DE", RootParent: "HoldingB", Domains: []domain.CompanyDomain{
			{Domain: "ads.tracker.com", Position: 0},
		}},
	}

	require.NoError(t, repo.ReplaceAll(ctx, companies))

	listed, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "OwnerA", listed[0].Name)
	require.Len(t, listed[0].Domains, 2)
	assert.Equal(t, "tracker.com", listed[0].Domains[0].Domain)

	// 再次替换清掉旧数据
	require.NoError(t, repo.ReplaceAll(ctx, []domain.Company{{Name: "OwnerC"}}))
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// TestCompanyRepository_FindByName 测试按名称查找
func TestCompanyRepository_FindByName(t *testing.T) {
	repo := NewCompanyRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, []domain.Company{{Name: "OwnerA", Country: "US"}}))

	found, err := repo.FindByName(ctx, "OwnerA")
	require.NoError(t, err)
	assert.Equal(t, "US", found.Country)

	_, err = repo.FindByName(ctx, "nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

// TestDatasetRepository_ObservationsKeepOrderAndDuplicates 测试观测记录保序保重复
func TestDatasetRepository_ObservationsKeepOrderAndDuplicates(t *testing.T) {
	repo := NewDatasetRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	observations := []domain.HostObservation{
		{AppID: "app1", Hostname: "b.tracker.com"},
		{AppID: "app1", Hostname: "a.tracker.com"},
		{AppID: "app1", Hostname: "a.tracker.com"}, // 重复观测原样保留
	}

	require.NoError(t, repo.ReplaceObservations(ctx, domain.Crawl2017, observations))

	listed, err := repo.ListObservations(ctx, domain.Crawl2017)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "b.tracker.com", listed[0].Hostname)
	assert.Equal(t, "a.tracker.com", listed[1].Hostname)
	assert.Equal(t, "a.tracker.com", listed[2].Hostname)

	count, err := repo.CountObservations(ctx, domain.Crawl2017)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

// TestDatasetRepository_ReplaceIsScopedToCrawl 测试替换只影响指定快照
func TestDatasetRepository_ReplaceIsScopedToCrawl(t *testing.T) {
	repo := NewDatasetRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.ReplaceObservations(ctx, domain.Crawl2017, []domain.HostObservation{
		{AppID: "app1", Hostname: "x.com"},
	}))
	require.NoError(t, repo.ReplaceObservations(ctx, domain.Crawl2020, []domain.HostObservation{
		{AppID: "new.app1", Hostname: "y.com"},
	}))

	// 重新替换 2017 不触碰 2020
	require.NoError(t, repo.ReplaceObservations(ctx, domain.Crawl2017, nil))

	count2020, err := repo.CountObservations(ctx, domain.Crawl2020)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count2020)
}

// TestDatasetRepository_AppsAndMappings 测试应用与映射持久化
func TestDatasetRepository_AppsAndMappings(t *testing.T) {
	repo := NewDatasetRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.ReplaceApps(ctx, domain.Crawl2017, []domain.App{
		{AppID: "app1", Genre: "Arcade", SuperGenre: "Games"},
	}))
	apps, err := repo.ListApps(ctx, domain.Crawl2017)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "Games", apps[0].SuperGenre)

	require.NoError(t, repo.ReplaceMappings(ctx, []domain.AppIDMapping{
		{AppID2017: "app1", AppID2020: "new.app1"},
	}))
	mappings, err := repo.ListMappings(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "new.app1", mappings[0].AppID2020)
}

// TestRunRepository_Lifecycle 测试执行记录的状态流转
func TestRunRepository_Lifecycle(t *testing.T) {
	repo := NewRunRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	run := &domain.AttributionRun{ID: "run-001", Crawl: domain.Crawl2017}
	require.NoError(t, repo.Create(ctx, run))

	created, err := repo.FindByID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, created.Status)

	require.NoError(t, repo.MarkRunning(ctx, "run-001"))
	running, err := repo.FindByID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, running.Status)
	assert.NotNil(t, running.StartedAt)

	require.NoError(t, repo.MarkCompleted(ctx, "run-001", RunStats{
		PatternCount:  10,
		DistinctHosts: 5,
		UnknownHosts:  2,
		RowCount:      7,
	}))
	completed, err := repo.FindByID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, completed.Status)
	assert.Equal(t, 5, completed.DistinctHosts)
	assert.NotNil(t, completed.CompletedAt)
}

// TestRunRepository_MarkFailed 测试失败状态写入
func TestRunRepository_MarkFailed(t *testing.T) {
	repo := NewRunRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.AttributionRun{ID: "run-002", Crawl: domain.Crawl2020}))
	require.NoError(t, repo.MarkFailed(ctx, "run-002", "missing lookup entry"))

	failed, err := repo.FindByID(ctx, "run-002")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, failed.Status)
	assert.Equal(t, "missing lookup entry", failed.ErrorMessage)
}

// TestRunRepository_LatestCompleted 测试按快照取最近成功的执行
func TestRunRepository_LatestCompleted(t *testing.T) {
	repo := NewRunRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.AttributionRun{ID: "run-a", Crawl: domain.Crawl2017}))
	require.NoError(t, repo.MarkCompleted(ctx, "run-a", RunStats{RowCount: 1}))

	require.NoError(t, repo.Create(ctx, &domain.AttributionRun{ID: "run-b", Crawl: domain.Crawl2017}))
	// run-b 仍在排队，不应被选中

	latest, err := repo.LatestCompleted(ctx, domain.Crawl2017)
	require.NoError(t, err)
	assert.Equal(t, "run-a", latest.ID)

	_, err = repo.LatestCompleted(ctx, domain.Crawl2020)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

// TestAttributionRepository_SaveAndRead 测试结果写入、查找表与行序
func TestAttributionRepository_SaveAndRead(t *testing.T) {
	repo := NewAttributionRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	lookup := []domain.HostLookupEntry{
		{Hostname: "x.tracker.com", Company: "OwnerA"},
		{Hostname: "unrelated.net", Company: "unknown"},
	}
	rows := []domain.AttributedHost{
		{Crawl: domain.Crawl2017, Seq: 0, AppID: "app1", Hostname: "x.tracker.com", Company: "OwnerA"},
		{Crawl: domain.Crawl2017, Seq: 1, AppID: "app1", Hostname: "unrelated.net", Company: "unknown"},
		{Crawl: domain.Crawl2017, Seq: 2, AppID: "app2", Hostname: "x.tracker.com", Company: "OwnerA"},
	}

	require.NoError(t, repo.SaveResult(ctx, "run-001", lookup, rows))

	got, err := repo.GetLookup(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"x.tracker.com": "OwnerA",
		"unrelated.net": "unknown",
	}, got)

	listed, err := repo.ListRows(ctx, "run-001")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, row := range listed {
		assert.Equal(t, i, row.Seq, "rows must come back in input order")
	}

	count, err := repo.CountRows(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

// TestAttributionRepository_SaveResultIsIdempotent 测试重复保存覆盖旧数据
func TestAttributionRepository_SaveResultIsIdempotent(t *testing.T) {
	repo := NewAttributionRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	rows := []domain.AttributedHost{
		{Crawl: domain.Crawl2017, Seq: 0, AppID: "app1", Hostname: "a.com", Company: "OwnerA"},
	}
	lookup := []domain.HostLookupEntry{{Hostname: "a.com", Company: "OwnerA"}}

	require.NoError(t, repo.SaveResult(ctx, "run-001", lookup, rows))
	require.NoError(t, repo.SaveResult(ctx, "run-001", lookup, rows))

	count, err := repo.CountRows(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// TestAttributionRepository_DeleteResult 测试结果删除
func TestAttributionRepository_DeleteResult(t *testing.T) {
	repo := NewAttributionRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.SaveResult(ctx, "run-001",
		[]domain.HostLookupEntry{{Hostname: "a.com", Company: "OwnerA"}},
		[]domain.AttributedHost{{Crawl: domain.Crawl2017, Seq: 0, AppID: "app1", Hostname: "a.com", Company: "OwnerA"}},
	))

	require.NoError(t, repo.DeleteResult(ctx, "run-001"))

	count, err := repo.CountRows(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	lookup, err := repo.GetLookup(ctx, "run-001")
	require.NoError(t, err)
	assert.Empty(t, lookup)
}
