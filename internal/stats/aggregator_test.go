package stats

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
	"github.com/tracker-census/tracker-census-go/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testAggregator() *Aggregator {
	apps := []domain.App{
		{AppID: "app1", Crawl: domain.Crawl2017, SuperGenre: "Games"},
		{AppID: "app2", Crawl: domain.Crawl2017, SuperGenre: "Finance"},
		{AppID: "app3", Crawl: domain.Crawl2017, SuperGenre: "Games"},
	}
	companies := []domain.Company{
		{Name: "OwnerA", Country: "US"},
		{Name: "OwnerB", Country: "DE"},
	}
	mappings := []domain.AppIDMapping{
		{AppID2017: "app1", AppID2020: "new.app1"},
	}
	return NewAggregator(apps, companies, mappings, testLogger())
}

func testRows() []attribution.AttributedRow {
	return []attribution.AttributedRow{
		{AppID: "app1", Hostname: "a.ownera.com", Company: "OwnerA"},
		{AppID: "app1", Hostname: "a.ownera.com", Company: "OwnerA"}, // 重复观测
		{AppID: "app1", Hostname: "b.ownerb.de", Company: "OwnerB"},
		{AppID: "app2", Hostname: "a.ownera.com", Company: "OwnerA"},
		{AppID: "app3", Hostname: "x.nowhere.org", Company: attribution.CompanyUnknown},
	}
}

// TestHostsPerApp_Overall 测试整体分布（重复观测按行计数）
func TestHostsPerApp_Overall(t *testing.T) {
	summaries, err := testAggregator().HostsPerApp(testRows(), QueryOptions{
		Crawl:   domain.Crawl2017,
		GroupBy: DimensionOverall,
	})

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "overall", summaries[0].Group)
	// app1=3 行, app2=1 行, app3=1 行
	assert.Equal(t, 3, summaries[0].Summary.Count)
	assert.InDelta(t, 3.0, summaries[0].Summary.Max, 1e-9)
}

// TestHostsPerApp_DistinctMode 测试 distinct 语义下重复观测只计一次
func TestHostsPerApp_DistinctMode(t *testing.T) {
	summaries, err := testAggregator().HostsPerApp(testRows(), QueryOptions{
		Crawl:    domain.Crawl2017,
		GroupBy:  DimensionOverall,
		Distinct: true,
	})

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	// app1 有 2 个不同 host（重复行折叠）
	assert.InDelta(t, 2.0, summaries[0].Summary.Max, 1e-9)
}

// TestHostsPerApp_BySuperGenre 测试按超类分组
func TestHostsPerApp_BySuperGenre(t *testing.T) {
	summaries, err := testAggregator().HostsPerApp(testRows(), QueryOptions{
		Crawl:   domain.Crawl2017,
		GroupBy: DimensionSuperGenre,
	})

	require.NoError(t, err)
	require.Len(t, summaries, 2)
	// 组名按字典序排序保证确定性
	assert.Equal(t, "Finance", summaries[0].Group)
	assert.Equal(t, "Games", summaries[1].Group)
	assert.Equal(t, 2, summaries[1].Summary.Count, "Games has app1 and app3")
}

// TestHostsPerApp_ByCompany 测试按公司分组
func TestHostsPerApp_ByCompany(t *testing.T) {
	summaries, err := testAggregator().HostsPerApp(testRows(), QueryOptions{
		Crawl:   domain.Crawl2017,
		GroupBy: DimensionCompany,
	})

	require.NoError(t, err)

	byGroup := make(map[string]Summary)
	for _, s := range summaries {
		byGroup[s.Group] = s.Summary
	}

	// OwnerA 被 app1 引用 2 次、app2 引用 1 次
	require.Contains(t, byGroup, "OwnerA")
	assert.Equal(t, 2, byGroup["OwnerA"].Count)
	assert.InDelta(t, 2.0, byGroup["OwnerA"].Max, 1e-9)
	require.Contains(t, byGroup, attribution.CompanyUnknown)
}

// TestHostsPerApp_ByCountry 测试按所有者国家分组，未知公司归入 unknown
func TestHostsPerApp_ByCountry(t *testing.T) {
	summaries, err := testAggregator().HostsPerApp(testRows(), QueryOptions{
		Crawl:   domain.Crawl2017,
		GroupBy: DimensionCountry,
	})

	require.NoError(t, err)

	groups := make([]string, 0, len(summaries))
	for _, s := range summaries {
		groups = append(groups, s.Group)
	}
	assert.ElementsMatch(t, []string{"US", "DE", attribution.CompanyUnknown}, groups)
}

// TestHostsPerApp_BothCrawlsFilter 测试跨快照过滤只保留映射中的应用
func TestHostsPerApp_BothCrawlsFilter(t *testing.T) {
	summaries, err := testAggregator().HostsPerApp(testRows(), QueryOptions{
		Crawl:          domain.Crawl2017,
		GroupBy:        DimensionOverall,
		BothCrawlsOnly: true,
	})

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	// 仅 app1 在映射表中
	assert.Equal(t, 1, summaries[0].Summary.Count)
}

// TestHostsPerApp_UnknownDimension 测试未知维度返回错误
func TestHostsPerApp_UnknownDimension(t *testing.T) {
	_, err := testAggregator().HostsPerApp(testRows(), QueryOptions{
		Crawl:   domain.Crawl2017,
		GroupBy: Dimension("bogus"),
	})

	assert.Error(t, err)
}
