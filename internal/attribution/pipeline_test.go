package attribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPipeline_EndToEnd 端到端场景
// 注册表 {OwnerA: tracker.com, OwnerB: ads.tracker.com}，
// x.ads.tracker.com → OwnerB，y.tracker.com → OwnerA，unrelated.net → unknown
func TestPipeline_EndToEnd(t *testing.T) {
	registry := []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
		{Owner: "OwnerB", Domains: []string{"ads.tracker.com"}},
	}
	observations := []Observation{
		{AppID: "app1", Hostname: "x.ads.tracker.com"},
		{AppID: "app1", Hostname: "y.tracker.com"},
		{AppID: "app2", Hostname: "unrelated.net"},
	}

	result, err := NewPipeline(testLogger()).Run(context.Background(), registry, observations)

	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, AttributedRow{AppID: "app1", Hostname: "x.ads.tracker.com", Company: "OwnerB"}, result.Rows[0])
	assert.Equal(t, AttributedRow{AppID: "app1", Hostname: "y.tracker.com", Company: "OwnerA"}, result.Rows[1])
	assert.Equal(t, AttributedRow{AppID: "app2", Hostname: "unrelated.net", Company: CompanyUnknown}, result.Rows[2])

	assert.Equal(t, 2, result.PatternCount)
	assert.Equal(t, 3, result.DistinctHosts)
	assert.Equal(t, 1, result.UnknownHosts)
}

// TestPipeline_Deterministic 测试相同输入两次执行产出完全一致
func TestPipeline_Deterministic(t *testing.T) {
	registry := []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
		{Owner: "OwnerB", Domains: []string{"ads.tracker.com", "cdn.io"}},
	}
	observations := []Observation{
		{AppID: "app1", Hostname: "a.tracker.com"},
		{AppID: "app2", Hostname: "b.cdn.io"},
		{AppID: "app2", Hostname: "b.cdn.io"},
		{AppID: "app3", Hostname: "nobody.org"},
	}

	pipeline := NewPipeline(testLogger()).WithWorkers(4)
	first, err1 := pipeline.Run(context.Background(), registry, observations)
	second, err2 := pipeline.Run(context.Background(), registry, observations)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, first.Lookup, second.Lookup)
}

// TestPipeline_EveryRowHasCompany 测试每行输出都有非空公司名
func TestPipeline_EveryRowHasCompany(t *testing.T) {
	registry := []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
	}
	observations := []Observation{
		{AppID: "app1", Hostname: "x.tracker.com"},
		{AppID: "app1", Hostname: ""},
		{AppID: "app2", Hostname: "missing.org"},
	}

	result, err := NewPipeline(testLogger()).Run(context.Background(), registry, observations)

	require.NoError(t, err)
	for _, row := range result.Rows {
		assert.NotEmpty(t, row.Company, "company must be a real owner or the literal unknown")
	}
}

// TestPipeline_ProgressCallback 测试进度回调按阶段触发
func TestPipeline_ProgressCallback(t *testing.T) {
	registry := []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
	}
	observations := []Observation{
		{AppID: "app1", Hostname: "x.tracker.com"},
	}

	var stages []string
	pipeline := NewPipeline(testLogger()).WithProgress(func(stage string, done, total int) {
		stages = append(stages, stage)
	})

	_, err := pipeline.Run(context.Background(), registry, observations)

	require.NoError(t, err)
	assert.Equal(t, []string{"compile", "attribute", "expand"}, stages)
}
