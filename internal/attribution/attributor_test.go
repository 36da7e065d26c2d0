package attribution

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func orderedPatterns(t *testing.T, registry []RegistryEntry) []CompiledPattern {
	t.Helper()
	return OrderBySpecificity(CompilePatterns(registry, testLogger()))
}

// TestBuildLookup_LongestMatchWins 测试最长匹配优先
// x.ads.example.com 必须归给 ads.example.com 的所有者，而非 example.com 的所有者
func TestBuildLookup_LongestMatchWins(t *testing.T) {
	patterns := orderedPatterns(t, []RegistryEntry{
		{Owner: "OwnerB", Domains: []string{"example.com"}},
		{Owner: "OwnerA", Domains: []string{"ads.example.com"}},
	})

	lookup := NewAttributor(patterns, testLogger()).
		BuildLookup(context.Background(), []string{"x.ads.example.com", "y.example.com"})

	assert.Equal(t, "OwnerA", lookup["x.ads.example.com"])
	assert.Equal(t, "OwnerB", lookup["y.example.com"])
}

// TestBuildLookup_FirstMatchShortCircuit 测试首个命中即停止
// 两个所有者持有同一长度的可命中域名时，优先级序列中靠前者胜出
func TestBuildLookup_FirstMatchShortCircuit(t *testing.T) {
	patterns := orderedPatterns(t, []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"shared.net"}},
		{Owner: "OwnerB", Domains: []string{"shared.net"}},
	})

	lookup := NewAttributor(patterns, testLogger()).
		BuildLookup(context.Background(), []string{"api.shared.net"})

	assert.Equal(t, "OwnerA", lookup["api.shared.net"])
}

// TestBuildLookup_UnknownFallback 测试未命中归为 unknown
func TestBuildLookup_UnknownFallback(t *testing.T) {
	patterns := orderedPatterns(t, []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
	})

	lookup := NewAttributor(patterns, testLogger()).
		BuildLookup(context.Background(), []string{"unrelated.net"})

	assert.Equal(t, CompanyUnknown, lookup["unrelated.net"])
}

// TestBuildLookup_EmptyHostname 测试空 hostname 不参与匹配直接归为 unknown
func TestBuildLookup_EmptyHostname(t *testing.T) {
	patterns := orderedPatterns(t, []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
	})

	lookup := NewAttributor(patterns, testLogger()).
		BuildLookup(context.Background(), []string{"", "   "})

	assert.Equal(t, CompanyUnknown, lookup[""])
	assert.Equal(t, CompanyUnknown, lookup["   "])
}

// TestBuildLookup_DistinctKeys 测试每个不同 hostname 恰好出现一次
func TestBuildLookup_DistinctKeys(t *testing.T) {
	patterns := orderedPatterns(t, []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
	})

	hosts := []string{"a.tracker.com", "a.tracker.com", "b.net", "a.tracker.com", "b.net"}
	lookup := NewAttributor(patterns, testLogger()).
		BuildLookup(context.Background(), hosts)

	assert.Len(t, lookup, 2)
	assert.Equal(t, "OwnerA", lookup["a.tracker.com"])
	assert.Equal(t, CompanyUnknown, lookup["b.net"])
}

// TestBuildLookup_CaseInsensitiveMatching 测试匹配大小写不敏感但键保留原文
func TestBuildLookup_CaseInsensitiveMatching(t *testing.T) {
	patterns := orderedPatterns(t, []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
	})

	lookup := NewAttributor(patterns, testLogger()).
		BuildLookup(context.Background(), []string{"CDN.Tracker.COM"})

	assert.Equal(t, "OwnerA", lookup["CDN.Tracker.COM"])
}

// TestBuildLookup_ParallelMatchesSequential 测试并行扫描与单线程结果一致
func TestBuildLookup_ParallelMatchesSequential(t *testing.T) {
	registry := []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"tracker.com"}},
		{Owner: "OwnerB", Domains: []string{"ads.tracker.com"}},
		{Owner: "OwnerC", Domains: []string{"cdn.net"}},
	}
	patterns := orderedPatterns(t, registry)

	hosts := make([]string, 0, 300)
	for i := 0; i < 100; i++ {
		hosts = append(hosts,
			fmt.Sprintf("h%d.tracker.com", i),
			fmt.Sprintf("h%d.ads.tracker.com", i),
			fmt.Sprintf("h%d.other.org", i),
		)
	}

	sequential := NewAttributor(patterns, testLogger()).
		BuildLookup(context.Background(), hosts)
	parallel := NewAttributor(patterns, testLogger()).WithWorkers(4).
		BuildLookup(context.Background(), hosts)

	assert.Equal(t, sequential, parallel, "worker interleaving must not affect the lookup")
}
