package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestOrderBySpecificity_LongestFirst 测试按域名长度降序排列
func TestOrderBySpecificity_LongestFirst(t *testing.T) {
	registry := []RegistryEntry{
		{Owner: "OwnerB", Domains: []string{"example.com"}},
		{Owner: "OwnerA", Domains: []string{"ads.example.com"}},
	}

	ordered := OrderBySpecificity(CompilePatterns(registry, testLogger()))

	assert.Equal(t, "ads.example.com", ordered[0].SourceDomain)
	assert.Equal(t, "example.com", ordered[1].SourceDomain)
}

// TestOrderBySpecificity_StableTies 测试同长度模式保持注册表原始顺序
func TestOrderBySpecificity_StableTies(t *testing.T) {
	registry := []RegistryEntry{
		{Owner: "OwnerA", Domains: []string{"aaa.com"}},
		{Owner: "OwnerB", Domains: []string{"bbb.com"}},
		{Owner: "OwnerC", Domains: []string{"ccc.com"}},
	}

	ordered := OrderBySpecificity(CompilePatterns(registry, testLogger()))

	assert.Equal(t, []string{"OwnerA", "OwnerB", "OwnerC"},
		[]string{ordered[0].Owner, ordered[1].Owner, ordered[2].Owner})
}

// TestOrderBySpecificity_DoesNotMutateInput 测试排序不修改输入切片
func TestOrderBySpecificity_DoesNotMutateInput(t *testing.T) {
	registry := []RegistryEntry{
		{Owner: "OwnerB", Domains: []string{"b.com"}},
		{Owner: "OwnerA", Domains: []string{"longer-a.com"}},
	}
	patterns := CompilePatterns(registry, testLogger())

	_ = OrderBySpecificity(patterns)

	assert.Equal(t, "b.com", patterns[0].SourceDomain, "input order must be preserved")
}
