package attribution

import "sort"

// OrderBySpecificity 按域名长度降序排列模式，长度相同保持注册表原始顺序
// 更长的域名更具体：x.ads.example.com 必须先尝试 ads.example.com 的所有者，
// 再尝试 example.com 的所有者。归因时按此固定顺序扫描，首个命中即停止。
func OrderBySpecificity(patterns []CompiledPattern) []CompiledPattern {
	ordered := make([]CompiledPattern, len(patterns))
	copy(ordered, patterns)

	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].SourceDomain) > len(ordered[j].SourceDomain)
	})

	return ordered
}
