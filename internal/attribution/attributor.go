package attribution

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// CompanyUnknown 未命中任何模式的 hostname 归入的哨兵公司名
const CompanyUnknown = "unknown"

// Attributor 主机归因器
// 对语料中每个不同的 hostname 只扫描一次模式序列，结果缓存在查找表中，
// 与该 hostname 被多少条观测引用无关
type Attributor struct {
	patterns []CompiledPattern // 已按优先级排序，只读
	workers  int
	logger   *logrus.Logger
}

// NewAttributor 创建归因器
// patterns 必须已经过 OrderBySpecificity 排序
func NewAttributor(patterns []CompiledPattern, logger *logrus.Logger) *Attributor {
	return &Attributor{
		patterns: patterns,
		workers:  1,
		logger:   logger,
	}
}

// WithWorkers 设置并行扫描的 worker 数量
// hostname 之间相互独立，模式序列只读，每个 worker 写入互不相交的
// 结果区间，因此无需加锁，最终查找表与 worker 交错顺序无关
func (a *Attributor) WithWorkers(n int) *Attributor {
	if n < 1 {
		n = 1
	}
	a.workers = n
	return a
}

// classify 对单个 hostname 按优先级顺序扫描，首个命中即停止
// 首个命中即停是优先级策略的一部分，即使后续还有模式也会命中，
// 也不再继续尝试。空 hostname 不参与匹配，直接归为 unknown。
func (a *Attributor) classify(hostname string) string {
	normalized := strings.ToLower(strings.TrimSpace(hostname))
	if normalized == "" {
		return CompanyUnknown
	}

	for i := range a.patterns {
		if a.patterns[i].Match(normalized) {
			return a.patterns[i].Owner
		}
	}

	return CompanyUnknown
}

// BuildLookup 为观测到的所有 hostname 构建冻结的查找表
// 键为原始 hostname（与观测行逐字一致），每个不同 hostname 恰好出现一次。
// 去重是强制的：注册表可能有数千条模式，而观测行数远多于不同 hostname 数。
func (a *Attributor) BuildLookup(ctx context.Context, hostnames []string) map[string]string {
	// 去重，保留首次出现顺序
	seen := make(map[string]struct{}, len(hostnames))
	distinct := make([]string, 0, len(hostnames))
	for _, h := range hostnames {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		distinct = append(distinct, h)
	}

	a.logger.WithFields(logrus.Fields{
		"observations":   len(hostnames),
		"distinct_hosts": len(distinct),
		"patterns":       len(a.patterns),
		"workers":        a.workers,
	}).Info("Building host-company lookup")

	results := make([]string, len(distinct))

	if a.workers <= 1 || len(distinct) < a.workers*2 {
		for i, h := range distinct {
			results[i] = a.classify(h)
		}
	} else {
		a.scanParallel(distinct, results)
	}

	lookup := make(map[string]string, len(distinct))
	unknown := 0
	for i, h := range distinct {
		lookup[h] = results[i]
		if results[i] == CompanyUnknown {
			unknown++
		}
	}

	a.logger.WithFields(logrus.Fields{
		"distinct_hosts": len(distinct),
		"unknown_hosts":  unknown,
	}).Info("Host-company lookup frozen")

	return lookup
}

// scanParallel 将不同 hostname 均分给多个 worker 并行扫描
// 每个 worker 只写 results 的一个互不相交区间
func (a *Attributor) scanParallel(distinct []string, results []string) {
	var wg sync.WaitGroup

	chunk := (len(distinct) + a.workers - 1) / a.workers
	for w := 0; w < a.workers; w++ {
		start := w * chunk
		if start >= len(distinct) {
			break
		}
		end := start + chunk
		if end > len(distinct) {
			end = len(distinct)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				results[i] = a.classify(distinct[i])
			}
		}(start, end)
	}

	wg.Wait()
}
