package attribution

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ProgressFunc 流水线阶段进度回调
type ProgressFunc func(stage string, done, total int)

// Pipeline 归因流水线：编译 → 排序 → 归因 → 展开
// 单趟批处理，模式集与查找表在每次 Run 中从零重建
type Pipeline struct {
	logger     *logrus.Logger
	workers    int
	onProgress ProgressFunc
}

// Result 一次流水线执行的产出
type Result struct {
	PatternCount  int
	DistinctHosts int
	UnknownHosts  int
	Lookup        map[string]string
	Rows          []AttributedRow
}

// NewPipeline 创建归因流水线
func NewPipeline(logger *logrus.Logger) *Pipeline {
	return &Pipeline{logger: logger, workers: 1}
}

// WithWorkers 设置归因扫描并行度
func (p *Pipeline) WithWorkers(n int) *Pipeline {
	if n < 1 {
		n = 1
	}
	p.workers = n
	return p
}

// WithProgress 设置进度回调
func (p *Pipeline) WithProgress(fn ProgressFunc) *Pipeline {
	p.onProgress = fn
	return p
}

func (p *Pipeline) progress(stage string, done, total int) {
	if p.onProgress != nil {
		p.onProgress(stage, done, total)
	}
}

// Run 执行完整的归因流水线
// 确定性：相同的注册表与观测输入产出完全相同的长格式结果
func (p *Pipeline) Run(ctx context.Context, registry []RegistryEntry, observations []Observation) (*Result, error) {
	patterns := OrderBySpecificity(CompilePatterns(registry, p.logger))
	p.progress("compile", len(patterns), len(patterns))

	hostnames := make([]string, len(observations))
	for i, obs := range observations {
		hostnames[i] = obs.Hostname
	}

	attributor := NewAttributor(patterns, p.logger).WithWorkers(p.workers)
	lookup := attributor.BuildLookup(ctx, hostnames)
	p.progress("attribute", len(lookup), len(lookup))

	rows, err := Expand(observations, lookup)
	if err != nil {
		return nil, fmt.Errorf("long-format expansion failed: %w", err)
	}
	p.progress("expand", len(rows), len(observations))

	unknown := 0
	for _, company := range lookup {
		if company == CompanyUnknown {
			unknown++
		}
	}

	p.logger.WithFields(logrus.Fields{
		"patterns":       len(patterns),
		"distinct_hosts": len(lookup),
		"unknown_hosts":  unknown,
		"rows":           len(rows),
	}).Info("Attribution pipeline completed")

	return &Result{
		PatternCount:  len(patterns),
		DistinctHosts: len(lookup),
		UnknownHosts:  unknown,
		Lookup:        lookup,
		Rows:          rows,
	}, nil
}
