package stats

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
	"github.com/tracker-census/tracker-census-go/internal/domain"
)

// Dimension 分组维度
type Dimension string

const (
	DimensionOverall    Dimension = "overall"
	DimensionSuperGenre Dimension = "super_genre"
	DimensionCompany    Dimension = "company"
	DimensionCountry    Dimension = "country"
)

// QueryOptions 聚合查询选项
// Distinct 控制重复观测的语义：默认按观测行计数（重复传播），
// 开启后按每应用的不同 host 计数。
type QueryOptions struct {
	Crawl          string    `json:"crawl"`
	GroupBy        Dimension `json:"group_by"`
	Distinct       bool      `json:"distinct"`
	BothCrawlsOnly bool      `json:"both_crawls_only"`
}

// GroupSummary 一个分组的统计结果
type GroupSummary struct {
	Group   string  `json:"group"`
	Summary Summary `json:"summary"`
}

// Aggregator 聚合层：消费长格式归因表与应用/公司注册表
// 核心对计算方式不做约定，只使用标准统计定义
type Aggregator struct {
	apps      map[string]domain.App // key: crawl + "/" + appID
	companies map[string]domain.Company
	inBoth    map[string]bool // key: crawl + "/" + appID
	logger    *logrus.Logger
}

// NewAggregator 创建聚合器
func NewAggregator(apps []domain.App, companies []domain.Company, mappings []domain.AppIDMapping, logger *logrus.Logger) *Aggregator {
	appIndex := make(map[string]domain.App, len(apps))
	for _, a := range apps {
		appIndex[appKey(a.Crawl, a.AppID)] = a
	}

	companyIndex := make(map[string]domain.Company, len(companies))
	for _, c := range companies {
		companyIndex[c.Name] = c
	}

	inBoth := make(map[string]bool, len(mappings)*2)
	for _, m := range mappings {
		inBoth[appKey(domain.Crawl2017, m.AppID2017)] = true
		inBoth[appKey(domain.Crawl2020, m.AppID2020)] = true
	}

	return &Aggregator{
		apps:      appIndex,
		companies: companyIndex,
		inBoth:    inBoth,
		logger:    logger,
	}
}

func appKey(crawl, appID string) string {
	return crawl + "/" + appID
}

// HostsPerApp 每应用 tracker 引用数的分布统计，按选项分组
// overall / super_genre: 值 = 每应用的引用数（或不同 host 数）
// company / country: 值 = 每 (应用, 公司) 的引用数，按公司或所有者国家分组
func (ag *Aggregator) HostsPerApp(rows []attribution.AttributedRow, opts QueryOptions) ([]GroupSummary, error) {
	filtered := rows
	if opts.BothCrawlsOnly {
		filtered = make([]attribution.AttributedRow, 0, len(rows))
		for _, row := range rows {
			if ag.inBoth[appKey(opts.Crawl, row.AppID)] {
				filtered = append(filtered, row)
			}
		}
	}

	switch opts.GroupBy {
	case DimensionOverall, "":
		return ag.groupByApp(filtered, opts, func(attribution.AttributedRow) string {
			return string(DimensionOverall)
		}), nil
	case DimensionSuperGenre:
		return ag.groupByApp(filtered, opts, func(row attribution.AttributedRow) string {
			app, ok := ag.apps[appKey(opts.Crawl, row.AppID)]
			if !ok || app.SuperGenre == "" {
				return "unclassified"
			}
			return app.SuperGenre
		}), nil
	case DimensionCompany:
		return ag.groupByCompany(filtered, opts, func(company string) string {
			return company
		}), nil
	case DimensionCountry:
		return ag.groupByCompany(filtered, opts, func(company string) string {
			c, ok := ag.companies[company]
			if !ok || c.Country == "" {
				return attribution.CompanyUnknown
			}
			return c.Country
		}), nil
	default:
		return nil, fmt.Errorf("unknown grouping dimension: %q", opts.GroupBy)
	}
}

// groupByApp 按应用累积引用数，再按 groupFn 分组成分布
func (ag *Aggregator) groupByApp(rows []attribution.AttributedRow, opts QueryOptions, groupFn func(attribution.AttributedRow) string) []GroupSummary {
	type appCounter struct {
		group string
		count int
		seen  map[string]struct{}
	}

	perApp := make(map[string]*appCounter)
	for _, row := range rows {
		c, ok := perApp[row.AppID]
		if !ok {
			c = &appCounter{group: groupFn(row), seen: make(map[string]struct{})}
			perApp[row.AppID] = c
		}
		if opts.Distinct {
			c.seen[row.Hostname] = struct{}{}
		} else {
			c.count++
		}
	}

	grouped := make(map[string][]float64)
	for _, c := range perApp {
		v := float64(c.count)
		if opts.Distinct {
			v = float64(len(c.seen))
		}
		grouped[c.group] = append(grouped[c.group], v)
	}

	return summarizeGroups(grouped)
}

// groupByCompany 按 (应用, 公司) 累积引用数，再按公司映射分组
func (ag *Aggregator) groupByCompany(rows []attribution.AttributedRow, opts QueryOptions, groupFn func(company string) string) []GroupSummary {
	type pairCounter struct {
		group string
		count int
		seen  map[string]struct{}
	}

	perPair := make(map[string]*pairCounter)
	for _, row := range rows {
		key := row.AppID + "\x00" + row.Company
		c, ok := perPair[key]
		if !ok {
			c = &pairCounter{group: groupFn(row.Company), seen: make(map[string]struct{})}
			perPair[key] = c
		}
		if opts.Distinct {
			c.seen[row.Hostname] = struct{}{}
		} else {
			c.count++
		}
	}

	grouped := make(map[string][]float64)
	for _, c := range perPair {
		v := float64(c.count)
		if opts.Distinct {
			v = float64(len(c.seen))
		}
		grouped[c.group] = append(grouped[c.group], v)
	}

	return summarizeGroups(grouped)
}

// summarizeGroups 对每个分组计算汇总，组名排序保证输出确定性
func summarizeGroups(grouped map[string][]float64) []GroupSummary {
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]GroupSummary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, GroupSummary{
			Group:   name,
			Summary: Summarize(grouped[name]),
		})
	}

	return summaries
}
