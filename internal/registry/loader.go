package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
	"github.com/tracker-census/tracker-census-go/internal/domain"
)

// 注册表 CSV 列: company,country,root_parent,domains
// domains 列内多个域名用 | 分隔，允许为空（空域名在编译阶段被过滤）
const (
	colCompany    = 0
	colCountry    = 1
	colRootParent = 2
	colDomains    = 3

	registryColumns  = 4
	domainsSeparator = "|"
)

// Loader 公司域名注册表加载器
type Loader struct {
	logger *logrus.Logger
}

// NewLoader 创建注册表加载器
func NewLoader(logger *logrus.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadFile 从 CSV 文件加载注册表
func (l *Loader) LoadFile(path string) ([]domain.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry file: %w", err)
	}
	defer f.Close()

	companies, err := l.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}

	return companies, nil
}

// Load 从 CSV 流加载注册表
// 首行为表头。country 统一大写，root_parent 可为空。
// 同名公司重复出现时合并其域名，保留首次出现的国家与母公司字段。
func (l *Loader) Load(r io.Reader) ([]domain.Company, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = registryColumns

	// 跳过表头
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	companies := make([]domain.Company, 0)
	index := make(map[string]int)

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		line++

		name := strings.TrimSpace(record[colCompany])
		if name == "" {
			l.logger.WithField("line", line).Warn("Skipping registry row with empty company name")
			continue
		}

		i, exists := index[name]
		if !exists {
			companies = append(companies, domain.Company{
				Name:       name,
				Country:    strings.ToUpper(strings.TrimSpace(record[colCountry])),
				RootParent: strings.TrimSpace(record[colRootParent]),
			})
			i = len(companies) - 1
			index[name] = i
		}

		for _, d := range strings.Split(record[colDomains], domainsSeparator) {
			companies[i].Domains = append(companies[i].Domains, domain.CompanyDomain{
				Domain:   strings.TrimSpace(d),
				Position: len(companies[i].Domains),
			})
		}
	}

	l.logger.WithField("companies", len(companies)).Info("Company domain registry loaded")

	return companies, nil
}

// ToRegistryEntries 转换为归因流水线的输入格式，保留注册表顺序
func ToRegistryEntries(companies []domain.Company) []attribution.RegistryEntry {
	entries := make([]attribution.RegistryEntry, 0, len(companies))

	for _, c := range companies {
		domains := make([]string, 0, len(c.Domains))
		for _, d := range c.Domains {
			domains = append(domains, d.Domain)
		}
		entries = append(entries, attribution.RegistryEntry{
			Owner:   c.Name,
			Domains: domains,
		})
	}

	return entries
}
