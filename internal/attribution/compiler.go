package attribution

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// RegistryEntry 注册表中的一条记录：所有者及其持有的域名
// 切片顺序即注册表原始顺序，用于同长度模式的稳定排序
type RegistryEntry struct {
	Owner   string
	Domains []string
}

// CompiledPattern 编译后的域名匹配模式
// 匹配语义：域名出现在 hostname 开头或紧跟一个字面点之后，
// 且匹配位置之后不能紧跟字母或另一个点
// （防止 adtracker.com 误匹配 notadtracker.com 或 adtracker.community）
type CompiledPattern struct {
	Owner        string
	SourceDomain string
	matcher      *regexp.Regexp
}

// Match 判断 hostname 是否命中该模式
func (p *CompiledPattern) Match(hostname string) bool {
	return p.matcher.MatchString(hostname)
}

// compile 将单个域名编译为锚定标签边界的匹配模式
// 域名中的点是字面字符，不是通配符
func compile(owner, domain string) CompiledPattern {
	expr := `(^|\.)` + regexp.QuoteMeta(domain) + `([^A-Za-z.]|$)`
	return CompiledPattern{
		Owner:        owner,
		SourceDomain: domain,
		matcher:      regexp.MustCompile(expr),
	}
}

// CompilePatterns 将注册表编译为模式列表
// 每个 (owner, domain) 对产生一个模式；空白域名跳过，不视为错误
func CompilePatterns(registry []RegistryEntry, logger *logrus.Logger) []CompiledPattern {
	patterns := make([]CompiledPattern, 0, len(registry))

	skipped := 0
	for _, entry := range registry {
		for _, raw := range entry.Domains {
			domain := strings.ToLower(strings.TrimSpace(raw))
			if domain == "" {
				skipped++
				logger.WithField("owner", entry.Owner).Debug("Skipping empty domain entry")
				continue
			}
			patterns = append(patterns, compile(entry.Owner, domain))
		}
	}

	logger.WithFields(logrus.Fields{
		"owners":   len(registry),
		"patterns": len(patterns),
		"skipped":  skipped,
	}).Info("Domain patterns compiled")

	return patterns
}
