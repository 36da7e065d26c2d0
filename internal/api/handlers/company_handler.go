package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/repository"
	"github.com/tracker-census/tracker-census-go/internal/stats"
	"gorm.io/gorm"
)

// CompanyHandler 公司域名注册表 API
type CompanyHandler struct {
	companyRepo repository.CompanyRepository
	logger      *logrus.Logger
}

// NewCompanyHandler 创建公司处理器
func NewCompanyHandler(companyRepo repository.CompanyRepository, logger *logrus.Logger) *CompanyHandler {
	return &CompanyHandler{companyRepo: companyRepo, logger: logger}
}

type companyView struct {
	Name       string   `json:"name"`
	Country    string   `json:"country,omitempty"`
	RootParent string   `json:"root_parent,omitempty"`
	LeafParent string   `json:"leaf_parent"`
	Domains    []string `json:"domains"`
}

func toCompanyView(c domain.Company) companyView {
	domains := make([]string, 0, len(c.Domains))
	for _, d := range c.Domains {
		domains = append(domains, d.Domain)
	}
	return companyView{
		Name:       c.Name,
		Country:    c.Country,
		RootParent: c.RootParent,
		LeafParent: c.LeafParent(),
		Domains:    domains,
	}
}

// ListCompanies GET /api/companies 按注册表顺序列出公司
func (h *CompanyHandler) ListCompanies(c *gin.Context) {
	companies, err := h.companyRepo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list companies"})
		return
	}

	views := make([]companyView, 0, len(companies))
	for _, company := range companies {
		views = append(views, toCompanyView(company))
	}

	c.JSON(http.StatusOK, gin.H{"companies": views, "count": len(views)})
}

// GetCompany GET /api/companies/:name 查询单个公司
func (h *CompanyHandler) GetCompany(c *gin.Context) {
	company, err := h.companyRepo.FindByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "company not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load company"})
		return
	}

	c.JSON(http.StatusOK, toCompanyView(*company))
}

// GetStatistics GET /api/companies/statistics 注册表统计
// 返回公司数与每公司域名数的分布
func (h *CompanyHandler) GetStatistics(c *gin.Context) {
	companies, err := h.companyRepo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list companies"})
		return
	}

	domainCounts := make([]float64, 0, len(companies))
	totalDomains := 0
	countries := make(map[string]int)
	for _, company := range companies {
		domainCounts = append(domainCounts, float64(len(company.Domains)))
		totalDomains += len(company.Domains)
		if company.Country != "" {
			countries[company.Country]++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"companies":           len(companies),
		"domains":             totalDomains,
		"countries":           countries,
		"domains_per_company": stats.Summarize(domainCounts),
	})
}
