package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func setupRunRouter(t *testing.T, submit RunSubmitter) (*gin.Engine, repository.RunRepository, repository.AttributionRepository) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.AttributionRun{},
		&domain.HostLookupEntry{},
		&domain.AttributedHost{},
	))

	logger := testLogger()
	runRepo := repository.NewRunRepository(db, logger)
	attributionRepo := repository.NewAttributionRepository(db, logger)

	if submit == nil {
		submit = func(ctx context.Context, runID, crawl string) error { return nil }
	}
	handler := NewRunHandler(runRepo, attributionRepo, submit, logger)

	r := gin.New()
	r.POST("/api/runs", handler.CreateRun)
	r.GET("/api/runs/:id", handler.GetRun)
	r.GET("/api/runs/:id/export", handler.ExportRun)
	r.GET("/api/runs/:id/lookup", handler.GetLookup)

	return r, runRepo, attributionRepo
}

// TestCreateRun 测试创建执行
func TestCreateRun(t *testing.T) {
	r, runRepo, _ := setupRunRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"crawl":"2017"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var run domain.AttributionRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.Crawl2017, run.Crawl)

	stored, err := runRepo.FindByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, stored.Status)
}

// TestCreateRun_InvalidCrawl 测试非法快照标签
func TestCreateRun_InvalidCrawl(t *testing.T) {
	r, _, _ := setupRunRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"crawl":"2019"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestGetRun_NotFound 测试查询不存在的执行
func TestGetRun_NotFound(t *testing.T) {
	r, _, _ := setupRunRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestExportRun 测试 CSV 导出内容与顺序
func TestExportRun(t *testing.T) {
	r, runRepo, attributionRepo := setupRunRouter(t, nil)
	ctx := context.Background()

	require.NoError(t, runRepo.Create(ctx, &domain.AttributionRun{ID: "run-001", Crawl: domain.Crawl2017}))
	require.NoError(t, runRepo.MarkCompleted(ctx, "run-001", repository.RunStats{RowCount: 2}))
	require.NoError(t, attributionRepo.SaveResult(ctx, "run-001",
		[]domain.HostLookupEntry{{Hostname: "x.tracker.com", Company: "OwnerA"}},
		[]domain.AttributedHost{
			{Crawl: domain.Crawl2017, Seq: 0, AppID: "app1", Hostname: "x.tracker.com", Company: "OwnerA"},
			{Crawl: domain.Crawl2017, Seq: 1, AppID: "app2", Hostname: "y.org", Company: "unknown"},
		},
	))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-001/export", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	expected := "app_id,hostname,company\n" +
		"app1,x.tracker.com,OwnerA\n" +
		"app2,y.org,unknown\n"
	assert.Equal(t, expected, w.Body.String())
}

// TestExportRun_NotCompleted 测试未完成执行拒绝导出
func TestExportRun_NotCompleted(t *testing.T) {
	r, runRepo, _ := setupRunRouter(t, nil)
	ctx := context.Background()

	require.NoError(t, runRepo.Create(ctx, &domain.AttributionRun{ID: "run-002", Crawl: domain.Crawl2017}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-002/export", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// TestGetLookup 测试查找表查询
func TestGetLookup(t *testing.T) {
	r, runRepo, attributionRepo := setupRunRouter(t, nil)
	ctx := context.Background()

	require.NoError(t, runRepo.Create(ctx, &domain.AttributionRun{ID: "run-003", Crawl: domain.Crawl2020}))
	require.NoError(t, runRepo.MarkCompleted(ctx, "run-003", repository.RunStats{}))
	require.NoError(t, attributionRepo.SaveResult(ctx, "run-003",
		[]domain.HostLookupEntry{{Hostname: "a.com", Company: "OwnerA"}}, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-003/lookup", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RunID   string            `json:"run_id"`
		Entries map[string]string `json:"entries"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "OwnerA", resp.Entries["a.com"])
}
