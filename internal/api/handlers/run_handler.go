package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
	"github.com/tracker-census/tracker-census-go/internal/domain"
	"github.com/tracker-census/tracker-census-go/internal/export"
	"github.com/tracker-census/tracker-census-go/internal/repository"
	"gorm.io/gorm"
)

// RunSubmitter 把已创建的执行排进处理管道（worker 池或消息队列）
type RunSubmitter func(ctx context.Context, runID, crawl string) error

// RunHandler 归因执行管理 API
type RunHandler struct {
	runRepo         repository.RunRepository
	attributionRepo repository.AttributionRepository
	submit          RunSubmitter
	logger          *logrus.Logger
}

// NewRunHandler 创建执行处理器
func NewRunHandler(runRepo repository.RunRepository, attributionRepo repository.AttributionRepository, submit RunSubmitter, logger *logrus.Logger) *RunHandler {
	return &RunHandler{
		runRepo:         runRepo,
		attributionRepo: attributionRepo,
		submit:          submit,
		logger:          logger,
	}
}

type createRunRequest struct {
	Crawl string `json:"crawl" binding:"required"`
}

// CreateRun POST /api/runs 创建并排队一次归因执行
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Crawl != domain.Crawl2017 && req.Crawl != domain.Crawl2020 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown crawl %q, expected %s or %s", req.Crawl, domain.Crawl2017, domain.Crawl2020),
		})
		return
	}

	run := &domain.AttributionRun{
		ID:     uuid.New().String(),
		Crawl:  req.Crawl,
		Status: domain.RunStatusQueued,
	}

	if err := h.runRepo.Create(c.Request.Context(), run); err != nil {
		h.logger.WithError(err).Error("Failed to create run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create run"})
		return
	}

	if err := h.submit(c.Request.Context(), run.ID, run.Crawl); err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to enqueue run")
		if markErr := h.runRepo.MarkFailed(c.Request.Context(), run.ID, err.Error()); markErr != nil {
			h.logger.WithError(markErr).Error("Failed to mark run failed")
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue run"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"crawl":  run.Crawl,
	}).Info("Attribution run queued")

	c.JSON(http.StatusAccepted, run)
}

// ListRuns GET /api/runs 按创建时间倒序列出执行
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}

	runs, err := h.runRepo.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRun GET /api/runs/:id 查询单次执行
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.runRepo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// GetLookup GET /api/runs/:id/lookup 返回冻结的 hostname → company 查找表
func (h *RunHandler) GetLookup(c *gin.Context) {
	runID := c.Param("id")

	if _, err := h.requireCompletedRun(c, runID); err != nil {
		return
	}

	lookup, err := h.attributionRepo.GetLookup(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load lookup"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":  runID,
		"entries": lookup,
		"count":   len(lookup),
	})
}

// ExportRun GET /api/runs/:id/export 以 CSV 下载长格式归因表
// 行序与输入观测一致，重复导出逐字节相同
func (h *RunHandler) ExportRun(c *gin.Context) {
	runID := c.Param("id")

	run, err := h.requireCompletedRun(c, runID)
	if err != nil {
		return
	}

	stored, err := h.attributionRepo.ListRows(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rows"})
		return
	}

	rows := make([]attribution.AttributedRow, len(stored))
	for i, r := range stored {
		rows[i] = attribution.AttributedRow{AppID: r.AppID, Hostname: r.Hostname, Company: r.Company}
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=attributed_hosts_%s_%s.csv", run.Crawl, runID))

	if err := export.NewWriter(h.logger).Write(c.Writer, rows); err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to stream export")
	}
}

// requireCompletedRun 加载执行并要求其已完成，否则写出错误响应
func (h *RunHandler) requireCompletedRun(c *gin.Context, runID string) (*domain.AttributionRun, error) {
	run, err := h.runRepo.FindByID(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return nil, err
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return nil, err
	}

	if run.Status != domain.RunStatusCompleted {
		err := fmt.Errorf("run is %s", run.Status)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return nil, err
	}

	return run, nil
}
