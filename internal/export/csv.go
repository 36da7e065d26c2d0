package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
)

// 长格式导出文件的固定表头
var longFormatHeader = []string{"app_id", "hostname", "company"}

// Writer 长格式归因表 CSV 导出器
// 行序与输入一致、表头固定，相同输入可逐字节重建导出文件
type Writer struct {
	logger *logrus.Logger
}

// NewWriter 创建导出器
func NewWriter(logger *logrus.Logger) *Writer {
	return &Writer{logger: logger}
}

// WriteFile 导出长格式表到文件，目录不存在时创建
func (w *Writer) WriteFile(path string, rows []attribution.AttributedRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := w.Write(f, rows); err != nil {
		return fmt.Errorf("failed to write export file %s: %w", path, err)
	}

	w.logger.WithFields(logrus.Fields{
		"path": path,
		"rows": len(rows),
	}).Info("Long-format table exported")

	return nil
}

// Write 导出长格式表到流
func (w *Writer) Write(out io.Writer, rows []attribution.AttributedRow) error {
	writer := csv.NewWriter(out)

	if err := writer.Write(longFormatHeader); err != nil {
		return err
	}

	for _, row := range rows {
		if err := writer.Write([]string{row.AppID, row.Hostname, row.Company}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
