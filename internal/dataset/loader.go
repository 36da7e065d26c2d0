package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tracker-census/tracker-census-go/internal/domain"
)

// Loader 抓取数据加载器：观测表、应用元数据、跨快照映射
type Loader struct {
	logger *logrus.Logger
}

// NewLoader 创建数据加载器
func NewLoader(logger *logrus.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadObservationsFile 从 CSV 文件加载 (app, host) 观测
// 列: app_id,hostname。重复行原样保留。
func (l *Loader) LoadObservationsFile(path, crawl string) ([]domain.HostObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open observations file: %w", err)
	}
	defer f.Close()

	obs, err := l.LoadObservations(f, crawl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse observations file %s: %w", path, err)
	}

	return obs, nil
}

// LoadObservations 从 CSV 流加载观测，保留输入顺序
func (l *Loader) LoadObservations(r io.Reader, crawl string) ([]domain.HostObservation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	observations := make([]domain.HostObservation, 0)
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

		observations = append(observations, domain.HostObservation{
			Crawl:    crawl,
			AppID:    strings.TrimSpace(record[0]),
			Hostname: record[1],
		})
	}

	l.logger.WithFields(logrus.Fields{
		"crawl": crawl,
		"rows":  len(observations),
	}).Info("Host observations loaded")

	return observations, nil
}

// LoadAppsFile 从 CSV 文件加载应用元数据
// 列: app_id,genre,super_genre
func (l *Loader) LoadAppsFile(path, crawl string) ([]domain.App, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open apps file: %w", err)
	}
	defer f.Close()

	apps, err := l.LoadApps(f, crawl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse apps file %s: %w", path, err)
	}

	return apps, nil
}

// LoadApps 从 CSV 流加载应用元数据
func (l *Loader) LoadApps(r io.Reader, crawl string) ([]domain.App, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	apps := make([]domain.App, 0)
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

		apps = append(apps, domain.App{
			AppID:      strings.TrimSpace(record[0]),
			Crawl:      crawl,
			Genre:      strings.TrimSpace(record[1]),
			SuperGenre: strings.TrimSpace(record[2]),
		})
	}

	l.logger.WithFields(logrus.Fields{
		"crawl": crawl,
		"apps":  len(apps),
	}).Info("App metadata loaded")

	return apps, nil
}

// LoadMappingsFile 从 CSV 文件加载跨快照应用标识映射
// 列: app_id_2017,app_id_2020
func (l *Loader) LoadMappingsFile(path string) ([]domain.AppIDMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mappings file: %w", err)
	}
	defer f.Close()

	mappings, err := l.LoadMappings(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mappings file %s: %w", path, err)
	}

	return mappings, nil
}

// LoadMappings 从 CSV 流加载跨快照映射
func (l *Loader) LoadMappings(r io.Reader) ([]domain.AppIDMapping, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	mappings := make([]domain.AppIDMapping, 0)
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

		mappings = append(mappings, domain.AppIDMapping{
			AppID2017: strings.TrimSpace(record[0]),
			AppID2020: strings.TrimSpace(record[1]),
		})
	}

	l.logger.WithField("mappings", len(mappings)).Info("Cross-crawl ID mappings loaded")

	return mappings, nil
}
