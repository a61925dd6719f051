package repository

import (
	"errors"
	"strings"

	"github.com/fyerfyer/chroma-admin/internal/database"
	"github.com/fyerfyer/chroma-admin/internal/models"
	"gorm.io/gorm"
)

// pruneEvery 每写入多少条检查一次保留上限
const pruneEvery = 100

// requestLogRepository 基于GORM的请求日志仓储
type requestLogRepository struct {
	db        *gorm.DB // 数据库连接
	retention int      // 最多保留的记录数，0表示不限制
}

// NewRequestLogRepository 使用全局数据库连接创建仓储
func NewRequestLogRepository(retention int) RequestLogRepository {
	return NewRequestLogRepositoryWithDB(database.MustDB(), retention)
}

// NewRequestLogRepositoryWithDB 使用指定的数据库连接创建仓储
func NewRequestLogRepositoryWithDB(db *gorm.DB, retention int) RequestLogRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &requestLogRepository{db: db, retention: retention}
}

// Save 保存记录，超过保留上限时删除最旧的记录
func (r *requestLogRepository) Save(log *models.RequestLog) error {
	if log.Method == "" || log.Path == "" {
		return errors.New("request log method and path cannot be empty")
	}
	log.ID = 0
	if err := r.db.Create(log).Error; err != nil {
		return err
	}

	if r.retention > 0 && log.ID%pruneEvery == 0 {
		return r.prune(log.ID)
	}
	return nil
}

func (r *requestLogRepository) prune(latestID uint) error {
	if latestID <= uint(r.retention) {
		return nil
	}
	cutoff := latestID - uint(r.retention)
	return r.db.Where("id <= ?", cutoff).Delete(&models.RequestLog{}).Error
}

// List 按ID倒序查询
func (r *requestLogRepository) List(limit int, filter models.RequestLogFilter) ([]*models.RequestLog, error) {
	query := r.db.Model(&models.RequestLog{})

	if filter.Method != "" {
		query = query.Where("method = ?", strings.ToUpper(filter.Method))
	}
	if filter.PathPrefix != "" {
		query = query.Where("path LIKE ? ESCAPE '\\'", escapeLike(filter.PathPrefix)+"%")
	}
	if filter.StatusClass != "" {
		class := int(filter.StatusClass[0] - '0')
		query = query.Where("status >= ? AND status < ?", class*100, (class+1)*100)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []*models.RequestLog
	if err := query.Order("id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// Stats 使用聚合查询统计
func (r *requestLogRepository) Stats() (*models.RequestLogStats, error) {
	stats := models.NewRequestLogStats()

	var agg struct {
		Total      int64
		AvgLatency float64
		MaxLatency float64
	}
	if err := r.db.Model(&models.RequestLog{}).
		Select("COUNT(*) AS total, COALESCE(AVG(latency_ms), 0) AS avg_latency, COALESCE(MAX(latency_ms), 0) AS max_latency").
		Scan(&agg).Error; err != nil {
		return nil, err
	}
	stats.Total = agg.Total
	stats.AvgLatencyMs = agg.AvgLatency
	stats.MaxLatencyMs = agg.MaxLatency
	if stats.Total == 0 {
		return stats, nil
	}

	var byMethod []struct {
		Method string
		Count  int64
	}
	if err := r.db.Model(&models.RequestLog{}).
		Select("method, COUNT(*) AS count").Group("method").Scan(&byMethod).Error; err != nil {
		return nil, err
	}
	for _, row := range byMethod {
		stats.ByMethod[row.Method] = row.Count
	}

	var byStatus []struct {
		Status int
		Count  int64
	}
	if err := r.db.Model(&models.RequestLog{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	var errorCount int64
	for _, row := range byStatus {
		class := models.StatusClass(row.Status)
		stats.ByStatusClass[class] += row.Count
		if class == "4xx" || class == "5xx" {
			errorCount += row.Count
		}
	}
	stats.ErrorRate = float64(errorCount) / float64(stats.Total)

	var oldest, newest models.RequestLog
	if err := r.db.Order("id ASC").First(&oldest).Error; err == nil {
		stats.Oldest = &oldest.CreatedAt
	}
	if err := r.db.Order("id DESC").First(&newest).Error; err == nil {
		stats.Newest = &newest.CreatedAt
	}
	return stats, nil
}

// Count 记录总数
func (r *requestLogRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.RequestLog{}).Count(&count).Error
	return count, err
}

// Clear 删除全部记录
func (r *requestLogRepository) Clear() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.RequestLog{}).Error
}

// escapeLike 转义LIKE通配符
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
