package repository

import "github.com/fyerfyer/chroma-admin/internal/models"

// RequestLogRepository 请求日志仓储接口
type RequestLogRepository interface {
	// Save 保存一条记录，ID由仓储分配
	Save(log *models.RequestLog) error

	// List 按时间倒序返回最多limit条满足筛选条件的记录
	List(limit int, filter models.RequestLogFilter) ([]*models.RequestLog, error)

	// Stats 统计全部保留的记录
	Stats() (*models.RequestLogStats, error)

	// Count 当前保留的记录数
	Count() (int64, error)

	// Clear 清空记录
	Clear() error
}

// accumulate 把一条记录计入统计结果，用于内存实现
func accumulate(stats *models.RequestLogStats, l *models.RequestLog, latencySum *float64) {
	stats.Total++
	stats.ByStatusClass[models.StatusClass(l.Status)]++
	stats.ByMethod[l.Method]++
	*latencySum += l.LatencyMs
	if l.LatencyMs > stats.MaxLatencyMs {
		stats.MaxLatencyMs = l.LatencyMs
	}
	created := l.CreatedAt
	if stats.Oldest == nil || created.Before(*stats.Oldest) {
		stats.Oldest = &created
	}
	if stats.Newest == nil || created.After(*stats.Newest) {
		stats.Newest = &created
	}
}

// finalize 计算平均值与错误率
func finalize(stats *models.RequestLogStats, latencySum float64) {
	if stats.Total == 0 {
		return
	}
	stats.AvgLatencyMs = latencySum / float64(stats.Total)
	errCount := stats.ByStatusClass["4xx"] + stats.ByStatusClass["5xx"]
	stats.ErrorRate = float64(errCount) / float64(stats.Total)
}
