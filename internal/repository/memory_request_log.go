package repository

import (
	"sync"
	"time"

	"github.com/fyerfyer/chroma-admin/internal/models"
)

// DefaultRequestLogCapacity 内存环形缓冲区默认容量
const DefaultRequestLogCapacity = 1000

// memoryRequestLogRepository 固定容量的环形缓冲区，写满后覆盖最旧的记录
type memoryRequestLogRepository struct {
	mu       sync.RWMutex
	entries  []*models.RequestLog
	next     int  // 下一个写入位置
	full     bool // 是否已经写满过一轮
	sequence uint // 自增ID
}

// NewMemoryRequestLogRepository 创建内存请求日志仓储
func NewMemoryRequestLogRepository(capacity int) RequestLogRepository {
	if capacity <= 0 {
		capacity = DefaultRequestLogCapacity
	}
	return &memoryRequestLogRepository{
		entries: make([]*models.RequestLog, capacity),
	}
}

// Save 写入记录
func (r *memoryRequestLogRepository) Save(log *models.RequestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	log.ID = r.sequence
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	// 保存副本，调用方后续修改不影响缓冲区
	entry := *log
	r.entries[r.next] = &entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// List 从最新记录开始向前遍历
func (r *memoryRequestLogRepository) List(limit int, filter models.RequestLogFilter) ([]*models.RequestLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.size()
	if limit <= 0 || limit > size {
		limit = size
	}

	result := make([]*models.RequestLog, 0, limit)
	for i := 1; i <= size && len(result) < limit; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		entry := r.entries[idx]
		if filter.Match(entry) {
			copied := *entry
			result = append(result, &copied)
		}
	}
	return result, nil
}

// Stats 统计缓冲区内的记录
func (r *memoryRequestLogRepository) Stats() (*models.RequestLogStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := models.NewRequestLogStats()
	var latencySum float64
	for i := 0; i < r.size(); i++ {
		accumulate(stats, r.entries[i], &latencySum)
	}
	finalize(stats, latencySum)
	return stats, nil
}

// Count 当前记录数
func (r *memoryRequestLogRepository) Count() (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(r.size()), nil
}

// Clear 清空缓冲区，ID继续递增
func (r *memoryRequestLogRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		r.entries[i] = nil
	}
	r.next = 0
	r.full = false
	return nil
}

func (r *memoryRequestLogRepository) size() int {
	if r.full {
		return len(r.entries)
	}
	return r.next
}
