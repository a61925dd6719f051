package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestLog 一次API请求的记录
type RequestLog struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID      string         `gorm:"size:64;index" json:"trace_id"`
	Method       string         `gorm:"size:10;not null;index" json:"method"`
	Path         string         `gorm:"size:512;not null;index" json:"path"`
	Route        string         `gorm:"size:256" json:"route,omitempty"` // 路由模板，例如 /api/collections/:name
	Query        datatypes.JSON `gorm:"type:json" json:"query,omitempty"`
	Status       int            `gorm:"not null;index" json:"status"`
	LatencyMs    float64        `gorm:"not null" json:"latency_ms"`
	ClientIP     string         `gorm:"size:64" json:"client_ip"`
	UserAgent    string         `gorm:"size:256" json:"user_agent,omitempty"`
	RequestSize  int64          `json:"request_size"`
	ResponseSize int            `json:"response_size"`
	Error        string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (l *RequestLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (RequestLog) TableName() string {
	return "request_logs"
}

// StatusClass 状态码分类，例如 404 -> "4xx"
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return string(rune('0'+status/100)) + "xx"
}

// RequestLogFilter 请求日志筛选条件，零值表示不过滤
type RequestLogFilter struct {
	Method      string // 精确匹配，不区分大小写
	PathPrefix  string // 路径前缀
	StatusClass string // "2xx"、"4xx" 等
}

// Match 判断记录是否满足筛选条件
func (f RequestLogFilter) Match(l *RequestLog) bool {
	if f.Method != "" && !strings.EqualFold(f.Method, l.Method) {
		return false
	}
	if f.PathPrefix != "" && !strings.HasPrefix(l.Path, f.PathPrefix) {
		return false
	}
	if f.StatusClass != "" && StatusClass(l.Status) != f.StatusClass {
		return false
	}
	return true
}

// Validate 校验筛选条件
func (f RequestLogFilter) Validate() error {
	switch f.StatusClass {
	case "", "1xx", "2xx", "3xx", "4xx", "5xx":
		return nil
	default:
		return ErrInvalidStatusClass
	}
}

// RequestLogStats 请求日志统计
type RequestLogStats struct {
	Total         int64            `json:"total"`
	ByStatusClass map[string]int64 `json:"by_status_class"`
	ByMethod      map[string]int64 `json:"by_method"`
	AvgLatencyMs  float64          `json:"avg_latency_ms"`
	MaxLatencyMs  float64          `json:"max_latency_ms"`
	ErrorRate     float64          `json:"error_rate"` // 4xx与5xx占比
	Oldest        *time.Time       `json:"oldest,omitempty"`
	Newest        *time.Time       `json:"newest,omitempty"`
}

// NewRequestLogStats 创建空的统计结果
func NewRequestLogStats() *RequestLogStats {
	return &RequestLogStats{
		ByStatusClass: make(map[string]int64),
		ByMethod:      make(map[string]int64),
	}
}
