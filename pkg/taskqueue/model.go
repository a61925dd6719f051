package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskImportRecords 批量导入记录
	TaskImportRecords TaskType = "import_records"
	// TaskImportURL 抓取网页并导入
	TaskImportURL TaskType = "import_url"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Finished 任务是否已结束
func (s TaskStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	Collection  string          `json:"collection"`   // 目标集合
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷，结构由任务类型决定
	Result      json.RawMessage `json:"result"`       // 任务结果
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// ChunkingPayload 分块参数，字段名与HTTP接口一致
type ChunkingPayload struct {
	Mode      string `json:"mode"`
	ChunkSize int    `json:"chunk_size"`
	Overlap   *int   `json:"overlap,omitempty"` // nil表示取默认值
}

// RecordPayload 单条待导入记录
type RecordPayload struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ImportRecordsPayload 批量导入任务载荷
type ImportRecordsPayload struct {
	Collection string           `json:"collection"`
	Records    []RecordPayload  `json:"records"`
	Chunking   *ChunkingPayload `json:"chunking,omitempty"`
	Upsert     bool             `json:"upsert,omitempty"` // 已存在的ID覆盖写入
}

// ImportURLPayload 网页导入任务载荷
type ImportURLPayload struct {
	Collection string                 `json:"collection"`
	URL        string                 `json:"url"`
	ID         string                 `json:"id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Chunking   *ChunkingPayload       `json:"chunking,omitempty"`
	Upsert     bool                   `json:"upsert,omitempty"`
}

// ImportResult 导入任务结果
type ImportResult struct {
	Collection string   `json:"collection"`
	Records    int      `json:"records"`   // 输入记录数
	Documents  int      `json:"documents"` // 实际写入的文档数（含分块）
	IDs        []string `json:"ids,omitempty"`
}

// TaskInfo 返回给客户端的任务信息
type TaskInfo struct {
	ID          string          `json:"id"`
	Type        TaskType        `json:"type"`
	Collection  string          `json:"collection"`
	Status      TaskStatus      `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Progress    float64         `json:"progress"` // 处理进度（0-100）
}

// NewTaskInfo 从Task创建TaskInfo
func NewTaskInfo(task *Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		Collection:  task.Collection,
		Status:      task.Status,
		Result:      task.Result,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Progress:    getTaskProgress(task),
	}
}

// getTaskProgress 根据任务状态计算进度
func getTaskProgress(task *Task) float64 {
	switch task.Status {
	case StatusProcessing:
		return 50.0
	case StatusCompleted, StatusFailed:
		return 100.0
	default:
		return 0.0
	}
}

// ErrTaskNotFound 任务未找到错误
var ErrTaskNotFound = TaskError("task not found")

// ErrInvalidPayload 无效的任务载荷错误
var ErrInvalidPayload = TaskError("invalid task payload")

// TaskError 任务错误类型
type TaskError string

// Error 实现error接口
func (e TaskError) Error() string {
	return string(e)
}

// MarshalPayload 将任务载荷序列化为JSON
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 将JSON反序列化为任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	return json.Unmarshal(data, v)
}
