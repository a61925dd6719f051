package model

import (
	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/internal/models"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/fyerfyer/chroma-admin/pkg/storage"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// CollectionListResponse 集合列表响应
type CollectionListResponse struct {
	Total       int                          `json:"total"`
	Collections []services.CollectionSummary `json:"collections"`
}

// DeleteResponse 删除响应
type DeleteResponse struct {
	Success bool     `json:"success"`
	IDs     []string `json:"ids,omitempty"`
	Name    string   `json:"name,omitempty"`
}

// AsyncTaskResponse 异步任务已提交
type AsyncTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ChunkPreviewResponse 分块预览响应
type ChunkPreviewResponse struct {
	Options   document.ChunkOptions      `json:"options"`   // 补齐默认值后的分块配置
	Estimate  int                        `json:"estimate"`  // 估算块数（上界）
	Count     int                        `json:"count"`     // 实际块数
	Chunks    []document.Chunk           `json:"chunks"`    // 文本块
	Documents []document.ChunkedDocument `json:"documents"` // 附带溯源元数据的文档，未提供base_id时为空
}

// ExportListResponse 导出快照列表
type ExportListResponse struct {
	Total   int                `json:"total"`
	Exports []storage.FileInfo `json:"exports"`
}

// RequestLogListResponse 请求日志列表
type RequestLogListResponse struct {
	Total int                  `json:"total"`
	Logs  []*models.RequestLog `json:"logs"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status string                 `json:"status"`
	Chroma *services.HealthStatus `json:"chroma,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// WithData 附加响应数据
func (r *Response) WithData(data interface{}) *Response {
	r.Data = data
	return r
}
