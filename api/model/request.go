package model

import (
	"mime/multipart"

	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/internal/services"
)

// ChunkingRequest 分块参数
// Overlap为指针，以区分未提供（默认50）与显式的0
type ChunkingRequest struct {
	Mode      string `form:"mode" json:"mode" binding:"omitempty,oneof=semantic configurable"`
	ChunkSize int    `form:"chunk_size" json:"chunk_size" binding:"omitempty,min=1"`
	Overlap   *int   `form:"overlap" json:"overlap" binding:"omitempty,min=0"`
}

// ToOptions 转换为分块配置，未提供的字段取默认值
func (r *ChunkingRequest) ToOptions() *document.ChunkOptions {
	if r == nil {
		return nil
	}
	opts := document.ChunkOptions{
		Mode:      document.ChunkMode(r.Mode),
		ChunkSize: r.ChunkSize,
	}
	if r.Overlap != nil {
		opts.Overlap = document.OverlapOf(*r.Overlap)
	}
	opts = opts.Normalize()
	return &opts
}

// CollectionNameURI 集合名路径参数
type CollectionNameURI struct {
	Name string `uri:"name" binding:"required"`
}

// DocumentURI 文档路径参数
type DocumentURI struct {
	Name string `uri:"name" binding:"required"`
	ID   string `uri:"id" binding:"required"`
}

// CreateCollectionRequest 创建集合请求
type CreateCollectionRequest struct {
	Name        string                 `json:"name" binding:"required,max=63"`
	Metadata    map[string]interface{} `json:"metadata"`
	GetOrCreate bool                   `json:"get_or_create"`
}

// ListDocumentsRequest 文档列表请求
type ListDocumentsRequest struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Where  string `form:"where"` // JSON编码的元数据过滤条件
}

// AddDocumentRequest 新增文档请求
type AddDocumentRequest struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
	Chunking *ChunkingRequest       `json:"chunking"`
}

// UpdateDocumentRequest 更新文档请求，text与metadata至少提供一个
type UpdateDocumentRequest struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DeleteDocumentsRequest 批量删除请求
type DeleteDocumentsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,required"`
}

// QueryRequest 相似度查询请求
type QueryRequest struct {
	QueryTexts    []string               `json:"query_texts" binding:"required,min=1"`
	NResults      int                    `json:"n_results" binding:"omitempty,min=1"`
	Where         map[string]interface{} `json:"where"`
	WhereDocument map[string]interface{} `json:"where_document"`
	Include       []string               `json:"include" binding:"omitempty,dive,oneof=documents metadatas distances embeddings"`
}

// RecordRequest 导入记录
type RecordRequest struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ImportRecordsRequest 导入JSON记录请求
type ImportRecordsRequest struct {
	Records  []RecordRequest  `json:"records" binding:"required,min=1,dive"`
	Chunking *ChunkingRequest `json:"chunking"`
	Upsert   bool             `json:"upsert"` // 已存在的ID覆盖写入
}

// ToRecords 转换为服务层记录
func (r *ImportRecordsRequest) ToRecords() []services.Record {
	records := make([]services.Record, len(r.Records))
	for i, rec := range r.Records {
		records[i] = services.Record{ID: rec.ID, Text: rec.Text, Metadata: rec.Metadata}
	}
	return records
}

// ImportURLRequest 导入网页请求
type ImportURLRequest struct {
	URL      string                 `json:"url" binding:"required,url"`
	ID       string                 `json:"id"`
	Metadata map[string]interface{} `json:"metadata"`
	Chunking *ChunkingRequest       `json:"chunking"`
	Upsert   bool                   `json:"upsert"`
}

// ImportFileRequest 文件导入请求（multipart）
// 提供mode、chunk_size或overlap任一字段时启用分块
type ImportFileRequest struct {
	File      *multipart.FileHeader `form:"file" binding:"required"`
	Mode      string                `form:"mode" binding:"omitempty,oneof=semantic configurable"`
	ChunkSize int                   `form:"chunk_size" binding:"omitempty,min=1"`
	Overlap   *int                  `form:"overlap" binding:"omitempty,min=0"`
	Metadata  string                `form:"metadata"` // JSON对象
	Upsert    bool                  `form:"upsert"`
}

// Chunking 文件导入的分块参数，未提供任何字段时返回nil
func (r *ImportFileRequest) Chunking() *document.ChunkOptions {
	if r.Mode == "" && r.ChunkSize == 0 && r.Overlap == nil {
		return nil
	}
	return (&ChunkingRequest{Mode: r.Mode, ChunkSize: r.ChunkSize, Overlap: r.Overlap}).ToOptions()
}

// AsyncQuery 是否异步执行
type AsyncQuery struct {
	Async bool `form:"async"`
}

// ExportRequest 导出请求
type ExportRequest struct {
	Format string `form:"format" binding:"omitempty,oneof=json csv"`
	Save   bool   `form:"save"`
}

// ChunkPreviewRequest 分块预览请求
type ChunkPreviewRequest struct {
	Text     string                 `json:"text"`
	BaseID   string                 `json:"base_id"`
	Metadata map[string]interface{} `json:"metadata"`
	ChunkingRequest
}

// AnalyticsRequest 统计查询参数
type AnalyticsRequest struct {
	Refresh bool `form:"refresh"`
}

// RequestLogQuery 请求日志查询参数
type RequestLogQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
	Method string `form:"method" binding:"omitempty,alpha"`
	Path   string `form:"path"`
	Status string `form:"status"` // 2xx、4xx 等
}
