package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/internal/embedding"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBatchSize 单次写入远程服务的记录数
	DefaultBatchSize = 100
	// DefaultPageLimit 文档列表默认分页大小
	DefaultPageLimit = 20
	// MaxPageLimit 文档列表最大分页大小
	MaxPageLimit = 500
)

// Record 待写入的一条文档
type Record struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentRecord 集合中的一条文档
type DocumentRecord struct {
	ID       string                 `json:"id"`
	Document string                 `json:"document"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DocumentPage 文档分页结果
type DocumentPage struct {
	Collection string           `json:"collection"`
	Documents  []DocumentRecord `json:"documents"`
	Total      int              `json:"total"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// AddDocumentInput 新增文档参数
// Chunking不为空时按分块写入，ID作为父文档ID
type AddDocumentInput struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
	Chunking *document.ChunkOptions
}

// AddResult 写入结果
type AddResult struct {
	Collection string   `json:"collection"`
	Records    int      `json:"records"`   // 输入记录数
	Documents  int      `json:"documents"` // 实际写入的文档数
	IDs        []string `json:"ids"`
}

// ImportOption 写入选项
type ImportOption func(*importConfig)

type importConfig struct {
	upsert bool
}

// WithUpsert 为true时已存在的ID被覆盖，重复导入同一批记录结果不变
func WithUpsert(enabled bool) ImportOption {
	return func(c *importConfig) {
		c.upsert = enabled
	}
}

func newImportConfig(opts []ImportOption) importConfig {
	var c importConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// maxReportedIDs 错误信息中最多列出的ID数
const maxReportedIDs = 20

// PartialWriteError 部分批次写入成功后失败
// Written为已经写入远程集合的ID，这些文档不会回滚
type PartialWriteError struct {
	Collection string
	Written    []string
	Err        error
}

func (e *PartialWriteError) Error() string {
	ids := e.Written
	suffix := ""
	if len(ids) > maxReportedIDs {
		ids = ids[:maxReportedIDs]
		suffix = ", ..."
	}
	return fmt.Sprintf("wrote %d documents to %s before failure (ids: %s%s): %v",
		len(e.Written), e.Collection, strings.Join(ids, ", "), suffix, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// DocumentService 文档服务
// 负责分块、向量化与写入远程集合
type DocumentService struct {
	client      chroma.Client
	embedder    embedding.Client
	invalidator Invalidator
	batchSize   int
	workers     int
	logger      *logrus.Logger
}

// NewDocumentService 创建文档服务
func NewDocumentService(client chroma.Client, opts ...Option) *DocumentService {
	o := newOptions(opts)
	return &DocumentService{
		client:      client,
		embedder:    o.embedder,
		invalidator: o.invalidator,
		batchSize:   o.batchSize,
		workers:     o.workers,
		logger:      o.logger,
	}
}

// List 分页列出集合中的文档
func (s *DocumentService) List(ctx context.Context, collection string, limit, offset int, where map[string]interface{}) (*DocumentPage, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	col, err := s.client.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	result, err := s.client.Get(ctx, col.ID, chroma.GetRequest{
		Where:   where,
		Limit:   limit,
		Offset:  offset,
		Include: []chroma.Include{chroma.IncludeDocuments, chroma.IncludeMetadatas},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}

	total, err := s.client.Count(ctx, col.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	return &DocumentPage{
		Collection: col.Name,
		Documents:  toDocumentRecords(result),
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// Add 新增一条文档，可选分块
func (s *DocumentService) Add(ctx context.Context, collection string, in AddDocumentInput) (*AddResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	return s.AddRecords(ctx, collection, []Record{{ID: in.ID, Text: in.Text, Metadata: in.Metadata}}, in.Chunking)
}

// AddRecords 批量写入记录
// chunking为空时每条记录写为一个文档，否则每条记录展开为若干分块
// 某个批次失败时返回*PartialWriteError，其中列出此前已写入的ID
func (s *DocumentService) AddRecords(ctx context.Context, collection string, records []Record, chunking *document.ChunkOptions, opts ...ImportOption) (*AddResult, error) {
	cfg := newImportConfig(opts)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrInvalidInput)
	}
	if chunking != nil {
		if err := chunking.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	docs, err := expandRecords(records, chunking)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: all records are empty", ErrInvalidInput)
	}

	col, err := s.client.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	write := s.client.Add
	if cfg.upsert {
		write = s.client.Upsert
	}

	ids := make([]string, 0, len(docs))
	for start := 0; start < len(docs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		req, err := s.buildAddRequest(ctx, docs[start:end])
		if err == nil {
			if err = write(ctx, col.ID, req); err != nil {
				err = fmt.Errorf("failed to write documents %d-%d: %w", start, end, err)
			}
		}
		if err != nil {
			if len(ids) == 0 {
				return nil, err
			}
			s.logger.WithFields(logrus.Fields{
				"collection": col.Name,
				"written":    len(ids),
				"total":      len(docs),
			}).WithError(err).Warn("Document write stopped after partial success")
			invalidate(s.invalidator, s.logger)
			return nil, &PartialWriteError{Collection: col.Name, Written: ids, Err: err}
		}
		ids = append(ids, req.IDs...)
	}

	s.logger.WithFields(logrus.Fields{
		"collection": col.Name,
		"records":    len(records),
		"documents":  len(docs),
		"chunked":    chunking != nil,
		"upsert":     cfg.upsert,
	}).Info("Documents added")
	invalidate(s.invalidator, s.logger)

	return &AddResult{
		Collection: col.Name,
		Records:    len(records),
		Documents:  len(docs),
		IDs:        ids,
	}, nil
}

// Update 更新文档内容或元数据
func (s *DocumentService) Update(ctx context.Context, collection, id, text string, metadata map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" && metadata == nil {
		return fmt.Errorf("%w: text or metadata is required", ErrInvalidInput)
	}

	col, err := s.client.GetCollection(ctx, collection)
	if err != nil {
		return err
	}

	req := chroma.AddRequest{IDs: []string{id}}
	if strings.TrimSpace(text) != "" {
		req.Documents = []string{text}
		if s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("failed to embed document: %w", err)
			}
			req.Embeddings = [][]float32{vec}
		}
	}
	if metadata != nil {
		req.Metadatas = []map[string]interface{}{metadata}
	}

	if err := s.client.Update(ctx, col.ID, req); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	invalidate(s.invalidator, s.logger)
	return nil
}

// Delete 按ID删除文档
func (s *DocumentService) Delete(ctx context.Context, collection string, ids []string) ([]string, error) {
	ids = compact(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids are required", ErrInvalidInput)
	}

	col, err := s.client.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	deleted, err := s.client.Delete(ctx, col.ID, chroma.DeleteRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to delete documents: %w", err)
	}
	if len(deleted) == 0 {
		// 旧版本服务端不返回被删除的ID
		deleted = ids
	}

	s.logger.WithFields(logrus.Fields{
		"collection": col.Name,
		"count":      len(deleted),
	}).Info("Documents deleted")
	invalidate(s.invalidator, s.logger)
	return deleted, nil
}

// buildAddRequest 组装写入请求，配置了嵌入客户端时先计算向量
func (s *DocumentService) buildAddRequest(ctx context.Context, docs []document.ChunkedDocument) (chroma.AddRequest, error) {
	req := chroma.AddRequest{
		IDs:       make([]string, len(docs)),
		Documents: make([]string, len(docs)),
		Metadatas: make([]map[string]interface{}, len(docs)),
	}
	hasMeta := false
	for i, d := range docs {
		req.IDs[i] = d.ID
		req.Documents[i] = d.Text
		req.Metadatas[i] = d.Metadata
		hasMeta = hasMeta || d.Metadata != nil
	}
	if !hasMeta {
		req.Metadatas = nil
	}

	if s.embedder != nil {
		processor := embedding.NewBatchProcessor(s.embedder, 0, s.workers)
		vectors, err := processor.Process(ctx, req.Documents)
		if err != nil {
			return chroma.AddRequest{}, fmt.Errorf("failed to embed documents: %w", err)
		}
		req.Embeddings = vectors
	}
	return req, nil
}

// expandRecords 把记录展开为待写入的文档
func expandRecords(records []Record, chunking *document.ChunkOptions) ([]document.ChunkedDocument, error) {
	var docs []document.ChunkedDocument
	for i, r := range records {
		if strings.TrimSpace(r.Text) == "" {
			return nil, fmt.Errorf("%w: record %d has empty text", ErrInvalidInput, i)
		}
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}

		if chunking == nil {
			docs = append(docs, document.ChunkedDocument{
				ID:       id,
				Text:     r.Text,
				Metadata: nonNilMeta(r.Metadata),
			})
			continue
		}

		chunks, err := document.CreateChunkedDocuments(id, r.Text, *chunking, r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		docs = append(docs, chunks...)
	}
	return docs, nil
}

// nonNilMeta 远程服务不接受空元数据对象
func nonNilMeta(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	return m
}

func toDocumentRecords(result *chroma.GetResult) []DocumentRecord {
	records := make([]DocumentRecord, len(result.IDs))
	for i, id := range result.IDs {
		records[i] = DocumentRecord{ID: id}
		if i < len(result.Documents) {
			records[i].Document = result.Documents[i]
		}
		if i < len(result.Metadatas) {
			records[i].Metadata = result.Metadatas[i]
		}
	}
	return records
}

// compact 去除空白ID与重复ID，保持顺序
func compact(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
