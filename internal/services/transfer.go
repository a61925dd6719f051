package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/pkg/storage"
	"github.com/fyerfyer/chroma-admin/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// ExportPageSize 导出时每页读取的记录数
const ExportPageSize = 500

// 导出格式
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// TransferService 导入导出服务
type TransferService struct {
	client    chroma.Client
	docs      *DocumentService
	storage   storage.Storage
	queue     taskqueue.Queue
	fetchOpts []document.FetchOption
	logger    *logrus.Logger
}

// NewTransferService 创建导入导出服务
func NewTransferService(client chroma.Client, docs *DocumentService, opts ...Option) *TransferService {
	o := newOptions(opts)
	return &TransferService{
		client:    client,
		docs:      docs,
		storage:   o.storage,
		queue:     o.queue,
		fetchOpts: o.fetchOpts,
		logger:    o.logger,
	}
}

// AsyncEnabled 是否配置了任务队列
func (s *TransferService) AsyncEnabled() bool {
	return s.queue != nil
}

// ImportRecords 导入记录
func (s *TransferService) ImportRecords(ctx context.Context, collection string, records []Record, chunking *document.ChunkOptions, opts ...ImportOption) (*AddResult, error) {
	return s.docs.AddRecords(ctx, collection, records, chunking, opts...)
}

// ImportFile 导入上传的文件
// json与csv按记录导入，其余类型解析为一个父文档后分块
func (s *TransferService) ImportFile(ctx context.Context, collection, filename string, r io.Reader, chunking *document.ChunkOptions, metadata map[string]interface{}, opts ...ImportOption) (*AddResult, error) {
	records, chunking, err := s.prepareFile(filename, r, chunking, metadata)
	if err != nil {
		return nil, err
	}
	return s.docs.AddRecords(ctx, collection, records, chunking, opts...)
}

// prepareFile 将上传文件转换为待导入记录
func (s *TransferService) prepareFile(filename string, r io.Reader, chunking *document.ChunkOptions, metadata map[string]interface{}) ([]Record, *document.ChunkOptions, error) {
	var records []Record
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		records, err = ParseJSONRecords(r)
	case ".csv":
		records, err = ParseCSVRecords(r, CSVOptions{})
	default:
		records, err = s.parseFile(filename, r, metadata)
		if chunking == nil {
			def := document.DefaultChunkOptions()
			chunking = &def
		}
		metadata = nil
	}
	if err != nil {
		return nil, nil, err
	}

	for i := range records {
		records[i].Metadata = mergeMeta(metadata, records[i].Metadata)
	}
	return records, chunking, nil
}

func (s *TransferService) parseFile(filename string, r io.Reader, metadata map[string]interface{}) ([]Record, error) {
	parser, err := document.ParserFactory(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	text, err := parser.ParseReader(r, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s contains no text", ErrInvalidInput, filename)
	}

	base := filepath.Base(filename)
	meta := mergeMeta(metadata, map[string]interface{}{
		"source":       base,
		"content_type": string(document.DetectContentType(base)),
	})
	return []Record{{
		ID:       strings.TrimSuffix(base, filepath.Ext(base)),
		Text:     text,
		Metadata: meta,
	}}, nil
}

// ImportURL 抓取网页并导入
func (s *TransferService) ImportURL(ctx context.Context, collection, rawURL, id string, chunking *document.ChunkOptions, metadata map[string]interface{}, opts ...ImportOption) (*AddResult, error) {
	doc, err := document.FetchURL(ctx, rawURL, s.fetchOpts...)
	if err != nil {
		if errors.Is(err, document.ErrInvalidURL) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}

	if chunking == nil {
		def := document.DefaultChunkOptions()
		chunking = &def
	}
	meta := mergeMeta(metadata, map[string]interface{}{
		"source_url": doc.Source,
		"title":      doc.Title,
	})
	return s.docs.AddRecords(ctx, collection, []Record{{ID: id, Text: doc.Content, Metadata: meta}}, chunking, opts...)
}

// Export 导出集合全部文档，返回导出条数
func (s *TransferService) Export(ctx context.Context, collection, format string, w io.Writer) (int, error) {
	format = strings.ToLower(defaultString(format, FormatJSON))
	if format != FormatJSON && format != FormatCSV {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	col, err := s.client.GetCollection(ctx, collection)
	if err != nil {
		return 0, err
	}

	var records []DocumentRecord
	for offset := 0; ; offset += ExportPageSize {
		result, err := s.client.Get(ctx, col.ID, chroma.GetRequest{
			Limit:   ExportPageSize,
			Offset:  offset,
			Include: []chroma.Include{chroma.IncludeDocuments, chroma.IncludeMetadatas},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to read documents at offset %d: %w", offset, err)
		}
		records = append(records, toDocumentRecords(result)...)
		if len(result.IDs) < ExportPageSize {
			break
		}
	}

	if format == FormatCSV {
		err = writeCSV(w, records)
	} else {
		if records == nil {
			records = []DocumentRecord{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(records)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to encode export: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"collection": col.Name,
		"format":     format,
		"count":      len(records),
	}).Info("Collection exported")
	return len(records), nil
}

func writeCSV(w io.Writer, records []DocumentRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "document", "metadata"}); err != nil {
		return err
	}
	for _, r := range records {
		meta := ""
		if len(r.Metadata) > 0 {
			b, err := json.Marshal(r.Metadata)
			if err != nil {
				return err
			}
			meta = string(b)
		}
		if err := cw.Write([]string{r.ID, r.Document, meta}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveExport 导出并保存快照
func (s *TransferService) SaveExport(ctx context.Context, collection, format string) (*storage.FileInfo, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	format = strings.ToLower(defaultString(format, FormatJSON))

	var buf bytes.Buffer
	if _, err := s.Export(ctx, collection, format, &buf); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s-%s.%s", collection, time.Now().Format("20060102-150405"), format)
	info, err := s.storage.Save(&buf, name)
	if err != nil {
		return nil, fmt.Errorf("failed to save export: %w", err)
	}
	return &info, nil
}

// ListExports 列出已保存的导出快照
func (s *TransferService) ListExports() ([]storage.FileInfo, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	return s.storage.List()
}

// OpenExport 打开导出快照，调用方负责关闭
func (s *TransferService) OpenExport(id string) (io.ReadCloser, *storage.FileInfo, error) {
	if s.storage == nil {
		return nil, nil, ErrStorageDisabled
	}
	info, err := s.storage.Stat(id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Get(id)
	if err != nil {
		return nil, nil, err
	}
	return rc, &info, nil
}

// DeleteExport 删除导出快照
func (s *TransferService) DeleteExport(id string) error {
	if s.storage == nil {
		return ErrStorageDisabled
	}
	return s.storage.Delete(id)
}

// mergeMeta base在前，override同名字段覆盖
func mergeMeta(base, override map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
