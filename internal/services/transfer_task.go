package services

import (
	"context"
	"fmt"
	"io"

	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// EnqueueImportRecords 异步导入记录，返回任务ID
func (s *TransferService) EnqueueImportRecords(ctx context.Context, collection string, records []Record, chunking *document.ChunkOptions, opts ...ImportOption) (string, error) {
	if s.queue == nil {
		return "", ErrQueueDisabled
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w: no records", ErrInvalidInput)
	}
	if chunking != nil {
		if err := chunking.Validate(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	payload := taskqueue.ImportRecordsPayload{
		Collection: collection,
		Records:    make([]taskqueue.RecordPayload, len(records)),
		Chunking:   toChunkingPayload(chunking),
		Upsert:     newImportConfig(opts).upsert,
	}
	for i, r := range records {
		payload.Records[i] = taskqueue.RecordPayload{ID: r.ID, Text: r.Text, Metadata: r.Metadata}
	}
	return s.enqueue(ctx, taskqueue.TaskImportRecords, collection, payload)
}

// EnqueueImportFile 同步解析上传文件，记录写入交由异步任务完成
func (s *TransferService) EnqueueImportFile(ctx context.Context, collection, filename string, r io.Reader, chunking *document.ChunkOptions, metadata map[string]interface{}, opts ...ImportOption) (string, error) {
	if s.queue == nil {
		return "", ErrQueueDisabled
	}
	records, chunking, err := s.prepareFile(filename, r, chunking, metadata)
	if err != nil {
		return "", err
	}
	return s.EnqueueImportRecords(ctx, collection, records, chunking, opts...)
}

// EnqueueImportURL 异步抓取网页并导入，返回任务ID
func (s *TransferService) EnqueueImportURL(ctx context.Context, collection, rawURL, id string, chunking *document.ChunkOptions, metadata map[string]interface{}, opts ...ImportOption) (string, error) {
	if s.queue == nil {
		return "", ErrQueueDisabled
	}
	if rawURL == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}

	payload := taskqueue.ImportURLPayload{
		Collection: collection,
		URL:        rawURL,
		ID:         id,
		Metadata:   metadata,
		Chunking:   toChunkingPayload(chunking),
		Upsert:     newImportConfig(opts).upsert,
	}
	return s.enqueue(ctx, taskqueue.TaskImportURL, collection, payload)
}

func (s *TransferService) enqueue(ctx context.Context, taskType taskqueue.TaskType, collection string, payload interface{}) (string, error) {
	taskID, err := s.queue.Enqueue(ctx, taskType, collection, payload)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s task: %w", taskType, err)
	}
	return taskID, nil
}

// GetTask 查询异步任务
func (s *TransferService) GetTask(ctx context.Context, taskID string) (*taskqueue.TaskInfo, error) {
	if s.queue == nil {
		return nil, ErrQueueDisabled
	}
	task, err := s.queue.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskqueue.NewTaskInfo(task), nil
}

// ImportTaskHandler 处理异步导入任务的Handler
func (s *TransferService) ImportTaskHandler() taskqueue.Handler {
	return taskqueue.NewHandler(s.processTask, taskqueue.TaskImportRecords, taskqueue.TaskImportURL)
}

func (s *TransferService) processTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	s.logger.WithFields(logrus.Fields{
		"task_id":    task.ID,
		"type":       task.Type,
		"collection": task.Collection,
	}).Info("Processing import task")

	var (
		result *AddResult
		err    error
	)
	switch task.Type {
	case taskqueue.TaskImportRecords:
		var p taskqueue.ImportRecordsPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
		}
		records := make([]Record, len(p.Records))
		for i, r := range p.Records {
			records[i] = Record{ID: r.ID, Text: r.Text, Metadata: r.Metadata}
		}
		result, err = s.ImportRecords(ctx, p.Collection, records, fromChunkingPayload(p.Chunking), WithUpsert(p.Upsert))

	case taskqueue.TaskImportURL:
		var p taskqueue.ImportURLPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
		}
		result, err = s.ImportURL(ctx, p.Collection, p.URL, p.ID, fromChunkingPayload(p.Chunking), p.Metadata, WithUpsert(p.Upsert))

	default:
		return nil, fmt.Errorf("unsupported task type: %s", task.Type)
	}
	if err != nil {
		return nil, err
	}

	return taskqueue.ImportResult{
		Collection: result.Collection,
		Records:    result.Records,
		Documents:  result.Documents,
		IDs:        result.IDs,
	}, nil
}

func toChunkingPayload(opts *document.ChunkOptions) *taskqueue.ChunkingPayload {
	if opts == nil {
		return nil
	}
	return &taskqueue.ChunkingPayload{
		Mode:      string(opts.Mode),
		ChunkSize: opts.ChunkSize,
		Overlap:   copyInt(opts.Overlap),
	}
}

func fromChunkingPayload(p *taskqueue.ChunkingPayload) *document.ChunkOptions {
	if p == nil {
		return nil
	}
	return &document.ChunkOptions{
		Mode:      document.ChunkMode(p.Mode),
		ChunkSize: p.ChunkSize,
		Overlap:   copyInt(p.Overlap),
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
