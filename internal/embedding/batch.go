package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchProcessor 批处理器
// 将大量文本按客户端的批量上限切分后并行请求
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行请求数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16 // 默认批量大小
	}
	if maxWorkers <= 0 {
		maxWorkers = 4 // 默认并行数
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 处理全部文本，返回与输入下标对齐的向量
// 任一批次失败则整体失败
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for start := 0; start < len(texts); start += p.batchSize {
		start := start
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			vectors, err := p.client.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d processing error: %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("batch %d-%d returned %d vectors", start, end, len(vectors))
			}
			// 各批次写入互不重叠的下标区间
			copy(results[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
