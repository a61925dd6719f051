package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI兼容的嵌入向量客户端
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config Config         // 客户端配置
	// backoff 限流重试的基础等待时间
	backoff time.Duration
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	config := NewConfig(opts...)
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  *config,
		backoff: time.Second,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.create(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量，结果与输入一一对应
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > c.config.BatchSize {
		return nil, ErrBatchTooLarge
	}
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
	}

	return c.create(ctx, texts)
}

// create 调用embeddings接口，限流时指数退避重试
func (c *OpenAIClient) create(ctx context.Context, input []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      input,
		Model:      openai.EmbeddingModel(c.config.Model),
		Dimensions: c.config.Dimensions,
	}

	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.client.CreateEmbeddings(callCtx, req)
		cancel()

		if err == nil {
			if len(resp.Data) != len(input) {
				return nil, NewEmbeddingError(ErrCodeServerError,
					fmt.Sprintf("expected %d embeddings, got %d", len(input), len(resp.Data)))
			}
			// 按index还原输入顺序
			sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
			vectors := make([][]float32, len(resp.Data))
			for i, data := range resp.Data {
				vectors[i] = data.Embedding
			}
			return vectors, nil
		}

		if !isRateLimitError(err) {
			return nil, fmt.Errorf("embedding API error: %w", err)
		}
		if attempt >= c.config.MaxRetries {
			return nil, ErrRateLimited
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff << attempt):
		}
	}
}

// isRateLimitError 检查是否为速率限制错误
func isRateLimitError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
