package chroma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Client 远程向量库客户端接口
type Client interface {
	// Heartbeat 返回服务端纳秒时间戳
	Heartbeat(ctx context.Context) (int64, error)
	// Version 返回服务端版本
	Version(ctx context.Context) (string, error)

	ListCollections(ctx context.Context) ([]Collection, error)
	CreateCollection(ctx context.Context, name string, metadata map[string]interface{}, getOrCreate bool) (*Collection, error)
	// GetCollection 集合不存在时返回 ErrCollectionNotFound
	GetCollection(ctx context.Context, name string) (*Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	Count(ctx context.Context, collectionID string) (int, error)

	Add(ctx context.Context, collectionID string, req AddRequest) error
	Upsert(ctx context.Context, collectionID string, req AddRequest) error
	Update(ctx context.Context, collectionID string, req AddRequest) error
	Get(ctx context.Context, collectionID string, req GetRequest) (*GetResult, error)
	// Delete 返回被删除的ID（服务端不返回时为空）
	Delete(ctx context.Context, collectionID string, req DeleteRequest) ([]string, error)
	Query(ctx context.Context, collectionID string, req QueryRequest) (*QueryResult, error)
}

// HTTPClient 基于resty的Chroma REST客户端
type HTTPClient struct {
	client *resty.Client
	config *Config
	logger *logrus.Logger
}

// ClientOption 客户端配置选项
type ClientOption func(*HTTPClient)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRestyClient 替换底层HTTP客户端，主要用于测试
func WithRestyClient(client *resty.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewClient 创建一个新的Chroma客户端
func NewClient(config *Config, opts ...ClientOption) (*HTTPClient, error) {
	if config == nil {
		config = DefaultConfig()
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid chroma base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("chroma base URL must be absolute http(s), got: %s", config.BaseURL)
	}

	c := &HTTPClient{
		config: config,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = resty.New()
	}

	apiPath := config.APIPath
	if apiPath == "" {
		apiPath = "/api/v1"
	}

	c.client.
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")+"/"+strings.Trim(apiPath, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "chroma-admin/1.0").
		SetRetryCount(config.MaxRetries).
		SetRetryWaitTime(config.RetryDelay).
		SetRetryMaxWaitTime(10 * config.RetryDelay).
		AddRetryCondition(retryCondition)

	if config.Timeout > 0 {
		c.client.SetTimeout(config.Timeout)
	}
	if config.AuthToken != "" {
		c.client.SetAuthToken(config.AuthToken)
	}
	if config.Tenant != "" {
		c.client.SetQueryParam("tenant", config.Tenant)
	}
	if config.Database != "" {
		c.client.SetQueryParam("database", config.Database)
	}

	return c, nil
}

// retryCondition 网络错误、5xx与429重试
// 不存在的集合在部分版本中返回500，不重试
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout {
		return true
	}
	if code >= 500 {
		apiErr := decodeAPIError(r)
		return !apiErr.notFound()
	}
	return false
}

// Heartbeat 检查服务是否可用
func (c *HTTPClient) Heartbeat(ctx context.Context) (int64, error) {
	var resp map[string]int64
	if err := c.do(ctx, http.MethodGet, "/heartbeat", nil, &resp); err != nil {
		return 0, err
	}
	for _, v := range resp {
		return v, nil
	}
	return 0, nil
}

// Version 获取服务端版本
func (c *HTTPClient) Version(ctx context.Context) (string, error) {
	var version string
	if err := c.do(ctx, http.MethodGet, "/version", nil, &version); err != nil {
		return "", err
	}
	return version, nil
}

// ListCollections 列出全部集合
func (c *HTTPClient) ListCollections(ctx context.Context) ([]Collection, error) {
	var collections []Collection
	if err := c.do(ctx, http.MethodGet, "/collections", nil, &collections); err != nil {
		return nil, err
	}
	if collections == nil {
		collections = []Collection{}
	}
	return collections, nil
}

// CreateCollection 创建集合，getOrCreate为true时已存在则直接返回
func (c *HTTPClient) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}, getOrCreate bool) (*Collection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidRequest)
	}

	req := CreateCollectionRequest{Name: name, Metadata: metadata, GetOrCreate: getOrCreate}
	var collection Collection
	if err := c.do(ctx, http.MethodPost, "/collections", req, &collection); err != nil {
		return nil, err
	}
	return &collection, nil
}

// GetCollection 按名称获取集合
func (c *HTTPClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var collection Collection
	if err := c.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, &collection); err != nil {
		return nil, notFound(err, name)
	}
	return &collection, nil
}

// DeleteCollection 按名称删除集合
func (c *HTTPClient) DeleteCollection(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil); err != nil {
		return notFound(err, name)
	}
	return nil
}

// Count 集合中的记录数
func (c *HTTPClient) Count(ctx context.Context, collectionID string) (int, error) {
	var count int
	if err := c.do(ctx, http.MethodGet, c.collectionPath(collectionID, "count"), nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Add 新增记录，ID已存在时由服务端决定行为
func (c *HTTPClient) Add(ctx context.Context, collectionID string, req AddRequest) error {
	return c.write(ctx, collectionID, "add", req)
}

// Upsert 新增或覆盖记录
func (c *HTTPClient) Upsert(ctx context.Context, collectionID string, req AddRequest) error {
	return c.write(ctx, collectionID, "upsert", req)
}

// Update 更新已有记录
func (c *HTTPClient) Update(ctx context.Context, collectionID string, req AddRequest) error {
	return c.write(ctx, collectionID, "update", req)
}

func (c *HTTPClient) write(ctx context.Context, collectionID, op string, req AddRequest) error {
	if req.Len() == 0 {
		return fmt.Errorf("%w: ids are required", ErrInvalidRequest)
	}
	if len(req.Documents) > 0 && len(req.Documents) != req.Len() ||
		len(req.Metadatas) > 0 && len(req.Metadatas) != req.Len() ||
		len(req.Embeddings) > 0 && len(req.Embeddings) != req.Len() {
		return fmt.Errorf("%w: documents, metadatas and embeddings must match ids length", ErrInvalidRequest)
	}
	return c.do(ctx, http.MethodPost, c.collectionPath(collectionID, op), req, nil)
}

// Get 按ID或条件获取记录
func (c *HTTPClient) Get(ctx context.Context, collectionID string, req GetRequest) (*GetResult, error) {
	var result GetResult
	if err := c.do(ctx, http.MethodPost, c.collectionPath(collectionID, "get"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete 按ID或条件删除记录
func (c *HTTPClient) Delete(ctx context.Context, collectionID string, req DeleteRequest) ([]string, error) {
	if len(req.IDs) == 0 && len(req.Where) == 0 && len(req.WhereDocument) == 0 {
		return nil, fmt.Errorf("%w: ids or where filter required", ErrInvalidRequest)
	}

	var deleted []string
	if err := c.do(ctx, http.MethodPost, c.collectionPath(collectionID, "delete"), req, &deleted); err != nil {
		return nil, err
	}
	return deleted, nil
}

// Query 相似度查询
func (c *HTTPClient) Query(ctx context.Context, collectionID string, req QueryRequest) (*QueryResult, error) {
	if len(req.QueryEmbeddings) == 0 && len(req.QueryTexts) == 0 {
		return nil, fmt.Errorf("%w: query_texts or query_embeddings required", ErrInvalidRequest)
	}

	var result QueryResult
	if err := c.do(ctx, http.MethodPost, c.collectionPath(collectionID, "query"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) collectionPath(collectionID, op string) string {
	return "/collections/" + url.PathEscape(collectionID) + "/" + op
}

// do 发送请求并解析JSON响应
func (c *HTTPClient) do(ctx context.Context, method, path string, body, result interface{}) error {
	req := c.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("chroma request %s %s failed: %w", method, path, err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode(),
		"attempts": resp.Request.Attempt,
		"latency":  time.Since(start).String(),
	}).Debug("Chroma request completed")

	if resp.IsError() {
		return decodeAPIError(resp)
	}

	if result != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return fmt.Errorf("failed to unmarshal chroma response: %w", err)
		}
	}
	return nil
}

// decodeAPIError 解析错误响应体，无法解析时保留原始文本
func decodeAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || (apiErr.Message == "" && apiErr.ErrorType == "" && apiErr.Detail == nil) {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	apiErr.StatusCode = resp.StatusCode()
	if apiErr.Message == "" && apiErr.Detail == nil {
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	return apiErr
}

// notFound 将表示集合不存在的API错误转换为 ErrCollectionNotFound
func notFound(err error, name string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.notFound() {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return err
}
