package services

import (
	"errors"
	"time"

	"github.com/fyerfyer/chroma-admin/internal/cache"
	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/internal/embedding"
	"github.com/fyerfyer/chroma-admin/pkg/storage"
	"github.com/fyerfyer/chroma-admin/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidInput 参数不合法
	ErrInvalidInput = errors.New("invalid input")
	// ErrQueueDisabled 未配置任务队列
	ErrQueueDisabled = errors.New("task queue is not configured")
	// ErrStorageDisabled 未配置导出存储
	ErrStorageDisabled = errors.New("export storage is not configured")
	// ErrUnsupportedFormat 不支持的导出格式
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// Invalidator 可失效的缓存结果，数据变更后调用
type Invalidator interface {
	Invalidate() error
}

// Option 服务配置选项
// 各服务只读取自己关心的字段
type Option func(*options)

type options struct {
	logger      *logrus.Logger
	invalidator Invalidator
	embedder    embedding.Client
	batchSize   int
	workers     int
	cache       cache.Cache
	cacheTTL    time.Duration
	sampleSize  int
	storage     storage.Storage
	queue       taskqueue.Queue
	fetchOpts   []document.FetchOption
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:     logrus.StandardLogger(),
		batchSize:  DefaultBatchSize,
		workers:    4,
		cacheTTL:   DefaultAnalyticsTTL,
		sampleSize: DefaultSampleSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithInvalidator 添加数据变更后需要失效的缓存，可多次调用
func WithInvalidator(inv Invalidator) Option {
	return func(o *options) {
		switch current := o.invalidator.(type) {
		case nil:
			o.invalidator = inv
		case invalidators:
			o.invalidator = append(current, inv)
		default:
			o.invalidator = invalidators{current, inv}
		}
	}
}

// invalidators 依次失效多个缓存
type invalidators []Invalidator

func (list invalidators) Invalidate() error {
	var errs []error
	for _, inv := range list {
		if err := inv.Invalidate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithEmbedder 设置嵌入客户端，为空时由远程服务计算向量
func WithEmbedder(client embedding.Client) Option {
	return func(o *options) {
		o.embedder = client
	}
}

// WithBatchSize 设置写入批大小
func WithBatchSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.batchSize = size
		}
	}
}

// WithWorkers 设置并发计算向量的批次数
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithCache 设置缓存及有效期
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

// WithSampleSize 设置统计时每个集合的采样文档数
func WithSampleSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sampleSize = n
		}
	}
}

// WithStorage 设置导出存储
func WithStorage(s storage.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithTaskQueue 设置任务队列，启用异步导入
func WithTaskQueue(q taskqueue.Queue) Option {
	return func(o *options) {
		o.queue = q
	}
}

// WithFetchOptions 设置网页抓取参数
func WithFetchOptions(opts ...document.FetchOption) Option {
	return func(o *options) {
		o.fetchOpts = append(o.fetchOpts, opts...)
	}
}
