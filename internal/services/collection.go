package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// countConcurrency 并发统计集合文档数的上限
const countConcurrency = 8

// CollectionSummary 集合及其文档数
type CollectionSummary struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Count    int                    `json:"count"`
}

// HealthStatus 远程服务状态
type HealthStatus struct {
	Status    string `json:"status"`
	Heartbeat int64  `json:"heartbeat"`
	Version   string `json:"version"`
	LatencyMs int64  `json:"latency_ms"`
}

// CollectionService 集合管理服务
type CollectionService struct {
	client      chroma.Client
	invalidator Invalidator
	logger      *logrus.Logger
}

// NewCollectionService 创建集合服务
func NewCollectionService(client chroma.Client, opts ...Option) *CollectionService {
	o := newOptions(opts)
	return &CollectionService{
		client:      client,
		invalidator: o.invalidator,
		logger:      o.logger,
	}
}

// Health 检查远程服务是否可用
func (s *CollectionService) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	beat, err := s.client.Heartbeat(ctx)
	if err != nil {
		return nil, fmt.Errorf("heartbeat failed: %w", err)
	}
	version, err := s.client.Version(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to get chroma version")
	}
	return &HealthStatus{
		Status:    "ok",
		Heartbeat: beat,
		Version:   version,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// List 列出全部集合及其文档数
func (s *CollectionService) List(ctx context.Context) ([]CollectionSummary, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	summaries := make([]CollectionSummary, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i, col := range collections {
		i, col := i, col
		summaries[i] = summarize(col, 0)
		g.Go(func() error {
			count, err := s.client.Count(gctx, col.ID)
			if err != nil {
				return fmt.Errorf("failed to count collection %s: %w", col.Name, err)
			}
			summaries[i].Count = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Create 创建集合
func (s *CollectionService) Create(ctx context.Context, name string, metadata map[string]interface{}, getOrCreate bool) (*CollectionSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidInput)
	}

	col, err := s.client.CreateCollection(ctx, name, metadata, getOrCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"collection": col.Name,
		"id":         col.ID,
	}).Info("Collection created")
	s.invalidate()

	count := 0
	if getOrCreate {
		// 可能返回已存在的集合
		if count, err = s.client.Count(ctx, col.ID); err != nil {
			return nil, fmt.Errorf("failed to count collection: %w", err)
		}
	}
	summary := summarize(*col, count)
	return &summary, nil
}

// Get 获取集合及其文档数
func (s *CollectionService) Get(ctx context.Context, name string) (*CollectionSummary, error) {
	col, err := s.client.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	count, err := s.client.Count(ctx, col.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count collection: %w", err)
	}
	summary := summarize(*col, count)
	return &summary, nil
}

// Delete 删除集合
func (s *CollectionService) Delete(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return err
	}
	s.logger.WithField("collection", name).Info("Collection deleted")
	s.invalidate()
	return nil
}

func (s *CollectionService) invalidate() {
	invalidate(s.invalidator, s.logger)
}

func summarize(col chroma.Collection, count int) CollectionSummary {
	return CollectionSummary{
		ID:       col.ID,
		Name:     col.Name,
		Metadata: col.Metadata,
		Count:    count,
	}
}

// invalidate 失效失败只记录日志，不影响写操作的结果
func invalidate(inv Invalidator, logger *logrus.Logger) {
	if inv == nil {
		return
	}
	if err := inv.Invalidate(); err != nil {
		logger.WithError(err).Warn("Failed to invalidate analytics cache")
	}
}
