package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fyerfyer/chroma-admin/internal/cache"
	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// AnalyticsCacheKey 概览数据的缓存键
	AnalyticsCacheKey = "analytics:overview"
	// DefaultAnalyticsTTL 概览数据默认缓存时间
	DefaultAnalyticsTTL = 5 * time.Minute
	// DefaultSampleSize 每个集合默认采样的文档数
	DefaultSampleSize = 100
	// topMetadataKeys 返回的元数据键数量上限
	topMetadataKeys = 20
)

// CollectionStats 单个集合的统计
type CollectionStats struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Count    int                    `json:"count"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MetadataKeyStat 元数据键出现次数
type MetadataKeyStat struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Overview 全局概览
type Overview struct {
	TotalCollections  int               `json:"total_collections"`
	TotalDocuments    int               `json:"total_documents"`
	Collections       []CollectionStats `json:"collections"`
	MetadataKeys      []MetadataKeyStat `json:"metadata_keys"`
	AvgDocumentLength float64           `json:"avg_document_length"` // 采样文档的平均字符数
	SampledDocuments  int               `json:"sampled_documents"`
	ChromaVersion     string            `json:"chroma_version,omitempty"`
	GeneratedAt       time.Time         `json:"generated_at"`
	Cached            bool              `json:"cached"`
}

// AnalyticsService 概览统计服务，结果带缓存
type AnalyticsService struct {
	client     chroma.Client
	cache      cache.Cache
	ttl        time.Duration
	sampleSize int
	group      singleflight.Group
	logger     *logrus.Logger

	// mu保护generation，并使失效与写缓存互斥
	mu         sync.Mutex
	generation uint64
}

// NewAnalyticsService 创建统计服务，未配置缓存时每次重新计算
func NewAnalyticsService(client chroma.Client, opts ...Option) *AnalyticsService {
	o := newOptions(opts)
	return &AnalyticsService{
		client:     client,
		cache:      o.cache,
		ttl:        o.cacheTTL,
		sampleSize: o.sampleSize,
		logger:     o.logger,
	}
}

// Overview 返回概览，命中缓存时Cached为true
func (s *AnalyticsService) Overview(ctx context.Context) (*Overview, error) {
	if cached := s.fromCache(); cached != nil {
		return cached, nil
	}

	// 并发未命中时只计算一次
	v, err, _ := s.group.Do(AnalyticsCacheKey, func() (interface{}, error) {
		if cached := s.fromCache(); cached != nil {
			return cached, nil
		}
		gen := s.currentGeneration()
		overview, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		s.store(overview, gen)
		return overview, nil
	})
	if err != nil {
		return nil, err
	}

	out := *v.(*Overview)
	return &out, nil
}

// Invalidate 使缓存的概览失效
// 正在进行的计算结果不会再写入缓存，之后的调用重新计算
func (s *AnalyticsService) Invalidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.group.Forget(AnalyticsCacheKey)
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(AnalyticsCacheKey); err != nil {
		return fmt.Errorf("failed to invalidate analytics: %w", err)
	}
	s.logger.Debug("Analytics cache invalidated")
	return nil
}

// Refresh 失效后重新计算
func (s *AnalyticsService) Refresh(ctx context.Context) (*Overview, error) {
	if err := s.Invalidate(); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate analytics before refresh")
	}
	gen := s.currentGeneration()

	overview, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	s.store(overview, gen)
	return overview, nil
}

func (s *AnalyticsService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *AnalyticsService) fromCache() *Overview {
	if s.cache == nil {
		return nil
	}
	raw, found, err := s.cache.Get(AnalyticsCacheKey)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read analytics cache")
		return nil
	}
	if !found {
		return nil
	}

	var overview Overview
	if err := json.Unmarshal([]byte(raw), &overview); err != nil {
		s.logger.WithError(err).Warn("Discarding malformed analytics cache entry")
		return nil
	}
	overview.Cached = true
	return &overview
}

// store 写入缓存，计算期间发生过失效时丢弃结果
func (s *AnalyticsService) store(overview *Overview, gen uint64) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(overview)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to marshal analytics overview")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		s.logger.Debug("Analytics overview outdated by invalidation, not cached")
		return
	}
	if err := s.cache.Set(AnalyticsCacheKey, string(data), s.ttl); err != nil {
		s.logger.WithError(err).Warn("Failed to write analytics cache")
	}
}

// compute 汇总集合数、文档数，并对每个集合采样统计元数据键与文档长度
func (s *AnalyticsService) compute(ctx context.Context) (*Overview, error) {
	start := time.Now()

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	overview := &Overview{
		TotalCollections: len(collections),
		Collections:      make([]CollectionStats, 0, len(collections)),
		MetadataKeys:     []MetadataKeyStat{},
		GeneratedAt:      time.Now().UTC(),
	}

	keyCounts := make(map[string]int)
	totalChars := 0
	for _, col := range collections {
		count, err := s.client.Count(ctx, col.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count collection %s: %w", col.Name, err)
		}
		overview.TotalDocuments += count
		overview.Collections = append(overview.Collections, CollectionStats{
			ID:       col.ID,
			Name:     col.Name,
			Count:    count,
			Metadata: col.Metadata,
		})

		if count == 0 {
			continue
		}
		sample, err := s.client.Get(ctx, col.ID, chroma.GetRequest{
			Limit:   s.sampleSize,
			Include: []chroma.Include{chroma.IncludeDocuments, chroma.IncludeMetadatas},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to sample collection %s: %w", col.Name, err)
		}
		for _, doc := range sample.Documents {
			totalChars += utf8.RuneCountInString(doc)
		}
		overview.SampledDocuments += len(sample.IDs)
		for _, meta := range sample.Metadatas {
			for k := range meta {
				keyCounts[k]++
			}
		}
	}

	if overview.SampledDocuments > 0 {
		overview.AvgDocumentLength = float64(totalChars) / float64(overview.SampledDocuments)
	}
	overview.MetadataKeys = topKeys(keyCounts, topMetadataKeys)

	if version, err := s.client.Version(ctx); err == nil {
		overview.ChromaVersion = version
	} else {
		s.logger.WithError(err).Warn("Failed to get chroma version")
	}

	s.logger.WithFields(logrus.Fields{
		"collections": overview.TotalCollections,
		"documents":   overview.TotalDocuments,
		"duration":    time.Since(start).String(),
	}).Info("Analytics overview computed")
	return overview, nil
}

// topKeys 按出现次数降序，次数相同按键名升序
func topKeys(counts map[string]int, limit int) []MetadataKeyStat {
	stats := make([]MetadataKeyStat, 0, len(counts))
	for k, c := range counts {
		stats = append(stats, MetadataKeyStat{Key: k, Count: c})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Key < stats[j].Key
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}
