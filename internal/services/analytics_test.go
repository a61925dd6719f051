package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/chroma-admin/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAnalytics(fake *fakeChroma) {
	fake.seed("alpha", 3, func(i int) map[string]interface{} {
		return map[string]interface{}{"lang": "en", "i": i}
	})
	fake.seed("beta", 2, func(i int) map[string]interface{} {
		return map[string]interface{}{"lang": "fr"}
	})
	fake.seed("empty", 0, nil)
}

func newMemoryCache(t *testing.T) cache.Cache {
	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestAnalyticsService_Overview(t *testing.T) {
	fake := newFakeChroma()
	seedAnalytics(fake)
	svc := NewAnalyticsService(fake, WithLogger(quietLogger()), WithCache(newMemoryCache(t), time.Minute))
	ctx := context.Background()

	overview, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.False(t, overview.Cached)
	assert.Equal(t, 3, overview.TotalCollections)
	assert.Equal(t, 5, overview.TotalDocuments)
	assert.Equal(t, 5, overview.SampledDocuments)
	// "document N" 均为10个字符
	assert.InDelta(t, 10.0, overview.AvgDocumentLength, 0.001)
	assert.Equal(t, "0.5.0", overview.ChromaVersion)

	require.Len(t, overview.Collections, 3)
	assert.Equal(t, "alpha", overview.Collections[0].Name)
	assert.Equal(t, 3, overview.Collections[0].Count)
	assert.Equal(t, 0, overview.Collections[2].Count)

	assert.Equal(t, []MetadataKeyStat{{Key: "lang", Count: 5}, {Key: "i", Count: 3}}, overview.MetadataKeys)

	cached, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, 5, cached.TotalDocuments)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.listCalls))
}

func TestAnalyticsService_Invalidate(t *testing.T) {
	fake := newFakeChroma()
	seedAnalytics(fake)
	inv := &countingInvalidator{}
	analytics := NewAnalyticsService(fake, WithLogger(quietLogger()), WithCache(newMemoryCache(t), time.Minute))
	ctx := context.Background()

	_, err := analytics.Overview(ctx)
	require.NoError(t, err)

	// 写操作通过Invalidator使概览失效
	docs := NewDocumentService(fake, WithLogger(quietLogger()), WithInvalidator(analytics), WithInvalidator(inv))
	_, err = docs.Add(ctx, "beta", AddDocumentInput{ID: "new", Text: "fresh text"})
	require.NoError(t, err)
	assert.Equal(t, 1, inv.count())

	overview, err := analytics.Overview(ctx)
	require.NoError(t, err)
	assert.False(t, overview.Cached)
	assert.Equal(t, 6, overview.TotalDocuments)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.listCalls))
}

// gatedVersion 第一次查询版本时阻塞，直到release关闭
type gatedVersion struct {
	*fakeChroma
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedVersion) Version(ctx context.Context) (string, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.fakeChroma.Version(ctx)
}

func TestAnalyticsService_InvalidateDuringCompute(t *testing.T) {
	fake := newFakeChroma()
	seedAnalytics(fake)
	gated := &gatedVersion{fakeChroma: fake, entered: make(chan struct{}), release: make(chan struct{})}
	analytics := NewAnalyticsService(gated, WithLogger(quietLogger()), WithCache(newMemoryCache(t), time.Minute))
	docs := NewDocumentService(fake, WithLogger(quietLogger()), WithInvalidator(analytics))
	ctx := context.Background()

	done := make(chan *Overview, 1)
	go func() {
		overview, err := analytics.Overview(ctx)
		assert.NoError(t, err)
		done <- overview
	}()

	// 计算进行中写入新文档
	<-gated.entered
	_, err := docs.Add(ctx, "beta", AddDocumentInput{ID: "late", Text: "written mid compute"})
	require.NoError(t, err)

	// 失效后的调用不复用进行中的计算
	fresh, err := analytics.Overview(ctx)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, 6, fresh.TotalDocuments)

	close(gated.release)
	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, 5, stale.TotalDocuments)

	// 过期的结果没有覆盖缓存
	cached, err := analytics.Overview(ctx)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, 6, cached.TotalDocuments)
}

func TestAnalyticsService_InvalidateBeforeStore(t *testing.T) {
	fake := newFakeChroma()
	seedAnalytics(fake)
	gated := &gatedVersion{fakeChroma: fake, entered: make(chan struct{}), release: make(chan struct{})}
	analytics := NewAnalyticsService(gated, WithLogger(quietLogger()), WithCache(newMemoryCache(t), time.Minute))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := analytics.Overview(ctx)
		assert.NoError(t, err)
	}()

	<-gated.entered
	require.NoError(t, analytics.Invalidate())
	close(gated.release)
	<-done

	overview, err := analytics.Overview(ctx)
	require.NoError(t, err)
	assert.False(t, overview.Cached, "失效期间计算的结果不应写入缓存")
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.listCalls))
}

func TestAnalyticsService_Refresh(t *testing.T) {
	fake := newFakeChroma()
	seedAnalytics(fake)
	svc := NewAnalyticsService(fake, WithLogger(quietLogger()), WithCache(newMemoryCache(t), time.Minute))
	ctx := context.Background()

	_, err := svc.Overview(ctx)
	require.NoError(t, err)

	fake.seed("gamma", 4, nil)
	refreshed, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed.Cached)
	assert.Equal(t, 4, refreshed.TotalCollections)
	assert.Equal(t, 9, refreshed.TotalDocuments)

	cached, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, 9, cached.TotalDocuments)
}

func TestAnalyticsService_ConcurrentMisses(t *testing.T) {
	fake := newFakeChroma()
	seedAnalytics(fake)
	svc := NewAnalyticsService(fake, WithLogger(quietLogger()), WithCache(newMemoryCache(t), time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			overview, err := svc.Overview(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 5, overview.TotalDocuments)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.listCalls))
}

func TestAnalyticsService_WithoutCache(t *testing.T) {
	fake := newFakeChroma()
	seedAnalytics(fake)
	svc := NewAnalyticsService(fake, WithLogger(quietLogger()))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		overview, err := svc.Overview(ctx)
		require.NoError(t, err)
		assert.False(t, overview.Cached)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.listCalls))
	assert.NoError(t, svc.Invalidate())

	fake.failList = errors.New("connection refused")
	_, err := svc.Overview(ctx)
	assert.Error(t, err)
}

func TestAnalyticsService_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(cache.Config{Type: "redis", RedisAddr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)

	fake := newFakeChroma()
	seedAnalytics(fake)
	svc := NewAnalyticsService(fake, WithLogger(quietLogger()), WithCache(c, time.Minute))
	ctx := context.Background()

	_, err = svc.Overview(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:"+AnalyticsCacheKey))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("test:"+AnalyticsCacheKey))

	overview, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.False(t, overview.Cached)

	// 损坏的缓存条目被丢弃并重新计算
	mr.Set("test:"+AnalyticsCacheKey, "not json")
	overview, err = svc.Overview(ctx)
	require.NoError(t, err)
	assert.False(t, overview.Cached)
	assert.EqualValues(t, 3, atomic.LoadInt32(&fake.listCalls))
}

func TestTopKeys(t *testing.T) {
	stats := topKeys(map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	assert.Equal(t, []MetadataKeyStat{{"c", 5}, {"a", 2}, {"b", 2}}, stats)
	assert.Empty(t, topKeys(nil, 3))
}
