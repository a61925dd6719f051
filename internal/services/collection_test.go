package services

import (
	"context"
	"io"
	"testing"

	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietLogger 测试中丢弃日志输出
func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCollectionService(t *testing.T) {
	fake := newFakeChroma()
	fake.seed("docs", 3, nil)
	fake.seed("notes", 0, nil)

	inv := &countingInvalidator{}
	svc := NewCollectionService(fake, WithLogger(quietLogger()), WithInvalidator(inv))
	ctx := context.Background()

	t.Run("list with counts", func(t *testing.T) {
		list, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "docs", list[0].Name)
		assert.Equal(t, 3, list[0].Count)
		assert.Equal(t, "notes", list[1].Name)
		assert.Equal(t, 0, list[1].Count)
	})

	t.Run("create", func(t *testing.T) {
		created, err := svc.Create(ctx, "  papers ", map[string]interface{}{"hnsw:space": "cosine"}, false)
		require.NoError(t, err)
		assert.Equal(t, "papers", created.Name)
		assert.Equal(t, "cosine", created.Metadata["hnsw:space"])
		assert.Equal(t, 1, inv.count())

		existing, err := svc.Create(ctx, "docs", nil, true)
		require.NoError(t, err)
		assert.Equal(t, 3, existing.Count)

		_, err = svc.Create(ctx, "docs", nil, false)
		assert.True(t, chroma.IsAPIError(err))

		_, err = svc.Create(ctx, " ", nil, false)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("get", func(t *testing.T) {
		col, err := svc.Get(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 3, col.Count)

		_, err = svc.Get(ctx, "missing")
		assert.ErrorIs(t, err, chroma.ErrCollectionNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		before := inv.count()
		require.NoError(t, svc.Delete(ctx, "papers"))
		assert.Equal(t, before+1, inv.count())

		assert.ErrorIs(t, svc.Delete(ctx, "papers"), chroma.ErrCollectionNotFound)
		assert.Equal(t, before+1, inv.count())
	})

	t.Run("health", func(t *testing.T) {
		health, err := svc.Health(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, "0.5.0", health.Version)
		assert.Equal(t, int64(1700000000), health.Heartbeat)
	})
}
