package services

import (
	"context"
	"testing"

	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService(t *testing.T) {
	fake := newFakeChroma()
	fake.seed("docs", 150, func(i int) map[string]interface{} {
		return map[string]interface{}{"n": i}
	})
	ctx := context.Background()

	t.Run("defaults and flattening", func(t *testing.T) {
		svc := NewQueryService(fake, WithLogger(quietLogger()))

		out, err := svc.Query(ctx, "docs", QueryInput{Texts: []string{"first", " ", "second"}})
		require.NoError(t, err)
		assert.Equal(t, DefaultNResults, out.NResults)
		assert.Equal(t, []string{"first", "second"}, fake.lastQuery.QueryTexts)
		assert.Nil(t, fake.lastQuery.QueryEmbeddings)
		assert.Equal(t, []chroma.Include{chroma.IncludeDocuments, chroma.IncludeMetadatas, chroma.IncludeDistances}, fake.lastQuery.Include)

		require.Len(t, out.Results, 2*DefaultNResults)
		first := out.Results[0]
		assert.Equal(t, "first", first.Query)
		assert.Equal(t, "docs-0000", first.ID)
		assert.Equal(t, "document 0", first.Document)
		require.NotNil(t, first.Distance)
		assert.InDelta(t, 0.1, *first.Distance, 1e-9)

		second := out.Results[DefaultNResults]
		assert.Equal(t, "second", second.Query)
		assert.InDelta(t, 1.1, *second.Distance, 1e-9)
	})

	t.Run("n_results is clamped", func(t *testing.T) {
		svc := NewQueryService(fake, WithLogger(quietLogger()))

		out, err := svc.Query(ctx, "docs", QueryInput{Texts: []string{"q"}, NResults: 1000})
		require.NoError(t, err)
		assert.Equal(t, MaxNResults, out.NResults)
		assert.Equal(t, MaxNResults, fake.lastQuery.NResults)
		assert.Len(t, out.Results, MaxNResults)
	})

	t.Run("embedder computes query vectors", func(t *testing.T) {
		svc := NewQueryService(fake, WithLogger(quietLogger()), WithEmbedder(&fakeEmbedder{}))

		_, err := svc.Query(ctx, "docs", QueryInput{Texts: []string{"abcd"}, NResults: 3, Where: map[string]interface{}{"n": 1}})
		require.NoError(t, err)
		assert.Nil(t, fake.lastQuery.QueryTexts)
		assert.Equal(t, [][]float32{{4}}, fake.lastQuery.QueryEmbeddings)
		assert.Equal(t, map[string]interface{}{"n": 1}, fake.lastQuery.Where)
	})

	t.Run("errors", func(t *testing.T) {
		svc := NewQueryService(fake, WithLogger(quietLogger()))

		_, err := svc.Query(ctx, "docs", QueryInput{Texts: []string{"  "}})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Query(ctx, "missing", QueryInput{Texts: []string{"q"}})
		assert.ErrorIs(t, err, chroma.ErrCollectionNotFound)
	})
}

func TestFlattenPartialResult(t *testing.T) {
	result := &chroma.QueryResult{
		IDs:       [][]string{{"a", "b"}},
		Documents: [][]string{{"doc a"}},
	}
	matches := flatten([]string{"q"}, result)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc a", matches[0].Document)
	assert.Empty(t, matches[1].Document)
	assert.Nil(t, matches[1].Distance)
	assert.Nil(t, matches[1].Metadata)
}
