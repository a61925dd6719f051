package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockClient 实现了Client接口的模拟客户端
type MockClient struct {
	mu      sync.Mutex
	calls   [][]string
	failOn  string
	maxSize int
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, texts)
	m.mu.Unlock()

	if m.maxSize > 0 && len(texts) > m.maxSize {
		return nil, ErrBatchTooLarge
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if text == m.failOn {
			return nil, errors.New("boom")
		}
		results[i] = []float32{float32(len(text))}
	}
	return results, nil
}

func (m *MockClient) Name() string { return "mock" }

// embeddingServer 模拟OpenAI兼容的 /embeddings 接口
func embeddingServer(t *testing.T, rateLimited int32) (*httptest.Server, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if n <= rateLimited {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited","type":"requests","code":"rate_limit_exceeded"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// 逆序返回，客户端需要按index还原
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestNewClientRegistry(t *testing.T) {
	_, err := NewClient("unknown")
	var embErr EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeInvalidRequest, embErr.Code)

	_, err = NewClient("openai")
	assert.Equal(t, ErrMissingAPIKey, err)

	client, err := NewClient("openai", WithAPIKey("k"), WithModel("text-embedding-3-large"))
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-large", client.Name())
}

func TestOpenAIClientEmbed(t *testing.T) {
	server, calls := embeddingServer(t, 0)

	client, err := NewOpenAIClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithTimeout(5*time.Second),
		WithBatchSize(3),
	)
	require.NoError(t, err)
	ctx := context.Background()

	vec, err := client.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 5}, vec)

	vectors, err := client.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 2}, {2, 3}}, vectors)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))

	_, err = client.Embed(ctx, "")
	assert.Equal(t, ErrEmptyText, err)

	_, err = client.EmbedBatch(ctx, []string{"a", "b", "c", "d"})
	assert.Equal(t, ErrBatchTooLarge, err)

	empty, err := client.EmbedBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOpenAIClientRateLimit(t *testing.T) {
	t.Run("retries then succeeds", func(t *testing.T) {
		server, calls := embeddingServer(t, 2)
		c, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL(server.URL), WithMaxRetries(3))
		require.NoError(t, err)
		c.(*OpenAIClient).backoff = time.Millisecond

		vec, err := c.Embed(context.Background(), "xyz")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 3}, vec)
		assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	})

	t.Run("gives up", func(t *testing.T) {
		server, calls := embeddingServer(t, 100)
		c, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL(server.URL), WithMaxRetries(1))
		require.NoError(t, err)
		c.(*OpenAIClient).backoff = time.Millisecond

		_, err = c.Embed(context.Background(), "xyz")
		assert.Equal(t, ErrRateLimited, err)
		assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	})
}

func TestBatchProcessor(t *testing.T) {
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "g"}

	mock := &MockClient{maxSize: 2}
	processor := NewBatchProcessor(mock, 2, 3)

	vectors, err := processor.Process(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, []float32{float32(len(text))}, vectors[i])
	}
	assert.Len(t, mock.calls, 4)

	empty, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	failing := &MockClient{failOn: "ccc"}
	_, err = NewBatchProcessor(failing, 2, 2).Process(context.Background(), texts)
	assert.Error(t, err)
}
