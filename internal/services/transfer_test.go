package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/pkg/storage"
	"github.com/fyerfyer/chroma-admin/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfer(t *testing.T, fake *fakeChroma, opts ...Option) *TransferService {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	docs := NewDocumentService(fake, opts...)
	return NewTransferService(fake, docs, opts...)
}

func TestTransferService_ImportFile(t *testing.T) {
	ctx := context.Background()

	t.Run("plain text is chunked into one parent", func(t *testing.T) {
		fake := newFakeChroma()
		fake.seed("docs", 0, nil)
		svc := newTransfer(t, fake)

		text := "First paragraph.\n\nSecond paragraph."
		semantic := document.ChunkOptions{Mode: document.ModeSemantic}
		result, err := svc.ImportFile(ctx, "docs", "notes.txt", strings.NewReader(text), &semantic, map[string]interface{}{"team": "search"})
		require.NoError(t, err)
		assert.Equal(t, []string{"notes_chunk_1", "notes_chunk_2"}, result.IDs)

		meta := fake.cols["docs"].metas["notes_chunk_2"]
		assert.Equal(t, "notes.txt", meta["source"])
		assert.Equal(t, "search", meta["team"])
		assert.Equal(t, "notes", meta[document.MetaParentDocID])
		assert.Equal(t, "Second paragraph.", fake.cols["docs"].docs["notes_chunk_2"])
	})

	t.Run("default chunking for documents", func(t *testing.T) {
		fake := newFakeChroma()
		fake.seed("docs", 0, nil)
		svc := newTransfer(t, fake)

		result, err := svc.ImportFile(ctx, "docs", "guide.md", strings.NewReader("# Title\n\nBody text."), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"guide_chunk_1"}, result.IDs)
		assert.Equal(t, "configurable", fake.cols["docs"].metas["guide_chunk_1"][document.MetaChunkMode])
	})

	t.Run("csv records keep their own ids", func(t *testing.T) {
		fake := newFakeChroma()
		fake.seed("docs", 0, nil)
		svc := newTransfer(t, fake)

		input := "id,text,lang\nr1,hello,en\nr2,bonjour,fr\n"
		result, err := svc.ImportFile(ctx, "docs", "rows.csv", strings.NewReader(input), nil, map[string]interface{}{"lang": "xx", "batch": "1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"r1", "r2"}, result.IDs)
		assert.Equal(t, "fr", fake.cols["docs"].metas["r2"]["lang"])
		assert.Equal(t, "1", fake.cols["docs"].metas["r2"]["batch"])
	})

	t.Run("unsupported type", func(t *testing.T) {
		fake := newFakeChroma()
		fake.seed("docs", 0, nil)
		svc := newTransfer(t, fake)

		_, err := svc.ImportFile(ctx, "docs", "binary.exe", strings.NewReader("MZ"), nil, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestTransferService_ImportURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head><title>Release notes</title></head>
<body><p>Version one shipped.</p><p>Version two is planned.</p></body></html>`)
	}))
	defer server.Close()

	fake := newFakeChroma()
	fake.seed("docs", 0, nil)
	svc := newTransfer(t, fake)
	ctx := context.Background()

	semantic := document.ChunkOptions{Mode: document.ModeSemantic}
	result, err := svc.ImportURL(ctx, "docs", server.URL+"/notes", "release", &semantic, map[string]interface{}{"kind": "web"})
	require.NoError(t, err)
	assert.Equal(t, []string{"release_chunk_1", "release_chunk_2"}, result.IDs)

	meta := fake.cols["docs"].metas["release_chunk_1"]
	assert.Equal(t, "Release notes", meta["title"])
	assert.Equal(t, server.URL+"/notes", meta["source_url"])
	assert.Equal(t, "web", meta["kind"])
	assert.Equal(t, "Version one shipped.", fake.cols["docs"].docs["release_chunk_1"])

	_, err = svc.ImportURL(ctx, "docs", "ftp://example.com/file", "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransferService_Export(t *testing.T) {
	fake := newFakeChroma()
	fake.seed("big", 1201, func(i int) map[string]interface{} {
		if i%2 == 0 {
			return map[string]interface{}{"i": i}
		}
		return nil
	})
	svc := newTransfer(t, fake)
	ctx := context.Background()

	t.Run("json pages through everything", func(t *testing.T) {
		fake.getCalls = 0
		var buf bytes.Buffer
		n, err := svc.Export(ctx, "big", "json", &buf)
		require.NoError(t, err)
		assert.Equal(t, 1201, n)
		assert.Equal(t, 3, fake.getCalls)

		// 导出结果可以直接再导入
		records, err := ParseJSONRecords(&buf)
		require.NoError(t, err)
		require.Len(t, records, 1201)
		assert.Equal(t, "big-0000", records[0].ID)
		assert.Equal(t, "document 0", records[0].Text)
		assert.Nil(t, records[1].Metadata)
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := svc.Export(ctx, "big", "CSV", &buf)
		require.NoError(t, err)
		assert.Equal(t, 1201, n)

		rows, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 1202)
		assert.Equal(t, []string{"id", "document", "metadata"}, rows[0])
		assert.Equal(t, []string{"big-0000", "document 0", `{"i":0}`}, rows[1])
		assert.Equal(t, []string{"big-0001", "document 1", ""}, rows[2])

		records, err := ParseCSVRecords(bytes.NewReader(buf.Bytes()), CSVOptions{})
		require.NoError(t, err)
		assert.Len(t, records, 1201)
	})

	t.Run("empty collection", func(t *testing.T) {
		fake.seed("empty", 0, nil)
		var buf bytes.Buffer
		n, err := svc.Export(ctx, "empty", "json", &buf)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.JSONEq(t, `[]`, buf.String())
	})

	t.Run("errors", func(t *testing.T) {
		_, err := svc.Export(ctx, "big", "xml", io.Discard)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)

		_, err = svc.Export(ctx, "missing", "json", io.Discard)
		assert.ErrorIs(t, err, chroma.ErrCollectionNotFound)
	})
}

func TestTransferService_SavedExports(t *testing.T) {
	fake := newFakeChroma()
	fake.seed("docs", 3, nil)
	ctx := context.Background()

	disabled := newTransfer(t, fake)
	_, err := disabled.SaveExport(ctx, "docs", "json")
	assert.ErrorIs(t, err, ErrStorageDisabled)
	_, err = disabled.ListExports()
	assert.ErrorIs(t, err, ErrStorageDisabled)

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	svc := newTransfer(t, fake, WithStorage(store))

	info, err := svc.SaveExport(ctx, "docs", "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info.Name, "docs-"))
	assert.True(t, strings.HasSuffix(info.Name, ".csv"))
	assert.Equal(t, "text/csv", info.MimeType)

	exports, err := svc.ListExports()
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, info.ID, exports[0].ID)

	rc, stat, err := svc.OpenExport(info.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, info.Name, stat.Name)
	assert.True(t, strings.HasPrefix(string(content), "id,document,metadata\n"))

	require.NoError(t, svc.DeleteExport(info.ID))
	_, _, err = svc.OpenExport(info.ID)
	assert.ErrorIs(t, err, storage.ErrFileNotFound)
}

func TestTransferService_AsyncImport(t *testing.T) {
	mr := miniredis.RunT(t)
	queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{RedisAddr: mr.Addr(), RetryLimit: 1}, taskqueue.WithQueueLogger(quietLogger()))
	require.NoError(t, err)
	defer queue.Close()

	fake := newFakeChroma()
	fake.seed("docs", 0, nil)
	ctx := context.Background()

	disabled := newTransfer(t, fake)
	assert.False(t, disabled.AsyncEnabled())
	_, err = disabled.EnqueueImportRecords(ctx, "docs", []Record{{Text: "x"}}, nil)
	assert.ErrorIs(t, err, ErrQueueDisabled)

	svc := newTransfer(t, fake, WithTaskQueue(queue))
	assert.True(t, svc.AsyncEnabled())

	chunking := document.ChunkOptions{Mode: document.ModeConfigurable, ChunkSize: 4, Overlap: document.OverlapOf(1)}
	taskID, err := svc.EnqueueImportRecords(ctx, "docs", []Record{
		{ID: "a", Text: "abcdefg", Metadata: map[string]interface{}{"k": "v"}},
	}, &chunking)
	require.NoError(t, err)

	info, err := svc.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusPending, info.Status)
	assert.Equal(t, taskqueue.TaskImportRecords, info.Type)
	assert.Equal(t, "docs", info.Collection)

	// 直接调用处理器，模拟工作者取到任务
	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	handler := svc.ImportTaskHandler()
	assert.ElementsMatch(t, []taskqueue.TaskType{taskqueue.TaskImportRecords, taskqueue.TaskImportURL}, handler.GetTaskTypes())

	out, err := handler.ProcessTask(ctx, task)
	require.NoError(t, err)
	result := out.(taskqueue.ImportResult)
	// 窗口 [0,4) [3,7)
	assert.Equal(t, []string{"a_chunk_1", "a_chunk_2"}, result.IDs)
	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, "abcd", fake.cols["docs"].docs["a_chunk_1"])
	assert.Equal(t, "defg", fake.cols["docs"].docs["a_chunk_2"])

	_, err = svc.EnqueueImportRecords(ctx, "docs", []Record{{Text: "x"}}, &document.ChunkOptions{ChunkSize: 2, Overlap: document.OverlapOf(5)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.EnqueueImportURL(ctx, "docs", "", "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	fileTask, err := svc.EnqueueImportFile(ctx, "docs", "readme.txt", strings.NewReader("hello"), nil, nil)
	require.NoError(t, err)
	info, err = svc.GetTask(ctx, fileTask)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskImportRecords, info.Type)

	_, err = svc.EnqueueImportFile(ctx, "docs", "tool.exe", strings.NewReader("MZ"), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, taskqueue.ErrTaskNotFound)

	_, err = handler.ProcessTask(ctx, &taskqueue.Task{Type: taskqueue.TaskImportURL})
	assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)
}
