package document

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserReaderImplementations(t *testing.T) {
	// 测试纯文本解析器
	t.Run("PlainText", func(t *testing.T) {
		content := "Hello, this is plain text."
		reader := strings.NewReader(content)

		parser := NewPlainTextParser()
		result, err := parser.ParseReader(reader, "test.txt")

		assert.NoError(t, err)
		assert.Equal(t, content, result)
	})

	// 测试Markdown解析器
	t.Run("Markdown", func(t *testing.T) {
		content := "# Heading\n\nThis is **markdown** text."
		reader := strings.NewReader(content)

		parser := NewMarkdownParser()
		result, err := parser.ParseReader(reader, "test.md")

		assert.NoError(t, err)
		assert.Equal(t, "Heading\n\nThis is markdown text.", result)
	})

	// 测试HTML解析器
	t.Run("HTML", func(t *testing.T) {
		reader := strings.NewReader("<ul><li>one</li>\n<li>two</li></ul><p>after</p>")

		parser := NewHTMLParser()
		result, err := parser.ParseReader(reader, "test.html")

		assert.NoError(t, err)
		assert.Equal(t, "- one\n- two\n\nafter", result)
	})

	// 测试PDF解析器，上传内容需先落盘
	t.Run("PDF", func(t *testing.T) {
		file := createTempPDF(t, "Reader based PDF")
		defer os.Remove(file)

		data, err := os.ReadFile(file)
		require.NoError(t, err)

		parser := NewPDFParser()
		result, err := parser.ParseReader(bytes.NewReader(data), "upload.pdf")
		assert.NoError(t, err)
		assert.Contains(t, result, "Reader based PDF")
	})
}

func TestFetchURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html><head><title>Remote Page</title></head><body><p>Alpha</p><p>Beta</p></body></html>"))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("line one\n\n\nline two"))
		case "/empty":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body><script>x()</script></body></html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()

	t.Run("html page", func(t *testing.T) {
		doc, err := FetchURL(ctx, server.URL+"/page")
		require.NoError(t, err)
		assert.Equal(t, "Remote Page", doc.Title)
		assert.Equal(t, "Alpha\n\nBeta", doc.Content)
		assert.Equal(t, server.URL+"/page", doc.Source)
		assert.Equal(t, "text/html", doc.Meta["content_type"])
	})

	t.Run("plain text", func(t *testing.T) {
		doc, err := FetchURL(ctx, server.URL+"/plain")
		require.NoError(t, err)
		assert.Equal(t, "line one\n\nline two", doc.Content)
		assert.NotEmpty(t, doc.Title)
	})

	t.Run("size limit", func(t *testing.T) {
		doc, err := FetchURL(ctx, server.URL+"/plain", WithMaxBytes(4))
		require.NoError(t, err)
		assert.Equal(t, "line", doc.Content)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := FetchURL(ctx, server.URL+"/missing")
		assert.Error(t, err)
	})

	t.Run("no text", func(t *testing.T) {
		_, err := FetchURL(ctx, server.URL+"/empty")
		assert.Error(t, err)
	})

	t.Run("invalid url", func(t *testing.T) {
		for _, raw := range []string{"", "ftp://example.com/x", "not a url", "http://"} {
			_, err := FetchURL(ctx, raw)
			assert.True(t, errors.Is(err, ErrInvalidURL), "url %q", raw)
		}
	})
}
