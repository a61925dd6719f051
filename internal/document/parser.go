package document

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsupportedType 不支持的文档类型
var ErrUnsupportedType = errors.New("unsupported document type")

// Parser 文档解析器接口
// 负责将不同格式的文档解析为纯文本
type Parser interface {
	// Parse 解析文档，返回文本内容
	Parse(filePath string) (string, error)

	// ParseReader 从Reader解析文档，返回文本内容
	// filename用于确定文档类型
	ParseReader(r io.Reader, filename string) (string, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// HTML 网页类型
	HTML ContentType = "html"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ParserFactory 解析器工厂函数，根据文件类型创建对应的解析器
func ParserFactory(filePath string) (Parser, error) {
	contentType := DetectContentType(filePath)

	switch contentType {
	case PDF:
		return NewPDFParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	case HTML:
		return NewHTMLParser(), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "extension %q", filepath.Ext(filePath))
	}
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt", ".text", ".log":
		return PlainText
	case ".html", ".htm":
		return HTML
	default:
		return Unknown
	}
}

// Document 解析后的文档结构
type Document struct {
	Content string            // 文档文本内容
	Title   string            // 文档标题（可选）
	Source  string            // 来源（文件名或URL）
	Meta    map[string]string // 元数据（可选，例如content-type）
}

// normalizeText 规范化抽取出的文本
// 行内空白压缩为单个空格；压缩后为空的行视为段落边界，便于按段落分块
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	var lines []string
	flush := func() {
		if len(lines) > 0 {
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
			lines = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			flush()
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return strings.Join(paragraphs, "\n\n")
}
