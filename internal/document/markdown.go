package document

import (
	"bytes"
	"io"
	"os"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/pkg/errors"
)

// MarkdownParser Markdown文档解析器
type MarkdownParser struct{}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件并提取文本内容
func (p *MarkdownParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrap(err, "failed to open markdown file")
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析Markdown内容
// 先渲染为HTML，再复用HTML文本抽取，标题和段落之间保留空行
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "failed to read markdown content")
	}

	// parser不可复用，每次新建
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)
	doc := mdParser.Parse(content)

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	page, err := extractHTML(bytes.NewReader(rendered))
	if err != nil {
		return "", errors.Wrapf(err, "failed to extract text from %s", filename)
	}
	return page.Content, nil
}
