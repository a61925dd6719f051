package document

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements 块级元素前后插入段落边界
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Aside: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Dl: true, atom.Table: true, atom.Tr: true,
	atom.Blockquote: true, atom.Pre: true, atom.Hr: true, atom.Figure: true,
}

// skippedElements 不产生可见文本的元素
var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Svg: true, atom.Iframe: true, atom.Head: true, atom.Nav: true,
}

// whitespace 文本节点内的换行不视为结构信息
var whitespace = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

// HTMLParser HTML文档解析器
type HTMLParser struct{}

// NewHTMLParser 创建新的HTML解析器
func NewHTMLParser() Parser {
	return &HTMLParser{}
}

// Parse 解析HTML文件
func (p *HTMLParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrap(err, "failed to open html file")
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析HTML并提取正文
func (p *HTMLParser) ParseReader(r io.Reader, filename string) (string, error) {
	page, err := extractHTML(r)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse html %s", filename)
	}
	return page.Content, nil
}

type htmlExtractor struct {
	buf      strings.Builder
	title    string
	headline string
}

// extractHTML 提取标题与正文，块级元素之间用空行分隔
func extractHTML(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	// <title> 位于 <head> 中，单独查找
	e := &htmlExtractor{}
	e.title = collapse(textOf(findFirst(root, atom.Title)))
	e.walk(root)

	title := e.title
	if title == "" {
		title = e.headline
	}
	return &Document{
		Content: normalizeText(e.buf.String()),
		Title:   title,
	}, nil
}

func (e *htmlExtractor) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		e.buf.WriteString(whitespace.Replace(n.Data))
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
		switch n.DataAtom {
		case atom.Br:
			e.buf.WriteString("\n")
			return
		case atom.Li, atom.Dt, atom.Dd:
			e.buf.WriteString("\n- ")
		case atom.Td, atom.Th:
			e.buf.WriteString(" ")
		case atom.H1:
			if e.headline == "" {
				e.headline = collapse(textOf(n))
			}
		}
		if blockElements[n.DataAtom] {
			e.buf.WriteString("\n\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c)
	}

	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		e.buf.WriteString("\n\n")
	}
}

// findFirst 深度优先查找第一个指定元素
func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// textOf 拼接节点下的全部文本
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
