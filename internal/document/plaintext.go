package document

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// utf8BOM 部分编辑器保存的文本带有BOM
const utf8BOM = "\uFEFF"

// PlainTextParser 纯文本解析器
type PlainTextParser struct{}

// NewPlainTextParser 创建一个新的纯文本解析器
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

// Parse 解析纯文本文件
func (p *PlainTextParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrap(err, "failed to open text file")
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader读取纯文本
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read text content of %s", filename)
	}
	return strings.TrimPrefix(string(content), utf8BOM), nil
}
