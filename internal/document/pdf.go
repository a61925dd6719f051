package document

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
)

// PDFParser PDF文档解析器
type PDFParser struct{}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse 解析PDF文件并提取其文本内容
func (p *PDFParser) Parse(filePath string) (string, error) {
	// 创建临时目录用于存放提取的内容流
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp dir")
	}
	defer os.RemoveAll(tmpDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return "", errors.Wrap(err, "failed to extract text from PDF")
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", errors.Wrap(err, "failed to read extracted text dir")
	}

	// 按文件名排序（页码顺序）
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var allText strings.Builder
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, entry.Name()))
		if err != nil {
			continue
		}
		if allText.Len() > 0 {
			allText.WriteString("\n\n")
		}
		allText.Write(data)
	}

	result := strings.TrimSpace(allText.String())
	if result == "" {
		return "", errors.New("no text content found in PDF")
	}
	return result, nil
}

// ParseReader pdfcpu按文件工作，先落盘到临时文件再解析
func (p *PDFParser) ParseReader(r io.Reader, filename string) (string, error) {
	tmpFile, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmpFile.Name())

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return "", errors.Wrapf(err, "failed to buffer %s", filename)
	}
	if err := tmpFile.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close temp file")
	}

	return p.Parse(tmpFile.Name())
}
