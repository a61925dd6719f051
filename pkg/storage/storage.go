package storage

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrFileNotFound 文件不存在
var ErrFileNotFound = errors.New("file not found")

// FileInfo 文件元数据结构
type FileInfo struct {
	ID        string    `json:"id"`        // 文件唯一标识符
	Name      string    `json:"name"`      // 原始文件名
	Size      int64     `json:"size"`      // 文件大小(字节)
	MimeType  string    `json:"mime_type"` // 文件MIME类型
	Path      string    `json:"-"`         // 内部存储路径(实现相关)
	CreatedAt time.Time `json:"created_at"`
}

// Storage 文件存储接口
// 定义文件存储的基本操作，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(reader io.Reader, filename string) (FileInfo, error)

	// Get 获取文件内容
	Get(id string) (io.ReadCloser, error)

	// Stat 获取文件信息
	Stat(id string) (FileInfo, error)

	// Delete 删除文件
	Delete(id string) error

	// List 列出所有文件
	List() ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(id string) (bool, error)
}

// Config 存储配置
type Config struct {
	Type  string // local 或 minio
	Local LocalConfig
	Minio MinioConfig
}

// NewStorage 根据配置创建存储实现
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// unsafeChars 文件名中只保留字母数字与 . _ -
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// idSeparator ID与原始文件名之间的分隔符，uuid中不包含该字符
const idSeparator = "_"

// objectBase 生成存储用的文件名：{id}_{安全文件名}
func objectBase(id, filename string) string {
	name := unsafeChars.ReplaceAllString(filepath.Base(filename), "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "file"
	}
	return id + idSeparator + name
}

// parseObjectBase 从存储文件名解析ID与文件名
func parseObjectBase(objectName string) (id, name string) {
	base := path.Base(filepath.ToSlash(objectName))
	if i := strings.Index(base, idSeparator); i > 0 {
		return base[:i], base[i+1:]
	}
	return strings.TrimSuffix(base, path.Ext(base)), base
}

// datePath 按日期组织的目录
func datePath(t time.Time) string {
	return fmt.Sprintf("%04d/%02d/%02d", t.Year(), t.Month(), t.Day())
}

// getMimeType 根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
