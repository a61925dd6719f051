package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// LocalStorage 本地文件存储实现
type LocalStorage struct {
	basePath string // 基础存储路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 本地存储路径
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	if cfg.Path == "" {
		cfg.Path = "data/exports"
	}
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: absPath,
	}, nil
}

// Save 保存文件到本地存储
func (s *LocalStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id := uuid.New().String()
	now := time.Now()

	relPath := filepath.Join(filepath.FromSlash(datePath(now)), objectBase(id, filename))
	filePath := filepath.Join(s.basePath, relPath)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(file, reader)
	if err != nil {
		os.Remove(filePath)
		return FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}

	_, name := parseObjectBase(relPath)
	return FileInfo{
		ID:        id,
		Name:      name,
		Size:      size,
		MimeType:  getMimeType(name),
		Path:      relPath,
		CreatedAt: now,
	}, nil
}

// Get 获取文件内容
func (s *LocalStorage) Get(id string) (io.ReadCloser, error) {
	info, err := s.Stat(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.basePath, info.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Stat 获取文件信息
func (s *LocalStorage) Stat(id string) (FileInfo, error) {
	var found *FileInfo
	err := s.walk(func(info FileInfo) bool {
		if info.ID == id {
			found = &info
			return false
		}
		return true
	})
	if err != nil {
		return FileInfo{}, err
	}
	if found == nil {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	return *found, nil
}

// Delete 删除文件
func (s *LocalStorage) Delete(id string) error {
	info, err := s.Stat(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.basePath, info.Path)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List 列出所有文件，最新的在前
func (s *LocalStorage) List() ([]FileInfo, error) {
	files := []FileInfo{}
	err := s.walk(func(info FileInfo) bool {
		files = append(files, info)
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

// Exists 检查文件是否存在
func (s *LocalStorage) Exists(id string) (bool, error) {
	_, err := s.Stat(id)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// walk 遍历存储目录，visit返回false时停止
func (s *LocalStorage) walk(visit func(FileInfo) bool) error {
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		stat, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		id, name := parseObjectBase(relPath)
		if !visit(FileInfo{
			ID:        id,
			Name:      name,
			Size:      stat.Size(),
			MimeType:  getMimeType(name),
			Path:      relPath,
			CreatedAt: stat.ModTime(),
		}) {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk storage directory: %w", err)
	}
	return nil
}
