package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage MinIO存储实现
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
	prefix     string        // 对象名前缀
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
	Prefix    string // 对象名前缀，例如 exports/
}

// NewMinioStorage 创建MinIO存储实例
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// 检查存储桶是否存在，不存在则创建
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
		prefix:     cfg.Prefix,
	}, nil
}

// Save 流式上传文件到MinIO
func (s *MinioStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id := uuid.New().String()
	now := time.Now()
	objectName := s.prefix + datePath(now) + "/" + objectBase(id, filename)
	_, name := parseObjectBase(objectName)
	contentType := getMimeType(name)

	// 大小未知时传-1，由客户端分片上传
	info, err := s.client.PutObject(
		context.Background(),
		s.bucketName,
		objectName,
		reader,
		-1,
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %w", err)
	}

	return FileInfo{
		ID:        id,
		Name:      name,
		Size:      info.Size,
		MimeType:  contentType,
		Path:      objectName,
		CreatedAt: now,
	}, nil
}

// Get 获取MinIO中的文件
func (s *MinioStorage) Get(id string) (io.ReadCloser, error) {
	info, err := s.Stat(id)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(context.Background(), s.bucketName, info.Path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Stat 通过列举对象查找ID
func (s *MinioStorage) Stat(id string) (FileInfo, error) {
	files, err := s.List()
	if err != nil {
		return FileInfo{}, err
	}
	for _, file := range files {
		if file.ID == id {
			return file, nil
		}
	}
	return FileInfo{}, fmt.Errorf("%w: %s", ErrFileNotFound, id)
}

// Delete 从MinIO中删除文件
func (s *MinioStorage) Delete(id string) error {
	info, err := s.Stat(id)
	if err != nil {
		return err
	}

	err = s.client.RemoveObject(context.Background(), s.bucketName, info.Path, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// List 列出前缀下的所有文件，最新的在前
func (s *MinioStorage) List() ([]FileInfo, error) {
	files := []FileInfo{}

	objectCh := s.client.ListObjects(context.Background(), s.bucketName, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}

		id, name := parseObjectBase(object.Key)
		files = append(files, FileInfo{
			ID:        id,
			Name:      name,
			Size:      object.Size,
			MimeType:  getMimeType(name),
			Path:      object.Key,
			CreatedAt: object.LastModified,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

// Exists 检查MinIO中是否存在指定ID的文件
func (s *MinioStorage) Exists(id string) (bool, error) {
	_, err := s.Stat(id)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}
