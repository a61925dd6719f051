package services

import (
	"fmt"

	"github.com/fyerfyer/chroma-admin/internal/models"
	"github.com/fyerfyer/chroma-admin/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultLogLimit 默认返回的日志条数
	DefaultLogLimit = 100
	// MaxLogLimit 单次最多返回的日志条数
	MaxLogLimit = 1000
)

// RequestLogService 请求日志服务
type RequestLogService struct {
	repo   repository.RequestLogRepository
	logger *logrus.Logger
}

// NewRequestLogService 创建请求日志服务
func NewRequestLogService(repo repository.RequestLogRepository, opts ...Option) *RequestLogService {
	o := newOptions(opts)
	return &RequestLogService{repo: repo, logger: o.logger}
}

// Record 保存一条请求日志
func (s *RequestLogService) Record(l *models.RequestLog) error {
	if err := s.repo.Save(l); err != nil {
		s.logger.WithError(err).WithField("path", l.Path).Warn("Failed to record request log")
		return err
	}
	return nil
}

// Recent 按时间倒序返回最近的日志
func (s *RequestLogService) Recent(limit int, filter models.RequestLogFilter) ([]*models.RequestLog, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}

	logs, err := s.repo.List(limit, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list request logs: %w", err)
	}
	if logs == nil {
		logs = []*models.RequestLog{}
	}
	return logs, nil
}

// Stats 请求日志统计
func (s *RequestLogService) Stats() (*models.RequestLogStats, error) {
	stats, err := s.repo.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to compute request log stats: %w", err)
	}
	return stats, nil
}

// Clear 清空请求日志
func (s *RequestLogService) Clear() error {
	if err := s.repo.Clear(); err != nil {
		return fmt.Errorf("failed to clear request logs: %w", err)
	}
	s.logger.Info("Request logs cleared")
	return nil
}
