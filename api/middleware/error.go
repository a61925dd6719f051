package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/fyerfyer/chroma-admin/pkg/storage"
	"github.com/fyerfyer/chroma-admin/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation   = "VALIDATION_ERROR"   // 输入验证错误
	ErrorTypeUnauthorized = "UNAUTHORIZED_ERROR" // 未授权错误
	ErrorTypeForbidden    = "FORBIDDEN_ERROR"    // 禁止访问错误
	ErrorTypeNotFound     = "NOT_FOUND_ERROR"    // 资源不存在错误
	ErrorTypeInternal     = "INTERNAL_ERROR"     // 内部服务器错误
	ErrorTypeBusiness     = "BUSINESS_ERROR"     // 业务逻辑错误
	ErrorTypeUpstream     = "UPSTREAM_ERROR"     // 远程向量库错误
	ErrorTypeRateLimit    = "RATE_LIMIT_ERROR"   // 请求过于频繁
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // 错误代码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string) AppError {
	return AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

// NewForbiddenError 创建禁止访问错误
func NewForbiddenError(message string) AppError {
	return AppError{
		Type:    ErrorTypeForbidden,
		Message: message,
		Code:    http.StatusForbidden,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewBusinessError 创建业务逻辑错误
func NewBusinessError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUpstreamError 创建远程服务错误
func NewUpstreamError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeUpstream,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadGateway,
	}
}

// NewRateLimitError 创建限流错误
func NewRateLimitError(message string) AppError {
	return AppError{
		Type:    ErrorTypeRateLimit,
		Message: message,
		Code:    http.StatusTooManyRequests,
	}
}

// FromError 将服务层错误映射为AppError
func FromError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var appErrPtr *AppError
	if errors.As(err, &appErrPtr) {
		return *appErrPtr
	}

	switch {
	case errors.Is(err, chroma.ErrCollectionNotFound),
		errors.Is(err, taskqueue.ErrTaskNotFound),
		errors.Is(err, storage.ErrFileNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrUnsupportedFormat),
		errors.Is(err, document.ErrInvalidOverlap),
		errors.Is(err, document.ErrUnsupportedType),
		errors.Is(err, chroma.ErrInvalidRequest):
		return NewValidationError(err.Error())
	case errors.Is(err, services.ErrQueueDisabled),
		errors.Is(err, services.ErrStorageDisabled):
		return NewBusinessError(err.Error())
	}

	// 远程服务的4xx视为请求问题，其余视为上游故障
	if code := chroma.StatusCode(err); code != 0 {
		if code == http.StatusNotFound {
			return NewNotFoundError(err.Error())
		}
		if code >= 400 && code < 500 {
			return NewBusinessError(err.Error())
		}
		return NewUpstreamError("remote vector store error", err.Error())
	}
	return NewInternalError("Internal server error", err.Error())
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				// 获取堆栈跟踪信息
				stack := string(debug.Stack())

				// 记录错误日志
				log.WithFields(logrus.Fields{
					"error": err,
					"stack": stack,
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				// 构造客户端响应
				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)

				// 在开发环境中可以返回详细错误
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}

				// 添加请求跟踪ID
				errorResponse.TraceID = c.GetString(TraceIDKey)

				// 中止请求处理并返回错误响应
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		// 处理请求
		c.Next()

		// 检查是否已经有错误被处理
		if len(c.Errors) > 0 {
			// 取最后一个错误进行处理
			err := c.Errors.Last().Err

			// 获取跟踪ID
			traceID := c.GetString(TraceIDKey)

			appErr := FromError(err)
			fields := logrus.Fields{
				"error_type": appErr.Type,
				"trace_id":   traceID,
				"path":       c.Request.URL.Path,
			}
			if appErr.Code >= http.StatusInternalServerError {
				log.WithFields(fields).WithError(err).Error(appErr.Message)
			} else {
				log.WithFields(fields).Warn(err.Error())
			}

			errResp := model.NewErrorResponse(appErr.Code, appErr.Message)
			errResp.TraceID = traceID
			// 内部错误只在开发环境下返回详细信息
			if appErr.Type == ErrorTypeInternal && gin.Mode() == gin.DebugMode && appErr.Details != "" {
				errResp.Message = appErr.Details
			}
			if appErr.Type == ErrorTypeUpstream && appErr.Details != "" {
				errResp.Message = appErr.Message + ": " + appErr.Details
			}
			c.JSON(appErr.Code, errResp)

			// 中止继续处理
			c.Abort()
		}
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	// 添加错误到上下文中
	_ = c.Error(err)
}
