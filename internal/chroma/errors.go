package chroma

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrCollectionNotFound 集合不存在
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrInvalidRequest 请求参数不合法
	ErrInvalidRequest = errors.New("invalid chroma request")
)

// APIError 表示Chroma返回的非2xx响应
type APIError struct {
	StatusCode int         `json:"-"`
	ErrorType  string      `json:"error"`
	Message    string      `json:"message"`
	Detail     interface{} `json:"detail"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Detail != nil {
		msg = fmt.Sprintf("%v", e.Detail)
	}
	if e.ErrorType != "" {
		return fmt.Sprintf("chroma API error (status code: %d): %s - %s", e.StatusCode, e.ErrorType, msg)
	}
	return fmt.Sprintf("chroma API error (status code: %d): %s", e.StatusCode, msg)
}

// notFound 部分版本对不存在的集合返回500，需要根据消息判断
func (e *APIError) notFound() bool {
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	text := strings.ToLower(e.ErrorType + " " + e.Message + " " + fmt.Sprintf("%v", e.Detail))
	return strings.Contains(text, "does not exist") || strings.Contains(text, "notfounderror")
}

// IsAPIError 判断错误是否来自远程服务
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// StatusCode 返回远程服务状态码，非API错误返回0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
