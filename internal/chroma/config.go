package chroma

import (
	"time"
)

// Config 远程Chroma服务连接配置
type Config struct {
	BaseURL    string        // 服务地址，例如 http://localhost:8000
	APIPath    string        // API前缀
	Timeout    time.Duration // 单次请求超时
	MaxRetries int           // 最大重试次数
	RetryDelay time.Duration // 初始重试间隔
	AuthToken  string        // 可选，以Bearer方式发送
	Tenant     string        // 可选租户
	Database   string        // 可选数据库
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8000",
		APIPath:    "/api/v1",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
	}
}

// WithBaseURL 设置服务地址
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithTimeout 设置请求超时时间
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRetry 设置重试参数
func (c *Config) WithRetry(maxRetries int, retryDelay time.Duration) *Config {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
	return c
}

// WithAuthToken 设置认证令牌
func (c *Config) WithAuthToken(token string) *Config {
	c.AuthToken = token
	return c
}
