package middleware

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// TraceIDKey 追踪ID在gin上下文中的键
const TraceIDKey = "TraceID"

// TraceIDHeader 追踪ID请求头/响应头
const TraceIDHeader = "X-Trace-ID"

// maxLoggedBody 调试日志中记录的请求体/响应体上限
const maxLoggedBody = 4 << 10

// 初始化日志配置
func init() {
	// 设置输出到标准输出
	log.SetOutput(os.Stdout)
	// 设置日志格式为JSON格式
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	// 根据环境变量设置日志级别
	if os.Getenv("DEBUG") == "true" {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// Logger 日志中间件
// 记录请求信息和响应时间
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 开始时间
		start := time.Now()

		// 记录请求路径
		path := c.Request.URL.Path

		// 处理请求前
		c.Next()

		// 请求处理完成后获取结果信息
		latency := time.Since(start)
		statusCode := c.Writer.Status()

		entry := log.WithFields(logrus.Fields{
			FieldTraceID:  c.GetString(TraceIDKey),
			FieldStatus:   statusCode,
			FieldLatency:  latency.String(),
			FieldClientIP: c.ClientIP(),
			FieldMethod:   c.Request.Method,
			FieldPath:     path,
			"user_agent":  c.Request.UserAgent(),
		})
		switch {
		case statusCode >= 500:
			entry.Error("HTTP request")
		case statusCode >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}

// RequestBodyLog 请求体日志中间件
// 在DEBUG模式下记录请求体内容，multipart上传不记录
func RequestBodyLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 仅在debug级别时记录请求体
		if log.IsLevelEnabled(logrus.DebugLevel) && c.ContentType() != gin.MIMEMultipartPOSTForm && c.Request.Body != nil {
			var buf bytes.Buffer
			tee := io.TeeReader(c.Request.Body, &buf)
			body, _ := io.ReadAll(tee)
			c.Request.Body = io.NopCloser(&buf)

			if len(body) > 0 {
				log.WithFields(logrus.Fields{
					FieldTraceID: c.GetString(TraceIDKey),
					FieldMethod:  c.Request.Method,
					FieldPath:    c.Request.URL.Path,
					"body":       truncate(body),
				}).Debug("Request body")
			}
		}

		c.Next()
	}
}

// ResponseLogger 响应日志中间件
// 记录响应体内容，通常仅用于开发调试
func ResponseLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 仅在debug级别时记录响应体
		if !log.IsLevelEnabled(logrus.DebugLevel) {
			c.Next()
			return
		}

		// 创建一个自定义的写入器来捕获响应
		writer := &responseBodyWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBufferString(""),
		}
		c.Writer = writer

		c.Next()

		// 请求完成后记录响应体
		log.WithFields(logrus.Fields{
			FieldTraceID: c.GetString(TraceIDKey),
			FieldMethod:  c.Request.Method,
			FieldPath:    c.Request.URL.Path,
			FieldStatus:  c.Writer.Status(),
			"response":   truncate(writer.body.Bytes()),
		}).Debug("Response body")
	}
}

// responseBodyWriter 自定义的响应写入器
// 用于捕获响应体内容
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 重写Write方法，将响应体同时写入buffer
func (r *responseBodyWriter) Write(b []byte) (int, error) {
	if r.body.Len() < maxLoggedBody {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}

// SetTraceID 将追踪ID设置到上下文和响应头中
func SetTraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从请求头中获取追踪ID
		traceID := c.GetHeader(TraceIDHeader)

		// 如果没有，则生成一个新的
		if traceID == "" || len(traceID) > 64 {
			traceID = uuid.New().String()
		}

		// 设置到上下文
		c.Set(TraceIDKey, traceID)

		// 设置到响应头
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// 常用日志字段
const (
	FieldTraceID  = "trace_id"    // 追踪ID
	FieldPath     = "path"        // 请求路径
	FieldMethod   = "method"      // 请求方法
	FieldStatus   = "status_code" // 状态码
	FieldLatency  = "latency"     // 延迟时间
	FieldClientIP = "client_ip"   // 客户端IP
	FieldError    = "error"       // 错误信息
)

// GetLogger 返回API层共用的日志记录器
func GetLogger() *logrus.Logger {
	return log
}

// ConfigureLogger 设置日志级别、格式与输出
// level无法解析时保持当前级别
func ConfigureLogger(level, format string, out io.Writer) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}
	if out != nil {
		log.SetOutput(out)
	}
}
