package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fyerfyer/chroma-admin/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// RequestRecorder 保存请求日志
type RequestRecorder interface {
	Record(l *models.RequestLog) error
}

// RequestCapture 将每个API请求记录到请求日志
// 以skipPrefixes开头的路径与OPTIONS预检请求不记录
func RequestCapture(recorder RequestRecorder, skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.Method == http.MethodOptions || hasAnyPrefix(path, skipPrefixes) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		entry := &models.RequestLog{
			TraceID:      c.GetString(TraceIDKey),
			Method:       c.Request.Method,
			Path:         path,
			Route:        c.FullPath(),
			Status:       c.Writer.Status(),
			LatencyMs:    float64(time.Since(start).Microseconds()) / 1000,
			ClientIP:     c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			RequestSize:  c.Request.ContentLength,
			ResponseSize: c.Writer.Size(),
			CreatedAt:    start,
		}
		if entry.ResponseSize < 0 {
			entry.ResponseSize = 0
		}
		if query := c.Request.URL.Query(); len(query) > 0 {
			if b, err := json.Marshal(query); err == nil {
				entry.Query = datatypes.JSON(b)
			}
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.Last().Error()
		}

		// 记录失败不影响请求
		if err := recorder.Record(entry); err != nil {
			log.WithError(err).WithField(FieldPath, path).Warn("Failed to capture request log")
		}
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
