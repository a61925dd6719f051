package handler

import (
	"net/http"

	"github.com/fyerfyer/chroma-admin/api/middleware"
	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/fyerfyer/chroma-admin/internal/models"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/gin-gonic/gin"
)

// LogHandler 请求日志查询
type LogHandler struct {
	logs *services.RequestLogService
}

// NewLogHandler 创建请求日志处理器
func NewLogHandler(logs *services.RequestLogService) *LogHandler {
	return &LogHandler{logs: logs}
}

// List 最近的请求日志
// GET /api/logs
func (h *LogHandler) List(c *gin.Context) {
	var req model.RequestLogQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的查询参数", err.Error()))
		return
	}

	logs, err := h.logs.Recent(req.Limit, models.RequestLogFilter{
		Method:      req.Method,
		PathPrefix:  req.Path,
		StatusClass: req.Status,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RequestLogListResponse{
		Total: len(logs),
		Logs:  logs,
	}))
}

// Stats 请求日志统计
// GET /api/logs/stats
func (h *LogHandler) Stats(c *gin.Context) {
	stats, err := h.logs.Stats()
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(stats))
}

// Clear 清空请求日志
// DELETE /api/logs
func (h *LogHandler) Clear(c *gin.Context) {
	if err := h.logs.Clear(); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"cleared": true}))
}
