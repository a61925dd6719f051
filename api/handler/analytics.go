package handler

import (
	"net/http"

	"github.com/fyerfyer/chroma-admin/api/middleware"
	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/gin-gonic/gin"
)

// AnalyticsHandler 处理统计概览请求
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

// NewAnalyticsHandler 创建统计处理器
func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Overview 获取统计概览
// GET /api/analytics
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	var req model.AnalyticsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的查询参数", err.Error()))
		return
	}

	var (
		overview *services.Overview
		err      error
	)
	if req.Refresh {
		overview, err = h.analytics.Refresh(c.Request.Context())
	} else {
		overview, err = h.analytics.Overview(c.Request.Context())
	}
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(overview))
}

// Invalidate 手动清除统计缓存
// POST /api/analytics/invalidate
func (h *AnalyticsHandler) Invalidate(c *gin.Context) {
	if err := h.analytics.Invalidate(); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("清除统计缓存失败", err.Error()))
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"invalidated": true}))
}
