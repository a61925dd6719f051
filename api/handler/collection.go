package handler

import (
	"net/http"
	"strings"

	"github.com/fyerfyer/chroma-admin/api/middleware"
	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CollectionHandler 处理集合相关的API请求
type CollectionHandler struct {
	collections *services.CollectionService // 集合服务
	logger      *logrus.Logger              // 日志记录器
}

// NewCollectionHandler 创建新的集合处理器
func NewCollectionHandler(collections *services.CollectionService) *CollectionHandler {
	return &CollectionHandler{
		collections: collections,
		logger:      middleware.GetLogger(),
	}
}

// Health 检查远程向量库是否可用
// GET /api/health
func (h *CollectionHandler) Health(c *gin.Context) {
	status, err := h.collections.Health(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Chroma health check failed")
		c.JSON(http.StatusServiceUnavailable, model.NewErrorResponse(
			http.StatusServiceUnavailable,
			"远程向量库不可用",
		).WithData(model.HealthResponse{Status: "unavailable", Error: err.Error()}))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.HealthResponse{
		Status: "ok",
		Chroma: status,
	}))
}

// ListCollections 获取集合列表及文档数
// GET /api/collections
func (h *CollectionHandler) ListCollections(c *gin.Context) {
	collections, err := h.collections.List(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.CollectionListResponse{
		Total:       len(collections),
		Collections: collections,
	}))
}

// CreateCollection 创建集合
// POST /api/collections
func (h *CollectionHandler) CreateCollection(c *gin.Context) {
	var req model.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		middleware.HandleError(c, middleware.NewValidationError("集合名称不能为空"))
		return
	}

	collection, err := h.collections.Create(c.Request.Context(), req.Name, req.Metadata, req.GetOrCreate)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"collection": collection.Name,
		"id":         collection.ID,
	}).Info("Collection created")

	c.JSON(http.StatusCreated, model.NewSuccessResponse(collection))
}

// GetCollection 获取集合详情
// GET /api/collections/:name
func (h *CollectionHandler) GetCollection(c *gin.Context) {
	var uri model.CollectionNameURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的集合名称"))
		return
	}

	collection, err := h.collections.Get(c.Request.Context(), uri.Name)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(collection))
}

// DeleteCollection 删除集合
// DELETE /api/collections/:name
func (h *CollectionHandler) DeleteCollection(c *gin.Context) {
	var uri model.CollectionNameURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的集合名称"))
		return
	}

	if err := h.collections.Delete(c.Request.Context(), uri.Name); err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithField("collection", uri.Name).Info("Collection deleted")
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteResponse{
		Success: true,
		Name:    uri.Name,
	}))
}
