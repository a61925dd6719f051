package handler

import (
	"net/http"

	"github.com/fyerfyer/chroma-admin/api/middleware"
	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/gin-gonic/gin"
)

// ChunkHandler 分块预览，不写入向量库
type ChunkHandler struct{}

// NewChunkHandler 创建分块预览处理器
func NewChunkHandler() *ChunkHandler {
	return &ChunkHandler{}
}

// Preview 预览分块结果
// POST /api/chunks/preview
func (h *ChunkHandler) Preview(c *gin.Context) {
	var req model.ChunkPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	opts := *req.ChunkingRequest.ToOptions()
	estimate, err := document.EstimateChunks(req.Text, opts)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	chunks, err := document.ChunkText(req.Text, opts)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	docs := []document.ChunkedDocument{}
	if req.BaseID != "" {
		docs, err = document.CreateChunkedDocuments(req.BaseID, req.Text, opts, req.Metadata)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChunkPreviewResponse{
		Options:   opts,
		Estimate:  estimate,
		Count:     len(chunks),
		Chunks:    chunks,
		Documents: docs,
	}))
}
