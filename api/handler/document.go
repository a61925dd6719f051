package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fyerfyer/chroma-admin/api/middleware"
	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/gin-gonic/gin"
)

// DocumentHandler 处理文档与查询相关的API请求
type DocumentHandler struct {
	documents *services.DocumentService // 文档服务
	query     *services.QueryService    // 查询服务
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(documents *services.DocumentService, query *services.QueryService) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		query:     query,
	}
}

// ListDocuments 分页获取集合中的文档
// GET /api/collections/:name/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的查询参数", err.Error()))
		return
	}

	var where map[string]interface{}
	if req.Where != "" {
		if err := json.Unmarshal([]byte(req.Where), &where); err != nil {
			middleware.HandleError(c, middleware.NewValidationError("where必须是JSON对象", err.Error()))
			return
		}
	}

	page, err := h.documents.List(c.Request.Context(), c.Param("name"), req.Limit, req.Offset, where)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(page))
}

// AddDocument 新增文档，可选分块
// POST /api/collections/:name/documents
func (h *DocumentHandler) AddDocument(c *gin.Context) {
	var req model.AddDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	result, err := h.documents.Add(c.Request.Context(), c.Param("name"), services.AddDocumentInput{
		ID:       req.ID,
		Text:     req.Text,
		Metadata: req.Metadata,
		Chunking: req.Chunking.ToOptions(),
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.NewSuccessResponse(result))
}

// UpdateDocument 更新文档内容或元数据
// PUT /api/collections/:name/documents/:id
func (h *DocumentHandler) UpdateDocument(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的文档ID"))
		return
	}
	var req model.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	if err := h.documents.Update(c.Request.Context(), uri.Name, uri.ID, req.Text, req.Metadata); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"id": uri.ID, "updated": true}))
}

// DeleteDocument 删除单个文档
// DELETE /api/collections/:name/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的文档ID"))
		return
	}

	h.delete(c, uri.Name, []string{uri.ID})
}

// DeleteDocuments 批量删除文档
// POST /api/collections/:name/documents/delete
func (h *DocumentHandler) DeleteDocuments(c *gin.Context) {
	var req model.DeleteDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	h.delete(c, c.Param("name"), req.IDs)
}

func (h *DocumentHandler) delete(c *gin.Context, collection string, ids []string) {
	deleted, err := h.documents.Delete(c.Request.Context(), collection, ids)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteResponse{
		Success: true,
		IDs:     deleted,
	}))
}

// Query 相似度查询
// POST /api/collections/:name/query
func (h *DocumentHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的查询参数", err.Error()))
		return
	}

	include := make([]chroma.Include, len(req.Include))
	for i, inc := range req.Include {
		include[i] = chroma.Include(inc)
	}

	output, err := h.query.Query(c.Request.Context(), c.Param("name"), services.QueryInput{
		Texts:         req.QueryTexts,
		NResults:      req.NResults,
		Where:         req.Where,
		WhereDocument: req.WhereDocument,
		Include:       include,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(output))
}
