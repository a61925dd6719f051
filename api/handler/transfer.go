package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fyerfyer/chroma-admin/api/middleware"
	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TransferHandler 处理导入导出相关的API请求
type TransferHandler struct {
	transfer *services.TransferService // 导入导出服务
	logger   *logrus.Logger            // 日志记录器
}

// NewTransferHandler 创建新的导入导出处理器
func NewTransferHandler(transfer *services.TransferService) *TransferHandler {
	return &TransferHandler{
		transfer: transfer,
		logger:   middleware.GetLogger(),
	}
}

// ImportFile 上传文件导入
// POST /api/collections/:name/import
func (h *TransferHandler) ImportFile(c *gin.Context) {
	var req model.ImportFileRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("请上传文件", err.Error()))
		return
	}

	var metadata map[string]interface{}
	if req.Metadata != "" {
		if err := json.Unmarshal([]byte(req.Metadata), &metadata); err != nil {
			middleware.HandleError(c, middleware.NewValidationError("metadata必须是JSON对象", err.Error()))
			return
		}
	}

	file, err := req.File.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("无法读取上传文件", err.Error()))
		return
	}
	defer file.Close()

	collection := c.Param("name")
	h.logger.WithFields(logrus.Fields{
		"collection": collection,
		"filename":   req.File.Filename,
		"size":       req.File.Size,
	}).Info("Importing file")

	if isAsync(c) {
		taskID, err := h.transfer.EnqueueImportFile(c.Request.Context(), collection, req.File.Filename, file, req.Chunking(), metadata, services.WithUpsert(req.Upsert))
		h.accepted(c, taskID, err)
		return
	}

	result, err := h.transfer.ImportFile(c.Request.Context(), collection, req.File.Filename, file, req.Chunking(), metadata, services.WithUpsert(req.Upsert))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewSuccessResponse(result))
}

// ImportRecords 导入JSON记录
// POST /api/collections/:name/import/records
func (h *TransferHandler) ImportRecords(c *gin.Context) {
	var req model.ImportRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	collection := c.Param("name")
	if isAsync(c) {
		taskID, err := h.transfer.EnqueueImportRecords(c.Request.Context(), collection, req.ToRecords(), req.Chunking.ToOptions(), services.WithUpsert(req.Upsert))
		h.accepted(c, taskID, err)
		return
	}

	result, err := h.transfer.ImportRecords(c.Request.Context(), collection, req.ToRecords(), req.Chunking.ToOptions(), services.WithUpsert(req.Upsert))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewSuccessResponse(result))
}

// ImportURL 抓取网页导入
// POST /api/collections/:name/import/url
func (h *TransferHandler) ImportURL(c *gin.Context) {
	var req model.ImportURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	collection := c.Param("name")
	if isAsync(c) {
		taskID, err := h.transfer.EnqueueImportURL(c.Request.Context(), collection, req.URL, req.ID, req.Chunking.ToOptions(), req.Metadata, services.WithUpsert(req.Upsert))
		h.accepted(c, taskID, err)
		return
	}

	result, err := h.transfer.ImportURL(c.Request.Context(), collection, req.URL, req.ID, req.Chunking.ToOptions(), req.Metadata, services.WithUpsert(req.Upsert))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewSuccessResponse(result))
}

func (h *TransferHandler) accepted(c *gin.Context, taskID string, err error) {
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.AsyncTaskResponse{
		TaskID: taskID,
		Status: "pending",
	}))
}

// Export 导出集合
// GET /api/collections/:name/export
// save=true时保存快照并返回快照信息，否则直接下载
func (h *TransferHandler) Export(c *gin.Context) {
	var req model.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的导出参数", err.Error()))
		return
	}
	format := req.Format
	if format == "" {
		format = services.FormatJSON
	}
	collection := c.Param("name")

	if req.Save {
		info, err := h.transfer.SaveExport(c.Request.Context(), collection, format)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, model.NewSuccessResponse(info))
		return
	}

	// 先写入缓冲，出错时仍可返回JSON错误
	var buf strings.Builder
	count, err := h.transfer.Export(c.Request.Context(), collection, format, &buf)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", collection+"."+format))
	c.Header("X-Export-Count", strconv.Itoa(count))
	c.Data(http.StatusOK, contentType(format), []byte(buf.String()))
}

// ListExports 列出保存的导出快照
// GET /api/exports
func (h *TransferHandler) ListExports(c *gin.Context) {
	exports, err := h.transfer.ListExports()
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ExportListResponse{
		Total:   len(exports),
		Exports: exports,
	}))
}

// DownloadExport 下载导出快照
// GET /api/exports/:id
func (h *TransferHandler) DownloadExport(c *gin.Context) {
	rc, info, err := h.transfer.OpenExport(c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name))
	c.Header("Content-Type", info.MimeType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.WithError(err).WithField("export_id", info.ID).Warn("Failed to stream export")
	}
}

// DeleteExport 删除导出快照
// DELETE /api/exports/:id
func (h *TransferHandler) DeleteExport(c *gin.Context) {
	id := c.Param("id")
	if err := h.transfer.DeleteExport(id); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteResponse{
		Success: true,
		IDs:     []string{id},
	}))
}

func isAsync(c *gin.Context) bool {
	var q model.AsyncQuery
	_ = c.ShouldBindQuery(&q)
	return q.Async
}

func contentType(format string) string {
	if format == services.FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}
