package handler

import (
	"net/http"

	"github.com/fyerfyer/chroma-admin/api/middleware"
	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 处理异步任务相关的API请求
type TaskHandler struct {
	transfer *services.TransferService // 导入导出服务，持有任务队列
	logger   *logrus.Logger            // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(transfer *services.TransferService) *TaskHandler {
	return &TaskHandler{
		transfer: transfer,
		logger:   middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		middleware.HandleError(c, middleware.NewValidationError("任务ID不能为空"))
		return
	}

	info, err := h.transfer.GetTask(c.Request.Context(), taskID)
	if err != nil {
		h.logger.WithError(err).WithField("task_id", taskID).Debug("Failed to get task")
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(info))
}
