package taskqueue

import "context"

// HandlerFunc 以函数形式实现Handler
type HandlerFunc func(ctx context.Context, task *Task) (interface{}, error)

type funcHandler struct {
	fn    HandlerFunc
	types []TaskType
}

// NewHandler 将函数包装为处理指定任务类型的Handler
func NewHandler(fn HandlerFunc, types ...TaskType) Handler {
	return &funcHandler{fn: fn, types: types}
}

func (h *funcHandler) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	return h.fn(ctx, task)
}

func (h *funcHandler) GetTaskTypes() []TaskType {
	return h.types
}

// RegisterHandlers 按处理器声明的任务类型注册到工作者
func RegisterHandlers(w Worker, handlers ...Handler) {
	for _, h := range handlers {
		for _, t := range h.GetTaskTypes() {
			w.RegisterHandler(t, h)
		}
	}
}
