package api

import (
	"github.com/fyerfyer/chroma-admin/api/handler"
	"github.com/fyerfyer/chroma-admin/api/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers 路由使用的全部处理器
type Handlers struct {
	Collection *handler.CollectionHandler
	Document   *handler.DocumentHandler
	Transfer   *handler.TransferHandler
	Task       *handler.TaskHandler
	Chunk      *handler.ChunkHandler
	Analytics  *handler.AnalyticsHandler
	Logs       *handler.LogHandler
}

// RouterOptions 路由的可选中间件
type RouterOptions struct {
	CorsOrigins []string                   // 允许的跨域来源，为空时允许全部
	RateLimit   gin.HandlerFunc            // 限流中间件，nil表示不限流
	Recorder    middleware.RequestRecorder // 请求日志记录器，nil表示不记录
	MaxUpload   int64                      // multipart表单内存上限（字节）
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(h Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	if opts.MaxUpload > 0 {
		router.MaxMultipartMemory = opts.MaxUpload
	}

	// 应用全局中间件，ErrorMiddleware需在请求日志之内，以便记录最终状态码
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	if opts.Recorder != nil {
		router.Use(middleware.RequestCapture(opts.Recorder, "/api/logs"))
	}
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.Cors(opts.CorsOrigins))
	if opts.RateLimit != nil {
		router.Use(opts.RateLimit)
	}

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	api := router.Group("/api")
	{
		// 健康检查 - GET /api/health
		api.GET("/health", h.Collection.Health)

		colGroup := api.Group("/collections")
		{
			colGroup.GET("", h.Collection.ListCollections)
			colGroup.POST("", h.Collection.CreateCollection)
			colGroup.GET("/:name", h.Collection.GetCollection)
			colGroup.DELETE("/:name", h.Collection.DeleteCollection)

			// 文档管理
			colGroup.GET("/:name/documents", h.Document.ListDocuments)
			colGroup.POST("/:name/documents", h.Document.AddDocument)
			colGroup.PUT("/:name/documents/:id", h.Document.UpdateDocument)
			colGroup.DELETE("/:name/documents/:id", h.Document.DeleteDocument)
			colGroup.POST("/:name/documents/delete", h.Document.DeleteDocuments)

			// 相似度查询
			colGroup.POST("/:name/query", h.Document.Query)

			// 导入导出
			colGroup.POST("/:name/import", h.Transfer.ImportFile)
			colGroup.POST("/:name/import/records", h.Transfer.ImportRecords)
			colGroup.POST("/:name/import/url", h.Transfer.ImportURL)
			colGroup.GET("/:name/export", h.Transfer.Export)
		}

		exportGroup := api.Group("/exports")
		{
			exportGroup.GET("", h.Transfer.ListExports)
			exportGroup.GET("/:id", h.Transfer.DownloadExport)
			exportGroup.DELETE("/:id", h.Transfer.DeleteExport)
		}

		// 分块预览 - POST /api/chunks/preview
		api.POST("/chunks/preview", h.Chunk.Preview)

		api.GET("/analytics", h.Analytics.Overview)
		api.POST("/analytics/invalidate", h.Analytics.Invalidate)

		logGroup := api.Group("/logs")
		{
			logGroup.GET("", h.Logs.List)
			logGroup.GET("/stats", h.Logs.Stats)
			logGroup.DELETE("", h.Logs.Clear)
		}

		// 异步任务状态 - GET /api/tasks/:id
		api.GET("/tasks/:id", h.Task.GetTaskStatus)
	}

	return router
}
