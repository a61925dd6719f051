package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/chroma-admin/api"
	"github.com/fyerfyer/chroma-admin/api/handler"
	"github.com/fyerfyer/chroma-admin/api/middleware"
	appconfig "github.com/fyerfyer/chroma-admin/config"
	"github.com/fyerfyer/chroma-admin/internal/cache"
	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/fyerfyer/chroma-admin/internal/database"
	"github.com/fyerfyer/chroma-admin/internal/document"
	"github.com/fyerfyer/chroma-admin/internal/embedding"
	"github.com/fyerfyer/chroma-admin/internal/repository"
	"github.com/fyerfyer/chroma-admin/internal/services"
	"github.com/fyerfyer/chroma-admin/pkg/storage"
	"github.com/fyerfyer/chroma-admin/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 命令行参数，显式指定时覆盖配置文件
type flags struct {
	ConfigFile string // 配置文件路径
	Port       int    // 服务端口
	Mode       string // 运行模式 (debug/release)
	LogLevel   string // 日志级别
	ChromaURL  string // 远程向量库地址
	Queue      bool   // 是否启用任务队列
}

func main() {
	f := parseFlags()

	cfg, err := appconfig.Load(f.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, f)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	logger := setupLogger(cfg.Log)
	logger.Info("Starting Chroma Admin...")

	client, err := chroma.New(&chroma.Config{
		BaseURL:    cfg.Chroma.BaseURL,
		APIPath:    cfg.Chroma.APIPath,
		Timeout:    cfg.Chroma.Timeout,
		MaxRetries: cfg.Chroma.MaxRetries,
		RetryDelay: cfg.Chroma.RetryDelay,
		AuthToken:  cfg.Chroma.AuthToken,
		Tenant:     cfg.Chroma.Tenant,
		Database:   cfg.Chroma.Database,
	}, chroma.WithLogger(logger))
	if err != nil {
		logger.Fatalf("Failed to initialize chroma client: %v", err)
	}
	logger.WithField("base_url", cfg.Chroma.BaseURL).Info("Chroma client initialized")

	// 公共服务选项
	common := []services.Option{services.WithLogger(logger)}

	embedder, err := setupEmbedding(cfg.Embed)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}
	if embedder != nil {
		common = append(common,
			services.WithEmbedder(embedder),
			services.WithBatchSize(cfg.Embed.BatchSize),
			services.WithWorkers(cfg.Embed.Workers),
		)
		logger.WithField("model", cfg.Embed.Model).Info("Embeddings computed locally")
	}

	analyticsOpts := []services.Option{services.WithLogger(logger), services.WithSampleSize(cfg.Analytics.SampleSize)}
	if cfg.Cache.Enable {
		cacheService, err := setupCache(cfg.Cache)
		if err != nil {
			logger.Fatalf("Failed to initialize cache: %v", err)
		}
		analyticsOpts = append(analyticsOpts, services.WithCache(cacheService, cfg.Cache.TTL))
	}
	analyticsService := services.NewAnalyticsService(client, analyticsOpts...)
	common = append(common, services.WithInvalidator(analyticsService))

	transferOpts := append([]services.Option{}, common...)
	transferOpts = append(transferOpts, services.WithFetchOptions(
		document.WithFetchTimeout(cfg.Fetch.Timeout),
		document.WithMaxBytes(cfg.Fetch.MaxBytes),
	))

	if cfg.Storage.Enable {
		exportStorage, err := setupStorage(cfg.Storage)
		if err != nil {
			logger.Fatalf("Failed to initialize storage: %v", err)
		}
		transferOpts = append(transferOpts, services.WithStorage(exportStorage))
	}

	// 初始化任务队列（如果启用）
	var queue *taskqueue.RedisQueue
	if cfg.Queue.Enable {
		queue, err = setupTaskQueue(cfg.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		transferOpts = append(transferOpts, services.WithTaskQueue(queue))
	}

	collectionService := services.NewCollectionService(client, common...)
	documentService := services.NewDocumentService(client, common...)
	queryService := services.NewQueryService(client, common...)
	transferService := services.NewTransferService(client, documentService, transferOpts...)

	if queue != nil {
		worker := taskqueue.NewRedisWorker(queue, nil)
		taskqueue.RegisterHandlers(worker, transferService.ImportTaskHandler())
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start task worker: %v", err)
		}
		defer worker.Stop()
		logger.Info("Task worker started")
	}

	routerOpts := api.RouterOptions{
		CorsOrigins: cfg.CORS.Origins,
		MaxUpload:   cfg.Server.MaxUploadMB << 20,
	}

	requestLogs, err := setupRequestLog(cfg.RequestLog, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize request log: %v", err)
	}
	defer database.Close()
	if cfg.RequestLog.Enable {
		routerOpts.Recorder = requestLogs
	}

	if cfg.RateLimit.Enable {
		limit, err := setupRateLimit(cfg.RateLimit)
		if err != nil {
			logger.Fatalf("Failed to initialize rate limiter: %v", err)
		}
		routerOpts.RateLimit = limit
	}

	r := api.SetupRouter(api.Handlers{
		Collection: handler.NewCollectionHandler(collectionService),
		Document:   handler.NewDocumentHandler(documentService, queryService),
		Transfer:   handler.NewTransferHandler(transferService),
		Task:       handler.NewTaskHandler(transferService),
		Chunk:      handler.NewChunkHandler(),
		Analytics:  handler.NewAnalyticsHandler(analyticsService),
		Logs:       handler.NewLogHandler(requestLogs),
	}, routerOpts)

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	f := flags{}
	flag.StringVar(&f.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.IntVar(&f.Port, "port", 8080, "Server port")
	flag.StringVar(&f.Mode, "mode", "release", "Run mode (debug/release)")
	flag.StringVar(&f.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	flag.StringVar(&f.ChromaURL, "chroma-url", "", "Chroma base URL, memory:// for an in-process store")
	flag.BoolVar(&f.Queue, "queue", false, "Enable async import queue")
	flag.Parse()
	return f
}

// applyFlags 只应用命令行上明确设置的参数
func applyFlags(cfg *appconfig.Config, f flags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			cfg.Server.Port = f.Port
		case "mode":
			cfg.Server.Mode = f.Mode
		case "log-level":
			cfg.Log.Level = f.LogLevel
		case "chroma-url":
			cfg.Chroma.BaseURL = f.ChromaURL
		case "queue":
			cfg.Queue.Enable = f.Queue
		}
	})
}

// setupLogger 设置日志系统，配置了文件时同时写入按大小轮转的日志文件
func setupLogger(cfg appconfig.LogConfig) *logrus.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	middleware.ConfigureLogger(cfg.Level, cfg.Format, out)
	return middleware.GetLogger()
}

// setupEmbedding 设置嵌入模型客户端，未启用时返回nil
func setupEmbedding(cfg appconfig.EmbedConfig) (embedding.Client, error) {
	if !cfg.Enable {
		return nil, nil
	}
	return embedding.NewClient(cfg.Provider,
		embedding.WithAPIKey(cfg.APIKey),
		embedding.WithBaseURL(cfg.Endpoint),
		embedding.WithModel(cfg.Model),
		embedding.WithDimensions(cfg.Dimensions),
		embedding.WithBatchSize(cfg.BatchSize),
		embedding.WithTimeout(cfg.Timeout),
	)
}

// setupCache 设置缓存服务
func setupCache(cfg appconfig.CacheConfig) (cache.Cache, error) {
	return cache.NewCache(cache.Config{
		Type:            cfg.Type,
		RedisAddr:       cfg.Address,
		RedisPassword:   cfg.Password,
		RedisDB:         cfg.DB,
		KeyPrefix:       cfg.KeyPrefix,
		DefaultTTL:      cfg.TTL,
		CleanupInterval: 10 * time.Minute,
	})
}

// setupStorage 设置导出快照存储
func setupStorage(cfg appconfig.StorageConfig) (storage.Storage, error) {
	return storage.NewStorage(storage.Config{
		Type:  cfg.Type,
		Local: storage.LocalConfig{Path: cfg.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		},
	})
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg appconfig.QueueConfig, logger *logrus.Logger) (*taskqueue.RedisQueue, error) {
	logger.WithFields(logrus.Fields{
		"redis_addr":  cfg.RedisAddr,
		"concurrency": cfg.Concurrency,
		"retry_limit": cfg.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewRedisQueue(&taskqueue.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Concurrency:   cfg.Concurrency,
		RetryLimit:    cfg.RetryLimit,
		RetryDelay:    cfg.RetryDelay,
	}, taskqueue.WithQueueLogger(logger))
}

// setupRequestLog 设置请求日志服务，sqlite存储时初始化数据库
func setupRequestLog(cfg appconfig.RequestLogConfig, logger *logrus.Logger) (*services.RequestLogService, error) {
	var repo repository.RequestLogRepository
	switch cfg.Store {
	case "sqlite":
		dbConfig := database.DefaultConfig()
		dbConfig.DSN = cfg.DSN
		db, err := database.Setup(dbConfig, logger)
		if err != nil {
			return nil, err
		}
		repo = repository.NewRequestLogRepositoryWithDB(db, cfg.Retention)
	default:
		repo = repository.NewMemoryRequestLogRepository(cfg.Retention)
	}
	return services.NewRequestLogService(repo, services.WithLogger(logger)), nil
}

// setupRateLimit 设置限流中间件
func setupRateLimit(cfg appconfig.RateLimitConfig) (gin.HandlerFunc, error) {
	limitCfg := middleware.RateLimitConfig{
		Rate:      cfg.Rate,
		Store:     cfg.Store,
		SkipPaths: []string{"/api/health"},
	}
	if cfg.Store == "redis" {
		limitCfg.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return middleware.RateLimit(limitCfg)
}
