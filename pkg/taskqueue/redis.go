package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// 任务键前缀
	taskKeyPrefix = "task:"
	// 集合任务集合键前缀
	collectionTasksKeyPrefix = "collection_tasks:"
	// 默认任务过期时间（7天）
	defaultTaskExpiry = 7 * 24 * time.Hour
	// asynq默认队列
	defaultQueueName = "default"
)

// RedisQueue Redis任务队列实现
// asynq负责调度，任务记录单独保存在Redis中供查询
type RedisQueue struct {
	client      *asynq.Client    // 用于添加任务
	inspector   *asynq.Inspector // 用于删除未处理的任务
	redisClient *redis.Client    // 任务记录存储
	cfg         *Config
	logger      *logrus.Logger
}

// QueueOption 队列配置选项
type QueueOption func(*RedisQueue)

// WithQueueLogger 设置日志记录器
func WithQueueLogger(logger *logrus.Logger) QueueOption {
	return func(q *RedisQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewRedisQueue 创建Redis任务队列实例
func NewRedisQueue(cfg *Config, opts ...QueueOption) (*RedisQueue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TaskExpiry <= 0 {
		cfg.TaskExpiry = defaultTaskExpiry
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试Redis连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	opt := redisOpt(cfg)
	q := &RedisQueue{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(q)
	}
	return q, nil
}

func redisOpt(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Enqueue 将任务加入队列
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, collection string, payload interface{}) (string, error) {
	taskID := uuid.New().String()

	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         taskID,
		Type:       taskType,
		Collection: collection,
		Status:     StatusPending,
		Payload:    payloadBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}

	// 先保存记录，保证工作者取到任务时记录已存在
	if err := q.saveTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to save task to redis: %w", err)
	}

	asynqTask := asynq.NewTask(string(taskType), []byte(taskID),
		asynq.TaskID(taskID),
		asynq.Queue(defaultQueueName),
		asynq.MaxRetry(q.cfg.RetryLimit),
	)
	if _, err := q.client.EnqueueContext(ctx, asynqTask); err != nil {
		q.redisClient.Del(ctx, taskKeyPrefix+taskID)
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":    taskID,
		"task_type":  taskType,
		"collection": collection,
	}).Info("Task enqueued successfully")

	return taskID, nil
}

// GetTask 获取任务信息
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task from redis: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task data: %w", err)
	}
	return &task, nil
}

// GetTasksByCollection 获取集合相关的所有任务
func (q *RedisQueue) GetTasksByCollection(ctx context.Context, collection string) ([]*Task, error) {
	taskIDs, err := q.redisClient.SMembers(ctx, collectionTasksKeyPrefix+collection).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get collection tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				// 任务可能已过期被删除，跳过
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// UpdateTaskStatus 更新任务状态
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now

	if status == StatusProcessing {
		task.Attempts++
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	}
	if status.Finished() {
		task.CompletedAt = &now
	}

	if result != nil {
		resultBytes, err := MarshalPayload(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		task.Result = resultBytes
	}
	task.Error = errMsg

	return q.saveTask(ctx, task)
}

// DeleteTask 删除任务
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Collection != "" {
		if err := q.redisClient.SRem(ctx, collectionTasksKeyPrefix+task.Collection, taskID).Err(); err != nil {
			return fmt.Errorf("failed to remove task from collection tasks: %w", err)
		}
	}
	if err := q.redisClient.Del(ctx, taskKeyPrefix+taskID).Err(); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	// 已在处理中的任务无法从asynq删除
	if err := q.inspector.DeleteTask(defaultQueueName, taskID); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Debug("Task not removed from asynq queue")
	}
	return nil
}

// Close 关闭队列连接
func (q *RedisQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.redisClient.Close()
}

// saveTask 将任务信息保存到Redis
func (q *RedisQueue) saveTask(ctx context.Context, task *Task) error {
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.redisClient.Set(ctx, taskKeyPrefix+task.ID, taskData, q.cfg.TaskExpiry).Err(); err != nil {
		return fmt.Errorf("failed to save task data: %w", err)
	}

	if task.Collection != "" {
		key := collectionTasksKeyPrefix + task.Collection
		if err := q.redisClient.SAdd(ctx, key, task.ID).Err(); err != nil {
			return fmt.Errorf("failed to add task to collection tasks: %w", err)
		}
		q.redisClient.Expire(ctx, key, q.cfg.TaskExpiry)
	}
	return nil
}

// RedisWorker Redis工作者实现
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建Redis工作者
func NewRedisWorker(queue *RedisQueue, cfg *Config) *RedisWorker {
	if cfg == nil {
		cfg = queue.cfg
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{defaultQueueName: 1}
	}

	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return cfg.RetryDelay
		},
		Logger: queue.logger,
	})

	return &RedisWorker{
		server:   server,
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

// RegisterHandler 注册任务处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
	w.logger.WithField("task_type", taskType).Info("Registered handler for task type")
}

// Start 启动工作者
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()
	for taskType, handler := range w.handlers {
		h := handler
		mux.HandleFunc(string(taskType), func(ctx context.Context, t *asynq.Task) error {
			return w.process(ctx, h, string(t.Payload()))
		})
	}
	return w.server.Start(mux)
}

// Stop 停止工作者
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// process 执行单个任务并维护状态流转：pending → processing → completed|failed
func (w *RedisWorker) process(ctx context.Context, h Handler, taskID string) error {
	log := w.logger.WithField("task_id", taskID)

	task, err := w.queue.GetTask(ctx, taskID)
	if err != nil {
		log.WithError(err).Error("Failed to get task info")
		if errors.Is(err, ErrTaskNotFound) {
			// 记录已过期，重试无意义
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		return err
	}

	if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""); err != nil {
		log.WithError(err).Error("Failed to update task status to processing")
	}

	start := time.Now()
	result, err := h.ProcessTask(ctx, task)
	if err != nil {
		if updateErr := w.queue.UpdateTaskStatus(ctx, taskID, StatusFailed, result, err.Error()); updateErr != nil {
			log.WithError(updateErr).Error("Failed to update task status after failure")
		}
		log.WithError(err).WithField("type", task.Type).Warn("Task failed")
		return err
	}

	if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""); err != nil {
		log.WithError(err).Error("Failed to update task status after completion")
	}
	log.WithFields(logrus.Fields{
		"type":     task.Type,
		"duration": time.Since(start).String(),
	}).Info("Task completed")
	return nil
}

func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		q, err := NewRedisQueue(cfg)
		if err != nil {
			return nil, err
		}
		return q, nil
	})
}
