package taskqueue

import (
	"context"
	"fmt"
	"time"
)

// Queue 定义任务队列的接口
// 负责任务的入队、获取状态和结果等操作
type Queue interface {
	// Enqueue 将任务加入队列，返回任务ID
	Enqueue(ctx context.Context, taskType TaskType, collection string, payload interface{}) (string, error)

	// GetTask 获取任务信息，不存在时返回 ErrTaskNotFound
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetTasksByCollection 获取集合相关的所有任务
	GetTasksByCollection(ctx context.Context, collection string) ([]*Task, error)

	// UpdateTaskStatus 更新任务状态和结果
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error

	// DeleteTask 删除任务记录
	DeleteTask(ctx context.Context, taskID string) error

	// Close 关闭队列连接
	Close() error
}

// Handler 任务处理器接口
type Handler interface {
	// ProcessTask 处理任务，返回值会写入任务结果
	ProcessTask(ctx context.Context, task *Task) (interface{}, error)

	// GetTaskTypes 返回此处理器支持的任务类型
	GetTaskTypes() []TaskType
}

// Worker 工作者接口
// 负责运行一组Handler来处理队列中的任务
type Worker interface {
	// RegisterHandler 注册任务处理器
	RegisterHandler(taskType TaskType, handler Handler)

	// Start 启动工作者，开始处理任务
	Start() error

	// Stop 停止工作者
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string         // Redis地址
	RedisPassword string         // Redis密码
	RedisDB       int            // Redis数据库
	Concurrency   int            // 并发处理任务数
	RetryLimit    int            // 最大重试次数
	RetryDelay    time.Duration  // 重试延迟
	TaskExpiry    time.Duration  // 任务记录保留时间
	Queues        map[string]int // 队列名称到优先级的映射
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		RedisDB:     0,
		Concurrency: 4,
		RetryLimit:  3,
		RetryDelay:  30 * time.Second,
		TaskExpiry:  defaultTaskExpiry,
		Queues: map[string]int{
			"default": 1,
		},
	}
}

// Factory 队列工厂函数类型
type Factory func(cfg *Config) (Queue, error)

// 队列工厂函数映射
var queueFactories = make(map[string]Factory)

// RegisterQueueFactory 注册队列工厂函数
func RegisterQueueFactory(name string, factory Factory) {
	queueFactories[name] = factory
}

// NewQueue 根据名称创建队列实例
func NewQueue(name string, cfg *Config) (Queue, error) {
	factory, exists := queueFactories[name]
	if !exists {
		return nil, fmt.Errorf("unknown queue implementation: %s", name)
	}
	return factory(cfg)
}
