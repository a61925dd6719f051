package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 CHROMA_ADMIN_SERVER_PORT
const EnvPrefix = "CHROMA_ADMIN"

// Config 应用程序配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Chroma     ChromaConfig     `mapstructure:"chroma"`
	Embed      EmbedConfig      `mapstructure:"embed"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	RequestLog RequestLogConfig `mapstructure:"request_log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Queue      QueueConfig      `mapstructure:"queue"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Log        LogConfig        `mapstructure:"log"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`                                     // 服务器主机
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`          // 服务器端口
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`                             // 读取超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"`                            // 写入超时
	MaxUploadMB  int64         `mapstructure:"max_upload_mb" validate:"min=1"`           // multipart内存上限
}

// ChromaConfig 远程向量库配置
// base_url以memory://开头时使用进程内实现，便于本地开发
type ChromaConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"required"`
	APIPath    string        `mapstructure:"api_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	AuthToken  string        `mapstructure:"auth_token"`
	Tenant     string        `mapstructure:"tenant"`
	Database   string        `mapstructure:"database"`
}

// EmbedConfig 向量嵌入模型配置
// 未启用时由远程服务端计算向量
type EmbedConfig struct {
	Enable     bool          `mapstructure:"enable"`     // 是否在本地计算向量
	Provider   string        `mapstructure:"provider"`   // 提供商：openai
	Model      string        `mapstructure:"model"`      // 模型名称
	APIKey     string        `mapstructure:"api_key"`    // API密钥，支持${VAR}
	Endpoint   string        `mapstructure:"endpoint"`   // OpenAI兼容接口地址
	BatchSize  int           `mapstructure:"batch_size"` // 批处理大小
	Dimensions int           `mapstructure:"dimensions"` // 向量维度，0为模型默认
	Timeout    time.Duration `mapstructure:"timeout"`
	Workers    int           `mapstructure:"workers"` // 并发批次数
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable    bool          `mapstructure:"enable"`                             // 是否启用缓存
	Type      string        `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型：memory 或 redis
	Address   string        `mapstructure:"address"`                            // Redis地址
	Password  string        `mapstructure:"password"`                           // Redis密码
	DB        int           `mapstructure:"db"`                                 // Redis数据库
	KeyPrefix string        `mapstructure:"key_prefix"`                         // 键名前缀
	TTL       time.Duration `mapstructure:"ttl"`                                // 缓存TTL
}

// AnalyticsConfig 统计概览配置
type AnalyticsConfig struct {
	SampleSize int `mapstructure:"sample_size" validate:"min=1"` // 每个集合采样的文档数
}

// RequestLogConfig 请求日志配置
type RequestLogConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Store     string `mapstructure:"store" validate:"oneof=memory sqlite"` // memory 或 sqlite
	DSN       string `mapstructure:"dsn"`                                  // sqlite数据库文件
	Retention int    `mapstructure:"retention" validate:"min=1"`           // 最多保留条数
}

// StorageConfig 导出快照存储配置
type StorageConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`                              // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
	Prefix    string `mapstructure:"prefix"`  // 对象名前缀
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`         // 是否启用任务队列
	RedisAddr     string        `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string        `mapstructure:"redis_password"` // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int           `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int           `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    time.Duration `mapstructure:"retry_delay"`    // 重试延迟
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enable        bool   `mapstructure:"enable"`
	Rate          string `mapstructure:"rate"`                                // 例如 100-M
	Store         string `mapstructure:"store" validate:"oneof=memory redis"` // memory 或 redis
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// FetchConfig 网页导入配置
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`        // 为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // 单个日志文件上限
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Origins []string `mapstructure:"origins"` // 为空表示允许全部
}

// Load 从文件和环境变量加载配置
// 配置文件不存在时使用默认值
func Load(configPath string) (*Config, error) {
	// .env 只补充尚未设置的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	} else {
		log.Printf("Warning: Config file not found at %s, using defaults", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandSecrets(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Embed.Enable && c.Embed.APIKey == "" {
		return errors.New("invalid config: embed.api_key is required when embed.enable is true")
	}
	if c.Storage.Enable && c.Storage.Type == "minio" && c.Storage.Endpoint == "" {
		return errors.New("invalid config: storage.endpoint is required for minio")
	}
	return nil
}

// expandSecrets 处理 ${VAR} 形式的敏感配置
func expandSecrets(cfg *Config) {
	for _, field := range []*string{
		&cfg.Chroma.AuthToken,
		&cfg.Embed.APIKey,
		&cfg.Cache.Password,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Queue.RedisPassword,
		&cfg.RateLimit.RedisPassword,
	} {
		*field = expandEnv(*field)
	}
}

// expandEnv 整个值为 ${VAR} 时替换为环境变量，变量为空时保持原值
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.max_upload_mb", 32)

	// 远程向量库默认配置
	v.SetDefault("chroma.base_url", "http://localhost:8000")
	v.SetDefault("chroma.api_path", "/api/v1")
	v.SetDefault("chroma.timeout", "30s")
	v.SetDefault("chroma.max_retries", 3)
	v.SetDefault("chroma.retry_delay", "500ms")
	v.SetDefault("chroma.auth_token", "")
	v.SetDefault("chroma.tenant", "")
	v.SetDefault("chroma.database", "")

	// Embedding默认配置
	v.SetDefault("embed.enable", false)
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("embed.endpoint", "https://api.openai.com/v1")
	v.SetDefault("embed.batch_size", 64)
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.workers", 4)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.key_prefix", "chroma-admin")
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("analytics.sample_size", 200)

	// 请求日志默认配置
	v.SetDefault("request_log.enable", true)
	v.SetDefault("request_log.store", "memory")
	v.SetDefault("request_log.dsn", "data/chroma-admin.db")
	v.SetDefault("request_log.retention", 1000)

	// 导出存储默认配置
	v.SetDefault("storage.enable", true)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/exports")
	v.SetDefault("storage.bucket", "chroma-admin")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.prefix", "exports/")

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", "30s")

	// 限流默认配置
	v.SetDefault("rate_limit.enable", true)
	v.SetDefault("rate_limit.rate", "300-M")
	v.SetDefault("rate_limit.store", "memory")
	v.SetDefault("rate_limit.redis_addr", "localhost:6379")
	v.SetDefault("rate_limit.redis_password", "")
	v.SetDefault("rate_limit.redis_db", 0)

	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_bytes", 5<<20)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("cors.origins", []string{})
}
