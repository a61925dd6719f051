package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fyerfyer/chroma-admin/api/model"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Rate      string        // 格式如 "100-M"、"10-S"
	Store     string        // memory 或 redis
	Redis     *redis.Client // Store为redis时使用
	Prefix    string        // 存储键前缀
	SkipPaths []string      // 不限流的路径前缀
}

// RateLimit 按客户端IP限流
// 存储出错时放行请求
func RateLimit(cfg RateLimitConfig) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", cfg.Rate, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "chroma-admin:ratelimit"
	}

	var store limiter.Store
	switch cfg.Store {
	case "", "memory":
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: time.Minute,
		})
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis rate limit store requires a redis client")
		}
		store, err = sredis.NewStoreWithOptions(cfg.Redis, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", cfg.Store)
	}

	instance := limiter.New(store, rate)

	return func(c *gin.Context) {
		if hasAnyPrefix(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		key := c.ClientIP()
		ctx, err := instance.Get(c.Request.Context(), key)
		if err != nil {
			log.WithError(err).WithField(FieldClientIP, key).Warn("Rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))

		if ctx.Reached {
			retryAfter := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			appErr := NewRateLimitError("Too many requests, please try again later")
			resp := model.NewErrorResponse(appErr.Code, appErr.Message)
			resp.TraceID = c.GetString(TraceIDKey)
			c.AbortWithStatusJSON(appErr.Code, resp)
			return
		}

		c.Next()
	}, nil
}
