package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch 每次SCAN返回的建议数量
const scanBatch = 200

// RedisCache 基于Redis实现的缓存
// 所有键都带有KeyPrefix，Clear只清理本实例的键
type RedisCache struct {
	client     *redis.Client
	ctx        context.Context
	prefix     string
	defaultTTL time.Duration
}

// NewRedisCache 创建一个新的Redis缓存
func NewRedisCache(config Config) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	// 测试连接
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisCache{
		client:     client,
		ctx:        ctx,
		prefix:     config.KeyPrefix,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// Get 获取缓存内容
func (r *RedisCache) Get(key string) (string, bool, error) {
	value, err := r.client.Get(r.ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set 设置缓存内容，ttl为0时使用默认过期时间
func (r *RedisCache) Set(key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.defaultTTL
	}
	return r.client.Set(r.ctx, r.prefix+key, value, ttl).Err()
}

// Delete 删除缓存项
func (r *RedisCache) Delete(key string) error {
	return r.client.Del(r.ctx, r.prefix+key).Err()
}

// DeletePrefix 通过SCAN删除指定前缀的键
func (r *RedisCache) DeletePrefix(prefix string) (int, error) {
	return r.deleteMatching(r.prefix + prefix + "*")
}

// Clear 清空本实例前缀下的全部键
// 未配置前缀时清空整个数据库
func (r *RedisCache) Clear() error {
	if r.prefix == "" {
		return r.client.FlushDB(r.ctx).Err()
	}
	_, err := r.deleteMatching(r.prefix + "*")
	return err
}

// deleteMatching 先完整SCAN收集匹配的键，再分批删除
// 边扫描边删除会让游标跳过部分键
func (r *RedisCache) deleteMatching(pattern string) (int, error) {
	seen := make(map[string]struct{})
	var keys []string

	iter := r.client.Scan(r.ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(r.ctx) {
		key := iter.Val()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := r.client.Del(r.ctx, keys[start:end]...).Result()
		deleted += int(n)
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// Close 关闭Redis连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// 在包初始化时注册Redis缓存
func init() {
	RegisterCache("redis", NewRedisCache)
}
