package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCacheConfig Redis 缓存配置
type RedisCacheConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	DefaultTTL time.Duration
}

// RedisCache 基于 Redis 的缓存，多个进程可共享
type RedisCache struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
	hitCount   int64
	missCount  int64
	ownsClient bool
}

// NewRedisCache 连接 Redis 并创建缓存
func NewRedisCache(ctx context.Context, config RedisCacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, newBackendError("connect", err)
	}
	rc := NewRedisCacheWithClient(client, config.KeyPrefix, config.DefaultTTL)
	rc.ownsClient = true
	return rc, nil
}

// NewRedisCacheWithClient 复用已有客户端，Close 不会关闭该客户端
func NewRedisCacheWithClient(client redis.UniversalClient, prefix string, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &RedisCache{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

func (rc *RedisCache) key(key string) string {
	return rc.prefix + key
}

// Get 读取缓存值
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&rc.missCount, 1)
		return nil, newMissError(key)
	}
	if err != nil {
		return nil, newBackendError("get", err)
	}
	atomic.AddInt64(&rc.hitCount, 1)
	return value, nil
}

// Set 写入缓存值
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = rc.defaultTTL
	}
	if err := rc.client.Set(ctx, rc.key(key), value, ttl).Err(); err != nil {
		return newBackendError("set", err)
	}
	return nil
}

// Delete 删除缓存值
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, rc.key(key)).Err(); err != nil {
		return newBackendError("delete", err)
	}
	return nil
}

// Clear 删除前缀下的所有键
func (rc *RedisCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := rc.client.Del(ctx, batch...).Err(); err != nil {
				return newBackendError("clear", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return newBackendError("clear", err)
	}
	if len(batch) > 0 {
		if err := rc.client.Del(ctx, batch...).Err(); err != nil {
			return newBackendError("clear", err)
		}
	}
	atomic.StoreInt64(&rc.hitCount, 0)
	atomic.StoreInt64(&rc.missCount, 0)
	return nil
}

// Stats 返回本进程观察到的命中统计
func (rc *RedisCache) Stats() CacheStats {
	hits := atomic.LoadInt64(&rc.hitCount)
	misses := atomic.LoadInt64(&rc.missCount)
	return CacheStats{
		Backend:   "redis",
		Size:      -1,
		HitCount:  hits,
		MissCount: misses,
		HitRate:   hitRate(hits, misses),
		TTL:       rc.defaultTTL,
	}
}

// Close 关闭自建的客户端
func (rc *RedisCache) Close() error {
	if rc.ownsClient {
		return rc.client.Close()
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
