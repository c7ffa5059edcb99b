// Package cache 提供内存与 Redis 两种字节缓存
package cache

import (
	"context"
	"time"
)

// Cache 缓存接口，值为序列化后的字节
type Cache interface {
	// Get 读取一个值，未命中返回 ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 写入一个值，ttl <= 0 时使用默认 TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats() CacheStats
	Close() error
}

// CacheEntry 内存缓存条目
type CacheEntry struct {
	Value      []byte
	ExpireTime time.Time
	AccessTime time.Time
	CreateTime time.Time
	HitCount   int64
}

// CacheStats 缓存统计
type CacheStats struct {
	Backend     string        `json:"backend"`
	Size        int64         `json:"size"`     // 当前条目数，Redis 为 -1
	MaxSize     int64         `json:"max_size"` // 最大容量，0 表示不限
	HitCount    int64         `json:"hit_count"`
	MissCount   int64         `json:"miss_count"`
	HitRate     float64       `json:"hit_rate"`
	TTL         time.Duration `json:"ttl"`
	LastCleanup time.Time     `json:"last_cleanup,omitempty"`
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
