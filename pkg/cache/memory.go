package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCacheConfig 内存缓存配置
type MemoryCacheConfig struct {
	MaxSize         int64         // 最大条目数量
	DefaultTTL      time.Duration // 默认TTL
	CleanupInterval time.Duration // 清理间隔，0 表示不启动清理协程
}

// MemoryCache 线程安全的内存缓存
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*CacheEntry
	maxSize    int64
	hitCount   int64
	missCount  int64
	defaultTTL time.Duration
	now        func() time.Time

	// 清理相关
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closeOnce     sync.Once
	lastCleanup   time.Time
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(config MemoryCacheConfig) *MemoryCache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	mc := &MemoryCache{
		entries:     make(map[string]*CacheEntry),
		maxSize:     config.MaxSize,
		defaultTTL:  config.DefaultTTL,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
		lastCleanup: time.Now(),
	}

	if config.CleanupInterval > 0 {
		mc.cleanupTicker = time.NewTicker(config.CleanupInterval)
		go mc.startCleanup()
	}
	return mc
}

// Get 获取缓存值，过期条目在读取时删除
func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	mc.mu.RLock()
	entry, exists := mc.entries[key]
	mc.mu.RUnlock()

	if !exists {
		atomic.AddInt64(&mc.missCount, 1)
		return nil, newMissError(key)
	}

	now := mc.now()
	if !entry.ExpireTime.After(now) {
		mc.mu.Lock()
		if cur, ok := mc.entries[key]; ok && cur == entry {
			delete(mc.entries, key)
		}
		mc.mu.Unlock()
		atomic.AddInt64(&mc.missCount, 1)
		return nil, newMissError(key)
	}

	atomic.AddInt64(&entry.HitCount, 1)
	atomic.AddInt64(&mc.hitCount, 1)
	return entry.Value, nil
}

// Set 设置缓存值
func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}

	now := mc.now()
	entry := &CacheEntry{
		Value:      append([]byte(nil), value...),
		ExpireTime: now.Add(ttl),
		AccessTime: now,
		CreateTime: now,
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.entries[key]; !exists && mc.maxSize > 0 && int64(len(mc.entries)) >= mc.maxSize {
		mc.evictOldest()
	}
	mc.entries[key] = entry
	return nil
}

// Delete 删除缓存值
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.entries, key)
	return nil
}

// Clear 清空缓存并重置计数
func (mc *MemoryCache) Clear(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries = make(map[string]*CacheEntry)
	atomic.StoreInt64(&mc.hitCount, 0)
	atomic.StoreInt64(&mc.missCount, 0)
	return nil
}

// Stats 获取缓存统计信息
func (mc *MemoryCache) Stats() CacheStats {
	mc.mu.RLock()
	size := int64(len(mc.entries))
	lastCleanup := mc.lastCleanup
	mc.mu.RUnlock()

	hits := atomic.LoadInt64(&mc.hitCount)
	misses := atomic.LoadInt64(&mc.missCount)

	return CacheStats{
		Backend:     "memory",
		Size:        size,
		MaxSize:     mc.maxSize,
		HitCount:    hits,
		MissCount:   misses,
		HitRate:     hitRate(hits, misses),
		TTL:         mc.defaultTTL,
		LastCleanup: lastCleanup,
	}
}

// Close 停止清理协程，可重复调用
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		if mc.cleanupTicker != nil {
			mc.cleanupTicker.Stop()
		}
		close(mc.stopCleanup)
	})
	return nil
}

func (mc *MemoryCache) startCleanup() {
	for {
		select {
		case <-mc.cleanupTicker.C:
			mc.cleanup()
		case <-mc.stopCleanup:
			return
		}
	}
}

// cleanup 清理过期条目
func (mc *MemoryCache) cleanup() {
	now := mc.now()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, entry := range mc.entries {
		if !entry.ExpireTime.After(now) {
			delete(mc.entries, key)
		}
	}
	mc.lastCleanup = now
}

// evictOldest 淘汰创建时间最早的条目，调用方持有写锁
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range mc.entries {
		if oldestKey == "" || entry.CreateTime.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreateTime
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

var _ Cache = (*MemoryCache)(nil)
