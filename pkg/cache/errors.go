package cache

import (
	apperr "stockdata/pkg/error"
)

const (
	// CodeCacheMiss 缓存未命中
	CodeCacheMiss apperr.ErrorCode = "CACHE_MISS"
	// CodeCacheBackend 缓存后端读写失败
	CodeCacheBackend apperr.ErrorCode = "CACHE_BACKEND"
)

// ErrCacheMiss 用于 errors.Is 判断
var ErrCacheMiss = apperr.NewError(CodeCacheMiss, "cache entry not found")

func newMissError(key string) error {
	return apperr.NewError(CodeCacheMiss, "cache entry not found").WithContext("key", key)
}

func newBackendError(op string, cause error) error {
	return apperr.WrapError(CodeCacheBackend, "cache "+op+" failed", cause)
}
