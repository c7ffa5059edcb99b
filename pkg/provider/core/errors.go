package core

import "errors"

// 定义核心错误
var (
	// ErrProviderNotFound 提供商未找到错误
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderNotHealthy 提供商不健康错误
	ErrProviderNotHealthy = errors.New("provider is not healthy")

	// ErrProviderClosed 提供商已关闭错误
	ErrProviderClosed = errors.New("provider is closed")
)
