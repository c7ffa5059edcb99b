package error

import (
	"fmt"
	"net/http"
)

const (
	// CodeInvalidSymbol 无法识别的证券代码，不重试
	CodeInvalidSymbol ErrorCode = "INVALID_SYMBOL"
	// CodeNetwork 连接失败或单次请求超时，按策略重试
	CodeNetwork ErrorCode = "NETWORK"
	// CodeUpstream 上游返回非 2xx 状态
	CodeUpstream ErrorCode = "UPSTREAM"
	// CodeParse 响应体无法解析
	CodeParse ErrorCode = "PARSE"
	// CodeValidation 响应中的所有数据行都未通过校验
	CodeValidation ErrorCode = "VALIDATION"
	// CodeTimeout 调用方的截止时间已过
	CodeTimeout ErrorCode = "TIMEOUT"
	// CodeNotSupported 当前后端不提供该操作
	CodeNotSupported ErrorCode = "NOT_SUPPORTED"
)

// 用于 errors.Is 的哨兵错误，比较时只看错误代码
var (
	ErrInvalidSymbol = NewError(CodeInvalidSymbol, "invalid symbol")
	ErrNetwork       = NewError(CodeNetwork, "network error")
	ErrUpstream      = NewError(CodeUpstream, "upstream error")
	ErrParse         = NewError(CodeParse, "parse error")
	ErrValidation    = NewError(CodeValidation, "validation error")
	ErrTimeout       = NewError(CodeTimeout, "timeout")
	ErrNotSupported  = NewError(CodeNotSupported, "operation not supported")
)

// maxBodyExcerpt 上游错误中保留的响应体长度
const maxBodyExcerpt = 512

// NewInvalidSymbolError 创建无效代码错误
func NewInvalidSymbolError(input string, reason string) *BaseError {
	return NewError(CodeInvalidSymbol, fmt.Sprintf("invalid symbol %q: %s", input, reason)).
		WithContext("input", input)
}

// NewNetworkError 创建网络错误
func NewNetworkError(message string, cause error) *BaseError {
	return WrapError(CodeNetwork, message, cause)
}

// NewUpstreamError 创建上游状态错误，附带状态码和响应体摘要
func NewUpstreamError(status int, body []byte) *BaseError {
	excerpt := body
	if len(excerpt) > maxBodyExcerpt {
		excerpt = excerpt[:maxBodyExcerpt]
	}
	return NewError(CodeUpstream, fmt.Sprintf("upstream returned %d %s", status, http.StatusText(status))).
		WithContext("status", status).
		WithContext("body", string(excerpt))
}

// NewUpstreamMessageError 上游以 200 返回业务错误码时使用
func NewUpstreamMessageError(message string) *BaseError {
	return NewError(CodeUpstream, message)
}

// NewParseError 创建解析错误
func NewParseError(message string, cause error) *BaseError {
	return WrapError(CodeParse, message, cause)
}

// NewValidationError 创建校验错误
func NewValidationError(message string) *BaseError {
	return NewError(CodeValidation, message)
}

// NewTimeoutError 创建调用方超时错误
func NewTimeoutError(cause error) *BaseError {
	return WrapError(CodeTimeout, "deadline exceeded", cause)
}

// NewNotSupportedError 创建不支持操作的错误
func NewNotSupportedError(backend, operation string) *BaseError {
	return NewError(CodeNotSupported, fmt.Sprintf("%s does not support %s", backend, operation)).
		WithContext("backend", backend).
		WithContext("operation", operation)
}

// CodeOf 返回错误链中第一个 BaseError 的代码，没有则返回空
func CodeOf(err error) ErrorCode {
	if be, ok := As(err); ok {
		return be.Code
	}
	return ""
}

// StatusCode 返回上游错误的 HTTP 状态码，非上游错误返回 0
func StatusCode(err error) int {
	be, ok := As(err)
	if !ok || be.Code != CodeUpstream {
		return 0
	}
	if status, ok := be.Context["status"].(int); ok {
		return status
	}
	return 0
}
