package storage

import (
	apperr "stockdata/pkg/error"
)

const (
	// CodeStorageIO 写入存储失败
	CodeStorageIO apperr.ErrorCode = "STORAGE_IO"
	// CodeResourceClosed 对已关闭的写入端操作
	CodeResourceClosed apperr.ErrorCode = "RESOURCE_CLOSED"
	// CodeBufferFull 批量写入缓冲区已满
	CodeBufferFull apperr.ErrorCode = "BUFFER_FULL"
)

var (
	// ErrSinkClosed 写入端已关闭
	ErrSinkClosed = apperr.NewError(CodeResourceClosed, "sink is closed")
	// ErrBufferFull 缓冲区已满且刷新失败
	ErrBufferFull = apperr.NewError(CodeBufferFull, "batch buffer is full")
)

// NewStorageError 包装底层写入错误
func NewStorageError(message string, cause error) *apperr.BaseError {
	return apperr.WrapError(CodeStorageIO, message, cause)
}
