// Package storage 将 K 线与行情写入时序存储
package storage

import (
	"context"

	"stockdata/pkg/provider/core"
)

// Sink 时序数据写入端
//
// 同一 symbol、period 与时间的点重复写入时覆盖旧值。
type Sink interface {
	// WriteBars 写入一批 K 线
	WriteBars(ctx context.Context, bars []core.KlineBar) error
	// WriteQuotes 写入一批实时行情
	WriteQuotes(ctx context.Context, quotes []core.Quote) error
	// Close 释放连接
	Close() error
}
