package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider/core"
)

// BatchWriter 在 Sink 之上做批量写入
//
// K 线先进入缓冲区，达到 BatchSize 或到达 FlushInterval 时一次写出。
// 缓冲区达到 MaxBufferSize 时先强制刷新，刷新失败则拒绝写入。
type BatchWriter struct {
	sink        Sink
	buffer      []core.KlineBar
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopChan    chan struct{}
	closeOnce   sync.Once
	config      BatchWriterConfig
	stats       BatchWriterStats
	log         *logrus.Entry
}

// BatchWriterConfig 批量写入配置
type BatchWriterConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"` // 0 表示不定时刷新
	MaxBufferSize int           `mapstructure:"max_buffer_size"`
}

// BatchWriterStats 运行统计
type BatchWriterStats struct {
	TotalBatches    int64     `json:"total_batches"`
	TotalRecords    int64     `json:"total_records"`
	BufferSize      int       `json:"buffer_size"`
	LastFlush       time.Time `json:"last_flush"`
	FlushErrors     int64     `json:"flush_errors"`
	BufferOverflows int64     `json:"buffer_overflows"`
}

// DefaultBatchWriterConfig 默认每 500 根或 5 秒写一次
func DefaultBatchWriterConfig() BatchWriterConfig {
	return BatchWriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		MaxBufferSize: 5000,
	}
}

// NewBatchWriter 创建批量写入器
func NewBatchWriter(sink Sink, config BatchWriterConfig) *BatchWriter {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchWriterConfig().BatchSize
	}
	if config.MaxBufferSize < config.BatchSize {
		config.MaxBufferSize = config.BatchSize
	}
	bw := &BatchWriter{
		sink:     sink,
		buffer:   make([]core.KlineBar, 0, config.BatchSize),
		stopChan: make(chan struct{}),
		config:   config,
		log:      logger.WithComponent("BatchWriter"),
	}

	if config.FlushInterval > 0 {
		bw.flushTicker = time.NewTicker(config.FlushInterval)
		go bw.startPeriodicFlush()
	}
	return bw
}

// WriteBars 将 K 线放入缓冲区，满批次时同步写出
func (bw *BatchWriter) WriteBars(ctx context.Context, bars []core.KlineBar) error {
	bw.bufferMu.Lock()
	defer bw.bufferMu.Unlock()

	for _, bar := range bars {
		if len(bw.buffer) >= bw.config.MaxBufferSize {
			bw.stats.BufferOverflows++
			if err := bw.flushBuffer(ctx); err != nil {
				return apperr.WrapError(CodeBufferFull, "batch buffer is full", err)
			}
		}
		bw.buffer = append(bw.buffer, bar)
		if len(bw.buffer) >= bw.config.BatchSize {
			if err := bw.flushBuffer(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteQuotes 行情不缓冲，直接写出
func (bw *BatchWriter) WriteQuotes(ctx context.Context, quotes []core.Quote) error {
	return bw.sink.WriteQuotes(ctx, quotes)
}

// Flush 写出缓冲区中全部 K 线
func (bw *BatchWriter) Flush(ctx context.Context) error {
	bw.bufferMu.Lock()
	defer bw.bufferMu.Unlock()
	return bw.flushBuffer(ctx)
}

// flushBuffer 需要在锁内调用，失败时数据保留在缓冲区
func (bw *BatchWriter) flushBuffer(ctx context.Context) error {
	if len(bw.buffer) == 0 {
		return nil
	}

	batch := make([]core.KlineBar, len(bw.buffer))
	copy(batch, bw.buffer)

	if err := bw.sink.WriteBars(ctx, batch); err != nil {
		bw.stats.FlushErrors++
		bw.log.WithError(err).WithField("records", len(batch)).Warn("batch flush failed")
		return err
	}
	bw.buffer = bw.buffer[:0]

	bw.stats.TotalBatches++
	bw.stats.TotalRecords += int64(len(batch))
	bw.stats.LastFlush = time.Now()
	return nil
}

func (bw *BatchWriter) startPeriodicFlush() {
	for {
		select {
		case <-bw.flushTicker.C:
			_ = bw.Flush(context.Background())
		case <-bw.stopChan:
			return
		}
	}
}

// Close 停止定时刷新，写出剩余数据后关闭底层 Sink
func (bw *BatchWriter) Close() error {
	var err error
	bw.closeOnce.Do(func() {
		if bw.flushTicker != nil {
			bw.flushTicker.Stop()
		}
		close(bw.stopChan)

		err = bw.Flush(context.Background())
		if cerr := bw.sink.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// GetStats 返回当前统计
func (bw *BatchWriter) GetStats() BatchWriterStats {
	bw.bufferMu.Lock()
	defer bw.bufferMu.Unlock()

	stats := bw.stats
	stats.BufferSize = len(bw.buffer)
	return stats
}

var _ Sink = (*BatchWriter)(nil)
