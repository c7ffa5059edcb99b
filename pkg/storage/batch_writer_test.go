package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider/core"
)

// flakySink 前 failures 次写入失败
type flakySink struct {
	*MemorySink
	mu       sync.Mutex
	failures int
}

func (f *flakySink) WriteBars(ctx context.Context, bars []core.KlineBar) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return NewStorageError("write bars", errors.New("connection refused"))
	}
	f.mu.Unlock()
	return f.MemorySink.WriteBars(ctx, bars)
}

func TestBatchWriter_满批次写出(t *testing.T) {
	sink := NewMemorySink()
	bw := NewBatchWriter(sink, BatchWriterConfig{BatchSize: 2, MaxBufferSize: 10})
	ctx := context.Background()

	require.NoError(t, bw.WriteBars(ctx, []core.KlineBar{dailyBar(2, 1), dailyBar(3, 2), dailyBar(4, 3)}))
	assert.Equal(t, 2, sink.Len())

	stats := bw.GetStats()
	assert.Equal(t, int64(1), stats.TotalBatches)
	assert.Equal(t, 1, stats.BufferSize)

	require.NoError(t, bw.Close())
	assert.Equal(t, 3, sink.Len())
	assert.Equal(t, int64(3), bw.GetStats().TotalRecords)
	require.NoError(t, bw.Close())
}

func TestBatchWriter_定时刷新(t *testing.T) {
	sink := NewMemorySink()
	bw := NewBatchWriter(sink, BatchWriterConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond})
	defer bw.Close()

	require.NoError(t, bw.WriteBars(context.Background(), []core.KlineBar{dailyBar(3, 1)}))
	assert.Eventually(t, func() bool { return sink.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBatchWriter_失败保留缓冲(t *testing.T) {
	sink := &flakySink{MemorySink: NewMemorySink(), failures: 1}
	bw := NewBatchWriter(sink, BatchWriterConfig{BatchSize: 2, MaxBufferSize: 2})

	err := bw.WriteBars(context.Background(), []core.KlineBar{dailyBar(2, 1), dailyBar(3, 2)})
	require.Error(t, err)
	assert.Equal(t, CodeStorageIO, apperr.CodeOf(err))
	assert.Equal(t, 2, bw.GetStats().BufferSize)
	assert.Equal(t, int64(1), bw.GetStats().FlushErrors)

	require.NoError(t, bw.Flush(context.Background()))
	assert.Equal(t, 2, sink.Len())
	assert.Zero(t, bw.GetStats().BufferSize)
}

func TestBatchWriter_缓冲区满(t *testing.T) {
	sink := &flakySink{MemorySink: NewMemorySink(), failures: 2}
	bw := NewBatchWriter(sink, BatchWriterConfig{BatchSize: 2, MaxBufferSize: 2})

	// 第一次满批次刷新失败，数据留在缓冲区
	require.Error(t, bw.WriteBars(context.Background(), []core.KlineBar{dailyBar(2, 1), dailyBar(3, 2)}))

	err := bw.WriteBars(context.Background(), []core.KlineBar{dailyBar(4, 3)})
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, int64(1), bw.GetStats().BufferOverflows)
}

func TestBatchWriter_行情直写(t *testing.T) {
	sink := NewMemorySink()
	bw := NewBatchWriter(sink, BatchWriterConfig{BatchSize: 10})
	defer bw.Close()

	require.NoError(t, bw.WriteQuotes(context.Background(), []core.Quote{{Symbol: "a", Price: 1}}))
	assert.Len(t, sink.Quotes("a"), 1)
}
