package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockdata/pkg/provider/core"
)

// barKey 一根 K 线的唯一标识
type barKey struct {
	symbol string
	period core.Period
	date   int64
}

// MemorySink 内存写入端
//
// 与 InfluxDB 一致，同一 symbol、period、时间的点后写覆盖先写。
type MemorySink struct {
	mu     sync.RWMutex
	bars   map[barKey]core.KlineBar
	quotes map[string][]core.Quote
	writes int64
	closed bool
}

// NewMemorySink 创建内存写入端
func NewMemorySink() *MemorySink {
	return &MemorySink{
		bars:   make(map[barKey]core.KlineBar),
		quotes: make(map[string][]core.Quote),
	}
}

// WriteBars 保存 K 线
func (m *MemorySink) WriteBars(ctx context.Context, bars []core.KlineBar) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("write bars", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSinkClosed
	}
	for _, bar := range bars {
		m.bars[barKey{bar.Symbol, bar.Period, bar.Date.UnixNano()}] = bar
	}
	m.writes++
	return nil
}

// WriteQuotes 保存行情快照
func (m *MemorySink) WriteQuotes(ctx context.Context, quotes []core.Quote) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("write quotes", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSinkClosed
	}
	for _, q := range quotes {
		m.quotes[q.Symbol] = append(m.quotes[q.Symbol], q)
	}
	m.writes++
	return nil
}

// Bars 返回某代码某周期的 K 线，按日期升序
func (m *MemorySink) Bars(symbol string, period core.Period) []core.KlineBar {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.KlineBar
	for k, bar := range m.bars {
		if k.symbol == symbol && k.period == period {
			out = append(out, bar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Quotes 返回某代码的行情快照，按写入顺序
func (m *MemorySink) Quotes(symbol string) []core.Quote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Quote(nil), m.quotes[symbol]...)
}

// Len K 线总数
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bars)
}

// Writes 成功的写入调用次数
func (m *MemorySink) Writes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// LatestBar 最新一根 K 线
func (m *MemorySink) LatestBar(symbol string, period core.Period) (core.KlineBar, bool) {
	bars := m.Bars(symbol, period)
	if len(bars) == 0 {
		return core.KlineBar{}, false
	}
	return bars[len(bars)-1], true
}

// Since 某时间之后（含）的 K 线
func (m *MemorySink) Since(symbol string, period core.Period, t time.Time) []core.KlineBar {
	bars := m.Bars(symbol, period)
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(t) })
	return bars[i:]
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Sink = (*MemorySink)(nil)
