package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockdata/pkg/provider/core"
)

// fakeSource 按操作返回预设错误的数据源
type fakeSource struct {
	name    string
	healthy bool
	err     error

	mu     sync.Mutex
	calls  map[string]int
	closed int
}

func newFakeSource(name string, err error) *fakeSource {
	return &fakeSource{name: name, healthy: true, err: err, calls: make(map[string]int)}
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) IsHealthy() bool { return f.healthy }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSource) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.err
}

func (f *fakeSource) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeSource) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	if err := f.hit("Search"); err != nil {
		return nil, err
	}
	return []core.SearchResult{{Code: "600519", Name: f.name}}, nil
}

func (f *fakeSource) GetQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	if err := f.hit("GetQuote"); err != nil {
		return nil, err
	}
	return &core.Quote{Symbol: symbol, Price: 10, Timestamp: time.Now(), Source: f.name}, nil
}

func (f *fakeSource) GetKline(ctx context.Context, symbol string, period core.Period, r core.DateRange) ([]core.KlineBar, error) {
	if err := f.hit("GetKline"); err != nil {
		return nil, err
	}
	return []core.KlineBar{{Symbol: symbol, Period: period, Date: r.Start}}, nil
}

func (f *fakeSource) GetIndicators(ctx context.Context, symbol string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	if err := f.hit("GetIndicators"); err != nil {
		return nil, err
	}
	return []core.IndicatorPoint{}, nil
}

func (f *fakeSource) GetFinancials(ctx context.Context, symbol string, reportType core.ReportType) ([]core.FinancialStatementRow, error) {
	if err := f.hit("GetFinancials"); err != nil {
		return nil, err
	}
	return []core.FinancialStatementRow{}, nil
}

func (f *fakeSource) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	if err := f.hit("GetTradingCalendar"); err != nil {
		return nil, err
	}
	return []core.TradingDate{}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestProviderManager_注册与选择(t *testing.T) {
	m := NewProviderManager()
	crawler := newFakeSource("crawler", nil)
	sina := newFakeSource("sina", nil)

	require.NoError(t, m.Register("crawler", crawler))
	require.NoError(t, m.Register("sina", sina))
	assert.Error(t, m.Register("sina", sina))
	assert.Error(t, m.Register("", sina))
	assert.Error(t, m.Register("x", nil))

	assert.Equal(t, []string{"crawler", "sina"}, m.List())
	assert.Equal(t, "crawler", m.ActiveName())

	require.NoError(t, m.SetActive("sina"))
	ds, err := m.Active()
	require.NoError(t, err)
	assert.Same(t, sina, ds)

	err = m.SetActive("tushare")
	assert.ErrorIs(t, err, core.ErrProviderNotFound)
	_, err = m.Get("tushare")
	assert.ErrorIs(t, err, core.ErrProviderNotFound)

	sina.healthy = false
	_, err = m.Active()
	assert.ErrorIs(t, err, core.ErrProviderNotHealthy)
	assert.Equal(t, map[string]bool{"crawler": true, "sina": false}, m.Health())
}

func TestProviderManager_注销(t *testing.T) {
	m := NewProviderManager()
	require.NoError(t, m.Register("crawler", newFakeSource("crawler", nil)))
	require.NoError(t, m.Register("sina", newFakeSource("sina", nil)))

	require.NoError(t, m.Unregister("crawler"))
	assert.Equal(t, "sina", m.ActiveName())
	assert.Equal(t, []string{"sina"}, m.List())
	assert.ErrorIs(t, m.Unregister("crawler"), core.ErrProviderNotFound)
}

func TestProviderManager_关闭(t *testing.T) {
	m := NewProviderManager()
	crawler := newFakeSource("crawler", nil)
	require.NoError(t, m.Register("crawler", crawler))

	closed := 0
	m.AddCloser(closerFunc(func() error { closed++; return nil }))
	m.AddCloser(closerFunc(func() error { return errors.New("redis gone") }))

	err := m.Close()
	assert.ErrorContains(t, err, "redis gone")
	assert.Equal(t, 1, crawler.closed)
	assert.Equal(t, 1, closed)

	assert.NoError(t, m.Close())
	assert.Equal(t, 1, crawler.closed)

	_, err = m.Active()
	assert.ErrorIs(t, err, core.ErrProviderClosed)
	assert.ErrorIs(t, m.Register("sina", newFakeSource("sina", nil)), core.ErrProviderClosed)
}
