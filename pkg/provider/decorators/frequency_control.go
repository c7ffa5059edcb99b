package decorators

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/timing"
)

// FrequencyControlDataSource 频率控制装饰器
//
// 相邻两次上游调用至少间隔 MinInterval；非交易时段可改用 OffHoursInterval。
// 等待期间响应 ctx 取消。
type FrequencyControlDataSource struct {
	*BaseDecorator

	marketTime *timing.MarketTime
	now        func() time.Time

	mu               sync.Mutex
	minInterval      time.Duration
	offHoursInterval time.Duration
	nextSlot         time.Time // 下一次允许发起调用的时间
	isActive         bool
	waited           int64
}

// FrequencyControlConfig 频率控制配置
type FrequencyControlConfig struct {
	MinInterval      time.Duration `mapstructure:"min_interval"`
	OffHoursInterval time.Duration `mapstructure:"off_hours_interval"` // 0 表示与 MinInterval 相同
	Enabled          bool          `mapstructure:"enabled"`
}

// DefaultFrequencyControlConfig 默认 200ms 间隔
func DefaultFrequencyControlConfig() *FrequencyControlConfig {
	return &FrequencyControlConfig{
		MinInterval: 200 * time.Millisecond,
		Enabled:     true,
	}
}

// NewFrequencyControlDataSource 创建频率控制装饰器
func NewFrequencyControlDataSource(base core.DataSource, config *FrequencyControlConfig, marketTime *timing.MarketTime) *FrequencyControlDataSource {
	if config == nil {
		config = DefaultFrequencyControlConfig()
	}
	if marketTime == nil {
		marketTime = timing.DefaultMarketTime()
	}
	return &FrequencyControlDataSource{
		BaseDecorator:    NewBaseDecorator(base),
		marketTime:       marketTime,
		now:              time.Now,
		minInterval:      config.MinInterval,
		offHoursInterval: config.OffHoursInterval,
		isActive:         config.Enabled,
	}
}

// Name 返回装饰器名称
func (f *FrequencyControlDataSource) Name() string {
	return fmt.Sprintf("FrequencyControl(%s)", f.base.Name())
}

// interval 当前适用的最小间隔
func (f *FrequencyControlDataSource) interval() time.Duration {
	if f.offHoursInterval > 0 && !f.marketTime.IsTradingTime() {
		return f.offHoursInterval
	}
	return f.minInterval
}

// wait 预约下一个调用时隙并等待，锁只在预约时持有
func (f *FrequencyControlDataSource) wait(ctx context.Context) error {
	f.mu.Lock()
	if !f.isActive {
		f.mu.Unlock()
		return nil
	}
	now := f.now()
	slot := f.nextSlot
	if slot.Before(now) {
		slot = now
	}
	f.nextSlot = slot.Add(f.interval())
	delay := slot.Sub(now)
	if delay > 0 {
		f.waited++
	}
	f.mu.Unlock()

	if delay <= 0 {
		if err := ctx.Err(); err != nil {
			return apperr.NewTimeoutError(err)
		}
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return apperr.NewTimeoutError(ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (f *FrequencyControlDataSource) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.base.Search(ctx, query)
}

func (f *FrequencyControlDataSource) GetQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.base.GetQuote(ctx, symbol)
}

func (f *FrequencyControlDataSource) GetKline(ctx context.Context, symbol string, period core.Period, r core.DateRange) ([]core.KlineBar, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.base.GetKline(ctx, symbol, period, r)
}

func (f *FrequencyControlDataSource) GetIndicators(ctx context.Context, symbol string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.base.GetIndicators(ctx, symbol, set, r)
}

func (f *FrequencyControlDataSource) GetFinancials(ctx context.Context, symbol string, reportType core.ReportType) ([]core.FinancialStatementRow, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.base.GetFinancials(ctx, symbol, reportType)
}

func (f *FrequencyControlDataSource) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.base.GetTradingCalendar(ctx, r)
}

// SetMinInterval 设置最小请求间隔
func (f *FrequencyControlDataSource) SetMinInterval(interval time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minInterval = interval
}

// SetEnabled 设置是否启用频率控制
func (f *FrequencyControlDataSource) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isActive = enabled
}

// GetStatus 获取频率控制状态
func (f *FrequencyControlDataSource) GetStatus() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	return map[string]interface{}{
		"decorator_type":     "FrequencyControl",
		"base_provider":      f.base.Name(),
		"min_interval":       f.minInterval.String(),
		"off_hours_interval": f.offHoursInterval.String(),
		"is_active":          f.isActive,
		"next_slot":          f.nextSlot,
		"waited_calls":       f.waited,
	}
}

// Reset 清除预约状态
func (f *FrequencyControlDataSource) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSlot = time.Time{}
	f.waited = 0
}

var _ Decorator = (*FrequencyControlDataSource)(nil)
