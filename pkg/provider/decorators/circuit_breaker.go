package decorators

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider/core"
)

// CircuitBreakerDataSource 熔断器装饰器
//
// 只有网络、上游与超时错误计为失败；代码无效、校验失败等调用方错误不影响熔断器。
type CircuitBreakerDataSource struct {
	*BaseDecorator

	cb     *gobreaker.CircuitBreaker
	config *CircuitBreakerConfig
	log    *logrus.Entry

	mu    sync.RWMutex
	stats CircuitBreakerStats
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name        string        `mapstructure:"name"`          // 熔断器名称
	MaxRequests uint32        `mapstructure:"max_requests"`  // 半开状态下的最大请求数
	Interval    time.Duration `mapstructure:"interval"`      // 统计窗口时间
	Timeout     time.Duration `mapstructure:"timeout"`       // 熔断器打开后的超时时间
	ReadyToTrip uint32        `mapstructure:"ready_to_trip"` // 触发熔断的连续失败次数
	Enabled     bool          `mapstructure:"enabled"`
}

// CircuitBreakerStats 熔断器统计信息
type CircuitBreakerStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	RejectedRequests   int64     `json:"rejected_requests"`
	LastFailure        time.Time `json:"last_failure"`
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "DataSource",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
		Enabled:     true,
	}
}

// NewCircuitBreakerDataSource 创建熔断器装饰器
func NewCircuitBreakerDataSource(base core.DataSource, config *CircuitBreakerConfig) *CircuitBreakerDataSource {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if config.ReadyToTrip == 0 {
		config.ReadyToTrip = 1
	}

	c := &CircuitBreakerDataSource{
		BaseDecorator: NewBaseDecorator(base),
		config:        config,
		log:           logger.WithComponent("CircuitBreaker").WithField("breaker", config.Name),
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	return c
}

// countsAsFailure 网络、上游与超时错误说明后端异常
func countsAsFailure(err error) bool {
	return errors.Is(err, apperr.ErrNetwork) ||
		errors.Is(err, apperr.ErrUpstream) ||
		errors.Is(err, apperr.ErrTimeout)
}

// Name 返回装饰器名称
func (c *CircuitBreakerDataSource) Name() string {
	return fmt.Sprintf("CircuitBreaker(%s)", c.base.Name())
}

// IsHealthy 熔断器打开时视为不健康
func (c *CircuitBreakerDataSource) IsHealthy() bool {
	if !c.config.Enabled {
		return c.base.IsHealthy()
	}
	return c.cb.State() != gobreaker.StateOpen && c.base.IsHealthy()
}

// guard 通过熔断器执行一次调用
func guard[T any](c *CircuitBreakerDataSource, call func() (T, error)) (T, error) {
	var zero T
	if !c.config.Enabled {
		return call()
	}

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()

	result, err := c.cb.Execute(func() (interface{}, error) {
		return call()
	})
	c.record(err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, apperr.WrapError(apperr.CodeUpstream, fmt.Sprintf("circuit breaker %s rejected the call", c.config.Name), err)
	}
	if err != nil {
		return zero, err
	}
	data, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker returned %T", result)
	}
	return data, nil
}

func (c *CircuitBreakerDataSource) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err == nil:
		c.stats.SuccessfulRequests++
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.stats.RejectedRequests++
	default:
		c.stats.FailedRequests++
		c.stats.LastFailure = time.Now()
	}
}

func (c *CircuitBreakerDataSource) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	return guard(c, func() ([]core.SearchResult, error) { return c.base.Search(ctx, query) })
}

func (c *CircuitBreakerDataSource) GetQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	return guard(c, func() (*core.Quote, error) { return c.base.GetQuote(ctx, symbol) })
}

func (c *CircuitBreakerDataSource) GetKline(ctx context.Context, symbol string, period core.Period, r core.DateRange) ([]core.KlineBar, error) {
	return guard(c, func() ([]core.KlineBar, error) { return c.base.GetKline(ctx, symbol, period, r) })
}

func (c *CircuitBreakerDataSource) GetIndicators(ctx context.Context, symbol string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	return guard(c, func() ([]core.IndicatorPoint, error) { return c.base.GetIndicators(ctx, symbol, set, r) })
}

func (c *CircuitBreakerDataSource) GetFinancials(ctx context.Context, symbol string, reportType core.ReportType) ([]core.FinancialStatementRow, error) {
	return guard(c, func() ([]core.FinancialStatementRow, error) { return c.base.GetFinancials(ctx, symbol, reportType) })
}

func (c *CircuitBreakerDataSource) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	return guard(c, func() ([]core.TradingDate, error) { return c.base.GetTradingCalendar(ctx, r) })
}

// GetState 获取熔断器当前状态
func (c *CircuitBreakerDataSource) GetState() gobreaker.State {
	return c.cb.State()
}

// GetCounts 获取熔断器计数信息
func (c *CircuitBreakerDataSource) GetCounts() gobreaker.Counts {
	return c.cb.Counts()
}

// Stats 返回累计统计
func (c *CircuitBreakerDataSource) Stats() CircuitBreakerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// GetStatus 获取熔断器状态信息
func (c *CircuitBreakerDataSource) GetStatus() map[string]interface{} {
	stats := c.Stats()
	counts := c.cb.Counts()

	return map[string]interface{}{
		"decorator_type": "CircuitBreaker",
		"base_provider":  c.base.Name(),
		"enabled":        c.config.Enabled,
		"state":          c.cb.State().String(),
		"counts": map[string]interface{}{
			"requests":              counts.Requests,
			"total_successes":       counts.TotalSuccesses,
			"total_failures":        counts.TotalFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
			"consecutive_failures":  counts.ConsecutiveFailures,
		},
		"stats": stats,
		"config": map[string]interface{}{
			"name":          c.config.Name,
			"max_requests":  c.config.MaxRequests,
			"interval":      c.config.Interval.String(),
			"timeout":       c.config.Timeout.String(),
			"ready_to_trip": c.config.ReadyToTrip,
		},
	}
}

// IsOpen 检查熔断器是否处于打开状态
func (c *CircuitBreakerDataSource) IsOpen() bool {
	return c.cb.State() == gobreaker.StateOpen
}

var _ Decorator = (*CircuitBreakerDataSource)(nil)
