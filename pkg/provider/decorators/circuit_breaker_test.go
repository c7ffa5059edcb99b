package decorators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "stockdata/pkg/error"
)

func newTestBreaker(mock *MockDataSource) *CircuitBreakerDataSource {
	return NewCircuitBreakerDataSource(mock, &CircuitBreakerConfig{
		Name:        "test",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Hour,
		ReadyToTrip: 2,
		Enabled:     true,
	})
}

func TestCircuitBreaker_连续上游失败后打开(t *testing.T) {
	mock := NewMockDataSource("crawler")
	cb := newTestBreaker(mock)
	ctx := context.Background()

	mock.FailWith(
		apperr.NewNetworkError("connection reset", errors.New("reset")),
		apperr.NewUpstreamError(502, []byte("bad gateway")),
	)

	_, err := cb.GetQuote(ctx, "600519")
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	_, err = cb.GetQuote(ctx, "600519")
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	assert.True(t, cb.IsOpen())
	assert.False(t, cb.IsHealthy())

	// 打开状态直接拒绝，不再调用后端
	_, err = cb.GetKline(ctx, "600519", "daily", testRange())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Equal(t, 0, mock.CallCount("GetKline"))

	stats := cb.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.FailedRequests)
	assert.Equal(t, int64(1), stats.RejectedRequests)
}

func TestCircuitBreaker_调用方错误不计入失败(t *testing.T) {
	mock := NewMockDataSource("crawler")
	cb := newTestBreaker(mock)
	ctx := context.Background()

	mock.FailWith(
		apperr.NewInvalidSymbolError("999999", "unknown"),
		apperr.NewValidationError("bad range"),
		apperr.NewNotSupportedError("sina", "GetFinancials"),
	)
	for i := 0; i < 3; i++ {
		_, err := cb.GetQuote(ctx, "999999")
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.GetState())
	assert.Equal(t, uint32(0), cb.GetCounts().ConsecutiveFailures)

	quote, err := cb.GetQuote(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, "600519", quote.Symbol)
}

func TestCircuitBreaker_超时计入失败(t *testing.T) {
	mock := NewMockDataSource("crawler")
	cb := newTestBreaker(mock)

	mock.FailWith(
		apperr.NewTimeoutError(context.DeadlineExceeded),
		apperr.NewTimeoutError(context.DeadlineExceeded),
	)
	_, _ = cb.GetTradingCalendar(context.Background(), testRange())
	_, _ = cb.GetFinancials(context.Background(), "600519", "001")

	assert.True(t, cb.IsOpen())
}

func TestCircuitBreaker_未启用时直接转发(t *testing.T) {
	mock := NewMockDataSource("crawler")
	cb := NewCircuitBreakerDataSource(mock, &CircuitBreakerConfig{Name: "off", ReadyToTrip: 1})

	mock.FailWith(apperr.NewNetworkError("down", nil), apperr.NewNetworkError("down", nil))
	_, _ = cb.Search(context.Background(), "茅台")
	_, _ = cb.Search(context.Background(), "茅台")

	assert.Equal(t, 2, mock.CallCount("Search"))
	assert.False(t, cb.IsOpen())
	assert.Equal(t, int64(0), cb.Stats().TotalRequests)
	assert.Equal(t, "CircuitBreaker(crawler)", cb.Name())

	status := cb.GetStatus()
	assert.Equal(t, "CircuitBreaker", status["decorator_type"])
	assert.Equal(t, "closed", status["state"])
}
