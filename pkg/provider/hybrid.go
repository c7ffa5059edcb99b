package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider/core"
)

// HybridDataSource 主数据源失败时切换到备用数据源
//
// 只有 Search、GetQuote、GetKline 会回退，且仅限网络、上游与超时错误；
// 调用方的 ctx 已结束时不回退。两者都失败时返回备用数据源的错误。
type HybridDataSource struct {
	primary  core.DataSource
	fallback core.DataSource
	log      *logrus.Entry
}

// NewHybridDataSource 创建混合数据源，fallback 可为 nil
func NewHybridDataSource(primary, fallback core.DataSource) *HybridDataSource {
	return &HybridDataSource{
		primary:  primary,
		fallback: fallback,
		log:      logger.WithComponent("HybridDataSource"),
	}
}

// Name 返回 "hybrid(主,备)"
func (h *HybridDataSource) Name() string {
	if h.fallback == nil {
		return fmt.Sprintf("hybrid(%s)", h.primary.Name())
	}
	return fmt.Sprintf("hybrid(%s,%s)", h.primary.Name(), h.fallback.Name())
}

// IsHealthy 任一数据源健康即可
func (h *HybridDataSource) IsHealthy() bool {
	return h.primary.IsHealthy() || (h.fallback != nil && h.fallback.IsHealthy())
}

// Primary 返回主数据源
func (h *HybridDataSource) Primary() core.DataSource {
	return h.primary
}

// Fallback 返回备用数据源
func (h *HybridDataSource) Fallback() core.DataSource {
	return h.fallback
}

func shouldFallback(err error) bool {
	return errors.Is(err, apperr.ErrNetwork) ||
		errors.Is(err, apperr.ErrUpstream) ||
		errors.Is(err, apperr.ErrTimeout)
}

func withFallback[T any](ctx context.Context, h *HybridDataSource, op string, call func(core.DataSource) (T, error)) (T, error) {
	out, err := call(h.primary)
	if err == nil || h.fallback == nil || !shouldFallback(err) || ctx.Err() != nil {
		return out, err
	}

	log := h.log.WithFields(logrus.Fields{
		"operation": op,
		"primary":   h.primary.Name(),
		"fallback":  h.fallback.Name(),
	})
	log.WithError(err).Warn("primary data source failed, switching to fallback")

	out, err2 := call(h.fallback)
	if err2 != nil {
		log.WithError(err2).Error("fallback data source also failed")
		return out, err2
	}
	return out, nil
}

func (h *HybridDataSource) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	return withFallback(ctx, h, "Search", func(ds core.DataSource) ([]core.SearchResult, error) {
		return ds.Search(ctx, query)
	})
}

func (h *HybridDataSource) GetQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	return withFallback(ctx, h, "GetQuote", func(ds core.DataSource) (*core.Quote, error) {
		return ds.GetQuote(ctx, symbol)
	})
}

func (h *HybridDataSource) GetKline(ctx context.Context, symbol string, period core.Period, r core.DateRange) ([]core.KlineBar, error) {
	return withFallback(ctx, h, "GetKline", func(ds core.DataSource) ([]core.KlineBar, error) {
		return ds.GetKline(ctx, symbol, period, r)
	})
}

func (h *HybridDataSource) GetIndicators(ctx context.Context, symbol string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	return h.primary.GetIndicators(ctx, symbol, set, r)
}

func (h *HybridDataSource) GetFinancials(ctx context.Context, symbol string, reportType core.ReportType) ([]core.FinancialStatementRow, error) {
	return h.primary.GetFinancials(ctx, symbol, reportType)
}

func (h *HybridDataSource) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	return h.primary.GetTradingCalendar(ctx, r)
}

// Close 混合数据源不拥有主备数据源，由 ProviderManager 负责关闭
func (h *HybridDataSource) Close() error {
	return nil
}

var (
	_ core.DataSource = (*HybridDataSource)(nil)
	_ core.Closable   = (*HybridDataSource)(nil)
)
