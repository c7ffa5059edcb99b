package decorators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stockdata/pkg/cache"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/timing"
)

// CachingConfig 各操作的缓存时间，<= 0 表示不缓存该操作
type CachingConfig struct {
	KlineTTL     time.Duration `mapstructure:"kline_ttl"`
	CalendarTTL  time.Duration `mapstructure:"calendar_ttl"`
	FinancialTTL time.Duration `mapstructure:"financial_ttl"`
	SearchTTL    time.Duration `mapstructure:"search_ttl"`
}

// DefaultCachingConfig 默认缓存时间
func DefaultCachingConfig() *CachingConfig {
	return &CachingConfig{
		KlineTTL:     10 * time.Minute,
		CalendarTTL:  12 * time.Hour,
		FinancialTTL: 6 * time.Hour,
		SearchTTL:    time.Hour,
	}
}

// CachingDataSource 缓存装饰器
//
// K 线、指标、交易日历、财务与搜索结果以 JSON 形式写入缓存；实时行情不缓存。
// 交易时段内，区间包含当天的 K 线与指标不缓存。缓存读写失败只记录日志。
type CachingDataSource struct {
	*BaseDecorator

	cache      cache.Cache
	config     *CachingConfig
	marketTime *timing.MarketTime
	namespace  string
	log        *logrus.Entry
}

// NewCachingDataSource 创建缓存装饰器，cache 由调用方负责关闭
func NewCachingDataSource(base core.DataSource, c cache.Cache, config *CachingConfig, marketTime *timing.MarketTime) *CachingDataSource {
	if config == nil {
		config = DefaultCachingConfig()
	}
	if marketTime == nil {
		marketTime = timing.DefaultMarketTime()
	}
	return &CachingDataSource{
		BaseDecorator: NewBaseDecorator(base),
		cache:         c,
		config:        config,
		marketTime:    marketTime,
		namespace:     Unwrap(base).Name(),
		log:           logger.WithComponent("CachingDataSource"),
	}
}

// Name 返回装饰器名称
func (d *CachingDataSource) Name() string {
	return fmt.Sprintf("Cache(%s)", d.base.Name())
}

// Stats 返回底层缓存统计
func (d *CachingDataSource) Stats() cache.CacheStats {
	return d.cache.Stats()
}

func (d *CachingDataSource) key(op string, parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToUpper(strings.TrimSpace(p))
	}
	return d.namespace + ":" + op + ":" + strings.Join(parts, ":")
}

// cached 命中则解码返回，否则调用 load 并写回
func cached[T any](ctx context.Context, d *CachingDataSource, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if ttl <= 0 {
		return load()
	}

	if data, err := d.cache.Get(ctx, key); err == nil {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		d.log.WithField("key", key).Warn("discarding undecodable cache entry")
		_ = d.cache.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		d.log.WithError(err).WithField("key", key).Warn("cache read failed")
	}

	out, err := load()
	if err != nil {
		return out, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		d.log.WithError(err).WithField("key", key).Warn("cache encode failed")
		return out, nil
	}
	if err := d.cache.Set(ctx, key, data, ttl); err != nil {
		d.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return out, nil
}

// rangeTTL 交易时段内包含当天的区间仍在变化，不缓存
func (d *CachingDataSource) rangeTTL(r core.DateRange) time.Duration {
	if d.marketTime.IsTradingTime() && !r.End.Before(timing.DayOf(d.marketTime.Now())) {
		return 0
	}
	return d.config.KlineTTL
}

func (d *CachingDataSource) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	return cached(ctx, d, d.key("search", query), d.config.SearchTTL, func() ([]core.SearchResult, error) {
		return d.base.Search(ctx, query)
	})
}

func (d *CachingDataSource) GetKline(ctx context.Context, symbol string, period core.Period, r core.DateRange) ([]core.KlineBar, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	key := d.key("kline", symbol, string(period), timing.FormatDate(r.Start), timing.FormatDate(r.End))
	return cached(ctx, d, key, d.rangeTTL(r), func() ([]core.KlineBar, error) {
		return d.base.GetKline(ctx, symbol, period, r)
	})
}

func (d *CachingDataSource) GetIndicators(ctx context.Context, symbol string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	names := make([]string, len(set))
	for i, ind := range set {
		names[i] = string(ind)
	}
	key := d.key("indicators", symbol, strings.Join(names, ","), timing.FormatDate(r.Start), timing.FormatDate(r.End))
	return cached(ctx, d, key, d.rangeTTL(r), func() ([]core.IndicatorPoint, error) {
		return d.base.GetIndicators(ctx, symbol, set, r)
	})
}

func (d *CachingDataSource) GetFinancials(ctx context.Context, symbol string, reportType core.ReportType) ([]core.FinancialStatementRow, error) {
	return cached(ctx, d, d.key("financials", symbol, string(reportType)), d.config.FinancialTTL, func() ([]core.FinancialStatementRow, error) {
		return d.base.GetFinancials(ctx, symbol, reportType)
	})
}

func (d *CachingDataSource) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	key := d.key("calendar", timing.FormatDate(r.Start), timing.FormatDate(r.End))
	return cached(ctx, d, key, d.config.CalendarTTL, func() ([]core.TradingDate, error) {
		return d.base.GetTradingCalendar(ctx, r)
	})
}

var _ Decorator = (*CachingDataSource)(nil)
