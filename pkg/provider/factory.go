package provider

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"stockdata/pkg/cache"
	"stockdata/pkg/config"
	"stockdata/pkg/httpx"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/provider/crawler"
	"stockdata/pkg/provider/decorators"
	"stockdata/pkg/provider/sina"
	"stockdata/pkg/timing"
)

// HybridName 混合数据源的注册名
const HybridName = "hybrid"

// NewManagerFromConfig 按配置组装数据源
//
// 两个后端都会注册（各自使用独立的执行器），并按装饰器链包装；
// 配置了回退后端时注册 hybrid 并设为当前数据源。
func NewManagerFromConfig(ctx context.Context, cfg *config.Config) (*ProviderManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logger.WithComponent("ProviderFactory")

	calendar, err := timing.NewCalendar(cfg.Calendar.Holidays)
	if err != nil {
		return nil, err
	}
	marketTime := timing.NewMarketTime(&timing.SystemTimeService{}, calendar)

	crawlerEndpoints := crawler.DefaultEndpoints()
	if err := crawlerEndpoints.Apply(cfg.Endpoints); err != nil {
		return nil, err
	}
	sinaEndpoints := sina.DefaultEndpoints()
	if err := sinaEndpoints.Apply(cfg.Endpoints); err != nil {
		return nil, err
	}

	m := NewProviderManager()
	ok := false
	defer func() {
		if !ok {
			m.Close()
		}
	}()

	var c cache.Cache
	if cacheEnabled(cfg.Decorators) {
		if c, err = NewCacheFromConfig(ctx, cfg); err != nil {
			return nil, err
		}
		m.AddCloser(c)
	}
	factory := decorators.NewDecoratorFactory(c, CachingConfigFrom(cfg.Cache), marketTime)
	chain := decorators.FromConfig(cfg.Decorators)

	httpOpts := httpx.OptionsFromConfig(cfg.HTTP)
	crawlerDS := crawler.New(httpx.NewExecutor(httpOpts), crawler.Options{
		Endpoints:   crawlerEndpoints,
		Calendar:    calendar,
		Adjust:      cfg.Kline.Adjust,
		XueqiuToken: cfg.Xueqiu.Token,
	})
	m.SetCrawler(crawlerDS)
	calendar.SetSource(crawlerDS, cfg.Calendar.RefreshTTL)
	sinaDS := sina.NewProvider(httpx.NewExecutor(httpOpts), sina.Options{
		Endpoints: sinaEndpoints,
		Calendar:  calendar,
	})

	for _, base := range []core.DataSource{crawlerDS, sinaDS} {
		decorated, err := decorators.CreateDecoratedDataSource(base, factory, chain)
		if err != nil {
			if closer, isCloser := base.(core.Closable); isCloser {
				closer.Close()
			}
			return nil, err
		}
		if err := m.Register(base.Name(), decorated); err != nil {
			return nil, err
		}
	}

	active := cfg.DataSource.Backend
	if cfg.DataSource.Fallback != "" {
		primary, _ := m.Get(cfg.DataSource.Backend)
		fallback, _ := m.Get(cfg.DataSource.Fallback)
		if err := m.Register(HybridName, NewHybridDataSource(primary, fallback)); err != nil {
			return nil, err
		}
		active = HybridName
	}
	if err := m.SetActive(active); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"active":     active,
		"providers":  m.List(),
		"decorators": appliedTypes(chain),
	}).Info("data sources ready")

	ok = true
	return m, nil
}

// NewCacheFromConfig 按 cache.backend 创建内存或 Redis 缓存
func NewCacheFromConfig(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisCacheConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			DefaultTTL: cfg.Cache.KlineTTL,
		})
	case "memory", "":
		return cache.NewMemoryCache(cache.MemoryCacheConfig{
			MaxSize:         cfg.Cache.MaxSize,
			DefaultTTL:      cfg.Cache.KlineTTL,
			CleanupInterval: cfg.Cache.CleanupInterval,
		}), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// CachingConfigFrom 缓存装饰器的默认 TTL 取自 cache 配置段
func CachingConfigFrom(cfg config.CacheConfig) *decorators.CachingConfig {
	return &decorators.CachingConfig{
		KlineTTL:     cfg.KlineTTL,
		CalendarTTL:  cfg.CalendarTTL,
		FinancialTTL: cfg.FinancialTTL,
		SearchTTL:    cfg.SearchTTL,
	}
}

func cacheEnabled(list []config.DecoratorConfig) bool {
	for _, d := range list {
		if d.Enabled && decorators.DecoratorType(d.Type) == decorators.CacheType {
			return true
		}
	}
	return false
}

func appliedTypes(cfg decorators.ProviderDecoratorConfig) []decorators.DecoratorType {
	chain := decorators.NewConfigurableDecoratorChain(nil)
	chain.LoadFromConfig(cfg)
	return chain.GetAppliedDecorators()
}
