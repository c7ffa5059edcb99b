package decorators

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"

	"stockdata/pkg/cache"
	"stockdata/pkg/config"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/timing"
)

// DecoratorType 装饰器类型枚举
type DecoratorType string

const (
	FrequencyControlType DecoratorType = "frequency_control"
	CircuitBreakerType   DecoratorType = "circuit_breaker"
	CacheType            DecoratorType = "cache"
)

// DecoratorConfig 装饰器配置
type DecoratorConfig struct {
	Type     DecoratorType          `mapstructure:"type"`
	Enabled  bool                   `mapstructure:"enabled"`
	Priority int                    `mapstructure:"priority"` // 数值越小越靠内层
	Config   map[string]interface{} `mapstructure:"config"`
}

// ProviderDecoratorConfig 数据源装饰器完整配置
type ProviderDecoratorConfig struct {
	Decorators []DecoratorConfig `mapstructure:"decorators"`
}

// FromConfig 转换主配置中的装饰器列表
func FromConfig(list []config.DecoratorConfig) ProviderDecoratorConfig {
	out := ProviderDecoratorConfig{Decorators: make([]DecoratorConfig, 0, len(list))}
	for _, d := range list {
		out.Decorators = append(out.Decorators, DecoratorConfig{
			Type:     DecoratorType(d.Type),
			Enabled:  d.Enabled,
			Priority: d.Priority,
			Config:   d.Config,
		})
	}
	return out
}

// DecoratorFactory 按类型创建装饰器
type DecoratorFactory struct {
	cache      cache.Cache
	caching    *CachingConfig
	marketTime *timing.MarketTime
}

// NewDecoratorFactory 创建装饰器工厂；c 为 nil 时不能创建缓存装饰器
func NewDecoratorFactory(c cache.Cache, caching *CachingConfig, marketTime *timing.MarketTime) *DecoratorFactory {
	if caching == nil {
		caching = DefaultCachingConfig()
	}
	if marketTime == nil {
		marketTime = timing.DefaultMarketTime()
	}
	return &DecoratorFactory{cache: c, caching: caching, marketTime: marketTime}
}

// ConfigurableDecoratorChain 可配置的装饰器链
type ConfigurableDecoratorChain struct {
	decorators []DecoratorConfig
	factory    *DecoratorFactory
}

// NewConfigurableDecoratorChain 创建可配置装饰器链
func NewConfigurableDecoratorChain(factory *DecoratorFactory) *ConfigurableDecoratorChain {
	if factory == nil {
		factory = NewDecoratorFactory(nil, nil, nil)
	}
	return &ConfigurableDecoratorChain{
		decorators: make([]DecoratorConfig, 0),
		factory:    factory,
	}
}

// LoadFromViper 从 Viper 配置加载装饰器链配置
func (cdc *ConfigurableDecoratorChain) LoadFromViper(v *viper.Viper, configKey string) error {
	var cfg ProviderDecoratorConfig
	if err := v.UnmarshalKey(configKey, &cfg); err != nil {
		return fmt.Errorf("无法解析装饰器配置: %w", err)
	}
	cdc.decorators = cfg.Decorators
	return nil
}

// LoadFromConfig 从配置结构体加载装饰器链配置
func (cdc *ConfigurableDecoratorChain) LoadFromConfig(cfg ProviderDecoratorConfig) {
	cdc.decorators = cfg.Decorators
}

// AddDecorator 添加装饰器配置
func (cdc *ConfigurableDecoratorChain) AddDecorator(decoratorConfig DecoratorConfig) {
	cdc.decorators = append(cdc.decorators, decoratorConfig)
}

// Apply 按优先级由内向外包装数据源
func (cdc *ConfigurableDecoratorChain) Apply(ds core.DataSource) (core.DataSource, error) {
	current := ds
	for _, dc := range cdc.getSortedEnabledDecorators() {
		decorated, err := cdc.factory.CreateDecorator(dc.Type, current, dc.Config)
		if err != nil {
			return nil, fmt.Errorf("无法创建装饰器 %s: %w", dc.Type, err)
		}
		current = decorated
	}
	return current, nil
}

// getSortedEnabledDecorators 获取按优先级排序的已启用装饰器
func (cdc *ConfigurableDecoratorChain) getSortedEnabledDecorators() []DecoratorConfig {
	enabled := make([]DecoratorConfig, 0, len(cdc.decorators))
	for _, d := range cdc.decorators {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })
	return enabled
}

// GetAppliedDecorators 获取将要应用的装饰器列表
func (cdc *ConfigurableDecoratorChain) GetAppliedDecorators() []DecoratorType {
	sorted := cdc.getSortedEnabledDecorators()
	types := make([]DecoratorType, len(sorted))
	for i, d := range sorted {
		types[i] = d.Type
	}
	return types
}

// CreateDecorator 按类型和配置创建一个装饰器
func (df *DecoratorFactory) CreateDecorator(decoratorType DecoratorType, ds core.DataSource, configMap map[string]interface{}) (core.DataSource, error) {
	switch decoratorType {
	case FrequencyControlType:
		cfg, err := parseFrequencyControlConfig(configMap)
		if err != nil {
			return nil, err
		}
		return NewFrequencyControlDataSource(ds, cfg, df.marketTime), nil
	case CircuitBreakerType:
		cfg, err := parseCircuitBreakerConfig(configMap)
		if err != nil {
			return nil, err
		}
		if cfg.Name == "" || cfg.Name == DefaultCircuitBreakerConfig().Name {
			cfg.Name = Unwrap(ds).Name()
		}
		return NewCircuitBreakerDataSource(ds, cfg), nil
	case CacheType:
		if df.cache == nil {
			return nil, fmt.Errorf("cache decorator requires a cache backend")
		}
		cfg, err := parseCachingConfig(configMap, df.caching)
		if err != nil {
			return nil, err
		}
		return NewCachingDataSource(ds, df.cache, cfg, df.marketTime), nil
	default:
		return nil, fmt.Errorf("不支持的装饰器类型: %s", decoratorType)
	}
}

func parseFrequencyControlConfig(m map[string]interface{}) (*FrequencyControlConfig, error) {
	cfg := DefaultFrequencyControlConfig()
	var err error
	if cfg.MinInterval, err = durationOption(m, "min_interval", cfg.MinInterval); err != nil {
		return nil, err
	}
	if ms, ok, err := intOption(m, "min_interval_ms"); err != nil {
		return nil, err
	} else if ok {
		cfg.MinInterval = time.Duration(ms) * time.Millisecond
	}
	if cfg.OffHoursInterval, err = durationOption(m, "off_hours_interval", cfg.OffHoursInterval); err != nil {
		return nil, err
	}
	if enabled, ok := m["enabled"].(bool); ok {
		cfg.Enabled = enabled
	}
	return cfg, nil
}

func parseCircuitBreakerConfig(m map[string]interface{}) (*CircuitBreakerConfig, error) {
	cfg := DefaultCircuitBreakerConfig()
	var err error
	if name, ok := m["name"].(string); ok {
		cfg.Name = name
	}
	if n, ok, err := intOption(m, "max_requests"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxRequests = uint32(n)
	}
	if n, ok, err := intOption(m, "ready_to_trip"); err != nil {
		return nil, err
	} else if ok {
		cfg.ReadyToTrip = uint32(n)
	}
	if cfg.Interval, err = durationOption(m, "interval", cfg.Interval); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = durationOption(m, "timeout", cfg.Timeout); err != nil {
		return nil, err
	}
	if enabled, ok := m["enabled"].(bool); ok {
		cfg.Enabled = enabled
	}
	return cfg, nil
}

func parseCachingConfig(m map[string]interface{}, defaults *CachingConfig) (*CachingConfig, error) {
	cfg := *defaults
	var err error
	for _, f := range []struct {
		key string
		dst *time.Duration
	}{
		{"kline_ttl", &cfg.KlineTTL},
		{"calendar_ttl", &cfg.CalendarTTL},
		{"financial_ttl", &cfg.FinancialTTL},
		{"search_ttl", &cfg.SearchTTL},
	} {
		if *f.dst, err = durationOption(m, f.key, *f.dst); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// durationOption 接受 "30s" 形式的字符串或 time.Duration
func durationOption(m map[string]interface{}, key string, def time.Duration) (time.Duration, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case time.Duration:
		return x, nil
	case string:
		d, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%s: expected duration string, got %T", key, v)
	}
}

// intOption 兼容 YAML 与 JSON 解出的各种数字类型
func intOption(m map[string]interface{}, key string) (int, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case uint32:
		n = int(x)
	case uint64:
		n = int(x)
	case float64:
		if x != float64(int(x)) {
			return 0, false, fmt.Errorf("%s: %v is not an integer", key, x)
		}
		n = int(x)
	default:
		return 0, false, fmt.Errorf("%s: expected integer, got %T", key, v)
	}
	if n < 0 {
		return 0, false, fmt.Errorf("%s: must not be negative", key)
	}
	return n, true, nil
}

// CreateDecoratedDataSource 使用配置创建完全装饰的数据源
func CreateDecoratedDataSource(ds core.DataSource, factory *DecoratorFactory, cfg ProviderDecoratorConfig) (core.DataSource, error) {
	chain := NewConfigurableDecoratorChain(factory)
	chain.LoadFromConfig(cfg)
	return chain.Apply(ds)
}

// CreateDecoratedDataSourceFromViper 从 Viper 配置创建完全装饰的数据源
func CreateDecoratedDataSourceFromViper(ds core.DataSource, factory *DecoratorFactory, v *viper.Viper, configKey string) (core.DataSource, error) {
	chain := NewConfigurableDecoratorChain(factory)
	if err := chain.LoadFromViper(v, configKey); err != nil {
		return nil, err
	}
	return chain.Apply(ds)
}

// DefaultDecoratorConfig 默认装饰器配置：限频在内，熔断在外
func DefaultDecoratorConfig() ProviderDecoratorConfig {
	return FromConfig(config.DefaultDecorators())
}

// TestDecoratorConfig 测试环境关闭所有装饰器
func TestDecoratorConfig() ProviderDecoratorConfig {
	return ProviderDecoratorConfig{
		Decorators: []DecoratorConfig{
			{Type: FrequencyControlType, Enabled: false, Priority: 1},
			{Type: CircuitBreakerType, Enabled: false, Priority: 2},
		},
	}
}
