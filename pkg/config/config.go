package config

import (
	"errors"
	"fmt"
	"time"

	"stockdata/pkg/logger"
)

// 后端名称
const (
	BackendCrawler = "crawler"
	BackendSina    = "sina"
)

// Config 主配置结构
type Config struct {
	// 数据源选择
	DataSource DataSourceConfig `mapstructure:"datasource"`

	// HTTP 执行器配置
	HTTP HTTPConfig `mapstructure:"http"`

	// 上游地址覆盖，键见 crawler.Endpoints / sina.Endpoints
	Endpoints map[string]string `mapstructure:"endpoints"`

	Xueqiu   XueqiuConfig    `mapstructure:"xueqiu"`
	Kline    KlineConfig     `mapstructure:"kline"`
	Calendar CalendarConfig  `mapstructure:"calendar"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Redis    RedisConfig     `mapstructure:"redis"`
	InfluxDB InfluxDBConfig  `mapstructure:"influxdb"`
	Server   ServerConfig    `mapstructure:"server"`
	Schedule SchedulerConfig `mapstructure:"scheduler"`
	Logger   logger.Config   `mapstructure:"logger"`

	// 装饰器链，按 Priority 从小到大应用
	Decorators []DecoratorConfig `mapstructure:"decorators"`
}

// DataSourceConfig 数据源选择
type DataSourceConfig struct {
	Backend  string `mapstructure:"backend"`  // crawler, sina
	Fallback string `mapstructure:"fallback"` // 为空表示不启用混合回退
}

// HTTPConfig 请求执行器配置
type HTTPConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`   // 单次尝试超时
	MaxRetry            int           `mapstructure:"max_retry"` // 总尝试次数
	BaseDelay           time.Duration `mapstructure:"base_delay"`
	MaxDelay            time.Duration `mapstructure:"max_delay"`
	MaxRetryAfter       time.Duration `mapstructure:"max_retry_after"`
	UserAgent           string        `mapstructure:"user_agent"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// XueqiuConfig 雪球行情凭证
type XueqiuConfig struct {
	Token string `mapstructure:"token"` // xq_a_token cookie
}

// KlineConfig K 线参数
type KlineConfig struct {
	Adjust int `mapstructure:"adjust"` // 0 不复权, 1 前复权, 2 后复权
}

// CalendarConfig 交易日历配置
type CalendarConfig struct {
	Holidays   []string      `mapstructure:"holidays"`    // YYYY-MM-DD，追加到内置节假日
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"` // 内置表之外的月份从深交所月历加载后的缓存时间
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Backend         string        `mapstructure:"backend"` // memory, redis
	MaxSize         int64         `mapstructure:"max_size"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	KlineTTL        time.Duration `mapstructure:"kline_ttl"`
	CalendarTTL     time.Duration `mapstructure:"calendar_ttl"`
	FinancialTTL    time.Duration `mapstructure:"financial_ttl"`
	SearchTTL       time.Duration `mapstructure:"search_ttl"`
}

// RedisConfig Redis 连接
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// InfluxDBConfig InfluxDB 连接
type InfluxDBConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// ServerConfig API 服务配置
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // debug, release, test
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	JobsFile string `mapstructure:"jobs_file"`
}

// DecoratorConfig 单个装饰器配置
type DecoratorConfig struct {
	Type     string                 `mapstructure:"type"`
	Enabled  bool                   `mapstructure:"enabled"`
	Priority int                    `mapstructure:"priority"`
	Config   map[string]interface{} `mapstructure:"config"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		DataSource: DataSourceConfig{
			Backend:  BackendCrawler,
			Fallback: BackendSina,
		},
		HTTP: HTTPConfig{
			Timeout:             10 * time.Second,
			MaxRetry:            3,
			BaseDelay:           500 * time.Millisecond,
			MaxDelay:            5 * time.Second,
			MaxRetryAfter:       30 * time.Second,
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		},
		Endpoints: map[string]string{},
		Kline: KlineConfig{
			Adjust: 1,
		},
		Calendar: CalendarConfig{
			RefreshTTL: 24 * time.Hour,
		},
		Cache: CacheConfig{
			Backend:         "memory",
			MaxSize:         1000,
			CleanupInterval: time.Minute,
			KlineTTL:        10 * time.Minute,
			CalendarTTL:     12 * time.Hour,
			FinancialTTL:    6 * time.Hour,
			SearchTTL:       time.Hour,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "stockdata:",
		},
		InfluxDB: InfluxDBConfig{
			URL:    "http://localhost:8086",
			Org:    "stockdata",
			Bucket: "kline",
		},
		Server: ServerConfig{
			Port:           "8080",
			Mode:           "release",
			RequestTimeout: 30 * time.Second,
		},
		Schedule: SchedulerConfig{
			JobsFile: "config/jobs.yaml",
		},
		Logger: logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Decorators: DefaultDecorators(),
	}
}

// DefaultDecorators 默认装饰器链：限频 -> 熔断 -> 缓存
func DefaultDecorators() []DecoratorConfig {
	return []DecoratorConfig{
		{
			Type:     "frequency_control",
			Enabled:  true,
			Priority: 1,
			Config: map[string]interface{}{
				"min_interval": "200ms",
			},
		},
		{
			Type:     "circuit_breaker",
			Enabled:  true,
			Priority: 2,
			Config: map[string]interface{}{
				"max_requests":  5,
				"interval":      "60s",
				"timeout":       "30s",
				"ready_to_trip": 5,
			},
		},
		{
			Type:     "cache",
			Enabled:  false,
			Priority: 3,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !isBackend(c.DataSource.Backend) {
		return fmt.Errorf("unknown datasource backend %q", c.DataSource.Backend)
	}

	if c.DataSource.Fallback != "" {
		if !isBackend(c.DataSource.Fallback) {
			return fmt.Errorf("unknown fallback backend %q", c.DataSource.Fallback)
		}
		if c.DataSource.Fallback == c.DataSource.Backend {
			return errors.New("fallback backend must differ from the primary backend")
		}
	}

	if c.HTTP.Timeout <= 0 {
		return errors.New("http timeout must be positive")
	}

	if c.HTTP.MaxRetry < 1 {
		return errors.New("http max_retry must be at least 1")
	}

	if c.HTTP.BaseDelay < 0 || c.HTTP.MaxDelay < 0 {
		return errors.New("http backoff delays cannot be negative")
	}

	if c.HTTP.MaxDelay < c.HTTP.BaseDelay {
		return errors.New("http max_delay must not be less than base_delay")
	}

	if c.Kline.Adjust < 0 || c.Kline.Adjust > 2 {
		return errors.New("kline adjust must be 0, 1 or 2")
	}

	for _, day := range c.Calendar.Holidays {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return fmt.Errorf("invalid holiday %q: %w", day, err)
		}
	}
	if c.Calendar.RefreshTTL < 0 {
		return errors.New("calendar refresh_ttl must not be negative")
	}

	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Cache.MaxSize <= 0 {
		return errors.New("cache max_size must be positive")
	}

	for _, d := range c.Decorators {
		if d.Type == "" {
			return errors.New("decorator type cannot be empty")
		}
	}

	return nil
}

func isBackend(name string) bool {
	return name == BackendCrawler || name == BackendSina
}

// SetBackend 设置主数据源
func (c *Config) SetBackend(backend string) *Config {
	c.DataSource.Backend = backend
	return c
}

// SetFallback 设置回退数据源，传空字符串关闭回退
func (c *Config) SetFallback(backend string) *Config {
	c.DataSource.Fallback = backend
	return c
}

// SetTimeout 设置单次请求超时
func (c *Config) SetTimeout(timeout time.Duration) *Config {
	c.HTTP.Timeout = timeout
	return c
}

// SetMaxRetry 设置总尝试次数
func (c *Config) SetMaxRetry(n int) *Config {
	c.HTTP.MaxRetry = n
	return c
}

// SetXueqiuToken 设置雪球凭证
func (c *Config) SetXueqiuToken(token string) *Config {
	c.Xueqiu.Token = token
	return c
}

// SetLogLevel 设置日志级别
func (c *Config) SetLogLevel(level string) *Config {
	c.Logger.Level = level
	return c
}
