package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 STOCKDATA_HTTP_TIMEOUT
const EnvPrefix = "STOCKDATA"

// Load 读取配置文件并叠加环境变量
// path 为空时在 ./config 和当前目录查找 stockdata.yaml，找不到文件时使用默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stockdata")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper 从已准备好的 viper 实例解码配置
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults 注册所有键，AutomaticEnv 只对已知键生效
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("datasource.backend", d.DataSource.Backend)
	v.SetDefault("datasource.fallback", d.DataSource.Fallback)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.max_retry", d.HTTP.MaxRetry)
	v.SetDefault("http.base_delay", d.HTTP.BaseDelay)
	v.SetDefault("http.max_delay", d.HTTP.MaxDelay)
	v.SetDefault("http.max_retry_after", d.HTTP.MaxRetryAfter)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.max_idle_conns", d.HTTP.MaxIdleConns)
	v.SetDefault("http.max_idle_conns_per_host", d.HTTP.MaxIdleConnsPerHost)
	v.SetDefault("http.idle_conn_timeout", d.HTTP.IdleConnTimeout)

	v.SetDefault("xueqiu.token", d.Xueqiu.Token)
	v.SetDefault("kline.adjust", d.Kline.Adjust)
	v.SetDefault("calendar.holidays", d.Calendar.Holidays)
	v.SetDefault("calendar.refresh_ttl", d.Calendar.RefreshTTL)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.max_size", d.Cache.MaxSize)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
	v.SetDefault("cache.kline_ttl", d.Cache.KlineTTL)
	v.SetDefault("cache.calendar_ttl", d.Cache.CalendarTTL)
	v.SetDefault("cache.financial_ttl", d.Cache.FinancialTTL)
	v.SetDefault("cache.search_ttl", d.Cache.SearchTTL)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("influxdb.url", d.InfluxDB.URL)
	v.SetDefault("influxdb.token", d.InfluxDB.Token)
	v.SetDefault("influxdb.org", d.InfluxDB.Org)
	v.SetDefault("influxdb.bucket", d.InfluxDB.Bucket)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)

	v.SetDefault("scheduler.jobs_file", d.Schedule.JobsFile)

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.output", d.Logger.Output)
}
