// Package scheduler 按 cron 表达式定时执行数据采集任务
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// JobType 任务类型
type JobType string

const (
	JobTypeKline JobType = "kline" // 拉取近期 K 线并写入存储
	JobTypeQuote JobType = "quote" // 拉取实时行情快照
)

// DefaultJobTimeout 单次执行的默认超时
const DefaultJobTimeout = 5 * time.Minute

// JobConfig 单个任务的配置
type JobConfig struct {
	Name            string                 `mapstructure:"name" json:"name"`
	Enabled         bool                   `mapstructure:"enabled" json:"enabled"`
	Schedule        string                 `mapstructure:"schedule" json:"schedule"` // 六段式，含秒
	Type            JobType                `mapstructure:"type" json:"type"`
	Source          string                 `mapstructure:"source" json:"source,omitempty"` // 为空时使用当前活动数据源
	Timeout         time.Duration          `mapstructure:"timeout" json:"timeout,omitempty"`
	TradingDaysOnly bool                   `mapstructure:"trading_days_only" json:"trading_days_only"` // 非交易日跳过
	Params          map[string]interface{} `mapstructure:"params" json:"params,omitempty"`
}

// JobsConfig 任务配置文件结构
type JobsConfig struct {
	Jobs []JobConfig `mapstructure:"jobs" json:"jobs"`
}

// Job 已登记的任务
type Job struct {
	ID         string
	Config     JobConfig
	EntryID    cron.EntryID
	Status     JobStatus
	LastRun    *time.Time
	NextRun    *time.Time
	RunCount   int64
	SkipCount  int64
	ErrorCount int64
	LastError  error
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusError    JobStatus = "error"
	JobStatusDisabled JobStatus = "disabled"
)

// JobExecutor 任务执行器
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// ExecutorFunc 函数形式的执行器
type ExecutorFunc func(ctx context.Context, job *Job) error

// Execute 调用 f
func (f ExecutorFunc) Execute(ctx context.Context, job *Job) error {
	return f(ctx, job)
}
