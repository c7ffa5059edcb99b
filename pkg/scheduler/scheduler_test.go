package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockdata/pkg/timing"
)

// MockJobExecutor 记录执行过的任务
type MockJobExecutor struct {
	mu           sync.Mutex
	executedJobs []string
	err          error
	block        chan struct{}
}

func (m *MockJobExecutor) Execute(ctx context.Context, job *Job) error {
	m.mu.Lock()
	m.executedJobs = append(m.executedJobs, job.Config.Name)
	m.mu.Unlock()
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *MockJobExecutor) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executedJobs...)
}

func klineJob(name string) JobConfig {
	return JobConfig{
		Name:     name,
		Enabled:  true,
		Schedule: "0 5 15 * * *",
		Type:     JobTypeKline,
		Params:   map[string]interface{}{"symbols": []string{"600000"}},
	}
}

func TestNewJobScheduler(t *testing.T) {
	s := NewJobScheduler(nil)

	assert.NotNil(t, s.cron)
	assert.NotNil(t, s.jobs)
	assert.NotNil(t, s.calendar)
	assert.Empty(t, s.GetAllJobs())
}

func TestJobScheduler_LoadConfig(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		expectJobs int
	}{
		{
			name: "有效配置",
			configYAML: `
jobs:
  - name: "daily-kline"
    enabled: true
    schedule: "0 5 15 * * 1-5"
    type: kline
    timeout: 2m
    trading_days_only: true
    params:
      symbols: ["600000", "000001"]
      lookback_days: 3
  - name: "quote-snapshot"
    enabled: false
    schedule: "*/30 * * * * *"
    type: quote
    source: sina
    params:
      symbols: ["600519"]
`,
			expectJobs: 2,
		},
		{
			name: "无效的 cron 表达式",
			configYAML: `
jobs:
  - name: "invalid-job"
    enabled: true
    schedule: "invalid-cron"
    type: kline
`,
			expectJobs: 0,
		},
		{
			name: "未知任务类型",
			configYAML: `
jobs:
  - name: "unknown"
    enabled: true
    schedule: "0 * * * * *"
    type: financials
`,
			expectJobs: 0,
		},
		{
			name: "缺少任务名称",
			configYAML: `
jobs:
  - name: ""
    enabled: true
    schedule: "*/5 * * * * *"
    type: kline
`,
			expectJobs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "jobs.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.configYAML), 0o644))

			s := NewJobScheduler(nil)
			require.NoError(t, s.LoadConfig(configPath))
			assert.Len(t, s.GetAllJobs(), tt.expectJobs)
		})
	}
}

func TestJobScheduler_LoadConfig_字段解析(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
jobs:
  - name: "daily-kline"
    enabled: true
    schedule: "0 5 15 * * 1-5"
    type: kline
    source: crawler
    timeout: 2m
    trading_days_only: true
    params:
      period: daily
`), 0o644))

	s := NewJobScheduler(nil)
	require.NoError(t, s.LoadConfig(configPath))

	job, err := s.GetJob("daily-kline")
	require.NoError(t, err)
	assert.Equal(t, JobTypeKline, job.Config.Type)
	assert.Equal(t, "crawler", job.Config.Source)
	assert.Equal(t, 2*time.Minute, job.Config.Timeout)
	assert.True(t, job.Config.TradingDaysOnly)
	assert.Equal(t, "daily", job.Config.Params["period"])
	assert.NotEmpty(t, job.ID)
}

func TestJobScheduler_LoadConfig_文件不存在(t *testing.T) {
	s := NewJobScheduler(nil)
	assert.Error(t, s.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestJobScheduler_AddJob(t *testing.T) {
	s := NewJobScheduler(nil)

	require.NoError(t, s.AddJob(klineJob("test-job")))

	job, err := s.GetJob("test-job")
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)

	err = s.AddJob(klineJob("test-job"))
	assert.ErrorIs(t, err, ErrJobExists)

	invalid := klineJob("invalid-job")
	invalid.Schedule = "invalid-cron"
	assert.Error(t, s.AddJob(invalid))

	negative := klineJob("negative")
	negative.Timeout = -time.Second
	assert.Error(t, s.AddJob(negative))
}

func TestJobScheduler_RemoveJob(t *testing.T) {
	s := NewJobScheduler(nil)
	require.NoError(t, s.AddJob(klineJob("test-job")))

	require.NoError(t, s.RemoveJob("test-job"))
	_, err := s.GetJob("test-job")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.ErrorIs(t, s.RemoveJob("non-existent"), ErrJobNotFound)
}

func TestJobScheduler_GetAllJobs(t *testing.T) {
	s := NewJobScheduler(nil)
	for i := 2; i >= 0; i-- {
		require.NoError(t, s.AddJob(klineJob(fmt.Sprintf("test-job-%d", i))))
	}

	jobs := s.GetAllJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "test-job-0", jobs[0].Config.Name)

	// 返回的是副本
	jobs[0].Status = JobStatusError
	original, err := s.GetJob("test-job-0")
	require.NoError(t, err)
	assert.NotEqual(t, JobStatusError, original.Status)
}

func TestJobScheduler_RunJob(t *testing.T) {
	s := NewJobScheduler(nil)
	executor := &MockJobExecutor{}

	require.NoError(t, s.AddJob(klineJob("test-job")))
	assert.ErrorIs(t, s.RunJob("test-job"), ErrNoExecutor)

	s.SetExecutor(executor)
	require.NoError(t, s.RunJob("test-job"))
	assert.Equal(t, []string{"test-job"}, executor.executed())

	job, err := s.GetJob("test-job")
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.RunCount)
	assert.NotNil(t, job.LastRun)

	assert.ErrorIs(t, s.RunJob("non-existent"), ErrJobNotFound)

	disabled := klineJob("disabled-job")
	disabled.Enabled = false
	require.NoError(t, s.AddJob(disabled))
	assert.ErrorIs(t, s.RunJob("disabled-job"), ErrJobDisabled)
}

func TestJobScheduler_RunJob_失败记录(t *testing.T) {
	s := NewJobScheduler(nil)
	s.SetExecutor(&MockJobExecutor{err: errors.New("upstream down")})
	require.NoError(t, s.AddJob(klineJob("test-job")))

	assert.Error(t, s.RunJob("test-job"))

	job, err := s.GetJob("test-job")
	require.NoError(t, err)
	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, int64(1), job.ErrorCount)
	assert.EqualError(t, job.LastError, "upstream down")
}

func TestJobScheduler_同一任务不并发(t *testing.T) {
	s := NewJobScheduler(nil)
	executor := &MockJobExecutor{block: make(chan struct{})}
	s.SetExecutor(executor)
	require.NoError(t, s.AddJob(klineJob("slow")))

	done := make(chan error, 1)
	go func() { done <- s.RunJob("slow") }()

	require.Eventually(t, func() bool {
		job, _ := s.GetJob("slow")
		return job.Status == JobStatusRunning
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.RunJob("slow"), ErrJobRunning)

	close(executor.block)
	require.NoError(t, <-done)

	job, err := s.GetJob("slow")
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.RunCount)
	assert.Equal(t, int64(1), job.SkipCount)
}

func TestJobScheduler_非交易日跳过(t *testing.T) {
	s := NewJobScheduler(nil)
	executor := &MockJobExecutor{}
	s.SetExecutor(executor)
	s.now = func() time.Time { return time.Date(2025, 6, 7, 15, 5, 0, 0, timing.Shanghai) } // 周六

	cfg := klineJob("daily")
	cfg.TradingDaysOnly = true
	require.NoError(t, s.AddJob(cfg))

	s.mu.RLock()
	job := s.jobs["daily"]
	s.mu.RUnlock()

	require.NoError(t, s.executeJob(job, false))
	assert.Empty(t, executor.executed())

	snapshot, err := s.GetJob("daily")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snapshot.SkipCount)
	assert.Zero(t, snapshot.RunCount)

	// 手动执行不受限制
	require.NoError(t, s.RunJob("daily"))
	assert.Equal(t, []string{"daily"}, executor.executed())
}

// octoberSource 2027 年 10 月的月历，国庆 1 日至 7 日休市
type octoberSource struct{ calls int }

func (o *octoberSource) TradingDaysInMonth(ctx context.Context, month time.Time) ([]time.Time, error) {
	o.calls++
	var days []time.Time
	for d := timing.Date(2027, 10, 8); d.Month() == time.October; d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
	}
	return days, nil
}

func TestJobScheduler_表外年份节假日跳过(t *testing.T) {
	src := &octoberSource{}
	cal := timing.DefaultCalendar()
	cal.SetSource(src, time.Hour)

	s := NewJobScheduler(cal)
	executor := &MockJobExecutor{}
	s.SetExecutor(executor)
	s.now = func() time.Time { return time.Date(2027, 10, 4, 15, 5, 0, 0, timing.Shanghai) } // 周一

	cfg := klineJob("daily")
	cfg.TradingDaysOnly = true
	require.NoError(t, s.AddJob(cfg))

	s.mu.RLock()
	job := s.jobs["daily"]
	s.mu.RUnlock()

	require.NoError(t, s.executeJob(job, false))
	assert.Empty(t, executor.executed())
	assert.Equal(t, 1, src.calls)

	// 节后开市
	s.now = func() time.Time { return time.Date(2027, 10, 8, 15, 5, 0, 0, timing.Shanghai) }
	require.NoError(t, s.executeJob(job, false))
	assert.Equal(t, []string{"daily"}, executor.executed())
	assert.Equal(t, 1, src.calls)
}

func TestJobScheduler_任务超时(t *testing.T) {
	s := NewJobScheduler(nil)
	s.SetExecutor(&MockJobExecutor{block: make(chan struct{})})

	cfg := klineJob("slow")
	cfg.Timeout = 20 * time.Millisecond
	require.NoError(t, s.AddJob(cfg))

	assert.ErrorIs(t, s.RunJob("slow"), context.DeadlineExceeded)
}

func TestJobScheduler_StartStop(t *testing.T) {
	s := NewJobScheduler(nil)
	s.SetExecutor(&MockJobExecutor{})
	require.NoError(t, s.AddJob(klineJob("test-job")))

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	job, err := s.GetJob("test-job")
	require.NoError(t, err)
	require.NotNil(t, job.NextRun)
	assert.Equal(t, 15, job.NextRun.In(timing.Shanghai).Hour())

	assert.NoError(t, s.Stop(time.Second))

	assert.ErrorIs(t, NewJobScheduler(nil).Start(), ErrNoExecutor)
}

func TestValidateJobConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*JobConfig)
		expectError bool
	}{
		{"有效配置", func(*JobConfig) {}, false},
		{"行情任务", func(c *JobConfig) { c.Type = JobTypeQuote }, false},
		{"描述符调度", func(c *JobConfig) { c.Schedule = "@every 1m" }, false},
		{"缺少任务名称", func(c *JobConfig) { c.Name = "" }, true},
		{"缺少调度表达式", func(c *JobConfig) { c.Schedule = "" }, true},
		{"五段式表达式", func(c *JobConfig) { c.Schedule = "5 15 * * *" }, true},
		{"缺少任务类型", func(c *JobConfig) { c.Type = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := klineJob("job")
			tt.mutate(&cfg)
			err := validateJobConfig(cfg)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
