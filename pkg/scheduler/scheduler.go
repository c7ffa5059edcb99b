package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"stockdata/pkg/logger"
	"stockdata/pkg/timing"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
	ErrJobDisabled = errors.New("job is disabled")
	ErrJobRunning  = errors.New("job is already running")
	ErrNoExecutor  = errors.New("job executor not set")
)

// 六段式 cron，首段为秒
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// JobScheduler 任务调度器
//
// 同一任务不会并发执行；上一次未结束时本次触发被跳过。
type JobScheduler struct {
	cron     *cron.Cron
	jobs     map[string]*Job
	executor JobExecutor
	calendar *timing.Calendar
	now      func() time.Time
	mu       sync.RWMutex
	log      *logrus.Entry
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
}

// NewJobScheduler 创建调度器，calendar 为空时使用内置交易日历
func NewJobScheduler(calendar *timing.Calendar) *JobScheduler {
	if calendar == nil {
		calendar = timing.DefaultCalendar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		cron:     cron.New(cron.WithParser(cronParser), cron.WithLocation(timing.Shanghai)),
		jobs:     make(map[string]*Job),
		calendar: calendar,
		now:      time.Now,
		log:      logger.WithComponent("Scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// LoadConfig 从 YAML/JSON 文件加载任务，无效任务记录警告后跳过
func (s *JobScheduler) LoadConfig(configPath string) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("jobs file %s: %w", configPath, err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read jobs file: %w", err)
	}

	var config JobsConfig
	if err := v.Unmarshal(&config); err != nil {
		return fmt.Errorf("decode jobs file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, jobConfig := range config.Jobs {
		if err := validateJobConfig(jobConfig); err != nil {
			s.log.WithError(err).WithField("job", jobConfig.Name).Warn("skipping invalid job")
			continue
		}
		if err := s.addJobInternal(jobConfig); err != nil {
			s.log.WithError(err).WithField("job", jobConfig.Name).Error("failed to add job")
		}
	}

	s.log.WithField("jobs", len(s.jobs)).Info("jobs loaded")
	return nil
}

// Start 启动调度
func (s *JobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executor == nil {
		return ErrNoExecutor
	}
	if s.started {
		return nil
	}
	s.cron.Start()
	s.started = true
	s.updateNextRunTimes()
	s.log.Info("scheduler started")
	return nil
}

// Stop 停止调度并等待运行中的任务结束，最多等待 timeout
func (s *JobScheduler) Stop(timeout time.Duration) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-time.After(timeout):
		s.log.Warn("scheduler stop timed out")
		return fmt.Errorf("scheduler stop: running jobs did not finish within %s", timeout)
	}
}

// AddJob 校验并登记任务
func (s *JobScheduler) AddJob(config JobConfig) error {
	if err := validateJobConfig(config); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addJobInternal(config)
}

// RemoveJob 移除任务
func (s *JobScheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	s.cron.Remove(job.EntryID)
	delete(s.jobs, jobName)

	s.log.WithField("job", jobName).Info("job removed")
	return nil
}

// GetJob 返回任务状态的副本
func (s *JobScheduler) GetJob(jobName string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// GetAllJobs 按名称排序返回所有任务的副本
func (s *JobScheduler) GetAllJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Config.Name < jobs[j].Config.Name })
	return jobs
}

// RunJob 立即执行一次任务并等待结果，不受交易日限制
func (s *JobScheduler) RunJob(jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	executor := s.executor
	s.mu.RUnlock()

	switch {
	case !exists:
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	case !job.Config.Enabled:
		return fmt.Errorf("%w: %s", ErrJobDisabled, jobName)
	case executor == nil:
		return ErrNoExecutor
	}
	return s.executeJob(job, true)
}

// SetExecutor 设置任务执行器
func (s *JobScheduler) SetExecutor(executor JobExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = executor
}

func validateJobConfig(config JobConfig) error {
	if config.Name == "" {
		return errors.New("job name is empty")
	}
	if config.Schedule == "" {
		return fmt.Errorf("job %s: schedule is empty", config.Name)
	}
	if _, err := cronParser.Parse(config.Schedule); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", config.Name, config.Schedule, err)
	}
	switch config.Type {
	case JobTypeKline, JobTypeQuote:
	default:
		return fmt.Errorf("job %s: unknown type %q", config.Name, config.Type)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("job %s: negative timeout", config.Name)
	}
	return nil
}

// addJobInternal 需要持有写锁
func (s *JobScheduler) addJobInternal(config JobConfig) error {
	if _, exists := s.jobs[config.Name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, config.Name)
	}

	job := &Job{
		ID:     uuid.New().String(),
		Config: config,
		Status: JobStatusPending,
	}
	entry := s.log.WithFields(logrus.Fields{"job": config.Name, "schedule": config.Schedule})

	if !config.Enabled {
		job.Status = JobStatusDisabled
		s.jobs[config.Name] = job
		entry.Info("job added (disabled)")
		return nil
	}

	entryID, err := s.cron.AddFunc(config.Schedule, func() {
		_ = s.executeJob(job, false)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", config.Name, err)
	}
	job.EntryID = entryID
	s.jobs[config.Name] = job
	if s.started {
		s.updateNextRunTimes()
	}

	entry.Info("job added")
	return nil
}

// executeJob manual 为 true 时忽略交易日限制
func (s *JobScheduler) executeJob(job *Job, manual bool) error {
	log := s.log.WithFields(logrus.Fields{"job": job.Config.Name, "job_id": job.ID})

	now := s.now()
	if !manual && job.Config.TradingDaysOnly {
		if err := s.calendar.Ensure(s.ctx, now, now); err != nil {
			log.WithError(err).Warn("trading calendar not loaded for this month, using builtin holidays")
		}
	}

	s.mu.Lock()
	if job.Status == JobStatusRunning {
		job.SkipCount++
		s.mu.Unlock()
		log.Warn("job still running, skipping this run")
		return ErrJobRunning
	}
	if !manual && job.Config.TradingDaysOnly && !s.calendar.IsTradingDay(now) {
		job.SkipCount++
		s.mu.Unlock()
		log.Debug("not a trading day, skipping")
		return nil
	}
	job.Status = JobStatusRunning
	job.LastRun = &now
	job.RunCount++
	executor := s.executor
	s.mu.Unlock()

	timeout := job.Config.Timeout
	if timeout == 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	log.Info("job started")
	start := time.Now()
	err := executor.Execute(ctx, job)

	s.mu.Lock()
	if err != nil {
		job.Status = JobStatusError
		job.LastError = err
		job.ErrorCount++
	} else {
		job.Status = JobStatusPending
		job.LastError = nil
	}
	s.updateNextRunTimes()
	s.mu.Unlock()

	log = log.WithField("elapsed", time.Since(start).String())
	if err != nil {
		log.WithError(err).Error("job failed")
	} else {
		log.Info("job finished")
	}
	return err
}

// updateNextRunTimes 需要持有写锁
func (s *JobScheduler) updateNextRunTimes() {
	next := make(map[cron.EntryID]time.Time)
	for _, entry := range s.cron.Entries() {
		next[entry.ID] = entry.Next
	}
	for _, job := range s.jobs {
		if t, ok := next[job.EntryID]; ok && job.Config.Enabled && !t.IsZero() {
			nextRun := t
			job.NextRun = &nextRun
		}
	}
}
