// fetcher 按任务配置定时拉取 K 线与行情并写入 InfluxDB
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"stockdata/pkg/config"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider"
	"stockdata/pkg/scheduler"
	"stockdata/pkg/storage"
	"stockdata/pkg/timing"
)

var (
	configPath = flag.String("config", "", "配置文件路径（默认查找 ./config/stockdata.yaml）")
	jobsPath   = flag.String("jobs", "", "任务配置文件路径，覆盖 scheduler.jobs_file")
	runOnce    = flag.String("once", "", "立即执行指定任务一次后退出")
	dryRun     = flag.Bool("dry-run", false, "写入内存而不是 InfluxDB")
	logLevel   = flag.String("log-level", "", "日志级别，覆盖配置")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if *jobsPath != "" {
		cfg.Schedule.JobsFile = *jobsPath
	}
	logger.Init(cfg.Logger)
	log := logger.WithComponent("fetcher")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("fetcher exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	manager, err := provider.NewManagerFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	sink, err := openSink(ctx, cfg, manager.ActiveName(), log)
	if err != nil {
		return err
	}
	writer := storage.NewBatchWriter(sink, storage.DefaultBatchWriterConfig())
	defer func() {
		if err := writer.Close(); err != nil {
			log.WithError(err).Error("failed to flush pending bars")
		}
	}()

	calendar, err := timing.NewCalendar(cfg.Calendar.Holidays)
	if err != nil {
		return err
	}
	if c := manager.Crawler(); c != nil {
		calendar.SetSource(c, cfg.Calendar.RefreshTTL)
	}
	market := timing.NewMarketTime(&timing.SystemTimeService{}, calendar)

	jobs := scheduler.NewJobScheduler(calendar)
	jobs.SetExecutor(NewFetcherExecutor(manager, writer, market, log))
	if err := jobs.LoadConfig(cfg.Schedule.JobsFile); err != nil {
		return err
	}

	if *runOnce != "" {
		return jobs.RunJob(*runOnce)
	}

	if err := jobs.Start(); err != nil {
		return err
	}
	for _, job := range jobs.GetAllJobs() {
		entry := log.WithFields(logrus.Fields{
			"job":      job.Config.Name,
			"type":     job.Config.Type,
			"schedule": job.Config.Schedule,
			"status":   job.Status,
		})
		if job.NextRun != nil {
			entry = entry.WithField("next_run", job.NextRun.Format(time.RFC3339))
		}
		entry.Info("job registered")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	log.WithField("source", manager.ActiveName()).Info("fetcher running")
	<-sigChan

	log.Info("shutting down")
	return jobs.Stop(30 * time.Second)
}

// openSink dry-run 时使用内存写入端
func openSink(ctx context.Context, cfg *config.Config, source string, log *logrus.Entry) (storage.Sink, error) {
	if *dryRun {
		log.Warn("dry run: bars are kept in memory only")
		return storage.NewMemorySink(), nil
	}

	sink := storage.NewInfluxSink(storage.InfluxConfig{
		URL:    cfg.InfluxDB.URL,
		Token:  cfg.InfluxDB.Token,
		Org:    cfg.InfluxDB.Org,
		Bucket: cfg.InfluxDB.Bucket,
	}, source)
	if err := sink.Ping(ctx); err != nil {
		sink.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{"url": cfg.InfluxDB.URL, "bucket": cfg.InfluxDB.Bucket}).Info("influxdb connected")
	return sink, nil
}
