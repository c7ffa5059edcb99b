// api_server 以 HTTP/JSON 提供行情、K 线、指标、财务与交易日历查询
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"stockdata/pkg/config"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider"
)

var (
	configPath = flag.String("config", "", "配置文件路径（默认查找 ./config/stockdata.yaml）")
	port       = flag.String("port", "", "监听端口，覆盖 server.port")
	backend    = flag.String("backend", "", "数据源后端，覆盖 datasource.backend")
	logLevel   = flag.String("log-level", "", "日志级别，覆盖配置")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.SetBackend(*backend)
		if cfg.DataSource.Fallback == *backend {
			cfg.SetFallback("")
		}
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("invalid flags: %v", err)
		os.Exit(2)
	}
	logger.Init(cfg.Logger)
	log := logger.WithComponent("api_server")

	gin.SetMode(cfg.Server.Mode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	manager, err := provider.NewManagerFromConfig(ctx, cfg)
	cancel()
	if err != nil {
		log.WithError(err).Error("failed to build data sources")
		os.Exit(1)
	}
	defer manager.Close()

	server := NewAPIServer(manager, cfg.Server.RequestTimeout, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Server.Port) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("api server stopped")
			manager.Close()
			os.Exit(1)
		}
	case <-sigChan:
		log.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}
}
