package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stockdata/pkg/provider"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/provider/decorators"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// APIServer 将数据源操作以 JSON 形式暴露
type APIServer struct {
	manager        *provider.ProviderManager
	log            *logrus.Entry
	requestTimeout time.Duration
	server         *http.Server
	started        time.Time
}

// NewAPIServer 创建 API 服务，requestTimeout 为单个请求的上游调用时限
func NewAPIServer(manager *provider.ProviderManager, requestTimeout time.Duration, log *logrus.Entry) *APIServer {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &APIServer{
		manager:        manager,
		log:            log,
		requestTimeout: requestTimeout,
		started:        time.Now(),
	}
}

// Router 构建路由
func (s *APIServer) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestIDMiddleware())
	router.Use(s.loggingMiddleware())
	router.Use(s.corsMiddleware())

	router.GET("/health", s.healthCheck)
	router.GET("/status", s.getStatus)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/search", s.search)
		v1.GET("/quote/:symbol", s.getQuote)
		v1.GET("/kline/:symbol", s.getKline)
		v1.GET("/indicators/:symbol", s.getIndicators)
		v1.GET("/financials/:symbol", s.getFinancials)
		v1.GET("/calendar", s.getTradingCalendar)
	}

	market := v1.Group("/market")
	{
		market.GET("/indices", s.getMarketIndices)
		market.GET("/plates", s.getPlateQuotes)
		market.GET("/billboard", s.getBillboard)
		market.GET("/billboard/:symbol", s.getStockBillboard)
		market.GET("/smart-score/:symbol", s.getSmartScore)
		market.GET("/smart-rank/:symbol", s.getSmartScoreRank)
		market.GET("/top-rated", s.getTopRatedStocks)
		market.GET("/last-trading-day", s.getLastTradingDay)
		market.GET("/fund-flow/:symbol", s.getFundFlow)
		market.GET("/valuation/:symbol", s.getValuation)
		market.GET("/ratings/:symbol", s.getInstitutionalRatings)
		market.GET("/main-business/:symbol", s.getMainBusiness)
		market.GET("/business-scope/:symbol", s.getBusinessScope)
		market.GET("/report-dates/:symbol", s.getReportDates)
	}

	return router
}

// Start 监听端口，阻塞直到服务关闭
func (s *APIServer) Start(port string) error {
	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("port", port).Info("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭
func (s *APIServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *APIServer) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *APIServer) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"request_id": c.GetString("request_id"),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Debug("request served")
		}
	}
}

func (s *APIServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *APIServer) healthCheck(c *gin.Context) {
	health := s.manager.Health()
	status := "ok"
	code := http.StatusOK
	if _, err := s.manager.Active(); err != nil {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"active":    s.manager.ActiveName(),
		"sources":   health,
		"timestamp": time.Now(),
	})
}

// getStatus 列出各数据源的装饰器状态
func (s *APIServer) getStatus(c *gin.Context) {
	sources := make([]gin.H, 0)
	for _, name := range s.manager.List() {
		ds, err := s.manager.Get(name)
		if err != nil {
			continue
		}
		sources = append(sources, gin.H{
			"name":       name,
			"chain":      ds.Name(),
			"healthy":    ds.IsHealthy(),
			"decorators": decoratorStatus(ds),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"active":   s.manager.ActiveName(),
		"sources":  sources,
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"extended": s.manager.Crawler() != nil,
	})
}

// decoratorStatus 由外向内收集装饰器状态
func decoratorStatus(ds core.DataSource) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		switch d := ds.(type) {
		case *decorators.CachingDataSource:
			st := d.Stats()
			out = append(out, map[string]interface{}{
				"decorator_type": "Cache",
				"backend":        st.Backend,
				"size":           st.Size,
				"hit_rate":       st.HitRate,
			})
		case interface{ GetStatus() map[string]interface{} }:
			out = append(out, d.GetStatus())
		}
		next, ok := ds.(decorators.Decorator)
		if !ok {
			return out
		}
		ds = next.GetBase()
	}
}

// source 按 ?source= 选择数据源，缺省为活动数据源
func (s *APIServer) source(c *gin.Context) (core.DataSource, error) {
	if name := c.Query("source"); name != "" {
		return s.manager.Get(name)
	}
	return s.manager.Active()
}

func (s *APIServer) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}
