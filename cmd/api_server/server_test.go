package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/httpx"
	"stockdata/pkg/provider/crawler"
	"stockdata/pkg/provider/decorators"
	"stockdata/pkg/timing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubSource 按代码返回固定数据，"BAD" 为无效代码，"DOWN" 模拟上游故障
type stubSource struct {
	name      string
	lastRange core.DateRange
	lastSet   core.IndicatorSet
	period    core.Period
}

func (s *stubSource) Name() string    { return s.name }
func (s *stubSource) IsHealthy() bool { return true }

func (s *stubSource) fail(sym string) error {
	switch sym {
	case "BAD":
		return apperr.NewInvalidSymbolError(sym, "no digits")
	case "DOWN":
		return apperr.NewUpstreamError(http.StatusServiceUnavailable, []byte("busy"))
	}
	return nil
}

func (s *stubSource) Search(ctx context.Context, q string) ([]core.SearchResult, error) {
	if q == "" {
		return nil, apperr.NewValidationError("search query is empty")
	}
	return []core.SearchResult{{Code: "600519", Name: "贵州茅台", Symbol: "600519.SH", Exchange: "SH"}}, nil
}

func (s *stubSource) GetQuote(ctx context.Context, sym string) (*core.Quote, error) {
	if err := s.fail(sym); err != nil {
		return nil, err
	}
	return &core.Quote{Symbol: sym, Price: 12.5, Source: s.name}, nil
}

func (s *stubSource) GetKline(ctx context.Context, sym string, p core.Period, r core.DateRange) ([]core.KlineBar, error) {
	if err := s.fail(sym); err != nil {
		return nil, err
	}
	s.lastRange, s.period = r, p
	return []core.KlineBar{{Symbol: sym, Period: p, Date: r.End, Open: 1, Close: 2, High: 2, Low: 1}}, nil
}

func (s *stubSource) GetIndicators(ctx context.Context, sym string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	s.lastSet, s.lastRange = set, r
	return []core.IndicatorPoint{}, nil
}

func (s *stubSource) GetFinancials(ctx context.Context, sym string, rt core.ReportType) ([]core.FinancialStatementRow, error) {
	return nil, apperr.NewNotSupportedError(s.name, "GetFinancials")
}

func (s *stubSource) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	s.lastRange = r
	return []core.TradingDate{{Date: r.Start, Exchange: core.CalendarExchange}}, nil
}

func newTestServer(t *testing.T) (*gin.Engine, *stubSource) {
	src := &stubSource{name: "crawler"}
	m := provider.NewProviderManager()
	decorated := decorators.NewFrequencyControlDataSource(src, &decorators.FrequencyControlConfig{Enabled: false}, nil)
	require.NoError(t, m.Register("crawler", decorated))
	require.NoError(t, m.Register("sina", &stubSource{name: "sina"}))
	t.Cleanup(func() { m.Close() })

	log, _ := test.NewNullLogger()
	return NewAPIServer(m, time.Second, logrus.NewEntry(log)).Router(), src
}

func get(t *testing.T, router http.Handler, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestServer(t)

	w := get(t, router, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "crawler", body["active"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestGetQuote(t *testing.T) {
	router, _ := newTestServer(t)

	w := get(t, router, "/api/v1/quote/600000.SH")
	require.Equal(t, http.StatusOK, w.Code)

	var q core.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.Equal(t, 12.5, q.Price)
	assert.Equal(t, "crawler", q.Source)

	w = get(t, router, "/api/v1/quote/600000.SH?source=sina")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.Equal(t, "sina", q.Source)
}

func TestErrorMapping(t *testing.T) {
	router, _ := newTestServer(t)

	tests := []struct {
		name   string
		url    string
		status int
		code   string
	}{
		{"无效代码", "/api/v1/quote/BAD", http.StatusNotFound, "invalid_symbol"},
		{"上游故障", "/api/v1/quote/DOWN", http.StatusBadGateway, "upstream"},
		{"未知数据源", "/api/v1/quote/600000?source=tushare", http.StatusNotFound, "source_not_found"},
		{"非法周期", "/api/v1/kline/600000?period=2h", http.StatusBadRequest, "validation"},
		{"非法日期", "/api/v1/kline/600000?start=2025-13-01", http.StatusBadRequest, "validation"},
		{"起止颠倒", "/api/v1/kline/600000?start=2025-06-10&end=2025-06-01", http.StatusBadRequest, "validation"},
		{"不支持的操作", "/api/v1/financials/600000", http.StatusNotImplemented, "not_supported"},
		{"未知指标", "/api/v1/indicators/600000?indicators=ma,foo", http.StatusBadRequest, "validation"},
		{"空查询", "/api/v1/search", http.StatusBadRequest, "validation"},
		{"非法分页", "/api/v1/market/billboard?size=-1", http.StatusBadRequest, "validation"},
		{"扩展接口不可用", "/api/v1/market/indices", http.StatusNotImplemented, "not_supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, tt.url)
			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestGetKline_区间与周期(t *testing.T) {
	router, src := newTestServer(t)

	w := get(t, router, "/api/v1/kline/600000.SH?period=weekly&start=2025-01-02&end=2025-06-30")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, core.PeriodWeekly, src.period)
	assert.Equal(t, "2025-01-02", timing.FormatDate(src.lastRange.Start))
	assert.Equal(t, "2025-06-30", timing.FormatDate(src.lastRange.End))

	var bars []core.KlineBar
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bars))
	require.Len(t, bars, 1)
}

func TestGetKline_默认区间(t *testing.T) {
	router, src := newTestServer(t)

	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/kline/600000.SH?end=2025-06-30").Code)
	assert.Equal(t, core.PeriodDaily, src.period)
	assert.Equal(t, "2025-03-30", timing.FormatDate(src.lastRange.Start))
}

func TestGetIndicators_指标列表(t *testing.T) {
	router, src := newTestServer(t)

	w := get(t, router, "/api/v1/indicators/600000.SH?indicators=ma,macd&indicators=rsi&start=2025-06-01&end=2025-06-30")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, core.IndicatorSet{core.IndicatorMA, core.IndicatorMACD, core.IndicatorRSI}, src.lastSet)
}

func TestGetTradingCalendar(t *testing.T) {
	router, _ := newTestServer(t)

	w := get(t, router, "/api/v1/calendar?start=2025-06-03&end=2025-06-06")
	require.Equal(t, http.StatusOK, w.Code)

	var days []core.TradingDate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &days))
	require.Len(t, days, 1)
	assert.Equal(t, core.CalendarExchange, days[0].Exchange)
}

func TestGetStatus(t *testing.T) {
	router, _ := newTestServer(t)

	w := get(t, router, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Active  string `json:"active"`
		Sources []struct {
			Name       string                   `json:"name"`
			Chain      string                   `json:"chain"`
			Decorators []map[string]interface{} `json:"decorators"`
		} `json:"sources"`
		Extended bool `json:"extended"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "crawler", body.Active)
	assert.False(t, body.Extended)
	require.Len(t, body.Sources, 2)
	assert.Equal(t, "FrequencyControl(crawler)", body.Sources[0].Chain)
	require.Len(t, body.Sources[0].Decorators, 1)
	assert.Equal(t, "FrequencyControl", body.Sources[0].Decorators[0]["decorator_type"])
	assert.Empty(t, body.Sources[1].Decorators)
}

func TestRequestID_透传(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

// newCrawlerServer 注册一个指向假数据中心的爬虫，按 reportName 返回 JSONP
func newCrawlerServer(t *testing.T, reports map[string]string) *gin.Engine {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rows, ok := reports[q.Get("reportName")]
		if !ok {
			rows = "null"
		}
		body := fmt.Sprintf(`{"result":{"data":%s},"success":true,"message":"ok","code":0}`, rows)
		if rows == "null" {
			body = `{"result":null,"success":false,"message":"返回数据为空","code":9201}`
		}
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		_, _ = fmt.Fprintf(w, "%s(%s);", q.Get("callback"), body)
	}))
	t.Cleanup(upstream.Close)

	log, _ := test.NewNullLogger()
	cr := crawler.New(httpx.NewExecutor(httpx.DefaultOptions()), crawler.Options{
		Endpoints: crawler.DefaultEndpoints().WithBase(upstream.URL),
		Logger:    logrus.NewEntry(log),
	})
	m := provider.NewProviderManager()
	require.NoError(t, m.Register("crawler", cr))
	m.SetCrawler(cr)
	t.Cleanup(func() { m.Close() })

	return NewAPIServer(m, time.Second, logrus.NewEntry(log)).Router()
}

func TestSmartScoreRoutes(t *testing.T) {
	router := newCrawlerServer(t, map[string]string{
		"RPT_CUSTOM_STOCK_PK": `[{"SECURITY_CODE":"300750","SECUCODE":"300750.SZ","SECURITY_NAME_ABBR":"宁德时代",` +
			`"TOTAL_SCORE":82.5,"COMPRE_SCORE":82.5,"MARKET_RANK":120,"INDUSTRY_RANK":2,"BOARD_NAME":"电池"}]`,
		"RPT_BILLBOARD_PERFORMANCEHIS": `[{"SECURITY_CODE":"300750","SECUCODE":"300750.SZ",` +
			`"TRADE_DATE":"2025-06-05 00:00:00","CHANGE_RATE":12.1,"D5_CLOSE_ADJCHRATE":3.4}]`,
	})

	w := get(t, router, "/api/v1/market/smart-score/300750.SZ")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var score core.SmartScore
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &score))
	assert.Equal(t, "宁德时代", score.Name)
	require.NotNil(t, score.Score)
	assert.Equal(t, 82.5, *score.Score)

	w = get(t, router, "/api/v1/market/smart-rank/300750")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rank core.SmartScoreRank
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rank))
	assert.Equal(t, 2, rank.IndustryRank)
	assert.Equal(t, "电池", rank.BoardName)

	w = get(t, router, "/api/v1/market/top-rated?size=5")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var top []core.SmartScoreRank
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))
	require.Len(t, top, 1)
	assert.Equal(t, 120, top[0].MarketRank)

	w = get(t, router, "/api/v1/market/billboard/300750.SZ")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entries []core.BillboardEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].After5DayPct)
	assert.Equal(t, 3.4, *entries[0].After5DayPct)
}

func TestSmartScoreRoutes_错误(t *testing.T) {
	router := newCrawlerServer(t, nil)

	tests := []struct {
		name   string
		url    string
		status int
		code   string
	}{
		{"没有评分", "/api/v1/market/smart-score/920001", http.StatusNotFound, "invalid_symbol"},
		{"条数超限", "/api/v1/market/top-rated?size=1000", http.StatusBadRequest, "validation"},
		{"非法条数", "/api/v1/market/billboard/600519?limit=-1", http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, tt.url)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Error)
		})
	}

	// 没有爬虫时扩展接口不可用
	plain, _ := newTestServer(t)
	w := get(t, plain, "/api/v1/market/top-rated")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
