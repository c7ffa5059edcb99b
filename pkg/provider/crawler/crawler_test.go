package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/httpx"
	"stockdata/pkg/limiter"
	"stockdata/pkg/timing"
)

// 各上游接口的路径
const (
	pathKline       = "/api/qt/stock/kline/get"
	pathXueqiu      = "/v5/stock/quote.json"
	pathSSESearch   = "/api/report/shortname/gethangqing"
	pathSZSECal     = "/api/report/exchange/onepersistenthour/monthList"
	pathDatacenter  = "/securities/api/data/v1/get"
	pathDataWeb     = "/api/data/v1/get"
	pathReport      = "/report/list"
	pathPlateList   = "/api/qt/clist/get"
	pathFundFlow    = "/api/qt/stock/fflow/daykline/get"
	pathMarketIndex = "/api/qt/ulist.np/get"
)

// fakeUpstream 按路径分发的假上游，记录每个路径的请求
type fakeUpstream struct {
	*httptest.Server

	mu       sync.Mutex
	requests map[string][]*http.Request
}

func newFakeUpstream(t *testing.T, routes map[string]http.HandlerFunc) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{requests: make(map[string][]*http.Request)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests[r.URL.Path] = append(f.requests[r.URL.Path], r.Clone(context.Background()))
		f.mu.Unlock()

		handler, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeUpstream) hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests[path])
}

func (f *fakeUpstream) last(path string) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[path]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// fixedNow 2025-06-10 10:00 上海时间
func fixedNow() time.Time {
	return time.Date(2025, 6, 10, 10, 0, 0, 0, timing.Shanghai)
}

func newTestCrawler(t *testing.T, f *fakeUpstream) (*Crawler, *test.Hook) {
	t.Helper()

	opts := httpx.DefaultOptions()
	opts.Timeout = 2 * time.Second
	opts.Retry = limiter.RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		MaxRetryAfter: 10 * time.Millisecond,
	}
	exec := httpx.NewExecutor(opts)

	log, hook := test.NewNullLogger()
	c := New(exec, Options{
		Endpoints:   DefaultEndpoints().WithBase(f.URL),
		Adjust:      1,
		XueqiuToken: "tok",
		Now:         fixedNow,
		Logger:      logrus.NewEntry(log),
	})
	t.Cleanup(func() { _ = c.Close() })
	return c, hook
}

func warnings(hook *test.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// writeJSONP 用请求中的回调名包裹响应
func writeJSONP(w http.ResponseWriter, r *http.Request, body string) {
	cb := r.URL.Query().Get("cb")
	if cb == "" {
		cb = r.URL.Query().Get("callback")
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = fmt.Fprintf(w, "%s(%s);", cb, body)
}

func datacenterOK(rows string) string {
	return fmt.Sprintf(`{"version":"v1","result":{"pages":1,"data":%s,"count":1},"success":true,"message":"ok","code":0}`, rows)
}

const datacenterEmpty = `{"version":"v1","result":null,"success":false,"message":"返回数据为空","code":9201}`

// byReport 按 reportName 分发数据中心请求
func byReport(reports map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := reports[r.URL.Query().Get("reportName")]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Query().Get("callback") != "" {
			writeJSONP(w, r, body)
			return
		}
		writeJSON(w, body)
	}
}

func TestEndpoints_ApplyAndWithBase(t *testing.T) {
	e := DefaultEndpoints()
	require.NoError(t, e.Apply(map[string]string{
		"kline":         "http://127.0.0.1:9000/kline",
		"sina_quote":    "http://ignored",
		"XUEQIU_QUOTE":  "http://127.0.0.1:9000/xq",
		"szse_calendar": "",
	}))
	assert.Equal(t, "http://127.0.0.1:9000/kline", e.Kline)
	assert.Equal(t, "http://127.0.0.1:9000/xq", e.XueqiuQuote)
	assert.Equal(t, DefaultEndpoints().SZSECalendar, e.SZSECalendar)

	assert.Error(t, e.Apply(map[string]string{"kline": "not a url"}))

	based := DefaultEndpoints().WithBase("http://127.0.0.1:1234")
	assert.Equal(t, "http://127.0.0.1:1234"+pathDatacenter, based.Datacenter)
	assert.Equal(t, "http://127.0.0.1:1234"+pathDataWeb, based.DatacenterWeb)
	assert.Len(t, e.Keys(), 10)
}

func TestCallback_jQuery格式(t *testing.T) {
	c := New(nil, Options{Now: fixedNow})
	cb := c.callback()
	require.True(t, strings.HasPrefix(cb, "jQuery"))
	parts := strings.Split(strings.TrimPrefix(cb, "jQuery"), "_")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 20)
	assert.Equal(t, fmt.Sprint(fixedNow().UnixMilli()), parts[1])
}

func TestDatacenter_无数据返回空(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathDatacenter: byReport(map[string]string{"RPT_F10_FN_MAINOP": datacenterEmpty}),
	})
	c, _ := newTestCrawler(t, f)

	dates, err := c.GetReportDates(context.Background(), "600519")
	require.NoError(t, err)
	assert.NotNil(t, dates)
	assert.Empty(t, dates)

	req := f.last(pathDatacenter)
	require.NotNil(t, req)
	assert.Equal(t, `(SECUCODE="600519.SH")`, req.URL.Query().Get("filter"))
	assert.Equal(t, "REPORT_DATE", req.URL.Query().Get("distinct"))
}

func TestDatacenter_业务错误码(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathDatacenter: byReport(map[string]string{
			"RPT_F10_FN_MAINOP": `{"result":null,"success":false,"message":"参数错误","code":9501}`,
		}),
	})
	c, _ := newTestCrawler(t, f)

	_, err := c.GetReportDates(context.Background(), "600519")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Contains(t, err.Error(), "参数错误")
	assert.Equal(t, 1, f.hits(pathDatacenter))
}

func TestClose_关闭后不再请求(t *testing.T) {
	f := newFakeUpstream(t, nil)
	c, _ := newTestCrawler(t, f)

	assert.True(t, c.IsHealthy())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsHealthy())

	_, err := c.GetReportDates(context.Background(), "600519")
	assert.Error(t, err)
	assert.Equal(t, 0, f.hits(pathDatacenter))
}
