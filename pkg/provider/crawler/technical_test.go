package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/timing"
)

func klineBody(lines ...string) string {
	rows, _ := json.Marshal(lines)
	return fmt.Sprintf(`{"rc":0,"rt":17,"data":{"code":"600519","market":1,"name":"贵州茅台","klines":%s}}`, rows)
}

func mustRange(t *testing.T, start, end string) core.DateRange {
	t.Helper()
	r, err := core.NewDateRange(start, end)
	require.NoError(t, err)
	return r
}

func TestGetKline_周末区间不发请求(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathKline: func(w http.ResponseWriter, r *http.Request) { writeJSON(w, klineBody()) },
	})
	c, _ := newTestCrawler(t, f)

	bars, err := c.GetKline(context.Background(), "600519", core.PeriodDaily, mustRange(t, "2025-06-07", "2025-06-08"))
	require.NoError(t, err)
	assert.NotNil(t, bars)
	assert.Empty(t, bars)
	assert.Equal(t, 0, f.hits(pathKline))
}

func TestGetKline_丢弃坏行(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathKline: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, klineBody(
				"2025-06-03,1500.00,1510.00,1520.00,1495.00,30000,4500000000.00,1.67,0.66,10.00,0.24",
				"2025-06-04,1510.00,1505.00,1515.00,1500.00,28000,4200000000.00,0.99,-0.33,-5.00,0.22",
				"2025-06-05,abc,1520.00,1530.00,1500.00,31000,4700000000.00,1.99,1.00,15.00,0.25",
				"2025-06-06,1520.00,1530.00,1535.00,1518.00,25000,3800000000.00,1.12,0.66,10.00,0.20",
				"2025-06-09,1530.00,1540.00,1545.00,1528.00,26000,4000000000.00,1.11,0.65,10.00,0.21",
			))
		},
	})
	c, hook := newTestCrawler(t, f)

	bars, err := c.GetKline(context.Background(), "600519", core.PeriodDaily, mustRange(t, "2025-06-03", "2025-06-09"))
	require.NoError(t, err)
	require.Len(t, bars, 4)

	warns := warnings(hook)
	require.Len(t, warns, 1)
	assert.Equal(t, 2, warns[0].Data["row"])
	assert.Equal(t, "kline", warns[0].Data["record"])

	first := bars[0]
	assert.Equal(t, "600519.SH", first.Symbol)
	assert.Equal(t, core.PeriodDaily, first.Period)
	assert.Equal(t, timing.Date(2025, 6, 3), first.Date)
	assert.Equal(t, 1500.0, first.Open)
	assert.Equal(t, 1510.0, first.Close)
	assert.Equal(t, 3000000.0, first.Volume)
	require.NotNil(t, first.TurnoverRate)
	assert.Equal(t, 0.24, *first.TurnoverRate)
	assert.Equal(t, timing.Date(2025, 6, 9), bars[3].Date)

	req := f.last(pathKline)
	require.NotNil(t, req)
	q := req.URL.Query()
	assert.Equal(t, "1.600519", q.Get("secid"))
	assert.Equal(t, "101", q.Get("klt"))
	assert.Equal(t, "1", q.Get("fqt"))
	assert.Equal(t, "20250603", q.Get("beg"))
	assert.Equal(t, "20250609", q.Get("end"))
	assert.Equal(t, "https://quote.eastmoney.com/", req.Header.Get("Referer"))
}

func TestGetKline_全部坏行(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathKline: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, klineBody(
				"2025-06-03,1500.00,1510.00,1490.00,1495.00,30000",
				"bad-date,1510.00,1505.00,1515.00,1500.00,28000",
			))
		},
	})
	c, hook := newTestCrawler(t, f)

	_, err := c.GetKline(context.Background(), "600519", core.PeriodDaily, mustRange(t, "2025-06-03", "2025-06-04"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Len(t, warnings(hook), 2)
}

func TestGetKline_上游无数据(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathKline: func(w http.ResponseWriter, r *http.Request) { writeJSON(w, `{"rc":0,"rt":17,"data":null}`) },
	})
	c, _ := newTestCrawler(t, f)

	_, err := c.GetKline(context.Background(), "600519", core.PeriodDaily, mustRange(t, "2025-06-03", "2025-06-04"))
	assert.ErrorIs(t, err, apperr.ErrInvalidSymbol)
}

func TestGetKline_参数校验(t *testing.T) {
	f := newFakeUpstream(t, nil)
	c, _ := newTestCrawler(t, f)
	ctx := context.Background()

	_, err := c.GetKline(ctx, "600519", core.Period("2h"), mustRange(t, "2025-06-03", "2025-06-04"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = c.GetKline(ctx, "600519", core.PeriodDaily, core.DateRange{
		Start: timing.Date(2025, 6, 9), End: timing.Date(2025, 6, 3),
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = c.GetKline(ctx, "ABC.XX1", core.PeriodDaily, mustRange(t, "2025-06-03", "2025-06-04"))
	assert.ErrorIs(t, err, apperr.ErrInvalidSymbol)

	_, err = c.GetKline(ctx, "990001", core.PeriodDaily, mustRange(t, "2025-06-03", "2025-06-04"))
	assert.ErrorIs(t, err, apperr.ErrInvalidSymbol)

	assert.Equal(t, 0, f.hits(pathKline))
}

func TestGetKline_分钟线(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathKline: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, klineBody(
				"2025-06-03 10:30,1500.00,1505.00,1508.00,1499.00,1200,180000000.00,0.60,0.33,5.00,0.01",
				"2025-06-03 10:00,1498.00,1500.00,1502.00,1497.00,1000,150000000.00,0.33,0.13,2.00,0.01",
			))
		},
	})
	c, _ := newTestCrawler(t, f)

	bars, err := c.GetKline(context.Background(), "SZ000001", core.PeriodMin30, mustRange(t, "2025-06-03", "2025-06-03"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 10, bars[0].Date.Hour())
	assert.Equal(t, 0, bars[0].Date.Minute())
	assert.Equal(t, 30, bars[1].Date.Minute())
	assert.Equal(t, "000001.SZ", bars[0].Symbol)

	q := f.last(pathKline).URL.Query()
	assert.Equal(t, "0.000001", q.Get("secid"))
	assert.Equal(t, "30", q.Get("klt"))
}

func TestGetIndicators_预热后截取区间(t *testing.T) {
	days := timing.DefaultCalendar().TradingDays(timing.Date(2025, 4, 1), timing.Date(2025, 6, 9))
	lines := make([]string, len(days))
	for i, d := range days {
		px := 10 + float64(i)
		lines[i] = fmt.Sprintf("%s,%.2f,%.2f,%.2f,%.2f,1000,100000.00,1.00,1.00,1.00,0.10",
			timing.FormatDate(d), px-0.5, px, px+1, px-1)
	}
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathKline: func(w http.ResponseWriter, r *http.Request) { writeJSON(w, klineBody(lines...)) },
	})
	c, _ := newTestCrawler(t, f)

	points, err := c.GetIndicators(context.Background(), "600519",
		core.IndicatorSet{core.IndicatorMA}, mustRange(t, "2025-06-03", "2025-06-09"))
	require.NoError(t, err)
	require.Len(t, points, 5)

	last := points[len(points)-1]
	assert.Equal(t, timing.Date(2025, 6, 9), last.Date)
	require.NotNil(t, last.MA5)
	n := float64(len(days))
	assert.InDelta(t, 10+n-3, *last.MA5, 1e-9)
	assert.Nil(t, last.DIF)
	assert.Nil(t, last.RSI6)

	beg := f.last(pathKline).URL.Query().Get("beg")
	assert.Less(t, beg, "20250603")
}

func TestGetIndicators_空区间(t *testing.T) {
	f := newFakeUpstream(t, nil)
	c, _ := newTestCrawler(t, f)

	points, err := c.GetIndicators(context.Background(), "600519", nil, mustRange(t, "2025-06-07", "2025-06-08"))
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Equal(t, 0, f.hits(pathKline))
}
