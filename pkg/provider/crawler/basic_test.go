package crawler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/timing"
)

const sseSearchBody = `{"data":[` +
	`{"code":"600519","name":"贵州茅台","pinyinString":"GZMT","type":"A"},` +
	`{"code":"","name":"缺代码"},` +
	`{"code":"510300","name":"沪深300ETF","type":"F"}]}`

func TestSearch_解析结果(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathSSESearch: func(w http.ResponseWriter, r *http.Request) { writeJSON(w, sseSearchBody) },
	})
	c, hook := newTestCrawler(t, f)

	results, err := c.Search(context.Background(), " 茅台 ")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, core.SearchResult{
		Code:     "600519",
		Name:     "贵州茅台",
		Exchange: "SH",
		Symbol:   "600519.SH",
		Pinyin:   "GZMT",
		Type:     "A",
	}, results[0])
	assert.Equal(t, "510300.SH", results[1].Symbol)
	assert.Len(t, warnings(hook), 1)

	req := f.last(pathSSESearch)
	require.NotNil(t, req)
	assert.Equal(t, "茅台", req.URL.Query().Get("input"))
	assert.Equal(t, "[agzqdm]", req.URL.Query().Get("dataType"))
	assert.NotEmpty(t, req.URL.Query().Get("random"))
	assert.Equal(t, "https://www.sse.org.cn/", req.Header.Get("Referer"))
}

func TestSearch_空查询(t *testing.T) {
	f := newFakeUpstream(t, nil)
	c, _ := newTestCrawler(t, f)

	_, err := c.Search(context.Background(), "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, f.hits(pathSSESearch))
}

func TestSearch_无结果(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathSSESearch: func(w http.ResponseWriter, r *http.Request) { writeJSON(w, `{"data":[]}`) },
	})
	c, _ := newTestCrawler(t, f)

	results, err := c.Search(context.Background(), "不存在")
	require.NoError(t, err)
	assert.Empty(t, results)
}

// szseMonths 按 month 参数返回深交所月历
func szseMonths(months map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := months[r.URL.Query().Get("month")]
		if !ok {
			body = `{"data":[]}`
		}
		writeJSON(w, body)
	}
}

const (
	szseMay = `{"data":[` +
		`{"jyrq":"2025-05-29","jybz":"1","zrxh":5},` +
		`{"jyrq":"2025-05-30","jybz":"1","zrxh":6},` +
		`{"jyrq":"2025-05-31","jybz":"0","zrxh":7}]}`
	szseJune = `{"data":[` +
		`{"jyrq":"2025-06-02","jybz":"0","zrxh":2},` +
		`{"jyrq":"2025-06-03","jybz":"1","zrxh":3},` +
		`{"jyrq":"2025-06-04","jybz":"1","zrxh":4},` +
		`{"jyrq":"2025-06-10","jybz":"1","zrxh":3},` +
		`{"jyrq":"2025-06-11","jybz":"1","zrxh":4}]}`
)

func TestGetTradingCalendar_跨月(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathSZSECal: szseMonths(map[string]string{"2025-05": szseMay, "2025-06": szseJune}),
	})
	c, _ := newTestCrawler(t, f)

	days, err := c.GetTradingCalendar(context.Background(), mustRange(t, "2025-05-30", "2025-06-04"))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, timing.Date(2025, 5, 30), days[0].Date)
	assert.Equal(t, timing.Date(2025, 6, 3), days[1].Date)
	assert.Equal(t, timing.Date(2025, 6, 4), days[2].Date)
	assert.Equal(t, core.CalendarExchange, days[0].Exchange)

	assert.Equal(t, 2, f.hits(pathSZSECal))
	assert.Equal(t, "https://www.szse.cn/", f.last(pathSZSECal).Header.Get("Referer"))
}

func TestGetTradingCalendar_无交易日不发请求(t *testing.T) {
	f := newFakeUpstream(t, nil)
	c, _ := newTestCrawler(t, f)

	days, err := c.GetTradingCalendar(context.Background(), mustRange(t, "2025-05-31", "2025-06-02"))
	require.NoError(t, err)
	assert.NotNil(t, days)
	assert.Empty(t, days)
	assert.Equal(t, 0, f.hits(pathSZSECal))
}

func TestLastTradingDay(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathSZSECal: szseMonths(map[string]string{"2025-05": szseMay, "2025-06": szseJune}),
	})
	c, _ := newTestCrawler(t, f)

	day, err := c.LastTradingDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, timing.Date(2025, 6, 10), day.Date)
}

func TestLastTradingDay_上游失败退回本地日历(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathSZSECal: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
	})
	c, hook := newTestCrawler(t, f)

	day, err := c.LastTradingDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, timing.Date(2025, 6, 10), day.Date)
	assert.Equal(t, core.CalendarExchange, day.Exchange)

	warns := warnings(hook)
	require.NotEmpty(t, warns)
	assert.Equal(t, "trading calendar unavailable, using local calendar", warns[len(warns)-1].Message)
}

func TestTradingDaysInMonth_加载本地日历(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathSZSECal: szseMonths(map[string]string{"2025-05": szseMay, "2025-06": szseJune}),
	})
	c, _ := newTestCrawler(t, f)

	days, err := c.TradingDaysInMonth(context.Background(), timing.Date(2025, 6, 1))
	require.NoError(t, err)
	require.Len(t, days, 4)
	assert.Equal(t, timing.Date(2025, 6, 3), days[0])
	assert.Equal(t, "2025-06", f.last(pathSZSECal).URL.Query().Get("month"))

	cal := timing.DefaultCalendar()
	cal.SetSource(c, time.Hour)
	require.NoError(t, cal.Ensure(context.Background(), timing.Date(2025, 6, 1), timing.Date(2025, 6, 30)))
	assert.Equal(t, 1, f.hits(pathSZSECal), "内置年份不访问深交所")

	// 假上游没有 2027-06 的数据
	err = cal.Ensure(context.Background(), timing.Date(2027, 6, 1), timing.Date(2027, 6, 30))
	assert.True(t, errors.Is(err, timing.ErrNotCovered))
	assert.Equal(t, "2027-06", f.last(pathSZSECal).URL.Query().Get("month"))
	assert.False(t, cal.Covers(timing.Date(2027, 6, 1)))
}

func TestMonthsIn(t *testing.T) {
	months := monthsIn(core.DateRange{Start: timing.Date(2024, 11, 15), End: timing.Date(2025, 2, 1)})
	require.Len(t, months, 4)
	assert.Equal(t, timing.Date(2024, 11, 1), months[0])
	assert.Equal(t, timing.Date(2025, 2, 1), months[3])
}
