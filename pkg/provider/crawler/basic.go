package crawler

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/httpx"
	"stockdata/pkg/parser"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

// Search 通过上交所简称接口按代码、名称或拼音查询证券
func (c *Crawler) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.NewValidationError("search query is empty")
	}

	spec := httpx.Get(c.endpoints.SSESearch,
		httpx.P("dataType", "[agzqdm]"),
		httpx.P("input", query),
		httpx.P("random", strconv.FormatFloat(rand.Float64(), 'f', 16, 64)),
	).WithHeader("Referer", "https://www.sse.org.cn/").
		WithHeader("Accept", "application/json, text/javascript, */*; q=0.01")

	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}

	tree, _ := payload.Object()
	rows, _ := tree["data"].([]interface{})

	return core.CollectRows(c.log, "search", rows, func(_ int, v interface{}) (core.SearchResult, error) {
		row, err := asRow(v)
		if err != nil {
			return core.SearchResult{}, err
		}
		code, err := core.RequireString(row, "code")
		if err != nil {
			return core.SearchResult{}, err
		}
		name, err := core.RequireString(row, "name")
		if err != nil {
			return core.SearchResult{}, err
		}

		result := core.SearchResult{
			Code:   code,
			Name:   name,
			Pinyin: core.OptionalString(row, "pinyinString"),
			Type:   core.OptionalString(row, "type"),
		}
		if sym, err := symbol.Normalize(code, symbol.BackendDatacenter); err == nil {
			result.Exchange = string(sym.Exchange)
			result.Symbol = sym.Canonical
		}
		return result, nil
	})
}

// GetTradingCalendar 通过深交所月历获取区间内的交易日，按日期升序
func (c *Crawler) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if core.EmptyRange(c.calendar, r) {
		return []core.TradingDate{}, nil
	}

	var days []core.TradingDate
	for _, month := range monthsIn(r) {
		monthDays, err := c.calendarMonth(ctx, month)
		if err != nil {
			return nil, err
		}
		for _, d := range monthDays {
			if r.Contains(d.Date) {
				days = append(days, d)
			}
		}
	}

	if days == nil {
		days = []core.TradingDate{}
	}
	core.SortTradingDates(days)
	return days, nil
}

type calendarDay struct {
	date time.Time
	open bool
}

// calendarMonth 获取某月的交易日，jybz 为 1 表示开市
func (c *Crawler) calendarMonth(ctx context.Context, month time.Time) ([]core.TradingDate, error) {
	spec := httpx.Get(c.endpoints.SZSECalendar,
		httpx.P("month", month.Format("2006-01")),
		httpx.P("random", strconv.FormatFloat(rand.Float64(), 'f', 16, 64)),
	).WithHeader("Referer", "https://www.szse.cn/")

	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}

	tree, _ := payload.Object()
	rows, _ := tree["data"].([]interface{})

	entries, err := core.CollectRows(c.log.WithField("month", month.Format("2006-01")), "calendar", rows,
		func(_ int, v interface{}) (calendarDay, error) {
			row, err := asRow(v)
			if err != nil {
				return calendarDay{}, err
			}
			raw, err := core.RequireString(row, "jyrq")
			if err != nil {
				return calendarDay{}, err
			}
			date, err := timing.ParseDate(raw)
			if err != nil {
				return calendarDay{}, err
			}
			return calendarDay{date: date, open: core.OptionalString(row, "jybz") == "1"}, nil
		})
	if err != nil {
		return nil, err
	}

	days := make([]core.TradingDate, 0, len(entries))
	for _, e := range entries {
		if e.open {
			days = append(days, core.TradingDate{Date: e.date, Exchange: core.CalendarExchange})
		}
	}
	return days, nil
}

// TradingDaysInMonth 返回深交所月历中某月的交易日，供本地日历加载内置表之外的月份
func (c *Crawler) TradingDaysInMonth(ctx context.Context, month time.Time) ([]time.Time, error) {
	days, err := c.calendarMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		if d.Date.Year() == month.Year() && d.Date.Month() == month.Month() {
			out = append(out, d.Date)
		}
	}
	return out, nil
}

var _ timing.MonthSource = (*Crawler)(nil)

// LastTradingDay 返回今天或之前最近的交易日
//
// 优先使用深交所日历，上游不可用时退回本地日历。
func (c *Crawler) LastTradingDay(ctx context.Context) (core.TradingDate, error) {
	today := timing.DayOf(c.now())
	r := core.DateRange{Start: today.AddDate(0, 0, -31), End: today}

	days, err := c.GetTradingCalendar(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return core.TradingDate{}, apperr.NewTimeoutError(ctx.Err())
		}
		c.log.WithError(err).WithFields(logrus.Fields{
			"range": r.String(),
		}).Warn("trading calendar unavailable, using local calendar")
		return core.TradingDate{Date: c.calendar.LastTradingDay(today), Exchange: core.CalendarExchange}, nil
	}
	if len(days) == 0 {
		return core.TradingDate{Date: c.calendar.LastTradingDay(today), Exchange: core.CalendarExchange}, nil
	}
	return days[len(days)-1], nil
}

// monthsIn 返回区间覆盖的每个月的第一天
func monthsIn(r core.DateRange) []time.Time {
	start := timing.DayOf(r.Start)
	end := timing.DayOf(r.End)

	var months []time.Time
	for m := timing.Date(start.Year(), start.Month(), 1); !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}
