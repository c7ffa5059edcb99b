package timing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// 内置的沪深休市日（仅列出工作日）
var builtinHolidays = []string{
	// 2024
	"2024-01-01",
	"2024-02-09", "2024-02-12", "2024-02-13", "2024-02-14", "2024-02-15", "2024-02-16",
	"2024-04-04", "2024-04-05",
	"2024-05-01", "2024-05-02", "2024-05-03",
	"2024-06-10",
	"2024-09-16", "2024-09-17",
	"2024-10-01", "2024-10-02", "2024-10-03", "2024-10-04", "2024-10-07",
	// 2025
	"2025-01-01",
	"2025-01-28", "2025-01-29", "2025-01-30", "2025-01-31", "2025-02-03", "2025-02-04",
	"2025-04-04",
	"2025-05-01", "2025-05-02", "2025-05-05",
	"2025-06-02",
	"2025-10-01", "2025-10-02", "2025-10-03", "2025-10-06", "2025-10-07", "2025-10-08",
	// 2026
	"2026-01-01", "2026-01-02",
	"2026-02-16", "2026-02-17", "2026-02-18", "2026-02-19", "2026-02-20", "2026-02-23",
	"2026-04-06",
	"2026-05-01", "2026-05-04", "2026-05-05",
	"2026-06-19",
	"2026-09-25",
	"2026-10-01", "2026-10-02", "2026-10-05", "2026-10-06", "2026-10-07",
}

// 内置表完整覆盖的年份
var builtinYears = map[int]struct{}{2024: {}, 2025: {}, 2026: {}}

// DefaultRefreshTTL 远程加载的月历缓存时间
const DefaultRefreshTTL = 24 * time.Hour

// ErrNotCovered 内置表不覆盖该月且没有可用的远程来源
var ErrNotCovered = errors.New("trading calendar does not cover month")

// MonthSource 远程交易日来源，返回某月的全部交易日
type MonthSource interface {
	TradingDaysInMonth(ctx context.Context, month time.Time) ([]time.Time, error)
}

type loadedMonth struct {
	open     map[string]struct{}
	loadedAt time.Time
}

// Calendar 本地交易日历：周末休市，加上内置与配置的节假日
//
// 内置表之外的月份可以由 MonthSource 加载，加载后以远程数据为准。
type Calendar struct {
	mu       sync.RWMutex
	holidays map[string]struct{}
	months   map[string]loadedMonth
	source   MonthSource
	ttl      time.Duration
	now      func() time.Time
}

// NewCalendar 创建日历，extra 为追加的 YYYY-MM-DD 休市日
func NewCalendar(extra []string) (*Calendar, error) {
	c := &Calendar{
		holidays: make(map[string]struct{}, len(builtinHolidays)+len(extra)),
		months:   make(map[string]loadedMonth),
		ttl:      DefaultRefreshTTL,
		now:      time.Now,
	}
	for _, day := range builtinHolidays {
		c.holidays[day] = struct{}{}
	}
	for _, day := range extra {
		t, err := ParseDate(day)
		if err != nil {
			return nil, err
		}
		c.holidays[FormatDate(t)] = struct{}{}
	}
	return c, nil
}

// DefaultCalendar 只包含内置节假日的日历
func DefaultCalendar() *Calendar {
	c, _ := NewCalendar(nil)
	return c
}

// SetSource 设置远程月历来源，ttl <= 0 时使用 DefaultRefreshTTL
func (c *Calendar) SetSource(src MonthSource, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = src
	c.ttl = ttl
}

func monthKey(t time.Time) string {
	return t.In(Shanghai).Format("2006-01")
}

// Load 用远程数据覆盖某月，days 为该月全部交易日
func (c *Calendar) Load(month time.Time, days []time.Time) {
	open := make(map[string]struct{}, len(days))
	for _, d := range days {
		open[FormatDate(d)] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.months[monthKey(month)] = loadedMonth{open: open, loadedAt: c.now()}
}

// Covers 判断某日所在月份是否有可靠数据
func (c *Calendar) Covers(t time.Time) bool {
	if _, ok := builtinYears[t.In(Shanghai).Year()]; ok {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.months[monthKey(t)]
	return ok
}

// Ensure 保证 [start, end] 内每个月都有可靠数据
//
// 内置表之外的月份从 MonthSource 加载，过期后重新加载；
// 重新加载失败时沿用旧数据。没有来源时返回 ErrNotCovered。
func (c *Calendar) Ensure(ctx context.Context, start, end time.Time) error {
	last := DayOf(end)
	for m := Date(DayOf(start).Year(), DayOf(start).Month(), 1); !m.After(last); m = m.AddDate(0, 1, 0) {
		if _, ok := builtinYears[m.Year()]; ok {
			continue
		}

		c.mu.RLock()
		loaded, have := c.months[monthKey(m)]
		src, ttl := c.source, c.ttl
		now := c.now()
		c.mu.RUnlock()

		if have && now.Sub(loaded.loadedAt) < ttl {
			continue
		}
		if src == nil {
			if have {
				continue
			}
			return fmt.Errorf("%w: %s", ErrNotCovered, monthKey(m))
		}

		days, err := src.TradingDaysInMonth(ctx, m)
		if err == nil && len(days) == 0 {
			// 沪深没有整月休市，空结果说明上游尚未发布
			err = fmt.Errorf("%w: %s", ErrNotCovered, monthKey(m))
		}
		if err != nil {
			if have {
				continue
			}
			return err
		}
		c.Load(m, days)
	}
	return nil
}

// IsTradingDay 判断某日是否开市
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(Shanghai)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	day := FormatDate(t)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.months[monthKey(t)]; ok {
		_, open := m.open[day]
		return open
	}
	_, closed := c.holidays[day]
	return !closed
}

// TradingDays 返回 [start, end] 内的交易日，按日期升序
func (c *Calendar) TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := DayOf(start); !d.After(DayOf(end)); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// HasTradingDay 判断区间内是否至少有一个交易日
func (c *Calendar) HasTradingDay(start, end time.Time) bool {
	for d := DayOf(start); !d.After(DayOf(end)); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			return true
		}
	}
	return false
}

// LastTradingDay 返回不晚于 t 的最近交易日
func (c *Calendar) LastTradingDay(t time.Time) time.Time {
	d := DayOf(t)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay 返回晚于 t 的第一个交易日
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	d := DayOf(t).AddDate(0, 0, 1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// ShiftTradingDays 从 t 向前回溯 n 个交易日，用于指标计算的预热窗口
func (c *Calendar) ShiftTradingDays(t time.Time, n int) time.Time {
	d := DayOf(t)
	for n > 0 {
		d = d.AddDate(0, 0, -1)
		if c.IsTradingDay(d) {
			n--
		}
	}
	return d
}
