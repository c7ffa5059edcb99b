package timing

import (
	"time"
)

// TimeService 提供当前时间接口，用于mock测试
type TimeService interface {
	Now() time.Time
}

// SystemTimeService 使用系统实际时间
type SystemTimeService struct{}

func (s *SystemTimeService) Now() time.Time {
	return time.Now()
}

// 连续竞价时段
const (
	morningOpen    = "09:30:00"
	morningClose   = "11:30:00"
	afternoonOpen  = "13:00:00"
	afternoonClose = "15:00:00"
)

// MarketTime 提供市场交易时间检测功能
type MarketTime struct {
	timeService TimeService
	calendar    *Calendar
}

// NewMarketTime 创建新的市场时间检测器
func NewMarketTime(timeService TimeService, calendar *Calendar) *MarketTime {
	if calendar == nil {
		calendar = DefaultCalendar()
	}
	return &MarketTime{
		timeService: timeService,
		calendar:    calendar,
	}
}

// DefaultMarketTime 使用系统时间的默认市场时间检测器
func DefaultMarketTime() *MarketTime {
	return NewMarketTime(&SystemTimeService{}, nil)
}

// Now 返回上海时区的当前时间
func (m *MarketTime) Now() time.Time {
	return m.timeService.Now().In(Shanghai)
}

// Calendar 返回使用的交易日历
func (m *MarketTime) Calendar() *Calendar {
	return m.calendar
}

// IsTradingTime 判断当前是否在连续竞价时段
func (m *MarketTime) IsTradingTime() bool {
	now := m.Now()
	if !m.calendar.IsTradingDay(now) {
		return false
	}

	current := now.Format("15:04:05")
	return (current >= morningOpen && current <= morningClose) ||
		(current >= afternoonOpen && current <= afternoonClose)
}

// IsAfterTradingEnd 判断今天是交易日且已收盘
func (m *MarketTime) IsAfterTradingEnd() bool {
	now := m.Now()
	if !m.calendar.IsTradingDay(now) {
		return false
	}
	return now.Format("15:04:05") > afternoonClose
}

// LastTradingDay 最近一个已有完整日线的交易日
// 交易日收盘前返回上一个交易日
func (m *MarketTime) LastTradingDay() time.Time {
	now := m.Now()
	if m.calendar.IsTradingDay(now) && now.Format("15:04:05") <= afternoonClose {
		return m.calendar.LastTradingDay(now.AddDate(0, 0, -1))
	}
	return m.calendar.LastTradingDay(now)
}

// GetNextTradingDayStart 获取下一个开盘时刻
func (m *MarketTime) GetNextTradingDayStart() time.Time {
	now := m.Now()
	day := DayOf(now)
	if !m.calendar.IsTradingDay(now) || now.Format("15:04:05") > afternoonClose {
		day = m.calendar.NextTradingDay(now)
	}
	return day.Add(9*time.Hour + 30*time.Minute)
}

// GetTradingEndTime 获取当天收盘时间
func (m *MarketTime) GetTradingEndTime() time.Time {
	return DayOf(m.Now()).Add(15 * time.Hour)
}
