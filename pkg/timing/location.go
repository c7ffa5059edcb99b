package timing

import (
	"fmt"
	"time"
)

// Shanghai A 股所在时区，所有记录的时间都使用它
var Shanghai = loadShanghai()

func loadShanghai() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Date 返回上海时区某日零点
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Shanghai)
}

// DayOf 把时间截断到上海时区的当日零点
func DayOf(t time.Time) time.Time {
	t = t.In(Shanghai)
	return Date(t.Year(), t.Month(), t.Day())
}

// ParseDate 解析 YYYY-MM-DD 或 YYYYMMDD，也接受带时间部分的 YYYY-MM-DD HH:MM:SS
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "20060102", "2006-01-02 15:04:05", "2006/01/02"} {
		if t, err := time.ParseInLocation(layout, s, Shanghai); err == nil {
			return DayOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseDateTime 解析带分钟的 K 线时间，如 2025-06-03 10:30
func ParseDateTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, Shanghai); err == nil {
			return t, nil
		}
	}
	return ParseDate(s)
}

// FormatDate 格式化为 YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.In(Shanghai).Format("2006-01-02")
}

// Compact 格式化为 YYYYMMDD
func Compact(t time.Time) string {
	return t.In(Shanghai).Format("20060102")
}
