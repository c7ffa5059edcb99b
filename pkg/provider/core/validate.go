package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	apperr "stockdata/pkg/error"
)

// 涨跌幅合理范围（百分比）
const (
	MinChangePercent = -100
	MaxChangePercent = 1000
)

// CollectRows 逐行映射上游数据
//
// 无法映射的行记录一条警告后丢弃；所有行都失败时返回 ValidationError。
// 输入为空时返回空切片。
func CollectRows[R any, T any](log *logrus.Entry, what string, rows []R, mapRow func(i int, row R) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	var firstErr error

	for i, row := range rows {
		v, err := mapRow(i, row)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.WithError(err).WithFields(logrus.Fields{
				"record": what,
				"row":    i,
			}).Warn("dropping invalid row")
			continue
		}
		out = append(out, v)
	}

	if len(out) == 0 && firstErr != nil {
		return nil, apperr.NewValidationError(fmt.Sprintf("all %d %s rows failed validation: %v", len(rows), what, firstErr))
	}
	return out, nil
}

// Number 把解析树中的值转为 float64
// 支持 json.Number、数字和数字字符串；空串、"-" 和 null 视为缺失
func Number(v interface{}) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		return parseFloat(string(x))
	case float64:
		return checkFinite(x)
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case string:
		return parseFloat(x)
	default:
		return 0, false, fmt.Errorf("unexpected %T", v)
	}
}

func parseFloat(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "--" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("not a number: %q", s)
	}
	return checkFinite(f)
}

func checkFinite(f float64) (float64, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("non-finite number %v", f)
	}
	return f, true, nil
}

// RequireFloat 读取必填数值字段
func RequireFloat(row map[string]interface{}, key string) (float64, error) {
	f, ok, err := Number(row[key])
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	if !ok {
		return 0, fmt.Errorf("field %s is missing", key)
	}
	return f, nil
}

// OptionalFloat 读取可选数值字段，缺失或非法时返回 nil
func OptionalFloat(row map[string]interface{}, key string) *float64 {
	f, ok, err := Number(row[key])
	if err != nil || !ok {
		return nil
	}
	return &f
}

// RequireString 读取必填字符串字段
func RequireString(row map[string]interface{}, key string) (string, error) {
	s := OptionalString(row, key)
	if s == "" {
		return "", fmt.Errorf("field %s is missing", key)
	}
	return s, nil
}

// OptionalString 读取字符串字段，数字按原文返回
func OptionalString(row map[string]interface{}, key string) string {
	switch x := row[key].(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return string(x)
	default:
		return ""
	}
}

// FloatField 解析 CSV 式行情中的必填数值
func FloatField(fields []string, i int, name string) (float64, error) {
	if i >= len(fields) {
		return 0, fmt.Errorf("field %s is missing", name)
	}
	f, ok, err := parseFloat(fields[i])
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	if !ok {
		return 0, fmt.Errorf("field %s is missing", name)
	}
	return f, nil
}

// OptionalFloatField 解析 CSV 式行情中的可选数值
func OptionalFloatField(fields []string, i int) *float64 {
	if i >= len(fields) {
		return nil
	}
	f, ok, err := parseFloat(fields[i])
	if err != nil || !ok {
		return nil
	}
	return &f
}

// Scale 可选值乘以系数，用于手与股、万元与元的换算
func Scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v * factor
	return &out
}

// CheckPrice 价格必须非负
func CheckPrice(name string, v float64) error {
	if v < 0 {
		return fmt.Errorf("%s is negative: %v", name, v)
	}
	return nil
}

// CheckChangePercent 涨跌幅必须在合理范围内
func CheckChangePercent(v *float64) error {
	if v != nil && (*v < MinChangePercent || *v > MaxChangePercent) {
		return fmt.Errorf("change percent out of range: %v", *v)
	}
	return nil
}

// ValidateBar 检查 K 线的价格、成交量与涨跌幅
func ValidateBar(bar KlineBar) error {
	if bar.Date.IsZero() {
		return fmt.Errorf("bar date is missing")
	}
	for _, p := range []struct {
		name string
		v    float64
	}{{"open", bar.Open}, {"close", bar.Close}, {"high", bar.High}, {"low", bar.Low}} {
		if err := CheckPrice(p.name, p.v); err != nil {
			return err
		}
	}
	if bar.High < bar.Low {
		return fmt.Errorf("high %v is below low %v", bar.High, bar.Low)
	}
	if bar.Volume < 0 {
		return fmt.Errorf("volume is negative: %v", bar.Volume)
	}
	return CheckChangePercent(bar.ChangePercent)
}

// ValidateQuote 检查实时行情
func ValidateQuote(q *Quote) error {
	if q.Timestamp.IsZero() {
		return apperr.NewValidationError("quote timestamp is missing")
	}
	if err := CheckPrice("price", q.Price); err != nil {
		return apperr.NewValidationError(err.Error())
	}
	if q.High != nil && q.Low != nil && *q.High < *q.Low {
		return apperr.NewValidationError(fmt.Sprintf("high %v is below low %v", *q.High, *q.Low))
	}
	if err := CheckChangePercent(q.ChangePercent); err != nil {
		return apperr.NewValidationError(err.Error())
	}
	return nil
}
