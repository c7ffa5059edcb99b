package sina

import (
	"context"
	"fmt"
	"strconv"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/httpx"
	"stockdata/pkg/parser"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

// 新浪 K 线周期参数 scale，单位为分钟
var scaleOf = map[core.Period]int{
	core.PeriodMin5:    5,
	core.PeriodMin15:   15,
	core.PeriodMin30:   30,
	core.PeriodMin60:   60,
	core.PeriodDaily:   240,
	core.PeriodWeekly:  1680,
	core.PeriodMonthly: 7200,
}

// GetKline 获取区间内的 K 线，按日期升序
//
// 新浪接口只支持返回最近 datalen 根，按区间起点到今天的交易日数估算后再截取。
func (p *Provider) GetKline(ctx context.Context, input string, period core.Period, r core.DateRange) ([]core.KlineBar, error) {
	scale, ok := scaleOf[period]
	if !ok {
		if period.Intraday() {
			return nil, apperr.NewNotSupportedError(Name, fmt.Sprintf("kline period %s", period))
		}
		return nil, apperr.NewValidationError(fmt.Sprintf("unsupported kline period %q", period))
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	sym, err := core.ResolveSymbol(ctx, p, input, symbol.BackendSina)
	if err != nil {
		return nil, err
	}
	switch sym.Exchange {
	case symbol.ExchangeUnknown:
		return nil, apperr.NewInvalidSymbolError(input, "exchange cannot be determined")
	case symbol.ExchangeHK:
		return nil, apperr.NewNotSupportedError(Name, "hong kong kline")
	}

	if core.EmptyRange(p.calendar, r) {
		return []core.KlineBar{}, nil
	}

	callback := fmt.Sprintf("var%%20_%s_%d_%d=", sym.Canonical, scale, p.now().UnixMilli())
	spec := httpx.Get(p.endpoints.Kline+"/"+callback+"/CN_MarketDataService.getKLineData",
		httpx.P("symbol", sym.Canonical),
		httpx.P("scale", strconv.Itoa(scale)),
		httpx.P("ma", "no"),
		httpx.P("datalen", strconv.Itoa(p.dataLen(r, period, scale))),
	)

	raw, err := p.execute(ctx, spec)
	if err != nil {
		return nil, err
	}
	payload, err := parser.Parse(raw, parser.ShapeAny)
	if err != nil {
		return nil, err
	}
	rows, ok := payload.Array()
	if !ok {
		// 代码不存在时返回 null
		return nil, apperr.NewInvalidSymbolError(input, "no kline data for symbol")
	}

	display := sym.As(symbol.BackendDatacenter).Canonical
	bars, err := core.CollectRows(p.log.WithField("symbol", display), "kline", rows,
		func(_ int, v interface{}) (core.KlineBar, error) {
			row, ok := v.(map[string]interface{})
			if !ok {
				return core.KlineBar{}, fmt.Errorf("kline row is %T, not an object", v)
			}
			return parseKlineRow(row, display, period)
		})
	if err != nil {
		return nil, err
	}

	core.SortBars(bars)
	return core.FilterBars(bars, r), nil
}

// dataLen 估算覆盖区间起点所需的 K 线根数
func (p *Provider) dataLen(r core.DateRange, period core.Period, scale int) int {
	end := timing.DayOf(p.now())
	if r.End.After(end) {
		end = r.End
	}
	days := len(p.calendar.TradingDays(r.Start, end))

	switch period {
	case core.PeriodWeekly:
		return days/5 + 2
	case core.PeriodMonthly:
		return days/20 + 2
	case core.PeriodDaily:
		return days + 2
	default:
		return days*(240/scale) + 2
	}
}

// parseKlineRow 行字段 day,open,high,low,close,volume 均为字符串
func parseKlineRow(row map[string]interface{}, display string, period core.Period) (core.KlineBar, error) {
	day, err := core.RequireString(row, "day")
	if err != nil {
		return core.KlineBar{}, err
	}
	parse := timing.ParseDate
	if period.Intraday() {
		parse = timing.ParseDateTime
	}
	date, err := parse(day)
	if err != nil {
		return core.KlineBar{}, err
	}

	bar := core.KlineBar{Symbol: display, Period: period, Date: date}
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"open", &bar.Open},
		{"close", &bar.Close},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"volume", &bar.Volume},
	} {
		if *f.dst, err = core.RequireFloat(row, f.key); err != nil {
			return core.KlineBar{}, err
		}
	}
	bar.Amount = core.OptionalFloat(row, "amount")

	if err := core.ValidateBar(bar); err != nil {
		return core.KlineBar{}, err
	}
	return bar, nil
}

// GetIndicators 基于日线在本地计算技术指标
func (p *Provider) GetIndicators(ctx context.Context, input string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if len(set) == 0 {
		set = core.AllIndicators
	}
	if core.EmptyRange(p.calendar, r) {
		return []core.IndicatorPoint{}, nil
	}

	bars, err := p.GetKline(ctx, input, core.PeriodDaily, core.WarmupRange(p.calendar, r, set))
	if err != nil {
		return nil, err
	}
	return core.ComputeIndicators(bars, set, r), nil
}
