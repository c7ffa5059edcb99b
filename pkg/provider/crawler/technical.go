package crawler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/httpx"
	"stockdata/pkg/parser"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

// 东财 K 线周期参数 klt
var kltOf = map[core.Period]int{
	core.PeriodMin1:    1,
	core.PeriodMin5:    5,
	core.PeriodMin15:   15,
	core.PeriodMin30:   30,
	core.PeriodMin60:   60,
	core.PeriodDaily:   101,
	core.PeriodWeekly:  102,
	core.PeriodMonthly: 103,
}

// 东财成交量单位为手
const sharesPerLot = 100

// GetKline 从东财获取区间内的 K 线，按日期升序
//
// 行字段依次为 日期,开盘,收盘,最高,最低,成交量,成交额,振幅,涨跌幅,涨跌额,换手率。
func (c *Crawler) GetKline(ctx context.Context, input string, period core.Period, r core.DateRange) ([]core.KlineBar, error) {
	klt, ok := kltOf[period]
	if !ok {
		return nil, apperr.NewValidationError(fmt.Sprintf("unsupported kline period %q", period))
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendEastmoney)
	if err != nil {
		return nil, err
	}
	if sym.Exchange == symbol.ExchangeUnknown {
		return nil, apperr.NewInvalidSymbolError(input, "exchange cannot be determined")
	}

	if core.EmptyRange(c.calendar, r) {
		return []core.KlineBar{}, nil
	}

	spec := httpx.Get(c.endpoints.Kline,
		httpx.P("fields1", "f1,f2,f3,f4,f5,f6,f7,f8,f9,f10,f11,f12,f13"),
		httpx.P("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"),
		httpx.P("beg", timing.Compact(r.Start)),
		httpx.P("end", timing.Compact(r.End)),
		httpx.P("ut", "fa5fd1943c7b386f172d6893dbfba10b"),
		httpx.P("rtntype", "6"),
		httpx.P("secid", sym.Canonical),
		httpx.P("klt", strconv.Itoa(klt)),
		httpx.P("fqt", strconv.Itoa(c.adjust)),
	).WithHeader("Referer", "https://quote.eastmoney.com/")

	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}

	tree, _ := payload.Object()
	data, ok := tree["data"].(map[string]interface{})
	if !ok {
		return nil, apperr.NewInvalidSymbolError(input, "no kline data for symbol")
	}
	rows, _ := data["klines"].([]interface{})

	display := sym.As(symbol.BackendDatacenter).Canonical
	log := c.log.WithField("symbol", display)

	bars, err := core.CollectRows(log, "kline", rows, func(_ int, v interface{}) (core.KlineBar, error) {
		line, ok := v.(string)
		if !ok {
			return core.KlineBar{}, fmt.Errorf("kline row is %T, not a string", v)
		}
		return parseKlineLine(line, display, period)
	})
	if err != nil {
		return nil, err
	}

	core.SortBars(bars)
	return core.FilterBars(bars, r), nil
}

func parseKlineLine(line, display string, period core.Period) (core.KlineBar, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return core.KlineBar{}, fmt.Errorf("kline row has %d fields", len(fields))
	}

	parse := timing.ParseDate
	if period.Intraday() {
		parse = timing.ParseDateTime
	}
	date, err := parse(strings.TrimSpace(fields[0]))
	if err != nil {
		return core.KlineBar{}, err
	}

	bar := core.KlineBar{Symbol: display, Period: period, Date: date}
	for _, f := range []struct {
		i    int
		name string
		dst  *float64
	}{
		{1, "open", &bar.Open},
		{2, "close", &bar.Close},
		{3, "high", &bar.High},
		{4, "low", &bar.Low},
		{5, "volume", &bar.Volume},
	} {
		if *f.dst, err = core.FloatField(fields, f.i, f.name); err != nil {
			return core.KlineBar{}, err
		}
	}
	bar.Volume *= sharesPerLot

	bar.Amount = core.OptionalFloatField(fields, 6)
	bar.Amplitude = core.OptionalFloatField(fields, 7)
	bar.ChangePercent = core.OptionalFloatField(fields, 8)
	bar.ChangeAmount = core.OptionalFloatField(fields, 9)
	bar.TurnoverRate = core.OptionalFloatField(fields, 10)

	if err := core.ValidateBar(bar); err != nil {
		return core.KlineBar{}, err
	}
	return bar, nil
}

// GetIndicators 基于日线在本地计算技术指标
func (c *Crawler) GetIndicators(ctx context.Context, input string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if len(set) == 0 {
		set = core.AllIndicators
	}
	if core.EmptyRange(c.calendar, r) {
		return []core.IndicatorPoint{}, nil
	}

	bars, err := c.GetKline(ctx, input, core.PeriodDaily, core.WarmupRange(c.calendar, r, set))
	if err != nil {
		return nil, err
	}
	return core.ComputeIndicators(bars, set, r), nil
}
