package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/provider/crawler"
	"stockdata/pkg/timing"
)

// env 命令执行环境
type env struct {
	manager *provider.ProviderManager
	source  string
}

func (e *env) dataSource() (core.DataSource, error) {
	if e.source != "" {
		return e.manager.Get(e.source)
	}
	return e.manager.Active()
}

func (e *env) extended() (*crawler.Crawler, error) {
	if c := e.manager.Crawler(); c != nil {
		return c, nil
	}
	return nil, apperr.NewNotSupportedError(e.manager.ActiveName(), "extended market data")
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, e *env, args []string) (interface{}, error)
}

// usageError 参数错误，退出码为 2
type usageError struct{ msg string }

func (u usageError) Error() string { return u.msg }

func isUsage(err error) bool {
	var u usageError
	return errors.As(err, &u)
}

var commands = []command{
	{"search", "<keyword>", runSearch},
	{"quote", "<symbol>", runQuote},
	{"kline", "[-period daily] [-start YYYY-MM-DD] [-end YYYY-MM-DD] <symbol>", runKline},
	{"indicators", "[-set MA,MACD,RSI,KDJ,BOLL] [-start] [-end] <symbol>", runIndicators},
	{"financials", "[-report annual|q1|half|q3] <symbol>", runFinancials},
	{"calendar", "[-start YYYY-MM-DD] [-end YYYY-MM-DD]", runCalendar},
	{"indices", "", runIndices},
	{"plates", "[-type industry|concept|region] [-size 10]", runPlates},
	{"billboard", "[-date YYYY-MM-DD] [-size 50]", runBillboard},
	{"stock-billboard", "[-limit 10] <symbol>", runStockBillboard},
	{"smart-score", "<symbol>", runSmartScore},
	{"smart-rank", "<symbol>", runSmartRank},
	{"top-rated", "[-size 10]", runTopRated},
	{"fund-flow", "[-limit 0] <symbol>", runFundFlow},
	{"valuation", "[-indicator pe] [-window 3y] <symbol>", runValuation},
	{"ratings", "[-start] [-end] <symbol>", runRatings},
	{"main-business", "[-report-date YYYY-MM-DD] <symbol>", runMainBusiness},
	{"business-scope", "<symbol>", runBusinessScope},
	{"report-dates", "<symbol>", runReportDates},
	{"last-trading-day", "", runLastTradingDay},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// subFlags 子命令参数，位置参数个数必须等于 positional
type subFlags struct {
	*flag.FlagSet
	positional int
}

func newSubFlags(name string, positional int) *subFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return &subFlags{FlagSet: fs, positional: positional}
}

func (f *subFlags) parse(args []string) error {
	if err := f.Parse(args); err != nil {
		return usageError{err.Error()}
	}
	if f.NArg() != f.positional {
		return usageError{fmt.Sprintf("%s: expected %d argument(s), got %d", f.Name(), f.positional, f.NArg())}
	}
	return nil
}

// rangeFlags 注册 -start/-end，缺省 end 为今天，start 为 end 往前 months 个月
type rangeFlags struct {
	start, end *string
	months     int
}

func addRange(f *subFlags, months int) *rangeFlags {
	return &rangeFlags{
		start:  f.String("start", "", "起始日期"),
		end:    f.String("end", "", "结束日期"),
		months: months,
	}
}

func (r *rangeFlags) value(now time.Time) (core.DateRange, error) {
	end := timing.DayOf(now)
	if *r.end != "" {
		d, err := timing.ParseDate(*r.end)
		if err != nil {
			return core.DateRange{}, apperr.NewValidationError(err.Error())
		}
		end = d
	}
	start := end.AddDate(0, -r.months, 0)
	if *r.start != "" {
		d, err := timing.ParseDate(*r.start)
		if err != nil {
			return core.DateRange{}, apperr.NewValidationError(err.Error())
		}
		start = d
	}
	dr := core.DateRange{Start: start, End: end}
	return dr, dr.Validate()
}

func runSearch(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("search", 1)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	ds, err := e.dataSource()
	if err != nil {
		return nil, err
	}
	return ds.Search(ctx, f.Arg(0))
}

func runQuote(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("quote", 1)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	ds, err := e.dataSource()
	if err != nil {
		return nil, err
	}
	return ds.GetQuote(ctx, f.Arg(0))
}

func runKline(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("kline", 1)
	period := f.String("period", "daily", "K 线周期")
	r := addRange(f, 3)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	p, err := core.ParsePeriod(*period)
	if err != nil {
		return nil, err
	}
	dr, err := r.value(time.Now())
	if err != nil {
		return nil, err
	}
	ds, err := e.dataSource()
	if err != nil {
		return nil, err
	}
	return ds.GetKline(ctx, f.Arg(0), p, dr)
}

func runIndicators(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("indicators", 1)
	names := f.String("set", "", "指标列表，逗号分隔，缺省为全部")
	r := addRange(f, 3)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	set, err := core.ParseIndicatorSet(splitList(*names))
	if err != nil {
		return nil, err
	}
	dr, err := r.value(time.Now())
	if err != nil {
		return nil, err
	}
	ds, err := e.dataSource()
	if err != nil {
		return nil, err
	}
	return ds.GetIndicators(ctx, f.Arg(0), set, dr)
}

func runFinancials(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("financials", 1)
	report := f.String("report", "annual", "报告期类型")
	if err := f.parse(args); err != nil {
		return nil, err
	}
	rt, err := core.ParseReportType(*report)
	if err != nil {
		return nil, err
	}
	ds, err := e.dataSource()
	if err != nil {
		return nil, err
	}
	return ds.GetFinancials(ctx, f.Arg(0), rt)
}

func runCalendar(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("calendar", 0)
	r := addRange(f, 1)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	dr, err := r.value(time.Now())
	if err != nil {
		return nil, err
	}
	ds, err := e.dataSource()
	if err != nil {
		return nil, err
	}
	return ds.GetTradingCalendar(ctx, dr)
}

func runIndices(ctx context.Context, e *env, args []string) (interface{}, error) {
	if err := newSubFlags("indices", 0).parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetMarketIndices(ctx)
}

func runPlates(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("plates", 0)
	kind := f.String("type", "industry", "板块类型")
	size := f.Int("size", 0, "返回条数")
	if err := f.parse(args); err != nil {
		return nil, err
	}
	pt, err := core.ParsePlateType(*kind)
	if err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetPlateQuotes(ctx, pt, *size)
}

func runBillboard(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("billboard", 0)
	date := f.String("date", "", "交易日，缺省为最近一期")
	size := f.Int("size", 0, "返回条数")
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetBillboard(ctx, *date, *size)
}

func runStockBillboard(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("stock-billboard", 1)
	limit := f.Int("limit", 0, "最近多少次上榜，缺省 10")
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetStockBillboard(ctx, f.Arg(0), *limit)
}

func runSmartScore(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("smart-score", 1)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetSmartScore(ctx, f.Arg(0))
}

func runSmartRank(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("smart-rank", 1)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetSmartScoreRank(ctx, f.Arg(0))
}

func runTopRated(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("top-rated", 0)
	size := f.Int("size", 0, "返回条数，缺省 10")
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetTopRatedStocks(ctx, *size)
}

func runFundFlow(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("fund-flow", 1)
	limit := f.Int("limit", 0, "最近多少个交易日，0 为全部")
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetFundFlow(ctx, f.Arg(0), *limit)
}

func runValuation(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("valuation", 1)
	indicator := f.String("indicator", "", "估值指标 (pe, pb, ps, pc)")
	window := f.String("window", "", "统计区间 (1y, 3y, 5y, 10y)")
	if err := f.parse(args); err != nil {
		return nil, err
	}
	ind, err := core.ParseValuationIndicator(*indicator)
	if err != nil {
		return nil, err
	}
	w, err := core.ParseValuationWindow(*window)
	if err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetValuation(ctx, f.Arg(0), ind, w)
}

func runRatings(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("ratings", 1)
	r := addRange(f, 6)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	dr, err := r.value(time.Now())
	if err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetInstitutionalRatings(ctx, f.Arg(0), dr)
}

func runMainBusiness(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("main-business", 1)
	reportDate := f.String("report-date", "", "报告期")
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetMainBusiness(ctx, f.Arg(0), *reportDate)
}

func runBusinessScope(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("business-scope", 1)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.GetBusinessScope(ctx, f.Arg(0))
}

func runReportDates(ctx context.Context, e *env, args []string) (interface{}, error) {
	f := newSubFlags("report-dates", 1)
	if err := f.parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	dates, err := c.GetReportDates(ctx, f.Arg(0))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, timing.FormatDate(d))
	}
	return out, nil
}

func runLastTradingDay(ctx context.Context, e *env, args []string) (interface{}, error) {
	if err := newSubFlags("last-trading-day", 0).parse(args); err != nil {
		return nil, err
	}
	c, err := e.extended()
	if err != nil {
		return nil, err
	}
	return c.LastTradingDay(ctx)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
