package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stockdata/pkg/provider/core"
	"stockdata/pkg/scheduler"
	"stockdata/pkg/storage"
	"stockdata/pkg/timing"
)

const defaultLookbackDays = 5

// sourceResolver 按名称或当前活动项取数据源
type sourceResolver interface {
	Get(name string) (core.DataSource, error)
	Active() (core.DataSource, error)
}

// FetcherExecutor 拉取 K 线或行情并写入存储
type FetcherExecutor struct {
	sources sourceResolver
	sink    storage.Sink
	market  *timing.MarketTime
	log     *logrus.Entry
}

// NewFetcherExecutor 创建任务执行器
func NewFetcherExecutor(sources sourceResolver, sink storage.Sink, market *timing.MarketTime, baseLog *logrus.Entry) *FetcherExecutor {
	if market == nil {
		market = timing.DefaultMarketTime()
	}
	return &FetcherExecutor{
		sources: sources,
		sink:    sink,
		market:  market,
		log:     baseLog.WithField("executor", "fetcher"),
	}
}

// Execute 实现 scheduler.JobExecutor
//
// 单个代码失败不影响其余代码，全部处理完后汇总返回错误。
func (e *FetcherExecutor) Execute(ctx context.Context, job *scheduler.Job) error {
	log := e.log.WithFields(logrus.Fields{"job": job.Config.Name, "job_id": job.ID})

	ds, err := e.resolve(job.Config.Source)
	if err != nil {
		return err
	}
	symbols, err := stringsParam(job.Config.Params, "symbols")
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return errors.New("params.symbols is empty")
	}

	switch job.Config.Type {
	case scheduler.JobTypeKline:
		return e.exportKline(ctx, log, ds, symbols, job.Config.Params)
	case scheduler.JobTypeQuote:
		return e.exportQuotes(ctx, log, ds, symbols)
	default:
		return fmt.Errorf("unsupported job type %q", job.Config.Type)
	}
}

func (e *FetcherExecutor) resolve(name string) (core.DataSource, error) {
	if name == "" {
		return e.sources.Active()
	}
	return e.sources.Get(name)
}

// exportKline 回溯 lookback_days 个已收盘交易日
func (e *FetcherExecutor) exportKline(ctx context.Context, log *logrus.Entry, ds core.DataSource, symbols []string, params map[string]interface{}) error {
	period := core.PeriodDaily
	if s, ok := params["period"].(string); ok && s != "" {
		p, err := core.ParsePeriod(s)
		if err != nil {
			return err
		}
		period = p
	}
	lookback, err := intParam(params, "lookback_days", defaultLookbackDays)
	if err != nil {
		return err
	}

	// 回溯窗口跨越内置表之外的月份时先加载月历，失败则按周末规则计算
	now := e.market.Now()
	if err := e.market.Calendar().Ensure(ctx, now.AddDate(0, 0, -2*lookback-31), now); err != nil {
		log.WithError(err).Warn("trading calendar not loaded, lookback may include holidays")
	}
	end := e.market.LastTradingDay()
	r := core.DateRange{
		Start: e.market.Calendar().ShiftTradingDays(end, lookback-1),
		End:   end,
	}
	log = log.WithFields(logrus.Fields{"period": period, "range": r.String()})

	var errs []error
	written := 0
	for _, sym := range symbols {
		bars, err := ds.GetKline(ctx, sym, period, r)
		if err == nil {
			err = e.sink.WriteBars(ctx, bars)
		}
		if err != nil {
			log.WithError(err).WithField("symbol", sym).Warn("kline export failed")
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		written += len(bars)
	}

	log.WithFields(logrus.Fields{
		"symbols": len(symbols),
		"failed":  len(errs),
		"bars":    written,
	}).Info("kline export done")
	return joinFailures(errs, len(symbols))
}

func (e *FetcherExecutor) exportQuotes(ctx context.Context, log *logrus.Entry, ds core.DataSource, symbols []string) error {
	var errs []error
	quotes := make([]core.Quote, 0, len(symbols))
	for _, sym := range symbols {
		q, err := ds.GetQuote(ctx, sym)
		if err != nil {
			log.WithError(err).WithField("symbol", sym).Warn("quote fetch failed")
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		quotes = append(quotes, *q)
	}
	if len(quotes) > 0 {
		if err := e.sink.WriteQuotes(ctx, quotes); err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{
		"symbols": len(symbols),
		"failed":  len(errs),
		"at":      time.Now().Format(time.RFC3339),
	}).Info("quote snapshot done")
	return joinFailures(errs, len(symbols))
}

func joinFailures(errs []error, total int) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d symbols failed: %w", len(errs), total, errors.Join(errs...))
}

// stringsParam YAML 解析出的列表为 []interface{}
func stringsParam(params map[string]interface{}, key string) ([]string, error) {
	switch v := params[key].(type) {
	case nil:
		return nil, fmt.Errorf("params.%s is missing", key)
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				// 未加引号的 000001 会被 YAML 解析成整数 1
				return nil, fmt.Errorf("params.%s[%d] must be a quoted string, got %T %v", key, i, item, item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case string:
		return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }), nil
	default:
		return nil, fmt.Errorf("params.%s must be a list, got %T", key, v)
	}
}

func intParam(params map[string]interface{}, key string, def int) (int, error) {
	var n int
	switch v := params[key].(type) {
	case nil:
		return def, nil
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
		if float64(n) != v {
			return 0, fmt.Errorf("params.%s must be an integer", key)
		}
	default:
		return 0, fmt.Errorf("params.%s must be an integer, got %T", key, v)
	}
	if n <= 0 {
		return 0, fmt.Errorf("params.%s must be positive", key)
	}
	return n, nil
}

var _ scheduler.JobExecutor = (*FetcherExecutor)(nil)
