package crawler

import (
	"context"
	"fmt"
	"time"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/httpx"
	"stockdata/pkg/parser"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

// GetValuation 获取估值走势与历史分位
//
// 走势按交易日升序，最新值取最后一行；分位数据缺失时只返回走势。
func (c *Crawler) GetValuation(ctx context.Context, input string, indicator core.ValuationIndicator, window core.ValuationWindow) (*core.ValuationSnapshot, error) {
	if indicator < core.ValuationPE || indicator > core.ValuationPC {
		return nil, apperr.NewValidationError(fmt.Sprintf("unknown valuation indicator %d", indicator))
	}
	if window < core.Window1Y || window > core.Window10Y {
		return nil, apperr.NewValidationError(fmt.Sprintf("unknown valuation window %d", window))
	}
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendDatacenter)
	if err != nil {
		return nil, err
	}

	rows, err := c.datacenter(ctx, c.reportSpec(c.endpoints.Datacenter, reportQuery{
		Name:        "RPT_CUSTOM_DMSK_TREND",
		Columns:     "ALL",
		Filter:      fmt.Sprintf(`(SECUCODE="%s")(INDICATORTYPE=%d)(DATETYPE=%d)`, sym.Canonical, indicator, window),
		SortColumns: "TRADE_DATE",
		SortTypes:   "1",
	}))
	if err != nil {
		return nil, err
	}

	log := c.log.WithField("symbol", sym.Canonical)
	history, err := core.CollectRows(log, "valuation", rows, func(_ int, v interface{}) (core.ValuationPoint, error) {
		row, err := asRow(v)
		if err != nil {
			return core.ValuationPoint{}, err
		}
		raw, err := core.RequireString(row, "TRADE_DATE")
		if err != nil {
			return core.ValuationPoint{}, err
		}
		date, err := timing.ParseDate(raw)
		if err != nil {
			return core.ValuationPoint{}, err
		}
		value, err := core.RequireFloat(row, "INDICATOR_VALUE")
		if err != nil {
			return core.ValuationPoint{}, err
		}
		return core.ValuationPoint{Date: date, Value: value}, nil
	})
	if err != nil {
		return nil, err
	}

	snap := &core.ValuationSnapshot{
		Symbol:    sym.Canonical,
		Indicator: indicator,
		Window:    window,
		History:   history,
	}
	if n := len(history); n > 0 {
		latest := history[n-1]
		snap.Latest = &latest
	}

	percentiles, err := c.datacenter(ctx, c.reportSpec(c.endpoints.Datacenter, reportQuery{
		Name:    "RPT_STOCKVALUATIONTANTILE",
		Columns: "SECUCODE,STATISTICS_CYCLE,INDEX_TYPE,PERCENTILE_THIRTY,PERCENTILE_FIFTY,PERCENTILE_SEVENTY",
		Filter:  fmt.Sprintf(`(SECUCODE="%s")(INDEX_TYPE="%d")(STATISTICS_CYCLE="%d")`, sym.Canonical, indicator, window),
	}))
	if err != nil {
		log.WithError(err).Warn("valuation percentiles unavailable")
		return snap, nil
	}
	if len(percentiles) > 0 {
		if row, err := asRow(percentiles[0]); err == nil {
			snap.Percentile30 = core.OptionalFloat(row, "PERCENTILE_THIRTY")
			snap.Percentile50 = core.OptionalFloat(row, "PERCENTILE_FIFTY")
			snap.Percentile70 = core.OptionalFloat(row, "PERCENTILE_SEVENTY")
		}
	}
	return snap, nil
}

// GetInstitutionalRatings 获取区间内发布的机构研报评级
func (c *Crawler) GetInstitutionalRatings(ctx context.Context, input string, r core.DateRange) ([]core.InstitutionalRating, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendDatacenter)
	if err != nil {
		return nil, err
	}

	spec := httpx.Get(c.endpoints.Report,
		httpx.P("cb", c.callback()),
		httpx.P("pageNo", "1"),
		httpx.P("pageSize", "50"),
		httpx.P("code", sym.Code),
		httpx.P("industryCode", ""),
		httpx.P("industry", ""),
		httpx.P("rating", ""),
		httpx.P("ratingchange", ""),
		httpx.P("beginTime", timing.FormatDate(r.Start)),
		httpx.P("endTime", timing.FormatDate(r.End)),
		httpx.P("fields", ""),
		httpx.P("qType", "0"),
		httpx.P("_", c.millis()),
	).WithHeader("Referer", "https://data.eastmoney.com/")

	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}

	tree, _ := payload.Object()
	rows, _ := tree["data"].([]interface{})

	return core.CollectRows(c.log.WithField("symbol", sym.Canonical), "rating", rows,
		func(_ int, v interface{}) (core.InstitutionalRating, error) {
			row, err := asRow(v)
			if err != nil {
				return core.InstitutionalRating{}, err
			}
			title, err := core.RequireString(row, "title")
			if err != nil {
				return core.InstitutionalRating{}, err
			}
			raw, err := core.RequireString(row, "publishDate")
			if err != nil {
				return core.InstitutionalRating{}, err
			}
			published, err := parsePublishDate(raw)
			if err != nil {
				return core.InstitutionalRating{}, err
			}
			return core.InstitutionalRating{
				Title:       title,
				Org:         core.OptionalString(row, "orgSName"),
				Rating:      core.OptionalString(row, "emRatingName"),
				Researcher:  core.OptionalString(row, "researcher"),
				Industry:    core.OptionalString(row, "indvInduName"),
				PublishDate: published,
				EPSThisYear: core.OptionalFloat(row, "predictThisYearEps"),
				PEThisYear:  core.OptionalFloat(row, "predictThisYearPe"),
				EPSNextYear: core.OptionalFloat(row, "predictNextYearEps"),
				PENextYear:  core.OptionalFloat(row, "predictNextYearPe"),
			}, nil
		})
}

// parsePublishDate 研报日期形如 2025-06-03 00:00:00.000
func parsePublishDate(raw string) (time.Time, error) {
	if len(raw) >= 10 {
		raw = raw[:10]
	}
	return timing.ParseDate(raw)
}
