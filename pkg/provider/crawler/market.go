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

const billboardColumns = "SECURITY_CODE,SECUCODE,SECURITY_NAME_ABBR,TRADE_DATE,EXPLAIN,CLOSE_PRICE,CHANGE_RATE," +
	"BILLBOARD_NET_AMT,BILLBOARD_BUY_AMT,BILLBOARD_SELL_AMT,BILLBOARD_DEAL_AMT,ACCUM_AMOUNT," +
	"DEAL_NET_RATIO,DEAL_AMOUNT_RATIO,TURNOVERRATE,FREE_MARKET_CAP,EXPLANATION,D1_CLOSE_ADJCHRATE," +
	"D2_CLOSE_ADJCHRATE,D5_CLOSE_ADJCHRATE,D10_CLOSE_ADJCHRATE,SECURITY_TYPE_CODE"

// 上证指数、上证50、沪深300、深证成指、创业板指等主要指数
var defaultIndexSecids = []string{
	"1.000001", "1.000016", "1.000300", "1.000003", "1.000688",
	"0.399001", "0.399006", "0.399106", "0.399003",
}

// GetPlateQuotes 获取板块涨幅排行
func (c *Crawler) GetPlateQuotes(ctx context.Context, plateType core.PlateType, pageSize int) ([]core.PlateQuote, error) {
	if plateType < core.PlateRegion || plateType > core.PlateConcept {
		return nil, apperr.NewValidationError(fmt.Sprintf("unknown plate type %d", plateType))
	}
	if pageSize <= 0 {
		pageSize = 10
	}

	spec := httpx.Get(c.endpoints.PlateList,
		httpx.P("np", "1"),
		httpx.P("fltt", "2"),
		httpx.P("invt", "2"),
		httpx.P("cb", c.callback()),
		httpx.P("fs", fmt.Sprintf("m:90 t:%d f:!50", plateType)),
		httpx.P("fields", "f12,f13,f14,f1,f2,f4,f3,f152,f20,f8,f104,f105,f128,f140,f141,f207,f208,f209,f136,f222"),
		httpx.P("fid", "f3"),
		httpx.P("pn", "1"),
		httpx.P("pz", strconv.Itoa(pageSize)),
		httpx.P("po", "1"),
		httpx.P("ut", "fa5fd1943c7b386f172d6893dbfba10b"),
		httpx.P("dect", "1"),
		httpx.P("wbp2u", "|0|0|0|web"),
		httpx.P("_", c.millis()),
	).WithHeader("Referer", "https://quote.eastmoney.com/")

	rows, err := c.diff(ctx, spec)
	if err != nil {
		return nil, err
	}

	return core.CollectRows(c.log, "plate", rows, func(_ int, v interface{}) (core.PlateQuote, error) {
		row, err := asRow(v)
		if err != nil {
			return core.PlateQuote{}, err
		}
		code, err := core.RequireString(row, "f12")
		if err != nil {
			return core.PlateQuote{}, err
		}
		name, err := core.RequireString(row, "f14")
		if err != nil {
			return core.PlateQuote{}, err
		}
		q := core.PlateQuote{
			Code:            code,
			Name:            name,
			Price:           core.OptionalFloat(row, "f2"),
			Change:          core.OptionalFloat(row, "f4"),
			ChangePercent:   core.OptionalFloat(row, "f3"),
			TurnoverRate:    core.OptionalFloat(row, "f8"),
			MarketCap:       core.OptionalFloat(row, "f20"),
			LeaderName:      core.OptionalString(row, "f128"),
			LeaderCode:      core.OptionalString(row, "f140"),
			LeaderChangePct: core.OptionalFloat(row, "f136"),
		}
		if up := core.OptionalFloat(row, "f104"); up != nil {
			q.Advancers = int(*up)
		}
		if down := core.OptionalFloat(row, "f105"); down != nil {
			q.Decliners = int(*down)
		}
		if err := core.CheckChangePercent(q.ChangePercent); err != nil {
			return core.PlateQuote{}, err
		}
		return q, nil
	})
}

// GetFundFlow 获取个股最近 limit 个交易日的资金流向，按日期升序
//
// 行字段依次为 日期,主力净流入,小单,中单,大单,超大单,主力净占比,...,收盘价,涨跌幅。
func (c *Crawler) GetFundFlow(ctx context.Context, input string, limit int) ([]core.FundFlowBar, error) {
	if limit < 0 {
		return nil, apperr.NewValidationError("fund flow limit cannot be negative")
	}
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendEastmoney)
	if err != nil {
		return nil, err
	}
	if sym.Exchange == symbol.ExchangeUnknown {
		return nil, apperr.NewInvalidSymbolError(input, "exchange cannot be determined")
	}

	spec := httpx.Get(c.endpoints.FundFlow,
		httpx.P("lmt", strconv.Itoa(limit)),
		httpx.P("klt", "101"),
		httpx.P("fields1", "f1,f2,f3,f7"),
		httpx.P("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61,f62,f63,f64,f65"),
		httpx.P("ut", "b2884a393a59ad64002292a3e90d46a5"),
		httpx.P("secid", sym.Canonical),
		httpx.P("cb", c.callback()),
		httpx.P("_", c.millis()),
	).WithHeader("Referer", "https://data.eastmoney.com/")

	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}

	tree, _ := payload.Object()
	data, ok := tree["data"].(map[string]interface{})
	if !ok {
		return nil, apperr.NewInvalidSymbolError(input, "no fund flow data for symbol")
	}
	rows, _ := data["klines"].([]interface{})

	display := sym.As(symbol.BackendDatacenter).Canonical
	bars, err := core.CollectRows(c.log.WithField("symbol", display), "fund_flow", rows,
		func(_ int, v interface{}) (core.FundFlowBar, error) {
			line, ok := v.(string)
			if !ok {
				return core.FundFlowBar{}, fmt.Errorf("fund flow row is %T, not a string", v)
			}
			fields := strings.Split(line, ",")
			date, err := timing.ParseDate(strings.TrimSpace(fields[0]))
			if err != nil {
				return core.FundFlowBar{}, err
			}
			mainNet, err := core.FloatField(fields, 1, "main_net")
			if err != nil {
				return core.FundFlowBar{}, err
			}
			return core.FundFlowBar{
				Date:          date,
				MainNet:       mainNet,
				SmallNet:      core.OptionalFloatField(fields, 2),
				MediumNet:     core.OptionalFloatField(fields, 3),
				LargeNet:      core.OptionalFloatField(fields, 4),
				SuperLargeNet: core.OptionalFloatField(fields, 5),
				MainNetPct:    core.OptionalFloatField(fields, 6),
				Close:         core.OptionalFloatField(fields, 11),
				ChangePercent: core.OptionalFloatField(fields, 12),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// GetBillboard 获取某日龙虎榜，tradeDate 为空时取最近一期
func (c *Crawler) GetBillboard(ctx context.Context, tradeDate string, pageSize int) ([]core.BillboardEntry, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	q := reportQuery{
		Name:        "RPT_DAILYBILLBOARD_DETAILSNEW",
		Columns:     billboardColumns,
		SortColumns: "CHANGE_RATE,TRADE_DATE,SECURITY_CODE",
		SortTypes:   "-1,-1,1",
		PageSize:    pageSize,
		Source:      "WEB",
		JSONP:       true,
	}
	if tradeDate != "" {
		d, err := timing.ParseDate(tradeDate)
		if err != nil {
			return nil, apperr.NewValidationError(err.Error())
		}
		if !c.calendar.IsTradingDay(d) {
			return []core.BillboardEntry{}, nil
		}
		q.Filter = fmt.Sprintf(`(TRADE_DATE='%s')`, timing.FormatDate(d))
	}

	rows, err := c.datacenter(ctx, c.reportSpec(c.endpoints.DatacenterWeb, q).
		WithHeader("Referer", "https://data.eastmoney.com/"))
	if err != nil {
		return nil, err
	}

	return core.CollectRows(c.log, "billboard", rows, billboardEntry)
}

// GetStockBillboard 获取个股历次上榜记录，按日期降序
func (c *Crawler) GetStockBillboard(ctx context.Context, input string, limit int) ([]core.BillboardEntry, error) {
	if limit < 0 {
		return nil, apperr.NewValidationError("billboard limit cannot be negative")
	}
	if limit == 0 {
		limit = 10
	}
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendDatacenter)
	if err != nil {
		return nil, err
	}

	rows, err := c.datacenter(ctx, c.reportSpec(c.endpoints.DatacenterWeb, reportQuery{
		Name:        "RPT_BILLBOARD_PERFORMANCEHIS",
		Columns:     "ALL",
		Filter:      fmt.Sprintf(`(SECURITY_CODE="%s")`, sym.Code),
		SortColumns: "TRADE_DATE",
		SortTypes:   "-1",
		PageSize:    limit,
		Source:      "WEB",
		JSONP:       true,
	}).WithHeader("Referer", "https://data.eastmoney.com/"))
	if err != nil {
		return nil, err
	}

	return core.CollectRows(c.log.WithField("symbol", sym.Canonical), "stock_billboard", rows, billboardEntry)
}

func billboardEntry(_ int, v interface{}) (core.BillboardEntry, error) {
	row, err := asRow(v)
	if err != nil {
		return core.BillboardEntry{}, err
	}
	code, err := core.RequireString(row, "SECURITY_CODE")
	if err != nil {
		return core.BillboardEntry{}, err
	}
	raw, err := core.RequireString(row, "TRADE_DATE")
	if err != nil {
		return core.BillboardEntry{}, err
	}
	date, err := timing.ParseDate(raw)
	if err != nil {
		return core.BillboardEntry{}, err
	}
	return core.BillboardEntry{
		Symbol:        core.OptionalString(row, "SECUCODE"),
		Code:          code,
		Name:          core.OptionalString(row, "SECURITY_NAME_ABBR"),
		TradeDate:     date,
		Reason:        core.OptionalString(row, "EXPLANATION"),
		Close:         core.OptionalFloat(row, "CLOSE_PRICE"),
		ChangePercent: core.OptionalFloat(row, "CHANGE_RATE"),
		NetBuy:        core.OptionalFloat(row, "BILLBOARD_NET_AMT"),
		Buy:           core.OptionalFloat(row, "BILLBOARD_BUY_AMT"),
		Sell:          core.OptionalFloat(row, "BILLBOARD_SELL_AMT"),
		Deal:          core.OptionalFloat(row, "BILLBOARD_DEAL_AMT"),
		TurnoverRate:  core.OptionalFloat(row, "TURNOVERRATE"),
		After1DayPct:  core.OptionalFloat(row, "D1_CLOSE_ADJCHRATE"),
		After5DayPct:  core.OptionalFloat(row, "D5_CLOSE_ADJCHRATE"),
		After10DayPct: core.OptionalFloat(row, "D10_CLOSE_ADJCHRATE"),
	}, nil
}

// GetMarketIndices 获取主要指数的实时行情
func (c *Crawler) GetMarketIndices(ctx context.Context) ([]core.Quote, error) {
	spec := httpx.Get(c.endpoints.MarketIndex,
		httpx.P("fltt", "2"),
		httpx.P("ut", "13697a1cc677c8bfa9a496437bfef419"),
		httpx.P("fields", "f1,f2,f3,f4,f12,f13,f14"),
		httpx.P("secids", strings.Join(defaultIndexSecids, ",")),
		httpx.P("_", c.millis()),
	).WithHeader("Referer", "https://eastmoney.com/")

	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}
	if rc := payload.Get("rc").Int(); rc != 0 {
		return nil, apperr.NewUpstreamMessageError(fmt.Sprintf("market index rc=%d", rc))
	}
	rows := diffRows(payload)
	now := c.now().In(timing.Shanghai)

	return core.CollectRows(c.log, "index", rows, func(_ int, v interface{}) (core.Quote, error) {
		row, err := asRow(v)
		if err != nil {
			return core.Quote{}, err
		}
		code, err := core.RequireString(row, "f12")
		if err != nil {
			return core.Quote{}, err
		}
		price, err := core.RequireFloat(row, "f2")
		if err != nil {
			return core.Quote{}, err
		}
		sym, err := symbol.Normalize(core.OptionalString(row, "f13")+"."+code, symbol.BackendDatacenter)
		if err != nil {
			return core.Quote{}, err
		}
		q := core.Quote{
			Symbol:        sym.Canonical,
			Name:          core.OptionalString(row, "f14"),
			Price:         price,
			Change:        core.OptionalFloat(row, "f4"),
			ChangePercent: core.OptionalFloat(row, "f3"),
			Timestamp:     now,
			Source:        Name,
		}
		if err := core.ValidateQuote(&q); err != nil {
			return core.Quote{}, err
		}
		return q, nil
	})
}

// diff 请求东财 push2 列表接口，返回 data.diff 中的行
func (c *Crawler) diff(ctx context.Context, spec httpx.RequestSpec) ([]interface{}, error) {
	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}
	return diffRows(payload), nil
}

// diffRows 兼容 diff 为数组或以序号为键的对象两种形式
func diffRows(payload *parser.Payload) []interface{} {
	tree, _ := payload.Object()
	data, _ := tree["data"].(map[string]interface{})
	switch d := data["diff"].(type) {
	case []interface{}:
		return d
	case map[string]interface{}:
		rows := make([]interface{}, 0, len(d))
		for i := 0; i < len(d); i++ {
			if row, ok := d[strconv.Itoa(i)]; ok {
				rows = append(rows, row)
			}
		}
		return rows
	}
	return nil
}
