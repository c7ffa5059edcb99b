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

// GetQuote 从雪球获取实时行情
func (c *Crawler) GetQuote(ctx context.Context, input string) (*core.Quote, error) {
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendXueqiu)
	if err != nil {
		return nil, err
	}

	spec := httpx.Get(c.endpoints.XueqiuQuote,
		httpx.P("symbol", sym.Canonical),
		httpx.P("extend", "detail"),
	).WithHeader("Referer", "https://xueqiu.com/")
	if c.xueqiuToken != "" {
		spec = spec.WithHeader("Cookie", "xq_a_token="+c.xueqiuToken)
	}

	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}

	if code := payload.Get("error_code").Int(); code != 0 {
		return nil, apperr.NewUpstreamMessageError(fmt.Sprintf("xueqiu error %d: %s",
			code, payload.Get("error_description").String())).WithContext("upstream_code", code)
	}

	tree, _ := payload.Object()
	data, _ := tree["data"].(map[string]interface{})
	row, ok := data["quote"].(map[string]interface{})
	if !ok {
		return nil, apperr.NewInvalidSymbolError(input, "no quote returned")
	}

	q, err := mapXueqiuQuote(row, sym)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateQuote(q); err != nil {
		return nil, err
	}
	return q, nil
}

func mapXueqiuQuote(row map[string]interface{}, sym symbol.Symbol) (*core.Quote, error) {
	price, err := core.RequireFloat(row, "current")
	if err != nil {
		return nil, apperr.NewValidationError(err.Error())
	}

	q := &core.Quote{
		Symbol:        sym.As(symbol.BackendDatacenter).Canonical,
		Name:          core.OptionalString(row, "name"),
		Price:         price,
		Change:        core.OptionalFloat(row, "chg"),
		ChangePercent: core.OptionalFloat(row, "percent"),
		Open:          core.OptionalFloat(row, "open"),
		High:          core.OptionalFloat(row, "high"),
		Low:           core.OptionalFloat(row, "low"),
		PrevClose:     core.OptionalFloat(row, "last_close"),
		Volume:        core.OptionalFloat(row, "volume"),
		Amount:        core.OptionalFloat(row, "amount"),
		TurnoverRate:  core.OptionalFloat(row, "turnover_rate"),
		PE:            core.OptionalFloat(row, "pe_ttm"),
		PB:            core.OptionalFloat(row, "pb"),
		MarketCap:     core.OptionalFloat(row, "market_capital"),
		Source:        Name,
	}
	if ms := core.OptionalFloat(row, "timestamp"); ms != nil {
		q.Timestamp = time.UnixMilli(int64(*ms)).In(timing.Shanghai)
	}
	return q, nil
}
