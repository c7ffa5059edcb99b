package core

import (
	"context"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

// Searcher 提供证券搜索能力
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// ResolveSymbol 规范化代码；名称类输入通过搜索取第一个可识别的结果
func ResolveSymbol(ctx context.Context, s Searcher, input string, backend symbol.Backend) (symbol.Symbol, error) {
	if !symbol.LooksLikeName(input) {
		return symbol.Normalize(input, backend)
	}

	results, err := s.Search(ctx, input)
	if err != nil {
		return symbol.Symbol{}, err
	}
	for _, r := range results {
		candidate := r.Symbol
		if candidate == "" {
			candidate = r.Code
		}
		sym, err := symbol.Normalize(candidate, backend)
		if err == nil {
			sym.Raw = input
			return sym, nil
		}
	}
	return symbol.Symbol{}, apperr.NewInvalidSymbolError(input, "no security matches the name")
}

// EmptyRange 区间内没有交易日
func EmptyRange(cal *timing.Calendar, r DateRange) bool {
	return !cal.HasTradingDay(r.Start, r.End)
}

// FilterBars 只保留区间内的 K 线
func FilterBars(bars []KlineBar, r DateRange) []KlineBar {
	out := bars[:0:0]
	for _, b := range bars {
		if r.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return out
}
