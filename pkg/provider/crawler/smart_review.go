package crawler

import (
	"context"
	"fmt"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

// 智能评分报表同时带有评分、概率与行业/全市场排名
const smartScoreReport = "RPT_CUSTOM_STOCK_PK"

const maxTopRated = 100

func (c *Crawler) smartScoreRows(ctx context.Context, q reportQuery) ([]interface{}, error) {
	q.Name = smartScoreReport
	q.Columns = "ALL"
	q.Source = "WEB"
	q.JSONP = true
	return c.datacenter(ctx, c.reportSpec(c.endpoints.DatacenterWeb, q).
		WithHeader("Referer", "https://data.eastmoney.com/"))
}

// smartScoreRow 取单只股票的评分行，没有评分时返回 InvalidSymbolError
func (c *Crawler) smartScoreRow(ctx context.Context, input string) (map[string]interface{}, symbol.Symbol, error) {
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendDatacenter)
	if err != nil {
		return nil, symbol.Symbol{}, err
	}
	rows, err := c.smartScoreRows(ctx, reportQuery{
		Filter:   fmt.Sprintf(`(SECURITY_CODE="%s")`, sym.Code),
		PageSize: 1,
	})
	if err != nil {
		return nil, sym, err
	}
	if len(rows) == 0 {
		return nil, sym, apperr.NewInvalidSymbolError(input, "no smart score")
	}
	row, err := asRow(rows[0])
	if err != nil {
		return nil, sym, apperr.NewParseError(err.Error(), nil)
	}
	return row, sym, nil
}

// GetSmartScore 获取个股智能评分与次日、五日涨跌统计
func (c *Crawler) GetSmartScore(ctx context.Context, input string) (*core.SmartScore, error) {
	row, sym, err := c.smartScoreRow(ctx, input)
	if err != nil {
		return nil, err
	}
	s := &core.SmartScore{
		Symbol:           core.OptionalString(row, "SECUCODE"),
		Code:             sym.Code,
		Name:             core.OptionalString(row, "SECURITY_NAME_ABBR"),
		Score:            core.OptionalFloat(row, "TOTAL_SCORE"),
		ScoreChange:      core.OptionalFloat(row, "TOTAL_SCORE_CHANGE"),
		Rise1DayProb:     core.OptionalFloat(row, "RISE_1_PROBABILITY"),
		Avg1DayChangePct: core.OptionalFloat(row, "AVERAGE_1_INCREASE"),
		Rise5DayProb:     core.OptionalFloat(row, "RISE_5_PROBABILITY"),
		Avg5DayChangePct: core.OptionalFloat(row, "AVERAGE_5_INCREASE"),
		Comment:          core.OptionalString(row, "WORDS_EXPLAIN"),
		DiagnosedAt:      core.OptionalString(row, "DIAGNOSE_TIME"),
	}
	if s.Symbol == "" {
		s.Symbol = sym.Canonical
	}
	return s, nil
}

// GetSmartScoreRank 获取个股智能评分在所属行业与全市场中的排名
func (c *Crawler) GetSmartScoreRank(ctx context.Context, input string) (*core.SmartScoreRank, error) {
	row, sym, err := c.smartScoreRow(ctx, input)
	if err != nil {
		return nil, err
	}
	r, err := smartScoreRank(0, row)
	if err != nil {
		return nil, apperr.NewParseError(err.Error(), nil)
	}
	if r.Symbol == "" {
		r.Symbol = sym.Canonical
	}
	return &r, nil
}

// GetTopRatedStocks 按全市场排名返回评分最高的 n 只股票
func (c *Crawler) GetTopRatedStocks(ctx context.Context, n int) ([]core.SmartScoreRank, error) {
	if n < 0 || n > maxTopRated {
		return nil, apperr.NewValidationError(fmt.Sprintf("top rated size must be within [0, %d]", maxTopRated))
	}
	if n == 0 {
		n = 10
	}
	rows, err := c.smartScoreRows(ctx, reportQuery{
		SortColumns: "MARKET_RANK",
		SortTypes:   "1",
		PageSize:    n,
	})
	if err != nil {
		return nil, err
	}
	return core.CollectRows(c.log, "smart_score_rank", rows, smartScoreRank)
}

func smartScoreRank(_ int, v interface{}) (core.SmartScoreRank, error) {
	row, err := asRow(v)
	if err != nil {
		return core.SmartScoreRank{}, err
	}
	code, err := core.RequireString(row, "SECURITY_CODE")
	if err != nil {
		return core.SmartScoreRank{}, err
	}
	r := core.SmartScoreRank{
		Symbol:            core.OptionalString(row, "SECUCODE"),
		Code:              code,
		Name:              core.OptionalString(row, "SECURITY_NAME_ABBR"),
		BoardCode:         core.OptionalString(row, "BOARD_CODE"),
		BoardName:         core.OptionalString(row, "BOARD_NAME"),
		Score:             core.OptionalFloat(row, "COMPRE_SCORE"),
		ChangePercent:     core.OptionalFloat(row, "CHANGE_RATE"),
		IndustryRank:      intOf(row, "INDUSTRY_RANK"),
		IndustryHigh:      core.OptionalFloat(row, "INDUSTRY_SCORE_HIGH"),
		IndustryAvg:       core.OptionalFloat(row, "INDUSTRY_SCORE_AVG"),
		IndustryLow:       core.OptionalFloat(row, "INDUSTRY_SCORE_LOW"),
		IndustryStocks:    intOf(row, "INDUSTRY_STOCK_NUM"),
		IndustryEvaluated: intOf(row, "EVALUATE_INDUSTRY_NUM"),
		MarketRank:        intOf(row, "MARKET_RANK"),
		BeatPercent:       core.OptionalFloat(row, "STOCK_RANK_RATIO"),
		MarketHigh:        core.OptionalFloat(row, "MARKET_SCORE_HIGH"),
		MarketAvg:         core.OptionalFloat(row, "MARKET_SCORE_AVG"),
		MarketLow:         core.OptionalFloat(row, "MARKET_SCORE_LOW"),
		MarketStocks:      intOf(row, "MARKET_STOCK_NUM"),
		MarketEvaluated:   intOf(row, "EVALUATE_MARKET_NUM"),
	}
	if raw := core.OptionalString(row, "TRADE_DATE"); raw != "" {
		if r.TradeDate, err = timing.ParseDate(raw); err != nil {
			return core.SmartScoreRank{}, err
		}
	}
	return r, nil
}

func intOf(row map[string]interface{}, key string) int {
	if f := core.OptionalFloat(row, key); f != nil {
		return int(*f)
	}
	return 0
}
