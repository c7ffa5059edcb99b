package core

import (
	"fmt"
	"strconv"
	"time"

	apperr "stockdata/pkg/error"
)

// CalendarExchange 交易日历所属市场，沪深北共用同一日历
const CalendarExchange = "CN"

// ValuationIndicator 估值指标类型，与东财 INDICATORTYPE 一致
type ValuationIndicator int

const (
	ValuationPE ValuationIndicator = 1 // 市盈率 TTM
	ValuationPB ValuationIndicator = 2 // 市净率 MRQ
	ValuationPS ValuationIndicator = 3 // 市销率 TTM
	ValuationPC ValuationIndicator = 4 // 市现率 TTM
)

// ValuationWindow 估值统计区间，与东财 DATETYPE 一致
type ValuationWindow int

const (
	Window1Y  ValuationWindow = 1
	Window3Y  ValuationWindow = 2
	Window5Y  ValuationWindow = 3
	Window10Y ValuationWindow = 4
)

var valuationNames = map[string]ValuationIndicator{
	"1": ValuationPE, "pe": ValuationPE,
	"2": ValuationPB, "pb": ValuationPB,
	"3": ValuationPS, "ps": ValuationPS,
	"4": ValuationPC, "pc": ValuationPC,
}

var windowNames = map[string]ValuationWindow{
	"1": Window1Y, "1y": Window1Y,
	"2": Window3Y, "3y": Window3Y,
	"3": Window5Y, "5y": Window5Y,
	"4": Window10Y, "10y": Window10Y,
}

// ParseValuationIndicator 解析估值指标，空字符串为市盈率
func ParseValuationIndicator(s string) (ValuationIndicator, error) {
	if s == "" {
		return ValuationPE, nil
	}
	if v, ok := valuationNames[s]; ok {
		return v, nil
	}
	return 0, apperr.NewValidationError(fmt.Sprintf("unknown valuation indicator %q", s))
}

// ParseValuationWindow 解析估值统计区间，空字符串为 3 年
func ParseValuationWindow(s string) (ValuationWindow, error) {
	if s == "" {
		return Window3Y, nil
	}
	if w, ok := windowNames[s]; ok {
		return w, nil
	}
	return 0, apperr.NewValidationError(fmt.Sprintf("unknown valuation window %q", s))
}

func (v ValuationIndicator) String() string { return strconv.Itoa(int(v)) }

func (w ValuationWindow) String() string { return strconv.Itoa(int(w)) }

// ValuationPoint 某日估值
type ValuationPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ValuationSnapshot 估值走势与分位
type ValuationSnapshot struct {
	Symbol       string             `json:"symbol"`
	Indicator    ValuationIndicator `json:"indicator"`
	Window       ValuationWindow    `json:"window"`
	Latest       *ValuationPoint    `json:"latest,omitempty"`
	Percentile30 *float64           `json:"percentile_30,omitempty"`
	Percentile50 *float64           `json:"percentile_50,omitempty"`
	Percentile70 *float64           `json:"percentile_70,omitempty"`
	History      []ValuationPoint   `json:"history"`
}

// MainBusinessItem 主营构成中的一项
type MainBusinessItem struct {
	Symbol      string    `json:"symbol"`
	ReportDate  time.Time `json:"report_date"`
	Category    string    `json:"category"` // 1 按行业, 2 按产品, 3 按地区
	Name        string    `json:"name"`
	Income      *float64  `json:"income,omitempty"`
	IncomeRatio *float64  `json:"income_ratio,omitempty"`
	Cost        *float64  `json:"cost,omitempty"`
	CostRatio   *float64  `json:"cost_ratio,omitempty"`
	Profit      *float64  `json:"profit,omitempty"`
	ProfitRatio *float64  `json:"profit_ratio,omitempty"`
	GrossMargin *float64  `json:"gross_margin,omitempty"`
	Rank        int       `json:"rank"`
}

// BusinessScope 经营范围
type BusinessScope struct {
	Symbol string `json:"symbol"`
	Scope  string `json:"scope"`
}

// InstitutionalRating 机构研报评级
type InstitutionalRating struct {
	Title       string    `json:"title"`
	Org         string    `json:"org"`
	Rating      string    `json:"rating,omitempty"`
	Researcher  string    `json:"researcher,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	PublishDate time.Time `json:"publish_date"`
	EPSThisYear *float64  `json:"eps_this_year,omitempty"`
	PEThisYear  *float64  `json:"pe_this_year,omitempty"`
	EPSNextYear *float64  `json:"eps_next_year,omitempty"`
	PENextYear  *float64  `json:"pe_next_year,omitempty"`
}

// PlateType 板块类型，与东财 fs 参数中的 t 一致
type PlateType int

const (
	PlateRegion   PlateType = 1
	PlateIndustry PlateType = 2
	PlateConcept  PlateType = 3
)

// ParsePlateType 解析板块类型，空字符串为行业板块
func ParsePlateType(s string) (PlateType, error) {
	switch s {
	case "", "industry", "2":
		return PlateIndustry, nil
	case "region", "1":
		return PlateRegion, nil
	case "concept", "3":
		return PlateConcept, nil
	}
	return 0, apperr.NewValidationError(fmt.Sprintf("unknown plate type %q", s))
}

// PlateQuote 板块行情
type PlateQuote struct {
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	Price           *float64 `json:"price,omitempty"`
	Change          *float64 `json:"change,omitempty"`
	ChangePercent   *float64 `json:"change_percent,omitempty"`
	TurnoverRate    *float64 `json:"turnover_rate,omitempty"`
	MarketCap       *float64 `json:"market_cap,omitempty"`
	Advancers       int      `json:"advancers"`
	Decliners       int      `json:"decliners"`
	LeaderName      string   `json:"leader_name,omitempty"`
	LeaderCode      string   `json:"leader_code,omitempty"`
	LeaderChangePct *float64 `json:"leader_change_percent,omitempty"`
}

// FundFlowBar 单日资金流向，金额单位元
type FundFlowBar struct {
	Date          time.Time `json:"date"`
	MainNet       float64   `json:"main_net"`
	SmallNet      *float64  `json:"small_net,omitempty"`
	MediumNet     *float64  `json:"medium_net,omitempty"`
	LargeNet      *float64  `json:"large_net,omitempty"`
	SuperLargeNet *float64  `json:"super_large_net,omitempty"`
	MainNetPct    *float64  `json:"main_net_percent,omitempty"`
	Close         *float64  `json:"close,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
}

// BillboardEntry 龙虎榜上榜记录
type BillboardEntry struct {
	Symbol        string    `json:"symbol"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	TradeDate     time.Time `json:"trade_date"`
	Reason        string    `json:"reason,omitempty"`
	Close         *float64  `json:"close,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	NetBuy        *float64  `json:"net_buy,omitempty"`
	Buy           *float64  `json:"buy,omitempty"`
	Sell          *float64  `json:"sell,omitempty"`
	Deal          *float64  `json:"deal,omitempty"`
	TurnoverRate  *float64  `json:"turnover_rate,omitempty"`
	// 上榜后 1、5、10 日的复权涨跌幅，个股历史记录才有
	After1DayPct  *float64 `json:"after_1d_percent,omitempty"`
	After5DayPct  *float64 `json:"after_5d_percent,omitempty"`
	After10DayPct *float64 `json:"after_10d_percent,omitempty"`
}

// SmartScore 个股智能评分
type SmartScore struct {
	Symbol           string   `json:"symbol"`
	Code             string   `json:"code"`
	Name             string   `json:"name"`
	Score            *float64 `json:"score,omitempty"`
	ScoreChange      *float64 `json:"score_change,omitempty"`
	Rise1DayProb     *float64 `json:"rise_1d_probability,omitempty"`
	Avg1DayChangePct *float64 `json:"avg_1d_change_percent,omitempty"`
	Rise5DayProb     *float64 `json:"rise_5d_probability,omitempty"`
	Avg5DayChangePct *float64 `json:"avg_5d_change_percent,omitempty"`
	Comment          string   `json:"comment,omitempty"`
	DiagnosedAt      string   `json:"diagnosed_at,omitempty"`
}

// SmartScoreRank 智能评分在行业与全市场中的排名
type SmartScoreRank struct {
	Symbol        string    `json:"symbol"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	BoardCode     string    `json:"board_code,omitempty"`
	BoardName     string    `json:"board_name,omitempty"`
	TradeDate     time.Time `json:"trade_date"`
	Score         *float64  `json:"score,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`

	IndustryRank      int      `json:"industry_rank"`
	IndustryHigh      *float64 `json:"industry_high,omitempty"`
	IndustryAvg       *float64 `json:"industry_avg,omitempty"`
	IndustryLow       *float64 `json:"industry_low,omitempty"`
	IndustryStocks    int      `json:"industry_stocks"`
	IndustryEvaluated int      `json:"industry_evaluated"`

	MarketRank      int      `json:"market_rank"`
	BeatPercent     *float64 `json:"beat_percent,omitempty"`
	MarketHigh      *float64 `json:"market_high,omitempty"`
	MarketAvg       *float64 `json:"market_avg,omitempty"`
	MarketLow       *float64 `json:"market_low,omitempty"`
	MarketStocks    int      `json:"market_stocks"`
	MarketEvaluated int      `json:"market_evaluated"`
}
