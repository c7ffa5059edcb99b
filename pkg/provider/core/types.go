package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/timing"
)

// Period K 线周期
type Period string

const (
	PeriodMin1    Period = "1m"
	PeriodMin5    Period = "5m"
	PeriodMin15   Period = "15m"
	PeriodMin30   Period = "30m"
	PeriodMin60   Period = "60m"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

var periodAliases = map[string]Period{
	"1": PeriodMin1, "1m": PeriodMin1, "1min": PeriodMin1,
	"5": PeriodMin5, "5m": PeriodMin5, "5min": PeriodMin5,
	"15": PeriodMin15, "15m": PeriodMin15, "15min": PeriodMin15,
	"30": PeriodMin30, "30m": PeriodMin30, "30min": PeriodMin30,
	"60": PeriodMin60, "60m": PeriodMin60, "60min": PeriodMin60,
	"d": PeriodDaily, "day": PeriodDaily, "daily": PeriodDaily, "101": PeriodDaily,
	"w": PeriodWeekly, "week": PeriodWeekly, "weekly": PeriodWeekly, "102": PeriodWeekly,
	"m": PeriodMonthly, "month": PeriodMonthly, "monthly": PeriodMonthly, "103": PeriodMonthly,
}

// ParsePeriod 解析周期，兼容 d/w/m 与分钟数写法，空字符串为日线
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PeriodDaily, nil
	}
	if p, ok := periodAliases[s]; ok {
		return p, nil
	}
	return "", apperr.NewValidationError(fmt.Sprintf("unknown kline period %q", s))
}

// Intraday 是否为分钟级周期
func (p Period) Intraday() bool {
	switch p {
	case PeriodMin1, PeriodMin5, PeriodMin15, PeriodMin30, PeriodMin60:
		return true
	}
	return false
}

// DateRange 闭区间日期范围，上海时区
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange 由字符串构造日期范围
func NewDateRange(start, end string) (DateRange, error) {
	s, err := timing.ParseDate(start)
	if err != nil {
		return DateRange{}, apperr.NewValidationError(err.Error())
	}
	e, err := timing.ParseDate(end)
	if err != nil {
		return DateRange{}, apperr.NewValidationError(err.Error())
	}
	r := DateRange{Start: s, End: e}
	return r, r.Validate()
}

// Validate 检查起止日期
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return apperr.NewValidationError("date range requires both start and end")
	}
	if timing.DayOf(r.Start).After(timing.DayOf(r.End)) {
		return apperr.NewValidationError(fmt.Sprintf("start %s is after end %s",
			timing.FormatDate(r.Start), timing.FormatDate(r.End)))
	}
	return nil
}

// Contains 按日期判断 t 是否落在区间内
func (r DateRange) Contains(t time.Time) bool {
	d := timing.DayOf(t)
	return !d.Before(timing.DayOf(r.Start)) && !d.After(timing.DayOf(r.End))
}

func (r DateRange) String() string {
	return timing.FormatDate(r.Start) + "~" + timing.FormatDate(r.End)
}

// Indicator 技术指标
type Indicator string

const (
	IndicatorMA   Indicator = "MA"
	IndicatorMACD Indicator = "MACD"
	IndicatorRSI  Indicator = "RSI"
	IndicatorKDJ  Indicator = "KDJ"
	IndicatorBOLL Indicator = "BOLL"
)

// AllIndicators 支持的全部指标
var AllIndicators = IndicatorSet{IndicatorMA, IndicatorMACD, IndicatorRSI, IndicatorKDJ, IndicatorBOLL}

// 各指标需要的预热 K 线数量
var warmupBars = map[Indicator]int{
	IndicatorMA:   60,
	IndicatorMACD: 120,
	IndicatorRSI:  100,
	IndicatorKDJ:  40,
	IndicatorBOLL: 20,
}

// IndicatorSet 请求的指标集合
type IndicatorSet []Indicator

// ParseIndicatorSet 解析指标名称，空列表表示全部
func ParseIndicatorSet(names []string) (IndicatorSet, error) {
	if len(names) == 0 {
		return AllIndicators, nil
	}
	seen := make(map[Indicator]bool)
	var set IndicatorSet
	for _, name := range names {
		ind := Indicator(strings.ToUpper(strings.TrimSpace(name)))
		if _, ok := warmupBars[ind]; !ok {
			return nil, apperr.NewValidationError(fmt.Sprintf("unknown indicator %q", name))
		}
		if !seen[ind] {
			seen[ind] = true
			set = append(set, ind)
		}
	}
	return set, nil
}

// Has 集合中是否包含指标
func (s IndicatorSet) Has(ind Indicator) bool {
	for _, v := range s {
		if v == ind {
			return true
		}
	}
	return false
}

// Warmup 计算所需的预热 K 线数量
func (s IndicatorSet) Warmup() int {
	n := 0
	for _, ind := range s {
		if warmupBars[ind] > n {
			n = warmupBars[ind]
		}
	}
	return n
}

// ReportType 财报类型，取值与东财 DATE_TYPE_CODE 一致
type ReportType string

const (
	ReportQ1     ReportType = "001" // 一季报
	ReportHalf   ReportType = "002" // 半年报
	ReportQ3     ReportType = "003" // 三季报
	ReportAnnual ReportType = "004" // 年报
)

var reportAliases = map[string]ReportType{
	"001": ReportQ1, "q1": ReportQ1,
	"002": ReportHalf, "half": ReportHalf, "h1": ReportHalf,
	"003": ReportQ3, "q3": ReportQ3,
	"004": ReportAnnual, "annual": ReportAnnual, "year": ReportAnnual,
}

// ParseReportType 解析财报类型，空字符串为年报
func ParseReportType(s string) (ReportType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ReportAnnual, nil
	}
	if rt, ok := reportAliases[s]; ok {
		return rt, nil
	}
	return "", apperr.NewValidationError(fmt.Sprintf("unknown report type %q", s))
}

// PeriodEnd 报告期对应的月日，如年报为 12-31
func (rt ReportType) PeriodEnd() string {
	switch rt {
	case ReportQ1:
		return "03-31"
	case ReportHalf:
		return "06-30"
	case ReportQ3:
		return "09-30"
	default:
		return "12-31"
	}
}

// SearchResult 证券搜索结果
type SearchResult struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Symbol   string `json:"symbol,omitempty"` // SECUCODE 形式，如 600519.SH
	Pinyin   string `json:"pinyin,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Quote 实时行情
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	Open          *float64  `json:"open,omitempty"`
	High          *float64  `json:"high,omitempty"`
	Low           *float64  `json:"low,omitempty"`
	PrevClose     *float64  `json:"prev_close,omitempty"`
	Volume        *float64  `json:"volume,omitempty"` // 股
	Amount        *float64  `json:"amount,omitempty"` // 元
	TurnoverRate  *float64  `json:"turnover_rate,omitempty"`
	PE            *float64  `json:"pe_ttm,omitempty"`
	PB            *float64  `json:"pb,omitempty"`
	MarketCap     *float64  `json:"market_cap,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
}

// KlineBar 单根 K 线
type KlineBar struct {
	Symbol        string    `json:"symbol"`
	Period        Period    `json:"period"`
	Date          time.Time `json:"date"`
	Open          float64   `json:"open"`
	Close         float64   `json:"close"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        float64   `json:"volume"` // 股
	Amount        *float64  `json:"amount,omitempty"`
	Amplitude     *float64  `json:"amplitude,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	ChangeAmount  *float64  `json:"change_amount,omitempty"`
	TurnoverRate  *float64  `json:"turnover_rate,omitempty"`
}

// IndicatorPoint 某日的技术指标，未请求的指标保持为空
type IndicatorPoint struct {
	Date      time.Time `json:"date"`
	MA5       *float64  `json:"ma5,omitempty"`
	MA10      *float64  `json:"ma10,omitempty"`
	MA20      *float64  `json:"ma20,omitempty"`
	MA60      *float64  `json:"ma60,omitempty"`
	DIF       *float64  `json:"macd_dif,omitempty"`
	DEA       *float64  `json:"macd_dea,omitempty"`
	MACD      *float64  `json:"macd_bar,omitempty"`
	RSI6      *float64  `json:"rsi6,omitempty"`
	RSI12     *float64  `json:"rsi12,omitempty"`
	RSI24     *float64  `json:"rsi24,omitempty"`
	K         *float64  `json:"kdj_k,omitempty"`
	D         *float64  `json:"kdj_d,omitempty"`
	J         *float64  `json:"kdj_j,omitempty"`
	BollUpper *float64  `json:"boll_upper,omitempty"`
	BollMid   *float64  `json:"boll_mid,omitempty"`
	BollLower *float64  `json:"boll_lower,omitempty"`
}

// FinancialStatementRow 一期财务摘要
type FinancialStatementRow struct {
	Symbol               string     `json:"symbol"`
	ReportDate           time.Time  `json:"report_date"`
	ReportType           ReportType `json:"report_type"`
	ReportName           string     `json:"report_name,omitempty"`
	Revenue              *float64   `json:"revenue,omitempty"`
	RevenueYoY           *float64   `json:"revenue_yoy,omitempty"`
	ParentNetProfit      *float64   `json:"parent_net_profit,omitempty"`
	ParentNetProfitYoY   *float64   `json:"parent_net_profit_yoy,omitempty"`
	DeductedNetProfit    *float64   `json:"deducted_net_profit,omitempty"`
	DeductedNetProfitYoY *float64   `json:"deducted_net_profit_yoy,omitempty"`
	EPS                  *float64   `json:"eps,omitempty"`
	BPS                  *float64   `json:"bps,omitempty"`
	ROE                  *float64   `json:"roe,omitempty"`
	GrossMargin          *float64   `json:"gross_margin,omitempty"`
	NetMargin            *float64   `json:"net_margin,omitempty"`
	DebtToAssetRatio     *float64   `json:"debt_to_asset_ratio,omitempty"`
}

// HasData 至少有一个财务指标
func (r FinancialStatementRow) HasData() bool {
	for _, v := range []*float64{
		r.Revenue, r.RevenueYoY, r.ParentNetProfit, r.ParentNetProfitYoY,
		r.DeductedNetProfit, r.DeductedNetProfitYoY, r.EPS, r.BPS, r.ROE,
		r.GrossMargin, r.NetMargin, r.DebtToAssetRatio,
	} {
		if v != nil {
			return true
		}
	}
	return false
}

// TradingDate 交易日
type TradingDate struct {
	Date     time.Time `json:"date"`
	Exchange string    `json:"exchange"`
}

// SortBars 按日期升序排列
func SortBars(bars []KlineBar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// SortTradingDates 按日期升序排列
func SortTradingDates(days []TradingDate) {
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
}
