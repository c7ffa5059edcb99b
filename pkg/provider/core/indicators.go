package core

import (
	"stockdata/pkg/indicator"
	"stockdata/pkg/timing"
)

// WarmupRange 把区间起点向前扩展，使长周期指标在起点处已有定义
func WarmupRange(cal *timing.Calendar, r DateRange, set IndicatorSet) DateRange {
	return DateRange{
		Start: cal.ShiftTradingDays(r.Start, set.Warmup()),
		End:   r.End,
	}
}

// ComputeIndicators 基于升序日线计算指标，只返回落在 r 内的点
func ComputeIndicators(bars []KlineBar, set IndicatorSet, r DateRange) []IndicatorPoint {
	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	points := make([]IndicatorPoint, n)
	for i, b := range bars {
		points[i].Date = b.Date
	}

	if set.Has(IndicatorMA) {
		ma5, ma10 := indicator.MA(closes, 5), indicator.MA(closes, 10)
		ma20, ma60 := indicator.MA(closes, 20), indicator.MA(closes, 60)
		for i := range points {
			points[i].MA5, points[i].MA10 = ma5[i], ma10[i]
			points[i].MA20, points[i].MA60 = ma20[i], ma60[i]
		}
	}

	if set.Has(IndicatorMACD) {
		dif, dea, bar := indicator.MACD(closes, 12, 26, 9)
		for i := range points {
			points[i].DIF, points[i].DEA, points[i].MACD = dif[i], dea[i], bar[i]
		}
	}

	if set.Has(IndicatorRSI) {
		rsi6, rsi12, rsi24 := indicator.RSI(closes, 6), indicator.RSI(closes, 12), indicator.RSI(closes, 24)
		for i := range points {
			points[i].RSI6, points[i].RSI12, points[i].RSI24 = rsi6[i], rsi12[i], rsi24[i]
		}
	}

	if set.Has(IndicatorKDJ) {
		k, d, j := indicator.KDJ(highs, lows, closes, 9, 3, 3)
		for i := range points {
			points[i].K, points[i].D, points[i].J = k[i], d[i], j[i]
		}
	}

	if set.Has(IndicatorBOLL) {
		upper, mid, lower := indicator.BOLL(closes, 20, 2)
		for i := range points {
			points[i].BollUpper, points[i].BollMid, points[i].BollLower = upper[i], mid[i], lower[i]
		}
	}

	out := make([]IndicatorPoint, 0, n)
	for _, p := range points {
		if r.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out
}
