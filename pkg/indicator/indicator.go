// Package indicator 基于日线收盘价计算常用技术指标，结果保留两位小数。
package indicator

import (
	"math"
)

// Series 指标序列，nil 表示该位置数据不足
type Series []*float64

// Round2 四舍五入到两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}

func rounded(v float64) *float64 {
	return ptr(Round2(v))
}

// FromValues 把完整的数值序列转为 Series
func FromValues(values []float64) Series {
	out := make(Series, len(values))
	for i, v := range values {
		out[i] = ptr(v)
	}
	return out
}

// MA 简单移动平均
func MA(closes []float64, period int) Series {
	out := make(Series, len(closes))
	if period <= 0 {
		return out
	}

	sum := 0.0
	for i, v := range closes {
		sum += v
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = rounded(sum / float64(period))
		}
	}
	return out
}

// EMA 指数移动平均，以第一个非空值为初值，不做取整
func EMA(data Series, period int) Series {
	out := make(Series, len(data))
	if period <= 0 {
		return out
	}
	multiplier := 2.0 / float64(period+1)

	var ema *float64
	for i, v := range data {
		if v == nil {
			continue
		}
		if ema == nil {
			ema = ptr(*v)
		} else {
			ema = ptr((*v-*ema)*multiplier + *ema)
		}
		out[i] = ema
	}
	return out
}

// MACD 返回 DIF、DEA 和柱值 2*(DIF-DEA)
func MACD(closes []float64, fast, slow, signal int) (dif, dea, bar Series) {
	n := len(closes)
	values := FromValues(closes)
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)

	rawDIF := make(Series, n)
	for i := 0; i < n; i++ {
		if emaFast[i] != nil && emaSlow[i] != nil {
			rawDIF[i] = ptr(*emaFast[i] - *emaSlow[i])
		}
	}
	rawDEA := EMA(rawDIF, signal)

	dif = make(Series, n)
	dea = make(Series, n)
	bar = make(Series, n)
	for i := 0; i < n; i++ {
		if rawDIF[i] != nil {
			dif[i] = rounded(*rawDIF[i])
		}
		if rawDEA[i] != nil {
			dea[i] = rounded(*rawDEA[i])
		}
		if rawDIF[i] != nil && rawDEA[i] != nil {
			bar[i] = rounded(2 * (*rawDIF[i] - *rawDEA[i]))
		}
	}
	return dif, dea, bar
}

// RSI Wilder 平滑的相对强弱指标，第一个值出现在下标 period
func RSI(closes []float64, period int) Series {
	n := len(closes)
	out := make(Series, n)
	if period <= 0 || n <= period {
		return out
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	var sumGain, sumLoss float64
	for i := 1; i <= period; i++ {
		sumGain += gains[i]
		sumLoss += losses[i]
	}
	avgGain := sumGain / float64(period)
	avgLoss := sumLoss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*(p-1) + gains[i]) / p
		avgLoss = (avgLoss*(p-1) + losses[i]) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) *float64 {
	if avgLoss == 0 {
		return ptr(100)
	}
	rs := avgGain / avgLoss
	return rounded(100 - 100/(1+rs))
}

// KDJ 随机指标，K、D 初值为 50，区间最高等于最低时 RSV 取 50
func KDJ(highs, lows, closes []float64, period, kPeriod, dPeriod int) (k, d, j Series) {
	n := len(closes)
	k = make(Series, n)
	d = make(Series, n)
	j = make(Series, n)
	if period <= 0 || len(highs) != n || len(lows) != n {
		return k, d, j
	}

	kv, dv := 50.0, 50.0
	kp, dp := float64(kPeriod), float64(dPeriod)
	for i := period - 1; i < n; i++ {
		high, low := highs[i], lows[i]
		for x := i - period + 1; x < i; x++ {
			high = math.Max(high, highs[x])
			low = math.Min(low, lows[x])
		}

		rsv := 50.0
		if high != low {
			rsv = (closes[i] - low) / (high - low) * 100
		}

		// K 保留原值平滑，D 以取整后的 K 平滑
		kv = (kv*(kp-1) + rsv) / kp
		kr := Round2(kv)
		dv = (dv*(dp-1) + kr) / dp
		dr := Round2(dv)
		k[i] = ptr(kr)
		d[i] = ptr(dr)
		j[i] = rounded(3*kr - 2*dr)
	}
	return k, d, j
}

// BOLL 布林带，中轨为 period 日均线，上下轨为中轨加减 width 倍总体标准差
func BOLL(closes []float64, period int, width float64) (upper, middle, lower Series) {
	n := len(closes)
	upper = make(Series, n)
	middle = make(Series, n)
	lower = make(Series, n)
	if period <= 0 {
		return upper, middle, lower
	}

	for i := period - 1; i < n; i++ {
		window := closes[i-period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)

		variance := 0.0
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(period))

		middle[i] = rounded(mean)
		upper[i] = rounded(mean + width*std)
		lower[i] = rounded(mean - width*std)
	}
	return upper, middle, lower
}
