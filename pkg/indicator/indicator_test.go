package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(s Series) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

func TestMA(t *testing.T) {
	got := MA([]float64{1, 2, 3, 4, 5}, 3)
	assert.Equal(t, []interface{}{nil, nil, 2.0, 3.0, 4.0}, values(got))

	got = MA([]float64{1, 2}, 3)
	assert.Equal(t, []interface{}{nil, nil}, values(got))

	// 两位小数
	got = MA([]float64{1, 1, 2}, 3)
	assert.Equal(t, 1.33, *got[2])
}

func TestEMA_以首个非空值为初值(t *testing.T) {
	data := Series{nil, ptr(10), ptr(20)}
	got := EMA(data, 3)

	assert.Nil(t, got[0])
	assert.Equal(t, 10.0, *got[1])
	// (20-10)*0.5+10
	assert.Equal(t, 15.0, *got[2])
}

func TestMACD_常数序列为零(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 10
	}
	dif, dea, bar := MACD(closes, 12, 26, 9)

	require.Len(t, dif, 40)
	for i := range closes {
		assert.Equal(t, 0.0, *dif[i])
		assert.Equal(t, 0.0, *dea[i])
		assert.Equal(t, 0.0, *bar[i])
	}
}

func TestMACD_上涨趋势DIF为正(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 10 + float64(i)*0.5
	}
	dif, dea, bar := MACD(closes, 12, 26, 9)

	last := len(closes) - 1
	assert.Greater(t, *dif[last], 0.0)
	assert.Greater(t, *dif[last], *dea[last])
	assert.Greater(t, *bar[last], 0.0)
}

func TestRSI(t *testing.T) {
	// 只涨不跌
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	got := RSI(up, 6)
	for i := 0; i < 6; i++ {
		assert.Nil(t, got[i])
	}
	assert.Equal(t, 100.0, *got[6])
	assert.Equal(t, 100.0, *got[7])

	// 涨跌相同
	flat := []float64{10, 11, 10, 11, 10, 11, 10}
	got = RSI(flat, 6)
	assert.Equal(t, 50.0, *got[6])

	// 数据不足
	assert.Equal(t, []interface{}{nil, nil}, values(RSI([]float64{1, 2}, 6)))
}

func TestKDJ(t *testing.T) {
	n := 12
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 10
		lows[i] = 10
		closes[i] = 10
	}

	// 最高等于最低时 RSV 为 50，K D J 保持 50
	k, d, j := KDJ(highs, lows, closes, 9, 3, 3)
	assert.Nil(t, k[7])
	assert.Equal(t, 50.0, *k[8])
	assert.Equal(t, 50.0, *d[8])
	assert.Equal(t, 50.0, *j[11])

	// 收在区间最高点
	for i := 0; i < n; i++ {
		highs[i] = float64(10 + i)
		lows[i] = float64(9 + i)
		closes[i] = highs[i]
	}
	k, d, j = KDJ(highs, lows, closes, 9, 3, 3)
	// RSV=100: K=(50*2+100)/3
	assert.Equal(t, 66.67, *k[8])
	assert.Equal(t, 55.56, *d[8])
	assert.Equal(t, Round2(3*66.67-2*55.56), *j[8])
}

func TestBOLL(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	upper, middle, lower := BOLL(closes, 8, 2)

	// 均值 5，总体标准差 2
	assert.Equal(t, 5.0, *middle[7])
	assert.Equal(t, 9.0, *upper[7])
	assert.Equal(t, 1.0, *lower[7])
	assert.Nil(t, middle[6])
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.24, Round2(1.2351))
	assert.Equal(t, -1.24, Round2(-1.2351))
	assert.Equal(t, 3.0, Round2(3))
}
