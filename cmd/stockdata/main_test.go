package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockdata/pkg/provider/core"
	"stockdata/pkg/timing"
)

const quoteBody = `var hq_str_sh600000="浦发银行,10.500,10.450,10.550,10.600,10.400,10.540,10.550,1234500,12962250.00,` +
	`100,10.54,200,10.53,300,10.52,400,10.51,500,10.50,100,10.55,200,10.56,300,10.57,400,10.58,500,10.59,` +
	`2025-06-10,10:00:00,00";`

// writeConfig 生成指向假上游的配置文件
func writeConfig(t *testing.T, upstream string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stockdata.yaml")
	content := fmt.Sprintf(`
datasource:
  backend: sina
  fallback: ""
endpoints:
  sina_quote: %s/list=
http:
  max_retry: 1
logger:
  level: error
`, upstream)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fakeSina(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		if strings.HasSuffix(r.URL.Path, "sh600000") {
			_, _ = w.Write([]byte(quoteBody))
			return
		}
		_, _ = w.Write([]byte(`var hq_str_sh600999="";`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_用法错误(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"无命令", nil},
		{"未知命令", []string{"subscribe"}},
		{"未知全局参数", []string{"-nope", "quote", "600000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, exitUsage, run(tt.args, &stdout, &stderr))
			assert.Empty(t, stdout.String())
			assert.Contains(t, stderr.String(), "usage: stockdata")
		})
	}
}

func TestRun_行情(t *testing.T) {
	srv := fakeSina(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", writeConfig(t, srv.URL), "-fallback", "none", "quote", "600000"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var q core.Quote
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &q))
	assert.Equal(t, "600000.SH", q.Symbol)
	assert.Equal(t, "浦发银行", q.Name)
	assert.Equal(t, 10.55, q.Price)
}

func TestRun_错误以JSON输出(t *testing.T) {
	srv := fakeSina(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", writeConfig(t, srv.URL), "-fallback", "none", "quote", "600999"}, &stdout, &stderr)
	assert.Equal(t, exitError, code)
	assert.Empty(t, stdout.String())

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &out))
	assert.Equal(t, "invalid_symbol", out["error"])
}

func TestRun_子命令参数(t *testing.T) {
	srv := fakeSina(t)
	cfg := writeConfig(t, srv.URL)

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"缺少代码", []string{"kline"}, exitUsage, "expected 1 argument"},
		{"多余参数", []string{"quote", "600000", "000001"}, exitUsage, "expected 1 argument"},
		{"非法周期", []string{"kline", "-period", "2h", "600000"}, exitError, "validation"},
		{"非法日期", []string{"calendar", "-start", "2025/13/01"}, exitError, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := append([]string{"-config", cfg, "-fallback", "none"}, tt.args...)
			assert.Equal(t, tt.code, run(args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), tt.want)
		})
	}
}

func TestRun_交易日历(t *testing.T) {
	srv := fakeSina(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", writeConfig(t, srv.URL), "-fallback", "none", "-pretty=false",
		"calendar", "-start", "2025-06-06", "-end", "2025-06-10"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var days []core.TradingDate
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &days))
	require.Len(t, days, 3)
	assert.Equal(t, "2025-06-09", timing.FormatDate(days[1].Date))
}

func TestRangeFlags(t *testing.T) {
	now := time.Date(2025, 6, 30, 10, 0, 0, 0, timing.Shanghai)

	f := newSubFlags("kline", 0)
	r := addRange(f, 3)
	require.NoError(t, f.parse(nil))
	dr, err := r.value(now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-30", timing.FormatDate(dr.Start))
	assert.Equal(t, "2025-06-30", timing.FormatDate(dr.End))

	f = newSubFlags("kline", 0)
	r = addRange(f, 3)
	require.NoError(t, f.parse([]string{"-start", "2025-07-01"}))
	_, err = r.value(now)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"MA", "MACD"}, splitList(" MA, ,MACD"))
	assert.Nil(t, splitList(""))
}

func TestRun_智能评分(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		reports = append(reports, q.Get("reportName"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		_, _ = fmt.Fprintf(w, `%s({"result":{"data":[{"SECURITY_CODE":"300750","SECUCODE":"300750.SZ",`+
			`"SECURITY_NAME_ABBR":"宁德时代","TOTAL_SCORE":82.5,"MARKET_RANK":120,"TRADE_DATE":"2025-06-10 00:00:00"}]},`+
			`"success":true,"message":"ok","code":0});`, q.Get("callback"))
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "stockdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
datasource:
  backend: crawler
  fallback: ""
endpoints:
  datacenter_web: %s/api/data/v1/get
http:
  max_retry: 1
logger:
  level: error
`, srv.URL)), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", path, "-fallback", "none", "-pretty=false", "smart-score", "300750.SZ"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var score core.SmartScore
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &score))
	assert.Equal(t, "300750.SZ", score.Symbol)
	require.NotNil(t, score.Score)
	assert.Equal(t, 82.5, *score.Score)

	stdout.Reset()
	code = run([]string{"-config", path, "-fallback", "none", "-pretty=false", "top-rated", "-size", "5"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	var top []core.SmartScoreRank
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &top))
	require.Len(t, top, 1)
	assert.Equal(t, 120, top[0].MarketRank)

	mu.Lock()
	assert.Equal(t, []string{"RPT_CUSTOM_STOCK_PK", "RPT_CUSTOM_STOCK_PK"}, reports)
	mu.Unlock()

	stderr.Reset()
	assert.Equal(t, exitUsage, run([]string{"-config", path, "smart-rank"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "expected 1 argument")
}
