package crawler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/timing"
)

const performRows = `[` +
	`{"SECUCODE":"600519.SH","REPORT_DATE":"2023-12-31 00:00:00","DATE_TYPE":"2023年报","TOTALOPERATEREVE":150560330316.45,"TOTALOPERATEREVE_RATIO":18.04,"PARENTNETPROFIT":74734071550.75,"PARENTNETPROFIT_RATIO":19.16},` +
	`{"SECUCODE":"600519.SH","REPORT_DATE":"2024-12-31 00:00:00","DATE_TYPE":"2024年报","TOTALOPERATEREVE":174144069958.25,"TOTALOPERATEREVE_RATIO":15.66,"PARENTNETPROFIT":86228146421.62,"PARENTNETPROFIT_RATIO":15.38,"KCFJCXSYJLR":86281657454.86},` +
	`{"SECUCODE":"600519.SH","REPORT_DATE":"2022-12-31 00:00:00","DATE_TYPE":"2022年报"}]`

const mainFinaRows = `[` +
	`{"SECUCODE":"600519.SH","REPORT_DATE":"2024-12-31 00:00:00","EPSJB":68.64,"BPS":205.28,"ROEJQ":36.02,"XSMLL":91.93,"XSJLL":52.27,"ZCFZL":19.04},` +
	`{"SECUCODE":"600519.SH","REPORT_DATE":"2023-12-31 00:00:00","EPSJB":59.49,"ROEJQ":36.18}]`

func TestGetFinancials_合并主要指标(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathDatacenter: byReport(map[string]string{
			"RPT_F10_FN_PERFORM":           datacenterOK(performRows),
			"RPT_F10_FINANCE_MAINFINADATA": datacenterOK(mainFinaRows),
		}),
	})
	c, hook := newTestCrawler(t, f)

	rows, err := c.GetFinancials(context.Background(), "600519", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	latest := rows[0]
	assert.Equal(t, timing.Date(2024, 12, 31), latest.ReportDate)
	assert.Equal(t, core.ReportAnnual, latest.ReportType)
	assert.Equal(t, "2024年报", latest.ReportName)
	require.NotNil(t, latest.Revenue)
	assert.Equal(t, 174144069958.25, *latest.Revenue)
	require.NotNil(t, latest.EPS)
	assert.Equal(t, 68.64, *latest.EPS)
	require.NotNil(t, latest.DebtToAssetRatio)
	assert.Equal(t, 19.04, *latest.DebtToAssetRatio)

	assert.Equal(t, timing.Date(2023, 12, 31), rows[1].ReportDate)
	assert.Nil(t, rows[1].BPS)
	require.NotNil(t, rows[1].ROE)
	assert.Equal(t, 36.18, *rows[1].ROE)

	// 2022 年报没有任何指标
	warns := warnings(hook)
	require.Len(t, warns, 1)
	assert.Equal(t, 2, warns[0].Data["row"])

	assert.Equal(t, 2, f.hits(pathDatacenter))
	q := f.last(pathDatacenter).URL.Query()
	assert.Equal(t, "RPT_F10_FINANCE_MAINFINADATA", q.Get("reportName"))
	assert.Equal(t, `(SECUCODE="600519.SH")(REPORT_DATE like '%-12-31')`, q.Get("filter"))
}

func TestGetFinancials_主要指标失败仍返回(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathDatacenter: byReport(map[string]string{
			"RPT_F10_FN_PERFORM": datacenterOK(performRows),
		}),
	})
	c, hook := newTestCrawler(t, f)

	rows, err := c.GetFinancials(context.Background(), "SH600519", core.ReportAnnual)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].EPS)

	var messages []string
	for _, e := range warnings(hook) {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "main financial indicators unavailable")
}

func TestGetFinancials_报告类型(t *testing.T) {
	f := newFakeUpstream(t, map[string]http.HandlerFunc{
		pathDatacenter: byReport(map[string]string{
			"RPT_F10_FN_PERFORM":           datacenterEmpty,
			"RPT_F10_FINANCE_MAINFINADATA": datacenterEmpty,
		}),
	})
	c, _ := newTestCrawler(t, f)
	ctx := context.Background()

	rows, err := c.GetFinancials(ctx, "600519", "half")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, `(SECUCODE="600519.SH")(REPORT_DATE like '%-06-30')`, f.last(pathDatacenter).URL.Query().Get("filter"))

	_, err = c.GetFinancials(ctx, "600519", "q5")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReportSpec_参数顺序(t *testing.T) {
	c := New(nil, Options{Now: fixedNow})
	spec := c.reportSpec("https://example.com/get", reportQuery{
		Name:        "RPT_TEST",
		Columns:     "ALL",
		Filter:      `(SECUCODE="600519.SH")`,
		SortColumns: "REPORT_DATE",
		SortTypes:   "-1",
		PageSize:    20,
	})

	var keys []string
	for _, p := range spec.Params {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{
		"reportName", "columns", "filter", "sortColumns", "sortTypes",
		"pageNumber", "pageSize", "source", "client",
	}, keys)
	assert.Equal(t, "https://emweb.securities.eastmoney.com/", spec.Headers["Referer"])
}
