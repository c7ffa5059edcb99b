package crawler

import (
	"context"
	"fmt"
	"sort"

	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

const performColumns = "SECUCODE,SECURITY_CODE,SECURITY_NAME_ABBR,ORG_CODE,REPORT_DATE,DATE_TYPE_CODE,DATE_TYPE," +
	"PARENTNETPROFIT,TOTALOPERATEREVE,KCFJCXSYJLR,PARENTNETPROFIT_RATIO,TOTALOPERATEREVE_RATIO,KCFJCXSYJLR_RATIO," +
	"YEAR,TYPE,IS_PUBLISH"

const mainIndicatorColumns = "SECUCODE,REPORT_DATE,EPSJB,BPS,ROEJQ,XSMLL,XSJLL,ZCFZL"

// GetFinancials 获取业绩概况，并按报告期合并每股收益、ROE 等主要指标，按报告期降序
//
// 主要指标请求失败只记录警告，业绩概况中的字段照常返回。
func (c *Crawler) GetFinancials(ctx context.Context, input string, reportType core.ReportType) ([]core.FinancialStatementRow, error) {
	reportType, err := core.ParseReportType(string(reportType))
	if err != nil {
		return nil, err
	}
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendDatacenter)
	if err != nil {
		return nil, err
	}

	rows, err := c.datacenter(ctx, c.reportSpec(c.endpoints.Datacenter, reportQuery{
		Name:        "RPT_F10_FN_PERFORM",
		Columns:     performColumns,
		Filter:      fmt.Sprintf(`(SECUCODE="%s")(DATE_TYPE_CODE in ("%s"))`, sym.Canonical, reportType),
		SortColumns: "REPORT_DATE",
		SortTypes:   "-1",
		PageSize:    200,
		Source:      "F10",
	}))
	if err != nil {
		return nil, err
	}

	log := c.log.WithField("symbol", sym.Canonical)
	extra := c.mainIndicators(ctx, sym, reportType)

	out, err := core.CollectRows(log, "financial", rows, func(_ int, v interface{}) (core.FinancialStatementRow, error) {
		row, err := asRow(v)
		if err != nil {
			return core.FinancialStatementRow{}, err
		}
		raw, err := core.RequireString(row, "REPORT_DATE")
		if err != nil {
			return core.FinancialStatementRow{}, err
		}
		date, err := timing.ParseDate(raw)
		if err != nil {
			return core.FinancialStatementRow{}, err
		}

		fs := core.FinancialStatementRow{
			Symbol:               sym.Canonical,
			ReportDate:           date,
			ReportType:           reportType,
			ReportName:           core.OptionalString(row, "DATE_TYPE"),
			Revenue:              core.OptionalFloat(row, "TOTALOPERATEREVE"),
			RevenueYoY:           core.OptionalFloat(row, "TOTALOPERATEREVE_RATIO"),
			ParentNetProfit:      core.OptionalFloat(row, "PARENTNETPROFIT"),
			ParentNetProfitYoY:   core.OptionalFloat(row, "PARENTNETPROFIT_RATIO"),
			DeductedNetProfit:    core.OptionalFloat(row, "KCFJCXSYJLR"),
			DeductedNetProfitYoY: core.OptionalFloat(row, "KCFJCXSYJLR_RATIO"),
		}
		if m, ok := extra[timing.FormatDate(date)]; ok {
			fs.EPS = core.OptionalFloat(m, "EPSJB")
			fs.BPS = core.OptionalFloat(m, "BPS")
			fs.ROE = core.OptionalFloat(m, "ROEJQ")
			fs.GrossMargin = core.OptionalFloat(m, "XSMLL")
			fs.NetMargin = core.OptionalFloat(m, "XSJLL")
			fs.DebtToAssetRatio = core.OptionalFloat(m, "ZCFZL")
		}
		if !fs.HasData() {
			return core.FinancialStatementRow{}, fmt.Errorf("report %s has no figures", raw)
		}
		return fs, nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ReportDate.After(out[j].ReportDate) })
	return out, nil
}

// mainIndicators 按报告期索引主要财务指标，失败时返回空表
func (c *Crawler) mainIndicators(ctx context.Context, sym symbol.Symbol, reportType core.ReportType) map[string]map[string]interface{} {
	rows, err := c.datacenter(ctx, c.reportSpec(c.endpoints.Datacenter, reportQuery{
		Name:        "RPT_F10_FINANCE_MAINFINADATA",
		Columns:     mainIndicatorColumns,
		Filter:      fmt.Sprintf(`(SECUCODE="%s")(REPORT_DATE like '%%-%s')`, sym.Canonical, reportType.PeriodEnd()),
		SortColumns: "REPORT_DATE",
		SortTypes:   "-1",
		PageSize:    200,
		Source:      "F10",
	}))
	if err != nil {
		c.log.WithError(err).WithField("symbol", sym.Canonical).Warn("main financial indicators unavailable")
		return nil
	}

	byDate := make(map[string]map[string]interface{}, len(rows))
	for _, v := range rows {
		row, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		date, err := timing.ParseDate(core.OptionalString(row, "REPORT_DATE"))
		if err != nil {
			continue
		}
		byDate[timing.FormatDate(date)] = row
	}
	return byDate
}
