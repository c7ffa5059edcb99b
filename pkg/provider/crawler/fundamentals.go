package crawler

import (
	"context"
	"fmt"
	"time"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

const mainBusinessColumns = "SECUCODE,SECURITY_CODE,REPORT_DATE,MAINOP_TYPE,ITEM_NAME,MAIN_BUSINESS_INCOME,MBI_RATIO," +
	"MAIN_BUSINESS_COST,MBC_RATIO,MAIN_BUSINESS_RPOFIT,MBR_RATIO,GROSS_RPOFIT_RATIO,RANK"

// GetReportDates 返回有主营构成数据的报告期，按时间降序
func (c *Crawler) GetReportDates(ctx context.Context, input string) ([]time.Time, error) {
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendDatacenter)
	if err != nil {
		return nil, err
	}

	rows, err := c.datacenter(ctx, c.reportSpec(c.endpoints.Datacenter, reportQuery{
		Name:        "RPT_F10_FN_MAINOP",
		Columns:     "SECUCODE,REPORT_DATE",
		Filter:      fmt.Sprintf(`(SECUCODE="%s")`, sym.Canonical),
		Distinct:    "REPORT_DATE",
		SortColumns: "REPORT_DATE",
		SortTypes:   "-1",
	}))
	if err != nil {
		return nil, err
	}

	return core.CollectRows(c.log.WithField("symbol", sym.Canonical), "report_date", rows,
		func(_ int, v interface{}) (time.Time, error) {
			row, err := asRow(v)
			if err != nil {
				return time.Time{}, err
			}
			raw, err := core.RequireString(row, "REPORT_DATE")
			if err != nil {
				return time.Time{}, err
			}
			return timing.ParseDate(raw)
		})
}

// GetBusinessScope 获取公司经营范围
func (c *Crawler) GetBusinessScope(ctx context.Context, input string) (*core.BusinessScope, error) {
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendDatacenter)
	if err != nil {
		return nil, err
	}

	rows, err := c.datacenter(ctx, c.reportSpec(c.endpoints.Datacenter, reportQuery{
		Name:     "RPT_HSF9_BASIC_ORGINFO",
		Columns:  "SECUCODE,SECURITY_CODE,BUSINESS_SCOPE",
		Filter:   fmt.Sprintf(`(SECUCODE="%s")`, sym.Canonical),
		PageSize: 1,
	}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NewInvalidSymbolError(input, "no company profile")
	}

	row, err := asRow(rows[0])
	if err != nil {
		return nil, apperr.NewValidationError(err.Error())
	}
	scope, err := core.RequireString(row, "BUSINESS_SCOPE")
	if err != nil {
		return nil, apperr.NewValidationError(err.Error())
	}
	return &core.BusinessScope{Symbol: sym.Canonical, Scope: scope}, nil
}

// GetMainBusiness 获取主营构成，reportDate 为空时返回全部报告期
func (c *Crawler) GetMainBusiness(ctx context.Context, input string, reportDate string) ([]core.MainBusinessItem, error) {
	sym, err := core.ResolveSymbol(ctx, c, input, symbol.BackendDatacenter)
	if err != nil {
		return nil, err
	}

	filter := fmt.Sprintf(`(SECUCODE="%s")`, sym.Canonical)
	if reportDate != "" {
		d, err := timing.ParseDate(reportDate)
		if err != nil {
			return nil, apperr.NewValidationError(err.Error())
		}
		filter += fmt.Sprintf(`(REPORT_DATE='%s')`, timing.FormatDate(d))
	}

	rows, err := c.datacenter(ctx, c.reportSpec(c.endpoints.Datacenter, reportQuery{
		Name:        "RPT_F10_FN_MAINOP",
		Columns:     mainBusinessColumns,
		Filter:      filter,
		SortColumns: "MAINOP_TYPE,RANK",
		SortTypes:   "1,1",
	}))
	if err != nil {
		return nil, err
	}

	return core.CollectRows(c.log.WithField("symbol", sym.Canonical), "main_business", rows,
		func(_ int, v interface{}) (core.MainBusinessItem, error) {
			row, err := asRow(v)
			if err != nil {
				return core.MainBusinessItem{}, err
			}
			raw, err := core.RequireString(row, "REPORT_DATE")
			if err != nil {
				return core.MainBusinessItem{}, err
			}
			date, err := timing.ParseDate(raw)
			if err != nil {
				return core.MainBusinessItem{}, err
			}
			name, err := core.RequireString(row, "ITEM_NAME")
			if err != nil {
				return core.MainBusinessItem{}, err
			}

			item := core.MainBusinessItem{
				Symbol:      sym.Canonical,
				ReportDate:  date,
				Category:    core.OptionalString(row, "MAINOP_TYPE"),
				Name:        name,
				Income:      core.OptionalFloat(row, "MAIN_BUSINESS_INCOME"),
				IncomeRatio: core.Scale(core.OptionalFloat(row, "MBI_RATIO"), 100),
				Cost:        core.OptionalFloat(row, "MAIN_BUSINESS_COST"),
				CostRatio:   core.Scale(core.OptionalFloat(row, "MBC_RATIO"), 100),
				Profit:      core.OptionalFloat(row, "MAIN_BUSINESS_RPOFIT"),
				ProfitRatio: core.Scale(core.OptionalFloat(row, "MBR_RATIO"), 100),
				GrossMargin: core.Scale(core.OptionalFloat(row, "GROSS_RPOFIT_RATIO"), 100),
			}
			if rank := core.OptionalFloat(row, "RANK"); rank != nil {
				item.Rank = int(*rank)
			}
			return item, nil
		})
}
