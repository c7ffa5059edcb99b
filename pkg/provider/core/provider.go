package core

import (
	"context"
)

// Provider 数据提供商基础接口
// 所有数据提供商都必须实现此接口
type Provider interface {
	// Name 返回提供商名称，用于标识和日志记录
	Name() string

	// IsHealthy 检查提供商健康状态
	// 返回 true 表示提供商可以正常工作
	IsHealthy() bool
}

// DataSource 统一的行情数据访问接口
//
// symbol 参数接受任意可识别的代码形式，名称类输入会先经 Search 解析。
// K 线与交易日按日期升序返回；区间内没有交易日时返回空切片且不报错。
type DataSource interface {
	Provider

	// Search 按代码、名称或拼音搜索证券
	Search(ctx context.Context, query string) ([]SearchResult, error)

	// GetQuote 获取实时行情
	GetQuote(ctx context.Context, symbol string) (*Quote, error)

	// GetKline 获取区间内的 K 线
	GetKline(ctx context.Context, symbol string, period Period, r DateRange) ([]KlineBar, error)

	// GetIndicators 计算区间内每个交易日的技术指标
	GetIndicators(ctx context.Context, symbol string, set IndicatorSet, r DateRange) ([]IndicatorPoint, error)

	// GetFinancials 获取财务摘要，按报告期降序
	GetFinancials(ctx context.Context, symbol string, reportType ReportType) ([]FinancialStatementRow, error)

	// GetTradingCalendar 获取区间内的交易日
	GetTradingCalendar(ctx context.Context, r DateRange) ([]TradingDate, error)
}

// Closable 可关闭接口
// 需要清理资源的提供商应实现此接口
type Closable interface {
	// Close 关闭提供商，清理资源
	Close() error
}
