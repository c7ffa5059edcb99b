// Package decorators 为 DataSource 提供限频、熔断与缓存装饰器
package decorators

import (
	"context"

	"stockdata/pkg/provider/core"
)

// Decorator 装饰器基础接口
type Decorator interface {
	core.DataSource

	// GetBase 获取被装饰的数据源
	GetBase() core.DataSource
}

// BaseDecorator 原样转发所有调用，具体装饰器只覆盖需要的方法
type BaseDecorator struct {
	base core.DataSource
}

// NewBaseDecorator 创建基础装饰器
func NewBaseDecorator(base core.DataSource) *BaseDecorator {
	return &BaseDecorator{base: base}
}

// Name 实现 Provider 接口
func (d *BaseDecorator) Name() string {
	return d.base.Name()
}

// IsHealthy 实现 Provider 接口
func (d *BaseDecorator) IsHealthy() bool {
	return d.base.IsHealthy()
}

// GetBase 实现 Decorator 接口
func (d *BaseDecorator) GetBase() core.DataSource {
	return d.base
}

func (d *BaseDecorator) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	return d.base.Search(ctx, query)
}

func (d *BaseDecorator) GetQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	return d.base.GetQuote(ctx, symbol)
}

func (d *BaseDecorator) GetKline(ctx context.Context, symbol string, period core.Period, r core.DateRange) ([]core.KlineBar, error) {
	return d.base.GetKline(ctx, symbol, period, r)
}

func (d *BaseDecorator) GetIndicators(ctx context.Context, symbol string, set core.IndicatorSet, r core.DateRange) ([]core.IndicatorPoint, error) {
	return d.base.GetIndicators(ctx, symbol, set, r)
}

func (d *BaseDecorator) GetFinancials(ctx context.Context, symbol string, reportType core.ReportType) ([]core.FinancialStatementRow, error) {
	return d.base.GetFinancials(ctx, symbol, reportType)
}

func (d *BaseDecorator) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	return d.base.GetTradingCalendar(ctx, r)
}

// Close 关闭被装饰的数据源
func (d *BaseDecorator) Close() error {
	if closer, ok := d.base.(core.Closable); ok {
		return closer.Close()
	}
	return nil
}

// Unwrap 逐层剥离装饰器，返回最内层数据源
func Unwrap(ds core.DataSource) core.DataSource {
	for {
		d, ok := ds.(Decorator)
		if !ok {
			return ds
		}
		ds = d.GetBase()
	}
}

// DecoratorChain 装饰器链，按添加顺序由内向外包装
type DecoratorChain struct {
	decorators []func(core.DataSource) core.DataSource
}

// NewDecoratorChain 创建装饰器链
func NewDecoratorChain() *DecoratorChain {
	return &DecoratorChain{
		decorators: make([]func(core.DataSource) core.DataSource, 0),
	}
}

// AddDecorator 添加装饰器到链中
func (dc *DecoratorChain) AddDecorator(decorator func(core.DataSource) core.DataSource) *DecoratorChain {
	dc.decorators = append(dc.decorators, decorator)
	return dc
}

// Apply 应用装饰器链
func (dc *DecoratorChain) Apply(base core.DataSource) core.DataSource {
	ds := base
	for _, decorator := range dc.decorators {
		ds = decorator(ds)
	}
	return ds
}

var (
	_ Decorator     = (*BaseDecorator)(nil)
	_ core.Closable = (*BaseDecorator)(nil)
)
