// Package sina 基于新浪财经公开接口的数据源
package sina

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/httpx"
	"stockdata/pkg/logger"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

// Name 数据源名称
const Name = "sina"

// Endpoints 新浪上游地址
type Endpoints struct {
	Quote   string
	Kline   string
	Suggest string
}

// DefaultEndpoints 返回线上地址
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Quote:   "https://hq.sinajs.cn/list=",
		Kline:   "https://quotes.sina.cn/cn/api/jsonp_v2.php",
		Suggest: "https://suggest3.sinajs.cn/suggest/",
	}
}

// Apply 按配置键覆盖地址，只识别 sina_ 前缀的键
func (e *Endpoints) Apply(overrides map[string]string) error {
	for key, value := range overrides {
		if value == "" {
			continue
		}
		var dst *string
		switch strings.ToLower(key) {
		case "sina_quote":
			dst = &e.Quote
		case "sina_kline":
			dst = &e.Kline
		case "sina_suggest":
			dst = &e.Suggest
		default:
			continue
		}
		if u, err := url.Parse(value); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("endpoint %s: invalid url %q", key, value)
		}
		*dst = value
	}
	return nil
}

// Provider 新浪数据源
//
// 行情为 GBK 编码的 var hq_str_xxx="..." 文本；K 线为 JSONP；
// 交易日历使用本地日历，不提供财务数据。
type Provider struct {
	requester httpx.Requester
	endpoints Endpoints
	calendar  *timing.Calendar
	now       func() time.Time
	log       *logrus.Entry
	closed    atomic.Bool
}

// Options 数据源参数
type Options struct {
	Endpoints Endpoints
	Calendar  *timing.Calendar
	Now       func() time.Time
	Logger    *logrus.Entry
}

// NewProvider 创建新浪数据源
func NewProvider(requester httpx.Requester, opts Options) *Provider {
	if opts.Endpoints == (Endpoints{}) {
		opts.Endpoints = DefaultEndpoints()
	}
	if opts.Calendar == nil {
		opts.Calendar = timing.DefaultCalendar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithComponent("SinaProvider")
	}
	return &Provider{
		requester: requester,
		endpoints: opts.Endpoints,
		calendar:  opts.Calendar,
		now:       opts.Now,
		log:       opts.Logger,
	}
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return Name
}

// IsHealthy 未关闭即视为健康
func (p *Provider) IsHealthy() bool {
	return !p.closed.Load()
}

// Close 关闭提供商，清理资源
func (p *Provider) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if closer, ok := p.requester.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (p *Provider) execute(ctx context.Context, spec httpx.RequestSpec) (*httpx.RawResponse, error) {
	if p.closed.Load() {
		return nil, core.ErrProviderClosed
	}
	return p.requester.Execute(ctx, spec.WithHeader("Referer", "https://finance.sina.com.cn/"))
}

// Search 通过新浪 suggest 接口搜索证券
func (p *Provider) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.NewValidationError("search query is empty")
	}

	spec := httpx.Get(p.endpoints.Suggest,
		httpx.P("type", "11,12,13,14,15"),
		httpx.P("key", query),
		httpx.P("name", "suggestvalue"),
	)
	raw, err := p.execute(ctx, spec)
	if err != nil {
		return nil, err
	}
	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	entries := suggestEntries(text)
	return core.CollectRows(p.log, "search", entries, func(_ int, fields []string) (core.SearchResult, error) {
		return parseSuggest(fields)
	})
}

// GetQuote 获取沪深京证券的实时行情
func (p *Provider) GetQuote(ctx context.Context, input string) (*core.Quote, error) {
	sym, err := core.ResolveSymbol(ctx, p, input, symbol.BackendSina)
	if err != nil {
		return nil, err
	}
	switch sym.Exchange {
	case symbol.ExchangeUnknown:
		return nil, apperr.NewInvalidSymbolError(input, "exchange cannot be determined")
	case symbol.ExchangeHK:
		return nil, apperr.NewNotSupportedError(Name, "hong kong quote")
	}

	raw, err := p.execute(ctx, httpx.Get(p.endpoints.Quote+sym.Canonical))
	if err != nil {
		return nil, err
	}
	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	fields, ok := quoteFields(text, sym.Canonical)
	if !ok {
		return nil, apperr.NewInvalidSymbolError(input, "no quote returned")
	}
	q, err := parseQuote(fields, sym.As(symbol.BackendDatacenter).Canonical)
	if err != nil {
		return nil, apperr.NewValidationError(err.Error())
	}
	if err := core.ValidateQuote(q); err != nil {
		return nil, err
	}
	return q, nil
}

// GetFinancials 新浪没有可用的财务摘要接口
func (p *Provider) GetFinancials(ctx context.Context, input string, reportType core.ReportType) ([]core.FinancialStatementRow, error) {
	return nil, apperr.NewNotSupportedError(Name, "GetFinancials")
}

// GetTradingCalendar 由本地日历给出区间内的交易日
//
// 内置表之外的月份由日历的远程来源补齐，无法补齐时返回 NotSupportedError。
func (p *Provider) GetTradingCalendar(ctx context.Context, r core.DateRange) ([]core.TradingDate, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := p.calendar.Ensure(ctx, r.Start, r.End); err != nil {
		if errors.Is(err, timing.ErrNotCovered) {
			return nil, apperr.NewNotSupportedError(Name, err.Error())
		}
		return nil, err
	}
	days := p.calendar.TradingDays(r.Start, r.End)
	out := make([]core.TradingDate, 0, len(days))
	for _, d := range days {
		out = append(out, core.TradingDate{Date: d, Exchange: core.CalendarExchange})
	}
	return out, nil
}

var (
	_ core.DataSource = (*Provider)(nil)
	_ core.Closable   = (*Provider)(nil)
)
