package crawler

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Endpoints 爬虫使用的上游地址
type Endpoints struct {
	Kline         string // 东财历史 K 线
	XueqiuQuote   string // 雪球实时行情
	SSESearch     string // 上交所简称查询
	SZSECalendar  string // 深交所交易日历
	Datacenter    string // 东财数据中心（F10）
	DatacenterWeb string // 东财数据中心（网页版，JSONP）
	Report        string // 东财研报列表
	PlateList     string // 东财板块列表
	FundFlow      string // 东财日资金流向
	MarketIndex   string // 东财大盘指数
}

// DefaultEndpoints 返回线上地址
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Kline:         "https://push2his.eastmoney.com/api/qt/stock/kline/get",
		XueqiuQuote:   "https://stock.xueqiu.com/v5/stock/quote.json",
		SSESearch:     "https://www.sse.org.cn/api/report/shortname/gethangqing",
		SZSECalendar:  "https://www.szse.cn/api/report/exchange/onepersistenthour/monthList",
		Datacenter:    "https://datacenter.eastmoney.com/securities/api/data/v1/get",
		DatacenterWeb: "https://datacenter-web.eastmoney.com/api/data/v1/get",
		Report:        "https://reportapi.eastmoney.com/report/list",
		PlateList:     "https://push2.eastmoney.com/api/qt/clist/get",
		FundFlow:      "https://push2his.eastmoney.com/api/qt/stock/fflow/daykline/get",
		MarketIndex:   "https://push2.eastmoney.com/api/qt/ulist.np/get",
	}
}

// fields 配置键与字段的对应关系
func (e *Endpoints) fields() map[string]*string {
	return map[string]*string{
		"kline":          &e.Kline,
		"xueqiu_quote":   &e.XueqiuQuote,
		"sse_search":     &e.SSESearch,
		"szse_calendar":  &e.SZSECalendar,
		"datacenter":     &e.Datacenter,
		"datacenter_web": &e.DatacenterWeb,
		"report":         &e.Report,
		"plate_list":     &e.PlateList,
		"fund_flow":      &e.FundFlow,
		"market_index":   &e.MarketIndex,
	}
}

// Apply 按配置覆盖地址，不属于爬虫的键被忽略
func (e *Endpoints) Apply(overrides map[string]string) error {
	fields := e.fields()
	for key, value := range overrides {
		target, ok := fields[strings.ToLower(key)]
		if !ok || value == "" {
			continue
		}
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("endpoint %s: invalid url %q", key, value)
		}
		*target = value
	}
	return nil
}

// Keys 返回所有可覆盖的配置键
func (e Endpoints) Keys() []string {
	fields := e.fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithBase 把所有地址的 scheme 和 host 替换为 base，路径保持不变，测试时指向本地服务
func (e Endpoints) WithBase(base string) Endpoints {
	b, err := url.Parse(base)
	if err != nil {
		return e
	}
	out := e
	for _, target := range out.fields() {
		u, err := url.Parse(*target)
		if err != nil {
			continue
		}
		u.Scheme, u.Host = b.Scheme, b.Host
		*target = u.String()
	}
	return out
}
