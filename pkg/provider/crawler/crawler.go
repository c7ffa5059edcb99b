// Package crawler 基于东方财富、雪球、上交所和深交所公开接口的数据源
package crawler

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/httpx"
	"stockdata/pkg/logger"
	"stockdata/pkg/parser"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/timing"
)

// Name 数据源名称
const Name = "crawler"

// 东财数据中心的"无数据"返回码
const codeNoData = 9201

// Crawler 爬虫数据源
type Crawler struct {
	requester   httpx.Requester
	endpoints   Endpoints
	calendar    *timing.Calendar
	adjust      int
	xueqiuToken string
	now         func() time.Time
	log         *logrus.Entry
	closed      atomic.Bool
}

// Options 爬虫参数
type Options struct {
	Endpoints   Endpoints
	Calendar    *timing.Calendar
	Adjust      int // 0 不复权, 1 前复权, 2 后复权
	XueqiuToken string
	Now         func() time.Time
	Logger      *logrus.Entry
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return Options{
		Endpoints: DefaultEndpoints(),
		Adjust:    1,
	}
}

// New 创建爬虫数据源
func New(requester httpx.Requester, opts Options) *Crawler {
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
		opts.Logger = logger.WithComponent("Crawler")
	}
	return &Crawler{
		requester:   requester,
		endpoints:   opts.Endpoints,
		calendar:    opts.Calendar,
		adjust:      opts.Adjust,
		xueqiuToken: opts.XueqiuToken,
		now:         opts.Now,
		log:         opts.Logger,
	}
}

// Name 返回数据源名称
func (c *Crawler) Name() string {
	return Name
}

// IsHealthy 未关闭即视为健康
func (c *Crawler) IsHealthy() bool {
	return !c.closed.Load()
}

// Close 关闭底层执行器
func (c *Crawler) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if closer, ok := c.requester.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Endpoints 返回当前使用的上游地址
func (c *Crawler) Endpoints() Endpoints {
	return c.endpoints
}

// fetch 执行请求并解析为 JSON 或 JSONP
func (c *Crawler) fetch(ctx context.Context, spec httpx.RequestSpec, shape parser.Shape) (*parser.Payload, error) {
	if c.closed.Load() {
		return nil, core.ErrProviderClosed
	}
	raw, err := c.requester.Execute(ctx, spec)
	if err != nil {
		return nil, err
	}
	return parser.Parse(raw, shape)
}

// datacenter 请求东财数据中心报表，返回 result.data 中的行
//
// 只有 success 为 true、code 为 0 且 result 非空时才算成功；
// code 9201 表示没有数据，返回空切片。
func (c *Crawler) datacenter(ctx context.Context, spec httpx.RequestSpec) ([]interface{}, error) {
	payload, err := c.fetch(ctx, spec, parser.ShapeObject)
	if err != nil {
		return nil, err
	}

	code := payload.Get("code").Int()
	success := payload.Get("success").Bool()
	result := payload.Get("result")

	if code == codeNoData {
		return []interface{}{}, nil
	}
	if code != 0 || !success || !result.Exists() || result.Type == gjson.Null {
		msg := payload.Get("message").String()
		if msg == "" {
			msg = "unknown error"
		}
		return nil, apperr.NewUpstreamMessageError(fmt.Sprintf("datacenter %s: code %d: %s",
			reportOf(spec), code, msg)).WithContext("upstream_code", code)
	}

	tree, _ := payload.Object()
	res, _ := tree["result"].(map[string]interface{})
	rows, ok := res["data"].([]interface{})
	if !ok {
		if res["data"] == nil {
			return []interface{}{}, nil
		}
		return nil, apperr.NewParseError("datacenter result.data is not an array", nil)
	}
	return rows, nil
}

// reportQuery 数据中心报表查询参数
type reportQuery struct {
	Name        string
	Columns     string
	Filter      string
	SortColumns string
	SortTypes   string
	PageSize    int
	Source      string
	Distinct    string
	JSONP       bool // 网页版接口需要 callback
}

func (c *Crawler) reportSpec(base string, q reportQuery) httpx.RequestSpec {
	source := q.Source
	if source == "" {
		source = "HSF10"
	}
	client := "PC"
	if source == "WEB" {
		client = "WEB"
	}

	params := []httpx.Param{
		httpx.P("reportName", q.Name),
		httpx.P("columns", q.Columns),
	}
	if q.Filter != "" {
		params = append(params, httpx.P("filter", q.Filter))
	}
	if q.Distinct != "" {
		params = append(params, httpx.P("distinct", q.Distinct))
	}
	if q.SortColumns != "" {
		params = append(params, httpx.P("sortColumns", q.SortColumns), httpx.P("sortTypes", q.SortTypes))
	}
	params = append(params, httpx.P("pageNumber", "1"))
	if q.PageSize > 0 {
		params = append(params, httpx.P("pageSize", strconv.Itoa(q.PageSize)))
	}
	params = append(params, httpx.P("source", source), httpx.P("client", client))
	if q.JSONP {
		params = append(params, httpx.P("callback", c.callback()), httpx.P("_", c.millis()))
	}

	return httpx.Get(base, params...).WithHeader("Referer", "https://emweb.securities.eastmoney.com/")
}

func reportOf(spec httpx.RequestSpec) string {
	for _, p := range spec.Params {
		if p.Key == "reportName" {
			return p.Value
		}
	}
	return spec.URL
}

// asRow 把解析树中的一行转为对象
func asRow(v interface{}) (map[string]interface{}, error) {
	row, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("row is %T, not an object", v)
	}
	return row, nil
}

// callback 生成 jQuery 风格的 JSONP 回调名
func (c *Crawler) callback() string {
	var digits [20]byte
	digits[0] = byte('1' + rand.Intn(9))
	for i := 1; i < len(digits); i++ {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return "jQuery" + string(digits[:]) + "_" + c.millis()
}

func (c *Crawler) millis() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10)
}

// 确保 Crawler 实现了所需的接口
var _ core.DataSource = (*Crawler)(nil)
var _ core.Closable = (*Crawler)(nil)
