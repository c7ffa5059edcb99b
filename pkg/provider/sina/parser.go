package sina

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"stockdata/pkg/httpx"
	"stockdata/pkg/indicator"
	"stockdata/pkg/parser"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/symbol"
	"stockdata/pkg/timing"
)

// 行情字段下标
const (
	fieldName      = 0
	fieldOpen      = 1
	fieldPrevClose = 2
	fieldPrice     = 3
	fieldHigh      = 4
	fieldLow       = 5
	fieldVolume    = 8
	fieldAmount    = 9
	fieldDate      = 30
	fieldTime      = 31
	minQuoteFields = 32
)

// decodeText 按 Content-Type 声明的字符集解码，未声明时按 GBK 处理
func decodeText(raw *httpx.RawResponse) (string, error) {
	if _, params, err := mime.ParseMediaType(raw.ContentType); err == nil && params["charset"] != "" {
		return parser.Text(raw)
	}
	return gbkToUtf8(raw.Body)
}

// gbkToUtf8 将GBK编码转换为UTF-8
func gbkToUtf8(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("decode gbk: %w", err)
	}
	return string(out), nil
}

// quoteFields 找到 var hq_str_<sym>="..." 并拆分字段，内容为空表示代码不存在
func quoteFields(text, sym string) ([]string, bool) {
	prefix := "hq_str_" + sym + "="
	for _, line := range strings.Split(text, ";") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "var ")
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		value := strings.Trim(strings.TrimPrefix(line, prefix), `"`)
		if value == "" {
			return nil, false
		}
		return strings.Split(value, ","), true
	}
	return nil, false
}

// parseQuote 解析沪深京行情，成交量单位为股
func parseQuote(fields []string, display string) (*core.Quote, error) {
	if len(fields) < minQuoteFields {
		return nil, fmt.Errorf("quote has %d fields, want at least %d", len(fields), minQuoteFields)
	}

	price, err := core.FloatField(fields, fieldPrice, "price")
	if err != nil {
		return nil, err
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04:05",
		strings.TrimSpace(fields[fieldDate])+" "+strings.TrimSpace(fields[fieldTime]), timing.Shanghai)
	if err != nil {
		return nil, fmt.Errorf("quote time: %w", err)
	}

	q := &core.Quote{
		Symbol:    display,
		Name:      strings.TrimSpace(fields[fieldName]),
		Price:     price,
		Open:      core.OptionalFloatField(fields, fieldOpen),
		High:      core.OptionalFloatField(fields, fieldHigh),
		Low:       core.OptionalFloatField(fields, fieldLow),
		PrevClose: core.OptionalFloatField(fields, fieldPrevClose),
		Volume:    core.OptionalFloatField(fields, fieldVolume),
		Amount:    core.OptionalFloatField(fields, fieldAmount),
		Timestamp: ts,
		Source:    Name,
	}

	// 集合竞价前现价为 0，此时不计算涨跌
	if q.PrevClose != nil && *q.PrevClose > 0 && price > 0 {
		change := indicator.Round2(price - *q.PrevClose)
		pct := indicator.Round2((price - *q.PrevClose) / *q.PrevClose * 100)
		q.Change, q.ChangePercent = &change, &pct
	}
	return q, nil
}

// suggestEntries 拆分 var suggestvalue="a,b,...;c,d,...";
func suggestEntries(text string) [][]string {
	_, value, ok := strings.Cut(text, "=")
	if !ok {
		return nil
	}
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, ";")
	value = strings.Trim(value, `"`)

	var entries [][]string
	for _, item := range strings.Split(value, ";") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		entries = append(entries, strings.Split(item, ","))
	}
	return entries
}

// parseSuggest 条目字段依次为 关键词,类型,代码,新浪代码,名称,...
func parseSuggest(fields []string) (core.SearchResult, error) {
	if len(fields) < 5 {
		return core.SearchResult{}, fmt.Errorf("suggest entry has %d fields", len(fields))
	}
	code := strings.TrimSpace(fields[2])
	name := strings.TrimSpace(fields[4])
	if code == "" || name == "" {
		return core.SearchResult{}, fmt.Errorf("suggest entry lacks code or name")
	}

	result := core.SearchResult{
		Code: code,
		Name: name,
		Type: strings.TrimSpace(fields[1]),
	}
	if sym, err := symbol.Normalize(strings.TrimSpace(fields[3]), symbol.BackendDatacenter); err == nil {
		result.Exchange = string(sym.Exchange)
		result.Symbol = sym.Canonical
	}
	return result, nil
}
