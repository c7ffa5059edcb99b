package httpx

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Param 有序查询参数，部分上游对参数顺序敏感
type Param struct {
	Key   string
	Value string
}

// RequestSpec 描述一次上游请求，由适配器构造、执行器消费
type RequestSpec struct {
	Method      string
	URL         string
	Params      []Param
	Body        []byte
	ContentType string
	Headers     map[string]string

	// Timeout 单次尝试超时，为零时使用执行器默认值
	Timeout time.Duration
	// MaxRetry 总尝试次数，为零时使用执行器默认值
	MaxRetry int
	// Idempotent 非 GET/HEAD 请求是否允许重试
	Idempotent bool
}

// Get 构造 GET 请求
func Get(rawURL string, params ...Param) RequestSpec {
	return RequestSpec{Method: http.MethodGet, URL: rawURL, Params: params}
}

// P 构造一个查询参数
func P(key, value string) Param {
	return Param{Key: key, Value: value}
}

// With 追加查询参数
func (s RequestSpec) With(params ...Param) RequestSpec {
	merged := make([]Param, 0, len(s.Params)+len(params))
	merged = append(merged, s.Params...)
	s.Params = append(merged, params...)
	return s
}

// WithHeader 设置请求头
func (s RequestSpec) WithHeader(key, value string) RequestSpec {
	headers := make(map[string]string, len(s.Headers)+1)
	for k, v := range s.Headers {
		headers[k] = v
	}
	headers[key] = value
	s.Headers = headers
	return s
}

// FullURL 按参数顺序拼接查询串
func (s RequestSpec) FullURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", err
	}
	if len(s.Params) == 0 {
		return u.String(), nil
	}

	var b strings.Builder
	b.WriteString(u.RawQuery)
	for _, p := range s.Params {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	u.RawQuery = b.String()
	return u.String(), nil
}

func (s RequestSpec) method() string {
	if s.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(s.Method)
}

func (s RequestSpec) retryable() bool {
	m := s.method()
	return s.Idempotent || m == http.MethodGet || m == http.MethodHead
}

// RawResponse 上游原始响应
type RawResponse struct {
	StatusCode  int
	Body        []byte
	ContentType string
	Header      http.Header
	URL         string
	Attempts    int
}
