package limiter

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperr "stockdata/pkg/error"
)

// ErrorLevel 定义错误的严重级别
type ErrorLevel int

const (
	LevelFatal     ErrorLevel = iota // 致命级，立即终止
	LevelNetwork                     // 网络错误，可重试
	LevelTransient                   // 上游限流或暂不可用，可重试
	LevelInvalid                     // 请求或响应本身有问题，重试无意义
	LevelUnknown                     // 未知错误
)

// 默认重试参数
const (
	DefaultMaxAttempts   = 3
	DefaultBaseDelay     = 500 * time.Millisecond
	DefaultMaxDelay      = 5 * time.Second
	DefaultMaxRetryAfter = 30 * time.Second
)

// RetryAfterKey 上游错误中 Retry-After 等待时长的上下文键
const RetryAfterKey = "retry_after"

// RetryPolicy 重试策略参数
type RetryPolicy struct {
	MaxAttempts   int           // 总尝试次数，包含第一次
	BaseDelay     time.Duration // 第一次重试前的等待
	MaxDelay      time.Duration // 指数退避上限
	MaxRetryAfter time.Duration // Retry-After 上限
}

// DefaultRetryPolicy 返回默认策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   DefaultMaxAttempts,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
		MaxRetryAfter: DefaultMaxRetryAfter,
	}
}

// ErrorClassifier 负责根据错误类型进行分类
type ErrorClassifier struct {
	policy RetryPolicy
}

// NewErrorClassifier 创建新的错误分类器
func NewErrorClassifier(policy RetryPolicy) *ErrorClassifier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	return &ErrorClassifier{policy: policy}
}

// Policy 返回当前策略
func (c *ErrorClassifier) Policy() RetryPolicy {
	return c.policy
}

// retryableStatus 可重试的上游状态码
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// Classify 根据错误分类错误级别
func (c *ErrorClassifier) Classify(err error) ErrorLevel {
	if err == nil {
		return LevelUnknown
	}

	switch apperr.CodeOf(err) {
	case apperr.CodeNetwork:
		return LevelNetwork
	case apperr.CodeUpstream:
		if retryableStatus[apperr.StatusCode(err)] {
			return LevelTransient
		}
		return LevelFatal
	case apperr.CodeTimeout:
		return LevelFatal
	case apperr.CodeInvalidSymbol, apperr.CodeParse, apperr.CodeValidation, apperr.CodeNotSupported:
		return LevelInvalid
	}

	return classifyMessage(err)
}

// classifyMessage 对未归类的原始错误按内容判断
func classifyMessage(err error) ErrorLevel {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return LevelNetwork
	case strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "bad request"):
		return LevelInvalid
	}

	return LevelUnknown
}

// GetRetryStrategy 根据错误级别和已完成的尝试次数给出重试决策
// attempt 从 1 开始计数
func (c *ErrorClassifier) GetRetryStrategy(level ErrorLevel, attempt int) (shouldRetry bool, waitDuration time.Duration) {
	switch level {
	case LevelNetwork, LevelTransient:
		if attempt >= c.policy.MaxAttempts {
			return false, 0
		}
		return true, c.Backoff(attempt)
	default:
		return false, 0
	}
}

// Decide 综合分类、退避和 Retry-After 给出下一次尝试前的等待
func (c *ErrorClassifier) Decide(err error, attempt int) (shouldRetry bool, wait time.Duration) {
	level := c.Classify(err)
	shouldRetry, wait = c.GetRetryStrategy(level, attempt)
	if !shouldRetry {
		return false, 0
	}

	if after, ok := retryAfterOf(err); ok {
		if after > c.policy.MaxRetryAfter {
			after = c.policy.MaxRetryAfter
		}
		if after > wait {
			wait = after
		}
	}
	return true, wait
}

// Backoff 指数退避：base * 2^(attempt-1)，不超过 MaxDelay
func (c *ErrorClassifier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := c.policy.BaseDelay
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= c.policy.MaxDelay {
			return c.policy.MaxDelay
		}
	}
	if wait > c.policy.MaxDelay {
		return c.policy.MaxDelay
	}
	return wait
}

func retryAfterOf(err error) (time.Duration, bool) {
	var be *apperr.BaseError
	if !errors.As(err, &be) {
		return 0, false
	}
	status := apperr.StatusCode(err)
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return 0, false
	}
	d, ok := be.Context[RetryAfterKey].(time.Duration)
	return d, ok
}

// ParseRetryAfter 解析 Retry-After 头，支持秒数和 HTTP 日期两种形式
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// GetRetryMessage 获取重试提示信息
func (c *ErrorClassifier) GetRetryMessage(level ErrorLevel, attempt int) string {
	switch level {
	case LevelFatal:
		return "致命错误，立即终止操作"
	case LevelNetwork, LevelTransient:
		if attempt >= c.policy.MaxAttempts {
			return "已达到最大尝试次数，终止此次操作"
		}
		return "暂时性错误，等待重试..."
	case LevelInvalid:
		return "请求或响应无效，跳过重试"
	case LevelUnknown:
		return "未知错误，跳过重试"
	default:
		return "错误处理中..."
	}
}

func (l ErrorLevel) String() string {
	switch l {
	case LevelFatal:
		return "fatal"
	case LevelNetwork:
		return "network"
	case LevelTransient:
		return "transient"
	case LevelInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}
