// Package httpx 提供带连接池、单次超时和重试的上游请求执行器。
package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"stockdata/pkg/config"
	apperr "stockdata/pkg/error"
	"stockdata/pkg/limiter"
	"stockdata/pkg/logger"
)

// Requester 执行 RequestSpec 的抽象，适配器依赖它而不是具体执行器
type Requester interface {
	Execute(ctx context.Context, spec RequestSpec) (*RawResponse, error)
}

// Options 执行器参数
type Options struct {
	Timeout             time.Duration
	UserAgent           string
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Retry               limiter.RetryPolicy
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().HTTP)
}

// OptionsFromConfig 从配置构造执行器参数
func OptionsFromConfig(cfg config.HTTPConfig) Options {
	return Options{
		Timeout:             cfg.Timeout,
		UserAgent:           cfg.UserAgent,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		Retry: limiter.RetryPolicy{
			MaxAttempts:   cfg.MaxRetry,
			BaseDelay:     cfg.BaseDelay,
			MaxDelay:      cfg.MaxDelay,
			MaxRetryAfter: cfg.MaxRetryAfter,
		},
	}
}

// Executor HTTP 请求执行器，可并发使用
type Executor struct {
	opts       Options
	classifier *limiter.ErrorClassifier
	log        *logrus.Entry

	mu        sync.Mutex
	client    *http.Client
	transport *http.Transport
	closed    bool
}

// NewExecutor 创建执行器，连接池在第一次请求时初始化
func NewExecutor(opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Executor{
		opts:       opts,
		classifier: limiter.NewErrorClassifier(opts.Retry),
		log:        logger.WithComponent("HttpExecutor"),
	}
}

var errClosed = errors.New("executor closed")

func (e *Executor) httpClient() (*http.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errClosed
	}
	if e.client != nil {
		return e.client, nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	e.transport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        e.opts.MaxIdleConns,
		MaxIdleConnsPerHost: e.opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     e.opts.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
	e.client = &http.Client{
		Transport: e.transport,
		Jar:       jar,
	}
	return e.client, nil
}

// Execute 执行请求
//
// GET/HEAD 以及显式标记为幂等的请求在网络错误和 429/502/503/504 时按策略重试，
// MaxRetry 为总尝试次数。调用方 ctx 到期时返回 TimeoutError。
func (e *Executor) Execute(ctx context.Context, spec RequestSpec) (*RawResponse, error) {
	client, err := e.httpClient()
	if err != nil {
		return nil, apperr.NewNetworkError("http executor unavailable", err)
	}

	fullURL, err := spec.FullURL()
	if err != nil {
		return nil, apperr.NewNetworkError("invalid request url", err)
	}

	classifier := e.classifier
	if spec.MaxRetry > 0 && spec.MaxRetry != e.opts.Retry.MaxAttempts {
		policy := classifier.Policy()
		policy.MaxAttempts = spec.MaxRetry
		classifier = limiter.NewErrorClassifier(policy)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.opts.Timeout
	}

	log := e.log.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"method":     spec.method(),
		"url":        fullURL,
	})

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.NewTimeoutError(err)
		}

		start := time.Now()
		resp, err := e.attempt(ctx, client, spec, fullURL, timeout)
		if err == nil {
			resp.Attempts = attempt
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"status":  resp.StatusCode,
				"elapsed": time.Since(start),
				"bytes":   len(resp.Body),
			}).Debug("request completed")
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperr.NewTimeoutError(ctxErr)
		}
		if !spec.retryable() {
			return nil, err
		}

		retry, wait := classifier.Decide(err, attempt)
		if !retry {
			log.WithError(err).WithField("attempt", attempt).Debug("request failed")
			return nil, err
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait,
		}).Warn(classifier.GetRetryMessage(classifier.Classify(err), attempt))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperr.NewTimeoutError(ctx.Err())
		case <-timer.C:
		}
	}
}

func (e *Executor) attempt(ctx context.Context, client *http.Client, spec RequestSpec, fullURL string, timeout time.Duration) (*RawResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, spec.method(), fullURL, body)
	if err != nil {
		return nil, apperr.NewNetworkError("create request failed", err)
	}

	req.Header.Set("User-Agent", e.opts.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	if spec.ContentType != "" {
		req.Header.Set("Content-Type", spec.ContentType)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.NewNetworkError("http request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewNetworkError("read response failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upErr := apperr.NewUpstreamError(resp.StatusCode, data).WithContext("url", fullURL)
		if d, ok := limiter.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			upErr.WithContext(limiter.RetryAfterKey, d)
		}
		return nil, upErr
	}

	return &RawResponse{
		StatusCode:  resp.StatusCode,
		Body:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		URL:         fullURL,
	}, nil
}

// Close 关闭空闲连接，之后的请求返回 NetworkError
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	e.client = nil
	e.transport = nil
	return nil
}
