// Package remote 向代理上游发起 GET 请求。每个请求在整个生命周期内持有一个连接池租约，
// 响应体关闭或请求失败时恰好释放一次。
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/repohub/internal/errs"
	"github.com/any-hub/repohub/internal/pool"
	"github.com/any-hub/repohub/internal/repository"
)

// ErrCircuitOpen 表示请求被打开的熔断器拒绝。
var ErrCircuitOpen = errors.New("circuit breaker open")

const defaultUserAgent = "repohub/1.0"

// Response 是成功的上游响应，Body 必须关闭。
type Response struct {
	URL        string
	StatusCode int
	// Size 未知时为 -1。
	Size    int64
	ModTime time.Time
	Body    io.ReadCloser
}

// Fetcher 经连接池发起 GET 请求。
type Fetcher struct {
	pool      *pool.Manager
	breakers  *breakers
	userAgent string
	timeout   time.Duration
	logger    *logrus.Logger
}

// Option 配置 Fetcher。
type Option func(*Fetcher)

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout 限制单个请求的总耗时，包括响应体传输。
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithBreakerThreshold 设置连续失败多少次后打开 origin 的熔断器。
func WithBreakerThreshold(n int64) Option {
	return func(f *Fetcher) {
		f.breakers = newBreakers(n)
	}
}

func NewFetcher(manager *pool.Manager, opts ...Option) *Fetcher {
	f := &Fetcher{
		pool:      manager,
		breakers:  newBreakers(defaultTripThreshold),
		userAgent: defaultUserAgent,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get 经 origin 的连接池获取 target。非 2xx 状态返回 *errs.UpstreamError，
// 404 与 410 同时匹配 errs.ErrNotFound。
func (f *Fetcher) Get(ctx context.Context, origin, target string, creds repository.Credentials) (*Response, error) {
	originKey := pool.OriginKey(origin)
	breaker := f.breakers.get(originKey)
	if !breaker.Ready() {
		return nil, &errs.UpstreamError{URL: target, Err: fmt.Errorf("%s: %w", originKey, ErrCircuitOpen)}
	}

	lease, err := f.pool.Acquire(ctx, origin)
	if err != nil {
		return nil, err
	}

	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if f.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	done := func() {
		cancel()
		lease.Release()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		done()
		return nil, &errs.UpstreamError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	if !creds.Empty() {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	start := time.Now()
	resp, err := f.pool.Client().Do(req)
	if err != nil {
		done()
		if ctx.Err() == nil {
			breaker.Fail()
		}
		f.log(target, 0, start, err)
		return nil, &errs.UpstreamError{URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		done()
		if isOriginFailure(resp.StatusCode) {
			breaker.Fail()
		} else {
			breaker.Success()
		}
		f.log(target, resp.StatusCode, start, nil)
		return nil, &errs.UpstreamError{URL: target, StatusCode: resp.StatusCode}
	}

	breaker.Success()
	f.log(target, resp.StatusCode, start, nil)
	out := &Response{
		URL:        target,
		StatusCode: resp.StatusCode,
		Size:       resp.ContentLength,
		Body:       &leasedBody{ReadCloser: resp.Body, release: done},
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			out.ModTime = t
		}
	}
	return out, nil
}

// GetSmall 获取 target 并最多返回 limit 字节的响应体。
func (f *Fetcher) GetSmall(ctx context.Context, origin, target string, creds repository.Credentials, limit int64) ([]byte, error) {
	resp, err := f.Get(ctx, origin, target, creds)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &errs.UpstreamError{URL: target, Err: err}
	}
	return body, nil
}

// BreakerStates 按 origin 返回 "open" 或 "closed"。
func (f *Fetcher) BreakerStates() map[string]string {
	return f.breakers.states()
}

func isOriginFailure(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func (f *Fetcher) log(target string, status int, start time.Time, err error) {
	if f.logger == nil {
		return
	}
	fields := logrus.Fields{
		"action":          "upstream_get",
		"upstream":        target,
		"upstream_status": status,
		"elapsed_ms":      time.Since(start).Milliseconds(),
	}
	if err != nil {
		f.logger.WithFields(fields).WithError(err).Warn("upstream_request_failed")
		return
	}
	f.logger.WithFields(fields).Debug("upstream_request")
}

// leasedBody 在 Close 时释放连接池租约与请求 context，只释放一次。
type leasedBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *leasedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
