// Package errs 定义仓库解析引擎对外暴露的错误分类，所有组件以返回值方式传递，
// 调用方通过 errors.Is 判断类别。
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrInvalidPath 表示路径无法被仓库的 layout 解析。
	ErrInvalidPath = errors.New("invalid path")
	// ErrNotFound 表示本地、成员仓或上游均无法满足请求。
	ErrNotFound = errors.New("not found")
	// ErrOutOfService 表示目标仓库已被停用，在任何 I/O 之前短路返回。
	ErrOutOfService = errors.New("repository out of service")
	// ErrRoutingDenied 仅在组聚合内部使用，表示成员被路由规则跳过。
	ErrRoutingDenied = errors.New("routing denied")
	// ErrUpstream 表示远端拉取失败（网络、非 2xx、校验失败、超时）。
	ErrUpstream = errors.New("upstream failure")
	// ErrPoolExhausted 表示连接池等待超过上限，对调用方视为 ErrUpstream 的一种。
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrChecksumMismatch 表示下载内容与远端 checksum 不一致。
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// PathError 记录 layout 拒绝的路径以及原因。
type PathError struct {
	Layout string
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: invalid path %q: %s", e.Layout, e.Path, e.Reason)
}

func (e *PathError) Unwrap() error {
	return ErrInvalidPath
}

// InvalidPath 构造 *PathError，便于 layout 实现统一报错。
func InvalidPath(layout, path, reason string) error {
	return &PathError{Layout: layout, Path: path, Reason: reason}
}

// UpstreamError 描述一次失败的远端请求。StatusCode 为 0 表示传输层错误。
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("upstream %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream %s: HTTP %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("upstream %s failed", e.URL)
	}
}

// Is 让 404/410 同时匹配 ErrNotFound，其余状态只匹配 ErrUpstream。
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
	}
	return false
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PoolExhaustedError 在限定时间内拿不到连接时返回。
type PoolExhaustedError struct {
	Origin string
	Wait   time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("connection pool for %s exhausted after %s", e.Origin, e.Wait)
}

func (e *PoolExhaustedError) Is(target error) bool {
	return target == ErrPoolExhausted || target == ErrUpstream
}

// IsRetrievalMiss 判断错误是否只代表“此来源没有”，组聚合据此继续尝试下一个成员。
func IsRetrievalMiss(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrRoutingDenied) ||
		errors.Is(err, ErrOutOfService)
}
