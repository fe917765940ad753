// Package proxy 处理代理仓库请求：已缓存的二进制视为不可变，元数据按仓库的过期策略刷新，
// 未命中时经连接池回源并原子落盘。
package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/repohub/internal/cache"
	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/errs"
	"github.com/any-hub/repohub/internal/expiry"
	"github.com/any-hub/repohub/internal/layout"
	"github.com/any-hub/repohub/internal/logging"
	"github.com/any-hub/repohub/internal/remote"
	"github.com/any-hub/repohub/internal/repository"
	"github.com/any-hub/repohub/internal/vfs"
)

// State 标识单次请求走过的分支。
type State string

const (
	LocalFresh                State = "local_fresh"
	LocalExpiredMetadata      State = "local_expired_metadata"
	LocalMissingOrBinaryStale State = "local_missing"
	RemoteFetchFailed         State = "remote_fetch_failed"
)

// Observer 接收缓存与回源结果，由 metrics 实现。
type Observer interface {
	CacheHit(repository string)
	CacheMiss(repository string)
	Fetch(repository string, elapsed time.Duration, bytes int64, err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)                           {}
func (nopObserver) CacheMiss(string)                          {}
func (nopObserver) Fetch(string, time.Duration, int64, error) {}

// Result 是已打开的缓存条目，调用方负责关闭 Reader。
type Result struct {
	*cache.ReadResult
	State    State
	CacheHit bool
	// Stale 表示元数据刷新失败，返回的是旧副本。
	Stale bool
}

// Resolver 可并发使用，同一目标的并发回源会被合并。
type Resolver struct {
	fs         *vfs.FileSystem
	fetcher    *remote.Fetcher
	strategies expiry.Selector
	logger     *logrus.Logger
	observer   Observer
	inflight   singleflight.Group
}

// NewResolver 组装解析器。校验和策略从 fs 读本地 sidecar，经 fetcher 读远端 sidecar。
func NewResolver(fs *vfs.FileSystem, fetcher *remote.Fetcher, logger *logrus.Logger, observer Observer) *Resolver {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{
		fs:      fs,
		fetcher: fetcher,
		strategies: expiry.Selector{
			Checksum: expiry.ChecksumStrategy{Local: fs, Remote: fetcher},
			Refresh:  expiry.RefreshStrategy{},
		},
		logger:   logger,
		observer: observer,
	}
}

// WithStrategies 替换过期策略，供测试使用。
func (r *Resolver) WithStrategies(sel expiry.Selector) *Resolver {
	r.strategies = sel
	return r
}

// FetchOrServe 返回 p 的缓存副本，必要时先回源。
func (r *Resolver) FetchOrServe(ctx context.Context, repo *repository.Repository, p vfs.Path) (*Result, error) {
	if repo.Type() != repository.Proxy {
		return nil, fmt.Errorf("%s is not a proxy repository", repo.Key())
	}
	if !repo.InService() {
		return nil, fmt.Errorf("%s: %w", repo.Key(), errs.ErrOutOfService)
	}
	provider := repo.LayoutProvider()
	rel := p.Relativize()
	if err := provider.ValidatePath(rel); err != nil {
		return nil, err
	}
	metadata := provider.IsMetadataPath(rel)

	local, err := r.fs.Open(ctx, repo, p)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrNotFound):
		local = nil
	default:
		return nil, err
	}

	if local != nil {
		if !metadata {
			r.observer.CacheHit(repo.Key())
			return &Result{ReadResult: local, State: LocalFresh, CacheHit: true}, nil
		}
		if cache.NewFreshness(repo.MetadataFreshness()).Fresh(local.Entry) {
			r.observer.CacheHit(repo.Key())
			return &Result{ReadResult: local, State: LocalFresh, CacheHit: true}, nil
		}
		decision := r.strategies.For(repo).DetermineRefetch(ctx, repo, p)
		r.logDecision(repo, rel, decision)
		if !decision.ShouldFetch() {
			r.observer.CacheHit(repo.Key())
			return &Result{ReadResult: local, State: LocalFresh, CacheHit: true}, nil
		}

		fetched, fetchErr := r.fetch(ctx, repo, p)
		if fetchErr == nil {
			local.Reader.Close()
			fetched.State = LocalExpiredMetadata
			return fetched, nil
		}
		if ctx.Err() != nil {
			local.Reader.Close()
			return nil, fetchErr
		}
		r.logger.WithFields(logging.RequestFields(repo.StorageID(), repo.ID(), string(repo.Type()), repo.Layout(), rel, true)).
			WithField("action", "proxy_fetch").
			WithError(fetchErr).
			Warn("metadata_refresh_failed_serving_stale")
		return &Result{ReadResult: local, State: RemoteFetchFailed, CacheHit: true, Stale: true}, nil
	}

	r.observer.CacheMiss(repo.Key())
	return r.fetch(ctx, repo, p)
}

// fetch 合并同一目标的并发下载。下载本身脱离调用方的取消信号，
// 一个调用方离开不会中断其他等待者；下载完成后每个调用方各自打开 reader。
func (r *Resolver) fetch(ctx context.Context, repo *repository.Repository, p vfs.Path) (*Result, error) {
	key := p.String()
	ch := r.inflight.DoChan(key, func() (interface{}, error) {
		return r.download(context.WithoutCancel(ctx), repo, p)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	}
	opened, err := r.fs.Open(ctx, repo, p)
	if err != nil {
		return nil, err
	}
	return &Result{ReadResult: opened, State: LocalMissingOrBinaryStale}, nil
}

func (r *Resolver) download(ctx context.Context, repo *repository.Repository, p vfs.Path) (*cache.Entry, error) {
	rel := p.Relativize()
	target := remote.URL(repo, rel)
	started := time.Now()

	var expected map[checksum.Algorithm]string
	if repo.ChecksumValidation() && !checksum.IsChecksumPath(rel) {
		var err error
		expected, err = r.expectedChecksum(ctx, repo, rel)
		if err != nil {
			r.observer.Fetch(repo.Key(), time.Since(started), 0, err)
			return nil, err
		}
	}

	resp, err := r.fetcher.Get(ctx, repo.RemoteURL(), target, repo.Credentials())
	if err != nil {
		r.observer.Fetch(repo.Key(), time.Since(started), 0, err)
		r.logFetch(repo, rel, target, 0, started, err)
		return nil, err
	}
	defer resp.Body.Close()

	opts := cache.PutOptions{Sidecars: !checksum.IsChecksumPath(rel)}
	if len(expected) > 0 {
		opts.Validate = func(actual checksum.Digests) error {
			for alg, want := range expected {
				if got := actual[alg]; got != want {
					return &errs.UpstreamError{
						URL: target,
						Err: fmt.Errorf("%w: %s expected %s, computed %s", errs.ErrChecksumMismatch, alg, want, got),
					}
				}
			}
			return nil
		}
	}

	entry, err := r.fs.Store().Put(ctx, r.fs.Locator(repo, p), resp.Body, opts)
	if err != nil && !errors.Is(err, errs.ErrUpstream) {
		err = &errs.UpstreamError{URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	var size int64
	if entry != nil {
		size = entry.SizeBytes
	}
	r.observer.Fetch(repo.Key(), time.Since(started), size, err)
	r.logFetch(repo, rel, target, resp.StatusCode, started, err)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// expectedChecksum 读取上游的 sha1 sidecar，缺失时退回 md5；两者都没有则不做校验。
func (r *Resolver) expectedChecksum(ctx context.Context, repo *repository.Repository, rel string) (map[checksum.Algorithm]string, error) {
	for _, alg := range checksum.Preferred {
		sum, err := r.fetcher.Checksum(ctx, repo, rel, alg)
		switch {
		case err == nil && sum != "":
			return map[checksum.Algorithm]string{alg: sum}, nil
		case err == nil, errors.Is(err, errs.ErrNotFound):
			continue
		default:
			return nil, err
		}
	}
	r.logger.WithFields(logging.RequestFields(repo.StorageID(), repo.ID(), string(repo.Type()), repo.Layout(), rel, false)).
		WithField("action", "proxy_fetch").
		Warn("remote_checksum_missing")
	return nil, nil
}

// Evict 删除 p 的缓存副本及其 sidecar。
func (r *Resolver) Evict(ctx context.Context, repo *repository.Repository, p vfs.Path) error {
	if repo.Type() != repository.Proxy {
		return fmt.Errorf("%s is not a proxy repository", repo.Key())
	}
	return r.fs.Store().Remove(ctx, r.fs.Locator(repo, p))
}

func (r *Resolver) logDecision(repo *repository.Repository, rel string, decision expiry.Decision) {
	r.logger.WithFields(logging.RequestFields(repo.StorageID(), repo.ID(), string(repo.Type()), repo.Layout(), rel, true)).
		WithFields(logrus.Fields{"action": "metadata_expiry", "decision": decision.String()}).
		Debug("metadata_expiry_decision")
}

func (r *Resolver) logFetch(repo *repository.Repository, rel, target string, status int, started time.Time, err error) {
	entry := r.logger.WithFields(logging.RequestFields(repo.StorageID(), repo.ID(), string(repo.Type()), repo.Layout(), rel, false)).
		WithFields(logrus.Fields{
			"action":          "proxy_fetch",
			"upstream":        target,
			"upstream_status": status,
			"elapsed_ms":      time.Since(started).Milliseconds(),
		})
	if purl := layout.PURL(repo.LayoutProvider(), rel); purl != "" {
		entry = entry.WithField("purl", purl)
	}
	if err != nil {
		entry.WithError(err).Warn("proxy_fetch_failed")
		return
	}
	entry.Info("proxy_fetch_stored")
}
