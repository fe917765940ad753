// Package engine 把仓库快照、本地存储、代理与组解析器以及连接池组合成对外操作：
// Resolve、FetchOrServe 与 PoolStats。
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/repohub/internal/cache"
	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/errs"
	"github.com/any-hub/repohub/internal/group"
	"github.com/any-hub/repohub/internal/layout"
	"github.com/any-hub/repohub/internal/logging"
	"github.com/any-hub/repohub/internal/pool"
	"github.com/any-hub/repohub/internal/proxy"
	"github.com/any-hub/repohub/internal/remote"
	"github.com/any-hub/repohub/internal/repository"
	"github.com/any-hub/repohub/internal/vfs"
)

// ErrUnsupported 表示操作不适用于该仓库类型，例如向代理仓库部署。
var ErrUnsupported = errors.New("operation not supported for repository type")

// Recorder 接收请求结果，由 metrics.Collector 实现。
type Recorder interface {
	proxy.Observer
	Request(repository, repoType, outcome string)
}

// Options 携带共享依赖，Pool 与 Store 必填。
type Options struct {
	Store    cache.Store
	Pool     *pool.Manager
	Fetcher  *remote.Fetcher
	Logger   *logrus.Logger
	Recorder Recorder
}

// Engine 可并发使用。Reload 原子替换快照，进行中的请求继续使用开始时的快照。
type Engine struct {
	holder   *repository.Holder
	fs       *vfs.FileSystem
	pool     *pool.Manager
	fetcher  *remote.Fetcher
	proxies  *proxy.Resolver
	groups   *group.Resolver
	logger   *logrus.Logger
	recorder Recorder

	capsMu sync.Mutex
	// capped 记录上一次快照中带显式上限的 origin，重载时用于复位被删除的上限。
	capped map[string]bool
}

// Artifact 是已打开的数据流及提供它的仓库，调用方必须关闭 Body。
type Artifact struct {
	Path     vfs.Path
	ServedBy *repository.Repository
	Entry    cache.Entry
	Body     io.ReadSeekCloser
	CacheHit bool
	Stale    bool
}

func New(snap *repository.Snapshot, opts Options) (*Engine, error) {
	if snap == nil {
		return nil, errors.New("engine: snapshot required")
	}
	if opts.Store == nil || opts.Pool == nil {
		return nil, errors.New("engine: store and pool required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = remote.NewFetcher(opts.Pool, remote.WithLogger(logger))
	}
	var observer proxy.Observer
	if opts.Recorder != nil {
		observer = opts.Recorder
	}
	fs := vfs.NewFileSystem(opts.Store)
	e := &Engine{
		holder:   repository.NewHolder(snap),
		fs:       fs,
		pool:     opts.Pool,
		fetcher:  fetcher,
		proxies:  proxy.NewResolver(fs, fetcher, logger, observer),
		groups:   group.NewResolver(logger),
		logger:   logger,
		recorder: opts.Recorder,
	}
	e.applyOriginCaps(snap)
	return e, nil
}

// Snapshot 返回当前生效的配置。
func (e *Engine) Snapshot() *repository.Snapshot {
	return e.holder.Load()
}

// FileSystem 暴露路径属性，供诊断使用。
func (e *Engine) FileSystem() *vfs.FileSystem {
	return e.fs
}

// Reload 换入新的快照与连接池设置。
func (e *Engine) Reload(snap *repository.Snapshot, settings pool.Settings) {
	e.pool.UpdateSettings(settings)
	e.applyOriginCaps(snap)
	e.holder.Swap(snap)
	e.logger.WithField("action", "engine_reload").
		WithField("repositories", len(snap.Repositories())).
		Info("snapshot_swapped")
}

// applyOriginCaps 把代理仓库的 MaxConnections 同步到连接池。同一 origin 取最大值；
// 上一快照设置过、本次不再出现的上限恢复为默认值。
func (e *Engine) applyOriginCaps(snap *repository.Snapshot) {
	caps := map[string]int{}
	for _, repo := range snap.Repositories() {
		if repo.Type() != repository.Proxy || repo.MaxConnections() <= 0 {
			continue
		}
		key := pool.OriginKey(repo.RemoteURL())
		if repo.MaxConnections() > caps[key] {
			caps[key] = repo.MaxConnections()
		}
	}

	e.capsMu.Lock()
	defer e.capsMu.Unlock()
	for key := range e.capped {
		if _, ok := caps[key]; !ok {
			e.pool.SetMaxPerOrigin(key, 0)
		}
	}
	next := make(map[string]bool, len(caps))
	for key, n := range caps {
		e.pool.SetMaxPerOrigin(key, n)
		next[key] = true
	}
	e.capped = next
}

// Resolve 把 path 绑定到当前快照中的仓库，并应用 layout 的本地路径映射，使结果指向落盘文件。
func (e *Engine) Resolve(storageID, repositoryID, path string) (vfs.Path, error) {
	repo, err := e.lookup(e.holder.Load(), storageID, repositoryID)
	if err != nil {
		return vfs.Path{}, err
	}
	if !repo.InService() {
		return vfs.Path{}, fmt.Errorf("%s: %w", repo.Key(), errs.ErrOutOfService)
	}
	rel, err := layout.CleanPath(repo.Layout(), path)
	if err != nil {
		return vfs.Path{}, err
	}
	if rel != "" {
		rel = layout.LocalPath(repo.LayoutProvider(), rel)
	}
	return vfs.New(repo.StorageID(), repo.ID(), rel)
}

func (e *Engine) lookup(snap *repository.Snapshot, storageID, repositoryID string) (*repository.Repository, error) {
	if _, ok := snap.Storage(storageID); !ok {
		return nil, fmt.Errorf("storage %s: %w", storageID, errs.ErrNotFound)
	}
	repo, ok := snap.Repository(storageID, repositoryID)
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", repository.Key(storageID, repositoryID), errs.ErrNotFound)
	}
	return repo, nil
}

// FetchOrServe 返回 p 的字节流。hosted 直接读存储，proxy 经缓存解析器，
// group 按 children-first 顺序查询成员。
func (e *Engine) FetchOrServe(ctx context.Context, p vfs.Path) (*Artifact, error) {
	snap := e.holder.Load()
	repo, err := e.lookup(snap, p.Storage(), p.Repository())
	if err != nil {
		return nil, err
	}
	started := time.Now()

	var art *Artifact
	if repo.Type() == repository.Group {
		art, err = e.serveGroup(ctx, snap, repo, p)
	} else {
		art, err = e.serveLeaf(ctx, repo, p)
	}
	e.record(repo, p, art, started, err)
	return art, err
}

func (e *Engine) serveGroup(ctx context.Context, snap *repository.Snapshot, grp *repository.Repository, p vfs.Path) (*Artifact, error) {
	if !grp.InService() {
		return nil, fmt.Errorf("%s: %w", grp.Key(), errs.ErrOutOfService)
	}
	art, _, err := group.Resolve(ctx, e.groups, snap, grp, p.Relativize(), func(ctx context.Context, member *repository.Repository) (*Artifact, error) {
		return e.serveLeaf(ctx, member, p.In(member))
	})
	if err != nil {
		return nil, err
	}
	art.Path = p
	return art, nil
}

func (e *Engine) serveLeaf(ctx context.Context, repo *repository.Repository, p vfs.Path) (*Artifact, error) {
	switch repo.Type() {
	case repository.Hosted:
		return e.serveHosted(ctx, repo, p)
	case repository.Proxy:
		res, err := e.proxies.FetchOrServe(ctx, repo, p)
		if err != nil {
			return nil, err
		}
		return &Artifact{
			Path:     p,
			ServedBy: repo,
			Entry:    res.Entry,
			Body:     res.Reader,
			CacheHit: res.CacheHit,
			Stale:    res.Stale,
		}, nil
	default:
		return nil, fmt.Errorf("%s: nested group %w", repo.Key(), ErrUnsupported)
	}
}

func (e *Engine) serveHosted(ctx context.Context, repo *repository.Repository, p vfs.Path) (*Artifact, error) {
	if !repo.InService() {
		return nil, fmt.Errorf("%s: %w", repo.Key(), errs.ErrOutOfService)
	}
	if err := repo.LayoutProvider().ValidatePath(p.Relativize()); err != nil {
		return nil, err
	}
	res, err := e.fs.Open(ctx, repo, p)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: p, ServedBy: repo, Entry: res.Entry, Body: res.Reader, CacheHit: true}, nil
}

// Attributes 报告 p 在所属仓库中的状态，不触发回源。
func (e *Engine) Attributes(ctx context.Context, p vfs.Path) (vfs.Attributes, error) {
	repo, err := e.lookup(e.holder.Load(), p.Storage(), p.Repository())
	if err != nil {
		return vfs.Attributes{}, err
	}
	return e.fs.Attributes(ctx, repo, p)
}

// Deploy 把 body 写入 hosted 仓库；p 本身不是 sidecar 时同时生成校验和 sidecar。
func (e *Engine) Deploy(ctx context.Context, p vfs.Path, body io.Reader) (*cache.Entry, error) {
	repo, err := e.lookup(e.holder.Load(), p.Storage(), p.Repository())
	if err != nil {
		return nil, err
	}
	if repo.Type() != repository.Hosted {
		return nil, fmt.Errorf("deploy to %s repository %s: %w", repo.Type(), repo.Key(), ErrUnsupported)
	}
	if !repo.InService() {
		return nil, fmt.Errorf("%s: %w", repo.Key(), errs.ErrOutOfService)
	}
	rel := p.Relativize()
	if err := repo.LayoutProvider().ValidatePath(rel); err != nil {
		return nil, err
	}
	entry, err := e.fs.Store().Put(ctx, e.fs.Locator(repo, p), body, cache.PutOptions{
		Sidecars: !checksum.IsChecksumPath(rel),
	})
	if err != nil {
		return nil, err
	}
	e.logger.WithFields(logging.RequestFields(repo.StorageID(), repo.ID(), string(repo.Type()), repo.Layout(), rel, false)).
		WithFields(logrus.Fields{"action": "deploy", "size": entry.SizeBytes}).
		WithFields(purlField(repo, rel)).
		Info("artifact_deployed")
	return entry, nil
}

// Evict 删除代理缓存条目或 hosted 构件（连同 sidecar）。组仓库不拥有文件。
func (e *Engine) Evict(ctx context.Context, p vfs.Path) error {
	repo, err := e.lookup(e.holder.Load(), p.Storage(), p.Repository())
	if err != nil {
		return err
	}
	switch repo.Type() {
	case repository.Proxy:
		return e.proxies.Evict(ctx, repo, p)
	case repository.Hosted:
		return e.fs.Store().Remove(ctx, e.fs.Locator(repo, p))
	default:
		return fmt.Errorf("evict from group %s: %w", repo.Key(), ErrUnsupported)
	}
}

// PoolStats 返回 remoteURL 所属 origin 的租约统计。
func (e *Engine) PoolStats(remoteURL string) pool.Stats {
	return e.pool.Stats(remoteURL)
}

// AllPoolStats 返回连接池见过的全部 origin。
func (e *Engine) AllPoolStats() []pool.Stats {
	return e.pool.AllStats()
}

// BreakerStates 返回已访问过的每个 origin 的熔断状态。
func (e *Engine) BreakerStates() map[string]string {
	return e.fetcher.BreakerStates()
}

func (e *Engine) record(repo *repository.Repository, p vfs.Path, art *Artifact, started time.Time, err error) {
	outcome := outcomeOf(art, err)
	if e.recorder != nil {
		e.recorder.Request(repo.Key(), string(repo.Type()), outcome)
	}
	fields := logging.RequestFields(repo.StorageID(), repo.ID(), string(repo.Type()), repo.Layout(), p.Relativize(), art != nil && art.CacheHit)
	entry := e.logger.WithFields(fields).WithFields(logrus.Fields{
		"action":     "fetch_or_serve",
		"outcome":    outcome,
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	if art != nil && art.ServedBy != nil {
		entry = entry.WithField("served_by", art.ServedBy.Key())
	}
	entry = entry.WithFields(purlField(repo, p.Relativize()))
	switch {
	case err == nil:
		entry.Debug("request_served")
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrInvalidPath):
		entry.WithError(err).Debug("request_not_found")
	default:
		entry.WithError(err).Warn("request_failed")
	}
}

func purlField(repo *repository.Repository, rel string) logrus.Fields {
	if purl := layout.PURL(repo.LayoutProvider(), rel); purl != "" {
		return logrus.Fields{"purl": purl}
	}
	return nil
}

func outcomeOf(art *Artifact, err error) string {
	switch {
	case err == nil && art.Stale:
		return "stale"
	case err == nil && art.CacheHit:
		return "hit"
	case err == nil:
		return "fetched"
	case errors.Is(err, errs.ErrOutOfService):
		return "out_of_service"
	case errors.Is(err, errs.ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	default:
		return "upstream_failure"
	}
}
