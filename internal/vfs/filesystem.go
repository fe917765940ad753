package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/any-hub/repohub/internal/cache"
	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/coordinates"
	"github.com/any-hub/repohub/internal/repository"
)

// sidecarLimit 防止异常大的 sidecar 被整体读入内存。
const sidecarLimit = 1024

// Attributes 是路径在某一时刻的视图，从不缓存。
type Attributes struct {
	Exists   bool
	Size     int64
	ModTime  time.Time
	Metadata bool
	// layout 无法解析路径时 Coordinates 为零值。
	Coordinates coordinates.Coordinates
	// Checksums 是从已存在的 sidecar 读出的摘要。
	Checksums checksum.Digests
}

// FileSystem 把 Path 映射到本地对象存储。
type FileSystem struct {
	store cache.Store
}

func NewFileSystem(store cache.Store) *FileSystem {
	return &FileSystem{store: store}
}

// Store 暴露底层对象存储。
func (fs *FileSystem) Store() cache.Store {
	return fs.store
}

// Locator 返回 p 在 repo 中的存储地址。
func (fs *FileSystem) Locator(repo *repository.Repository, p Path) cache.Locator {
	return cache.Locator{Repository: repo.Key(), Root: repo.BaseDir(), Path: p.Relativize()}
}

func checkOwner(repo *repository.Repository, p Path) error {
	if repo.StorageID() != p.Storage() || repo.ID() != p.Repository() {
		return fmt.Errorf("path %s does not belong to %s", p, repo.Key())
	}
	return nil
}

// Attributes 读取 p 的文件状态与校验和 sidecar，可并发调用。
func (fs *FileSystem) Attributes(ctx context.Context, repo *repository.Repository, p Path) (Attributes, error) {
	if err := checkOwner(repo, p); err != nil {
		return Attributes{}, err
	}
	attrs := Attributes{Checksums: checksum.Digests{}}
	provider := repo.LayoutProvider()
	if provider != nil && !p.IsRoot() {
		attrs.Metadata = provider.IsMetadataPath(p.Relativize())
		if !attrs.Metadata {
			if c, err := provider.ParseCoordinates(p.Relativize()); err == nil {
				attrs.Coordinates = c
			}
		}
	}
	if p.IsRoot() {
		return attrs, nil
	}

	entry, err := fs.store.Stat(ctx, fs.Locator(repo, p))
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return attrs, nil
	case err != nil:
		return Attributes{}, err
	}
	attrs.Exists = true
	attrs.Size = entry.SizeBytes
	attrs.ModTime = entry.ModTime

	for _, alg := range checksum.Preferred {
		sum, err := fs.ReadChecksum(ctx, repo, p, alg)
		if err != nil {
			return Attributes{}, err
		}
		if sum != "" {
			attrs.Checksums[alg] = sum
		}
	}
	return attrs, nil
}

// ReadChecksum 返回 p 的 alg sidecar 中的摘要，不存在时返回 ""。
func (fs *FileSystem) ReadChecksum(ctx context.Context, repo *repository.Repository, p Path, alg checksum.Algorithm) (string, error) {
	result, err := fs.store.Get(ctx, fs.Locator(repo, p.Checksum(alg)))
	if errors.Is(err, cache.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer result.Reader.Close()
	body, err := io.ReadAll(io.LimitReader(result.Reader, sidecarLimit))
	if err != nil {
		return "", err
	}
	return checksum.ParseSidecar(body), nil
}

// Open 返回 p 的 reader，条目不存在时返回 cache.ErrNotFound。
func (fs *FileSystem) Open(ctx context.Context, repo *repository.Repository, p Path) (*cache.ReadResult, error) {
	if err := checkOwner(repo, p); err != nil {
		return nil, err
	}
	return fs.store.Get(ctx, fs.Locator(repo, p))
}
