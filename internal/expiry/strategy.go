// Package expiry 判断代理仓库缓存的元数据文件是否需要重新回源。
package expiry

import (
	"context"

	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/repository"
	"github.com/any-hub/repohub/internal/vfs"
)

// Decision 是一次刷新检查的结论。
type Decision int

const (
	// IDontKnow 表示策略无法判断，调用方按需回源处理。
	IDontKnow Decision = iota
	YesFetch
	NoLeaveIt
)

func (d Decision) String() string {
	switch d {
	case YesFetch:
		return "yes_fetch"
	case NoLeaveIt:
		return "no_leave_it"
	default:
		return "i_dont_know"
	}
}

// ShouldFetch 判断调用方是否需要重新回源。
func (d Decision) ShouldFetch() bool {
	return d != NoLeaveIt
}

// Strategy 判断 p 的缓存副本是否需要重新获取。
type Strategy interface {
	DetermineRefetch(ctx context.Context, repo *repository.Repository, p vfs.Path) Decision
}

// LocalChecksums 读取缓存文件的 sidecar。
type LocalChecksums interface {
	ReadChecksum(ctx context.Context, repo *repository.Repository, p vfs.Path, alg checksum.Algorithm) (string, error)
}

// RemoteChecksums 从代理上游获取 sidecar。
type RemoteChecksums interface {
	Checksum(ctx context.Context, repo *repository.Repository, rel string, alg checksum.Algorithm) (string, error)
}

// ChecksumStrategy 比较本地 sidecar（优先 sha1，其次 md5）与上游同算法的 sidecar，只有 sidecar 走网络。
type ChecksumStrategy struct {
	Local  LocalChecksums
	Remote RemoteChecksums
}

func (s ChecksumStrategy) DetermineRefetch(ctx context.Context, repo *repository.Repository, p vfs.Path) Decision {
	var (
		alg   checksum.Algorithm
		local string
	)
	for _, candidate := range checksum.Preferred {
		sum, err := s.Local.ReadChecksum(ctx, repo, p, candidate)
		if err != nil {
			return IDontKnow
		}
		if sum != "" {
			alg, local = candidate, sum
			break
		}
	}
	if local == "" {
		return IDontKnow
	}

	remote, err := s.Remote.Checksum(ctx, repo, p.Relativize(), alg)
	if err != nil || remote == "" {
		return IDontKnow
	}
	if remote == local {
		return NoLeaveIt
	}
	return YesFetch
}

// RefreshStrategy 总是重新回源。
type RefreshStrategy struct{}

func (RefreshStrategy) DetermineRefetch(context.Context, *repository.Repository, vfs.Path) Decision {
	return YesFetch
}

// Selector 按仓库配置选择策略。每次调用都重新读取仓库设置，重载后的配置立即生效。
type Selector struct {
	Checksum Strategy
	Refresh  Strategy
}

func (s Selector) For(repo *repository.Repository) Strategy {
	if repo.MetadataStrategy() == repository.StrategyRefresh {
		return s.Refresh
	}
	return s.Checksum
}
