// Package vfs 描述仓库内的路径。Path 是纯值，Resolve 与 ResolveSibling 不访问存储；
// 只有 FileSystem.Attributes 会做 I/O。
package vfs

import (
	"fmt"
	"path"
	"strings"

	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/layout"
	"github.com/any-hub/repohub/internal/repository"
)

// Path 是（仓库，相对路径）二元组，空相对路径表示仓库根。
type Path struct {
	storage    string
	repository string
	rel        string
}

// New 归一化 rel 后绑定到仓库。
func New(storageID, repositoryID, rel string) (Path, error) {
	clean, err := layout.CleanPath("", rel)
	if err != nil {
		return Path{}, err
	}
	return Path{storage: storageID, repository: repositoryID, rel: clean}, nil
}

// Root 返回 repo 的根路径。
func Root(repo *repository.Repository) Path {
	return Path{storage: repo.StorageID(), repository: repo.ID()}
}

// In 把 p 的相对部分改绑到另一个仓库，通常是组成员。
func (p Path) In(repo *repository.Repository) Path {
	return Path{storage: repo.StorageID(), repository: repo.ID(), rel: p.rel}
}

func (p Path) Storage() string    { return p.storage }
func (p Path) Repository() string { return p.repository }

// RepositoryKey 返回 storage:repository。
func (p Path) RepositoryKey() string {
	return repository.Key(p.storage, p.repository)
}

// Relativize 返回相对仓库根的路径，根为 ""。
func (p Path) Relativize() string {
	return p.rel
}

func (p Path) IsRoot() bool {
	return p.rel == ""
}

// Name 返回最后一段。
func (p Path) Name() string {
	if p.rel == "" {
		return ""
	}
	return path.Base(p.rel)
}

// Parent 返回所在目录，根的父目录是它自己。
func (p Path) Parent() Path {
	dir := path.Dir(p.rel)
	if dir == "." {
		dir = ""
	}
	return Path{storage: p.storage, repository: p.repository, rel: dir}
}

// Resolve 追加 segment，可以包含多段。
func (p Path) Resolve(segment string) (Path, error) {
	if strings.HasPrefix(segment, "/") {
		return Path{}, fmt.Errorf("resolve %q: absolute segment", segment)
	}
	return New(p.storage, p.repository, path.Join(p.rel, segment))
}

// ResolveSibling 用 name 替换最后一段。
func (p Path) ResolveSibling(name string) (Path, error) {
	if p.rel == "" {
		return Path{}, fmt.Errorf("resolve sibling of repository root")
	}
	if name == "" || strings.Contains(name, "/") {
		return Path{}, fmt.Errorf("resolve sibling %q: not a single segment", name)
	}
	return p.Parent().Resolve(name)
}

// Checksum 返回 alg 对应的 sidecar 路径，不保证其存在。
func (p Path) Checksum(alg checksum.Algorithm) Path {
	if sib, err := p.ResolveSibling(p.Name() + alg.Extension()); err == nil {
		return sib
	}
	return Path{storage: p.storage, repository: p.repository, rel: checksum.SidecarPath(p.rel, alg)}
}

// Equal 比较仓库身份与归一化后的相对路径。
func (p Path) Equal(other Path) bool {
	return p == other
}

func (p Path) String() string {
	return p.RepositoryKey() + "/" + p.rel
}
