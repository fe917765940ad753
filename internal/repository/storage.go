package repository

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Storage 是一组仓库的容器，仓库按声明顺序保存。
type Storage struct {
	id           string
	basedir      string
	order        []string
	repositories map[string]*Repository
}

func (s *Storage) ID() string      { return s.id }
func (s *Storage) BaseDir() string { return s.basedir }

// Repository 按 id 查找仓库。
func (s *Storage) Repository(id string) (*Repository, bool) {
	r, ok := s.repositories[id]
	return r, ok
}

// Repositories 按声明顺序返回全部仓库。
func (s *Storage) Repositories() []*Repository {
	out := make([]*Repository, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.repositories[id])
	}
	return out
}

// StorageBuilder 收集仓库 Builder，Build 时补全 storage 与默认 basedir。
type StorageBuilder struct {
	id       string
	basedir  string
	builders []*Builder
}

// NewStorageBuilder 返回 storage 的 Builder，basedir 必须是绝对路径或可被解析为绝对路径。
func NewStorageBuilder(id, basedir string) *StorageBuilder {
	return &StorageBuilder{id: id, basedir: basedir}
}

// Add 追加仓库定义。
func (b *StorageBuilder) Add(builders ...*Builder) *StorageBuilder {
	b.builders = append(b.builders, builders...)
	return b
}

func (b *StorageBuilder) Build() (*Storage, error) {
	if strings.TrimSpace(b.id) == "" || strings.Contains(b.id, ":") {
		return nil, fmt.Errorf("invalid storage id %q", b.id)
	}
	if b.basedir == "" {
		return nil, fmt.Errorf("storage %s: basedir is required", b.id)
	}
	base, err := filepath.Abs(b.basedir)
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", b.id, err)
	}

	s := &Storage{
		id:           b.id,
		basedir:      base,
		repositories: make(map[string]*Repository, len(b.builders)),
	}
	for _, rb := range b.builders {
		rb.storageID = b.id
		if rb.basedir == "" {
			rb.basedir = filepath.Join(base, rb.id)
		} else if !filepath.IsAbs(rb.basedir) {
			rb.basedir = filepath.Join(base, rb.basedir)
		}
		repo, err := rb.Build()
		if err != nil {
			return nil, fmt.Errorf("storage %s: %w", b.id, err)
		}
		if _, dup := s.repositories[repo.id]; dup {
			return nil, fmt.Errorf("storage %s: duplicate repository %s", b.id, repo.id)
		}
		s.repositories[repo.id] = repo
		s.order = append(s.order, repo.id)
	}
	return s, nil
}
