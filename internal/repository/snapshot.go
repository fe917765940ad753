package repository

import (
	"fmt"
	"sync/atomic"

	"github.com/any-hub/repohub/internal/routing"
)

// Snapshot 是一次配置加载的完整视图：全部 storage 与路由规则。
type Snapshot struct {
	order    []string
	storages map[string]*Storage
	rules    *routing.Rules
}

// NewSnapshot 组合 storage 与规则，storage id 重复时报错。
func NewSnapshot(storages []*Storage, rules *routing.Rules) (*Snapshot, error) {
	snap := &Snapshot{storages: make(map[string]*Storage, len(storages)), rules: rules}
	for _, s := range storages {
		if _, dup := snap.storages[s.id]; dup {
			return nil, fmt.Errorf("duplicate storage %s", s.id)
		}
		snap.storages[s.id] = s
		snap.order = append(snap.order, s.id)
	}
	return snap, nil
}

// Storage 按 id 查找 storage。
func (s *Snapshot) Storage(id string) (*Storage, bool) {
	st, ok := s.storages[id]
	return st, ok
}

// Storages 按声明顺序返回全部 storage。
func (s *Snapshot) Storages() []*Storage {
	out := make([]*Storage, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.storages[id])
	}
	return out
}

// Repository 按 storage id 与 repository id 查找仓库。
func (s *Snapshot) Repository(storageID, repositoryID string) (*Repository, bool) {
	st, ok := s.storages[storageID]
	if !ok {
		return nil, false
	}
	return st.Repository(repositoryID)
}

// Lookup 解析组成员引用。
func (s *Snapshot) Lookup(ref MemberRef) (*Repository, bool) {
	return s.Repository(ref.Storage, ref.Repository)
}

// Repositories 返回全部仓库，先按 storage 再按仓库声明顺序。
func (s *Snapshot) Repositories() []*Repository {
	var out []*Repository
	for _, st := range s.Storages() {
		out = append(out, st.Repositories()...)
	}
	return out
}

// Rules 返回路由规则，可能为 nil。
func (s *Snapshot) Rules() *routing.Rules {
	return s.rules
}

// Holder 以原子指针持有当前快照，重新加载时整体替换。
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder 以初始快照构造 Holder。
func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(initial)
	return h
}

// Load 返回当前快照。
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Swap 替换快照并返回旧值。
func (h *Holder) Swap(next *Snapshot) *Snapshot {
	return h.current.Swap(next)
}
