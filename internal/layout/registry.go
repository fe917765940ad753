package layout

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// builtin 列出编译期即可见的全部生态实现，新增生态在此登记一行即可。
var builtin = []Provider{
	Maven2{},
	NPM{},
	NuGet{},
	PyPI{},
	Raw{},
}

var defaultRegistry = mustBuild(builtin)

// Registry 以规范名与别名为键索引 Provider，键不区分大小写。
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	names     []string
}

// NewRegistry 返回空注册表，通常仅测试需要；生产代码使用 Default。
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func mustBuild(providers []Provider) *Registry {
	r := NewRegistry()
	for _, p := range providers {
		r.MustRegister(p)
	}
	return r
}

// Default 返回内置生态注册表。
func Default() *Registry {
	return defaultRegistry
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Register 登记 provider 的规范名与别名，任一键重复即返回错误。
func (r *Registry) Register(p Provider) error {
	desc := p.Descriptor()
	name := normalizeKey(desc.Name)
	if name == "" {
		return fmt.Errorf("layout name is required")
	}
	alias := normalizeKey(desc.Alias)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("layout %s already registered", desc.Name)
	}
	if alias != "" && alias != name {
		if _, exists := r.providers[alias]; exists {
			return fmt.Errorf("layout alias %s already registered", desc.Alias)
		}
		r.providers[alias] = p
	}
	r.providers[name] = p
	r.names = append(r.names, desc.Name)
	sort.Strings(r.names)
	return nil
}

// MustRegister 在注册失败时 panic，只在构建静态表时使用。
func (r *Registry) MustRegister(p Provider) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Resolve 按规范名或别名查找 provider。
func (r *Registry) Resolve(key string) (Provider, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[normalized]
	return p, ok
}

// Names 返回按字母排序的规范名列表。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Resolve 在默认注册表上查找 provider。
func Resolve(key string) (Provider, bool) {
	return defaultRegistry.Resolve(key)
}

// Names 返回默认注册表的规范名。
func Names() []string {
	return defaultRegistry.Names()
}
