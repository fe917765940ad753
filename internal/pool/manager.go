// Package pool 管理到各上游 origin 的连接租约：每个 origin 有独立上限，
// 所有 origin 共享全局上限；租约在上限处有界等待，并且只会被释放一次。
package pool

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/dnscache"

	"github.com/any-hub/repohub/internal/errs"
)

// Stats 是单个 origin 的租约统计。
type Stats struct {
	Origin string `json:"origin"`
	// Leased 是当前未释放的租约数。
	Leased int `json:"leased"`
	// Allocated 是该 origin 曾同时持有的最大租约数，即 transport 为其建立的连接规模。
	Allocated    int `json:"allocated"`
	MaxPerOrigin int `json:"max_per_origin"`
}

type origin struct {
	key      string
	leased   int
	peak     int
	max      int
	explicit bool
}

// Manager 是唯一带全局可变状态的组件，所有方法可并发调用。
type Manager struct {
	settings atomic.Pointer[Settings]

	mu          sync.Mutex
	origins     map[string]*origin
	totalLeased int
	// changed 在每次释放或调整上限时关闭并替换，用于唤醒等待者。
	changed chan struct{}

	resolver *dnscache.Resolver
	client   *http.Client
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager 构造连接池并启动 DNS 缓存刷新协程，使用完毕需调用 Close。
func NewManager(settings Settings) *Manager {
	s := settings.normalized()
	m := &Manager{
		origins:  make(map[string]*origin),
		changed:  make(chan struct{}),
		resolver: &dnscache.Resolver{},
		stop:     make(chan struct{}),
	}
	m.settings.Store(&s)
	m.client = &http.Client{Transport: newTransport(m.resolver, s)}
	go m.refreshDNS(s.DNSRefresh)
	return m
}

func (m *Manager) refreshDNS(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.resolver.Refresh(true)
		case <-m.stop:
			return
		}
	}
}

// Close 停止后台协程并关闭空闲连接。
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.client.CloseIdleConnections()
	})
}

// Client 返回共享的上游 http.Client；调用方必须持有租约后再使用。
func (m *Manager) Client() *http.Client {
	return m.client
}

// Settings 返回当前设置的副本。
func (m *Manager) Settings() Settings {
	return *m.settings.Load()
}

// UpdateSettings 原子替换设置；未显式配置的 origin 回落到新的默认上限，
// 已发出的租约不受影响。
func (m *Manager) UpdateSettings(settings Settings) {
	s := settings.normalized()
	m.settings.Store(&s)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.origins {
		if !o.explicit {
			o.max = s.DefaultPerOrigin
		}
		if o.max > s.MaxTotal {
			o.max = s.MaxTotal
		}
	}
	m.broadcastLocked()
}

// OriginKey 归一化上游基础地址：scheme 与 host 小写，去掉结尾斜杠、query 与 fragment。
func OriginKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.TrimSpace(raw), "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimSuffix(u.EscapedPath(), "/")
}

func (m *Manager) originLocked(key string, s *Settings) *origin {
	o := m.origins[key]
	if o == nil {
		o = &origin{key: key, max: s.DefaultPerOrigin}
		m.origins[key] = o
	}
	return o
}

// SetMaxPerOrigin 为 origin 设置显式上限；n <= 0 时恢复默认上限。
func (m *Manager) SetMaxPerOrigin(remoteURL string, n int) {
	s := m.settings.Load()
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.originLocked(OriginKey(remoteURL), s)
	if n <= 0 {
		o.max, o.explicit = s.DefaultPerOrigin, false
	} else {
		o.max, o.explicit = n, true
	}
	if o.max > s.MaxTotal {
		o.max = s.MaxTotal
	}
	m.broadcastLocked()
}

// growLocked 在新租约会让使用率超过水位线时按系数扩容，上限为全局上限。
func (m *Manager) growLocked(o *origin, s *Settings) {
	if s.ExtendFactor <= 1 || o.max >= s.MaxTotal {
		return
	}
	if float64(o.leased+1) <= s.ExtendThreshold*float64(o.max) {
		return
	}
	next := int(math.Ceil(float64(o.max) * s.ExtendFactor))
	if next > s.MaxTotal {
		next = s.MaxTotal
	}
	if next > o.max {
		o.max = next
	}
}

func (m *Manager) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Acquire 为 remoteURL 的 origin 获取一个租约。达到上限时最多等待
// AcquireTimeout，超时返回 *errs.PoolExhaustedError；ctx 取消时返回 ctx.Err()。
func (m *Manager) Acquire(ctx context.Context, remoteURL string) (*Lease, error) {
	key := OriginKey(remoteURL)
	s := m.settings.Load()
	timer := time.NewTimer(s.AcquireTimeout)
	defer timer.Stop()

	for {
		s = m.settings.Load()
		m.mu.Lock()
		o := m.originLocked(key, s)
		m.growLocked(o, s)
		if o.leased < o.max && m.totalLeased < s.MaxTotal {
			o.leased++
			m.totalLeased++
			if o.leased > o.peak {
				o.peak = o.leased
			}
			m.mu.Unlock()
			return &Lease{manager: m, origin: key}, nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return nil, &errs.PoolExhaustedError{Origin: key, Wait: s.AcquireTimeout}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o := m.origins[key]; o != nil && o.leased > 0 {
		o.leased--
		m.totalLeased--
	}
	m.broadcastLocked()
}

// Stats 返回 remoteURL 对应 origin 的统计；从未使用过的 origin 返回默认上限与零值。
func (m *Manager) Stats(remoteURL string) Stats {
	key := OriginKey(remoteURL)
	s := m.settings.Load()
	m.mu.Lock()
	defer m.mu.Unlock()
	if o := m.origins[key]; o != nil {
		return Stats{Origin: key, Leased: o.leased, Allocated: o.peak, MaxPerOrigin: o.max}
	}
	return Stats{Origin: key, MaxPerOrigin: s.DefaultPerOrigin}
}

// AllStats 按 origin 排序返回全部统计。
func (m *Manager) AllStats() []Stats {
	m.mu.Lock()
	out := make([]Stats, 0, len(m.origins))
	for _, o := range m.origins {
		out = append(out, Stats{Origin: o.key, Leased: o.leased, Allocated: o.peak, MaxPerOrigin: o.max})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

// TotalLeased 返回所有 origin 的未释放租约数。
func (m *Manager) TotalLeased() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalLeased
}

// Lease 是一次连接租约，Release 可重复调用但只生效一次。
type Lease struct {
	manager  *Manager
	origin   string
	released atomic.Bool
}

// Origin 返回租约所属的 origin key。
func (l *Lease) Origin() string {
	return l.origin
}

// Release 归还租约，首次调用返回 true。
func (l *Lease) Release() bool {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return false
	}
	l.manager.release(l.origin)
	return true
}
