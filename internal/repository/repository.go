// Package repository 提供存储与仓库的只读模型。所有值通过 Builder 构造后不可变，
// 重新加载配置时整体替换 Snapshot，读者永远看到一致的视图。
package repository

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/any-hub/repohub/internal/layout"
)

// Type 区分 hosted/proxy/group 三类仓库。
type Type string

const (
	Hosted Type = "hosted"
	Proxy  Type = "proxy"
	Group  Type = "group"
)

// Status 表示仓库的服务状态。
type Status string

const (
	InService    Status = "in-service"
	OutOfService Status = "out-of-service"
)

// MetadataStrategy 选择 proxy 仓库元数据的过期策略。
type MetadataStrategy string

const (
	StrategyChecksum MetadataStrategy = "checksum"
	StrategyRefresh  MetadataStrategy = "refresh"
)

// Credentials 为 proxy 上游的 Basic 认证信息。
type Credentials struct {
	Username string
	Password string
}

// Empty 表示未配置凭证。
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// MemberRef 引用一个组成员；Storage 为空时表示与组同 storage。
type MemberRef struct {
	Storage    string
	Repository string
}

// ParseMemberRef 解析 "repo" 或 "storage:repo"，defaultStorage 补全前者。
func ParseMemberRef(raw, defaultStorage string) (MemberRef, error) {
	raw = strings.TrimSpace(raw)
	storage, repo, found := strings.Cut(raw, ":")
	if !found {
		storage, repo = defaultStorage, raw
	}
	if storage == "" || repo == "" || strings.Contains(repo, ":") {
		return MemberRef{}, fmt.Errorf("invalid member reference %q", raw)
	}
	return MemberRef{Storage: storage, Repository: repo}, nil
}

// Key 返回 storage:repository 形式的全局唯一标识。
func (m MemberRef) Key() string {
	return Key(m.Storage, m.Repository)
}

func (m MemberRef) String() string {
	return m.Key()
}

// Key 组合 storage 与 repository 的全局唯一标识。
func Key(storageID, repositoryID string) string {
	return storageID + ":" + repositoryID
}

// Repository 是一个仓库的不可变视图。
type Repository struct {
	id                 string
	storageID          string
	layout             string
	typ                Type
	status             Status
	basedir            string
	remoteURL          string
	credentials        Credentials
	checksumValidation bool
	metadataStrategy   MetadataStrategy
	metadataFreshness  time.Duration
	maxConnections     int
	members            []MemberRef
}

func (r *Repository) ID() string          { return r.id }
func (r *Repository) StorageID() string   { return r.storageID }
func (r *Repository) Key() string         { return Key(r.storageID, r.id) }
func (r *Repository) Layout() string      { return r.layout }
func (r *Repository) Type() Type          { return r.typ }
func (r *Repository) Status() Status      { return r.status }
func (r *Repository) InService() bool     { return r.status != OutOfService }
func (r *Repository) BaseDir() string     { return r.basedir }
func (r *Repository) RemoteURL() string   { return r.remoteURL }
func (r *Repository) MaxConnections() int { return r.maxConnections }

func (r *Repository) Credentials() Credentials { return r.credentials }

// ChecksumValidation 仅对 proxy 仓库有意义。
func (r *Repository) ChecksumValidation() bool { return r.checksumValidation }

func (r *Repository) MetadataStrategy() MetadataStrategy { return r.metadataStrategy }

// MetadataFreshness 为 0 时每次请求元数据都执行过期策略。
func (r *Repository) MetadataFreshness() time.Duration { return r.metadataFreshness }

// Members 返回组成员的副本，顺序即声明顺序。
func (r *Repository) Members() []MemberRef {
	return append([]MemberRef(nil), r.members...)
}

// LayoutProvider 返回该仓库的 layout 实现。
func (r *Repository) LayoutProvider() layout.Provider {
	p, _ := layout.Resolve(r.layout)
	return p
}

func (r *Repository) String() string {
	return fmt.Sprintf("%s(%s,%s)", r.Key(), r.typ, r.layout)
}

// Builder 收集仓库属性并在 Build 时统一校验。
type Builder struct {
	id                 string
	storageID          string
	layout             string
	typ                Type
	status             Status
	basedir            string
	remoteURL          string
	credentials        Credentials
	checksumValidation bool
	metadataStrategy   MetadataStrategy
	metadataFreshness  time.Duration
	maxConnections     int
	members            []MemberRef
}

// NewBuilder 返回 hosted、in-service、checksum 策略的默认 Builder。
func NewBuilder(id string) *Builder {
	return &Builder{
		id:               id,
		typ:              Hosted,
		status:           InService,
		metadataStrategy: StrategyChecksum,
	}
}

func (b *Builder) Storage(id string) *Builder          { b.storageID = id; return b }
func (b *Builder) Layout(name string) *Builder         { b.layout = name; return b }
func (b *Builder) Type(t Type) *Builder                { b.typ = t; return b }
func (b *Builder) Status(s Status) *Builder            { b.status = s; return b }
func (b *Builder) BaseDir(dir string) *Builder         { b.basedir = dir; return b }
func (b *Builder) RemoteURL(u string) *Builder         { b.remoteURL = u; return b }
func (b *Builder) Credentials(c Credentials) *Builder  { b.credentials = c; return b }
func (b *Builder) ChecksumValidation(v bool) *Builder  { b.checksumValidation = v; return b }
func (b *Builder) MaxConnections(n int) *Builder       { b.maxConnections = n; return b }
func (b *Builder) MetadataFreshness(d time.Duration) *Builder {
	b.metadataFreshness = d
	return b
}

func (b *Builder) MetadataStrategy(s MetadataStrategy) *Builder {
	b.metadataStrategy = s
	return b
}

// Members 追加组成员。
func (b *Builder) Members(refs ...MemberRef) *Builder {
	b.members = append(b.members, refs...)
	return b
}

// Build 校验并返回不可变 Repository。成员环路不在此处检查，
// 因为成员可能引用尚未加载的仓库；遍历时由 group 包处理。
func (b *Builder) Build() (*Repository, error) {
	if strings.TrimSpace(b.id) == "" || strings.ContainsAny(b.id, ":/") {
		return nil, fmt.Errorf("invalid repository id %q", b.id)
	}
	if b.storageID == "" {
		return nil, fmt.Errorf("repository %s: storage is required", b.id)
	}
	provider, ok := layout.Resolve(b.layout)
	if !ok {
		return nil, fmt.Errorf("repository %s: unknown layout %q", b.id, b.layout)
	}
	switch b.typ {
	case Hosted, Proxy, Group:
	default:
		return nil, fmt.Errorf("repository %s: unknown type %q", b.id, b.typ)
	}
	switch b.status {
	case InService, OutOfService:
	default:
		return nil, fmt.Errorf("repository %s: unknown status %q", b.id, b.status)
	}
	switch b.metadataStrategy {
	case StrategyChecksum, StrategyRefresh:
	default:
		return nil, fmt.Errorf("repository %s: unknown metadata strategy %q", b.id, b.metadataStrategy)
	}
	if b.basedir == "" {
		return nil, fmt.Errorf("repository %s: basedir is required", b.id)
	}

	var remote string
	if b.typ == Proxy {
		parsed, err := url.Parse(b.remoteURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("repository %s: invalid remote url %q", b.id, b.remoteURL)
		}
		remote = strings.TrimSuffix(parsed.String(), "/")
	}

	var members []MemberRef
	if b.typ == Group {
		self := Key(b.storageID, b.id)
		seen := make(map[string]struct{}, len(b.members))
		for _, m := range b.members {
			if m.Storage == "" {
				m.Storage = b.storageID
			}
			key := m.Key()
			if key == self {
				return nil, fmt.Errorf("repository %s: group cannot contain itself", b.id)
			}
			if _, dup := seen[key]; dup {
				return nil, fmt.Errorf("repository %s: duplicate member %s", b.id, key)
			}
			seen[key] = struct{}{}
			members = append(members, m)
		}
	}

	return &Repository{
		id:                 b.id,
		storageID:          b.storageID,
		layout:             provider.Descriptor().Name,
		typ:                b.typ,
		status:             b.status,
		basedir:            filepath.Clean(b.basedir),
		remoteURL:          remote,
		credentials:        b.credentials,
		checksumValidation: b.checksumValidation,
		metadataStrategy:   b.metadataStrategy,
		metadataFreshness:  b.metadataFreshness,
		maxConnections:     b.maxConnections,
		members:            members,
	}, nil
}
