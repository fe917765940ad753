package config

import (
	"fmt"
	"path/filepath"

	"github.com/any-hub/repohub/internal/group"
	"github.com/any-hub/repohub/internal/pool"
	"github.com/any-hub/repohub/internal/repository"
	"github.com/any-hub/repohub/internal/routing"
)

// BuildSnapshot 把配置转换为不可变的仓库快照，并返回检测到的组成员环路。
// StrictGroupValidation 打开时，环路与缺失成员直接视为配置错误。
func BuildSnapshot(cfg *Config) (*repository.Snapshot, []group.Cycle, error) {
	storages := make([]*repository.Storage, 0, len(cfg.Storages))
	for _, sc := range cfg.Storages {
		base := sc.BaseDir
		if base == "" {
			base = filepath.Join(cfg.Global.StoragePath, sc.ID)
		} else if !filepath.IsAbs(base) {
			base = filepath.Join(cfg.Global.StoragePath, base)
		}

		sb := repository.NewStorageBuilder(sc.ID, base)
		for _, rc := range sc.Repositories {
			b, err := repositoryBuilder(sc.ID, rc)
			if err != nil {
				return nil, nil, err
			}
			sb.Add(b)
		}
		st, err := sb.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", storageField(sc.ID, "Repository"), err)
		}
		storages = append(storages, st)
	}

	rules, err := routing.Compile(routingRules(cfg.RoutingRules))
	if err != nil {
		return nil, nil, newFieldError("RoutingRule", err.Error())
	}
	snap, err := repository.NewSnapshot(storages, rules)
	if err != nil {
		return nil, nil, err
	}

	cycles := group.DetectCycles(snap)
	if cfg.Global.StrictGroupValidation {
		if len(cycles) > 0 {
			c := cycles[0]
			return nil, cycles, newFieldError("Global.StrictGroupValidation", fmt.Sprintf("group %s 的成员 %s 构成环路", c.Group, c.Member))
		}
		if err := checkMembersExist(snap); err != nil {
			return nil, cycles, err
		}
	}
	return snap, cycles, nil
}

func repositoryBuilder(storageID string, rc RepositoryConfig) (*repository.Builder, error) {
	b := repository.NewBuilder(rc.ID).
		Layout(rc.Layout).
		Type(repository.Type(rc.Type)).
		Status(repository.Status(rc.Status)).
		BaseDir(rc.BaseDir).
		RemoteURL(rc.RemoteURL).
		Credentials(repository.Credentials{Username: rc.Username, Password: rc.Password}).
		ChecksumValidation(rc.ChecksumValidation).
		MaxConnections(rc.MaxConnections).
		MetadataStrategy(repository.MetadataStrategy(rc.MetadataStrategy)).
		MetadataFreshness(rc.MetadataFreshness.DurationValue())
	for _, raw := range rc.Members {
		ref, err := repository.ParseMemberRef(raw, storageID)
		if err != nil {
			return nil, newFieldError(repositoryField(storageID, rc.ID, "Members"), err.Error())
		}
		b.Members(ref)
	}
	return b, nil
}

func routingRules(in []RoutingRuleConfig) []routing.Rule {
	out := make([]routing.Rule, 0, len(in))
	for _, rc := range in {
		out = append(out, routing.Rule{
			Storage:      rc.Storage,
			Group:        rc.Group,
			Type:         routing.Type(rc.Type),
			Pattern:      rc.Pattern,
			Repositories: append([]string(nil), rc.Repositories...),
		})
	}
	return out
}

func checkMembersExist(snap *repository.Snapshot) error {
	for _, repo := range snap.Repositories() {
		for _, ref := range repo.Members() {
			if _, ok := snap.Lookup(ref); !ok {
				return newFieldError(repositoryField(repo.StorageID(), repo.ID(), "Members"), fmt.Sprintf("未知成员: %s", ref.Key()))
			}
		}
	}
	return nil
}

// PoolSettings 从全局配置导出连接池参数。
func (g GlobalConfig) PoolSettings() pool.Settings {
	return pool.Settings{
		MaxTotal:         g.MaxConnections,
		DefaultPerOrigin: g.DefaultMaxPerOrigin,
		ExtendFactor:     g.PoolExtendFactor,
		ExtendThreshold:  g.PoolExtendThreshold,
		AcquireTimeout:   g.AcquireTimeout.DurationValue(),
		DNSRefresh:       g.DNSRefreshInterval.DurationValue(),
	}
}
