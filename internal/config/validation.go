package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/any-hub/repohub/internal/layout"
	"github.com/any-hub/repohub/internal/repository"
)

var supportedRepositoryTypes = map[string]struct{}{
	string(repository.Hosted): {},
	string(repository.Proxy):  {},
	string(repository.Group):  {},
}

const supportedRepositoryTypeList = "hosted|proxy|group"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if err := c.Global.validate(); err != nil {
		return err
	}

	if len(c.Storages) == 0 {
		return errors.New("至少需要配置一个 Storage")
	}

	repos := map[string]string{}
	seenStorages := map[string]struct{}{}
	for i := range c.Storages {
		st := &c.Storages[i]
		st.ID = strings.TrimSpace(st.ID)
		if err := validateID(st.ID); err != nil {
			return newFieldError("Storage[].ID", err.Error())
		}
		if _, exists := seenStorages[st.ID]; exists {
			return newFieldError(storageField(st.ID, "ID"), "重复")
		}
		seenStorages[st.ID] = struct{}{}

		if len(st.Repositories) == 0 {
			return newFieldError(storageField(st.ID, "Repository"), "至少需要一个仓库")
		}
		for j := range st.Repositories {
			repo := &st.Repositories[j]
			repo.ID = strings.TrimSpace(repo.ID)
			if err := validateID(repo.ID); err != nil {
				return newFieldError(storageField(st.ID, "Repository[].ID"), err.Error())
			}
			key := repository.Key(st.ID, repo.ID)
			if _, exists := repos[key]; exists {
				return newFieldError(repositoryField(st.ID, repo.ID, "ID"), "重复")
			}
			repos[key] = repo.Type
			if err := validateRepository(st.ID, repo); err != nil {
				return err
			}
		}
	}

	for i := range c.RoutingRules {
		if err := validateRule(i, c.RoutingRules[i], seenStorages, repos); err != nil {
			return err
		}
	}
	return nil
}

func (g GlobalConfig) validate() error {
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogFormat != "json" && g.LogFormat != "text" {
		return newFieldError("Global.LogFormat", "仅支持 json|text")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.AcquireTimeout.DurationValue() <= 0 {
		return newFieldError("Global.AcquireTimeout", "必须大于 0")
	}
	if g.MaxConnections <= 0 {
		return newFieldError("Global.MaxConnections", "必须大于 0")
	}
	if g.DefaultMaxPerOrigin <= 0 || g.DefaultMaxPerOrigin > g.MaxConnections {
		return newFieldError("Global.DefaultMaxPerOrigin", "必须在 1-MaxConnections")
	}
	if g.PoolExtendFactor < 1 {
		return newFieldError("Global.PoolExtendFactor", "不能小于 1")
	}
	if g.PoolExtendThreshold <= 0 || g.PoolExtendThreshold > 1 {
		return newFieldError("Global.PoolExtendThreshold", "必须在 (0, 1]")
	}
	if g.BreakerThreshold < 0 {
		return newFieldError("Global.BreakerThreshold", "不能为负数")
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(id, ":/ ") {
		return fmt.Errorf("%q 不允许包含 ':'、'/' 或空格", id)
	}
	return nil
}

func validateRepository(storageID string, repo *RepositoryConfig) error {
	field := func(name string) string { return repositoryField(storageID, repo.ID, name) }

	if repo.Layout == "" {
		return newFieldError(field("Layout"), "不能为空")
	}
	if _, ok := layout.Resolve(repo.Layout); !ok {
		return newFieldError(field("Layout"), "仅支持 "+strings.Join(layout.Names(), "|"))
	}
	if _, ok := supportedRepositoryTypes[repo.Type]; !ok {
		return newFieldError(field("Type"), "仅支持 "+supportedRepositoryTypeList)
	}
	switch repository.Status(repo.Status) {
	case repository.InService, repository.OutOfService:
	default:
		return newFieldError(field("Status"), "仅支持 in-service/out-of-service")
	}
	switch repository.MetadataStrategy(repo.MetadataStrategy) {
	case repository.StrategyChecksum, repository.StrategyRefresh:
	default:
		return newFieldError(field("MetadataStrategy"), "仅支持 checksum/refresh")
	}
	if repo.MetadataFreshness.DurationValue() < 0 {
		return newFieldError(field("MetadataFreshness"), "不能为负数")
	}
	if repo.MaxConnections < 0 {
		return newFieldError(field("MaxConnections"), "不能为负数")
	}
	if (repo.Username == "") != (repo.Password == "") {
		return newFieldError(field("Username/Password"), "必须同时提供或同时留空")
	}

	isProxy := repo.Type == string(repository.Proxy)
	isGroup := repo.Type == string(repository.Group)
	if isProxy {
		if err := validateUpstream(repo.RemoteURL); err != nil {
			return newFieldError(field("RemoteURL"), err.Error())
		}
	} else if repo.RemoteURL != "" {
		return newFieldError(field("RemoteURL"), "仅 proxy 仓库可配置")
	}

	if !isGroup {
		if len(repo.Members) > 0 {
			return newFieldError(field("Members"), "仅 group 仓库可配置")
		}
		return nil
	}
	if len(repo.Members) == 0 {
		return newFieldError(field("Members"), "group 仓库至少需要一个成员")
	}
	self := repository.Key(storageID, repo.ID)
	seen := map[string]struct{}{}
	for _, raw := range repo.Members {
		ref, err := repository.ParseMemberRef(raw, storageID)
		if err != nil {
			return newFieldError(field("Members"), err.Error())
		}
		if ref.Key() == self {
			return newFieldError(field("Members"), "不能包含自身")
		}
		if _, dup := seen[ref.Key()]; dup {
			return newFieldError(field("Members"), fmt.Sprintf("成员重复: %s", ref.Key()))
		}
		seen[ref.Key()] = struct{}{}
	}
	return nil
}

func validateRule(idx int, rule RoutingRuleConfig, storages map[string]struct{}, repos map[string]string) error {
	switch rule.Type {
	case "accept", "deny":
	default:
		return newFieldError(ruleField(idx, "Type"), "仅支持 accept/deny")
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return newFieldError(ruleField(idx, "Pattern"), "不能为空")
	}
	if _, err := regexp.Compile(rule.Pattern); err != nil {
		return newFieldError(ruleField(idx, "Pattern"), err.Error())
	}
	if rule.Storage != "" {
		if _, ok := storages[rule.Storage]; !ok {
			return newFieldError(ruleField(idx, "Storage"), fmt.Sprintf("未知 storage: %s", rule.Storage))
		}
	}
	if rule.Group != "*" {
		if rule.Storage == "" {
			return newFieldError(ruleField(idx, "Storage"), "指定 Group 时必须提供 Storage")
		}
		typ, ok := repos[repository.Key(rule.Storage, rule.Group)]
		if !ok || typ != string(repository.Group) {
			return newFieldError(ruleField(idx, "Group"), fmt.Sprintf("%s 不是 group 仓库", rule.Group))
		}
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
