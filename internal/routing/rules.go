// Package routing 评估 accept/deny 规则，限制组仓库可以经由各成员获取哪些路径。
package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// WildcardGroup 使规则作用于所有组仓库。
const WildcardGroup = "*"

// Type 把规则分为 accept 与 deny 两类。
type Type string

const (
	Accept Type = "accept"
	Deny   Type = "deny"
)

// Rule 是一条路由规则。Storage 与 Group 指定作用的组仓库；Repositories 列出适用的成员
// （"repo" 或 "storage:repo"），为空表示全部成员。
type Rule struct {
	Storage      string
	Group        string
	Type         Type
	Pattern      string
	Repositories []string
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// appliesTo 用规则的仓库列表匹配 "storage:repo" 形式的成员 key。
func (r compiledRule) appliesTo(memberKey string) bool {
	if len(r.Repositories) == 0 {
		return true
	}
	_, repoID, _ := strings.Cut(memberKey, ":")
	for _, entry := range r.Repositories {
		if entry == memberKey {
			return true
		}
		if !strings.Contains(entry, ":") && entry == repoID {
			return true
		}
	}
	return false
}

func (r compiledRule) matches(memberKey, relPath string) bool {
	return r.appliesTo(memberKey) && r.re.MatchString(relPath)
}

type ruleSet struct {
	accept []compiledRule
	deny   []compiledRule
}

func (s *ruleSet) add(r compiledRule) {
	if r.Type == Accept {
		s.accept = append(s.accept, r)
		return
	}
	s.deny = append(s.deny, r)
}

// Rules 是编译后的不可变规则表。
type Rules struct {
	scoped   map[string]*ruleSet
	wildcard map[string]*ruleSet
	all      []Rule
}

// Compile 校验并编译规则。pattern 会加锚点，必须匹配整个相对路径。
func Compile(rules []Rule) (*Rules, error) {
	out := &Rules{
		scoped:   make(map[string]*ruleSet),
		wildcard: make(map[string]*ruleSet),
	}
	for i, rule := range rules {
		if rule.Type != Accept && rule.Type != Deny {
			return nil, fmt.Errorf("routing rule %d: unknown type %q", i, rule.Type)
		}
		if strings.TrimSpace(rule.Group) == "" {
			return nil, fmt.Errorf("routing rule %d: group is required", i)
		}
		re, err := regexp.Compile("^(?:" + rule.Pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("routing rule %d: %w", i, err)
		}
		compiled := compiledRule{Rule: rule, re: re}

		table, key := out.scoped, rule.Storage+":"+rule.Group
		if rule.Group == WildcardGroup {
			// wildcard 规则按 storage 归组，空 storage 表示所有 storage。
			table, key = out.wildcard, rule.Storage
		}
		set := table[key]
		if set == nil {
			set = &ruleSet{}
			table[key] = set
		}
		set.add(compiled)
		out.all = append(out.all, rule)
	}
	return out, nil
}

// Rules 按配置顺序返回未编译的规则。
func (r *Rules) Rules() []Rule {
	if r == nil {
		return nil
	}
	return append([]Rule(nil), r.all...)
}

func (r *Rules) sets(groupKey string) []*ruleSet {
	storage, _, _ := strings.Cut(groupKey, ":")
	var sets []*ruleSet
	if s := r.scoped[groupKey]; s != nil {
		sets = append(sets, s)
	}
	if s := r.wildcard[storage]; s != nil {
		sets = append(sets, s)
	}
	if storage != "" {
		if s := r.wildcard[""]; s != nil {
			sets = append(sets, s)
		}
	}
	return sets
}

// IsDenied 判断组 groupKey 是否禁止经由 memberKey 提供 relPath。
// 命中 deny 后，组内或通配规则中任一 accept 命中都会覆盖它。
func (r *Rules) IsDenied(groupKey, memberKey, relPath string) bool {
	if r == nil {
		return false
	}
	sets := r.sets(groupKey)
	denied := false
	for _, s := range sets {
		for _, rule := range s.deny {
			if rule.matches(memberKey, relPath) {
				denied = true
				break
			}
		}
		if denied {
			break
		}
	}
	if !denied {
		return false
	}
	for _, s := range sets {
		for _, rule := range s.accept {
			if rule.matches(memberKey, relPath) {
				return false
			}
		}
	}
	return true
}
