package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/repohub/internal/errs"
	"github.com/any-hub/repohub/internal/repository"
	"github.com/any-hub/repohub/internal/routing"
)

// MemberFunc 从单个叶子成员获取 relPath。
type MemberFunc[T any] func(ctx context.Context, member *repository.Repository) (T, error)

// Resolver 把组请求分发给展开后的成员。
type Resolver struct {
	logger *logrus.Logger
}

func NewResolver(logger *logrus.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Plan 按顺序返回 relPath 会查询的成员。停用成员、被规则拒绝的成员以及嵌套组本身
// （其叶子已在遍历结果中）不会出现。经嵌套组到达的叶子要通过路径上每个组的规则。
func (r *Resolver) Plan(snap *repository.Snapshot, grp *repository.Repository, relPath string) ([]*repository.Repository, Traversal) {
	traversal := Hierarchy(snap, grp)
	r.warn(grp, traversal)

	rules := snap.Rules()
	plan := make([]*repository.Repository, 0, len(traversal.Members))
	for _, member := range traversal.Members {
		if member.Type() == repository.Group {
			continue
		}
		if !member.InService() {
			continue
		}
		if denied(rules, traversal.Ancestors[member.Key()], member, relPath) {
			r.debug(grp, member, relPath, errs.ErrRoutingDenied)
			continue
		}
		plan = append(plan, member)
	}
	return plan, traversal
}

// denied 判断路径上是否有组拒绝该叶子，或拒绝了叶子所经由的嵌套组。
func denied(rules *routing.Rules, ancestors []*repository.Repository, leaf *repository.Repository, relPath string) bool {
	for i, g := range ancestors {
		if rules.IsDenied(g.Key(), leaf.Key(), relPath) {
			return true
		}
		if i+1 < len(ancestors) && rules.IsDenied(g.Key(), ancestors[i+1].Key(), relPath) {
			return true
		}
	}
	return false
}

func (r *Resolver) warn(grp *repository.Repository, t Traversal) {
	if r.logger == nil {
		return
	}
	for _, c := range t.Cycles {
		r.logger.WithFields(logrus.Fields{
			"action": "group_cycle",
			"group":  grp.Key(),
			"parent": c.Group,
			"member": c.Member,
		}).Warn("group_member_cycle_skipped")
	}
	for _, ref := range t.Missing {
		r.logger.WithFields(logrus.Fields{
			"action": "group_resolve",
			"group":  grp.Key(),
			"member": ref.Key(),
		}).Warn("group_member_missing")
	}
}

func (r *Resolver) debug(grp, member *repository.Repository, relPath string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(logrus.Fields{
		"action": "group_resolve",
		"group":  grp.Key(),
		"member": member.Key(),
		"path":   relPath,
		"reason": err.Error(),
	}).Debug("group_member_skipped")
}

// Resolve 依次查询计划中的成员，返回第一个成功结果及提供它的成员。
// 未命中或上游失败时继续下一个成员；全部查完仍无结果返回 ErrNotFound。
func Resolve[T any](ctx context.Context, r *Resolver, snap *repository.Snapshot, grp *repository.Repository, relPath string, fetch MemberFunc[T]) (T, *repository.Repository, error) {
	var zero T
	plan, _ := r.Plan(snap, grp, relPath)

	var lastErr error
	for _, member := range plan {
		if err := ctx.Err(); err != nil {
			return zero, nil, err
		}
		result, err := fetch(ctx, member)
		if err == nil {
			if r.logger != nil {
				r.logger.WithFields(logrus.Fields{
					"action":    "group_resolve",
					"group":     grp.Key(),
					"path":      relPath,
					"served_by": member.Key(),
				}).Debug("group_resolve_hit")
			}
			return result, member, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return zero, nil, err
			}
		}
		r.debug(grp, member, relPath, err)
		lastErr = err
	}
	if lastErr != nil && !errs.IsRetrievalMiss(lastErr) && !errors.Is(lastErr, errs.ErrInvalidPath) {
		return zero, nil, fmt.Errorf("group %s: %w", grp.Key(), lastErr)
	}
	return zero, nil, fmt.Errorf("group %s: %s: %w", grp.Key(), relPath, errs.ErrNotFound)
}
