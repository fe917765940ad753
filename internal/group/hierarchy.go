// Package group 负责组仓库解析：把成员关系展开成确定的 children-first 顺序，并把请求依次分发给成员。
package group

import (
	"github.com/any-hub/repohub/internal/repository"
)

// Lookup 在配置快照中解析成员引用。
type Lookup interface {
	Lookup(ref repository.MemberRef) (*repository.Repository, bool)
}

// Cycle 记录因已在遍历栈上而被跳过的成员。
type Cycle struct {
	Group  string
	Member string
}

// Traversal 是单个组展开后的成员关系。
type Traversal struct {
	// Members 列出每个可达仓库一次，子成员排在所属组之前。
	Members []*repository.Repository
	// Ancestors 记录到达某成员所经过的组，最外层在前，最后一个是直接父组。
	Ancestors map[string][]*repository.Repository
	Cycles    []Cycle
	// Missing 是快照中不存在的成员引用。
	Missing []repository.MemberRef
}

// Hierarchy 深度优先展开 grp，子成员在前。已在递归栈上的仓库被跳过并记为环路；
// 经其他分支访问过的仓库静默跳过。停用的嵌套组会列出但不展开，其成员无法经由它到达。
func Hierarchy(lookup Lookup, grp *repository.Repository) Traversal {
	out := Traversal{Ancestors: map[string][]*repository.Repository{}}
	visited := map[string]bool{grp.Key(): true}
	onStack := map[string]bool{grp.Key(): true}
	stack := []*repository.Repository{grp}

	var visit func(g *repository.Repository)
	visit = func(g *repository.Repository) {
		for _, ref := range g.Members() {
			member, ok := lookup.Lookup(ref)
			if !ok {
				out.Missing = append(out.Missing, ref)
				continue
			}
			key := member.Key()
			if onStack[key] {
				out.Cycles = append(out.Cycles, Cycle{Group: g.Key(), Member: key})
				continue
			}
			if visited[key] {
				continue
			}
			visited[key] = true
			out.Ancestors[key] = append([]*repository.Repository(nil), stack...)
			if member.Type() == repository.Group && member.InService() {
				onStack[key] = true
				stack = append(stack, member)
				visit(member)
				stack = stack[:len(stack)-1]
				onStack[key] = false
			}
			out.Members = append(out.Members, member)
		}
	}
	visit(grp)
	return out
}

// DetectCycles 遍历 snap 中的每个组并返回发现的全部环路。
func DetectCycles(snap *repository.Snapshot) []Cycle {
	var cycles []Cycle
	for _, repo := range snap.Repositories() {
		if repo.Type() != repository.Group {
			continue
		}
		cycles = append(cycles, Hierarchy(snap, repo).Cycles...)
	}
	return cycles
}
