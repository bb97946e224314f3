package reports

import (
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
)

// Node kinds.
const (
	KindGroup   = "group"
	KindAccount = "account"
)

// Node is one row of a grouped report. Group nodes carry the sum of their
// descendants.
type Node[T any] struct {
	Kind     string    `json:"kind"`
	ID       int64     `json:"id"`
	Number   string    `json:"number,omitempty"`
	Name     string    `json:"name"`
	Totals   T         `json:"totals"`
	Children []Node[T] `json:"children,omitempty"`
}

// Leaf is an account value attached under its owning group.
type Leaf[T any] struct {
	GroupID int64
	Account coa.Account
	Value   T
}

// Tree describes how values combine while building a hierarchy.
type Tree[T any] struct {
	// Add combines two values.
	Add func(a, b T) T
	// Keep reports whether a group whose only content is total should
	// still be emitted.
	Keep func(total T) bool
}

// Build arranges leaves under groups by following parent pointers. Groups
// without a known parent are roots. A group is emitted when it holds at
// least one emitted child or when Keep accepts its total. Leaves whose
// group is unknown are appended at the top level.
func (t Tree[T]) Build(groups []coa.Group, leaves []Leaf[T]) []Node[T] {
	known := make(map[int64]coa.Group, len(groups))
	for _, g := range groups {
		known[g.ID] = g
	}
	children := make(map[int64][]coa.Group)
	var roots []coa.Group
	for _, g := range groups {
		if g.ParentID != nil && *g.ParentID != g.ID {
			if _, ok := known[*g.ParentID]; ok {
				children[*g.ParentID] = append(children[*g.ParentID], g)
				continue
			}
		}
		roots = append(roots, g)
	}
	byGroup := make(map[int64][]Leaf[T])
	var orphans []Leaf[T]
	for _, l := range leaves {
		if _, ok := known[l.GroupID]; ok {
			byGroup[l.GroupID] = append(byGroup[l.GroupID], l)
			continue
		}
		orphans = append(orphans, l)
	}

	b := builder[T]{tree: t, children: children, leaves: byGroup, seen: map[int64]bool{}}
	sortGroups(roots)
	out := make([]Node[T], 0, len(roots)+len(orphans))
	for _, g := range roots {
		if node, ok := b.group(g); ok {
			out = append(out, node)
		}
	}
	sortLeaves(orphans)
	for _, l := range orphans {
		out = append(out, leafNode(l))
	}
	return out
}

// Sum totals the top-level nodes of a built hierarchy.
func (t Tree[T]) Sum(nodes []Node[T]) T {
	var total T
	for _, n := range nodes {
		total = t.Add(total, n.Totals)
	}
	return total
}

type builder[T any] struct {
	tree     Tree[T]
	children map[int64][]coa.Group
	leaves   map[int64][]Leaf[T]
	seen     map[int64]bool
}

func (b builder[T]) group(g coa.Group) (Node[T], bool) {
	// Stored groups are acyclic; seen guards against corrupt rows.
	if b.seen[g.ID] {
		return Node[T]{}, false
	}
	b.seen[g.ID] = true

	node := Node[T]{Kind: KindGroup, ID: g.ID, Name: g.Name}
	kids := b.children[g.ID]
	sortGroups(kids)
	for _, child := range kids {
		if sub, ok := b.group(child); ok {
			node.Totals = b.tree.Add(node.Totals, sub.Totals)
			node.Children = append(node.Children, sub)
		}
	}
	leaves := b.leaves[g.ID]
	sortLeaves(leaves)
	for _, l := range leaves {
		node.Totals = b.tree.Add(node.Totals, l.Value)
		node.Children = append(node.Children, leafNode(l))
	}
	if len(node.Children) == 0 && (b.tree.Keep == nil || !b.tree.Keep(node.Totals)) {
		return Node[T]{}, false
	}
	return node, true
}

func leafNode[T any](l Leaf[T]) Node[T] {
	return Node[T]{Kind: KindAccount, ID: l.Account.ID, Number: l.Account.Number, Name: l.Account.Name, Totals: l.Value}
}

func sortGroups(groups []coa.Group) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
}

func sortLeaves[T any](leaves []Leaf[T]) {
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Account.Number < leaves[j].Account.Number })
}
