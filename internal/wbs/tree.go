package wbs

import (
	"sort"
	"time"

	"budgetline/internal/domain"
)

// Node is one process placed in the WBS hierarchy. Children are ordered by
// WBS key. A node with children is a group: its Start, End and Days are
// rolled up from its leaf descendants and its own planned dates are ignored.
type Node struct {
	Process  domain.ProjectProcess
	Children []*Node

	Start string
	End   string
	Days  int
}

// IsGroup reports whether the node has WBS descendants.
func (n *Node) IsGroup() bool { return len(n.Children) > 0 }

// Row is one line of the flattened tree, in pre-order with depth.
type Row struct {
	Process domain.ProjectProcess
	Level   int
	IsGroup bool
	Start   string
	End     string
	Days    int
}

// Build assembles processes into a forest keyed by WBS. Parentage is implicit
// in the keys: "1.2" attaches under "1" when a process with key "1" exists,
// otherwise under the nearest existing ancestor, otherwise at the root. Date
// rollups are computed for every node before returning.
func Build(processes []domain.ProjectProcess) []*Node {
	sorted := make([]domain.ProjectProcess, len(processes))
	copy(sorted, processes)
	sort.Slice(sorted, func(i, j int) bool {
		return Compare(sorted[i].WBS, sorted[j].WBS) < 0
	})

	byKey := make(map[string]*Node, len(sorted))
	var roots []*Node
	for _, p := range sorted {
		n := &Node{Process: p}
		byKey[p.WBS] = n
		parent := findAncestor(byKey, p.WBS)
		if parent == nil {
			roots = append(roots, n)
		} else {
			parent.Children = append(parent.Children, n)
		}
	}
	for _, r := range roots {
		rollup(r)
	}
	return roots
}

// findAncestor walks up the key's parent chain until it hits a node already
// placed. Keys were inserted in WBS order, so ancestors precede descendants.
func findAncestor(byKey map[string]*Node, key string) *Node {
	for k := Parent(key); k != ""; k = Parent(k) {
		if n, ok := byKey[k]; ok {
			return n
		}
	}
	return nil
}

// rollup fills the node's effective dates. Leaves carry their own planned
// dates; groups take min(start) and max(end) over their leaf descendants.
// Days counts both endpoints: a process from Jan 1 to Jan 20 lasts 20 days.
func rollup(n *Node) (start, end string) {
	if !n.IsGroup() {
		n.Start = n.Process.StartDate
		n.End = n.Process.EndDate
		n.Days = spanDays(n.Start, n.End)
		return n.Start, n.End
	}
	for _, c := range n.Children {
		cs, ce := rollup(c)
		if cs != "" && (n.Start == "" || cs < n.Start) {
			n.Start = cs
		}
		if ce != "" && (n.End == "" || ce > n.End) {
			n.End = ce
		}
	}
	n.Days = spanDays(n.Start, n.End)
	return n.Start, n.End
}

func spanDays(start, end string) int {
	s, err1 := time.Parse(domain.DateLayout, start)
	e, err2 := time.Parse(domain.DateLayout, end)
	if err1 != nil || err2 != nil || e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// Flatten walks the forest in pre-order, emitting one row per node with its
// depth and rolled-up dates.
func Flatten(roots []*Node) []Row {
	var rows []Row
	var walk func(n *Node, level int)
	walk = func(n *Node, level int) {
		rows = append(rows, Row{
			Process: n.Process,
			Level:   level,
			IsGroup: n.IsGroup(),
			Start:   n.Start,
			End:     n.End,
			Days:    n.Days,
		})
		for _, c := range n.Children {
			walk(c, level+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return rows
}
