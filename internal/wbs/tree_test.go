package wbs

import (
	"testing"

	"budgetline/internal/domain"
)

func proc(wbs, name, start, end string) domain.ProjectProcess {
	return domain.ProjectProcess{ID: "p-" + wbs, ProjectID: "prj", WBS: wbs, Name: name, StartDate: start, EndDate: end}
}

func TestBuildRollup(t *testing.T) {
	roots := Build([]domain.ProjectProcess{
		proc("1.2", "design", "2026-01-10", "2026-01-20"),
		proc("1", "phase one", "2026-03-01", "2026-03-02"),
		proc("1.1", "kickoff", "2026-01-01", "2026-01-05"),
		proc("2", "phase two", "2026-02-01", "2026-02-10"),
	})
	if len(roots) != 2 {
		t.Fatalf("roots = %d, want 2", len(roots))
	}
	group := roots[0]
	if group.Process.WBS != "1" || !group.IsGroup() {
		t.Fatalf("first root should be group 1, got %q group=%v", group.Process.WBS, group.IsGroup())
	}
	// group dates come from the leaves, not its own planned dates
	if group.Start != "2026-01-01" || group.End != "2026-01-20" {
		t.Fatalf("group span = %s..%s", group.Start, group.End)
	}
	if group.Days != 20 {
		t.Fatalf("group days = %d, want 20", group.Days)
	}
	if len(group.Children) != 2 || group.Children[0].Process.WBS != "1.1" {
		t.Fatalf("children misordered: %+v", group.Children)
	}
	leaf := group.Children[0]
	if leaf.Days != 5 {
		t.Fatalf("leaf 1.1 days = %d, want 5", leaf.Days)
	}
}

func TestBuildMissingParent(t *testing.T) {
	// "1.1" with no "1" attaches at the root
	roots := Build([]domain.ProjectProcess{
		proc("1.1", "orphan", "2026-01-01", "2026-01-02"),
		proc("2", "real", "2026-01-03", "2026-01-04"),
	})
	if len(roots) != 2 {
		t.Fatalf("roots = %d, want 2", len(roots))
	}
	if roots[0].Process.WBS != "1.1" {
		t.Fatalf("first root = %q", roots[0].Process.WBS)
	}
}

func TestFlatten(t *testing.T) {
	roots := Build([]domain.ProjectProcess{
		proc("1", "a", "2026-01-01", "2026-01-02"),
		proc("1.1", "b", "2026-01-01", "2026-01-02"),
		proc("1.10", "c", "2026-01-03", "2026-01-04"),
		proc("1.2", "d", "2026-01-02", "2026-01-03"),
	})
	rows := Flatten(roots)
	if len(rows) != 4 {
		t.Fatalf("rows = %d", len(rows))
	}
	order := []string{"1", "1.1", "1.2", "1.10"}
	levels := []int{0, 1, 1, 1}
	for i, r := range rows {
		if r.Process.WBS != order[i] || r.Level != levels[i] {
			t.Errorf("row %d = %q level %d, want %q level %d", i, r.Process.WBS, r.Level, order[i], levels[i])
		}
	}
	if !rows[0].IsGroup || rows[1].IsGroup {
		t.Fatal("group flags wrong")
	}
}
