package report

import (
	"testing"

	"budgetline/internal/domain"
)

func TestMonthlyTotals(t *testing.T) {
	items := []domain.BudgetItem{
		{MonthlyValues: domain.MonthlyValues{0: 10, 1: 20}},
		{MonthlyValues: domain.MonthlyValues{0: 5}},
	}
	totals := MonthlyTotals(items)
	if totals[0] != 15 {
		t.Fatalf("month 0 = %d, want 15", totals[0])
	}
	if totals[1] != 20 {
		t.Fatalf("month 1 = %d, want 20", totals[1])
	}
	if totals[2] != 0 {
		t.Fatalf("month 2 = %d, want 0", totals[2])
	}
}

func TestActualMonthlyTotals(t *testing.T) {
	txs := []domain.Transaction{
		{AmountCents: 12550, Date: "2026-01-15"},
		{AmountCents: 5000, Date: "2026-01-20"},
		{AmountCents: 9900, Date: "2025-01-20"}, // wrong year, skipped
		{AmountCents: 300, Date: "2026-03-01"},
	}
	totals := ActualMonthlyTotals(txs, 2026)
	if totals[0] != 175.50 {
		t.Fatalf("jan = %v, want 175.50", totals[0])
	}
	if totals[2] != 3 {
		t.Fatalf("mar = %v, want 3", totals[2])
	}
}

func TestGanttSpan(t *testing.T) {
	sp := GanttSpan("2026-01-11", "2026-01-20", "2026-01-01", "2026-01-21")
	if sp.LeftPct != 50 {
		t.Fatalf("left = %v, want 50", sp.LeftPct)
	}
	if sp.WidthPct != 50 {
		t.Fatalf("width = %v, want 50", sp.WidthPct)
	}
	// range entirely outside the window collapses
	if sp := GanttSpan("2027-01-01", "2027-02-01", "2026-01-01", "2026-12-31"); sp.WidthPct != 0 {
		t.Fatalf("out-of-window width = %v", sp.WidthPct)
	}
}

func TestActualBarEnd(t *testing.T) {
	done := "2026-01-18"
	p := domain.ProjectProcess{EndDate: "2026-01-20", ActualEndDate: &done}
	if got := ActualBarEnd(p, "2026-01-25"); got != "2026-01-18" {
		t.Fatalf("finished = %q", got)
	}
	p.ActualEndDate = nil
	if got := ActualBarEnd(p, "2026-01-15"); got != "2026-01-15" {
		t.Fatalf("in progress, today before planned end = %q", got)
	}
	if got := ActualBarEnd(p, "2026-02-01"); got != "2026-01-20" {
		t.Fatalf("in progress past planned end = %q", got)
	}
}
