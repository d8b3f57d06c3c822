// Package report derives display aggregates from budget and schedule data:
// monthly totals, actuals-vs-plan comparisons and gantt bar geometry.
package report

import (
	"time"

	"budgetline/internal/domain"
)

// MonthlyTotals sums budget items element-wise into twelve monthly totals.
func MonthlyTotals(items []domain.BudgetItem) [12]int64 {
	var totals [12]int64
	for _, it := range items {
		for m := 0; m < 12; m++ {
			totals[m] += it.MonthlyValues.Get(m)
		}
	}
	return totals
}

// ActualMonthlyTotals buckets transactions by month of their date, for one
// year, converting cents to whole units at this boundary.
func ActualMonthlyTotals(txs []domain.Transaction, year int) [12]float64 {
	var totals [12]float64
	for _, tx := range txs {
		d, err := time.Parse(domain.DateLayout, tx.Date)
		if err != nil || d.Year() != year {
			continue
		}
		totals[int(d.Month())-1] += float64(tx.AmountCents) / 100
	}
	return totals
}

// Span is a horizontal bar position in percent of the chart window.
type Span struct {
	LeftPct  float64
	WidthPct float64
}

// GanttSpan positions a date range within a chart window. Bars are clamped
// to the window; a range outside it collapses to zero width.
func GanttSpan(start, end, windowStart, windowEnd string) Span {
	s, err1 := time.Parse(domain.DateLayout, start)
	e, err2 := time.Parse(domain.DateLayout, end)
	ws, err3 := time.Parse(domain.DateLayout, windowStart)
	we, err4 := time.Parse(domain.DateLayout, windowEnd)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return Span{}
	}
	total := we.Sub(ws).Hours() / 24
	if total <= 0 {
		return Span{}
	}
	if s.Before(ws) {
		s = ws
	}
	if e.After(we) {
		e = we
	}
	if e.Before(s) {
		return Span{}
	}
	left := s.Sub(ws).Hours() / 24 / total * 100
	width := (e.Sub(s).Hours()/24 + 1) / total * 100
	if left+width > 100 {
		width = 100 - left
	}
	return Span{LeftPct: left, WidthPct: width}
}

// ActualBarEnd picks the end date for a process's actuals bar. A finished
// process uses its actual end; an unfinished one runs to today, except that
// the bar never extends past the planned end when today is beyond it.
func ActualBarEnd(p domain.ProjectProcess, today string) string {
	if p.ActualEndDate != nil && *p.ActualEndDate != "" {
		return *p.ActualEndDate
	}
	if today < p.EndDate || p.EndDate == "" {
		return today
	}
	return p.EndDate
}
