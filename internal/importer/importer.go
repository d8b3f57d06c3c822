// Package importer reads and writes CSV snapshots of budget items and
// project processes. Imports are best-effort: each row is created through the
// engine on its own, and failures are collected per line instead of aborting
// the batch.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"budgetline/internal/domain"
	"budgetline/internal/engine"
)

// RowError records a single rejected CSV line.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Result summarizes an import run.
type Result struct {
	Imported int        `json:"imported"`
	Errors   []RowError `json:"errors,omitempty"`
}

var budgetHeader = []string{
	"cost_group_id", "phase_id", "name", "year",
	"m0", "m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9", "m10", "m11",
}

var processHeader = []string{"wbs", "name", "start_date", "end_date"}

// ExportBudgetItems writes items as CSV, one row per item, months as twelve
// value columns.
func ExportBudgetItems(w io.Writer, items []domain.BudgetItem) error {
	cw := csv.NewWriter(w)
	header := append([]string{"id", "status"}, budgetHeader...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, it := range items {
		row := []string{it.ID, it.Status, deref(it.CostGroupID), deref(it.PhaseID), it.Name, strconv.Itoa(it.Year)}
		for m := 0; m < 12; m++ {
			row = append(row, strconv.FormatInt(it.MonthlyValues[m], 10))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportBudgetItems creates one draft budget item per CSV row. The expected
// header is cost_group_id,phase_id,name,year,m0..m11; exactly one of
// cost_group_id and phase_id must be set per row.
func ImportBudgetItems(ctx context.Context, e engine.Engine, r io.Reader, actorID string) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	offset, err := headerOffset(header, budgetHeader)
	if err != nil {
		return Result{}, err
	}
	var res Result
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		if len(rec) != offset+len(budgetHeader) {
			res.Errors = append(res.Errors, RowError{Line: line, Err: fmt.Sprintf("expected %d columns, got %d", offset+len(budgetHeader), len(rec))})
			continue
		}
		opts, err := budgetRowOptions(rec[offset:], actorID)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		if _, err := e.CreateBudgetItem(ctx, opts); err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		res.Imported++
	}
	return res, nil
}

func budgetRowOptions(rec []string, actorID string) (engine.BudgetItemCreateOptions, error) {
	year, err := strconv.Atoi(strings.TrimSpace(rec[3]))
	if err != nil {
		return engine.BudgetItemCreateOptions{}, fmt.Errorf("invalid year %q", rec[3])
	}
	values := domain.MonthlyValues{}
	for m := 0; m < 12; m++ {
		raw := strings.TrimSpace(rec[4+m])
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return engine.BudgetItemCreateOptions{}, fmt.Errorf("invalid value for month %d: %q", m, raw)
		}
		if v != 0 {
			values[m] = v
		}
	}
	return engine.BudgetItemCreateOptions{
		CostGroupID:   strings.TrimSpace(rec[0]),
		PhaseID:       strings.TrimSpace(rec[1]),
		Name:          strings.TrimSpace(rec[2]),
		Year:          year,
		MonthlyValues: values,
		ActorID:       actorID,
	}, nil
}

// ExportProcesses writes a project's processes as CSV ordered as given.
func ExportProcesses(w io.Writer, procs []domain.ProjectProcess) error {
	cw := csv.NewWriter(w)
	header := append([]string{"id", "status"}, processHeader...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range procs {
		if err := cw.Write([]string{p.ID, p.Status, p.WBS, p.Name, p.StartDate, p.EndDate}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportProcesses creates one draft process per CSV row under the given
// project. The expected header is wbs,name,start_date,end_date. Rows are
// applied in file order, so parents should precede children when WBS
// uniqueness matters.
func ImportProcesses(ctx context.Context, e engine.Engine, projectID string, r io.Reader, actorID string) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	offset, err := headerOffset(header, processHeader)
	if err != nil {
		return Result{}, err
	}
	var res Result
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		if len(rec) != offset+len(processHeader) {
			res.Errors = append(res.Errors, RowError{Line: line, Err: fmt.Sprintf("expected %d columns, got %d", offset+len(processHeader), len(rec))})
			continue
		}
		rec = rec[offset:]
		opts := engine.ProcessCreateOptions{
			ProjectID: projectID,
			WBS:       strings.TrimSpace(rec[0]),
			Name:      strings.TrimSpace(rec[1]),
			StartDate: strings.TrimSpace(rec[2]),
			EndDate:   strings.TrimSpace(rec[3]),
			ActorID:   actorID,
		}
		if _, err := e.CreateProcess(ctx, opts); err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		res.Imported++
	}
	return res, nil
}

// headerOffset validates the header and returns the number of leading columns
// to skip. Exported files carry id,status ahead of the editable columns and
// can be re-imported as-is.
func headerOffset(got, want []string) (int, error) {
	offset := 0
	if len(got) > 0 && strings.TrimSpace(strings.ToLower(got[0])) == "id" {
		offset = 2
	}
	if len(got) < offset+len(want) {
		return 0, fmt.Errorf("header mismatch: want %s", strings.Join(want, ","))
	}
	for i, col := range want {
		if strings.TrimSpace(strings.ToLower(got[offset+i])) != col {
			return 0, fmt.Errorf("header mismatch at column %d: want %s", offset+i+1, col)
		}
	}
	return offset, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
