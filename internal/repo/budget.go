package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"budgetline/internal/domain"
)

func marshalMonthly(m domain.MonthlyValues) (string, error) {
	if m == nil {
		m = domain.MonthlyValues{}
	}
	data, err := json.Marshal(m)
	return string(data), err
}

func unmarshalMonthly(s string) (domain.MonthlyValues, error) {
	if s == "" {
		return domain.MonthlyValues{}, nil
	}
	var m domain.MonthlyValues
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r Repo) InsertBudgetItem(ctx context.Context, tx *sql.Tx, it domain.BudgetItem) error {
	values, err := marshalMonthly(it.MonthlyValues)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO budget_items(id,cost_group_id,phase_id,name,year,monthly_values_json,status,current_revision,previous_approved_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, nullableStringPtr(it.CostGroupID), nullableStringPtr(it.PhaseID), it.Name, it.Year, values,
		it.Status, it.CurrentRevision, nil, it.CreatedAt, it.UpdatedAt)
	return err
}

func (r Repo) UpdateBudgetItem(ctx context.Context, tx *sql.Tx, it domain.BudgetItem) error {
	values, err := marshalMonthly(it.MonthlyValues)
	if err != nil {
		return err
	}
	var prev any
	if it.PreviousApproved != nil {
		s, err := marshalMonthly(it.PreviousApproved)
		if err != nil {
			return err
		}
		prev = s
	}
	_, err = tx.ExecContext(ctx, `UPDATE budget_items SET name=?, year=?, monthly_values_json=?, status=?, current_revision=?, previous_approved_json=?, updated_at=? WHERE id=?`,
		it.Name, it.Year, values, it.Status, it.CurrentRevision, prev, it.UpdatedAt, it.ID)
	return err
}

func scanBudgetItem(scan func(dest ...any) error) (domain.BudgetItem, error) {
	var it domain.BudgetItem
	var costGroupID, phaseID, prev sql.NullString
	var values string
	err := scan(&it.ID, &costGroupID, &phaseID, &it.Name, &it.Year, &values, &it.Status, &it.CurrentRevision, &prev, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	if costGroupID.Valid {
		it.CostGroupID = &costGroupID.String
	}
	if phaseID.Valid {
		it.PhaseID = &phaseID.String
	}
	if it.MonthlyValues, err = unmarshalMonthly(values); err != nil {
		return it, err
	}
	if prev.Valid {
		if it.PreviousApproved, err = unmarshalMonthly(prev.String); err != nil {
			return it, err
		}
	}
	return it, nil
}

const budgetItemCols = `id,cost_group_id,phase_id,name,year,monthly_values_json,status,current_revision,previous_approved_json,created_at,updated_at`

func (r Repo) GetBudgetItem(ctx context.Context, id string) (domain.BudgetItem, error) {
	return scanBudgetItem(r.DB.QueryRowContext(ctx, `SELECT `+budgetItemCols+` FROM budget_items WHERE id=?`, id).Scan)
}

func (r Repo) GetBudgetItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.BudgetItem, error) {
	return scanBudgetItem(tx.QueryRowContext(ctx, `SELECT `+budgetItemCols+` FROM budget_items WHERE id=?`, id).Scan)
}

type BudgetItemFilters struct {
	CostGroupID string
	PhaseID     string
	Year        int
	Status      string
}

func (r Repo) ListBudgetItems(ctx context.Context, f BudgetItemFilters) ([]domain.BudgetItem, error) {
	var clauses []string
	var args []any
	if f.CostGroupID != "" {
		clauses = append(clauses, "cost_group_id=?")
		args = append(args, f.CostGroupID)
	}
	if f.PhaseID != "" {
		clauses = append(clauses, "phase_id=?")
		args = append(args, f.PhaseID)
	}
	if f.Year != 0 {
		clauses = append(clauses, "year=?")
		args = append(args, f.Year)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+budgetItemCols+` FROM budget_items `+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BudgetItem
	for rows.Next() {
		it, err := scanBudgetItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, nil
}

func (r Repo) DeleteBudgetItem(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM budget_revisions WHERE item_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM budget_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertBudgetRevision(ctx context.Context, tx *sql.Tx, rev domain.BudgetRevision) error {
	values, err := marshalMonthly(rev.MonthlyValues)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO budget_revisions(item_id,revision,monthly_values_json,editor_name,reason,created_at) VALUES (?,?,?,?,?,?)`,
		rev.ItemID, rev.Revision, values, rev.EditorName, nullable(rev.Reason), rev.CreatedAt)
	return err
}

func (r Repo) ListBudgetRevisions(ctx context.Context, itemID string) ([]domain.BudgetRevision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,item_id,revision,monthly_values_json,editor_name,reason,created_at FROM budget_revisions WHERE item_id=? ORDER BY revision, id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BudgetRevision
	for rows.Next() {
		var rev domain.BudgetRevision
		var values string
		var reason sql.NullString
		if err := rows.Scan(&rev.ID, &rev.ItemID, &rev.Revision, &values, &rev.EditorName, &reason, &rev.CreatedAt); err != nil {
			return nil, err
		}
		if rev.MonthlyValues, err = unmarshalMonthly(values); err != nil {
			return nil, err
		}
		if reason.Valid {
			rev.Reason = reason.String
		}
		res = append(res, rev)
	}
	return res, nil
}
