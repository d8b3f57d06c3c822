package repo

import (
	"context"
	"database/sql"
	"strings"

	"budgetline/internal/domain"
)

func (r Repo) InsertTransaction(ctx context.Context, tx *sql.Tx, t domain.Transaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO transactions(id,company_id,cost_group_id,phase_id,name,amount_cents,tx_date,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.CompanyID, nullableStringPtr(t.CostGroupID), nullableStringPtr(t.PhaseID), t.Name, t.AmountCents, t.Date, t.CreatedAt)
	return err
}

func (r Repo) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	var t domain.Transaction
	var costGroupID, phaseID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,company_id,cost_group_id,phase_id,name,amount_cents,tx_date,created_at FROM transactions WHERE id=?`, id).
		Scan(&t.ID, &t.CompanyID, &costGroupID, &phaseID, &t.Name, &t.AmountCents, &t.Date, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if costGroupID.Valid {
		t.CostGroupID = &costGroupID.String
	}
	if phaseID.Valid {
		t.PhaseID = &phaseID.String
	}
	return t, nil
}

type TransactionFilters struct {
	CompanyID   string
	CostGroupID string
	PhaseID     string
	FromDate    string
	ToDate      string
}

func (r Repo) ListTransactions(ctx context.Context, f TransactionFilters) ([]domain.Transaction, error) {
	var clauses []string
	var args []any
	if f.CompanyID != "" {
		clauses = append(clauses, "company_id=?")
		args = append(args, f.CompanyID)
	}
	if f.CostGroupID != "" {
		clauses = append(clauses, "cost_group_id=?")
		args = append(args, f.CostGroupID)
	}
	if f.PhaseID != "" {
		clauses = append(clauses, "phase_id=?")
		args = append(args, f.PhaseID)
	}
	if f.FromDate != "" {
		clauses = append(clauses, "tx_date>=?")
		args = append(args, f.FromDate)
	}
	if f.ToDate != "" {
		clauses = append(clauses, "tx_date<=?")
		args = append(args, f.ToDate)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,company_id,cost_group_id,phase_id,name,amount_cents,tx_date,created_at FROM transactions `+where+` ORDER BY tx_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var costGroupID, phaseID sql.NullString
		if err := rows.Scan(&t.ID, &t.CompanyID, &costGroupID, &phaseID, &t.Name, &t.AmountCents, &t.Date, &t.CreatedAt); err != nil {
			return nil, err
		}
		if costGroupID.Valid {
			t.CostGroupID = &costGroupID.String
		}
		if phaseID.Valid {
			t.PhaseID = &phaseID.String
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM transactions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
