package repo

import (
	"context"
	"database/sql"

	"budgetline/internal/domain"
)

const processCols = `id,project_id,wbs,name,start_date,end_date,actual_start_date,actual_end_date,status,current_revision,previous_start_date,previous_end_date,created_at,updated_at`

func scanProcess(scan func(dest ...any) error) (domain.ProjectProcess, error) {
	var p domain.ProjectProcess
	var actualStart, actualEnd, prevStart, prevEnd sql.NullString
	err := scan(&p.ID, &p.ProjectID, &p.WBS, &p.Name, &p.StartDate, &p.EndDate, &actualStart, &actualEnd,
		&p.Status, &p.CurrentRevision, &prevStart, &prevEnd, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if actualStart.Valid {
		p.ActualStartDate = &actualStart.String
	}
	if actualEnd.Valid {
		p.ActualEndDate = &actualEnd.String
	}
	if prevStart.Valid {
		p.PreviousStartDate = &prevStart.String
	}
	if prevEnd.Valid {
		p.PreviousEndDate = &prevEnd.String
	}
	return p, nil
}

func (r Repo) InsertProcess(ctx context.Context, tx *sql.Tx, p domain.ProjectProcess) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_processes(id,project_id,wbs,name,start_date,end_date,actual_start_date,actual_end_date,status,current_revision,previous_start_date,previous_end_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.WBS, p.Name, p.StartDate, p.EndDate,
		nullableStringPtr(p.ActualStartDate), nullableStringPtr(p.ActualEndDate),
		p.Status, p.CurrentRevision, nullableStringPtr(p.PreviousStartDate), nullableStringPtr(p.PreviousEndDate),
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProcess(ctx context.Context, tx *sql.Tx, p domain.ProjectProcess) error {
	_, err := tx.ExecContext(ctx, `UPDATE project_processes SET wbs=?, name=?, start_date=?, end_date=?, actual_start_date=?, actual_end_date=?, status=?, current_revision=?, previous_start_date=?, previous_end_date=?, updated_at=? WHERE id=?`,
		p.WBS, p.Name, p.StartDate, p.EndDate,
		nullableStringPtr(p.ActualStartDate), nullableStringPtr(p.ActualEndDate),
		p.Status, p.CurrentRevision, nullableStringPtr(p.PreviousStartDate), nullableStringPtr(p.PreviousEndDate),
		p.UpdatedAt, p.ID)
	return err
}

func (r Repo) GetProcess(ctx context.Context, id string) (domain.ProjectProcess, error) {
	return scanProcess(r.DB.QueryRowContext(ctx, `SELECT `+processCols+` FROM project_processes WHERE id=?`, id).Scan)
}

func (r Repo) GetProcessTx(ctx context.Context, tx *sql.Tx, id string) (domain.ProjectProcess, error) {
	return scanProcess(tx.QueryRowContext(ctx, `SELECT `+processCols+` FROM project_processes WHERE id=?`, id).Scan)
}

func (r Repo) ListProcesses(ctx context.Context, projectID string) ([]domain.ProjectProcess, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+processCols+` FROM project_processes WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectProcess
	for rows.Next() {
		p, err := scanProcess(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// ListProcessesTx reads a project's processes inside a transaction so the
// WBS rename cascade operates on a consistent snapshot.
func (r Repo) ListProcessesTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.ProjectProcess, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+processCols+` FROM project_processes WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectProcess
	for rows.Next() {
		p, err := scanProcess(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) UpdateProcessWBS(ctx context.Context, tx *sql.Tx, id, wbs, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE project_processes SET wbs=?, updated_at=? WHERE id=?`, wbs, updatedAt, id)
	return err
}

func (r Repo) ProcessWBSExists(ctx context.Context, tx *sql.Tx, projectID, wbs string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_processes WHERE project_id=? AND wbs=?`, projectID, wbs).Scan(&n)
	return n > 0, err
}

func (r Repo) DeleteProcess(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM process_revisions WHERE process_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM project_processes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertProcessRevision(ctx context.Context, tx *sql.Tx, rev domain.ProcessRevision) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO process_revisions(process_id,revision,start_date,end_date,editor_name,reason,created_at) VALUES (?,?,?,?,?,?,?)`,
		rev.ProcessID, rev.Revision, rev.StartDate, rev.EndDate, rev.EditorName, nullable(rev.Reason), rev.CreatedAt)
	return err
}

func (r Repo) ListProcessRevisions(ctx context.Context, processID string) ([]domain.ProcessRevision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,process_id,revision,start_date,end_date,editor_name,reason,created_at FROM process_revisions WHERE process_id=? ORDER BY revision, id`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProcessRevision
	for rows.Next() {
		var rev domain.ProcessRevision
		var reason sql.NullString
		if err := rows.Scan(&rev.ID, &rev.ProcessID, &rev.Revision, &rev.StartDate, &rev.EndDate, &rev.EditorName, &reason, &rev.CreatedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			rev.Reason = reason.String
		}
		res = append(res, rev)
	}
	return res, nil
}
