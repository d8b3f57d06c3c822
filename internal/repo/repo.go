package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"budgetline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func (r Repo) InsertCompany(ctx context.Context, c domain.Company) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO companies(id,name,status,created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, c.Status, c.CreatedAt)
	return err
}

func (r Repo) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	var c domain.Company
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM companies WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) SingleCompany(ctx context.Context) (domain.Company, error) {
	companies, err := r.ListCompanies(ctx)
	if err != nil {
		return domain.Company{}, err
	}
	if len(companies) == 0 {
		return domain.Company{}, ErrNotFound
	}
	if len(companies) > 1 {
		return domain.Company{}, fmt.Errorf("multiple companies exist; specify --company")
	}
	return companies[0], nil
}

func (r Repo) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM companies ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

func (r Repo) UpdateCompany(ctx context.Context, id string, name, status *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE companies SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertDepartment(ctx context.Context, tx *sql.Tx, d domain.Department) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO departments(id,company_id,name,created_at) VALUES (?,?,?,?)`,
		d.ID, d.CompanyID, d.Name, d.CreatedAt)
	return err
}

func (r Repo) GetDepartment(ctx context.Context, id string) (domain.Department, error) {
	var d domain.Department
	err := r.DB.QueryRowContext(ctx, `SELECT id,company_id,name,created_at FROM departments WHERE id=?`, id).
		Scan(&d.ID, &d.CompanyID, &d.Name, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) ListDepartments(ctx context.Context, companyID string) ([]domain.Department, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,company_id,name,created_at FROM departments WHERE company_id=? ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Department
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func (r Repo) DeleteDepartment(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM departments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertCostGroup(ctx context.Context, tx *sql.Tx, g domain.CostGroup) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cost_groups(id,department_id,name,kind,created_at) VALUES (?,?,?,?,?)`,
		g.ID, g.DepartmentID, g.Name, g.Kind, g.CreatedAt)
	return err
}

func (r Repo) GetCostGroup(ctx context.Context, id string) (domain.CostGroup, error) {
	var g domain.CostGroup
	err := r.DB.QueryRowContext(ctx, `SELECT id,department_id,name,kind,created_at FROM cost_groups WHERE id=?`, id).
		Scan(&g.ID, &g.DepartmentID, &g.Name, &g.Kind, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) ListCostGroups(ctx context.Context, departmentID string) ([]domain.CostGroup, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,department_id,name,kind,created_at FROM cost_groups WHERE department_id=? ORDER BY name`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CostGroup
	for rows.Next() {
		var g domain.CostGroup
		if err := rows.Scan(&g.ID, &g.DepartmentID, &g.Name, &g.Kind, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, nil
}

func (r Repo) DeleteCostGroup(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM cost_groups WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,company_id,name,start_date,end_date,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.CompanyID, p.Name, nullable(p.StartDate), nullable(p.EndDate), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var start, end sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,company_id,name,start_date,end_date,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.CompanyID, &p.Name, &start, &end, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if start.Valid {
		p.StartDate = start.String
	}
	if end.Valid {
		p.EndDate = end.String
	}
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context, companyID string) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,company_id,name,start_date,end_date,created_at FROM projects WHERE company_id=? ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var start, end sql.NullString
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &start, &end, &p.CreatedAt); err != nil {
			return nil, err
		}
		if start.Valid {
			p.StartDate = start.String
		}
		if end.Valid {
			p.EndDate = end.String
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) UpdateProject(ctx context.Context, id string, name, startDate, endDate *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if startDate != nil {
		fields = append(fields, "start_date=?")
		args = append(args, nullable(*startDate))
	}
	if endDate != nil {
		fields = append(fields, "end_date=?")
		args = append(args, nullable(*endDate))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertPhase(ctx context.Context, tx *sql.Tx, ph domain.ProjectPhase) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_phases(id,project_id,name,created_at) VALUES (?,?,?,?)`,
		ph.ID, ph.ProjectID, ph.Name, ph.CreatedAt)
	return err
}

func (r Repo) GetPhase(ctx context.Context, id string) (domain.ProjectPhase, error) {
	var ph domain.ProjectPhase
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,created_at FROM project_phases WHERE id=?`, id).
		Scan(&ph.ID, &ph.ProjectID, &ph.Name, &ph.CreatedAt)
	if err == sql.ErrNoRows {
		return ph, ErrNotFound
	}
	return ph, err
}

func (r Repo) ListPhases(ctx context.Context, projectID string) ([]domain.ProjectPhase, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,created_at FROM project_phases WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectPhase
	for rows.Next() {
		var ph domain.ProjectPhase
		if err := rows.Scan(&ph.ID, &ph.ProjectID, &ph.Name, &ph.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, ph)
	}
	return res, nil
}

func (r Repo) DeletePhase(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM project_phases WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
