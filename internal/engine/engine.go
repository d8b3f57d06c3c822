package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"budgetline/internal/config"
	"budgetline/internal/domain"
	"budgetline/internal/engine/auth"
	"budgetline/internal/events"
	"budgetline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// eventWriter binds the audit writer to the engine clock so event timestamps
// follow an injected Now.
func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

func (e Engine) today() string {
	return e.now().UTC().Format(domain.DateLayout)
}

func newID() string {
	return uuid.New().String()
}

func validDate(s string) error {
	if _, err := time.Parse(domain.DateLayout, s); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return nil
}

// InitCompany creates a company with default config, migrations already run.
func (e Engine) InitCompany(ctx context.Context, companyID, name, actorID string) (domain.Company, error) {
	if name == "" {
		name = companyID
	}
	c := domain.Company{
		ID:        companyID,
		Name:      name,
		Status:    "active",
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Company{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO companies(id,name,status,created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, c.Status, c.CreatedAt); err != nil {
		return domain.Company{}, fmt.Errorf("insert company: %w", err)
	}
	if err := e.Repo.UpsertCompanyConfigTx(ctx, tx, c.ID, config.Default(c.ID)); err != nil {
		return domain.Company{}, fmt.Errorf("insert company config: %w", err)
	}
	if err := e.eventWriter().Append(ctx, tx, "company.init", c.ID, "company", c.ID, actorID, events.EventPayload{"name": c.Name}); err != nil {
		return domain.Company{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

func (e Engine) CreateDepartment(ctx context.Context, companyID, name, actorID string) (domain.Department, error) {
	if name == "" {
		return domain.Department{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return domain.Department{}, err
	}
	d := domain.Department{
		ID:        newID(),
		CompanyID: companyID,
		Name:      name,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDepartment(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.eventWriter().Append(ctx, tx, "department.created", companyID, "department", d.ID, actorID, events.EventPayload{"name": d.Name}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func (e Engine) CreateCostGroup(ctx context.Context, departmentID, name, kind, actorID string) (domain.CostGroup, error) {
	if name == "" {
		return domain.CostGroup{}, errors.New("name is required")
	}
	if kind == "" {
		kind = "cost"
	}
	if kind != "cost" && kind != "revenue" {
		return domain.CostGroup{}, fmt.Errorf("invalid cost group kind %s", kind)
	}
	dep, err := e.Repo.GetDepartment(ctx, departmentID)
	if err != nil {
		return domain.CostGroup{}, err
	}
	g := domain.CostGroup{
		ID:           newID(),
		DepartmentID: departmentID,
		Name:         name,
		Kind:         kind,
		CreatedAt:    e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return g, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCostGroup(ctx, tx, g); err != nil {
		return g, err
	}
	if err := e.eventWriter().Append(ctx, tx, "cost_group.created", dep.CompanyID, "cost_group", g.ID, actorID, events.EventPayload{"name": g.Name, "kind": g.Kind}); err != nil {
		return g, err
	}
	if err := tx.Commit(); err != nil {
		return g, err
	}
	return g, nil
}

func (e Engine) CreateProject(ctx context.Context, companyID, name, startDate, endDate, actorID string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return domain.Project{}, err
	}
	if startDate != "" {
		if err := validDate(startDate); err != nil {
			return domain.Project{}, err
		}
	}
	if endDate != "" {
		if err := validDate(endDate); err != nil {
			return domain.Project{}, err
		}
	}
	p := domain.Project{
		ID:        newID(),
		CompanyID: companyID,
		Name:      name,
		StartDate: startDate,
		EndDate:   endDate,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.eventWriter().Append(ctx, tx, "project.created", companyID, "project", p.ID, actorID, events.EventPayload{"name": p.Name}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

func (e Engine) CreatePhase(ctx context.Context, projectID, name, actorID string) (domain.ProjectPhase, error) {
	if name == "" {
		return domain.ProjectPhase{}, errors.New("name is required")
	}
	prj, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.ProjectPhase{}, err
	}
	ph := domain.ProjectPhase{
		ID:        newID(),
		ProjectID: projectID,
		Name:      name,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ph, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPhase(ctx, tx, ph); err != nil {
		return ph, err
	}
	if err := e.eventWriter().Append(ctx, tx, "phase.created", prj.CompanyID, "phase", ph.ID, actorID, events.EventPayload{"name": ph.Name}); err != nil {
		return ph, err
	}
	if err := tx.Commit(); err != nil {
		return ph, err
	}
	return ph, nil
}

func (e Engine) CreateTransaction(ctx context.Context, t domain.Transaction, actorID string) (domain.Transaction, error) {
	if t.Name == "" {
		return t, errors.New("name is required")
	}
	if err := validDate(t.Date); err != nil {
		return t, err
	}
	if (t.CostGroupID == nil) == (t.PhaseID == nil) {
		return t, errors.New("exactly one of cost-group or phase is required")
	}
	if _, err := e.Repo.GetCompany(ctx, t.CompanyID); err != nil {
		return t, err
	}
	t.ID = newID()
	t.CreatedAt = e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTransaction(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.eventWriter().Append(ctx, tx, "transaction.created", t.CompanyID, "transaction", t.ID, actorID, events.EventPayload{
		"name":         t.Name,
		"amount_cents": t.AmountCents,
		"date":         t.Date,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}
