package engine

import (
	"context"
	"errors"
	"fmt"

	"budgetline/internal/domain"
	"budgetline/internal/events"
	"budgetline/internal/repo"
)

// BudgetItemCreateOptions are parameters for creating a budget item.
type BudgetItemCreateOptions struct {
	CostGroupID   string
	PhaseID       string
	Name          string
	Year          int
	MonthlyValues domain.MonthlyValues
	ActorID       string
}

func (e Engine) CreateBudgetItem(ctx context.Context, opts BudgetItemCreateOptions) (domain.BudgetItem, error) {
	if opts.Name == "" {
		return domain.BudgetItem{}, errors.New("name is required")
	}
	if opts.Year == 0 {
		return domain.BudgetItem{}, errors.New("year is required")
	}
	if (opts.CostGroupID == "") == (opts.PhaseID == "") {
		return domain.BudgetItem{}, errors.New("exactly one of cost-group or phase is required")
	}
	if err := validateMonthlyValues(opts.MonthlyValues); err != nil {
		return domain.BudgetItem{}, err
	}
	companyID, err := e.budgetScopeCompany(ctx, opts.CostGroupID, opts.PhaseID)
	if err != nil {
		return domain.BudgetItem{}, err
	}
	now := e.timestamp()
	it := domain.BudgetItem{
		ID:              newID(),
		CostGroupID:     optionalString(opts.CostGroupID),
		PhaseID:         optionalString(opts.PhaseID),
		Name:            opts.Name,
		Year:            opts.Year,
		MonthlyValues:   opts.MonthlyValues.Clone(),
		Status:          domain.StatusDraft,
		CurrentRevision: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if it.MonthlyValues == nil {
		it.MonthlyValues = domain.MonthlyValues{}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return it, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertBudgetItem(ctx, tx, it); err != nil {
		return it, err
	}
	if err := e.eventWriter().Append(ctx, tx, "budget_item.created", companyID, "budget_item", it.ID, opts.ActorID, events.EventPayload{
		"name": it.Name,
		"year": it.Year,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	return it, nil
}

func validateMonthlyValues(m domain.MonthlyValues) error {
	for month, v := range m {
		if month < 0 || month > 11 {
			return fmt.Errorf("month index %d out of range 0-11", month)
		}
		if v < 0 {
			return fmt.Errorf("month %d value must not be negative", month)
		}
	}
	return nil
}

// budgetScopeCompany resolves the company a budget item belongs to through
// its cost group or phase.
func (e Engine) budgetScopeCompany(ctx context.Context, costGroupID, phaseID string) (string, error) {
	if costGroupID != "" {
		g, err := e.Repo.GetCostGroup(ctx, costGroupID)
		if err != nil {
			return "", err
		}
		dep, err := e.Repo.GetDepartment(ctx, g.DepartmentID)
		if err != nil {
			return "", err
		}
		return dep.CompanyID, nil
	}
	ph, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return "", err
	}
	prj, err := e.Repo.GetProject(ctx, ph.ProjectID)
	if err != nil {
		return "", err
	}
	return prj.CompanyID, nil
}

func (e Engine) budgetItemCompany(ctx context.Context, it domain.BudgetItem) (string, error) {
	var costGroupID, phaseID string
	if it.CostGroupID != nil {
		costGroupID = *it.CostGroupID
	}
	if it.PhaseID != nil {
		phaseID = *it.PhaseID
	}
	return e.budgetScopeCompany(ctx, costGroupID, phaseID)
}

// SaveBudgetItem replaces the monthly values wholesale. Editing is legal only
// in draft; an approved item must be revised first.
func (e Engine) SaveBudgetItem(ctx context.Context, id string, values domain.MonthlyValues, actorID string) (domain.BudgetItem, error) {
	if err := validateMonthlyValues(values); err != nil {
		return domain.BudgetItem{}, err
	}
	it, err := e.Repo.GetBudgetItem(ctx, id)
	if err != nil {
		return it, err
	}
	if it.Status != domain.StatusDraft {
		return it, fmt.Errorf("invalid budget item transition %s -> %s: edit requires draft", it.Status, it.Status)
	}
	if e.Config != nil && e.Config.Budget.LockPastMonths {
		if err := e.ensureNoPastMonthEdits(it, values); err != nil {
			return it, err
		}
	}
	companyID, err := e.budgetItemCompany(ctx, it)
	if err != nil {
		return it, err
	}
	it.MonthlyValues = values.Clone()
	if it.MonthlyValues == nil {
		it.MonthlyValues = domain.MonthlyValues{}
	}
	it.UpdatedAt = e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return it, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateBudgetItem(ctx, tx, it); err != nil {
		return it, err
	}
	if err := e.eventWriter().Append(ctx, tx, "budget_item.saved", companyID, "budget_item", it.ID, actorID, events.EventPayload{
		"total": it.MonthlyValues.Total(),
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	return it, nil
}

// ensureNoPastMonthEdits rejects changes to months that already ended. Only
// enforced for the current calendar year.
func (e Engine) ensureNoPastMonthEdits(it domain.BudgetItem, values domain.MonthlyValues) error {
	now := e.now().UTC()
	if it.Year != now.Year() {
		if it.Year < now.Year() {
			return fmt.Errorf("budget year %d is locked", it.Year)
		}
		return nil
	}
	currentMonth := int(now.Month()) - 1
	for m := 0; m < currentMonth; m++ {
		if values.Get(m) != it.MonthlyValues.Get(m) {
			return fmt.Errorf("month %d is in the past and locked", m)
		}
	}
	return nil
}

func ensureBudgetTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.StatusDraft:
		if newStatus == domain.StatusPending {
			return nil
		}
	case domain.StatusPending:
		if newStatus == domain.StatusApproved || newStatus == domain.StatusDraft {
			return nil
		}
	case domain.StatusApproved:
		if newStatus == domain.StatusDraft {
			return nil
		}
	}
	return fmt.Errorf("invalid budget item transition %s -> %s", oldStatus, newStatus)
}

// SubmitBudgetItem moves a draft item to pending.
func (e Engine) SubmitBudgetItem(ctx context.Context, id, actorID string) (domain.BudgetItem, error) {
	return e.budgetTransition(ctx, id, actorID, "budget_item.submitted", func(it *domain.BudgetItem) (bool, error) {
		if err := ensureBudgetTransition(it.Status, domain.StatusPending); err != nil {
			return false, err
		}
		it.Status = domain.StatusPending
		return true, nil
	})
}

// ApproveBudgetItem commits pending values as the new approved baseline and
// drops any previous snapshot.
func (e Engine) ApproveBudgetItem(ctx context.Context, id, actorID string) (domain.BudgetItem, error) {
	return e.budgetTransition(ctx, id, actorID, "budget_item.approved", func(it *domain.BudgetItem) (bool, error) {
		if it.Status != domain.StatusPending {
			return false, fmt.Errorf("invalid budget item transition %s -> %s", it.Status, domain.StatusApproved)
		}
		it.Status = domain.StatusApproved
		it.PreviousApproved = nil
		return true, nil
	})
}

// WithdrawBudgetItem pulls a pending item back to draft for further editing.
func (e Engine) WithdrawBudgetItem(ctx context.Context, id, actorID string) (domain.BudgetItem, error) {
	return e.budgetTransition(ctx, id, actorID, "budget_item.withdrawn", func(it *domain.BudgetItem) (bool, error) {
		if it.Status != domain.StatusPending {
			return false, fmt.Errorf("invalid budget item transition %s -> %s", it.Status, domain.StatusDraft)
		}
		it.Status = domain.StatusDraft
		return true, nil
	})
}

// RejectBudgetItem undoes a pending change. With an approved baseline
// snapshot the item returns to that baseline; without one it falls back to
// draft with values untouched. Calling it outside pending is a quiet no-op.
func (e Engine) RejectBudgetItem(ctx context.Context, id, actorID string) (domain.BudgetItem, error) {
	return e.budgetTransition(ctx, id, actorID, "budget_item.rejected", func(it *domain.BudgetItem) (bool, error) {
		if it.Status != domain.StatusPending {
			return false, nil
		}
		if it.PreviousApproved != nil {
			it.MonthlyValues = it.PreviousApproved.Clone()
			it.PreviousApproved = nil
			if it.CurrentRevision > 0 {
				it.CurrentRevision--
			}
			it.Status = domain.StatusApproved
		} else {
			it.Status = domain.StatusDraft
		}
		return true, nil
	})
}

// ReviseBudgetItem reopens an approved item for editing: the approved values
// are snapshotted, a history entry is appended, and the revision counter
// advances.
func (e Engine) ReviseBudgetItem(ctx context.Context, id, editorName, reason, actorID string) (domain.BudgetItem, error) {
	if editorName == "" {
		editorName = "Unknown"
	}
	it, err := e.Repo.GetBudgetItem(ctx, id)
	if err != nil {
		return it, err
	}
	if it.Status != domain.StatusApproved {
		return it, fmt.Errorf("invalid budget item transition %s -> %s: revise requires approved", it.Status, domain.StatusDraft)
	}
	companyID, err := e.budgetItemCompany(ctx, it)
	if err != nil {
		return it, err
	}
	now := e.timestamp()
	rev := domain.BudgetRevision{
		ItemID:        it.ID,
		Revision:      it.CurrentRevision,
		MonthlyValues: it.MonthlyValues.Clone(),
		EditorName:    editorName,
		Reason:        reason,
		CreatedAt:     now,
	}
	it.PreviousApproved = it.MonthlyValues.Clone()
	it.CurrentRevision++
	it.Status = domain.StatusDraft
	it.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return it, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertBudgetRevision(ctx, tx, rev); err != nil {
		return it, err
	}
	if err := e.Repo.UpdateBudgetItem(ctx, tx, it); err != nil {
		return it, err
	}
	if err := e.eventWriter().Append(ctx, tx, "budget_item.revised", companyID, "budget_item", it.ID, actorID, events.EventPayload{
		"revision": it.CurrentRevision,
		"editor":   editorName,
		"reason":   reason,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	return it, nil
}

// RevertBudgetItem abandons an in-flight revision and restores the approved
// baseline. Requires a snapshot and a non-approved status; otherwise it is a
// quiet no-op.
func (e Engine) RevertBudgetItem(ctx context.Context, id, actorID string) (domain.BudgetItem, error) {
	return e.budgetTransition(ctx, id, actorID, "budget_item.reverted", func(it *domain.BudgetItem) (bool, error) {
		if it.PreviousApproved == nil || it.Status == domain.StatusApproved {
			return false, nil
		}
		it.MonthlyValues = it.PreviousApproved.Clone()
		it.PreviousApproved = nil
		if it.CurrentRevision > 0 {
			it.CurrentRevision--
		}
		it.Status = domain.StatusApproved
		return true, nil
	})
}

// DeleteBudgetItem hard-deletes an item and its revision log, in any state.
func (e Engine) DeleteBudgetItem(ctx context.Context, id, actorID string) error {
	it, err := e.Repo.GetBudgetItem(ctx, id)
	if err != nil {
		return err
	}
	companyID, err := e.budgetItemCompany(ctx, it)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteBudgetItem(ctx, tx, id); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, "budget_item.deleted", companyID, "budget_item", id, actorID, events.EventPayload{"name": it.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetBudgetItem returns an item with its revision history attached.
func (e Engine) GetBudgetItem(ctx context.Context, id string) (domain.BudgetItem, error) {
	it, err := e.Repo.GetBudgetItem(ctx, id)
	if err != nil {
		return it, err
	}
	it.History, err = e.Repo.ListBudgetRevisions(ctx, it.ID)
	return it, err
}

// ListBudgetItems returns matching items, each with its revision history
// attached.
func (e Engine) ListBudgetItems(ctx context.Context, f repo.BudgetItemFilters) ([]domain.BudgetItem, error) {
	items, err := e.Repo.ListBudgetItems(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].History, err = e.Repo.ListBudgetRevisions(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// budgetTransition runs a single read-modify-write status change and records
// the audit event. When apply reports no change the item is returned as-is.
func (e Engine) budgetTransition(ctx context.Context, id, actorID, eventType string, apply func(*domain.BudgetItem) (bool, error)) (domain.BudgetItem, error) {
	it, err := e.Repo.GetBudgetItem(ctx, id)
	if err != nil {
		return it, err
	}
	from := it.Status
	changed, err := apply(&it)
	if err != nil {
		return it, err
	}
	if !changed {
		return it, nil
	}
	companyID, err := e.budgetItemCompany(ctx, it)
	if err != nil {
		return it, err
	}
	it.UpdatedAt = e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return it, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateBudgetItem(ctx, tx, it); err != nil {
		return it, err
	}
	if err := e.eventWriter().Append(ctx, tx, eventType, companyID, "budget_item", it.ID, actorID, events.EventPayload{
		"from": from,
		"to":   it.Status,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	return it, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
