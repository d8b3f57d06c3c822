package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"budgetline/internal/domain"
	"budgetline/internal/events"
	"budgetline/internal/wbs"
)

func validWBS(key string) error {
	if key == "" {
		return errors.New("wbs is required")
	}
	for _, seg := range strings.Split(key, ".") {
		n, err := strconv.Atoi(seg)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid wbs %q: segments must be positive integers", key)
		}
	}
	return nil
}

// ProcessCreateOptions are parameters for creating a schedule process.
type ProcessCreateOptions struct {
	ProjectID string
	WBS       string
	Name      string
	StartDate string
	EndDate   string
	ActorID   string
}

func (e Engine) CreateProcess(ctx context.Context, opts ProcessCreateOptions) (domain.ProjectProcess, error) {
	if opts.Name == "" {
		return domain.ProjectProcess{}, errors.New("name is required")
	}
	if err := validWBS(opts.WBS); err != nil {
		return domain.ProjectProcess{}, err
	}
	if err := validDate(opts.StartDate); err != nil {
		return domain.ProjectProcess{}, err
	}
	if err := validDate(opts.EndDate); err != nil {
		return domain.ProjectProcess{}, err
	}
	if opts.EndDate < opts.StartDate {
		return domain.ProjectProcess{}, errors.New("end date before start date")
	}
	prj, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.ProjectProcess{}, err
	}
	now := e.timestamp()
	p := domain.ProjectProcess{
		ID:              newID(),
		ProjectID:       opts.ProjectID,
		WBS:             opts.WBS,
		Name:            opts.Name,
		StartDate:       opts.StartDate,
		EndDate:         opts.EndDate,
		Status:          domain.StatusDraft,
		CurrentRevision: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	exists, err := e.Repo.ProcessWBSExists(ctx, tx, p.ProjectID, p.WBS)
	if err != nil {
		return p, err
	}
	if exists {
		return p, fmt.Errorf("wbs %s already exists in project", p.WBS)
	}
	if err := e.Repo.InsertProcess(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.eventWriter().Append(ctx, tx, "process.created", prj.CompanyID, "process", p.ID, opts.ActorID, events.EventPayload{
		"wbs":  p.WBS,
		"name": p.Name,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// ProcessUpdateOptions carries the editable fields. Nil means unchanged.
type ProcessUpdateOptions struct {
	ID        string
	Name      *string
	WBS       *string
	StartDate *string
	EndDate   *string
	ActorID   string
}

// UpdateProcess edits a process. Date edits are legal only in draft. A WBS
// change rewrites every descendant key in the same transaction so no reader
// observes a half-renamed subtree.
func (e Engine) UpdateProcess(ctx context.Context, opts ProcessUpdateOptions) (domain.ProjectProcess, error) {
	p, err := e.Repo.GetProcess(ctx, opts.ID)
	if err != nil {
		return p, err
	}
	prj, err := e.Repo.GetProject(ctx, p.ProjectID)
	if err != nil {
		return p, err
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return p, errors.New("name is required")
		}
		p.Name = *opts.Name
	}
	if opts.StartDate != nil || opts.EndDate != nil {
		if p.Status != domain.StatusDraft {
			return p, fmt.Errorf("invalid process transition %s -> %s: edit requires draft", p.Status, p.Status)
		}
		if opts.StartDate != nil {
			if err := validDate(*opts.StartDate); err != nil {
				return p, err
			}
			p.StartDate = *opts.StartDate
		}
		if opts.EndDate != nil {
			if err := validDate(*opts.EndDate); err != nil {
				return p, err
			}
			p.EndDate = *opts.EndDate
		}
		if p.EndDate < p.StartDate {
			return p, errors.New("end date before start date")
		}
	}

	now := e.timestamp()
	p.UpdatedAt = now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()

	oldWBS := p.WBS
	if opts.WBS != nil && *opts.WBS != oldWBS {
		newWBS := *opts.WBS
		if err := validWBS(newWBS); err != nil {
			return p, err
		}
		exists, err := e.Repo.ProcessWBSExists(ctx, tx, p.ProjectID, newWBS)
		if err != nil {
			return p, err
		}
		if exists {
			return p, fmt.Errorf("wbs conflict: %s already exists in project", newWBS)
		}
		siblings, err := e.Repo.ListProcessesTx(ctx, tx, p.ProjectID)
		if err != nil {
			return p, err
		}
		// Split the project into the subtree being rebased and everything
		// else, then check every target key before touching a row. A
		// descendant's new key can collide even when the root's does not.
		var subtree []domain.ProjectProcess
		taken := make(map[string]bool, len(siblings))
		for _, s := range siblings {
			if s.ID != p.ID && wbs.IsDescendant(s.WBS, oldWBS) {
				subtree = append(subtree, s)
			} else if s.ID != p.ID {
				taken[s.WBS] = true
			}
		}
		for _, s := range subtree {
			if rebased := wbs.Rebase(s.WBS, oldWBS, newWBS); taken[rebased] {
				return p, fmt.Errorf("wbs conflict: %s already exists in project", rebased)
			}
		}
		for _, s := range subtree {
			if err := e.Repo.UpdateProcessWBS(ctx, tx, s.ID, wbs.Rebase(s.WBS, oldWBS, newWBS), now); err != nil {
				return p, err
			}
		}
		p.WBS = newWBS
	}

	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return p, err
	}
	payload := events.EventPayload{"wbs": p.WBS}
	if p.WBS != oldWBS {
		payload["renamed_from"] = oldWBS
	}
	if err := e.eventWriter().Append(ctx, tx, "process.updated", prj.CompanyID, "process", p.ID, opts.ActorID, payload); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// SubmitProcess moves a draft process to pending.
func (e Engine) SubmitProcess(ctx context.Context, id, actorID string) (domain.ProjectProcess, error) {
	return e.processTransition(ctx, id, actorID, "process.submitted", func(p *domain.ProjectProcess) (bool, error) {
		if p.Status != domain.StatusDraft {
			return false, fmt.Errorf("invalid process transition %s -> %s", p.Status, domain.StatusPending)
		}
		p.Status = domain.StatusPending
		return true, nil
	})
}

// ApproveProcess commits pending dates as the new approved baseline.
func (e Engine) ApproveProcess(ctx context.Context, id, actorID string) (domain.ProjectProcess, error) {
	return e.processTransition(ctx, id, actorID, "process.approved", func(p *domain.ProjectProcess) (bool, error) {
		if p.Status != domain.StatusPending {
			return false, fmt.Errorf("invalid process transition %s -> %s", p.Status, domain.StatusApproved)
		}
		p.Status = domain.StatusApproved
		p.PreviousStartDate = nil
		p.PreviousEndDate = nil
		return true, nil
	})
}

// WithdrawProcess pulls a pending process back to draft.
func (e Engine) WithdrawProcess(ctx context.Context, id, actorID string) (domain.ProjectProcess, error) {
	return e.processTransition(ctx, id, actorID, "process.withdrawn", func(p *domain.ProjectProcess) (bool, error) {
		if p.Status != domain.StatusPending {
			return false, fmt.Errorf("invalid process transition %s -> %s", p.Status, domain.StatusDraft)
		}
		p.Status = domain.StatusDraft
		return true, nil
	})
}

// RejectProcess undoes a pending change, restoring the approved baseline
// dates when a snapshot exists. Outside pending it is a quiet no-op.
func (e Engine) RejectProcess(ctx context.Context, id, actorID string) (domain.ProjectProcess, error) {
	return e.processTransition(ctx, id, actorID, "process.rejected", func(p *domain.ProjectProcess) (bool, error) {
		if p.Status != domain.StatusPending {
			return false, nil
		}
		if p.PreviousStartDate != nil && p.PreviousEndDate != nil {
			p.StartDate = *p.PreviousStartDate
			p.EndDate = *p.PreviousEndDate
			p.PreviousStartDate = nil
			p.PreviousEndDate = nil
			if p.CurrentRevision > 0 {
				p.CurrentRevision--
			}
			p.Status = domain.StatusApproved
		} else {
			p.Status = domain.StatusDraft
		}
		return true, nil
	})
}

// StartProcess records the actual start. Independent of approval status.
func (e Engine) StartProcess(ctx context.Context, id, actorID string) (domain.ProjectProcess, error) {
	return e.processTransition(ctx, id, actorID, "process.started", func(p *domain.ProjectProcess) (bool, error) {
		if p.ActualStartDate != nil {
			return false, errors.New("process already started")
		}
		today := e.today()
		p.ActualStartDate = &today
		return true, nil
	})
}

// FinishProcess records the actual end. Requires a recorded start.
func (e Engine) FinishProcess(ctx context.Context, id, actorID string) (domain.ProjectProcess, error) {
	return e.processTransition(ctx, id, actorID, "process.finished", func(p *domain.ProjectProcess) (bool, error) {
		if p.ActualStartDate == nil {
			return false, errors.New("process not started")
		}
		if p.ActualEndDate != nil {
			return false, errors.New("process already finished")
		}
		today := e.today()
		p.ActualEndDate = &today
		return true, nil
	})
}

// ReviseProcess reopens an approved process for date changes, snapshotting
// the approved dates and logging a revision entry.
func (e Engine) ReviseProcess(ctx context.Context, id, editorName, reason, actorID string) (domain.ProjectProcess, error) {
	if editorName == "" {
		editorName = "Unknown"
	}
	p, err := e.Repo.GetProcess(ctx, id)
	if err != nil {
		return p, err
	}
	if p.Status != domain.StatusApproved {
		return p, fmt.Errorf("invalid process transition %s -> %s: revise requires approved", p.Status, domain.StatusDraft)
	}
	prj, err := e.Repo.GetProject(ctx, p.ProjectID)
	if err != nil {
		return p, err
	}
	now := e.timestamp()
	rev := domain.ProcessRevision{
		ProcessID:  p.ID,
		Revision:   p.CurrentRevision,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		EditorName: editorName,
		Reason:     reason,
		CreatedAt:  now,
	}
	start, end := p.StartDate, p.EndDate
	p.PreviousStartDate = &start
	p.PreviousEndDate = &end
	p.CurrentRevision++
	p.Status = domain.StatusDraft
	p.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProcessRevision(ctx, tx, rev); err != nil {
		return p, err
	}
	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.eventWriter().Append(ctx, tx, "process.revised", prj.CompanyID, "process", p.ID, actorID, events.EventPayload{
		"revision": p.CurrentRevision,
		"editor":   editorName,
		"reason":   reason,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// RevertProcess abandons an in-flight revision and restores the approved
// baseline dates. Requires the snapshot and a non-approved status; quiet
// no-op otherwise.
func (e Engine) RevertProcess(ctx context.Context, id, actorID string) (domain.ProjectProcess, error) {
	return e.processTransition(ctx, id, actorID, "process.reverted", func(p *domain.ProjectProcess) (bool, error) {
		if p.PreviousStartDate == nil || p.PreviousEndDate == nil || p.Status == domain.StatusApproved {
			return false, nil
		}
		p.StartDate = *p.PreviousStartDate
		p.EndDate = *p.PreviousEndDate
		p.PreviousStartDate = nil
		p.PreviousEndDate = nil
		if p.CurrentRevision > 0 {
			p.CurrentRevision--
		}
		p.Status = domain.StatusApproved
		return true, nil
	})
}

// DeleteProcess hard-deletes a process and its revision log. Descendants are
// left in place; they simply re-root on the next tree build.
func (e Engine) DeleteProcess(ctx context.Context, id, actorID string) error {
	p, err := e.Repo.GetProcess(ctx, id)
	if err != nil {
		return err
	}
	prj, err := e.Repo.GetProject(ctx, p.ProjectID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProcess(ctx, tx, id); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, "process.deleted", prj.CompanyID, "process", id, actorID, events.EventPayload{"wbs": p.WBS}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetProcess returns a process with its revision history attached.
func (e Engine) GetProcess(ctx context.Context, id string) (domain.ProjectProcess, error) {
	p, err := e.Repo.GetProcess(ctx, id)
	if err != nil {
		return p, err
	}
	p.History, err = e.Repo.ListProcessRevisions(ctx, p.ID)
	return p, err
}

// ListProcesses returns the project's processes in WBS order, each with its
// revision history attached.
func (e Engine) ListProcesses(ctx context.Context, projectID string) ([]domain.ProjectProcess, error) {
	procs, err := e.Repo.ListProcesses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range procs {
		procs[i].History, err = e.Repo.ListProcessRevisions(ctx, procs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return procs, nil
}

// ProcessTree builds the project's WBS forest with rolled-up group dates,
// recomputed from the live process set.
func (e Engine) ProcessTree(ctx context.Context, projectID string) ([]*wbs.Node, error) {
	procs, err := e.Repo.ListProcesses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return wbs.Build(procs), nil
}

// ProcessRows is the flattened pre-order view of ProcessTree.
func (e Engine) ProcessRows(ctx context.Context, projectID string) ([]wbs.Row, error) {
	roots, err := e.ProcessTree(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return wbs.Flatten(roots), nil
}

func (e Engine) processTransition(ctx context.Context, id, actorID, eventType string, apply func(*domain.ProjectProcess) (bool, error)) (domain.ProjectProcess, error) {
	p, err := e.Repo.GetProcess(ctx, id)
	if err != nil {
		return p, err
	}
	from := p.Status
	changed, err := apply(&p)
	if err != nil {
		return p, err
	}
	if !changed {
		return p, nil
	}
	prj, err := e.Repo.GetProject(ctx, p.ProjectID)
	if err != nil {
		return p, err
	}
	p.UpdatedAt = e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.eventWriter().Append(ctx, tx, eventType, prj.CompanyID, "process", p.ID, actorID, events.EventPayload{
		"from": from,
		"to":   p.Status,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}
