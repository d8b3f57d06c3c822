package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"budgetline/internal/config"
	"budgetline/internal/db"
	"budgetline/internal/domain"
	"budgetline/internal/engine"
	"budgetline/internal/migrate"
	"budgetline/internal/repo"
)

type testEnv struct {
	Engine      engine.Engine
	Ctx         context.Context
	CostGroupID string
	PhaseID     string
	ProjectID   string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("acme")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitCompany(ctx, "acme", "Acme Corp", "tester"); err != nil {
		t.Fatalf("init company: %v", err)
	}
	dep, err := eng.CreateDepartment(ctx, "acme", "Engineering", "tester")
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	grp, err := eng.CreateCostGroup(ctx, dep.ID, "Tooling", "cost", "tester")
	if err != nil {
		t.Fatalf("create cost group: %v", err)
	}
	prj, err := eng.CreateProject(ctx, "acme", "Platform Rebuild", "2026-01-01", "2026-12-31", "tester")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	ph, err := eng.CreatePhase(ctx, prj.ID, "Build", "tester")
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, CostGroupID: grp.ID, PhaseID: ph.ID, ProjectID: prj.ID}
}

func (env testEnv) newItem(t *testing.T, values domain.MonthlyValues) domain.BudgetItem {
	t.Helper()
	it, err := env.Engine.CreateBudgetItem(env.Ctx, engine.BudgetItemCreateOptions{
		CostGroupID:   env.CostGroupID,
		Name:          "Licenses",
		Year:          2026,
		MonthlyValues: values,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return it
}

func TestBudgetApprovalScenario(t *testing.T) {
	env := newTestEnv(t)
	it := env.newItem(t, domain.MonthlyValues{0: 100, 1: 200})
	if it.Status != "draft" || it.CurrentRevision != 0 {
		t.Fatalf("fresh item: status %s rev %d", it.Status, it.CurrentRevision)
	}

	it, err := env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester")
	if err != nil || it.Status != "pending" {
		t.Fatalf("submit: %v status %s", err, it.Status)
	}
	it, err = env.Engine.ApproveBudgetItem(env.Ctx, it.ID, "boss")
	if err != nil || it.Status != "approved" {
		t.Fatalf("approve: %v status %s", err, it.Status)
	}
	if it.PreviousApproved != nil {
		t.Fatalf("snapshot must be nil after approve")
	}

	it, err = env.Engine.ReviseBudgetItem(env.Ctx, it.ID, "alice", "correction", "tester")
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if it.Status != "draft" || it.CurrentRevision != 1 {
		t.Fatalf("after revise: status %s rev %d", it.Status, it.CurrentRevision)
	}
	if it.PreviousApproved == nil || it.PreviousApproved.Get(0) != 100 || it.PreviousApproved.Get(1) != 200 {
		t.Fatalf("snapshot missing or wrong: %+v", it.PreviousApproved)
	}
	history, err := env.Engine.Repo.ListBudgetRevisions(env.Ctx, it.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("history: %v len %d", err, len(history))
	}
	if history[0].Revision != 0 || history[0].EditorName != "alice" || history[0].Reason != "correction" {
		t.Fatalf("history entry: %+v", history[0])
	}

	it, err = env.Engine.SaveBudgetItem(env.Ctx, it.ID, domain.MonthlyValues{0: 150, 1: 200}, "tester")
	if err != nil || it.MonthlyValues.Get(0) != 150 {
		t.Fatalf("save: %v values %+v", err, it.MonthlyValues)
	}

	it, err = env.Engine.RevertBudgetItem(env.Ctx, it.ID, "tester")
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if it.MonthlyValues.Get(0) != 100 || it.MonthlyValues.Get(1) != 200 {
		t.Fatalf("revert values: %+v", it.MonthlyValues)
	}
	if it.Status != "approved" || it.CurrentRevision != 0 || it.PreviousApproved != nil {
		t.Fatalf("after revert: status %s rev %d snapshot %v", it.Status, it.CurrentRevision, it.PreviousApproved)
	}
}

func TestBudgetRejectRestoresBaseline(t *testing.T) {
	env := newTestEnv(t)
	it := env.newItem(t, domain.MonthlyValues{0: 100})
	it, _ = env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester")
	it, _ = env.Engine.ApproveBudgetItem(env.Ctx, it.ID, "boss")
	it, _ = env.Engine.ReviseBudgetItem(env.Ctx, it.ID, "alice", "", "tester")
	it, _ = env.Engine.SaveBudgetItem(env.Ctx, it.ID, domain.MonthlyValues{0: 999}, "tester")
	it, err := env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	it, err = env.Engine.RejectBudgetItem(env.Ctx, it.ID, "boss")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if it.Status != "approved" || it.MonthlyValues.Get(0) != 100 || it.CurrentRevision != 0 {
		t.Fatalf("reject with snapshot: status %s values %+v rev %d", it.Status, it.MonthlyValues, it.CurrentRevision)
	}
	if it.PreviousApproved != nil {
		t.Fatalf("snapshot must be cleared")
	}
}

func TestBudgetRejectWithoutBaseline(t *testing.T) {
	env := newTestEnv(t)
	it := env.newItem(t, domain.MonthlyValues{0: 50})
	it, _ = env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester")
	it, err := env.Engine.RejectBudgetItem(env.Ctx, it.ID, "boss")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if it.Status != "draft" || it.MonthlyValues.Get(0) != 50 {
		t.Fatalf("reject without snapshot: status %s values %+v", it.Status, it.MonthlyValues)
	}
	// rejecting again outside pending is a quiet no-op
	again, err := env.Engine.RejectBudgetItem(env.Ctx, it.ID, "boss")
	if err != nil || again.Status != "draft" {
		t.Fatalf("second reject: %v status %s", err, again.Status)
	}
}

func TestBudgetInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	it := env.newItem(t, domain.MonthlyValues{0: 10})
	if _, err := env.Engine.ApproveBudgetItem(env.Ctx, it.ID, "boss"); err == nil {
		t.Fatalf("approve from draft must fail")
	}
	if _, err := env.Engine.ReviseBudgetItem(env.Ctx, it.ID, "alice", "", "tester"); err == nil {
		t.Fatalf("revise from draft must fail")
	}
	it, _ = env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester")
	if _, err := env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester"); err == nil {
		t.Fatalf("double submit must fail")
	}
	if _, err := env.Engine.SaveBudgetItem(env.Ctx, it.ID, domain.MonthlyValues{0: 1}, "tester"); err == nil {
		t.Fatalf("save while pending must fail")
	}
	it, _ = env.Engine.ApproveBudgetItem(env.Ctx, it.ID, "boss")
	if _, err := env.Engine.SaveBudgetItem(env.Ctx, it.ID, domain.MonthlyValues{0: 1}, "tester"); err == nil {
		t.Fatalf("save while approved must fail")
	}
	// revert without a snapshot is a quiet no-op
	got, err := env.Engine.RevertBudgetItem(env.Ctx, it.ID, "tester")
	if err != nil || got.Status != "approved" || got.CurrentRevision != 0 {
		t.Fatalf("revert no-op: %v status %s rev %d", err, got.Status, got.CurrentRevision)
	}
}

func TestBudgetWithdraw(t *testing.T) {
	env := newTestEnv(t)
	it := env.newItem(t, domain.MonthlyValues{3: 70})
	it, _ = env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester")
	it, err := env.Engine.WithdrawBudgetItem(env.Ctx, it.ID, "tester")
	if err != nil || it.Status != "draft" {
		t.Fatalf("withdraw: %v status %s", err, it.Status)
	}
	if it.MonthlyValues.Get(3) != 70 {
		t.Fatalf("withdraw must not change values")
	}
}

func TestBudgetLockPastMonths(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Budget.LockPastMonths = true
	it := env.newItem(t, domain.MonthlyValues{0: 100, 11: 5})
	// clock is fixed to June 2026: editing January must fail
	if _, err := env.Engine.SaveBudgetItem(env.Ctx, it.ID, domain.MonthlyValues{0: 200, 11: 5}, "tester"); err == nil {
		t.Fatalf("expected past month edit rejection")
	}
	// editing a future month is fine
	if _, err := env.Engine.SaveBudgetItem(env.Ctx, it.ID, domain.MonthlyValues{0: 100, 11: 50}, "tester"); err != nil {
		t.Fatalf("future month edit: %v", err)
	}
}

func (env testEnv) newProcess(t *testing.T, wbsKey, name, start, end string) domain.ProjectProcess {
	t.Helper()
	p, err := env.Engine.CreateProcess(env.Ctx, engine.ProcessCreateOptions{
		ProjectID: env.ProjectID,
		WBS:       wbsKey,
		Name:      name,
		StartDate: start,
		EndDate:   end,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create process %s: %v", wbsKey, err)
	}
	return p
}

func TestProcessLifecycleRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProcess(t, "1", "Design", "2026-02-01", "2026-02-20")

	p, err := env.Engine.SubmitProcess(env.Ctx, p.ID, "tester")
	if err != nil || p.Status != "pending" {
		t.Fatalf("submit: %v status %s", err, p.Status)
	}
	p, err = env.Engine.ApproveProcess(env.Ctx, p.ID, "boss")
	if err != nil || p.Status != "approved" {
		t.Fatalf("approve: %v status %s", err, p.Status)
	}

	p, err = env.Engine.ReviseProcess(env.Ctx, p.ID, "bob", "slipped", "tester")
	if err != nil || p.Status != "draft" || p.CurrentRevision != 1 {
		t.Fatalf("revise: %v status %s rev %d", err, p.Status, p.CurrentRevision)
	}
	start, end := "2026-03-01", "2026-03-15"
	p, err = env.Engine.UpdateProcess(env.Ctx, engine.ProcessUpdateOptions{ID: p.ID, StartDate: &start, EndDate: &end, ActorID: "tester"})
	if err != nil || p.StartDate != "2026-03-01" {
		t.Fatalf("update dates: %v", err)
	}
	p, err = env.Engine.RevertProcess(env.Ctx, p.ID, "tester")
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if p.StartDate != "2026-02-01" || p.EndDate != "2026-02-20" || p.Status != "approved" || p.CurrentRevision != 0 {
		t.Fatalf("round trip: %+v", p)
	}
	history, err := env.Engine.Repo.ListProcessRevisions(env.Ctx, p.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("history: %v len %d", err, len(history))
	}
}

func TestProcessStartFinish(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProcess(t, "1", "Build", "2026-06-01", "2026-07-01")

	if _, err := env.Engine.FinishProcess(env.Ctx, p.ID, "tester"); err == nil {
		t.Fatalf("finish before start must fail")
	}
	p, err := env.Engine.StartProcess(env.Ctx, p.ID, "tester")
	if err != nil || p.ActualStartDate == nil || *p.ActualStartDate != "2026-06-15" {
		t.Fatalf("start: %v actual %v", err, p.ActualStartDate)
	}
	if _, err := env.Engine.StartProcess(env.Ctx, p.ID, "tester"); err == nil {
		t.Fatalf("double start must fail")
	}
	p, err = env.Engine.FinishProcess(env.Ctx, p.ID, "tester")
	if err != nil || p.ActualEndDate == nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := env.Engine.FinishProcess(env.Ctx, p.ID, "tester"); err == nil {
		t.Fatalf("double finish must fail")
	}
}

func TestWBSRenameCascade(t *testing.T) {
	env := newTestEnv(t)
	parent := env.newProcess(t, "1", "Phase A", "2026-01-01", "2026-01-31")
	child := env.newProcess(t, "1.1", "Step", "2026-01-01", "2026-01-10")
	grandchild := env.newProcess(t, "1.1.2", "Substep", "2026-01-02", "2026-01-05")
	sibling := env.newProcess(t, "2", "Phase B", "2026-02-01", "2026-02-28")

	newKey := "3"
	_, err := env.Engine.UpdateProcess(env.Ctx, engine.ProcessUpdateOptions{ID: parent.ID, WBS: &newKey, ActorID: "tester"})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := env.Engine.Repo.GetProcess(env.Ctx, child.ID)
	if got.WBS != "3.1" {
		t.Fatalf("child wbs = %s, want 3.1", got.WBS)
	}
	got, _ = env.Engine.Repo.GetProcess(env.Ctx, grandchild.ID)
	if got.WBS != "3.1.2" {
		t.Fatalf("grandchild wbs = %s, want 3.1.2", got.WBS)
	}
	got, _ = env.Engine.Repo.GetProcess(env.Ctx, sibling.ID)
	if got.WBS != "2" {
		t.Fatalf("sibling wbs = %s, want 2", got.WBS)
	}

	// renaming onto an existing key must fail and leave the tree untouched
	conflict := "2"
	if _, err := env.Engine.UpdateProcess(env.Ctx, engine.ProcessUpdateOptions{ID: parent.ID, WBS: &conflict, ActorID: "tester"}); err == nil {
		t.Fatalf("expected wbs conflict error")
	}
	got, _ = env.Engine.Repo.GetProcess(env.Ctx, child.ID)
	if got.WBS != "3.1" {
		t.Fatalf("child wbs after failed rename = %s, want 3.1", got.WBS)
	}
}

func TestWBSRenameDescendantConflict(t *testing.T) {
	env := newTestEnv(t)
	parent := env.newProcess(t, "1", "Phase A", "2026-01-01", "2026-01-31")
	child := env.newProcess(t, "1.1", "Step", "2026-01-01", "2026-01-10")
	env.newProcess(t, "3.1", "Occupied", "2026-03-01", "2026-03-10")

	// "3" itself is free but the child would land on the existing "3.1".
	newKey := "3"
	_, err := env.Engine.UpdateProcess(env.Ctx, engine.ProcessUpdateOptions{ID: parent.ID, WBS: &newKey, ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected wbs conflict error")
	}
	if !strings.Contains(err.Error(), "wbs conflict") {
		t.Fatalf("expected wbs conflict error, got %v", err)
	}
	got, _ := env.Engine.Repo.GetProcess(env.Ctx, parent.ID)
	if got.WBS != "1" {
		t.Fatalf("parent wbs after failed rename = %s, want 1", got.WBS)
	}
	got, _ = env.Engine.Repo.GetProcess(env.Ctx, child.ID)
	if got.WBS != "1.1" {
		t.Fatalf("child wbs after failed rename = %s, want 1.1", got.WBS)
	}
}

func TestProcessTreeRollup(t *testing.T) {
	env := newTestEnv(t)
	env.newProcess(t, "1", "Group", "2026-05-01", "2026-05-02")
	env.newProcess(t, "1.1", "First", "2026-01-01", "2026-01-10")
	env.newProcess(t, "1.2", "Second", "2026-01-05", "2026-01-20")

	rows, err := env.Engine.ProcessRows(env.Ctx, env.ProjectID)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	group := rows[0]
	if !group.IsGroup || group.Start != "2026-01-01" || group.End != "2026-01-20" || group.Days != 20 {
		t.Fatalf("group rollup: %+v", group)
	}
}

func TestDuplicateWBSRejected(t *testing.T) {
	env := newTestEnv(t)
	env.newProcess(t, "1", "A", "2026-01-01", "2026-01-02")
	_, err := env.Engine.CreateProcess(env.Ctx, engine.ProcessCreateOptions{
		ProjectID: env.ProjectID, WBS: "1", Name: "B",
		StartDate: "2026-01-01", EndDate: "2026-01-02", ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected duplicate wbs error")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	it := env.newItem(t, domain.MonthlyValues{0: 5})
	_, _ = env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester")
	_, _ = env.Engine.ApproveBudgetItem(env.Ctx, it.ID, "boss")
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, it.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 3 {
		t.Fatalf("expected create/submit/approve events, got %d", count)
	}
}

func TestListAttachesHistory(t *testing.T) {
	env := newTestEnv(t)
	it := env.newItem(t, domain.MonthlyValues{0: 100})
	_, _ = env.Engine.SubmitBudgetItem(env.Ctx, it.ID, "tester")
	_, _ = env.Engine.ApproveBudgetItem(env.Ctx, it.ID, "boss")
	if _, err := env.Engine.ReviseBudgetItem(env.Ctx, it.ID, "alice", "", "tester"); err != nil {
		t.Fatalf("revise: %v", err)
	}

	items, err := env.Engine.ListBudgetItems(env.Ctx, repo.BudgetItemFilters{CostGroupID: env.CostGroupID})
	if err != nil || len(items) != 1 {
		t.Fatalf("list items: %v len %d", err, len(items))
	}
	if len(items[0].History) != 1 || items[0].History[0].EditorName != "alice" {
		t.Fatalf("list must carry history: %+v", items[0].History)
	}

	p := env.newProcess(t, "1", "Design", "2026-01-01", "2026-02-01")
	_, _ = env.Engine.SubmitProcess(env.Ctx, p.ID, "tester")
	_, _ = env.Engine.ApproveProcess(env.Ctx, p.ID, "boss")
	if _, err := env.Engine.ReviseProcess(env.Ctx, p.ID, "bob", "slipped", "tester"); err != nil {
		t.Fatalf("revise process: %v", err)
	}
	procs, err := env.Engine.ListProcesses(env.Ctx, env.ProjectID)
	if err != nil || len(procs) != 1 {
		t.Fatalf("list processes: %v len %d", err, len(procs))
	}
	if len(procs[0].History) != 1 || procs[0].History[0].EditorName != "bob" {
		t.Fatalf("list must carry history: %+v", procs[0].History)
	}
}

func TestCreateRollsBackWithEvent(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `DROP TABLE events`); err != nil {
		t.Fatalf("drop events: %v", err)
	}
	_, err := env.Engine.CreateDepartment(env.Ctx, "acme", "Orphaned", "tester")
	if err == nil {
		t.Fatalf("expected error once event append fails")
	}
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM departments WHERE name='Orphaned'`).Scan(&n); err != nil {
		t.Fatalf("count departments: %v", err)
	}
	if n != 0 {
		t.Fatalf("department row persisted without its event")
	}
}

func TestEventTimestampFollowsClock(t *testing.T) {
	env := newTestEnv(t)
	it := env.newItem(t, domain.MonthlyValues{0: 5})
	var ts string
	err := env.Engine.DB.QueryRowContext(env.Ctx,
		`SELECT ts FROM events WHERE entity_id=? AND type='budget_item.created'`, it.ID).Scan(&ts)
	if err != nil {
		t.Fatalf("query event: %v", err)
	}
	if ts != "2026-06-15T00:00:00Z" {
		t.Fatalf("event ts = %s, want the injected clock", ts)
	}
}
