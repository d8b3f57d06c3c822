package importer_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"budgetline/internal/config"
	"budgetline/internal/db"
	"budgetline/internal/engine"
	"budgetline/internal/importer"
	"budgetline/internal/migrate"
	"budgetline/internal/repo"
)

func newEngine(t *testing.T) (engine.Engine, string, string) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("acme"))
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
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
	prj, err := eng.CreateProject(ctx, "acme", "Rollout", "2026-01-01", "2026-12-31", "tester")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return eng, grp.ID, prj.ID
}

func TestImportBudgetItemsBestEffort(t *testing.T) {
	eng, grp, _ := newEngine(t)
	ctx := context.Background()

	csvText := "cost_group_id,phase_id,name,year,m0,m1,m2,m3,m4,m5,m6,m7,m8,m9,m10,m11\n" +
		grp + ",,Licenses,2026,100,200,0,0,0,0,0,0,0,0,0,0\n" +
		grp + ",,Bad Year,twenty,0,0,0,0,0,0,0,0,0,0,0,0\n" +
		grp + ",,Hosting,2026,0,0,50,0,0,0,0,0,0,0,0,0\n"

	res, err := importer.ImportBudgetItems(ctx, eng, strings.NewReader(csvText), "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 2 {
		t.Fatalf("imported = %d, want 2", res.Imported)
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 3 {
		t.Fatalf("errors = %+v, want one error on line 3", res.Errors)
	}

	items, err := eng.Repo.ListBudgetItems(ctx, repo.BudgetItemFilters{CostGroupID: grp})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
}

func TestBudgetExportReimportRoundTrip(t *testing.T) {
	eng, grp, _ := newEngine(t)
	ctx := context.Background()

	if _, err := eng.CreateBudgetItem(ctx, engine.BudgetItemCreateOptions{
		CostGroupID:   grp,
		Name:          "Licenses",
		Year:          2026,
		MonthlyValues: map[int]int64{0: 100, 11: 50},
		ActorID:       "tester",
	}); err != nil {
		t.Fatalf("create item: %v", err)
	}
	items, err := eng.Repo.ListBudgetItems(ctx, repo.BudgetItemFilters{CostGroupID: grp})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}

	var buf bytes.Buffer
	if err := importer.ExportBudgetItems(&buf, items); err != nil {
		t.Fatalf("export: %v", err)
	}
	res, err := importer.ImportBudgetItems(ctx, eng, &buf, "tester")
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if res.Imported != 1 || len(res.Errors) != 0 {
		t.Fatalf("reimport result = %+v", res)
	}
}

func TestImportProcesses(t *testing.T) {
	eng, _, prj := newEngine(t)
	ctx := context.Background()

	csvText := "wbs,name,start_date,end_date\n" +
		"1,Foundation,2026-01-01,2026-02-01\n" +
		"1.1,Excavation,2026-01-01,2026-01-15\n" +
		"1,Duplicate,2026-03-01,2026-04-01\n"

	res, err := importer.ImportProcesses(ctx, eng, prj, strings.NewReader(csvText), "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 2 {
		t.Fatalf("imported = %d, want 2", res.Imported)
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 4 {
		t.Fatalf("errors = %+v, want one error on line 4", res.Errors)
	}
}

func TestImportRejectsBadHeader(t *testing.T) {
	eng, _, prj := newEngine(t)
	if _, err := importer.ImportProcesses(context.Background(), eng, prj, strings.NewReader("name,wbs\nx,1\n"), "tester"); err == nil {
		t.Fatal("expected header error")
	}
}
