package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"budgetline/internal/config"
	"budgetline/internal/db"
	"budgetline/internal/engine"
	"budgetline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("acme")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{Timeout: 10 * time.Second},
		close: func() {
			srv.Close()
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asOwner() map[string]string {
	return map[string]string{"X-Actor-Id": "tester"}
}

// seedCompany creates the acme company plus one department and cost group,
// returning the cost group id.
func seedCompany(t *testing.T, srv *testServer) string {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies", map[string]any{
		"id": "acme", "name": "Acme GmbH",
	}, asOwner())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create company: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/acme/departments", map[string]any{
		"name": "Engineering",
	}, asOwner())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create department: %d %s", res.StatusCode, string(data))
	}
	var dep DepartmentResponse
	if err := json.Unmarshal(data, &dep); err != nil {
		t.Fatalf("unmarshal department: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/acme/cost-groups", map[string]any{
		"department_id": dep.ID, "name": "Cloud", "kind": "cost",
	}, asOwner())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create cost group: %d %s", res.StatusCode, string(data))
	}
	var group CostGroupResponse
	if err := json.Unmarshal(data, &group); err != nil {
		t.Fatalf("unmarshal cost group: %v", err)
	}
	return group.ID
}

func TestBudgetItemApprovalFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	groupID := seedCompany(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/acme/budget-items", map[string]any{
		"cost_group_id":  groupID,
		"name":           "Hosting",
		"year":           2026,
		"monthly_values": map[string]int64{"0": 100, "1": 200},
	}, asOwner())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create budget item: %d %s", res.StatusCode, string(data))
	}
	var item BudgetItemResponse
	if err := json.Unmarshal(data, &item); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	if item.Status != "draft" || item.Total != 300 {
		t.Fatalf("unexpected item: status=%s total=%d", item.Status, item.Total)
	}

	base := srv.URL + "/v0/companies/acme/budget-items/" + item.ID
	for _, step := range []struct {
		action string
		status string
	}{
		{"submit", "pending"},
		{"approve", "approved"},
	} {
		res, data = doJSON(t, client, http.MethodPost, base+"/"+step.action, nil, asOwner())
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: %d %s", step.action, res.StatusCode, string(data))
		}
		var got BudgetItemResponse
		_ = json.Unmarshal(data, &got)
		if got.Status != step.status {
			t.Fatalf("%s: expected %s, got %s", step.action, step.status, got.Status)
		}
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/revise", map[string]any{
		"editor_name": "Jo", "reason": "price change",
	}, asOwner())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("revise: %d %s", res.StatusCode, string(data))
	}
	var revised BudgetItemResponse
	_ = json.Unmarshal(data, &revised)
	if revised.Status != "draft" || revised.CurrentRevision != 1 {
		t.Fatalf("revise: status=%s revision=%d", revised.Status, revised.CurrentRevision)
	}

	res, data = doJSON(t, client, http.MethodGet, base, nil, asOwner())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", res.StatusCode, string(data))
	}
	var fetched BudgetItemResponse
	_ = json.Unmarshal(data, &fetched)
	if len(fetched.History) != 1 || fetched.History[0].Revision != 0 {
		t.Fatalf("expected one archived revision 0, got %+v", fetched.History)
	}
	if fetched.History[0].EditorName != "Jo" {
		t.Fatalf("expected editor Jo, got %s", fetched.History[0].EditorName)
	}
}

func TestBudgetTransitionConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	groupID := seedCompany(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/acme/budget-items", map[string]any{
		"cost_group_id": groupID, "name": "Licenses", "year": 2026,
	}, asOwner())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var item BudgetItemResponse
	_ = json.Unmarshal(data, &item)

	// Approving a draft skips pending and must be refused.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/acme/budget-items/"+item.ID+"/approve", nil, asOwner())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", code)
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestProcessRenameOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	seedCompany(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/acme/projects", map[string]any{
		"name": "Rollout", "start_date": "2026-01-01", "end_date": "2026-12-31",
	}, asOwner())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var project ProjectResponse
	_ = json.Unmarshal(data, &project)
	base := srv.URL + "/v0/companies/acme/projects/" + project.ID + "/processes"

	ids := map[string]string{}
	for _, p := range []struct{ wbs, name, start, end string }{
		{"1", "Build", "2026-01-01", "2026-01-10"},
		{"1.1", "Design", "2026-01-01", "2026-01-05"},
		{"2", "Launch", "2026-02-01", "2026-02-10"},
	} {
		res, data = doJSON(t, client, http.MethodPost, base, map[string]any{
			"wbs": p.wbs, "name": p.name, "start_date": p.start, "end_date": p.end,
		}, asOwner())
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create process %s: %d %s", p.wbs, res.StatusCode, string(data))
		}
		var proc ProcessResponse
		_ = json.Unmarshal(data, &proc)
		ids[p.wbs] = proc.ID
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/companies/acme/processes/"+ids["1"], map[string]any{
		"wbs": "3",
	}, asOwner())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rename: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base, nil, asOwner())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var procs []ProcessResponse
	_ = json.Unmarshal(data, &procs)
	keys := make([]string, 0, len(procs))
	for _, p := range procs {
		keys = append(keys, p.WBS)
	}
	want := []string{"2", "3", "3.1"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}

	// Renaming onto an existing key is a conflict.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/companies/acme/processes/"+ids["2"], map[string]any{
		"wbs": "3",
	}, asOwner())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "wbs_conflict" {
		t.Fatalf("expected wbs_conflict, got %s", code)
	}

	// A free target key still conflicts when a rebased child would collide:
	// renaming "3" to "4" would move "3.1" onto the existing "4.1".
	res, data = doJSON(t, client, http.MethodPost, base, map[string]any{
		"wbs": "4.1", "name": "Blocker", "start_date": "2026-03-01", "end_date": "2026-03-10",
	}, asOwner())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create blocker: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/companies/acme/processes/"+ids["1"], map[string]any{
		"wbs": "4",
	}, asOwner())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "wbs_conflict" {
		t.Fatalf("expected wbs_conflict, got %s", code)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/companies/acme/processes/"+ids["1.1"], nil, asOwner())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get child: %d %s", res.StatusCode, string(data))
	}
	var child ProcessResponse
	_ = json.Unmarshal(data, &child)
	if child.WBS != "3.1" {
		t.Fatalf("child wbs after failed rename = %s, want 3.1", child.WBS)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/companies", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized, got %q", envelope.Error.Code)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id":   "dev",
		"company_id": "acme",
		"scopes":     []string{"company.admin"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	_ = json.Unmarshal(data, &me)
	if me.ActorID != "dev" || me.CompanyID != "acme" {
		t.Fatalf("unexpected principal: %+v", me)
	}
	found := false
	for _, p := range me.Permissions {
		if p == "company.admin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected company.admin scope, got %v", me.Permissions)
	}
}
