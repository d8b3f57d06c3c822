package budgetlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Budgetline HTTP API client.
type Client struct {
	BaseURL     string
	CompanyID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, companyID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		CompanyID: companyID,
		Timeout:   10 * time.Second,
	}
}

// BudgetItem represents the API budget item model (partial).
type BudgetItem struct {
	ID              string           `json:"id"`
	CostGroupID     string           `json:"cost_group_id,omitempty"`
	PhaseID         string           `json:"phase_id,omitempty"`
	Name            string           `json:"name"`
	Year            int              `json:"year"`
	MonthlyValues   map[string]int64 `json:"monthly_values"`
	Total           int64            `json:"total"`
	Status          string           `json:"status"`
	CurrentRevision int              `json:"current_revision"`
}

// Process represents a WBS schedule row.
type Process struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	WBS             string `json:"wbs"`
	Name            string `json:"name"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	ActualStartDate string `json:"actual_start_date,omitempty"`
	ActualEndDate   string `json:"actual_end_date,omitempty"`
	Status          string `json:"status"`
	CurrentRevision int    `json:"current_revision"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	CompanyID  string         `json:"company_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// MonthlyReport is planned versus actual totals for one year.
type MonthlyReport struct {
	Year    int         `json:"year"`
	Planned [12]int64   `json:"planned"`
	Actual  [12]float64 `json:"actual"`
}

// WhoAmI describes the authenticated actor.
type WhoAmI struct {
	ActorID     string   `json:"actor_id"`
	CompanyID   string   `json:"company_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateBudgetItem creates a draft budget item under a cost group or phase.
// Monthly values are keyed "0".."11".
func (c *Client) CreateBudgetItem(ctx context.Context, costGroupID, phaseID, name string, year int, values map[string]int64) (BudgetItem, error) {
	body := map[string]any{
		"name": name,
		"year": year,
	}
	if costGroupID != "" {
		body["cost_group_id"] = costGroupID
	}
	if phaseID != "" {
		body["phase_id"] = phaseID
	}
	if values != nil {
		body["monthly_values"] = values
	}
	var resp BudgetItem
	err := c.do(ctx, http.MethodPost, c.companyPath("budget-items"), body, &resp)
	return resp, err
}

// GetBudgetItem fetches a budget item with its revision history.
func (c *Client) GetBudgetItem(ctx context.Context, id string) (BudgetItem, error) {
	var resp BudgetItem
	err := c.do(ctx, http.MethodGet, c.companyPath("budget-items/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// SaveBudgetValues replaces the monthly values of a draft item.
func (c *Client) SaveBudgetValues(ctx context.Context, id string, values map[string]int64) (BudgetItem, error) {
	var resp BudgetItem
	endpoint := c.companyPath("budget-items/" + url.PathEscape(id) + "/values")
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"monthly_values": values}, &resp)
	return resp, err
}

// TransitionBudgetItem runs a lifecycle action: submit, approve, reject,
// withdraw, or revert.
func (c *Client) TransitionBudgetItem(ctx context.Context, id, action string) (BudgetItem, error) {
	var resp BudgetItem
	endpoint := c.companyPath("budget-items/" + url.PathEscape(id) + "/" + url.PathEscape(action))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ReviseBudgetItem archives an approved item to history and reopens a draft.
func (c *Client) ReviseBudgetItem(ctx context.Context, id, editorName, reason string) (BudgetItem, error) {
	var resp BudgetItem
	endpoint := c.companyPath("budget-items/" + url.PathEscape(id) + "/revise")
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"editor_name": editorName, "reason": reason}, &resp)
	return resp, err
}

// CreateProcess creates a WBS schedule row under a project.
func (c *Client) CreateProcess(ctx context.Context, projectID, wbs, name, startDate, endDate string) (Process, error) {
	body := map[string]any{
		"wbs":        wbs,
		"name":       name,
		"start_date": startDate,
		"end_date":   endDate,
	}
	var resp Process
	endpoint := c.companyPath("projects/" + url.PathEscape(projectID) + "/processes")
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// TransitionProcess runs a lifecycle action: submit, approve, reject,
// withdraw, start, finish, or revert.
func (c *Client) TransitionProcess(ctx context.Context, id, action string) (Process, error) {
	var resp Process
	endpoint := c.companyPath("processes/" + url.PathEscape(id) + "/" + url.PathEscape(action))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// MonthlyReport returns planned versus actual totals for a year. Zero year
// uses the server default.
func (c *Client) MonthlyReport(ctx context.Context, year int) (MonthlyReport, error) {
	endpoint := c.companyPath("reports/monthly")
	if year > 0 {
		endpoint = fmt.Sprintf("%s?year=%d", endpoint, year)
	}
	var resp MonthlyReport
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.companyPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// WhoAmI returns the authenticated actor's roles and permissions.
func (c *Client) WhoAmI(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "v0/me", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) companyPath(p string) string {
	company := url.PathEscape(c.CompanyID)
	return fmt.Sprintf("v0/companies/%s/%s", company, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
