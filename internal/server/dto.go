package server

import (
	"encoding/json"
	"fmt"
	"strconv"

	"budgetline/internal/config"
	"budgetline/internal/domain"
)

// Request payloads

type CreateCompanyRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ImportConfigRequest struct {
	YAML string `json:"yaml"`
}

type CreateDepartmentRequest struct {
	Name string `json:"name"`
}

type CreateCostGroupRequest struct {
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Kind         string `json:"kind,omitempty" enum:"cost,revenue"`
}

type CreateProjectRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date,omitempty" format:"date"`
	EndDate   string `json:"end_date,omitempty" format:"date"`
}

type CreatePhaseRequest struct {
	Name string `json:"name"`
}

type CreateBudgetItemRequest struct {
	CostGroupID   *string          `json:"cost_group_id,omitempty"`
	PhaseID       *string          `json:"phase_id,omitempty"`
	Name          string           `json:"name"`
	Year          int              `json:"year"`
	MonthlyValues map[string]int64 `json:"monthly_values,omitempty"`
}

type SaveBudgetValuesRequest struct {
	MonthlyValues map[string]int64 `json:"monthly_values"`
}

type ReviseRequest struct {
	EditorName string `json:"editor_name,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type CreateProcessRequest struct {
	WBS       string `json:"wbs"`
	Name      string `json:"name"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
}

type UpdateProcessRequest struct {
	Name      *string `json:"name,omitempty"`
	WBS       *string `json:"wbs,omitempty"`
	StartDate *string `json:"start_date,omitempty" format:"date"`
	EndDate   *string `json:"end_date,omitempty" format:"date"`
}

type CreateTransactionRequest struct {
	CostGroupID *string `json:"cost_group_id,omitempty"`
	PhaseID     *string `json:"phase_id,omitempty"`
	Name        string  `json:"name"`
	AmountCents int64   `json:"amount_cents"`
	Date        string  `json:"date" format:"date"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID   string   `json:"actor_id"`
	CompanyID string   `json:"company_id"`
	Roles     []string `json:"roles,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type CompanyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DepartmentResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CostGroupResponse struct {
	ID           string `json:"id"`
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Kind         string `json:"kind" enum:"cost,revenue"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type ProjectResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date,omitempty" format:"date"`
	EndDate   string `json:"end_date,omitempty" format:"date"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type PhaseResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type BudgetRevisionResponse struct {
	Revision      int              `json:"revision"`
	MonthlyValues map[string]int64 `json:"monthly_values"`
	EditorName    string           `json:"editor_name"`
	Reason        string           `json:"reason,omitempty"`
	CreatedAt     string           `json:"created_at" format:"date-time"`
}

type BudgetItemResponse struct {
	ID               string                   `json:"id"`
	CostGroupID      *string                  `json:"cost_group_id,omitempty"`
	PhaseID          *string                  `json:"phase_id,omitempty"`
	Name             string                   `json:"name"`
	Year             int                      `json:"year"`
	MonthlyValues    map[string]int64         `json:"monthly_values"`
	Total            int64                    `json:"total"`
	Status           string                   `json:"status" enum:"draft,pending,approved,rejected"`
	CurrentRevision  int                      `json:"current_revision"`
	PreviousApproved map[string]int64         `json:"previous_approved_values,omitempty"`
	History          []BudgetRevisionResponse `json:"history,omitempty"`
	CreatedAt        string                   `json:"created_at" format:"date-time"`
	UpdatedAt        string                   `json:"updated_at" format:"date-time"`
}

type ProcessRevisionResponse struct {
	Revision   int    `json:"revision"`
	StartDate  string `json:"start_date" format:"date"`
	EndDate    string `json:"end_date" format:"date"`
	EditorName string `json:"editor_name"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ProcessResponse struct {
	ID                string                    `json:"id"`
	ProjectID         string                    `json:"project_id"`
	WBS               string                    `json:"wbs"`
	Name              string                    `json:"name"`
	StartDate         string                    `json:"start_date" format:"date"`
	EndDate           string                    `json:"end_date" format:"date"`
	ActualStartDate   *string                   `json:"actual_start_date,omitempty" format:"date"`
	ActualEndDate     *string                   `json:"actual_end_date,omitempty" format:"date"`
	Status            string                    `json:"status" enum:"draft,pending,approved,rejected"`
	CurrentRevision   int                       `json:"current_revision"`
	PreviousStartDate *string                   `json:"previous_start_date,omitempty" format:"date"`
	PreviousEndDate   *string                   `json:"previous_end_date,omitempty" format:"date"`
	History           []ProcessRevisionResponse `json:"history,omitempty"`
	CreatedAt         string                    `json:"created_at" format:"date-time"`
	UpdatedAt         string                    `json:"updated_at" format:"date-time"`
}

// ProcessRowResponse is one pre-order row of the schedule tree. Group rows
// carry rolled-up dates.
type ProcessRowResponse struct {
	Process ProcessResponse `json:"process"`
	Level   int             `json:"level"`
	IsGroup bool            `json:"is_group"`
	Start   string          `json:"start,omitempty" format:"date"`
	End     string          `json:"end,omitempty" format:"date"`
	Days    int             `json:"days"`
}

type GanttBarResponse struct {
	LeftPct  float64 `json:"left_pct"`
	WidthPct float64 `json:"width_pct"`
}

type GanttRowResponse struct {
	Process   ProcessResponse   `json:"process"`
	Level     int               `json:"level"`
	IsGroup   bool              `json:"is_group"`
	Planned   GanttBarResponse  `json:"planned"`
	Actual    *GanttBarResponse `json:"actual,omitempty"`
	ActualEnd string            `json:"actual_end,omitempty" format:"date"`
}

type TransactionResponse struct {
	ID          string  `json:"id"`
	CompanyID   string  `json:"company_id"`
	CostGroupID *string `json:"cost_group_id,omitempty"`
	PhaseID     *string `json:"phase_id,omitempty"`
	Name        string  `json:"name"`
	AmountCents int64   `json:"amount_cents"`
	Date        string  `json:"date" format:"date"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type MonthlyReportResponse struct {
	Year    int         `json:"year"`
	Planned [12]int64   `json:"planned"`
	Actual  [12]float64 `json:"actual"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	CompanyID  string         `json:"company_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	CompanyID   string   `json:"company_id,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CompanyConfigResponse struct {
	Company companyConfigSection `json:"company"`
	Budget  budgetConfigSection  `json:"budget"`
	RBAC    rbacConfigSection    `json:"rbac"`
}

type companyConfigSection struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Currency string `json:"currency"`
}

type budgetConfigSection struct {
	LockPastMonths bool `json:"lock_past_months"`
	DefaultYear    int  `json:"default_year,omitempty"`
}

type rbacConfigSection struct {
	Roles map[string]rbacRoleResponse `json:"roles"`
}

type rbacRoleResponse struct {
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func companyResponse(c domain.Company) CompanyResponse {
	return CompanyResponse(c)
}

func departmentResponse(d domain.Department) DepartmentResponse {
	return DepartmentResponse(d)
}

func costGroupResponse(g domain.CostGroup) CostGroupResponse {
	return CostGroupResponse(g)
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func phaseResponse(ph domain.ProjectPhase) PhaseResponse {
	return PhaseResponse(ph)
}

func budgetItemResponse(it domain.BudgetItem) BudgetItemResponse {
	history := make([]BudgetRevisionResponse, 0, len(it.History))
	for _, rev := range it.History {
		history = append(history, BudgetRevisionResponse{
			Revision:      rev.Revision,
			MonthlyValues: monthlyOut(rev.MonthlyValues),
			EditorName:    rev.EditorName,
			Reason:        rev.Reason,
			CreatedAt:     rev.CreatedAt,
		})
	}
	var prev map[string]int64
	if it.PreviousApproved != nil {
		prev = monthlyOut(it.PreviousApproved)
	}
	return BudgetItemResponse{
		ID:               it.ID,
		CostGroupID:      it.CostGroupID,
		PhaseID:          it.PhaseID,
		Name:             it.Name,
		Year:             it.Year,
		MonthlyValues:    monthlyOut(it.MonthlyValues),
		Total:            it.MonthlyValues.Total(),
		Status:           it.Status,
		CurrentRevision:  it.CurrentRevision,
		PreviousApproved: prev,
		History:          history,
		CreatedAt:        it.CreatedAt,
		UpdatedAt:        it.UpdatedAt,
	}
}

func processResponse(p domain.ProjectProcess) ProcessResponse {
	history := make([]ProcessRevisionResponse, 0, len(p.History))
	for _, rev := range p.History {
		history = append(history, ProcessRevisionResponse{
			Revision:   rev.Revision,
			StartDate:  rev.StartDate,
			EndDate:    rev.EndDate,
			EditorName: rev.EditorName,
			Reason:     rev.Reason,
			CreatedAt:  rev.CreatedAt,
		})
	}
	return ProcessResponse{
		ID:                p.ID,
		ProjectID:         p.ProjectID,
		WBS:               p.WBS,
		Name:              p.Name,
		StartDate:         p.StartDate,
		EndDate:           p.EndDate,
		ActualStartDate:   p.ActualStartDate,
		ActualEndDate:     p.ActualEndDate,
		Status:            p.Status,
		CurrentRevision:   p.CurrentRevision,
		PreviousStartDate: p.PreviousStartDate,
		PreviousEndDate:   p.PreviousEndDate,
		History:           history,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func transactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse(t)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		CompanyID:  e.CompanyID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func configResponse(cfg *config.Config) CompanyConfigResponse {
	res := CompanyConfigResponse{
		Company: companyConfigSection{
			ID:       cfg.Company.ID,
			Name:     cfg.Company.Name,
			Currency: cfg.Company.Currency,
		},
		Budget: budgetConfigSection{
			LockPastMonths: cfg.Budget.LockPastMonths,
			DefaultYear:    cfg.Budget.DefaultYear,
		},
		RBAC: rbacConfigSection{Roles: map[string]rbacRoleResponse{}},
	}
	for roleID, role := range cfg.RBAC.Roles {
		res.RBAC.Roles[roleID] = rbacRoleResponse{
			Description: role.Description,
			Permissions: nonNilSlice(role.Permissions),
		}
	}
	return res
}

// Monthly value maps cross the wire with string month keys ("0".."11").

func monthlyOut(m domain.MonthlyValues) map[string]int64 {
	out := make(map[string]int64, len(m))
	for month, v := range m {
		out[strconv.Itoa(month)] = v
	}
	return out
}

func monthlyIn(m map[string]int64) (domain.MonthlyValues, error) {
	if m == nil {
		return nil, nil
	}
	out := make(domain.MonthlyValues, len(m))
	for key, v := range m {
		month, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid month key %q", key)
		}
		out[month] = v
	}
	return out, nil
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
