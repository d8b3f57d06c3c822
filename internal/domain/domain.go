package domain

// DateLayout is the storage format for calendar dates (planned and actual
// process dates, transaction dates). Timestamps use RFC3339.
const DateLayout = "2006-01-02"

// Budget item / process lifecycle statuses.
const (
	StatusDraft    = "draft"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Department struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// CostGroup scopes cost or revenue budget items under a department.
type CostGroup struct {
	ID           string `json:"id"`
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Kind         string `json:"kind" enum:"cost,revenue"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date,omitempty" format:"date"`
	EndDate   string `json:"end_date,omitempty" format:"date"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ProjectPhase struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// BudgetItem is a monetary line item with twelve monthly planned values for
// one year. It belongs to exactly one of a cost group or a project phase.
// Values are whole currency units, not minor units.
type BudgetItem struct {
	ID               string           `json:"id"`
	CostGroupID      *string          `json:"cost_group_id,omitempty"`
	PhaseID          *string          `json:"phase_id,omitempty"`
	Name             string           `json:"name"`
	Year             int              `json:"year"`
	MonthlyValues    MonthlyValues    `json:"monthly_values"`
	Status           string           `json:"status" enum:"draft,pending,approved,rejected"`
	CurrentRevision  int              `json:"current_revision"`
	PreviousApproved MonthlyValues    `json:"previous_approved_values,omitempty"`
	History          []BudgetRevision `json:"history,omitempty"`
	CreatedAt        string           `json:"created_at" format:"date-time"`
	UpdatedAt        string           `json:"updated_at" format:"date-time"`
}

// BudgetRevision is one entry of a budget item's append-only revision log,
// written at the moment an approved item is revised.
type BudgetRevision struct {
	ID            int64         `json:"id"`
	ItemID        string        `json:"item_id"`
	Revision      int           `json:"revision"`
	MonthlyValues MonthlyValues `json:"monthly_values"`
	EditorName    string        `json:"editor_name"`
	Reason        string        `json:"reason,omitempty"`
	CreatedAt     string        `json:"created_at" format:"date-time"`
}

// ProjectProcess is a schedule activity positioned in a project's WBS
// hierarchy. Group membership is implicit: a process with WBS descendants in
// the same project is a group, and its displayed dates are rolled up from
// leaves rather than read from StartDate/EndDate.
type ProjectProcess struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"project_id"`
	WBS               string            `json:"wbs"`
	Name              string            `json:"name"`
	StartDate         string            `json:"start_date" format:"date"`
	EndDate           string            `json:"end_date" format:"date"`
	ActualStartDate   *string           `json:"actual_start_date,omitempty" format:"date"`
	ActualEndDate     *string           `json:"actual_end_date,omitempty" format:"date"`
	Status            string            `json:"status" enum:"draft,pending,approved,rejected"`
	CurrentRevision   int               `json:"current_revision"`
	PreviousStartDate *string           `json:"previous_start_date,omitempty" format:"date"`
	PreviousEndDate   *string           `json:"previous_end_date,omitempty" format:"date"`
	History           []ProcessRevision `json:"history,omitempty"`
	CreatedAt         string            `json:"created_at" format:"date-time"`
	UpdatedAt         string            `json:"updated_at" format:"date-time"`
}

// ProcessRevision is one entry of a process's append-only revision log.
type ProcessRevision struct {
	ID         int64  `json:"id"`
	ProcessID  string `json:"process_id"`
	Revision   int    `json:"revision"`
	StartDate  string `json:"start_date" format:"date"`
	EndDate    string `json:"end_date" format:"date"`
	EditorName string `json:"editor_name"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Transaction is an actual posting tracked against plan. Amounts are stored
// in minor units (cents) and divided by 100 only at render time; budget item
// values are never scaled.
type Transaction struct {
	ID          string  `json:"id"`
	CompanyID   string  `json:"company_id"`
	CostGroupID *string `json:"cost_group_id,omitempty"`
	PhaseID     *string `json:"phase_id,omitempty"`
	Name        string  `json:"name"`
	AmountCents int64   `json:"amount_cents"`
	Date        string  `json:"date" format:"date"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CompanyID  string `json:"company_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
