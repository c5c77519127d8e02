package models

import "time"

// Role is the administrative role of an actor. Roles form a total order of
// scope breadth from citizen up to state admin.
type Role string

const (
	RoleCitizen           Role = "citizen"
	RoleFieldStaff        Role = "field_staff"
	RoleDepartmentHead    Role = "department_head"
	RoleMunicipalityAdmin Role = "municipality_admin"
	RoleDistrictAdmin     Role = "district_admin"
	RoleStateAdmin        Role = "state_admin"
)

var roleRank = map[Role]int{
	RoleCitizen:           0,
	RoleFieldStaff:        1,
	RoleDepartmentHead:    2,
	RoleMunicipalityAdmin: 3,
	RoleDistrictAdmin:     4,
	RoleStateAdmin:        5,
}

// IsValidRole checks whether r is a known role value.
func IsValidRole(r Role) bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r has at least the scope breadth of other.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// Category is the kind of municipal problem being reported.
type Category string

const (
	CategoryPothole     Category = "pothole"
	CategoryStreetlight Category = "streetlight"
	CategoryGarbage     Category = "garbage"
	CategoryDrainage    Category = "drainage"
	CategoryMaintenance Category = "maintenance"
	CategoryElectrical  Category = "electrical"
	CategoryPlumbing    Category = "plumbing"
	CategoryCleaning    Category = "cleaning"
	CategoryOther       Category = "other"
)

var validCategories = map[Category]bool{
	CategoryPothole:     true,
	CategoryStreetlight: true,
	CategoryGarbage:     true,
	CategoryDrainage:    true,
	CategoryMaintenance: true,
	CategoryElectrical:  true,
	CategoryPlumbing:    true,
	CategoryCleaning:    true,
	CategoryOther:       true,
}

// IsValidCategory checks whether c is a known category value.
func IsValidCategory(c Category) bool {
	return validCategories[c]
}

// Priority of a report; drives escalation thresholds.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

var validPriorities = map[Priority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// IsValidPriority checks whether p is a known priority value.
func IsValidPriority(p Priority) bool {
	return validPriorities[p]
}

// Jurisdiction scopes visibility and authority over a report.
// District is always set; the remaining fields may stay empty until
// assignment refines them but are never overwritten with a different value.
type Jurisdiction struct {
	District     string `json:"district"`
	Municipality string `json:"municipality,omitempty"`
	Ward         string `json:"ward,omitempty"`
	Department   string `json:"department,omitempty"`
}

// Actor is the authenticated caller: a citizen or a member of the
// administrative hierarchy, with the jurisdiction fields relevant to the role.
type Actor struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         Role   `json:"role"`
	Jurisdiction `json:"jurisdiction"`
}

// Report is a citizen-filed issue record.
type Report struct {
	ID                 string       `json:"id"`
	Category           Category     `json:"category"`
	Priority           Priority     `json:"priority"`
	Status             Status       `json:"status"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Latitude           float64      `json:"latitude"`
	Longitude          float64      `json:"longitude"`
	Address            string       `json:"address"`
	Jurisdiction       Jurisdiction `json:"jurisdiction"`
	ReportedBy         string       `json:"reported_by"`
	AssignedTo         string       `json:"assigned_to,omitempty"`
	AssignedDepartment string       `json:"assigned_department,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	StatusChangedAt    time.Time    `json:"status_changed_at"`
	ResolvedAt         *time.Time   `json:"resolved_at,omitempty"`
	Version            int64        `json:"version"`
}

// History entry kinds. Every entry also records the report status at the
// time it was appended, so the last entry's status always equals the
// report's current status.
const (
	HistoryStatusChange   = "status_change"
	HistoryAssigned       = "assigned"
	HistoryReassigned     = "reassigned"
	HistoryPriorityChange = "priority_change"
	HistoryComment        = "comment"
)

// HistoryEntry is one line of a report's append-only audit trail.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	ReportID  string    `json:"report_id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	ActorID   string    `json:"actor_id"`
	ActorRole Role      `json:"actor_role"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateReportRequest is the citizen submission payload.
type CreateReportRequest struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Description string   `json:"description" binding:"max=2000"`
	Category    Category `json:"category" binding:"required"`
	Priority    Priority `json:"priority"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Address     string   `json:"address" binding:"required,max=300"`
	District    string   `json:"district" binding:"required,max=100"`
}

// UpdateStatusRequest moves a report through the state machine.
type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
	Notes  string `json:"notes" binding:"max=1000"`
}

// AssignRequest routes a report to a staff member.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id" binding:"required"`
	Department string `json:"department" binding:"max=100"`
	Notes      string `json:"notes" binding:"max=1000"`
}

// UpdatePriorityRequest changes a report's priority.
type UpdatePriorityRequest struct {
	Priority Priority `json:"priority" binding:"required"`
	Notes    string   `json:"notes" binding:"max=1000"`
}

// CommentRequest appends a note to a report's audit trail.
type CommentRequest struct {
	Notes string `json:"notes" binding:"required,max=1000"`
}

// Escalation action names accepted by the escalation action endpoint.
const (
	EscalationActionResolve        = "resolve"
	EscalationActionReassign       = "reassign"
	EscalationActionUpdatePriority = "updatePriority"
	EscalationActionAddComment     = "addComment"
)

// EscalationActionRequest is a thin wrapper over the workflow operations,
// used by escalation dashboards.
type EscalationActionRequest struct {
	Action     string   `json:"action" binding:"required"`
	Notes      string   `json:"notes" binding:"max=1000"`
	Priority   Priority `json:"priority,omitempty"`
	AssignTo   string   `json:"assign_to,omitempty"`
	Department string   `json:"department,omitempty"`
}

// ListFilters narrows a scoped report listing. Filters are ANDed with the
// actor's scope and can never widen it.
type ListFilters struct {
	Status       Status
	Category     Category
	Priority     Priority
	Municipality string
	Department   string
	Limit        int
	Offset       int
}

// EscalatedReport is one overdue report in an escalation view.
type EscalatedReport struct {
	Report        Report `json:"report"`
	DaysPending   int    `json:"days_pending"`
	ThresholdDays int    `json:"threshold_days"`
}

// EscalationSummary is the scoped escalation view plus aggregate statistics.
type EscalationSummary struct {
	ByMunicipality    map[string][]EscalatedReport `json:"by_municipality"`
	TotalEscalated    int                          `json:"total_escalated"`
	TotalPending      int                          `json:"total_pending"`
	ResolvedThisMonth int                          `json:"resolved_this_month"`
	PriorityBreakdown map[Priority]int             `json:"priority_breakdown"`
	ResolutionRate    string                       `json:"resolution_rate"`
	GeneratedAt       time.Time                    `json:"generated_at"`
}
