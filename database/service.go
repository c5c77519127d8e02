package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"report-workflow-service/models"
	"report-workflow-service/services"
)

const reportColumns = `id, category, priority, status, title, description,
	latitude, longitude, address,
	district, municipality, ward, department,
	reported_by, assigned_to, assigned_department,
	created_at, updated_at, status_changed_at, resolved_at, version`

// WorkflowService owns all report mutations. Every write on a single report
// runs inside a transaction with a compare-and-swap on the version column, so
// two concurrent writers can never both succeed from the same prior state.
type WorkflowService struct {
	db       *sql.DB
	notifier services.Notifier
}

// NewWorkflowService creates the report workflow store.
func NewWorkflowService(db *sql.DB, notifier services.Notifier) *WorkflowService {
	return &WorkflowService{db: db, notifier: notifier}
}

// CreateReport validates and persists a citizen submission. The jurisdiction
// is the ward-lookup result for the submitted location; when the lookup found
// nothing, the citizen-declared district is used as is.
func (s *WorkflowService) CreateReport(ctx context.Context, req *models.CreateReportRequest, citizen *models.Actor, located models.Jurisdiction) (*models.Report, error) {
	if citizen == nil || citizen.ID == "" {
		return nil, models.ErrForbidden
	}
	if !models.IsValidCategory(req.Category) {
		return nil, models.NewValidationError("unknown category %q", req.Category)
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.IsValidPriority(priority) {
		return nil, models.NewValidationError("unknown priority %q", priority)
	}
	if req.Address == "" && req.Latitude == 0 && req.Longitude == 0 {
		return nil, models.NewValidationError("location is required")
	}

	jurisdiction := located
	if jurisdiction.District == "" {
		jurisdiction.District = req.District
	}
	if jurisdiction.District == "" {
		return nil, models.NewValidationError("district is required")
	}

	now := time.Now().UTC()
	report := &models.Report{
		ID:              uuid.New().String(),
		Category:        req.Category,
		Priority:        priority,
		Status:          models.StatusSubmitted,
		Title:           req.Title,
		Description:     req.Description,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		Address:         req.Address,
		Jurisdiction:    jurisdiction,
		ReportedBy:      citizen.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
		Version:         1,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO reports
		(id, category, priority, status, title, description,
		 latitude, longitude, address,
		 district, municipality, ward, department,
		 reported_by, assigned_to, assigned_department,
		 created_at, updated_at, status_changed_at, resolved_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?, ?, NULL, 1)`,
		report.ID, report.Category, report.Priority, report.Status,
		report.Title, report.Description,
		report.Latitude, report.Longitude, report.Address,
		report.Jurisdiction.District, report.Jurisdiction.Municipality,
		report.Jurisdiction.Ward, report.Jurisdiction.Department,
		report.ReportedBy,
		report.CreatedAt, report.UpdatedAt, report.StatusChangedAt)
	if err != nil {
		log.Errorf("Failed to insert report: %v", err)
		return nil, err
	}

	if err := insertHistory(ctx, tx, report.ID, models.HistoryStatusChange, report.Status, citizen, "", now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.notifier.NotifyStatusChange(services.StatusChangeEvent{
		ReportID:  report.ID,
		NewStatus: report.Status,
		Kind:      models.HistoryStatusChange,
		ActorID:   citizen.ID,
		ActorRole: citizen.Role,
		Timestamp: now,
	})
	return report, nil
}

// GetReport fetches a single report the actor is allowed to see.
func (s *WorkflowService) GetReport(ctx context.Context, id string, actor *models.Actor) (*models.Report, error) {
	scope, err := services.ResolveReportScope(actor)
	if err != nil {
		return nil, err
	}

	report, err := s.fetchReport(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !scope.Matches(report) {
		return nil, models.ErrForbidden
	}
	return report, nil
}

// ListReports returns reports within the actor's scope, narrowed by the
// caller's filters. An undefined scope yields an empty result, never an
// unrestricted one.
func (s *WorkflowService) ListReports(ctx context.Context, actor *models.Actor, filters *models.ListFilters) ([]*models.Report, error) {
	scope, err := services.ResolveReportScope(actor)
	if errors.Is(err, models.ErrScopeUndefined) {
		return []*models.Report{}, nil
	}
	if err != nil {
		return nil, err
	}

	clauses := []string{}
	args := []any{}
	if scopeSQL, scopeArgs := scope.SQL(); scopeSQL != "" {
		clauses = append(clauses, scopeSQL)
		args = append(args, scopeArgs...)
	}

	if filters != nil {
		if filters.Status != "" {
			if !models.IsValidStatus(filters.Status) {
				return nil, models.NewValidationError("unknown status %q", filters.Status)
			}
			clauses = append(clauses, "status = ?")
			args = append(args, filters.Status)
		}
		if filters.Category != "" {
			if !models.IsValidCategory(filters.Category) {
				return nil, models.NewValidationError("unknown category %q", filters.Category)
			}
			clauses = append(clauses, "category = ?")
			args = append(args, filters.Category)
		}
		if filters.Priority != "" {
			if !models.IsValidPriority(filters.Priority) {
				return nil, models.NewValidationError("unknown priority %q", filters.Priority)
			}
			clauses = append(clauses, "priority = ?")
			args = append(args, filters.Priority)
		}
		if filters.Municipality != "" {
			clauses = append(clauses, "municipality = ?")
			args = append(args, filters.Municipality)
		}
		if filters.Department != "" {
			clauses = append(clauses, "department = ?")
			args = append(args, filters.Department)
		}
	}

	sqlStr := "SELECT " + reportColumns + " FROM reports"
	if len(clauses) > 0 {
		sqlStr += " WHERE " + strings.Join(clauses, " AND ")
	}
	sqlStr += " ORDER BY created_at DESC"

	limit := 50
	offset := 0
	if filters != nil {
		if filters.Limit > 0 && filters.Limit <= 200 {
			limit = filters.Limit
		}
		if filters.Offset > 0 {
			offset = filters.Offset
		}
	}
	sqlStr += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []*models.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// GetHistory returns the append-only audit trail of a report the actor may see.
func (s *WorkflowService) GetHistory(ctx context.Context, id string, actor *models.Actor) ([]*models.HistoryEntry, error) {
	if _, err := s.GetReport(ctx, id, actor); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, report_id, kind, status, actor_id, actor_role, notes, created_at
		FROM report_history WHERE report_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*models.HistoryEntry{}
	for rows.Next() {
		var entry models.HistoryEntry
		var notes sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ReportID, &entry.Kind, &entry.Status,
			&entry.ActorID, &entry.ActorRole, &notes, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Notes = notes.String
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// TransitionStatus moves a report through the state machine. The whole
// read-validate-append-write sequence commits atomically or not at all.
func (s *WorkflowService) TransitionStatus(ctx context.Context, id string, to models.Status, notes string, actor *models.Actor) (*models.Report, error) {
	if !models.IsValidStatus(to) {
		return nil, models.NewValidationError("unknown status %q", to)
	}

	scope, err := services.ResolveReportScope(actor)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	report, err := s.fetchReport(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Matches(report) {
		return nil, models.ErrForbidden
	}
	if !models.CanTransition(report.Status, to) {
		return nil, &models.TransitionError{From: report.Status, To: to}
	}
	if !actor.Role.AtLeast(models.MinRoleForTransition(to)) {
		return nil, models.ErrForbidden
	}

	now := time.Now().UTC()
	oldStatus := report.Status

	setResolved := ""
	if to == models.StatusResolved && report.ResolvedAt == nil {
		setResolved = ", resolved_at = ?"
	}
	// A rejected report is nobody's work item anymore.
	clearAssignee := ""
	if to == models.StatusRejected {
		clearAssignee = ", assigned_to = '', assigned_department = ''"
	}
	sqlStr := fmt.Sprintf(`UPDATE reports
		SET status = ?, status_changed_at = ?, updated_at = ?, version = version + 1%s%s
		WHERE id = ? AND version = ?`, setResolved, clearAssignee)

	args := []any{to, now, now}
	if setResolved != "" {
		args = append(args, now)
	}
	args = append(args, id, report.Version)

	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, models.ErrConcurrentModification
	}

	if err := insertHistory(ctx, tx, id, models.HistoryStatusChange, to, actor, notes, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	report.Status = to
	report.StatusChangedAt = now
	report.UpdatedAt = now
	report.Version++
	if setResolved != "" {
		report.ResolvedAt = &now
	}
	if clearAssignee != "" {
		report.AssignedTo = ""
		report.AssignedDepartment = ""
	}

	s.notifier.NotifyStatusChange(services.StatusChangeEvent{
		ReportID:  id,
		OldStatus: oldStatus,
		NewStatus: to,
		Kind:      models.HistoryStatusChange,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Notes:     notes,
		Timestamp: now,
	})
	return report, nil
}

// AssignReport routes a report to a staff member within the assigner's scope.
// Assigning an already-assigned report to the same assignee is idempotent on
// status and produces exactly one new audit entry.
func (s *WorkflowService) AssignReport(ctx context.Context, id, assigneeID, department, notes string, actor *models.Actor) (*models.Report, error) {
	if assigneeID == "" {
		return nil, models.NewValidationError("assignee_id is required")
	}
	if !actor.Role.AtLeast(models.RoleDepartmentHead) {
		return nil, models.ErrForbidden
	}

	scope, err := services.ResolveReportScope(actor)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	report, err := s.fetchReport(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Matches(report) {
		return nil, models.ErrForbidden
	}
	if models.IsTerminalStatus(report.Status) {
		return nil, models.ErrAlreadyResolved
	}

	assignee, err := s.fetchStaff(ctx, tx, assigneeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown assignees are reported the same as out-of-scope ones
			// so the staff directory is not probeable.
			return nil, models.ErrAssigneeOutOfScope
		}
		return nil, err
	}
	if !services.AssigneeCovers(assignee, report.Jurisdiction) {
		return nil, models.ErrAssigneeOutOfScope
	}

	now := time.Now().UTC()
	oldStatus := report.Status

	newStatus := report.Status
	if report.Status == models.StatusSubmitted || report.Status == models.StatusAcknowledged {
		newStatus = models.StatusAssigned
	}

	kind := models.HistoryAssigned
	if report.AssignedTo != "" && report.AssignedTo != assigneeID {
		kind = models.HistoryReassigned
	}

	assignedDepartment := department
	if assignedDepartment == "" {
		assignedDepartment = assignee.Department
	}

	// Refine jurisdiction fields the lookup left empty; never overwrite.
	municipality := report.Jurisdiction.Municipality
	if municipality == "" {
		municipality = assignee.Municipality
	}
	jurisdictionDepartment := report.Jurisdiction.Department
	if jurisdictionDepartment == "" {
		jurisdictionDepartment = assignedDepartment
	}

	// The escalation clock tracks time in the current status; a reassign
	// that leaves the status alone must not reset it.
	setStatusChanged := ""
	if newStatus != report.Status {
		setStatusChanged = ", status_changed_at = ?"
	}
	sqlStr := fmt.Sprintf(`UPDATE reports
		SET status = ?, assigned_to = ?, assigned_department = ?,
		    municipality = ?, department = ?,
		    updated_at = ?, version = version + 1%s
		WHERE id = ? AND version = ?`, setStatusChanged)

	args := []any{newStatus, assigneeID, assignedDepartment,
		municipality, jurisdictionDepartment, now}
	if setStatusChanged != "" {
		args = append(args, now)
	}
	args = append(args, id, report.Version)

	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, models.ErrConcurrentModification
	}

	assignNotes := notes
	if assignNotes == "" {
		assignNotes = fmt.Sprintf("assigned to %s", assigneeID)
	}
	if err := insertHistory(ctx, tx, id, kind, newStatus, actor, assignNotes, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	report.Status = newStatus
	report.AssignedTo = assigneeID
	report.AssignedDepartment = assignedDepartment
	report.Jurisdiction.Municipality = municipality
	report.Jurisdiction.Department = jurisdictionDepartment
	if setStatusChanged != "" {
		report.StatusChangedAt = now
	}
	report.UpdatedAt = now
	report.Version++

	s.notifier.NotifyStatusChange(services.StatusChangeEvent{
		ReportID:  id,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Kind:      kind,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Notes:     assignNotes,
		Timestamp: now,
	})
	return report, nil
}

// UpdatePriority changes a report's priority. Department head or higher only.
func (s *WorkflowService) UpdatePriority(ctx context.Context, id string, priority models.Priority, notes string, actor *models.Actor) (*models.Report, error) {
	if !models.IsValidPriority(priority) {
		return nil, models.NewValidationError("unknown priority %q", priority)
	}
	if !actor.Role.AtLeast(models.RoleDepartmentHead) {
		return nil, models.ErrForbidden
	}

	scope, err := services.ResolveReportScope(actor)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	report, err := s.fetchReport(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Matches(report) {
		return nil, models.ErrForbidden
	}
	if models.IsTerminalStatus(report.Status) {
		return nil, models.ErrAlreadyResolved
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `UPDATE reports
		SET priority = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		priority, now, id, report.Version)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, models.ErrConcurrentModification
	}

	priorityNotes := notes
	if priorityNotes == "" {
		priorityNotes = fmt.Sprintf("priority %s -> %s", report.Priority, priority)
	}
	if err := insertHistory(ctx, tx, id, models.HistoryPriorityChange, report.Status, actor, priorityNotes, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	report.Priority = priority
	report.UpdatedAt = now
	report.Version++
	return report, nil
}

// AddComment appends a note to the report's audit trail without touching the
// workflow state.
func (s *WorkflowService) AddComment(ctx context.Context, id, notes string, actor *models.Actor) error {
	if strings.TrimSpace(notes) == "" {
		return models.NewValidationError("notes must not be empty")
	}

	scope, err := services.ResolveReportScope(actor)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	report, err := s.fetchReport(ctx, tx, id)
	if err != nil {
		return err
	}
	if !scope.Matches(report) {
		return models.ErrForbidden
	}

	now := time.Now().UTC()
	if err := insertHistory(ctx, tx, id, models.HistoryComment, report.Status, actor, notes, now); err != nil {
		return err
	}

	return tx.Commit()
}

// ListStaff lists staff members within the actor's staff scope.
func (s *WorkflowService) ListStaff(ctx context.Context, actor *models.Actor) ([]*models.Actor, error) {
	scope, err := services.ResolveActorScope(actor)
	if errors.Is(err, models.ErrScopeUndefined) {
		return []*models.Actor{}, nil
	}
	if err != nil {
		return nil, err
	}

	sqlStr := `SELECT id, name, email, role, district, municipality, ward, department FROM staff`
	args := []any{}
	if clause, scopeArgs := scope.SQL(); clause != "" {
		sqlStr += " WHERE " + clause
		args = scopeArgs
	}
	sqlStr += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := []*models.Actor{}
	for rows.Next() {
		member, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, member)
	}
	return staff, rows.Err()
}

// UpsertStaff creates or updates a staff directory entry. State admin only;
// the directory is otherwise synced from the identity service.
func (s *WorkflowService) UpsertStaff(ctx context.Context, member *models.Actor, actor *models.Actor) error {
	if actor == nil || actor.Role != models.RoleStateAdmin {
		return models.ErrForbidden
	}
	if member.ID == "" || !models.IsValidRole(member.Role) || member.Role == models.RoleCitizen {
		return models.NewValidationError("staff entry needs id and a staff role")
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO staff
		(id, name, email, role, district, municipality, ward, department)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name=?, email=?, role=?, district=?, municipality=?, ward=?, department=?`,
		member.ID, member.Name, member.Email, member.Role,
		member.District, member.Municipality, member.Ward, member.Department,
		member.Name, member.Email, member.Role,
		member.District, member.Municipality, member.Ward, member.Department)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *WorkflowService) fetchReport(ctx context.Context, q queryer, id string) (*models.Report, error) {
	row := q.QueryRowContext(ctx, "SELECT "+reportColumns+" FROM reports WHERE id = ?", id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *WorkflowService) fetchStaff(ctx context.Context, q queryer, id string) (*models.Actor, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, email, role, district, municipality, ward, department FROM staff WHERE id = ?`, id)
	member, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var description sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Category, &r.Priority, &r.Status, &r.Title, &description,
		&r.Latitude, &r.Longitude, &r.Address,
		&r.Jurisdiction.District, &r.Jurisdiction.Municipality,
		&r.Jurisdiction.Ward, &r.Jurisdiction.Department,
		&r.ReportedBy, &r.AssignedTo, &r.AssignedDepartment,
		&r.CreatedAt, &r.UpdatedAt, &r.StatusChangedAt, &resolvedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	r.Description = description.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return &r, nil
}

func scanStaff(row rowScanner) (*models.Actor, error) {
	var a models.Actor
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Role,
		&a.District, &a.Municipality, &a.Ward, &a.Department)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, reportID, kind string, status models.Status, actor *models.Actor, notes string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO report_history
		(report_id, kind, status, actor_id, actor_role, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reportID, kind, status, actor.ID, actor.Role, notes, at)
	if err != nil {
		log.Errorf("Failed to append history for report %s: %v", reportID, err)
	}
	return err
}
