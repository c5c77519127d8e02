package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"

	"report-workflow-service/models"
	"report-workflow-service/services"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
	svc  *WorkflowService
)

type noopNotifier struct{}

func (noopNotifier) NotifyStatusChange(services.StatusChangeEvent) {}

func setUp() {
	db, mock, _ = sqlmock.New()
	svc = NewWorkflowService(db, noopNotifier{})
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

var reportCols = []string{
	"id", "category", "priority", "status", "title", "description",
	"latitude", "longitude", "address",
	"district", "municipality", "ward", "department",
	"reported_by", "assigned_to", "assigned_department",
	"created_at", "updated_at", "status_changed_at", "resolved_at", "version",
}

func reportRow(id string, status models.Status, district, municipality, department, reportedBy, assignedTo string, version int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(reportCols).AddRow(
		id, "pothole", "Medium", status, "Deep pothole", "near the bus stop",
		23.1, 86.1, "Main Road",
		district, municipality, "12", department,
		reportedBy, assignedTo, "",
		now, now, now, nil, version)
}

func staffRow(id string, role models.Role, district, municipality, department string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "email", "role", "district", "municipality", "ward", "department",
	}).AddRow(id, "A Staffer", "staff@example.org", role, district, municipality, "", department)
}

func districtAdmin() *models.Actor {
	return &models.Actor{
		ID:           "da-1",
		Role:         models.RoleDistrictAdmin,
		Jurisdiction: models.Jurisdiction{District: "Bokaro"},
	}
}

func TestCreateReport(t *testing.T) {
	it(func() {
		citizen := &models.Actor{ID: "citizen-1", Role: models.RoleCitizen}
		req := &models.CreateReportRequest{
			Title:    "Broken streetlight",
			Category: models.CategoryStreetlight,
			Address:  "Sector 4",
			District: "Bokaro",
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO reports").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO report_history").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		report, err := svc.CreateReport(context.Background(), req, citizen, models.Jurisdiction{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Status != models.StatusSubmitted {
			t.Errorf("new report status = %s, want submitted", report.Status)
		}
		if report.Priority != models.PriorityMedium {
			t.Errorf("default priority = %s, want Medium", report.Priority)
		}
		if report.Jurisdiction.District != "Bokaro" {
			t.Errorf("district = %s, want Bokaro", report.Jurisdiction.District)
		}
		if report.Version != 1 {
			t.Errorf("version = %d, want 1", report.Version)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestCreateReportValidation(t *testing.T) {
	it(func() {
		citizen := &models.Actor{ID: "citizen-1", Role: models.RoleCitizen}

		testCases := []struct {
			name string
			req  *models.CreateReportRequest
		}{
			{
				name: "unknown category",
				req:  &models.CreateReportRequest{Title: "t", Category: "ufo", Address: "a", District: "Bokaro"},
			},
			{
				name: "unknown priority",
				req:  &models.CreateReportRequest{Title: "t", Category: "pothole", Priority: "Urgent", Address: "a", District: "Bokaro"},
			},
			{
				name: "no location at all",
				req:  &models.CreateReportRequest{Title: "t", Category: "pothole", District: "Bokaro"},
			},
			{
				name: "no district and no lookup match",
				req:  &models.CreateReportRequest{Title: "t", Category: "pothole", Address: "a"},
			},
		}

		for _, tc := range testCases {
			_, err := svc.CreateReport(context.Background(), tc.req, citizen, models.Jurisdiction{})
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
			}
		}
		// Validation failures must never reach the database.
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected database access: %v", err)
		}
	})
}

func TestTransitionStatus(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusSubmitted, "Bokaro", "Chas", "roads", "citizen-1", "", 1))
		mock.ExpectExec("UPDATE reports").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO report_history").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		report, err := svc.TransitionStatus(context.Background(), "r-1", models.StatusAcknowledged, "seen", districtAdmin())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Status != models.StatusAcknowledged {
			t.Errorf("status = %s, want acknowledged", report.Status)
		}
		if report.Version != 2 {
			t.Errorf("version = %d, want 2", report.Version)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestTransitionStatusIllegal(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusResolved, "Bokaro", "Chas", "roads", "citizen-1", "staff-1", 3))
		mock.ExpectRollback()

		_, err := svc.TransitionStatus(context.Background(), "r-1", models.StatusInProgress, "", districtAdmin())

		var transitionErr *models.TransitionError
		if !errors.As(err, &transitionErr) {
			t.Fatalf("expected TransitionError, got %v", err)
		}
		if transitionErr.From != models.StatusResolved || transitionErr.To != models.StatusInProgress {
			t.Errorf("TransitionError = %s -> %s", transitionErr.From, transitionErr.To)
		}
		if !errors.Is(err, models.ErrIllegalTransition) {
			t.Error("TransitionError must unwrap to ErrIllegalTransition")
		}
	})
}

func TestTransitionStatusRoleTooLow(t *testing.T) {
	it(func() {
		// Field staff may resolve their own assignments but never close.
		staff := &models.Actor{ID: "staff-1", Role: models.RoleFieldStaff}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusResolved, "Bokaro", "Chas", "roads", "citizen-1", "staff-1", 3))
		mock.ExpectRollback()

		_, err := svc.TransitionStatus(context.Background(), "r-1", models.StatusClosed, "", staff)
		if !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestTransitionStatusConcurrentModification(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusSubmitted, "Bokaro", "Chas", "roads", "citizen-1", "", 1))
		mock.ExpectExec("UPDATE reports").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := svc.TransitionStatus(context.Background(), "r-1", models.StatusAcknowledged, "", districtAdmin())
		if !errors.Is(err, models.ErrConcurrentModification) {
			t.Fatalf("expected ErrConcurrentModification, got %v", err)
		}
	})
}

func TestTransitionStatusOutOfScope(t *testing.T) {
	it(func() {
		otherDistrict := &models.Actor{
			ID:           "da-2",
			Role:         models.RoleDistrictAdmin,
			Jurisdiction: models.Jurisdiction{District: "Ranchi"},
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusSubmitted, "Bokaro", "Chas", "roads", "citizen-1", "", 1))
		mock.ExpectRollback()

		_, err := svc.TransitionStatus(context.Background(), "r-1", models.StatusAcknowledged, "", otherDistrict)
		if !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestTransitionStatusNotFound(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := svc.TransitionStatus(context.Background(), "missing", models.StatusAcknowledged, "", districtAdmin())
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAssignReport(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusSubmitted, "Bokaro", "", "", "citizen-1", "", 1))
		mock.ExpectQuery("FROM staff WHERE id = ").
			WithArgs("staff-1").
			WillReturnRows(staffRow("staff-1", models.RoleFieldStaff, "Bokaro", "Chas", "roads"))
		mock.ExpectExec("UPDATE reports").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO report_history").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		report, err := svc.AssignReport(context.Background(), "r-1", "staff-1", "", "", districtAdmin())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Status != models.StatusAssigned {
			t.Errorf("status = %s, want assigned", report.Status)
		}
		if report.AssignedTo != "staff-1" {
			t.Errorf("assigned_to = %s, want staff-1", report.AssignedTo)
		}
		if report.Jurisdiction.Municipality != "Chas" {
			t.Errorf("municipality not refined from assignee, got %q", report.Jurisdiction.Municipality)
		}
		if report.AssignedDepartment != "roads" {
			t.Errorf("assigned_department = %s, want roads", report.AssignedDepartment)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestAssignReportOutOfScopeAssignee(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusSubmitted, "Bokaro", "Chas", "", "citizen-1", "", 1))
		mock.ExpectQuery("FROM staff WHERE id = ").
			WithArgs("staff-9").
			WillReturnRows(staffRow("staff-9", models.RoleFieldStaff, "Ranchi", "Kanke", "roads"))
		mock.ExpectRollback()

		_, err := svc.AssignReport(context.Background(), "r-1", "staff-9", "", "", districtAdmin())
		if !errors.Is(err, models.ErrAssigneeOutOfScope) {
			t.Fatalf("expected ErrAssigneeOutOfScope, got %v", err)
		}
	})
}

func TestAssignReportUnknownAssignee(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusSubmitted, "Bokaro", "Chas", "", "citizen-1", "", 1))
		mock.ExpectQuery("FROM staff WHERE id = ").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		// Unknown assignees read the same as out-of-scope ones.
		_, err := svc.AssignReport(context.Background(), "r-1", "ghost", "", "", districtAdmin())
		if !errors.Is(err, models.ErrAssigneeOutOfScope) {
			t.Fatalf("expected ErrAssigneeOutOfScope, got %v", err)
		}
	})
}

func TestAssignReportTerminal(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusClosed, "Bokaro", "Chas", "roads", "citizen-1", "staff-1", 5))
		mock.ExpectRollback()

		_, err := svc.AssignReport(context.Background(), "r-1", "staff-2", "", "", districtAdmin())
		if !errors.Is(err, models.ErrAlreadyResolved) {
			t.Fatalf("expected ErrAlreadyResolved, got %v", err)
		}
	})
}

func TestAssignReportForbiddenForCitizen(t *testing.T) {
	it(func() {
		citizen := &models.Actor{ID: "citizen-1", Role: models.RoleCitizen}
		_, err := svc.AssignReport(context.Background(), "r-1", "staff-1", "", "", citizen)
		if !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected database access: %v", err)
		}
	})
}

func TestAssignReportIdempotentReassignKind(t *testing.T) {
	it(func() {
		// Already-assigned report moved to a different staffer keeps status
		// assigned and records a reassignment entry.
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusAssigned, "Bokaro", "Chas", "roads", "citizen-1", "staff-1", 2))
		mock.ExpectQuery("FROM staff WHERE id = ").
			WithArgs("staff-2").
			WillReturnRows(staffRow("staff-2", models.RoleFieldStaff, "Bokaro", "Chas", "roads"))
		mock.ExpectExec("UPDATE reports").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO report_history").
			WithArgs("r-1", models.HistoryReassigned, models.StatusAssigned,
				"da-1", models.RoleDistrictAdmin, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		report, err := svc.AssignReport(context.Background(), "r-1", "staff-2", "", "", districtAdmin())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Status != models.StatusAssigned {
			t.Errorf("status = %s, want assigned", report.Status)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestAssignReportReassignKeepsEscalationClock(t *testing.T) {
	it(func() {
		// Reassigning an in_progress report leaves the status alone, so the
		// time-in-status clock must not move either.
		created := time.Now().UTC().Add(-10 * 24 * time.Hour)
		lastChange := time.Now().UTC().Add(-6 * 24 * time.Hour)
		rows := sqlmock.NewRows(reportCols).AddRow(
			"r-1", "pothole", "High", "in_progress", "Deep pothole", "",
			23.1, 86.1, "Main Road",
			"Bokaro", "Chas", "12", "roads",
			"citizen-1", "staff-1", "roads",
			created, lastChange, lastChange, nil, 3)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(rows)
		mock.ExpectQuery("FROM staff WHERE id = ").
			WithArgs("staff-2").
			WillReturnRows(staffRow("staff-2", models.RoleFieldStaff, "Bokaro", "Chas", "roads"))
		mock.ExpectExec("UPDATE reports").
			WithArgs(models.StatusInProgress, "staff-2", "roads",
				"Chas", "roads", sqlmock.AnyArg(), "r-1", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO report_history").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		report, err := svc.AssignReport(context.Background(), "r-1", "staff-2", "", "", districtAdmin())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Status != models.StatusInProgress {
			t.Errorf("status = %s, want in_progress", report.Status)
		}
		if !report.StatusChangedAt.Equal(lastChange) {
			t.Errorf("status_changed_at moved %s -> %s on a reassign without a status change",
				lastChange, report.StatusChangedAt)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestTransitionStatusRejectedClearsAssignee(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusInProgress, "Bokaro", "Chas", "roads", "citizen-1", "staff-1", 3))
		mock.ExpectExec("UPDATE reports").
			WithArgs(models.StatusRejected, sqlmock.AnyArg(), sqlmock.AnyArg(), "r-1", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO report_history").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		report, err := svc.TransitionStatus(context.Background(), "r-1", models.StatusRejected, "duplicate", districtAdmin())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Status != models.StatusRejected {
			t.Errorf("status = %s, want rejected", report.Status)
		}
		if report.AssignedTo != "" || report.AssignedDepartment != "" {
			t.Errorf("rejected report still assigned: assigned_to=%q assigned_department=%q",
				report.AssignedTo, report.AssignedDepartment)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestGetReportForbidden(t *testing.T) {
	it(func() {
		otherCitizen := &models.Actor{ID: "citizen-2", Role: models.RoleCitizen}

		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusSubmitted, "Bokaro", "Chas", "", "citizen-1", "", 1))

		_, err := svc.GetReport(context.Background(), "r-1", otherCitizen)
		if !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestListReportsUndefinedScope(t *testing.T) {
	it(func() {
		// District admin without a district gets an empty page, not everything.
		actor := &models.Actor{ID: "da-x", Role: models.RoleDistrictAdmin}

		reports, err := svc.ListReports(context.Background(), actor, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reports) != 0 {
			t.Errorf("expected empty result, got %d reports", len(reports))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected database access: %v", err)
		}
	})
}

func TestListReportsScopeAndFilters(t *testing.T) {
	it(func() {
		mock.ExpectQuery("FROM reports WHERE district = (.+) AND status = (.+) ORDER BY created_at DESC").
			WithArgs("Bokaro", models.StatusSubmitted, 10, 0).
			WillReturnRows(reportRow("r-1", models.StatusSubmitted, "Bokaro", "Chas", "", "citizen-1", "", 1))

		filters := &models.ListFilters{Status: models.StatusSubmitted, Limit: 10}
		reports, err := svc.ListReports(context.Background(), districtAdmin(), filters)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reports) != 1 {
			t.Fatalf("got %d reports, want 1", len(reports))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestListReportsInvalidFilter(t *testing.T) {
	it(func() {
		filters := &models.ListFilters{Status: "weird"}
		_, err := svc.ListReports(context.Background(), districtAdmin(), filters)
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestUpdatePriority(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = ").
			WithArgs("r-1").
			WillReturnRows(reportRow("r-1", models.StatusAssigned, "Bokaro", "Chas", "roads", "citizen-1", "staff-1", 2))
		mock.ExpectExec("UPDATE reports").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO report_history").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		report, err := svc.UpdatePriority(context.Background(), "r-1", models.PriorityCritical, "", districtAdmin())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Priority != models.PriorityCritical {
			t.Errorf("priority = %s, want Critical", report.Priority)
		}
	})
}

func TestAddCommentEmptyNotes(t *testing.T) {
	it(func() {
		err := svc.AddComment(context.Background(), "r-1", "   ", districtAdmin())
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestUpsertStaffForbidden(t *testing.T) {
	it(func() {
		member := &models.Actor{ID: "staff-1", Role: models.RoleFieldStaff}
		err := svc.UpsertStaff(context.Background(), member, districtAdmin())
		if !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}
