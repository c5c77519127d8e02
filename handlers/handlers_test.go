package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"report-workflow-service/config"
	"report-workflow-service/database"
	"report-workflow-service/models"
	"report-workflow-service/services"
)

type dropNotifier struct{}

func (dropNotifier) NotifyStatusChange(services.StatusChangeEvent) {}

func newTestRouter(t *testing.T, actor *models.Actor) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		EscalationCriticalDays: 2,
		EscalationHighDays:     5,
		EscalationMediumDays:   10,
		EscalationLowDays:      20,
	}

	hub := services.NewWebSocketHub()
	handler := NewWorkflowHandler(
		database.NewWorkflowService(db, dropNotifier{}),
		services.NewEscalationService(db, cfg),
		services.NewJurisdictionService(),
		hub,
	)

	router := gin.New()
	if actor != nil {
		router.Use(func(c *gin.Context) {
			c.Set("actor", actor)
			c.Next()
		})
	}

	router.GET("/health", handler.HealthCheck)
	router.POST("/reports", handler.CreateReport)
	router.GET("/reports", handler.ListReports)
	router.GET("/reports/:id", handler.GetReport)
	router.PUT("/reports/:id/status", handler.UpdateStatus)
	router.PUT("/reports/:id/assign", handler.AssignReport)
	router.POST("/reports/:id/comments", handler.AddComment)
	router.GET("/escalations", handler.GetEscalations)
	router.POST("/escalations/:id/action", handler.EscalationAction)

	return router, mock
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := doJSON(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/reports"},
		{http.MethodGet, "/reports"},
		{http.MethodGet, "/reports/r-1"},
		{http.MethodPut, "/reports/r-1/status"},
		{http.MethodGet, "/escalations"},
	}

	for _, p := range paths {
		w := doJSON(router, p.method, p.path, "{}")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", p.method, p.path)
	}
}

func TestCreateReportInvalidBody(t *testing.T) {
	citizen := &models.Actor{ID: "citizen-1", Role: models.RoleCitizen}
	router, _ := newTestRouter(t, citizen)

	// Missing the required title, address and district fields.
	w := doJSON(router, http.MethodPost, "/reports", `{"category": "pothole"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatusIllegalTransition(t *testing.T) {
	admin := &models.Actor{
		ID:           "da-1",
		Role:         models.RoleDistrictAdmin,
		Jurisdiction: models.Jurisdiction{District: "Bokaro"},
	}
	router, mock := newTestRouter(t, admin)

	cols := []string{
		"id", "category", "priority", "status", "title", "description",
		"latitude", "longitude", "address",
		"district", "municipality", "ward", "department",
		"reported_by", "assigned_to", "assigned_department",
		"created_at", "updated_at", "status_changed_at", "resolved_at", "version",
	}
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM reports WHERE id = ").
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"r-1", "pothole", "Medium", "closed", "t", "",
			23.1, 86.1, "Main Road",
			"Bokaro", "Chas", "12", "roads",
			"citizen-1", "staff-1", "roads",
			now, now, now, nil, 4))
	mock.ExpectRollback()

	w := doJSON(router, http.MethodPut, "/reports/r-1/status", `{"status": "in_progress"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "valid_transitions")
}

func TestUpdateStatusInvalidBody(t *testing.T) {
	admin := &models.Actor{
		ID:           "da-1",
		Role:         models.RoleDistrictAdmin,
		Jurisdiction: models.Jurisdiction{District: "Bokaro"},
	}
	router, _ := newTestRouter(t, admin)

	w := doJSON(router, http.MethodPut, "/reports/r-1/status", `{"notes": "no status"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscalationActionUnknown(t *testing.T) {
	admin := &models.Actor{
		ID:           "da-1",
		Role:         models.RoleDistrictAdmin,
		Jurisdiction: models.Jurisdiction{District: "Bokaro"},
	}
	router, _ := newTestRouter(t, admin)

	w := doJSON(router, http.MethodPost, "/escalations/r-1/action", `{"action": "explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown action")
}

func TestListReportsUndefinedScopeIsEmpty(t *testing.T) {
	// A district admin without a district sees an empty listing, never all
	// reports.
	admin := &models.Actor{ID: "da-x", Role: models.RoleDistrictAdmin}
	router, mock := newTestRouter(t, admin)

	w := doJSON(router, http.MethodGet, "/reports", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		query        string
		key          string
		defaultValue int
		want         int
	}{
		{"valid", "limit=25", "limit", 50, 25},
		{"missing", "", "limit", 50, 50},
		{"not a number", "limit=abc", "limit", 50, 50},
		{"negative", "limit=-5", "limit", 50, 50},
		{"overflows int", "limit=99999999999999999999", "limit", 50, 50},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/reports?"+tc.query, nil)
			assert.Equal(t, tc.want, intQuery(c, tc.key, tc.defaultValue))
		})
	}
}

func TestGetEscalationsEmptyScope(t *testing.T) {
	admin := &models.Actor{ID: "da-x", Role: models.RoleDistrictAdmin}
	router, mock := newTestRouter(t, admin)

	w := doJSON(router, http.MethodGet, "/escalations", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_escalated":0`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
