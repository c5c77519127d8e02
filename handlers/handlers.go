package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"report-workflow-service/database"
	"report-workflow-service/middleware"
	"report-workflow-service/models"
	"report-workflow-service/services"
)

// WorkflowHandler wires the HTTP surface to the workflow store, the
// escalation evaluator and the jurisdiction lookup.
type WorkflowHandler struct {
	workflow     *database.WorkflowService
	escalation   *services.EscalationService
	jurisdiction *services.JurisdictionService
	hub          *services.WebSocketHub
}

// NewWorkflowHandler creates the handler set.
func NewWorkflowHandler(workflow *database.WorkflowService, escalation *services.EscalationService, jurisdiction *services.JurisdictionService, hub *services.WebSocketHub) *WorkflowHandler {
	return &WorkflowHandler{
		workflow:     workflow,
		escalation:   escalation,
		jurisdiction: jurisdiction,
		hub:          hub,
	}
}

// HealthCheck responds to health probes.
func (h *WorkflowHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": h.hub.ConnectedClients()})
}

// CreateReport handles a citizen submission.
func (h *WorkflowHandler) CreateReport(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req models.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	located, found := h.jurisdiction.Locate(req.Latitude, req.Longitude)
	if !found {
		log.Debugf("No ward boundary match for %f,%f", req.Latitude, req.Longitude)
	}

	report, err := h.workflow.CreateReport(c.Request.Context(), &req, actor, located)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// ListReports returns the scoped, filtered report listing.
func (h *WorkflowHandler) ListReports(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	filters := &models.ListFilters{
		Status:       models.Status(c.Query("status")),
		Category:     models.Category(c.Query("category")),
		Priority:     models.Priority(c.Query("priority")),
		Municipality: c.Query("municipality"),
		Department:   c.Query("department"),
	}
	filters.Limit = intQuery(c, "limit", 50)
	filters.Offset = intQuery(c, "offset", 0)

	reports, err := h.workflow.ListReports(c.Request.Context(), actor, filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// GetReport returns a single scoped report.
func (h *WorkflowHandler) GetReport(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	report, err := h.workflow.GetReport(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetHistory returns a report's audit trail.
func (h *WorkflowHandler) GetHistory(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	history, err := h.workflow.GetHistory(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// UpdateStatus moves a report through the state machine.
func (h *WorkflowHandler) UpdateStatus(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.workflow.TransitionStatus(c.Request.Context(), c.Param("id"), req.Status, req.Notes, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AssignReport routes a report to a staff member.
func (h *WorkflowHandler) AssignReport(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req models.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.workflow.AssignReport(c.Request.Context(), c.Param("id"), req.AssigneeID, req.Department, req.Notes, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// UpdatePriority changes a report's priority.
func (h *WorkflowHandler) UpdatePriority(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req models.UpdatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.workflow.UpdatePriority(c.Request.Context(), c.Param("id"), req.Priority, req.Notes, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AddComment appends a note to a report's audit trail.
func (h *WorkflowHandler) AddComment(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req models.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workflow.AddComment(c.Request.Context(), c.Param("id"), req.Notes, actor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "comment added"})
}

// GetEscalations returns the scoped escalation view with statistics.
func (h *WorkflowHandler) GetEscalations(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	summary, err := h.escalation.ComputeEscalations(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// EscalationAction dispatches a dashboard action on an escalated report to
// the matching workflow operation.
func (h *WorkflowHandler) EscalationAction(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req models.EscalationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	switch req.Action {
	case models.EscalationActionResolve:
		report, err := h.workflow.TransitionStatus(ctx, id, models.StatusResolved, req.Notes, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)

	case models.EscalationActionReassign:
		report, err := h.workflow.AssignReport(ctx, id, req.AssignTo, req.Department, req.Notes, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)

	case models.EscalationActionUpdatePriority:
		report, err := h.workflow.UpdatePriority(ctx, id, req.Priority, req.Notes, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)

	case models.EscalationActionAddComment:
		if err := h.workflow.AddComment(ctx, id, req.Notes, actor); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "comment added"})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
	}
}

// ListStaff lists assignable staff within the actor's scope.
func (h *WorkflowHandler) ListStaff(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	staff, err := h.workflow.ListStaff(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staff": staff, "count": len(staff)})
}

// UpsertStaff creates or updates a staff directory entry.
func (h *WorkflowHandler) UpsertStaff(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var member models.Actor
	if err := c.ShouldBindJSON(&member); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workflow.UpsertStaff(c.Request.Context(), &member, actor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "staff entry saved"})
}

func intQuery(c *gin.Context, key string, defaultValue int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

// respondError maps workflow errors onto HTTP statuses. Authorization
// failures keep their messages generic so nothing leaks across
// jurisdictions.
func respondError(c *gin.Context, err error) {
	var transitionErr *models.TransitionError

	switch {
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "illegal status transition",
			"valid_transitions": models.ValidNextStatuses(transitionErr.From),
		})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
	case errors.Is(err, models.ErrAssigneeOutOfScope):
		c.JSON(http.StatusForbidden, gin.H{"error": "assignee out of scope"})
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrScopeUndefined):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, models.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "report already resolved or closed"})
	case errors.Is(err, models.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent modification, retry with fresh state"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		log.Errorf("Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
