package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"report-workflow-service/config"
	"report-workflow-service/models"
)

// EscalationService computes the derived escalation view: reports that have
// sat in their current status longer than their priority allows. Pure read;
// it holds no locks and is safe to run concurrently with writers.
type EscalationService struct {
	db         *sql.DB
	thresholds map[models.Priority]int
}

// NewEscalationService creates the evaluator with thresholds from config.
func NewEscalationService(db *sql.DB, cfg *config.Config) *EscalationService {
	return &EscalationService{
		db: db,
		thresholds: map[models.Priority]int{
			models.PriorityCritical: cfg.EscalationCriticalDays,
			models.PriorityHigh:     cfg.EscalationHighDays,
			models.PriorityMedium:   cfg.EscalationMediumDays,
			models.PriorityLow:      cfg.EscalationLowDays,
		},
	}
}

// Threshold returns the escalation threshold in days for a priority.
func (s *EscalationService) Threshold(priority models.Priority) int {
	return s.thresholds[priority]
}

// DaysPending is the whole number of days since the report's last status
// change.
func DaysPending(statusChangedAt, now time.Time) int {
	if now.Before(statusChangedAt) {
		return 0
	}
	return int(now.Sub(statusChangedAt) / (24 * time.Hour))
}

// IsEscalated reports whether a report with the given priority and last
// status change is overdue. Terminal reports never escalate; callers filter
// those out before asking.
func (s *EscalationService) IsEscalated(priority models.Priority, statusChangedAt, now time.Time) bool {
	return DaysPending(statusChangedAt, now) > s.thresholds[priority]
}

// ComputeEscalations builds the scoped escalation view plus aggregate
// statistics. An undefined actor scope yields an empty summary.
func (s *EscalationService) ComputeEscalations(ctx context.Context, actor *models.Actor) (*models.EscalationSummary, error) {
	now := time.Now().UTC()
	summary := &models.EscalationSummary{
		ByMunicipality:    map[string][]models.EscalatedReport{},
		PriorityBreakdown: map[models.Priority]int{},
		ResolutionRate:    "0",
		GeneratedAt:       now,
	}

	scope, err := ResolveReportScope(actor)
	if errors.Is(err, models.ErrScopeUndefined) {
		return summary, nil
	}
	if err != nil {
		return nil, err
	}

	scopeSQL, scopeArgs := scope.SQL()

	clauses := []string{"status NOT IN (?, ?, ?)"}
	args := []any{models.StatusResolved, models.StatusRejected, models.StatusClosed}
	if scopeSQL != "" {
		clauses = append(clauses, scopeSQL)
		args = append(args, scopeArgs...)
	}

	sqlStr := `SELECT id, category, priority, status, title,
		district, municipality, ward, department,
		assigned_to, created_at, status_changed_at
		FROM reports WHERE ` + strings.Join(clauses, " AND ")

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Report
		if err := rows.Scan(&r.ID, &r.Category, &r.Priority, &r.Status, &r.Title,
			&r.Jurisdiction.District, &r.Jurisdiction.Municipality,
			&r.Jurisdiction.Ward, &r.Jurisdiction.Department,
			&r.AssignedTo, &r.CreatedAt, &r.StatusChangedAt); err != nil {
			return nil, err
		}
		summary.TotalPending++

		if !s.IsEscalated(r.Priority, r.StatusChangedAt, now) {
			continue
		}
		entry := models.EscalatedReport{
			Report:        r,
			DaysPending:   DaysPending(r.StatusChangedAt, now),
			ThresholdDays: s.thresholds[r.Priority],
		}
		municipality := r.Jurisdiction.Municipality
		if municipality == "" {
			municipality = "unassigned"
		}
		summary.ByMunicipality[municipality] = append(summary.ByMunicipality[municipality], entry)
		summary.PriorityBreakdown[r.Priority]++
		summary.TotalEscalated++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resolved, err := s.resolvedThisMonth(ctx, scopeSQL, scopeArgs, now)
	if err != nil {
		return nil, err
	}
	summary.ResolvedThisMonth = resolved
	summary.ResolutionRate = resolutionRate(resolved, summary.TotalPending)

	return summary, nil
}

func (s *EscalationService) resolvedThisMonth(ctx context.Context, scopeSQL string, scopeArgs []any, now time.Time) (int, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	sqlStr := "SELECT COUNT(*) FROM reports WHERE resolved_at IS NOT NULL AND resolved_at >= ?"
	args := []any{monthStart}
	if scopeSQL != "" {
		sqlStr += " AND " + scopeSQL
		args = append(args, scopeArgs...)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// resolutionRate is resolved / (resolved + pending) as a percentage with one
// decimal place. Decimal arithmetic keeps dashboard numbers stable.
func resolutionRate(resolved, pending int) string {
	total := resolved + pending
	if total == 0 {
		return "0"
	}
	rate := decimal.NewFromInt(int64(resolved)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Round(1)
	return rate.String()
}
