package services

import (
	"report-workflow-service/models"
)

// ReportScope is the visibility predicate computed for one actor. It is the
// single authorization source of truth: every read and every mutation path
// checks reports against it. A scope is fail-closed; if the actor's
// jurisdiction is incomplete for its role, ResolveReportScope refuses to
// build one at all.
type ReportScope struct {
	all          bool
	reportedBy   string
	assignedTo   string
	district     string
	municipality string
	department   string
}

// ResolveReportScope computes the report visibility scope for an actor.
// Returns ErrScopeUndefined when a jurisdiction field the role depends on is
// missing; callers must translate that into an empty result set, never into
// unrestricted access.
func ResolveReportScope(actor *models.Actor) (*ReportScope, error) {
	if actor == nil || !models.IsValidRole(actor.Role) {
		return nil, models.ErrScopeUndefined
	}

	switch actor.Role {
	case models.RoleCitizen:
		if actor.ID == "" {
			return nil, models.ErrScopeUndefined
		}
		return &ReportScope{reportedBy: actor.ID}, nil

	case models.RoleFieldStaff:
		if actor.ID == "" {
			return nil, models.ErrScopeUndefined
		}
		return &ReportScope{assignedTo: actor.ID}, nil

	case models.RoleDepartmentHead:
		if actor.District == "" || actor.Municipality == "" || actor.Department == "" {
			return nil, models.ErrScopeUndefined
		}
		return &ReportScope{
			district:     actor.District,
			municipality: actor.Municipality,
			department:   actor.Department,
		}, nil

	case models.RoleMunicipalityAdmin:
		if actor.District == "" || actor.Municipality == "" {
			return nil, models.ErrScopeUndefined
		}
		return &ReportScope{district: actor.District, municipality: actor.Municipality}, nil

	case models.RoleDistrictAdmin:
		if actor.District == "" {
			return nil, models.ErrScopeUndefined
		}
		return &ReportScope{district: actor.District}, nil

	case models.RoleStateAdmin:
		return &ReportScope{all: true}, nil
	}

	return nil, models.ErrScopeUndefined
}

// Matches reports whether r is visible within the scope.
func (s *ReportScope) Matches(r *models.Report) bool {
	if r == nil {
		return false
	}
	if s.all {
		return true
	}
	if s.reportedBy != "" {
		return r.ReportedBy == s.reportedBy
	}
	if s.assignedTo != "" {
		return r.AssignedTo == s.assignedTo
	}
	if s.district != "" && r.Jurisdiction.District != s.district {
		return false
	}
	if s.municipality != "" && r.Jurisdiction.Municipality != s.municipality {
		return false
	}
	if s.department != "" && r.Jurisdiction.Department != s.department {
		return false
	}
	return s.district != ""
}

// SQL renders the scope as a WHERE fragment over the reports table. An empty
// fragment means unrestricted (state admin only).
func (s *ReportScope) SQL() (string, []any) {
	if s.all {
		return "", nil
	}
	if s.reportedBy != "" {
		return "reported_by = ?", []any{s.reportedBy}
	}
	if s.assignedTo != "" {
		return "assigned_to = ?", []any{s.assignedTo}
	}
	clause := "district = ?"
	args := []any{s.district}
	if s.municipality != "" {
		clause += " AND municipality = ?"
		args = append(args, s.municipality)
	}
	if s.department != "" {
		clause += " AND department = ?"
		args = append(args, s.department)
	}
	return clause, args
}

// ActorScope is the visibility predicate over the staff directory, used for
// assign pickers and user listings.
type ActorScope struct {
	all          bool
	district     string
	municipality string
	department   string
}

// ResolveActorScope computes which staff members an actor may list. Roles
// below department head have no staff visibility at all.
func ResolveActorScope(actor *models.Actor) (*ActorScope, error) {
	if actor == nil || !models.IsValidRole(actor.Role) {
		return nil, models.ErrScopeUndefined
	}

	switch actor.Role {
	case models.RoleCitizen, models.RoleFieldStaff:
		return nil, models.ErrForbidden

	case models.RoleDepartmentHead:
		if actor.District == "" || actor.Municipality == "" || actor.Department == "" {
			return nil, models.ErrScopeUndefined
		}
		return &ActorScope{
			district:     actor.District,
			municipality: actor.Municipality,
			department:   actor.Department,
		}, nil

	case models.RoleMunicipalityAdmin:
		if actor.District == "" || actor.Municipality == "" {
			return nil, models.ErrScopeUndefined
		}
		return &ActorScope{district: actor.District, municipality: actor.Municipality}, nil

	case models.RoleDistrictAdmin:
		if actor.District == "" {
			return nil, models.ErrScopeUndefined
		}
		return &ActorScope{district: actor.District}, nil

	case models.RoleStateAdmin:
		return &ActorScope{all: true}, nil
	}

	return nil, models.ErrScopeUndefined
}

// Matches reports whether the staff member is visible within the scope.
func (s *ActorScope) Matches(staff *models.Actor) bool {
	if staff == nil {
		return false
	}
	if s.all {
		return true
	}
	if s.district != "" && staff.District != s.district {
		return false
	}
	if s.municipality != "" && staff.Municipality != s.municipality {
		return false
	}
	if s.department != "" && staff.Department != s.department {
		return false
	}
	return s.district != ""
}

// SQL renders the scope as a WHERE fragment over the staff table.
func (s *ActorScope) SQL() (string, []any) {
	if s.all {
		return "", nil
	}
	clause := "district = ?"
	args := []any{s.district}
	if s.municipality != "" {
		clause += " AND municipality = ?"
		args = append(args, s.municipality)
	}
	if s.department != "" {
		clause += " AND department = ?"
		args = append(args, s.department)
	}
	return clause, args
}

// jurisdictionFieldsByRole lists which fields a staff role must carry to be
// assignable at all.
var jurisdictionFieldsByRole = map[models.Role]int{
	models.RoleFieldStaff:        3, // district, municipality, department
	models.RoleDepartmentHead:    3,
	models.RoleMunicipalityAdmin: 2, // district, municipality
	models.RoleDistrictAdmin:     1, // district
	models.RoleStateAdmin:        0,
}

// AssigneeCovers reports whether a staff member's own jurisdiction is
// compatible with a report's: every field the assignee's role requires must
// be present and must not contradict a non-empty field on the report.
// Report fields the assignee carries but the report has not fixed yet are
// compatible; assignment refines them afterwards.
func AssigneeCovers(staff *models.Actor, j models.Jurisdiction) bool {
	if staff == nil {
		return false
	}
	depth, ok := jurisdictionFieldsByRole[staff.Role]
	if !ok {
		// Citizens are never assignable.
		return false
	}
	if depth >= 1 {
		if staff.District == "" || staff.District != j.District {
			return false
		}
	}
	if depth >= 2 {
		if staff.Municipality == "" {
			return false
		}
		if j.Municipality != "" && staff.Municipality != j.Municipality {
			return false
		}
	}
	if depth >= 3 {
		if staff.Department == "" {
			return false
		}
		if j.Department != "" && staff.Department != j.Department {
			return false
		}
	}
	return true
}
