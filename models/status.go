package models

// Status is the lifecycle state of a report. Transitions are restricted to
// the pairs in statusTransitions; anything else is rejected before any write.
type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusAcknowledged Status = "acknowledged"
	StatusAssigned     Status = "assigned"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
	StatusRejected     Status = "rejected"
	StatusClosed       Status = "closed"
)

// statusTransitions is the full legal transition graph. closed and rejected
// are terminal except for rejected -> closed.
var statusTransitions = map[Status][]Status{
	StatusSubmitted:    {StatusAcknowledged, StatusAssigned, StatusRejected},
	StatusAcknowledged: {StatusAssigned, StatusRejected},
	StatusAssigned:     {StatusInProgress, StatusResolved, StatusRejected},
	StatusInProgress:   {StatusResolved, StatusRejected},
	StatusResolved:     {StatusClosed},
	StatusRejected:     {StatusClosed},
	StatusClosed:       {},
}

// transitionMinRole is the minimum role allowed to move a report into the
// given target status. The actor must additionally be in scope for the report.
var transitionMinRole = map[Status]Role{
	StatusAcknowledged: RoleFieldStaff,
	StatusAssigned:     RoleDepartmentHead,
	StatusInProgress:   RoleFieldStaff,
	StatusResolved:     RoleFieldStaff,
	StatusRejected:     RoleDepartmentHead,
	StatusClosed:       RoleMunicipalityAdmin,
}

// IsValidStatus checks whether s is a known status value.
func IsValidStatus(s Status) bool {
	_, ok := statusTransitions[s]
	return ok
}

// IsTerminalStatus reports whether no further workflow action is expected.
// resolved and rejected still admit a bookkeeping transition to closed but
// are excluded from escalation and assignment like closed is.
func IsTerminalStatus(s Status) bool {
	return s == StatusClosed || s == StatusRejected || s == StatusResolved
}

// CanTransition checks the transition table for the (from, to) pair.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidNextStatuses returns the legal successor statuses of from.
func ValidNextStatuses(from Status) []Status {
	next := statusTransitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// MinRoleForTransition returns the minimum role required to enter target.
func MinRoleForTransition(target Status) Role {
	if role, ok := transitionMinRole[target]; ok {
		return role
	}
	return RoleStateAdmin
}
