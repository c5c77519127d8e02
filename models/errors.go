package models

import (
	"errors"
	"fmt"
)

// Workflow error taxonomy. Handlers map these onto HTTP statuses; the store
// guarantees that any operation returning one of them left the record
// untouched.
var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("report not found")
	ErrForbidden              = errors.New("forbidden")
	ErrScopeUndefined         = errors.New("actor scope undefined")
	ErrAssigneeOutOfScope     = errors.New("assignee out of scope")
	ErrIllegalTransition      = errors.New("illegal status transition")
	ErrAlreadyResolved        = errors.New("report already resolved or closed")
	ErrConcurrentModification = errors.New("concurrent modification, retry with fresh state")
)

// TransitionError reports an illegal (from, to) pair together with the
// currently legal successors, so callers can correct themselves.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s, valid targets: %v",
		e.From, e.To, ValidNextStatuses(e.From))
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// NewValidationError wraps ErrValidation with a caller-facing reason.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
