package engine

import (
	"fmt"

	"caseTasks/internal/models/task"

	"github.com/google/uuid"
)

type AssignmentErrorKind string

const (
	AssignmentEmpty             AssignmentErrorKind = "empty"
	AssignmentMixedAudience     AssignmentErrorKind = "mixed_audience"
	AssignmentMultipleClients   AssignmentErrorKind = "multiple_clients"
	AssignmentPrimaryMutated    AssignmentErrorKind = "primary_mutated"
	AssignmentDuplicate         AssignmentErrorKind = "duplicate_assignee"
	AssignmentMultiplePrimaries AssignmentErrorKind = "multiple_primaries"
)

// AssignmentError rejects a proposed assignee set. UserID names the offending
// entry when there is one.
type AssignmentError struct {
	Kind   AssignmentErrorKind
	UserID uuid.UUID
}

func (e *AssignmentError) Error() string {
	if e.UserID != uuid.Nil {
		return fmt.Sprintf("assignment: %s (user %s)", e.Kind, e.UserID)
	}
	return fmt.Sprintf("assignment: %s", e.Kind)
}

// Is matches on Kind so callers can write errors.Is(err, engine.ErrMixedAudience).
func (e *AssignmentError) Is(target error) bool {
	t, ok := target.(*AssignmentError)
	return ok && t.Kind == e.Kind
}

var (
	ErrAssignmentEmpty   = &AssignmentError{Kind: AssignmentEmpty}
	ErrMixedAudience     = &AssignmentError{Kind: AssignmentMixedAudience}
	ErrMultipleClients   = &AssignmentError{Kind: AssignmentMultipleClients}
	ErrPrimaryMutated    = &AssignmentError{Kind: AssignmentPrimaryMutated}
	ErrDuplicateAssignee = &AssignmentError{Kind: AssignmentDuplicate}
	ErrMultiplePrimaries = &AssignmentError{Kind: AssignmentMultiplePrimaries}
)

type TransitionErrorKind string

const (
	TransitionIllegal        TransitionErrorKind = "illegal_transition"
	TransitionReasonRequired TransitionErrorKind = "reason_required"
)

// TransitionError rejects a requested action. Field is set for ReasonRequired
// and names the missing context value.
type TransitionError struct {
	Kind   TransitionErrorKind
	From   task.Status
	Action Action
	Field  string
}

func (e *TransitionError) Error() string {
	if e.Kind == TransitionReasonRequired {
		return fmt.Sprintf("transition %s from %s: %s required", e.Action, e.From, e.Field)
	}
	return fmt.Sprintf("transition %s from %s: illegal", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool {
	t, ok := target.(*TransitionError)
	return ok && t.Kind == e.Kind
}

var (
	ErrIllegalTransition = &TransitionError{Kind: TransitionIllegal}
	ErrReasonRequired    = &TransitionError{Kind: TransitionReasonRequired}
)

func illegal(from task.Status, action Action) error {
	return &TransitionError{Kind: TransitionIllegal, From: from, Action: action}
}

// PermissionError is returned by every mutation path when the viewer lacks the
// right. It is never folded into validation errors.
type PermissionError struct {
	UserID uuid.UUID
	TaskID uuid.UUID
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("forbidden: user %s may not %s task %s", e.UserID, e.Action, e.TaskID)
}

func (e *PermissionError) Is(target error) bool {
	_, ok := target.(*PermissionError)
	return ok
}

var ErrForbidden = &PermissionError{}
