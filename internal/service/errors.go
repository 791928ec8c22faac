package service

import (
	"errors"
	"fmt"

	"caseTasks/internal/engine"

	"github.com/google/uuid"
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeVersionConflict    = "VERSION_CONFLICT"
	CodeIllegalTransition  = "ILLEGAL_TRANSITION"
	CodeReasonRequired     = "REASON_REQUIRED"
	CodeAssignmentEmpty    = "ASSIGNMENT_EMPTY"
	CodeMixedAudience      = "ASSIGNMENT_MIXED_AUDIENCE"
	CodeMultipleClients    = "ASSIGNMENT_MULTIPLE_CLIENTS"
	CodePrimaryMutated     = "ASSIGNMENT_PRIMARY_MUTATED"
	CodeDuplicateAssignee  = "ASSIGNMENT_DUPLICATE"
	CodeMultiplePrimaries  = "ASSIGNMENT_MULTIPLE_PRIMARIES"
	FieldAssignees         = "assignees"
	resourceTask           = "task"
	resourceTemplate       = "template"
	resourceUser           = "user"
)

// BusinessError is what the service returns for every expected failure. Err
// keeps the engine or repository error it was built from.
type BusinessError struct {
	Code    string
	Field   string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewNotFound(resource string, id uuid.UUID) *BusinessError {
	return NewBusinessError(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id),
		ToDetail("resource", resource),
		ToDetail("id", id.String()))
}

func NewValidationError(field, reason string) *BusinessError {
	return NewBusinessError(CodeValidation, fmt.Sprintf("invalid value of '%s': %s", field, reason),
		ToDetail("reason", reason)).
		onField(field)
}

func NewUnauthenticated(reason string) *BusinessError {
	return NewBusinessError(CodeUnauthenticated, reason)
}

func newVersionConflict(id uuid.UUID, err error) *BusinessError {
	return NewBusinessError(CodeVersionConflict, fmt.Sprintf("task %s was changed by someone else", id),
		ToDetail("id", id.String())).
		causedBy(err)
}

func (b *BusinessError) onField(field string) *BusinessError {
	b.Field = field
	return b
}

// causedBy keeps err so errors.Is and errors.As still reach it.
func (b *BusinessError) causedBy(err error) *BusinessError {
	b.Err = err
	return b
}

var assignmentCodes = map[engine.AssignmentErrorKind]string{
	engine.AssignmentEmpty:             CodeAssignmentEmpty,
	engine.AssignmentMixedAudience:     CodeMixedAudience,
	engine.AssignmentMultipleClients:   CodeMultipleClients,
	engine.AssignmentPrimaryMutated:    CodePrimaryMutated,
	engine.AssignmentDuplicate:         CodeDuplicateAssignee,
	engine.AssignmentMultiplePrimaries: CodeMultiplePrimaries,
}

var assignmentMessages = map[engine.AssignmentErrorKind]string{
	engine.AssignmentEmpty:             "a task needs at least one assignee",
	engine.AssignmentMixedAudience:     "a task is assigned either to staff or to one client, never both",
	engine.AssignmentMultipleClients:   "a task can be delegated to one client only",
	engine.AssignmentPrimaryMutated:    "the primary assignee cannot be changed or removed",
	engine.AssignmentDuplicate:         "a user appears more than once among the assignees",
	engine.AssignmentMultiplePrimaries: "only one assignee can be primary",
}

// fromEngine converts an engine error into its business error, or returns nil
// when err did not come from the engine.
func fromEngine(err error) *BusinessError {
	var (
		aerr *engine.AssignmentError
		terr *engine.TransitionError
		perr *engine.PermissionError
	)
	switch {
	case errors.As(err, &aerr):
		details := []Detail{ToDetail("kind", string(aerr.Kind))}
		if aerr.UserID != uuid.Nil {
			details = append(details, ToDetail("userId", aerr.UserID.String()))
		}
		return NewBusinessError(assignmentCodes[aerr.Kind], assignmentMessages[aerr.Kind], details...).
			onField(FieldAssignees).causedBy(err)

	case errors.As(err, &terr):
		from := ToDetail("from", string(terr.From))
		action := ToDetail("action", string(terr.Action))
		if terr.Kind == engine.TransitionReasonRequired {
			return NewBusinessError(CodeReasonRequired, reasonMessage(terr.Field), from, action).
				onField(terr.Field).causedBy(err)
		}
		return NewBusinessError(CodeIllegalTransition,
			fmt.Sprintf("%s is not allowed while the task is %s", terr.Action, terr.From), from, action).
			causedBy(err)

	case errors.As(err, &perr):
		return NewBusinessError(CodeForbidden, fmt.Sprintf("not allowed to %s this task", perr.Action),
			ToDetail("action", perr.Action)).
			causedBy(err)
	}
	return nil
}

func reasonMessage(field string) string {
	if field == engine.FieldCancellationReason {
		return fmt.Sprintf("a cancellation reason of at least %d characters is required", engine.MinCancellationReasonLength)
	}
	return "a completion comment is required"
}
