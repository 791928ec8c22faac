package service

import (
	"time"

	"caseTasks/internal/models/task"

	"github.com/google/uuid"
)

// AssigneeInput names a user to assign. IsClient and AssignedBy are never taken
// from the caller: the first comes from the user directory, the second is the viewer.
type AssigneeInput struct {
	UserID uuid.UUID
	Role   task.Role
}

type RecurrenceInput struct {
	Pattern     task.Pattern
	EndAfter    *time.Time
	Occurrences *int
}

type CreateTaskInput struct {
	Title              string
	Description        string
	Instruction        string
	Category           task.Category
	Priority           task.Priority
	StartDate          *time.Time
	DueDate            time.Time
	Assignees          []AssigneeInput
	CaseReference      *task.CaseReference
	Recurrence         *RecurrenceInput
	IsTemplate         bool
	TemplateName       string
	ReferenceDocuments []string
}

// UpdateTaskInput is a partial patch; nil fields are left alone. A Status
// change is turned into the state machine action that reaches it.
type UpdateTaskInput struct {
	Title              *string
	Description        *string
	Instruction        *string
	Category           *task.Category
	Priority           *task.Priority
	StartDate          *time.Time
	DueDate            *time.Time
	CaseReference      *task.CaseReference
	ReferenceDocuments *[]string
	Assignees          *[]AssigneeInput
	Status             *task.Status
	Comment            string
	CancellationReason string
	ExpectedVersion    *int
}

func (in UpdateTaskInput) editsFields() bool {
	return in.Title != nil || in.Description != nil || in.Instruction != nil ||
		in.Category != nil || in.Priority != nil || in.StartDate != nil ||
		in.DueDate != nil || in.CaseReference != nil || in.ReferenceDocuments != nil ||
		in.Assignees != nil
}

type InstantiateInput struct {
	DueDate   time.Time
	StartDate *time.Time
	Assignees []AssigneeInput
}

type ListQuery struct {
	Status    *task.Status
	Priority  *task.Priority
	Search    string
	Templates bool
	Page      int
	Limit     int
}
