package dto

import (
	"time"

	"caseTasks/internal/engine"
	"caseTasks/internal/models/task"
	"caseTasks/internal/service"

	"github.com/google/uuid"
)

type AssigneeRequest struct {
	UserID uuid.UUID `json:"userId"`
	Role   task.Role `json:"role,omitempty"`
}

type RecurrenceRequest struct {
	Pattern     task.Pattern `json:"pattern"`
	EndAfter    *time.Time   `json:"endAfter,omitempty"`
	Occurrences *int         `json:"occurrences,omitempty"`
}

type CreateTaskRequest struct {
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Instruction        string              `json:"instruction"`
	Category           task.Category       `json:"category"`
	TaskPriority       task.Priority       `json:"taskPriority"`
	StartDate          *time.Time          `json:"startDate,omitempty"`
	DueDate            *time.Time          `json:"dueDate"`
	Assignees          []AssigneeRequest   `json:"assignees"`
	CaseReference      *task.CaseReference `json:"caseReference,omitempty"`
	Recurrence         *RecurrenceRequest  `json:"recurrence,omitempty"`
	IsTemplate         bool                `json:"isTemplate"`
	TemplateName       string              `json:"templateName,omitempty"`
	ReferenceDocuments []string            `json:"referenceDocuments,omitempty"`
}

type UpdateTaskRequest struct {
	Title              *string             `json:"title,omitempty"`
	Description        *string             `json:"description,omitempty"`
	Instruction        *string             `json:"instruction,omitempty"`
	Category           *task.Category      `json:"category,omitempty"`
	TaskPriority       *task.Priority      `json:"taskPriority,omitempty"`
	StartDate          *time.Time          `json:"startDate,omitempty"`
	DueDate            *time.Time          `json:"dueDate,omitempty"`
	CaseReference      *task.CaseReference `json:"caseReference,omitempty"`
	ReferenceDocuments *[]string           `json:"referenceDocuments,omitempty"`
	Assignees          *[]AssigneeRequest  `json:"assignees,omitempty"`
	Status             *task.Status        `json:"status,omitempty"`
	Comment            string              `json:"comment,omitempty"`
	CancellationReason string              `json:"cancellationReason,omitempty"`
	ExpectedVersion    *int                `json:"expectedVersion,omitempty"`
}

type CancelTaskRequest struct {
	CancellationReason string `json:"cancellationReason"`
	ExpectedVersion    *int   `json:"expectedVersion,omitempty"`
}

type TaskResponseRequest struct {
	Completed bool   `json:"completed"`
	Comment   string `json:"comment"`
}

type TransitionRequest struct {
	Action             string `json:"action"`
	Comment            string `json:"comment,omitempty"`
	CancellationReason string `json:"cancellationReason,omitempty"`
	ExpectedVersion    *int   `json:"expectedVersion,omitempty"`
}

type InstantiateRequest struct {
	DueDate   *time.Time        `json:"dueDate"`
	StartDate *time.Time        `json:"startDate,omitempty"`
	Assignees []AssigneeRequest `json:"assignees,omitempty"`
}

type TaskResponse struct {
	UUID               uuid.UUID           `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Instruction        string              `json:"instruction"`
	Category           task.Category       `json:"category"`
	TaskPriority       task.Priority       `json:"taskPriority"`
	Status             task.Status         `json:"status"`
	StartDate          *time.Time          `json:"startDate,omitempty"`
	DueDate            time.Time           `json:"dueDate"`
	Assignees          task.Assignees      `json:"assignees"`
	CreatedBy          uuid.UUID           `json:"createdBy"`
	CaseReference      *task.CaseReference `json:"caseReference,omitempty"`
	Recurrence         *task.Recurrence    `json:"recurrence,omitempty"`
	SeriesID           *uuid.UUID          `json:"seriesId,omitempty"`
	CancellationReason *string             `json:"cancellationReason,omitempty"`
	CompletionComment  *string             `json:"completionComment,omitempty"`
	IsTemplate         bool                `json:"isTemplate"`
	TemplateName       string              `json:"templateName,omitempty"`
	ReferenceDocuments []string            `json:"referenceDocuments,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          *time.Time          `json:"updatedAt,omitempty"`
	CompletedAt        *time.Time          `json:"completedAt,omitempty"`
	Version            int                 `json:"version"`
	IsOverdue          bool                `json:"isOverdue"`
	ProgressPercent    int                 `json:"progressPercent"`
}

// FromTask renders t as of now. The derived fields are computed here, never stored.
func FromTask(t *task.Task, now time.Time) TaskResponse {
	return TaskResponse{
		UUID:               t.UUID,
		Title:              t.Title,
		Description:        t.Description,
		Instruction:        t.Instruction,
		Category:           t.Category,
		TaskPriority:       t.Priority,
		Status:             t.Status,
		StartDate:          t.StartDate,
		DueDate:            t.DueDate,
		Assignees:          t.Assignees,
		CreatedBy:          t.CreatedBy(),
		CaseReference:      t.CaseReference,
		Recurrence:         t.Recurrence,
		SeriesID:           t.SeriesID,
		CancellationReason: t.CancellationReason,
		CompletionComment:  t.CompletionComment,
		IsTemplate:         t.IsTemplate,
		TemplateName:       t.TemplateName,
		ReferenceDocuments: t.ReferenceDocuments,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		CompletedAt:        t.CompletedAt,
		Version:            t.Version,
		IsOverdue:          engine.IsOverdue(t, now),
		ProgressPercent:    engine.ProgressPercent(t),
	}
}

func FromTaskList(tasks []*task.Task, now time.Time) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t, now)
	}
	return result
}

func toAssignees(in []AssigneeRequest) []service.AssigneeInput {
	if in == nil {
		return nil
	}
	out := make([]service.AssigneeInput, len(in))
	for i, a := range in {
		out[i] = service.AssigneeInput{UserID: a.UserID, Role: a.Role}
	}
	return out
}

func (r CreateTaskRequest) ToInput() service.CreateTaskInput {
	in := service.CreateTaskInput{
		Title:              r.Title,
		Description:        r.Description,
		Instruction:        r.Instruction,
		Category:           r.Category,
		Priority:           r.TaskPriority,
		StartDate:          r.StartDate,
		Assignees:          toAssignees(r.Assignees),
		CaseReference:      r.CaseReference,
		IsTemplate:         r.IsTemplate,
		TemplateName:       r.TemplateName,
		ReferenceDocuments: r.ReferenceDocuments,
	}
	if r.DueDate != nil {
		in.DueDate = *r.DueDate
	}
	if r.Recurrence != nil {
		in.Recurrence = &service.RecurrenceInput{
			Pattern:     r.Recurrence.Pattern,
			EndAfter:    r.Recurrence.EndAfter,
			Occurrences: r.Recurrence.Occurrences,
		}
	}
	return in
}

func (r UpdateTaskRequest) ToInput() service.UpdateTaskInput {
	in := service.UpdateTaskInput{
		Title:              r.Title,
		Description:        r.Description,
		Instruction:        r.Instruction,
		Category:           r.Category,
		Priority:           r.TaskPriority,
		StartDate:          r.StartDate,
		DueDate:            r.DueDate,
		CaseReference:      r.CaseReference,
		ReferenceDocuments: r.ReferenceDocuments,
		Status:             r.Status,
		Comment:            r.Comment,
		CancellationReason: r.CancellationReason,
		ExpectedVersion:    r.ExpectedVersion,
	}
	if r.Assignees != nil {
		assignees := toAssignees(*r.Assignees)
		if assignees == nil {
			assignees = []service.AssigneeInput{}
		}
		in.Assignees = &assignees
	}
	return in
}

func (r InstantiateRequest) ToInput() service.InstantiateInput {
	in := service.InstantiateInput{
		StartDate: r.StartDate,
		Assignees: toAssignees(r.Assignees),
	}
	if r.DueDate != nil {
		in.DueDate = *r.DueDate
	}
	return in
}
