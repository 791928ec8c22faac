package task

import (
	"time"

	"github.com/google/uuid"
)

type Task struct {
	UUID               uuid.UUID      `json:"id" db:"uuid"`
	Title              string         `json:"title" db:"title"`
	Description        string         `json:"description" db:"description"`
	Instruction        string         `json:"instruction" db:"instruction"`
	Category           Category       `json:"category" db:"category"`
	Priority           Priority       `json:"taskPriority" db:"priority"`
	Status             Status         `json:"status" db:"status"`
	StartDate          *time.Time     `json:"startDate,omitempty" db:"start_date"`
	DueDate            time.Time      `json:"dueDate" db:"due_date"`
	Assignees          Assignees      `json:"assignees" db:"assignees"`
	CaseReference      *CaseReference `json:"caseReference,omitempty" db:"case_reference"`
	Recurrence         *Recurrence    `json:"recurrence,omitempty" db:"recurrence"`
	SeriesID           *uuid.UUID     `json:"seriesId,omitempty" db:"series_id"`
	CancellationReason *string        `json:"cancellationReason,omitempty" db:"cancellation_reason"`
	CompletionComment  *string        `json:"completionComment,omitempty" db:"completion_comment"`
	IsTemplate         bool           `json:"isTemplate" db:"is_template"`
	TemplateName       string         `json:"templateName,omitempty" db:"template_name"`
	ReferenceDocuments []string       `json:"referenceDocuments,omitempty" db:"reference_documents"`
	CreatedAt          time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt          *time.Time     `json:"updatedAt,omitempty" db:"updated_at"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	Version            int            `json:"version" db:"version"`
}

type Status string
type Priority string
type Category string

const (
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in-progress"
	StatusUnderReview Status = "under-review"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Category is open: values outside the known set are accepted as long as they are not empty.
const (
	CategoryLegal          Category = "legal"
	CategoryAdministrative Category = "administrative"
	CategoryBilling        Category = "billing"
	CategoryOther          Category = "other"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusUnderReview, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// CaseReference points at an external case either by id or by a free-text label.
type CaseReference struct {
	ID    *uuid.UUID `json:"id,omitempty"`
	Label string     `json:"label,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result without touching stored state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.StartDate = cloneTime(t.StartDate)
	c.UpdatedAt = cloneTime(t.UpdatedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.CancellationReason = cloneString(t.CancellationReason)
	c.CompletionComment = cloneString(t.CompletionComment)
	if t.SeriesID != nil {
		id := *t.SeriesID
		c.SeriesID = &id
	}
	if t.Assignees != nil {
		c.Assignees = append(Assignees(nil), t.Assignees...)
	}
	if t.ReferenceDocuments != nil {
		c.ReferenceDocuments = append([]string(nil), t.ReferenceDocuments...)
	}
	if t.CaseReference != nil {
		ref := *t.CaseReference
		if ref.ID != nil {
			id := *ref.ID
			ref.ID = &id
		}
		c.CaseReference = &ref
	}
	c.Recurrence = t.Recurrence.Clone()
	return &c
}

// CreatedBy is the user who assigned the primary, i.e. the task's creator.
func (t *Task) CreatedBy() uuid.UUID {
	if p, ok := t.Assignees.Primary(); ok {
		return p.AssignedBy
	}
	return uuid.Nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
