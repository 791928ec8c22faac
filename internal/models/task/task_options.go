package task

import (
	"time"
)

// TaskOption applies a plain field change. Assignee and status changes are not
// options: they go through the assignment model and the state machine.
type TaskOption func(*Task)

func WithTitle(title string) TaskOption {
	if title == "" {
		return nil
	}
	return func(task *Task) {
		task.Title = title
	}
}

func WithDescription(description string) TaskOption {
	return func(task *Task) {
		task.Description = description
	}
}

func WithInstruction(instruction string) TaskOption {
	if instruction == "" {
		return nil
	}
	return func(task *Task) {
		task.Instruction = instruction
	}
}

func WithCategory(category Category) TaskOption {
	if category == "" {
		return nil
	}
	return func(task *Task) {
		task.Category = category
	}
}

func WithPriority(priority Priority) TaskOption {
	if !priority.Valid() {
		return nil
	}
	return func(task *Task) {
		task.Priority = priority
	}
}

// WithDueDate extends or moves the deadline.
func WithDueDate(dueDate time.Time) TaskOption {
	if dueDate.IsZero() {
		return nil
	}
	return func(task *Task) {
		task.DueDate = dueDate
	}
}

func WithStartDate(startDate time.Time) TaskOption {
	if startDate.IsZero() {
		return nil
	}
	return func(task *Task) {
		task.StartDate = &startDate
	}
}

func WithCaseReference(ref CaseReference) TaskOption {
	return func(task *Task) {
		task.CaseReference = &ref
	}
}

func WithReferenceDocuments(docs []string) TaskOption {
	return func(task *Task) {
		task.ReferenceDocuments = append([]string(nil), docs...)
	}
}

// Apply runs every non-nil option against t.
func Apply(t *Task, options ...TaskOption) {
	for _, opt := range options {
		if opt != nil {
			opt(t)
		}
	}
}
