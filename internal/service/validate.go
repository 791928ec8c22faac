package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"caseTasks/internal/models/task"
)

const maxTitleLength = 200

func validateCreate(in CreateTaskInput) error {
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if strings.TrimSpace(in.Instruction) == "" {
		return NewValidationError("instruction", "is required")
	}
	if in.Category == "" {
		return NewValidationError("category", "is required")
	}
	if !in.Priority.Valid() {
		return NewValidationError("taskPriority", "must be one of urgent, high, medium, low")
	}
	if in.DueDate.IsZero() {
		return NewValidationError("dueDate", "is required")
	}
	if err := validateStart(in.StartDate, in.DueDate); err != nil {
		return err
	}
	return validateRecurrence(in.Recurrence, in.DueDate)
}

func validateUpdate(in UpdateTaskInput) error {
	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return err
		}
	}
	if in.Instruction != nil && strings.TrimSpace(*in.Instruction) == "" {
		return NewValidationError("instruction", "must not be empty")
	}
	if in.Category != nil && *in.Category == "" {
		return NewValidationError("category", "must not be empty")
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return NewValidationError("taskPriority", "must be one of urgent, high, medium, low")
	}
	if in.DueDate != nil && in.DueDate.IsZero() {
		return NewValidationError("dueDate", "must not be empty")
	}
	if in.Status != nil && !in.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", *in.Status))
	}
	return nil
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return NewValidationError("title", "is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return NewValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
	return nil
}

func validateStart(start *time.Time, due time.Time) error {
	if start != nil && start.After(due) {
		return NewValidationError("startDate", "must not be after dueDate")
	}
	return nil
}

func validateRecurrence(r *RecurrenceInput, due time.Time) error {
	if r == nil {
		return nil
	}
	if !r.Pattern.Valid() {
		return NewValidationError("recurrence.pattern", "must be one of none, daily, weekly, monthly, yearly")
	}
	if r.Occurrences != nil && *r.Occurrences < 1 {
		return NewValidationError("recurrence.occurrences", "must be at least 1")
	}
	if r.EndAfter != nil && r.EndAfter.Before(due) {
		return NewValidationError("recurrence.endAfter", "must not be before dueDate")
	}
	return nil
}

func newRecurrence(r *RecurrenceInput) *task.Recurrence {
	if r == nil || r.Pattern == task.PatternNone {
		return nil
	}
	out := &task.Recurrence{Pattern: r.Pattern, Generated: 1}
	if r.EndAfter != nil {
		v := *r.EndAfter
		out.EndAfter = &v
	}
	if r.Occurrences != nil {
		v := *r.Occurrences
		out.Occurrences = &v
	}
	return out
}

func fieldOptions(in UpdateTaskInput) []task.TaskOption {
	var opts []task.TaskOption
	if in.Title != nil {
		opts = append(opts, task.WithTitle(strings.TrimSpace(*in.Title)))
	}
	if in.Description != nil {
		opts = append(opts, task.WithDescription(*in.Description))
	}
	if in.Instruction != nil {
		opts = append(opts, task.WithInstruction(strings.TrimSpace(*in.Instruction)))
	}
	if in.Category != nil {
		opts = append(opts, task.WithCategory(*in.Category))
	}
	if in.Priority != nil {
		opts = append(opts, task.WithPriority(*in.Priority))
	}
	if in.DueDate != nil {
		opts = append(opts, task.WithDueDate(*in.DueDate))
	}
	if in.StartDate != nil {
		opts = append(opts, task.WithStartDate(*in.StartDate))
	}
	if in.CaseReference != nil {
		opts = append(opts, task.WithCaseReference(*in.CaseReference))
	}
	if in.ReferenceDocuments != nil {
		opts = append(opts, task.WithReferenceDocuments(*in.ReferenceDocuments))
	}
	return opts
}
