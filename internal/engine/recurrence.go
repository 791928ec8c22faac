package engine

import (
	"strconv"
	"time"

	"caseTasks/internal/models/task"

	"github.com/google/uuid"
)

// NextOccurrence returns the draft of the instance that follows t in its series,
// or false when the series is exhausted. It is pure: the same task and counter
// always yield the same draft, including its id, so the storage layer can reject
// a second insert for the same completion event.
func NextOccurrence(t task.Task) (*task.Task, bool) {
	r := t.Recurrence
	if !r.Active() || t.IsTemplate {
		return nil, false
	}

	generated := r.Generated
	if generated < 1 {
		generated = 1
	}
	if r.Occurrences != nil && generated >= *r.Occurrences {
		return nil, false
	}

	due, ok := advance(t.DueDate, r.Pattern)
	if !ok {
		return nil, false
	}
	if r.EndAfter != nil && due.After(*r.EndAfter) {
		return nil, false
	}

	series := t.UUID
	if t.SeriesID != nil {
		series = *t.SeriesID
	}

	next := &task.Task{
		UUID:        uuid.NewSHA1(series, []byte("occurrence/"+strconv.Itoa(generated+1))),
		Title:       t.Title,
		Description: t.Description,
		Instruction: t.Instruction,
		Category:    t.Category,
		Priority:    t.Priority,
		Status:      task.StatusPending,
		DueDate:     due,
		Assignees:   append(task.Assignees(nil), t.Assignees...),
		SeriesID:    &series,
	}
	if t.StartDate != nil {
		if start, ok := advance(*t.StartDate, r.Pattern); ok {
			next.StartDate = &start
		}
	}
	if t.CaseReference != nil {
		ref := *t.CaseReference
		next.CaseReference = &ref
	}
	nr := r.Clone()
	nr.Generated = generated + 1
	next.Recurrence = nr
	return next, true
}

func advance(t time.Time, p task.Pattern) (time.Time, bool) {
	switch p {
	case task.PatternDaily:
		return t.AddDate(0, 0, 1), true
	case task.PatternWeekly:
		return t.AddDate(0, 0, 7), true
	case task.PatternMonthly:
		return addMonths(t, 1), true
	case task.PatternYearly:
		return addMonths(t, 12), true
	}
	return time.Time{}, false
}

// addMonths keeps the day of month when the target month has it and clamps to
// the target month's last day otherwise. time.AddDate would roll Jan 31 into March.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
