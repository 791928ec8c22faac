package engine

import (
	"time"

	"caseTasks/internal/models/task"
)

// IsOverdue is the only source of the overdue flag; nothing stores it.
func IsOverdue(t *task.Task, now time.Time) bool {
	if t.IsTemplate || t.Status.Terminal() {
		return false
	}
	return now.After(t.DueDate)
}

// ProgressPercent is a coarse display mapping of the status, nothing finer.
func ProgressPercent(t *task.Task) int {
	switch t.Status {
	case task.StatusInProgress:
		return 50
	case task.StatusUnderReview:
		return 80
	case task.StatusCompleted:
		return 100
	default:
		return 0
	}
}
