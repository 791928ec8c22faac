package repository

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"caseTasks/internal/models/task"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyExists   = errors.New("already exists")
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// DueCursor is the last task of a due-date page. Pages are ordered by due date,
// then by id.
type DueCursor struct {
	DueDate time.Time
	UUID    uuid.UUID
}

func CursorOf(t *task.Task) *DueCursor {
	return &DueCursor{DueDate: t.DueDate, UUID: t.UUID}
}

// Before reports whether t sorts at or before the cursor.
func (c *DueCursor) Before(t *task.Task) bool {
	if c == nil {
		return false
	}
	if !t.DueDate.Equal(c.DueDate) {
		return t.DueDate.Before(c.DueDate)
	}
	return bytes.Compare(t.UUID[:], c.UUID[:]) <= 0
}

// ListFilter selects tasks for a listing. DueBefore keeps only open tasks due
// before the given instant. Participant narrows the result to
// what that user may see and is applied before every other condition.
// A nil Participant means no visibility restriction (administrators).
type ListFilter struct {
	Participant *Participant
	Status      *task.Status
	Priority    *task.Priority
	Search      string
	DueBefore   *time.Time
	Templates   bool
	Page        int
	Limit       int
}

// Participant is the visibility predicate of a non-administrator. A client sees
// only tasks where they are the sole assignee; staff see tasks they are
// assigned to or created.
type Participant struct {
	UserID   uuid.UUID
	IsClient bool
}

// Normalize clamps paging to sane bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Visible reports whether t passes the participant predicate.
func (p *Participant) Visible(t *task.Task) bool {
	if p == nil {
		return true
	}
	if p.IsClient {
		c, ok := t.Assignees.Client()
		return ok && c.UserID == p.UserID && len(t.Assignees) == 1
	}
	return t.Assignees.Contains(p.UserID) || t.CreatedBy() == p.UserID
}

// Matches applies the non-visibility conditions of f to t.
func (f ListFilter) Matches(t *task.Task) bool {
	if t.IsTemplate != f.Templates {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.DueBefore != nil && (t.Status.Terminal() || !t.DueDate.Before(*f.DueBefore)) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hay := strings.ToLower(t.Title + "\n" + t.Description + "\n" + t.Instruction + "\n" + t.TemplateName)
		if t.CaseReference != nil {
			hay += "\n" + strings.ToLower(t.CaseReference.Label)
		}
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}
