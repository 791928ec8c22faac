package engine

import (
	"caseTasks/internal/models/task"
	"caseTasks/internal/models/user"

	"github.com/google/uuid"
)

// Viewer is the caller an operation runs on behalf of. Kind is resolved once
// from the user directory.
type Viewer struct {
	UserID uuid.UUID
	Kind   user.Kind
}

func ViewerOf(u *user.User) Viewer {
	return Viewer{UserID: u.UUID, Kind: u.Kind}
}

func CanView(v Viewer, t *task.Task) bool {
	if CanEdit(v, t) {
		return true
	}
	if v.Kind.IsClient() {
		c, ok := t.Assignees.Client()
		return ok && c.UserID == v.UserID && len(t.Assignees) == 1
	}
	return t.Assignees.Contains(v.UserID)
}

// CanEdit gates field edits, reassignment, deadline changes, cancellation and
// review decisions. Every surface offering a mutation must use this rule.
func CanEdit(v Viewer, t *task.Task) bool {
	if v.Kind.IsAdmin() {
		return true
	}
	if v.Kind.IsClient() || v.UserID == uuid.Nil {
		return false
	}
	return t.CreatedBy() == v.UserID
}

// CanWork gates the actions an assignee performs on their own work.
func CanWork(v Viewer, t *task.Task) bool {
	return CanEdit(v, t) || (CanView(v, t) && t.Assignees.Contains(v.UserID))
}

// Access is what one viewer may do with one task.
type Access struct {
	View bool
	Edit bool
	Work bool
}

func AccessOf(v Viewer, t *task.Task) Access {
	return Access{View: CanView(v, t), Edit: CanEdit(v, t), Work: CanWork(v, t)}
}

// Allows reports whether the access covers action: work actions need Work,
// every other action needs Edit.
func (a Access) Allows(action Action) bool {
	switch action {
	case ActionStart, ActionSubmitForReview, ActionComplete:
		return a.Work
	}
	return a.Edit
}

// Authorize checks the right an action needs and returns a PermissionError when it is missing.
func Authorize(v Viewer, t *task.Task, action Action) error {
	if !AccessOf(v, t).Allows(action) {
		return &PermissionError{UserID: v.UserID, TaskID: t.UUID, Action: string(action)}
	}
	return nil
}

// AuthorizeEdit is Authorize for plain edits, which have no state machine action.
func AuthorizeEdit(v Viewer, t *task.Task, what string) error {
	if !CanEdit(v, t) {
		return &PermissionError{UserID: v.UserID, TaskID: t.UUID, Action: what}
	}
	return nil
}
