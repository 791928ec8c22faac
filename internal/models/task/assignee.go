package task

import "github.com/google/uuid"

type Role string

const (
	RolePrimary      Role = "primary"
	RoleCollaborator Role = "collaborator"
)

// Assignee is one entry of a task's assignee set. IsClient is copied from the
// user's kind when the entry is created and is not re-derived afterwards.
type Assignee struct {
	UserID     uuid.UUID `json:"userId"`
	Role       Role      `json:"role"`
	IsClient   bool      `json:"isClient"`
	AssignedBy uuid.UUID `json:"assignedBy"`
}

// Assignees is an ordered assignee set with the primary first.
type Assignees []Assignee

func (a Assignees) Primary() (Assignee, bool) {
	for _, as := range a {
		if as.Role == RolePrimary {
			return as, true
		}
	}
	return Assignee{}, false
}

func (a Assignees) Contains(userID uuid.UUID) bool {
	_, ok := a.Find(userID)
	return ok
}

func (a Assignees) Find(userID uuid.UUID) (Assignee, bool) {
	for _, as := range a {
		if as.UserID == userID {
			return as, true
		}
	}
	return Assignee{}, false
}

// Client returns the delegated client, if the task has one.
func (a Assignees) Client() (Assignee, bool) {
	for _, as := range a {
		if as.IsClient {
			return as, true
		}
	}
	return Assignee{}, false
}

func (a Assignees) UserIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(a))
	for i, as := range a {
		ids[i] = as.UserID
	}
	return ids
}
