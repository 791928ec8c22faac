package engine

import (
	"caseTasks/internal/models/task"

	"github.com/google/uuid"
)

// ValidateAssignment checks a proposed assignee set and returns it normalized,
// primary first, remaining entries in the order given.
//
// existingPrimary is nil on create. On create an entry without a role becomes a
// collaborator, and if no entry is marked primary the first one becomes the
// designated owner. On update the existing primary must be present unchanged;
// only collaborators may come and go.
func ValidateAssignment(candidates []task.Assignee, existingPrimary *task.Assignee) (task.Assignees, error) {
	if len(candidates) == 0 {
		return nil, &AssignmentError{Kind: AssignmentEmpty}
	}

	// audience rules come first: a mixed set is reported as such whatever else is wrong with it
	clients, staff := 0, 0
	var secondClient uuid.UUID
	for _, c := range candidates {
		if c.IsClient {
			clients++
			if clients == 2 {
				secondClient = c.UserID
			}
		} else {
			staff++
		}
	}
	if clients > 0 && staff > 0 {
		return nil, &AssignmentError{Kind: AssignmentMixedAudience}
	}
	if clients > 1 {
		return nil, &AssignmentError{Kind: AssignmentMultipleClients, UserID: secondClient}
	}

	seen := make(map[uuid.UUID]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.UserID]; dup {
			return nil, &AssignmentError{Kind: AssignmentDuplicate, UserID: c.UserID}
		}
		seen[c.UserID] = struct{}{}
	}

	if existingPrimary != nil {
		return normalizeUpdate(candidates, *existingPrimary)
	}
	return normalizeCreate(candidates)
}

func normalizeCreate(candidates []task.Assignee) (task.Assignees, error) {
	primaryIdx := -1
	for i, c := range candidates {
		if c.Role != task.RolePrimary {
			continue
		}
		if primaryIdx >= 0 {
			return nil, &AssignmentError{Kind: AssignmentMultiplePrimaries, UserID: c.UserID}
		}
		primaryIdx = i
	}
	if primaryIdx < 0 {
		primaryIdx = 0
	}

	out := make(task.Assignees, 0, len(candidates))
	primary := candidates[primaryIdx]
	primary.Role = task.RolePrimary
	out = append(out, primary)
	for i, c := range candidates {
		if i == primaryIdx {
			continue
		}
		c.Role = task.RoleCollaborator
		out = append(out, c)
	}
	return out, nil
}

func normalizeUpdate(candidates []task.Assignee, existing task.Assignee) (task.Assignees, error) {
	found := false
	for _, c := range candidates {
		if c.UserID == existing.UserID {
			if c.Role != task.RolePrimary && c.Role != "" {
				return nil, &AssignmentError{Kind: AssignmentPrimaryMutated, UserID: c.UserID}
			}
			found = true
			continue
		}
		if c.Role == task.RolePrimary {
			return nil, &AssignmentError{Kind: AssignmentPrimaryMutated, UserID: c.UserID}
		}
	}
	if !found {
		return nil, &AssignmentError{Kind: AssignmentPrimaryMutated, UserID: existing.UserID}
	}

	out := make(task.Assignees, 0, len(candidates))
	out = append(out, existing)
	for _, c := range candidates {
		if c.UserID == existing.UserID {
			continue
		}
		c.Role = task.RoleCollaborator
		out = append(out, c)
	}
	return out, nil
}
