package engine

import (
	"strings"
	"time"
	"unicode/utf8"

	"caseTasks/internal/models/task"
)

type Action string

const (
	ActionStart           Action = "start"
	ActionSubmitForReview Action = "submitForReview"
	ActionApprove         Action = "approve"
	ActionRequestRevision Action = "requestRevision"
	ActionComplete        Action = "complete"
	ActionCancel          Action = "cancel"
)

// MinCancellationReasonLength is counted in runes after trimming whitespace.
const MinCancellationReasonLength = 10

const (
	FieldComment            = "comment"
	FieldCancellationReason = "cancellationReason"
)

func (a Action) Valid() bool {
	_, ok := transitions[a]
	return ok
}

// ParseAction accepts the action names used on the wire.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, a.Valid()
}

type TransitionContext struct {
	Comment            string
	CancellationReason string
}

type edge struct {
	from []task.Status
	to   task.Status
}

var transitions = map[Action]edge{
	ActionStart:           {from: []task.Status{task.StatusPending}, to: task.StatusInProgress},
	ActionSubmitForReview: {from: []task.Status{task.StatusInProgress}, to: task.StatusUnderReview},
	ActionRequestRevision: {from: []task.Status{task.StatusUnderReview}, to: task.StatusInProgress},
	ActionApprove:         {from: []task.Status{task.StatusInProgress, task.StatusUnderReview}, to: task.StatusCompleted},
	ActionComplete:        {from: []task.Status{task.StatusInProgress, task.StatusUnderReview}, to: task.StatusCompleted},
	ActionCancel:          {from: []task.Status{task.StatusPending, task.StatusInProgress, task.StatusUnderReview}, to: task.StatusCancelled},
}

// Transition returns the status reached by applying action to current. Legality
// is decided before the context is looked at.
func Transition(current task.Status, action Action, ctx TransitionContext) (task.Status, error) {
	e, ok := transitions[action]
	if !ok || !contains(e.from, current) {
		return "", illegal(current, action)
	}

	switch action {
	case ActionApprove, ActionComplete:
		if strings.TrimSpace(ctx.Comment) == "" {
			return "", &TransitionError{Kind: TransitionReasonRequired, From: current, Action: action, Field: FieldComment}
		}
	case ActionCancel:
		if utf8.RuneCountInString(strings.TrimSpace(ctx.CancellationReason)) < MinCancellationReasonLength {
			return "", &TransitionError{Kind: TransitionReasonRequired, From: current, Action: action, Field: FieldCancellationReason}
		}
	}
	return e.to, nil
}

// ActionFor maps a requested target status onto the action that reaches it from
// current, so a status in a patch body is never written directly.
func ActionFor(current, target task.Status) (Action, bool) {
	switch {
	case current == task.StatusPending && target == task.StatusInProgress:
		return ActionStart, true
	case current == task.StatusInProgress && target == task.StatusUnderReview:
		return ActionSubmitForReview, true
	case current == task.StatusUnderReview && target == task.StatusInProgress:
		return ActionRequestRevision, true
	case target == task.StatusCompleted:
		return ActionComplete, true
	case target == task.StatusCancelled:
		return ActionCancel, true
	}
	return "", false
}

// Outcome is the result of Apply: the mutated copy of the task and, when the
// completion spawned one, the draft of the next recurring instance.
type Outcome struct {
	Task     *task.Task
	Previous task.Status
	Next     *task.Task
}

// Apply runs Transition and its side effects on a copy of t. The input is not modified.
func Apply(t *task.Task, action Action, ctx TransitionContext, now time.Time) (Outcome, error) {
	if t.IsTemplate {
		return Outcome{}, illegal(t.Status, action)
	}
	status, err := Transition(t.Status, action, ctx)
	if err != nil {
		return Outcome{}, err
	}

	out := t.Clone()
	out.Status = status
	res := Outcome{Task: out, Previous: t.Status}

	switch status {
	case task.StatusCancelled:
		reason := strings.TrimSpace(ctx.CancellationReason)
		out.CancellationReason = &reason
		if out.Recurrence != nil {
			out.Recurrence.Stopped = true
		}
	case task.StatusCompleted:
		comment := strings.TrimSpace(ctx.Comment)
		out.CompletionComment = &comment
		completedAt := now
		out.CompletedAt = &completedAt
		if next, ok := NextOccurrence(*out); ok {
			res.Next = next
		}
	}
	return res, nil
}

func contains(states []task.Status, s task.Status) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}
