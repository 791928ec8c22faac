package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"caseTasks/internal/engine"
	"caseTasks/internal/logger"
	"caseTasks/internal/models/task"
	"caseTasks/internal/notify"
	"caseTasks/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	originRequest    = "request"
	originTemplate   = "template"
	originRecurrence = "recurrence"
)

// TaskService runs the engine over storage. Every operation takes the viewer
// it acts for; the engine decides, the service loads and persists.
type TaskService struct {
	repo              TaskRepository
	users             UserDirectory
	notifier          notify.Notifier
	notifyConcurrency int
	metrics           Metrics
	now               func() time.Time
}

func NewTaskService(repo TaskRepository, users UserDirectory, opts ...Option) *TaskService {
	s := &TaskService{
		repo:              repo,
		users:             users,
		notifier:          notify.NewLogNotifier(),
		notifyConcurrency: 4,
		metrics:           nopMetrics{},
		now:               time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		logger.Error("Service: health check failed", err)
		return fmt.Errorf("service health check: %w", err)
	}
	return nil
}

// Identify resolves a caller id into a viewer. An unknown id is unauthenticated.
func (s *TaskService) Identify(ctx context.Context, id uuid.UUID) (engine.Viewer, error) {
	if id == uuid.Nil {
		return engine.Viewer{}, NewUnauthenticated("caller is not identified")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return engine.Viewer{}, NewUnauthenticated(fmt.Sprintf("unknown user %s", id))
		}
		return engine.Viewer{}, fmt.Errorf("resolving caller: %w", err)
	}
	return engine.ViewerOf(u), nil
}

func (s *TaskService) CreateTask(ctx context.Context, v engine.Viewer, in CreateTaskInput) (*task.Task, error) {
	if v.Kind.IsClient() {
		return nil, s.reject(&engine.PermissionError{UserID: v.UserID, Action: "create"})
	}
	if err := validateCreate(in); err != nil {
		return nil, s.reject(err)
	}

	candidates, err := s.resolveAssignees(ctx, v, in.Assignees, nil)
	if err != nil {
		return nil, s.reject(err)
	}
	assignees, err := engine.ValidateAssignment(candidates, nil)
	if err != nil {
		logger.Info("Service: assignment rejected", zap.Error(err))
		return nil, s.reject(err)
	}

	t := &task.Task{
		UUID:               uuid.New(),
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		Instruction:        strings.TrimSpace(in.Instruction),
		Category:           in.Category,
		Priority:           in.Priority,
		Status:             task.StatusPending,
		StartDate:          in.StartDate,
		DueDate:            in.DueDate,
		Assignees:          assignees,
		CaseReference:      in.CaseReference,
		Recurrence:         newRecurrence(in.Recurrence),
		IsTemplate:         in.IsTemplate,
		TemplateName:       strings.TrimSpace(in.TemplateName),
		ReferenceDocuments: in.ReferenceDocuments,
		CreatedAt:          s.now(),
	}
	if t.IsTemplate && t.TemplateName == "" {
		t.TemplateName = t.Title
	}

	if err := s.repo.Create(ctx, t); err != nil {
		logger.Error("Service: creating task", err, zap.String("task_id", t.UUID.String()))
		return nil, fmt.Errorf("creating task: %w", err)
	}

	origin := originRequest
	if t.IsTemplate {
		origin = originTemplate
	}
	s.metrics.RecordCreated(origin)
	logger.Info("Service: task created",
		zap.String("task_id", t.UUID.String()),
		zap.String("created_by", v.UserID.String()),
		zap.Bool("template", t.IsTemplate))

	if !t.IsTemplate {
		s.notify(ctx, notify.KindAssigned, t, v.UserID, t.Assignees.UserIDs())
	}
	return t, nil
}

// InstantiateTemplate copies a template into a schedulable task owned by v.
// Without explicit assignees the template's assignees are reused.
func (s *TaskService) InstantiateTemplate(ctx context.Context, v engine.Viewer, templateID uuid.UUID, in InstantiateInput) (*task.Task, error) {
	tmpl, err := s.load(ctx, v, templateID)
	if err != nil {
		return nil, s.reject(err)
	}
	if !tmpl.IsTemplate {
		return nil, s.reject(NewNotFound(resourceTemplate, templateID))
	}
	if v.Kind.IsClient() {
		return nil, s.reject(&engine.PermissionError{UserID: v.UserID, TaskID: templateID, Action: "instantiate"})
	}
	if in.DueDate.IsZero() {
		return nil, s.reject(NewValidationError("dueDate", "is required"))
	}
	if err := validateStart(in.StartDate, in.DueDate); err != nil {
		return nil, s.reject(err)
	}

	inputs := in.Assignees
	if len(inputs) == 0 {
		for _, a := range tmpl.Assignees {
			inputs = append(inputs, AssigneeInput{UserID: a.UserID, Role: a.Role})
		}
	}
	candidates, err := s.resolveAssignees(ctx, v, inputs, nil)
	if err != nil {
		return nil, s.reject(err)
	}
	assignees, err := engine.ValidateAssignment(candidates, nil)
	if err != nil {
		return nil, s.reject(err)
	}

	t := &task.Task{
		UUID:               uuid.New(),
		Title:              tmpl.Title,
		Description:        tmpl.Description,
		Instruction:        tmpl.Instruction,
		Category:           tmpl.Category,
		Priority:           tmpl.Priority,
		Status:             task.StatusPending,
		StartDate:          in.StartDate,
		DueDate:            in.DueDate,
		Assignees:          assignees,
		CaseReference:      tmpl.Clone().CaseReference,
		ReferenceDocuments: append([]string(nil), tmpl.ReferenceDocuments...),
		CreatedAt:          s.now(),
	}
	if r := tmpl.Recurrence; r.Active() {
		t.Recurrence = newRecurrence(&RecurrenceInput{Pattern: r.Pattern, EndAfter: r.EndAfter, Occurrences: r.Occurrences})
	}

	if err := s.repo.Create(ctx, t); err != nil {
		logger.Error("Service: instantiating template", err, zap.String("template_id", templateID.String()))
		return nil, fmt.Errorf("instantiating template: %w", err)
	}

	s.metrics.RecordCreated(originTemplate)
	logger.Info("Service: template instantiated",
		zap.String("template_id", templateID.String()),
		zap.String("task_id", t.UUID.String()))
	s.notify(ctx, notify.KindAssigned, t, v.UserID, t.Assignees.UserIDs())
	return t, nil
}

// GetTask returns the task if v may see it. A hidden task is reported as not found.
func (s *TaskService) GetTask(ctx context.Context, v engine.Viewer, id uuid.UUID) (*task.Task, error) {
	t, err := s.load(ctx, v, id)
	if err != nil {
		return nil, s.reject(err)
	}
	return t, nil
}

// Access reports the rights v holds on task id. Handlers call it before reading
// a request body so that a caller without rights is refused whatever it sent.
// A task v cannot see carries no rights; a missing task is NOT_FOUND.
func (s *TaskService) Access(ctx context.Context, v engine.Viewer, id uuid.UUID) (engine.Access, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return engine.Access{}, s.reject(err)
	}
	return engine.AccessOf(v, t), nil
}

func (s *TaskService) UpdateTask(ctx context.Context, v engine.Viewer, id uuid.UUID, in UpdateTaskInput) (*task.Task, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return nil, s.reject(err)
	}

	// rights are checked before the body so a non-editor always gets forbidden
	edits := in.editsFields()
	if !engine.CanWork(v, current) || (edits && !engine.CanEdit(v, current)) {
		logger.Warn("Service: edit forbidden", zap.String("task_id", id.String()), zap.String("user_id", v.UserID.String()))
		return nil, s.reject(&engine.PermissionError{UserID: v.UserID, TaskID: id, Action: "edit"})
	}
	if err := validateUpdate(in); err != nil {
		return nil, s.reject(err)
	}

	var action engine.Action
	transition := in.Status != nil && *in.Status != current.Status
	if transition {
		a, ok := engine.ActionFor(current.Status, *in.Status)
		if !ok {
			return nil, s.reject(NewBusinessError(CodeIllegalTransition,
				fmt.Sprintf("a %s task cannot move to %s", current.Status, *in.Status),
				ToDetail("from", string(current.Status)),
				ToDetail("to", string(*in.Status))).
				onField("status"))
		}
		if err := engine.Authorize(v, current, a); err != nil {
			return nil, s.reject(err)
		}
		action = a
	}

	if !edits && !transition {
		return current, nil
	}
	if err := checkVersion(current, in.ExpectedVersion); err != nil {
		return nil, s.reject(err)
	}

	updated := current.Clone()
	var added []uuid.UUID
	if in.Assignees != nil {
		candidates, err := s.resolveAssignees(ctx, v, *in.Assignees, current.Assignees)
		if err != nil {
			return nil, s.reject(err)
		}
		var existing *task.Assignee
		if p, ok := current.Assignees.Primary(); ok {
			existing = &p
		}
		assignees, err := engine.ValidateAssignment(candidates, existing)
		if err != nil {
			logger.Info("Service: reassignment rejected", zap.String("task_id", id.String()), zap.Error(err))
			return nil, s.reject(err)
		}
		for _, a := range assignees {
			if !current.Assignees.Contains(a.UserID) {
				added = append(added, a.UserID)
			}
		}
		updated.Assignees = assignees
	}

	task.Apply(updated, fieldOptions(in)...)
	if err := validateStart(updated.StartDate, updated.DueDate); err != nil {
		return nil, s.reject(err)
	}

	final := updated
	var outcome engine.Outcome
	if transition {
		outcome, err = engine.Apply(updated, action, engine.TransitionContext{
			Comment:            in.Comment,
			CancellationReason: in.CancellationReason,
		}, s.now())
		if err != nil {
			return nil, s.reject(err)
		}
		final = outcome.Task
	}

	if transition {
		err = s.saveOutcome(ctx, outcome)
	} else {
		err = s.save(ctx, final)
	}
	if err != nil {
		return nil, s.reject(err)
	}
	logger.Info("Service: task updated", zap.String("task_id", id.String()), zap.Int("version", final.Version))

	s.notify(ctx, notify.KindAssigned, final, v.UserID, added)
	if transition {
		s.afterTransition(ctx, v, action, outcome)
	}
	return final, nil
}

// TransitionTask applies one state machine action. Completing a recurring task
// also stores its successor.
func (s *TaskService) TransitionTask(ctx context.Context, v engine.Viewer, id uuid.UUID, action engine.Action, tc engine.TransitionContext, expectedVersion *int) (*task.Task, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return nil, s.reject(err)
	}
	if err := engine.Authorize(v, current, action); err != nil {
		logger.Warn("Service: transition forbidden",
			zap.String("task_id", id.String()),
			zap.String("user_id", v.UserID.String()),
			zap.String("action", string(action)))
		return nil, s.reject(err)
	}
	if err := checkVersion(current, expectedVersion); err != nil {
		return nil, s.reject(err)
	}

	outcome, err := engine.Apply(current, action, tc, s.now())
	if err != nil {
		return nil, s.reject(err)
	}
	if err := s.saveOutcome(ctx, outcome); err != nil {
		return nil, s.reject(err)
	}

	s.afterTransition(ctx, v, action, outcome)
	return outcome.Task, nil
}

func (s *TaskService) CancelTask(ctx context.Context, v engine.Viewer, id uuid.UUID, reason string, expectedVersion *int) (*task.Task, error) {
	return s.TransitionTask(ctx, v, id, engine.ActionCancel, engine.TransitionContext{CancellationReason: reason}, expectedVersion)
}

// RespondToTask records an assignee's reply. completed=true completes the task
// with comment; otherwise an active task is left as is and any other one is
// started, which the state machine refuses for a finished task.
func (s *TaskService) RespondToTask(ctx context.Context, v engine.Viewer, id uuid.UUID, completed bool, comment string) (*task.Task, error) {
	if completed {
		return s.TransitionTask(ctx, v, id, engine.ActionComplete, engine.TransitionContext{Comment: comment}, nil)
	}

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, s.reject(err)
	}
	switch current.Status {
	case task.StatusInProgress, task.StatusUnderReview:
		if err := engine.Authorize(v, current, engine.ActionStart); err != nil {
			return nil, s.reject(err)
		}
		return current, nil
	}
	return s.TransitionTask(ctx, v, id, engine.ActionStart, engine.TransitionContext{}, nil)
}

// ListTasks applies visibility first, then the filters, then paging.
func (s *TaskService) ListTasks(ctx context.Context, v engine.Viewer, q ListQuery) ([]*task.Task, error) {
	if q.Status != nil && !q.Status.Valid() {
		return nil, s.reject(NewValidationError("status", fmt.Sprintf("unknown status %q", *q.Status)))
	}
	if q.Priority != nil && !q.Priority.Valid() {
		return nil, s.reject(NewValidationError("taskPriority", fmt.Sprintf("unknown priority %q", *q.Priority)))
	}

	return s.list(ctx, v, repository.ListFilter{
		Participant: participantOf(v),
		Status:      q.Status,
		Priority:    q.Priority,
		Search:      q.Search,
		Templates:   q.Templates,
		Page:        q.Page,
		Limit:       q.Limit,
	})
}

func (s *TaskService) ListOverdue(ctx context.Context, v engine.Viewer, page, limit int) ([]*task.Task, error) {
	now := s.now()
	tasks, err := s.list(ctx, v, repository.ListFilter{
		Participant: participantOf(v),
		DueBefore:   &now,
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}

	overdue := tasks[:0]
	for _, t := range tasks {
		if engine.IsOverdue(t, now) {
			overdue = append(overdue, t)
		}
	}
	return overdue, nil
}

func (s *TaskService) list(ctx context.Context, v engine.Viewer, filter repository.ListFilter) ([]*task.Task, error) {
	tasks, err := s.repo.List(ctx, filter)
	if err != nil {
		logger.Error("Service: listing tasks", err)
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	visible := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if !engine.CanView(v, t) {
			logger.Warn("Service: storage returned a task the viewer may not see",
				zap.String("task_id", t.UUID.String()),
				zap.String("user_id", v.UserID.String()))
			continue
		}
		visible = append(visible, t)
	}
	return visible, nil
}

func participantOf(v engine.Viewer) *repository.Participant {
	if v.Kind.IsAdmin() {
		return nil
	}
	return &repository.Participant{UserID: v.UserID, IsClient: v.Kind.IsClient()}
}

// get loads a task without a visibility check, for mutations: they report
// missing rights as forbidden.
func (s *TaskService) get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Info("Service: task not found", zap.String("task_id", id.String()))
			return nil, NewNotFound(resourceTask, id)
		}
		return nil, fmt.Errorf("reading task: %w", err)
	}
	return t, nil
}

func (s *TaskService) load(ctx context.Context, v engine.Viewer, id uuid.UUID) (*task.Task, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !engine.CanView(v, t) {
		logger.Info("Service: task hidden from viewer",
			zap.String("task_id", id.String()),
			zap.String("user_id", v.UserID.String()))
		return nil, NewNotFound(resourceTask, id)
	}
	return t, nil
}

func (s *TaskService) save(ctx context.Context, t *task.Task) error {
	return s.storeError(t, s.repo.Update(ctx, t))
}

// saveOutcome stores the transitioned task together with the successor it
// spawned. When that fails nothing is stored and the action can be repeated:
// the successor id is derived from the series, so a retry never duplicates it.
func (s *TaskService) saveOutcome(ctx context.Context, outcome engine.Outcome) error {
	if outcome.Next == nil {
		return s.save(ctx, outcome.Task)
	}
	outcome.Next.CreatedAt = s.now()
	err := s.repo.UpdateWithSuccessor(ctx, outcome.Task, outcome.Next)
	if err != nil {
		logger.Error("Service: storing completion with successor", err,
			zap.String("task_id", outcome.Task.UUID.String()),
			zap.String("successor_id", outcome.Next.UUID.String()))
	}
	return s.storeError(outcome.Task, err)
}

func (s *TaskService) storeError(t *task.Task, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrVersionConflict):
		return newVersionConflict(t.UUID, err)
	case errors.Is(err, repository.ErrNotFound):
		return NewNotFound(resourceTask, t.UUID)
	default:
		logger.Error("Service: saving task", err, zap.String("task_id", t.UUID.String()))
		return fmt.Errorf("saving task: %w", err)
	}
}

func checkVersion(t *task.Task, expected *int) error {
	if expected != nil && *expected != t.Version {
		return newVersionConflict(t.UUID, repository.ErrVersionConflict)
	}
	return nil
}

// resolveAssignees turns inputs into assignee entries. Entries already on the
// task keep their stored IsClient and AssignedBy; new ones are looked up.
func (s *TaskService) resolveAssignees(ctx context.Context, v engine.Viewer, inputs []AssigneeInput, existing task.Assignees) ([]task.Assignee, error) {
	out := make([]task.Assignee, 0, len(inputs))
	for _, in := range inputs {
		if in.UserID == uuid.Nil {
			return nil, NewValidationError(FieldAssignees, "userId is required")
		}
		if in.Role != "" && in.Role != task.RolePrimary && in.Role != task.RoleCollaborator {
			return nil, NewValidationError(FieldAssignees, fmt.Sprintf("unknown role %q", in.Role))
		}

		if kept, ok := existing.Find(in.UserID); ok {
			if in.Role != "" {
				kept.Role = in.Role
			}
			out = append(out, kept)
			continue
		}

		u, err := s.users.GetByID(ctx, in.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, NewValidationError(FieldAssignees, fmt.Sprintf("unknown %s %s", resourceUser, in.UserID))
			}
			return nil, fmt.Errorf("resolving assignee: %w", err)
		}
		out = append(out, task.Assignee{
			UserID:     u.UUID,
			Role:       in.Role,
			IsClient:   u.Kind.IsClient(),
			AssignedBy: v.UserID,
		})
	}
	return out, nil
}

func (s *TaskService) afterTransition(ctx context.Context, v engine.Viewer, action engine.Action, outcome engine.Outcome) {
	t := outcome.Task
	s.metrics.RecordTransition(string(action), string(t.Status))
	logger.Info("Service: task transitioned",
		zap.String("task_id", t.UUID.String()),
		zap.String("action", string(action)),
		zap.String("from", string(outcome.Previous)),
		zap.String("to", string(t.Status)))

	recipients := append([]uuid.UUID{t.CreatedBy()}, t.Assignees.UserIDs()...)
	switch t.Status {
	case task.StatusCompleted:
		s.notify(ctx, notify.KindCompleted, t, v.UserID, recipients)
	case task.StatusCancelled:
		s.notify(ctx, notify.KindCancelled, t, v.UserID, recipients)
	}

	if outcome.Next != nil {
		s.successorStored(ctx, outcome.Next)
	}
}

func (s *TaskService) successorStored(ctx context.Context, next *task.Task) {
	s.metrics.RecordCreated(originRecurrence)
	logger.Info("Service: recurrence successor created",
		zap.String("task_id", next.UUID.String()),
		zap.Time("due_date", next.DueDate),
		zap.Int("generated", next.Recurrence.Generated))
	s.notify(ctx, notify.KindRecurred, next, uuid.Nil, next.Assignees.UserIDs())
}

// notify tells every recipient except the actor. Delivery failures are logged
// and never fail the operation.
func (s *TaskService) notify(ctx context.Context, kind notify.Kind, t *task.Task, actor uuid.UUID, recipients []uuid.UUID) {
	seen := make(map[uuid.UUID]struct{}, len(recipients))
	var notes []notify.Notification
	for _, id := range recipients {
		if id == uuid.Nil || id == actor {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		notes = append(notes, notify.Notification{
			Kind:      kind,
			TaskID:    t.UUID,
			Recipient: id,
			Title:     t.Title,
			Message:   message(kind, t),
			At:        s.now(),
		})
	}

	if err := notify.Broadcast(ctx, s.notifier, s.notifyConcurrency, notes); err != nil {
		logger.Warn("Service: notification delivery failed",
			zap.String("task_id", t.UUID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func message(kind notify.Kind, t *task.Task) string {
	due := t.DueDate.Format(time.DateOnly)
	switch kind {
	case notify.KindAssigned:
		return fmt.Sprintf("You were assigned %q, due %s", t.Title, due)
	case notify.KindCompleted:
		return fmt.Sprintf("%q was completed", t.Title)
	case notify.KindCancelled:
		if t.CancellationReason != nil {
			return fmt.Sprintf("%q was cancelled: %s", t.Title, *t.CancellationReason)
		}
		return fmt.Sprintf("%q was cancelled", t.Title)
	case notify.KindRecurred:
		return fmt.Sprintf("Next occurrence of %q is due %s", t.Title, due)
	}
	return t.Title
}

// reject converts engine errors to business errors and counts the rejection.
func (s *TaskService) reject(err error) error {
	var b *BusinessError
	if !errors.As(err, &b) {
		if b = fromEngine(err); b != nil {
			err = b
		}
	}
	if b != nil {
		s.metrics.RecordRejection(b.Code)
	}
	return err
}
