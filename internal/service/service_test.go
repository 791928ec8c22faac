package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"caseTasks/internal/engine"
	"caseTasks/internal/models/task"
	"caseTasks/internal/models/user"
	"caseTasks/internal/notify"
	"caseTasks/internal/repository"
	"caseTasks/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

type people struct {
	creator, collaborator, outsider, client, admin engine.Viewer
}

func newPeople() people {
	return people{
		creator:      engine.Viewer{UserID: uuid.New(), Kind: user.KindStaff},
		collaborator: engine.Viewer{UserID: uuid.New(), Kind: user.KindStaff},
		outsider:     engine.Viewer{UserID: uuid.New(), Kind: user.KindStaff},
		client:       engine.Viewer{UserID: uuid.New(), Kind: user.KindClient},
		admin:        engine.Viewer{UserID: uuid.New(), Kind: user.KindAdmin},
	}
}

func (p people) user(v engine.Viewer) *user.User {
	return &user.User{UUID: v.UserID, Name: string(v.Kind), Kind: v.Kind}
}

type deps struct {
	repo     *MockTaskRepository
	users    *MockUserDirectory
	notifier *MockNotifier
	metrics  *MockMetrics
	svc      *service.TaskService
}

func newDeps() deps {
	d := deps{
		repo:     new(MockTaskRepository),
		users:    new(MockUserDirectory),
		notifier: new(MockNotifier),
		metrics:  new(MockMetrics),
	}
	d.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.metrics.On("RecordTransition", mock.Anything, mock.Anything).Maybe()
	d.metrics.On("RecordRejection", mock.Anything).Maybe()
	d.metrics.On("RecordCreated", mock.Anything).Maybe()
	d.svc = service.NewTaskService(d.repo, d.users,
		service.WithNotifier(d.notifier, 2),
		service.WithMetrics(d.metrics),
		service.WithClock(func() time.Time { return now }),
	)
	return d
}

func staffTask(p people) *task.Task {
	return &task.Task{
		UUID:        uuid.New(),
		Title:       "Prepare discovery requests",
		Instruction: "Draft and circulate",
		Category:    task.CategoryLegal,
		Priority:    task.PriorityHigh,
		Status:      task.StatusPending,
		DueDate:     time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC),
		Assignees: task.Assignees{
			{UserID: p.creator.UserID, Role: task.RolePrimary, AssignedBy: p.creator.UserID},
			{UserID: p.collaborator.UserID, Role: task.RoleCollaborator, AssignedBy: p.creator.UserID},
		},
		Version: 3,
	}
}

func requireCode(t *testing.T, err error, code string) *service.BusinessError {
	t.Helper()
	require.Error(t, err)
	var berr *service.BusinessError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, code, berr.Code)
	return berr
}

func TestTaskService_HealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*MockTaskRepository)
		expectError bool
	}{
		{
			name: "success - health check passes",
			setupMock: func(m *MockTaskRepository) {
				m.On("HealthCheck", mock.Anything).Return(nil)
			},
		},
		{
			name: "error - health check fails",
			setupMock: func(m *MockTaskRepository) {
				m.On("HealthCheck", mock.Anything).Return(errors.New("db connection failed"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			tt.setupMock(d.repo)

			err := d.svc.HealthCheck(context.Background())
			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "service health check")
			} else {
				assert.NoError(t, err)
			}
			d.repo.AssertExpectations(t)
		})
	}
}

func TestTaskService_Identify(t *testing.T) {
	p := newPeople()
	d := newDeps()
	d.users.On("GetByID", mock.Anything, p.admin.UserID).Return(p.user(p.admin), nil)
	unknown := uuid.New()
	d.users.On("GetByID", mock.Anything, unknown).Return(nil, repository.ErrNotFound)

	v, err := d.svc.Identify(context.Background(), p.admin.UserID)
	require.NoError(t, err)
	assert.Equal(t, p.admin, v)

	_, err = d.svc.Identify(context.Background(), unknown)
	requireCode(t, err, service.CodeUnauthenticated)

	_, err = d.svc.Identify(context.Background(), uuid.Nil)
	requireCode(t, err, service.CodeUnauthenticated)
}

func validCreate(assignees ...service.AssigneeInput) service.CreateTaskInput {
	return service.CreateTaskInput{
		Title:       "  Review lease  ",
		Instruction: "Check the renewal clause",
		Category:    task.CategoryLegal,
		Priority:    task.PriorityMedium,
		DueDate:     time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		Assignees:   assignees,
	}
}

func TestTaskService_CreateTask(t *testing.T) {
	p := newPeople()

	t.Run("success - staff assignment", func(t *testing.T) {
		d := newDeps()
		d.users.On("GetByID", mock.Anything, p.creator.UserID).Return(p.user(p.creator), nil)
		d.users.On("GetByID", mock.Anything, p.collaborator.UserID).Return(p.user(p.collaborator), nil)
		d.repo.On("Create", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
			return tk.Status == task.StatusPending && tk.Title == "Review lease" && len(tk.Assignees) == 2
		})).Return(nil)
		d.notifier.ExpectedCalls = nil
		d.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
			return n.Kind == notify.KindAssigned && n.Recipient == p.collaborator.UserID
		})).Return(nil).Once()

		created, err := d.svc.CreateTask(context.Background(), p.creator, validCreate(
			service.AssigneeInput{UserID: p.creator.UserID},
			service.AssigneeInput{UserID: p.collaborator.UserID},
		))
		require.NoError(t, err)

		primary, ok := created.Assignees.Primary()
		require.True(t, ok)
		assert.Equal(t, p.creator.UserID, primary.UserID)
		assert.Equal(t, p.creator.UserID, created.CreatedBy())
		assert.Equal(t, task.RoleCollaborator, created.Assignees[1].Role)
		assert.Equal(t, now, created.CreatedAt)
		d.repo.AssertExpectations(t)
		d.notifier.AssertExpectations(t)
	})

	t.Run("success - delegated to a client", func(t *testing.T) {
		d := newDeps()
		d.users.On("GetByID", mock.Anything, p.client.UserID).Return(p.user(p.client), nil)
		d.repo.On("Create", mock.Anything, mock.Anything).Return(nil)

		created, err := d.svc.CreateTask(context.Background(), p.creator, validCreate(service.AssigneeInput{UserID: p.client.UserID}))
		require.NoError(t, err)
		require.Len(t, created.Assignees, 1)
		assert.True(t, created.Assignees[0].IsClient)
		assert.Equal(t, p.creator.UserID, created.CreatedBy())
		assert.True(t, engine.CanEdit(p.creator, created))
		assert.False(t, engine.CanEdit(p.client, created))
	})

	t.Run("recurrence starts its counter at one", func(t *testing.T) {
		d := newDeps()
		d.users.On("GetByID", mock.Anything, p.creator.UserID).Return(p.user(p.creator), nil)
		d.repo.On("Create", mock.Anything, mock.Anything).Return(nil)

		in := validCreate(service.AssigneeInput{UserID: p.creator.UserID})
		occurrences := 2
		in.Recurrence = &service.RecurrenceInput{Pattern: task.PatternMonthly, Occurrences: &occurrences}

		created, err := d.svc.CreateTask(context.Background(), p.creator, in)
		require.NoError(t, err)
		require.NotNil(t, created.Recurrence)
		assert.Equal(t, 1, created.Recurrence.Generated)
	})

	tests := []struct {
		name  string
		in    func() service.CreateTaskInput
		users map[uuid.UUID]*user.User
		code  string
		field string
		is    error
	}{
		{
			name: "mixed audience",
			in: func() service.CreateTaskInput {
				return validCreate(service.AssigneeInput{UserID: p.collaborator.UserID}, service.AssigneeInput{UserID: p.client.UserID})
			},
			users: map[uuid.UUID]*user.User{p.collaborator.UserID: p.user(p.collaborator), p.client.UserID: p.user(p.client)},
			code:  service.CodeMixedAudience,
			field: service.FieldAssignees,
			is:    engine.ErrMixedAudience,
		},
		{
			name:  "no assignees",
			in:    func() service.CreateTaskInput { return validCreate() },
			code:  service.CodeAssignmentEmpty,
			field: service.FieldAssignees,
			is:    engine.ErrAssignmentEmpty,
		},
		{
			name: "unknown assignee",
			in: func() service.CreateTaskInput {
				return validCreate(service.AssigneeInput{UserID: p.outsider.UserID})
			},
			code:  service.CodeValidation,
			field: service.FieldAssignees,
		},
		{
			name: "missing title",
			in: func() service.CreateTaskInput {
				in := validCreate(service.AssigneeInput{UserID: p.creator.UserID})
				in.Title = "   "
				return in
			},
			code:  service.CodeValidation,
			field: "title",
		},
		{
			name: "bad priority",
			in: func() service.CreateTaskInput {
				in := validCreate(service.AssigneeInput{UserID: p.creator.UserID})
				in.Priority = "critical"
				return in
			},
			code:  service.CodeValidation,
			field: "taskPriority",
		},
		{
			name: "start after due",
			in: func() service.CreateTaskInput {
				in := validCreate(service.AssigneeInput{UserID: p.creator.UserID})
				start := in.DueDate.Add(time.Hour)
				in.StartDate = &start
				return in
			},
			code:  service.CodeValidation,
			field: "startDate",
		},
		{
			name: "zero occurrences",
			in: func() service.CreateTaskInput {
				in := validCreate(service.AssigneeInput{UserID: p.creator.UserID})
				zero := 0
				in.Recurrence = &service.RecurrenceInput{Pattern: task.PatternDaily, Occurrences: &zero}
				return in
			},
			code:  service.CodeValidation,
			field: "recurrence.occurrences",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			for id, u := range tt.users {
				d.users.On("GetByID", mock.Anything, id).Return(u, nil).Maybe()
			}
			d.users.On("GetByID", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound).Maybe()

			_, err := d.svc.CreateTask(context.Background(), p.creator, tt.in())
			berr := requireCode(t, err, tt.code)
			assert.Equal(t, tt.field, berr.Field)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			d.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}

	t.Run("clients may not create", func(t *testing.T) {
		d := newDeps()
		_, err := d.svc.CreateTask(context.Background(), p.client, validCreate(service.AssigneeInput{UserID: p.client.UserID}))
		requireCode(t, err, service.CodeForbidden)
		assert.ErrorIs(t, err, engine.ErrForbidden)
		d.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestTaskService_Access(t *testing.T) {
	p := newPeople()
	tk := staffTask(p)

	d := newDeps()
	d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
	missing := uuid.New()
	d.repo.On("GetByID", mock.Anything, missing).Return(nil, repository.ErrNotFound)

	got, err := d.svc.Access(context.Background(), p.collaborator, tk.UUID)
	require.NoError(t, err)
	assert.Equal(t, engine.Access{View: true, Work: true}, got)

	got, err = d.svc.Access(context.Background(), p.outsider, tk.UUID)
	require.NoError(t, err)
	assert.Equal(t, engine.Access{}, got)

	_, err = d.svc.Access(context.Background(), p.creator, missing)
	requireCode(t, err, service.CodeNotFound)
}

func TestTaskService_GetTask(t *testing.T) {
	p := newPeople()
	tk := staffTask(p)

	d := newDeps()
	d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
	missing := uuid.New()
	d.repo.On("GetByID", mock.Anything, missing).Return(nil, repository.ErrNotFound)

	got, err := d.svc.GetTask(context.Background(), p.collaborator, tk.UUID)
	require.NoError(t, err)
	assert.Equal(t, tk.UUID, got.UUID)

	_, err = d.svc.GetTask(context.Background(), p.outsider, tk.UUID)
	requireCode(t, err, service.CodeNotFound)

	_, err = d.svc.GetTask(context.Background(), p.client, tk.UUID)
	requireCode(t, err, service.CodeNotFound)

	_, err = d.svc.GetTask(context.Background(), p.admin, missing)
	requireCode(t, err, service.CodeNotFound)
}

func TestTaskService_TransitionTask(t *testing.T) {
	p := newPeople()

	tests := []struct {
		name    string
		viewer  func() engine.Viewer
		status  task.Status
		action  engine.Action
		ctx     engine.TransitionContext
		wantTo  task.Status
		code    string
		field   string
		updated bool
	}{
		{name: "collaborator starts", viewer: func() engine.Viewer { return p.collaborator }, status: task.StatusPending, action: engine.ActionStart, wantTo: task.StatusInProgress, updated: true},
		{name: "collaborator submits", viewer: func() engine.Viewer { return p.collaborator }, status: task.StatusInProgress, action: engine.ActionSubmitForReview, wantTo: task.StatusUnderReview, updated: true},
		{name: "creator approves", viewer: func() engine.Viewer { return p.creator }, status: task.StatusUnderReview, action: engine.ActionApprove, ctx: engine.TransitionContext{Comment: "looks good"}, wantTo: task.StatusCompleted, updated: true},
		{name: "creator requests revision", viewer: func() engine.Viewer { return p.creator }, status: task.StatusUnderReview, action: engine.ActionRequestRevision, wantTo: task.StatusInProgress, updated: true},
		{name: "admin cancels", viewer: func() engine.Viewer { return p.admin }, status: task.StatusInProgress, action: engine.ActionCancel, ctx: engine.TransitionContext{CancellationReason: "Matter closed by client"}, wantTo: task.StatusCancelled, updated: true},
		{name: "collaborator cannot cancel", viewer: func() engine.Viewer { return p.collaborator }, status: task.StatusPending, action: engine.ActionCancel, ctx: engine.TransitionContext{CancellationReason: "I do not want it"}, code: service.CodeForbidden},
		{name: "collaborator cannot approve", viewer: func() engine.Viewer { return p.collaborator }, status: task.StatusUnderReview, action: engine.ActionApprove, ctx: engine.TransitionContext{Comment: "ok"}, code: service.CodeForbidden},
		{name: "outsider cannot start", viewer: func() engine.Viewer { return p.outsider }, status: task.StatusPending, action: engine.ActionStart, code: service.CodeForbidden},
		{name: "completed cannot be cancelled", viewer: func() engine.Viewer { return p.creator }, status: task.StatusCompleted, action: engine.ActionCancel, ctx: engine.TransitionContext{CancellationReason: "x"}, code: service.CodeIllegalTransition},
		{name: "short cancellation reason", viewer: func() engine.Viewer { return p.creator }, status: task.StatusPending, action: engine.ActionCancel, ctx: engine.TransitionContext{CancellationReason: "too short"}, code: service.CodeReasonRequired, field: engine.FieldCancellationReason},
		{name: "complete without comment", viewer: func() engine.Viewer { return p.collaborator }, status: task.StatusInProgress, action: engine.ActionComplete, code: service.CodeReasonRequired, field: engine.FieldComment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			tk := staffTask(p)
			tk.Status = tt.status
			d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
			if tt.updated {
				d.repo.On("Update", mock.Anything, mock.MatchedBy(func(u *task.Task) bool {
					return u.UUID == tk.UUID && u.Status == tt.wantTo
				})).Return(nil).Once()
			}

			got, err := d.svc.TransitionTask(context.Background(), tt.viewer(), tk.UUID, tt.action, tt.ctx, nil)
			if tt.code != "" {
				berr := requireCode(t, err, tt.code)
				assert.Equal(t, tt.field, berr.Field)
				d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTo, got.Status)
			assert.Equal(t, tt.status, tk.Status, "stored snapshot must not be mutated")
			d.repo.AssertExpectations(t)
		})
	}
}

func TestTaskService_TransitionTask_VersionConflict(t *testing.T) {
	p := newPeople()
	tk := staffTask(p)

	t.Run("stale expected version", func(t *testing.T) {
		d := newDeps()
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		stale := tk.Version - 1
		_, err := d.svc.TransitionTask(context.Background(), p.creator, tk.UUID, engine.ActionStart, engine.TransitionContext{}, &stale)
		requireCode(t, err, service.CodeVersionConflict)
	})

	t.Run("lost race in storage", func(t *testing.T) {
		d := newDeps()
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.repo.On("Update", mock.Anything, mock.Anything).Return(repository.ErrVersionConflict)
		_, err := d.svc.TransitionTask(context.Background(), p.creator, tk.UUID, engine.ActionStart, engine.TransitionContext{}, nil)
		requireCode(t, err, service.CodeVersionConflict)
		assert.ErrorIs(t, err, repository.ErrVersionConflict)
	})

	t.Run("storage failure is not a business error", func(t *testing.T) {
		d := newDeps()
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.repo.On("Update", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
		_, err := d.svc.TransitionTask(context.Background(), p.creator, tk.UUID, engine.ActionStart, engine.TransitionContext{}, nil)
		require.Error(t, err)
		var berr *service.BusinessError
		assert.False(t, errors.As(err, &berr))
	})
}

func TestTaskService_CompleteRecurringStoresSuccessor(t *testing.T) {
	p := newPeople()
	occurrences := 2
	tk := staffTask(p)
	tk.Status = task.StatusInProgress
	tk.DueDate = time.Date(2024, 1, 31, 17, 0, 0, 0, time.UTC)
	tk.Recurrence = &task.Recurrence{Pattern: task.PatternMonthly, Occurrences: &occurrences, Generated: 1}

	wantID := uuid.NewSHA1(tk.UUID, []byte("occurrence/2"))
	isSuccessor := mock.MatchedBy(func(next *task.Task) bool {
		return next.UUID == wantID &&
			next.Status == task.StatusPending &&
			next.DueDate.Equal(time.Date(2024, 2, 29, 17, 0, 0, 0, time.UTC)) &&
			next.Recurrence.Generated == 2 &&
			*next.SeriesID == tk.UUID &&
			next.CreatedAt.Equal(now)
	})
	isCompleted := mock.MatchedBy(func(done *task.Task) bool {
		return done.UUID == tk.UUID && done.Status == task.StatusCompleted
	})

	t.Run("completion and successor are stored together", func(t *testing.T) {
		d := newDeps()
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.repo.On("UpdateWithSuccessor", mock.Anything, isCompleted, isSuccessor).Return(nil).Once()

		got, err := d.svc.TransitionTask(context.Background(), p.collaborator, tk.UUID, engine.ActionComplete, engine.TransitionContext{Comment: "filed"}, nil)
		require.NoError(t, err)
		assert.Equal(t, task.StatusCompleted, got.Status)
		assert.Equal(t, "filed", *got.CompletionComment)
		assert.Equal(t, now, *got.CompletedAt)
		d.repo.AssertExpectations(t)
		d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		d.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		d.metrics.AssertCalled(t, "RecordCreated", "recurrence")
	})

	t.Run("storage failure fails the completion and can be retried", func(t *testing.T) {
		d := newDeps()
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.repo.On("UpdateWithSuccessor", mock.Anything, isCompleted, isSuccessor).Return(errors.New("connection reset")).Once()

		_, err := d.svc.TransitionTask(context.Background(), p.collaborator, tk.UUID, engine.ActionComplete, engine.TransitionContext{Comment: "filed"}, nil)
		require.Error(t, err)
		assert.Equal(t, task.StatusInProgress, tk.Status, "the stored task is untouched")
		d.metrics.AssertNotCalled(t, "RecordCreated", mock.Anything)

		d.repo.On("UpdateWithSuccessor", mock.Anything, isCompleted, isSuccessor).Return(nil).Once()
		got, err := d.svc.TransitionTask(context.Background(), p.collaborator, tk.UUID, engine.ActionComplete, engine.TransitionContext{Comment: "filed"}, nil)
		require.NoError(t, err)
		assert.Equal(t, task.StatusCompleted, got.Status)
		d.repo.AssertExpectations(t)
	})

	t.Run("version conflict stores neither", func(t *testing.T) {
		d := newDeps()
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.repo.On("UpdateWithSuccessor", mock.Anything, isCompleted, isSuccessor).Return(repository.ErrVersionConflict).Once()

		_, err := d.svc.TransitionTask(context.Background(), p.collaborator, tk.UUID, engine.ActionComplete, engine.TransitionContext{Comment: "filed"}, nil)
		requireCode(t, err, service.CodeVersionConflict)
	})

	t.Run("last occurrence spawns nothing", func(t *testing.T) {
		d := newDeps()
		last := tk.Clone()
		last.Recurrence.Generated = 2
		d.repo.On("GetByID", mock.Anything, last.UUID).Return(last, nil)
		d.repo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := d.svc.TransitionTask(context.Background(), p.creator, last.UUID, engine.ActionComplete, engine.TransitionContext{Comment: "done"}, nil)
		require.NoError(t, err)
		d.repo.AssertNotCalled(t, "UpdateWithSuccessor", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTaskService_CancelStopsRecurrence(t *testing.T) {
	p := newPeople()
	tk := staffTask(p)
	tk.Recurrence = &task.Recurrence{Pattern: task.PatternWeekly, Generated: 1}

	d := newDeps()
	d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
	d.repo.On("Update", mock.Anything, mock.MatchedBy(func(u *task.Task) bool {
		return u.Status == task.StatusCancelled && u.Recurrence.Stopped && *u.CancellationReason == "Client withdrew the matter"
	})).Return(nil)

	_, err := d.svc.CancelTask(context.Background(), p.creator, tk.UUID, "  Client withdrew the matter ", nil)
	require.NoError(t, err)
	d.repo.AssertNotCalled(t, "UpdateWithSuccessor", mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskService_RespondToTask(t *testing.T) {
	p := newPeople()

	t.Run("completed without comment", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		tk.Status = task.StatusInProgress
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)

		_, err := d.svc.RespondToTask(context.Background(), p.collaborator, tk.UUID, true, " ")
		berr := requireCode(t, err, service.CodeReasonRequired)
		assert.Equal(t, engine.FieldComment, berr.Field)
	})

	t.Run("completed with comment", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		tk.Status = task.StatusUnderReview
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.repo.On("Update", mock.Anything, mock.Anything).Return(nil)

		got, err := d.svc.RespondToTask(context.Background(), p.collaborator, tk.UUID, true, "done")
		require.NoError(t, err)
		assert.Equal(t, task.StatusCompleted, got.Status)
	})

	t.Run("not completed starts a pending task", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.repo.On("Update", mock.Anything, mock.Anything).Return(nil)

		got, err := d.svc.RespondToTask(context.Background(), p.collaborator, tk.UUID, false, "")
		require.NoError(t, err)
		assert.Equal(t, task.StatusInProgress, got.Status)
	})

	t.Run("not completed leaves an active task alone", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		tk.Status = task.StatusUnderReview
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)

		got, err := d.svc.RespondToTask(context.Background(), p.collaborator, tk.UUID, false, "")
		require.NoError(t, err)
		assert.Equal(t, task.StatusUnderReview, got.Status)
		d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	for _, status := range []task.Status{task.StatusCompleted, task.StatusCancelled} {
		t.Run("not completed on a "+string(status)+" task", func(t *testing.T) {
			d := newDeps()
			tk := staffTask(p)
			tk.Status = status
			d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)

			_, err := d.svc.RespondToTask(context.Background(), p.collaborator, tk.UUID, false, "")
			requireCode(t, err, service.CodeIllegalTransition)
			d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		})
	}
}

func TestTaskService_UpdateTask(t *testing.T) {
	p := newPeople()
	newcomer := engine.Viewer{UserID: uuid.New(), Kind: user.KindStaff}

	t.Run("non-editor is forbidden whatever the body", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)

		empty := ""
		for _, in := range []service.UpdateTaskInput{
			{Title: &empty},
			{DueDate: &now},
			{Assignees: &[]service.AssigneeInput{}},
		} {
			_, err := d.svc.UpdateTask(context.Background(), p.collaborator, tk.UUID, in)
			requireCode(t, err, service.CodeForbidden)
		}
		_, err := d.svc.UpdateTask(context.Background(), p.outsider, tk.UUID, service.UpdateTaskInput{})
		requireCode(t, err, service.CodeForbidden)
		d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("creator adds a collaborator and extends the deadline", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.users.On("GetByID", mock.Anything, newcomer.UserID).Return(p.user(newcomer), nil)
		due := tk.DueDate.AddDate(0, 0, 7)
		d.repo.On("Update", mock.Anything, mock.MatchedBy(func(u *task.Task) bool {
			return len(u.Assignees) == 3 && u.DueDate.Equal(due)
		})).Return(nil)

		got, err := d.svc.UpdateTask(context.Background(), p.creator, tk.UUID, service.UpdateTaskInput{
			DueDate: &due,
			Assignees: &[]service.AssigneeInput{
				{UserID: p.creator.UserID},
				{UserID: p.collaborator.UserID},
				{UserID: newcomer.UserID},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, tk.Assignees[0], got.Assignees[0])
		assert.Equal(t, newcomer.UserID, got.Assignees[2].UserID)
		assert.Equal(t, p.creator.UserID, got.Assignees[2].AssignedBy)
		assert.Equal(t, task.RoleCollaborator, got.Assignees[2].Role)
	})

	t.Run("primary cannot be removed", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)

		_, err := d.svc.UpdateTask(context.Background(), p.creator, tk.UUID, service.UpdateTaskInput{
			Assignees: &[]service.AssigneeInput{{UserID: p.collaborator.UserID}},
		})
		requireCode(t, err, service.CodePrimaryMutated)
		assert.ErrorIs(t, err, engine.ErrPrimaryMutated)
	})

	t.Run("status goes through the state machine", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)

		underReview := task.StatusUnderReview
		berr := requireCode(t, func() error {
			_, err := d.svc.UpdateTask(context.Background(), p.creator, tk.UUID, service.UpdateTaskInput{Status: &underReview})
			return err
		}(), service.CodeIllegalTransition)
		assert.Equal(t, "status", berr.Field)

		completed := task.StatusCompleted
		_, err := d.svc.UpdateTask(context.Background(), p.creator, tk.UUID, service.UpdateTaskInput{Status: &completed, Comment: "done"})
		requireCode(t, err, service.CodeIllegalTransition)
		d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("collaborator may start through a patch", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)
		d.repo.On("Update", mock.Anything, mock.Anything).Return(nil)

		inProgress := task.StatusInProgress
		got, err := d.svc.UpdateTask(context.Background(), p.collaborator, tk.UUID, service.UpdateTaskInput{Status: &inProgress})
		require.NoError(t, err)
		assert.Equal(t, task.StatusInProgress, got.Status)
	})

	t.Run("expected version must match", func(t *testing.T) {
		d := newDeps()
		tk := staffTask(p)
		d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)

		title := "Renamed"
		stale := 1
		_, err := d.svc.UpdateTask(context.Background(), p.creator, tk.UUID, service.UpdateTaskInput{Title: &title, ExpectedVersion: &stale})
		requireCode(t, err, service.CodeVersionConflict)
	})
}

func TestTaskService_ListTasks(t *testing.T) {
	p := newPeople()
	visible := staffTask(p)
	visible.Assignees = task.Assignees{{UserID: p.client.UserID, Role: task.RolePrimary, IsClient: true, AssignedBy: p.creator.UserID}}
	leaked := staffTask(p)

	t.Run("client listing is narrowed and re-checked", func(t *testing.T) {
		d := newDeps()
		urgent := task.PriorityUrgent
		d.repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.ListFilter) bool {
			return f.Participant != nil && f.Participant.UserID == p.client.UserID && f.Participant.IsClient &&
				f.Priority != nil && *f.Priority == urgent && f.Search == "lease"
		})).Return([]*task.Task{visible, leaked}, nil)

		tasks, err := d.svc.ListTasks(context.Background(), p.client, service.ListQuery{Priority: &urgent, Search: "lease"})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, visible.UUID, tasks[0].UUID)
	})

	t.Run("admin listing is unrestricted", func(t *testing.T) {
		d := newDeps()
		d.repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.ListFilter) bool {
			return f.Participant == nil
		})).Return([]*task.Task{visible, leaked}, nil)

		tasks, err := d.svc.ListTasks(context.Background(), p.admin, service.ListQuery{})
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
	})

	t.Run("unknown status filter", func(t *testing.T) {
		d := newDeps()
		bogus := task.Status("archived")
		_, err := d.svc.ListTasks(context.Background(), p.admin, service.ListQuery{Status: &bogus})
		requireCode(t, err, service.CodeValidation)
	})
}

func TestTaskService_ListOverdue(t *testing.T) {
	p := newPeople()
	overdue := staffTask(p)
	overdue.DueDate = now.Add(-time.Hour)

	d := newDeps()
	d.repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.ListFilter) bool {
		return f.DueBefore != nil && f.DueBefore.Equal(now) && f.Participant.UserID == p.collaborator.UserID
	})).Return([]*task.Task{overdue}, nil)

	tasks, err := d.svc.ListOverdue(context.Background(), p.collaborator, 1, 20)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, overdue.UUID, tasks[0].UUID)
}

func TestTaskService_InstantiateTemplate(t *testing.T) {
	p := newPeople()
	tmpl := staffTask(p)
	tmpl.IsTemplate = true
	tmpl.TemplateName = "discovery"
	tmpl.Recurrence = &task.Recurrence{Pattern: task.PatternYearly, Generated: 4}

	d := newDeps()
	d.repo.On("GetByID", mock.Anything, tmpl.UUID).Return(tmpl, nil)
	d.users.On("GetByID", mock.Anything, p.creator.UserID).Return(p.user(p.creator), nil)
	d.users.On("GetByID", mock.Anything, p.collaborator.UserID).Return(p.user(p.collaborator), nil)
	d.repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	due := time.Date(2024, 9, 1, 17, 0, 0, 0, time.UTC)
	got, err := d.svc.InstantiateTemplate(context.Background(), p.collaborator, tmpl.UUID, service.InstantiateInput{DueDate: due})
	require.NoError(t, err)
	assert.False(t, got.IsTemplate)
	assert.NotEqual(t, tmpl.UUID, got.UUID)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.Equal(t, p.collaborator.UserID, got.CreatedBy())
	assert.Equal(t, 1, got.Recurrence.Generated)
	assert.Equal(t, tmpl.Title, got.Title)

	_, err = d.svc.InstantiateTemplate(context.Background(), p.collaborator, tmpl.UUID, service.InstantiateInput{})
	requireCode(t, err, service.CodeValidation)

	plain := staffTask(p)
	d.repo.On("GetByID", mock.Anything, plain.UUID).Return(plain, nil)
	_, err = d.svc.InstantiateTemplate(context.Background(), p.creator, plain.UUID, service.InstantiateInput{DueDate: due})
	requireCode(t, err, service.CodeNotFound)
}

func TestTaskService_TemplatesAreNotSchedulable(t *testing.T) {
	p := newPeople()
	tmpl := staffTask(p)
	tmpl.IsTemplate = true

	d := newDeps()
	d.repo.On("GetByID", mock.Anything, tmpl.UUID).Return(tmpl, nil)

	_, err := d.svc.TransitionTask(context.Background(), p.creator, tmpl.UUID, engine.ActionStart, engine.TransitionContext{}, nil)
	requireCode(t, err, service.CodeIllegalTransition)
}

func TestTaskService_RecordsRejections(t *testing.T) {
	p := newPeople()
	tk := staffTask(p)

	d := newDeps()
	d.metrics.ExpectedCalls = nil
	d.metrics.On("RecordRejection", service.CodeForbidden).Once()
	d.repo.On("GetByID", mock.Anything, tk.UUID).Return(tk, nil)

	_, err := d.svc.CancelTask(context.Background(), p.collaborator, tk.UUID, "Not my problem anymore", nil)
	requireCode(t, err, service.CodeForbidden)
	d.metrics.AssertExpectations(t)
}
