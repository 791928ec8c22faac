package service_test

import (
	"context"
	"time"

	"caseTasks/internal/models/task"
	"caseTasks/internal/models/user"
	"caseTasks/internal/notify"
	"caseTasks/internal/repository"
	"caseTasks/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepository) List(ctx context.Context, filter repository.ListFilter) ([]*task.Task, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepository) ListDueBefore(ctx context.Context, deadline time.Time, after *repository.DueCursor, limit int) ([]*task.Task, error) {
	args := m.Called(ctx, deadline, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepository) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) Update(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) UpdateWithSuccessor(ctx context.Context, done, next *task.Task) error {
	args := m.Called(ctx, done, next)
	return args.Error(0)
}

var _ service.TaskRepository = (*MockTaskRepository)(nil)

type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

var _ service.UserDirectory = (*MockUserDirectory)(nil)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

var _ notify.Notifier = (*MockNotifier)(nil)

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordTransition(action, to string) {
	m.Called(action, to)
}

func (m *MockMetrics) RecordRejection(code string) {
	m.Called(code)
}

func (m *MockMetrics) RecordCreated(origin string) {
	m.Called(origin)
}

var _ service.Metrics = (*MockMetrics)(nil)
