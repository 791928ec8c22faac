package service

import (
	"context"
	"time"

	"caseTasks/internal/models/task"
	"caseTasks/internal/models/user"
	"caseTasks/internal/repository"

	"github.com/google/uuid"
)

type TaskRepository interface {
	HealthCheck(ctx context.Context) error
	Create(ctx context.Context, t *task.Task) error
	Update(ctx context.Context, t *task.Task) error
	// UpdateWithSuccessor stores a completed recurring task and the next
	// instance of its series atomically.
	UpdateWithSuccessor(ctx context.Context, done, next *task.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*task.Task, error)
	ListDueBefore(ctx context.Context, deadline time.Time, after *repository.DueCursor, limit int) ([]*task.Task, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Metrics is the subset of the metrics set the service reports to.
type Metrics interface {
	RecordTransition(action, to string)
	RecordRejection(code string)
	RecordCreated(origin string)
}

type nopMetrics struct{}

func (nopMetrics) RecordTransition(string, string) {}
func (nopMetrics) RecordRejection(string)          {}
func (nopMetrics) RecordCreated(string)            {}
