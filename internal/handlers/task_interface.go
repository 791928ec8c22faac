package handlers

import (
	"context"

	"caseTasks/internal/engine"
	"caseTasks/internal/models/task"
	"caseTasks/internal/service"

	"github.com/google/uuid"
)

type Service interface {
	HealthCheck(ctx context.Context) error
	CreateTask(ctx context.Context, v engine.Viewer, in service.CreateTaskInput) (*task.Task, error)
	InstantiateTemplate(ctx context.Context, v engine.Viewer, templateID uuid.UUID, in service.InstantiateInput) (*task.Task, error)
	Access(ctx context.Context, v engine.Viewer, id uuid.UUID) (engine.Access, error)
	GetTask(ctx context.Context, v engine.Viewer, id uuid.UUID) (*task.Task, error)
	UpdateTask(ctx context.Context, v engine.Viewer, id uuid.UUID, in service.UpdateTaskInput) (*task.Task, error)
	TransitionTask(ctx context.Context, v engine.Viewer, id uuid.UUID, action engine.Action, tc engine.TransitionContext, expectedVersion *int) (*task.Task, error)
	CancelTask(ctx context.Context, v engine.Viewer, id uuid.UUID, reason string, expectedVersion *int) (*task.Task, error)
	RespondToTask(ctx context.Context, v engine.Viewer, id uuid.UUID, completed bool, comment string) (*task.Task, error)
	ListTasks(ctx context.Context, v engine.Viewer, q service.ListQuery) ([]*task.Task, error)
	ListOverdue(ctx context.Context, v engine.Viewer, page, limit int) ([]*task.Task, error)
}

var _ Service = (*service.TaskService)(nil)
