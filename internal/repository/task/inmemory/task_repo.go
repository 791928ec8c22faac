package inmemory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"caseTasks/internal/logger"
	"caseTasks/internal/models/task"
	repo "caseTasks/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskStorage keeps tasks in insertion order. Stored values are never handed
// out: every read returns a copy and every write stores one.
type TaskStorage struct {
	storage map[uuid.UUID]*task.Task
	mtx     *sync.RWMutex
	ids     []uuid.UUID
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		storage: make(map[uuid.UUID]*task.Task),
		mtx:     &sync.RWMutex{},
		ids:     []uuid.UUID{},
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *TaskStorage) Create(ctx context.Context, taskToCreate *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.storage[taskToCreate.UUID]; ok {
		return repo.ErrAlreadyExists
	}

	if taskToCreate.CreatedAt.IsZero() {
		taskToCreate.CreatedAt = time.Now()
	}
	taskToCreate.Version = 1

	s.storage[taskToCreate.UUID] = taskToCreate.Clone()
	s.ids = append(s.ids, taskToCreate.UUID)
	return nil
}

// Update stores taskToUpdate if its Version matches the stored one, then bumps
// the version on both.
func (s *TaskStorage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.checkVersion(taskToUpdate); err != nil {
		return err
	}
	s.put(taskToUpdate)
	return nil
}

// UpdateWithSuccessor stores done and inserts next under one lock, so either
// both land or neither does. A successor that is already stored is kept.
func (s *TaskStorage) UpdateWithSuccessor(ctx context.Context, done, next *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.checkVersion(done); err != nil {
		return err
	}
	if _, ok := s.storage[next.UUID]; ok {
		logger.Info("Repository: successor already stored", zap.String("task_id", next.UUID.String()))
	} else {
		if next.CreatedAt.IsZero() {
			next.CreatedAt = time.Now()
		}
		next.Version = 1
		s.storage[next.UUID] = next.Clone()
		s.ids = append(s.ids, next.UUID)
	}
	s.put(done)
	return nil
}

func (s *TaskStorage) checkVersion(t *task.Task) error {
	existing, ok := s.storage[t.UUID]
	if !ok {
		return repo.ErrNotFound
	}
	if existing.Version != t.Version {
		logger.Warn("Repository: version conflict on update",
			zap.String("task_id", t.UUID.String()),
			zap.Int("expected_version", t.Version),
			zap.Int("stored_version", existing.Version))
		return repo.ErrVersionConflict
	}
	return nil
}

func (s *TaskStorage) put(t *task.Task) {
	now := time.Now()
	t.UpdatedAt = &now
	t.Version++
	s.storage[t.UUID] = t.Clone()
}

func (s *TaskStorage) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.storage[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

func (s *TaskStorage) List(ctx context.Context, filter repo.ListFilter) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	filter = filter.Normalize()
	offset := filter.Offset()
	res := []*task.Task{}

	skipped := 0
	for _, id := range s.ids {
		if len(res) >= filter.Limit {
			break
		}
		t := s.storage[id]
		if !filter.Participant.Visible(t) || !filter.Matches(t) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		res = append(res, t.Clone())
	}
	return res, nil
}

// ListDueBefore returns open, non-template tasks whose due date is before
// deadline, ordered by due date then id and starting behind after.
func (s *TaskStorage) ListDueBefore(ctx context.Context, deadline time.Time, after *repo.DueCursor, limit int) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var due []*task.Task
	for _, id := range s.ids {
		t := s.storage[id]
		if t.IsTemplate || t.Status.Terminal() || !t.DueDate.Before(deadline) || after.Before(t) {
			continue
		}
		due = append(due, t)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].DueDate.Equal(due[j].DueDate) {
			return due[i].DueDate.Before(due[j].DueDate)
		}
		return bytes.Compare(due[i].UUID[:], due[j].UUID[:]) < 0
	})

	if len(due) > limit {
		due = due[:limit]
	}
	tasks := make([]*task.Task, 0, len(due))
	for _, t := range due {
		tasks = append(tasks, t.Clone())
	}
	return tasks, nil
}
