package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caseTasks/internal/engine"
	"caseTasks/internal/logger"
	"caseTasks/internal/models/task"
	"caseTasks/internal/notify"
	"caseTasks/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskSource is the read side the worker needs. It never writes tasks: the
// overdue flag is derived, not stored.
type TaskSource interface {
	ListDueBefore(ctx context.Context, deadline time.Time, after *repository.DueCursor, limit int) ([]*task.Task, error)
}

type Gauge interface {
	SetOverdue(n int)
}

type reminderKey struct {
	task      uuid.UUID
	recipient uuid.UUID
}

type OverdueWorker struct {
	repo        TaskSource
	notifier    notify.Notifier
	gauge       Gauge
	interval    time.Duration
	batchSize   int
	remindEvery time.Duration
	concurrency int
	now         func() time.Time

	mtx      sync.Mutex
	reminded map[reminderKey]time.Time
}

type Option func(*OverdueWorker)

func WithGauge(g Gauge) Option {
	return func(w *OverdueWorker) { w.gauge = g }
}

func WithClock(now func() time.Time) Option {
	return func(w *OverdueWorker) { w.now = now }
}

func WithConcurrency(n int) Option {
	return func(w *OverdueWorker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// NewOverdueWorker falls back to a 5 minute interval, batches of 100 and a
// daily reminder when the arguments are not positive.
func NewOverdueWorker(repo TaskSource, notifier notify.Notifier, interval time.Duration, batchSize int, remindEvery time.Duration, opts ...Option) *OverdueWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if remindEvery <= 0 {
		remindEvery = 24 * time.Hour
	}
	w := &OverdueWorker{
		repo:        repo,
		notifier:    notifier,
		interval:    interval,
		batchSize:   batchSize,
		remindEvery: remindEvery,
		concurrency: 4,
		now:         time.Now,
		reminded:    make(map[reminderKey]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs Check on every tick until ctx is done.
func (w *OverdueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logger.Info("Worker: overdue scan", zap.Time("started_at", w.now()))
			w.Check(ctx)
		case <-ctx.Done():
			logger.Info("Worker: overdue scan stopping")
			return
		}
	}
}

// Check scans every task due before now, batchSize at a time, and returns how
// many of them are overdue.
func (w *OverdueWorker) Check(ctx context.Context) int {
	start := time.Now()
	now := w.now()

	var (
		late    []*task.Task
		checked int
		cursor  *repository.DueCursor
	)
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("Worker: overdue scan interrupted", zap.Int("checked", checked))
			return 0
		}
		tasks, err := w.dueTasks(ctx, now, cursor)
		if err != nil {
			logger.Warn("Worker: reading due tasks", zap.Error(err), zap.Int("checked", checked))
			return 0
		}
		checked += len(tasks)

		for _, t := range tasks {
			if engine.IsOverdue(t, now) {
				late = append(late, t)
			}
		}

		if len(tasks) < w.batchSize {
			break
		}
		cursor = repository.CursorOf(tasks[len(tasks)-1])
	}

	// reminders are recorded as sent only once the whole scan has succeeded
	var notes []notify.Notification
	for _, t := range late {
		notes = append(notes, w.reminders(t, now)...)
	}
	overdue := len(late)

	if w.gauge != nil {
		w.gauge.SetOverdue(overdue)
	}
	if err := notify.Broadcast(ctx, w.notifier, w.concurrency, notes); err != nil {
		logger.Warn("Worker: reminder delivery failed", zap.Error(err))
	}
	w.forget(now)

	logger.Info("Worker: overdue scan finished",
		zap.Duration("ms", time.Since(start)),
		zap.Int("checked", checked),
		zap.Int("overdue", overdue),
		zap.Int("reminders", len(notes)))
	return overdue
}

func (w *OverdueWorker) dueTasks(ctx context.Context, now time.Time, after *repository.DueCursor) ([]*task.Task, error) {
	tasks, err := w.repo.ListDueBefore(ctx, now, after, w.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing tasks due before %s: %w", now.Format(time.RFC3339), err)
	}
	return tasks, nil
}

// reminders returns the notifications owed for t and records them as sent.
// An assignee is reminded about a task at most once per remindEvery.
func (w *OverdueWorker) reminders(t *task.Task, now time.Time) []notify.Notification {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	var out []notify.Notification
	for _, id := range t.Assignees.UserIDs() {
		key := reminderKey{task: t.UUID, recipient: id}
		if last, ok := w.reminded[key]; ok && now.Sub(last) < w.remindEvery {
			continue
		}
		w.reminded[key] = now
		out = append(out, notify.Notification{
			Kind:      notify.KindOverdue,
			TaskID:    t.UUID,
			Recipient: id,
			Title:     t.Title,
			Message:   fmt.Sprintf("%q was due %s", t.Title, t.DueDate.Format(time.DateOnly)),
			At:        now,
		})
	}
	return out
}

func (w *OverdueWorker) forget(now time.Time) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	for key, last := range w.reminded {
		if now.Sub(last) >= w.remindEvery {
			delete(w.reminded, key)
		}
	}
}
