package notify

import (
	"context"
	"sync"
	"time"

	"caseTasks/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Kind string

const (
	KindAssigned  Kind = "assigned"
	KindCompleted Kind = "completed"
	KindCancelled Kind = "cancelled"
	KindRecurred  Kind = "recurred"
	KindOverdue   Kind = "overdue"
)

// Notification is addressed to one recipient about one task.
type Notification struct {
	Kind      Kind
	TaskID    uuid.UUID
	Recipient uuid.UUID
	Title     string
	Message   string
	At        time.Time
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the application log. It stands in for a
// delivery transport.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("Notify: notification dispatched",
		zap.String("kind", string(n.Kind)),
		zap.String("task_id", n.TaskID.String()),
		zap.String("recipient", n.Recipient.String()),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
	return nil
}

// Recorder is the part of the metrics set a notifier reports to.
type Recorder interface {
	RecordNotification(kind string, ok bool)
}

type instrumented struct {
	next Notifier
	rec  Recorder
}

// WithRecorder reports the outcome of every Notify call to rec.
func WithRecorder(next Notifier, rec Recorder) Notifier {
	return &instrumented{next: next, rec: rec}
}

func (i *instrumented) Notify(ctx context.Context, n Notification) error {
	err := i.next.Notify(ctx, n)
	i.rec.RecordNotification(string(n.Kind), err == nil)
	return err
}

// Broadcast delivers every notification with at most limit in flight and
// returns the combined delivery errors. One failure does not stop the rest.
func Broadcast(ctx context.Context, n Notifier, limit int, notes []Notification) error {
	if len(notes) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	g.SetLimit(limit)

	for _, note := range notes {
		g.Go(func() error {
			if err := n.Notify(ctx, note); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
