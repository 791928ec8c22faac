package service

import (
	"time"

	"caseTasks/internal/notify"
)

// Option configures a TaskService.
type Option func(*TaskService)

func WithNotifier(n notify.Notifier, concurrency int) Option {
	if n == nil {
		return nil
	}
	return func(s *TaskService) {
		s.notifier = n
		if concurrency > 0 {
			s.notifyConcurrency = concurrency
		}
	}
}

func WithMetrics(m Metrics) Option {
	if m == nil {
		return nil
	}
	return func(s *TaskService) {
		s.metrics = m
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TaskService) {
		s.now = now
	}
}
