package notify

import (
	"context"
	"errors"
	"time"

	"caseTasks/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

type RetryOptions struct {
	MaxRetries      uint64
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying retries a failed delivery with exponential backoff. Each attempt
// gets its own timeout; the parent context bounds the whole sequence.
type Retrying struct {
	next Notifier
	opts RetryOptions
}

func NewRetrying(next Notifier, opts RetryOptions) *Retrying {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 5 * time.Second
	}
	return &Retrying{next: next, opts: opts}
}

func (r *Retrying) Notify(ctx context.Context, n Notification) error {
	attempt := 0
	op := func() error {
		attempt++
		actx := ctx
		if r.opts.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()
		}

		err := r.next.Notify(actx, n)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		logger.Warn("Notify: delivery attempt failed",
			zap.String("task_id", n.TaskID.String()),
			zap.String("kind", string(n.Kind)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.opts.MaxRetries), ctx))
}
