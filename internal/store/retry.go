package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"caosbot/internal/models"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

// linearBackOff waits step, 2*step, 3*step, ... between attempts
type linearBackOff struct {
	step time.Duration
	n    int64
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.step
}

func (l *linearBackOff) Reset() { l.n = 0 }

// RetryStore retries transient failures of the wrapped backend
type RetryStore struct {
	Backend
	attempts uint
	delay    time.Duration
}

// WithRetry wraps next so that every store operation is attempted up to
// attempts times with linear backoff
func WithRetry(next Backend, attempts uint, delay time.Duration) *RetryStore {
	if attempts == 0 {
		attempts = 1
	}
	return &RetryStore{Backend: next, attempts: attempts, delay: delay}
}

func retry[T any](ctx context.Context, r *RetryStore, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrNoChange) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return v, backoff.Permanent(err)
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Uint("max", r.attempts).Msg("store operation failed")
		return v, err
	},
		backoff.WithBackOff(&linearBackOff{step: r.delay}),
		backoff.WithMaxTries(r.attempts),
	)
}

func (r *RetryStore) Get(ctx context.Context, userID string) (models.UserRecord, bool, error) {
	type result struct {
		rec   models.UserRecord
		found bool
	}
	res, err := retry(ctx, r, "get", func() (result, error) {
		rec, found, err := r.Backend.Get(ctx, userID)
		return result{rec, found}, err
	})
	return res.rec, res.found, err
}

func (r *RetryStore) Update(ctx context.Context, userID string, fn UpdateFunc) (models.UserRecord, error) {
	return retry(ctx, r, "update", func() (models.UserRecord, error) {
		return r.Backend.Update(ctx, userID, fn)
	})
}

func (r *RetryStore) Count(ctx context.Context) (int, error) {
	return retry(ctx, r, "count", func() (int, error) {
		return r.Backend.Count(ctx)
	})
}
