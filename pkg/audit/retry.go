package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how hard a remote report is chased.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

// WithAttempts returns a copy of p capped at n attempts.
func (p RetryPolicy) WithAttempts(n int) RetryPolicy {
	p.MaxAttempts = n
	return p
}

// Retrier repeats a report fetch until the report is complete, with the
// store's gate as the loop condition.
type Retrier struct {
	store  *Store
	logger *slog.Logger
}

// NewRetrier creates a retrier writing failure artifacts through store.
func NewRetrier(store *Store, loggerHandler slog.Handler) *Retrier {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Retrier{
		store:  store,
		logger: slog.New(loggerHandler).With(slog.String("component", "retrier")),
	}
}

// Do runs op until the report at path exists with content, or the policy is
// exhausted. An attempt returning nil without producing the report counts as
// failed. On exhaustion a failure artifact is written and the returned error
// wraps ErrRetryExhausted and the last cause. Cancellation of ctx is
// returned as is, without a failure artifact.
func (r *Retrier) Do(ctx context.Context, path string, policy RetryPolicy, op func(ctx context.Context) error) (int, error) {
	if !r.store.ShouldGenerate(path) {
		return 0, nil
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expo.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		expo.MaxInterval = policy.MaxInterval
	}
	expo.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxAttempts-1)), ctx)

	attempts := 0
	var lastErr error
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if !r.store.ShouldGenerate(path) {
			return nil
		}
		attempts++

		attemptCtx := ctx
		cancel := func() {}
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		err := op(attemptCtx)
		cancel()

		if err == nil && r.store.ShouldGenerate(path) {
			err = fmt.Errorf("%w: attempt left no report at '%s'", ErrRemoteService, path)
		}
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Report attempt failed, retrying",
			slog.String("path", path),
			slog.Int("attempt", attempts),
			slog.Int("maxAttempts", maxAttempts),
			slog.Duration("backoff", wait),
			slog.Any("error", err))
	}

	err := backoff.RetryNotify(operation, bo, notify)
	if err == nil {
		r.store.ClearFailure(path)
		return attempts, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return attempts, ctxErr
	}

	if lastErr == nil {
		lastErr = err
	}
	exhausted := fmt.Errorf("%w after %d attempt(s): %w", ErrRetryExhausted, attempts, lastErr)
	if writeErr := r.store.WriteFailure(path, attempts, lastErr); writeErr != nil {
		r.logger.Error("Failed to write failure artifact", slog.String("path", path), slog.Any("error", writeErr))
	}
	r.logger.Error("Report abandoned", slog.String("path", path), slog.Int("attempts", attempts), slog.Any("error", lastErr))
	return attempts, exhausted
}
