package audit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stackvity/ontaudit/internal/testutil"
	"github.com/stackvity/ontaudit/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) audit.RetryPolicy {
	return audit.RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		AttemptTimeout:  time.Second,
	}
}

func TestRetrier_Do(t *testing.T) {
	errUnavailable := errors.New("HTTP 503")

	t.Run("succeeds on first attempt", func(t *testing.T) {
		store := audit.NewStore(nil)
		path := filepath.Join(t.TempDir(), "a_FOOPS.json")
		calls := 0

		attempts, err := audit.NewRetrier(store, nil).Do(context.Background(), path, fastPolicy(3), func(ctx context.Context) error {
			calls++
			return store.Write(path, []byte(`{"overall_score":1}`))
		})

		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until the report exists", func(t *testing.T) {
		store := audit.NewStore(nil)
		path := filepath.Join(t.TempDir(), "a_FOOPS.json")
		calls := 0

		attempts, err := audit.NewRetrier(store, nil).Do(context.Background(), path, fastPolicy(5), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errUnavailable
			}
			return store.Write(path, []byte(`{}`))
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		_, statErr := os.Stat(audit.FailurePath(path))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("complete report is never fetched", func(t *testing.T) {
		store := audit.NewStore(nil)
		path := filepath.Join(t.TempDir(), "a_FOOPS.json")
		testutil.CreateDummyFile(t, path, "{}")

		attempts, err := audit.NewRetrier(store, nil).Do(context.Background(), path, fastPolicy(3), func(ctx context.Context) error {
			t.Fatal("operation must not run for a complete report")
			return nil
		})

		require.NoError(t, err)
		assert.Zero(t, attempts)
	})

	t.Run("exhaustion writes a failure artifact", func(t *testing.T) {
		store := audit.NewStore(nil)
		path := filepath.Join(t.TempDir(), "a_FOOPS.json")
		calls := 0

		attempts, err := audit.NewRetrier(store, nil).Do(context.Background(), path, fastPolicy(3), func(ctx context.Context) error {
			calls++
			return errUnavailable
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, audit.ErrRetryExhausted)
		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
		assert.Contains(t, testutil.ReadFile(t, audit.FailurePath(path)), "HTTP 503")
		assert.True(t, store.ShouldGenerate(path), "the report itself is still missing")
	})

	t.Run("nil without a report counts as a failed attempt", func(t *testing.T) {
		store := audit.NewStore(nil)
		path := filepath.Join(t.TempDir(), "a_FOOPS.json")

		attempts, err := audit.NewRetrier(store, nil).Do(context.Background(), path, fastPolicy(2), func(ctx context.Context) error {
			return nil
		})

		assert.ErrorIs(t, err, audit.ErrRetryExhausted)
		assert.Equal(t, 2, attempts)
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		store := audit.NewStore(nil)
		path := filepath.Join(t.TempDir(), "a_FOOPS.json")

		attempts, err := audit.NewRetrier(store, nil).Do(context.Background(), path, fastPolicy(0), func(ctx context.Context) error {
			return errUnavailable
		})

		assert.ErrorIs(t, err, audit.ErrRetryExhausted)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancellation leaves no failure artifact", func(t *testing.T) {
		store := audit.NewStore(nil)
		path := filepath.Join(t.TempDir(), "a_FOOPS.json")
		ctx, cancel := context.WithCancel(context.Background())

		_, err := audit.NewRetrier(store, nil).Do(ctx, path, fastPolicy(5), func(ctx context.Context) error {
			cancel()
			return errUnavailable
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, audit.ErrRetryExhausted)
		_, statErr := os.Stat(audit.FailurePath(path))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("attempt timeout bounds each call", func(t *testing.T) {
		store := audit.NewStore(nil)
		path := filepath.Join(t.TempDir(), "a_FOOPS.json")
		policy := fastPolicy(1)
		policy.AttemptTimeout = 10 * time.Millisecond

		_, err := audit.NewRetrier(store, nil).Do(context.Background(), path, policy, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		assert.ErrorIs(t, err, audit.ErrRetryExhausted)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
