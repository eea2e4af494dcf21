package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		s := &recordingSleeper{}
		r := New(WithSleeper(s.sleep))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
		assert.Empty(t, s.waits)
	})

	t.Run("success after retries", func(t *testing.T) {
		r := New(WithMaxAttempts(4), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fail after max attempts", func(t *testing.T) {
		s := &recordingSleeper{}
		r := New(WithSleeper(s.sleep))
		attempts := 0
		cause := errors.New("fail")
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return cause
		})

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 5, exhausted.Attempts)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 5, attempts)
		assert.Equal(t, []time.Duration{
			1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		}, s.waits)
	})

	t.Run("non retryable error stops immediately", func(t *testing.T) {
		s := &recordingSleeper{}
		cause := errors.New("insufficient funds")
		r := New(WithSleeper(s.sleep), WithRetryIf(func(err error) bool { return false }))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return cause
		})
		assert.Same(t, cause, err)
		assert.Equal(t, 1, attempts)
		assert.Empty(t, s.waits)
	})

	t.Run("on retry hook runs before every wait", func(t *testing.T) {
		s := &recordingSleeper{}
		var hooked []int
		r := New(
			WithSleeper(s.sleep),
			WithOnRetry(func(ctx context.Context, attempt int, err error) {
				hooked = append(hooked, attempt)
				assert.Len(t, s.waits, attempt-1)
			}),
		)
		_ = r.Do(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
		assert.Equal(t, []int{1, 2, 3, 4}, hooked)
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := New(WithMaxAttempts(5), WithInitialInterval(100*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})
}

func TestRetrier_Backoff(t *testing.T) {
	r := New(WithMaxInterval(10 * time.Second))
	assert.Equal(t, 1*time.Second, r.Backoff(1))
	assert.Equal(t, 2*time.Second, r.Backoff(2))
	assert.Equal(t, 8*time.Second, r.Backoff(4))
	assert.Equal(t, 10*time.Second, r.Backoff(5))
}

func TestRetrier_DoWithData(t *testing.T) {
	t.Run("success returns data", func(t *testing.T) {
		r := New()
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", val)
	})

	t.Run("fail returns error", func(t *testing.T) {
		r := New(WithMaxAttempts(2), WithInitialInterval(1*time.Millisecond))
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "", errors.New("fail")
		})
		assert.Error(t, err)
		assert.Empty(t, val)
	})
}
