package retrier

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxAttempts     = 5
	defaultJitter          = 0.0
)

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier implements bounded exponential backoff with optional jitter.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxAttempts     int
	jitter          float64
	retryIf         func(err error) bool
	onRetry         func(ctx context.Context, attempt int, err error)
	sleep           Sleeper
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the wait after the first failed attempt.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps a single wait.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxAttempts sets the total number of attempts, the first one included.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		r.maxAttempts = n
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// WithRetryIf sets the predicate deciding whether an error is worth another attempt.
// Errors rejected by the predicate are returned as is, without waiting.
func WithRetryIf(fn func(err error) bool) Option {
	return func(r *Retrier) {
		r.retryIf = fn
	}
}

// WithOnRetry registers a hook invoked after a retryable failure, before the backoff wait.
// attempt is the number of the attempt that just failed.
func WithOnRetry(fn func(ctx context.Context, attempt int, err error)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// WithSleeper replaces the wait implementation.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) {
		r.sleep = s
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxAttempts:     defaultMaxAttempts,
		jitter:          defaultJitter,
		retryIf:         func(error) bool { return true },
		sleep:           sleepContext,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}

	return r
}

// MaxAttempts returns the configured attempt budget.
func (r *Retrier) MaxAttempts() int {
	return r.maxAttempts
}

// Backoff returns the wait that follows the given failed attempt (1-based), jitter excluded.
func (r *Retrier) Backoff(attempt int) time.Duration {
	interval := r.initialInterval
	for i := 1; i < attempt; i++ {
		interval = time.Duration(float64(interval) * r.multiplier)
		if interval > r.maxInterval {
			return r.maxInterval
		}
	}

	return interval
}

// Do executes the given function with retries.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if !r.retryIf(err) {
			return err
		}

		if attempt == r.maxAttempts {
			break
		}

		if r.onRetry != nil {
			r.onRetry(ctx, attempt, err)
		}

		interval := r.Backoff(attempt)
		jitter := (rand.Float64()*2 - 1) * r.jitter * float64(interval)
		sleepDuration := time.Duration(float64(interval) + jitter)

		if sleepDuration < 0 {
			sleepDuration = 0
		}

		if serr := r.sleep(ctx, sleepDuration); serr != nil {
			return serr
		}
	}

	return &ExhaustedError{Attempts: r.maxAttempts, Err: err}
}

// DoWithData executes the given function with retries and returns a value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
