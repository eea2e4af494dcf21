// Package executor submits lending operations with bounded exponential-backoff retry.
package executor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
	"github.com/vadiminshakov/mrgnlend/pkg/retrier"
)

// Submitter sends one operation to the remote ledger and returns the transaction id.
type Submitter func(ctx context.Context, req domain.OperationRequest) (string, error)

// Refresher reloads locally cached account state from the remote ledger.
type Refresher func(ctx context.Context) error

// Observer receives attempt and outcome notifications, e.g. for metrics.
type Observer interface {
	ObserveAttempt(kind domain.OperationKind, class domain.ErrorClass)
	ObserveRefreshFailure(kind domain.OperationKind)
	ObserveOutcome(kind domain.OperationKind, outcome domain.Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(domain.OperationKind, domain.ErrorClass) {}
func (nopObserver) ObserveRefreshFailure(domain.OperationKind) {}
func (nopObserver) ObserveOutcome(domain.OperationKind, domain.Outcome, time.Duration) {}

// Executor wraps a fallible submission with classification-driven retry.
// It is not safe for concurrent use; the client issues one operation at a time.
type Executor struct {
	logger    *zap.Logger
	refresh   Refresher
	observer  Observer
	retryOpts []retrier.Option
}

// Option configures the Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithRefresher sets the state refresh run before every attempt after the first.
func WithRefresher(r Refresher) Option {
	return func(e *Executor) {
		e.refresh = r
	}
}

// WithObserver sets the attempt/outcome observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithRetryOptions overrides the backoff policy.
func WithRetryOptions(opts ...retrier.Option) Option {
	return func(e *Executor) {
		e.retryOpts = append(e.retryOpts, opts...)
	}
}

// New creates an Executor. Defaults: 5 attempts, 1s initial wait doubling each time.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	return e
}

// Execute runs submit until it succeeds, fails with a non-retryable error,
// or the attempt budget is spent.
func (e *Executor) Execute(ctx context.Context, req domain.OperationRequest, submit Submitter) domain.Outcome {
	logger := e.logger.With(
		zap.String("operation_id", req.ID()),
		zap.String("kind", req.Kind().String()),
		zap.String("amount", req.Amount().String()),
		zap.String("pool", string(req.Target())),
	)

	var (
		attempts  int
		lastClass domain.ErrorClass
		txID      string
	)

	opts := append([]retrier.Option{}, e.retryOpts...)
	opts = append(opts,
		retrier.WithRetryIf(func(err error) bool {
			return ClassifyError(err).Retryable()
		}),
		retrier.WithOnRetry(func(ctx context.Context, attempt int, err error) {
			e.beforeRetry(ctx, logger, req, attempt)
		}),
	)
	r := retrier.New(opts...)

	start := time.Now()
	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		id, err := submit(ctx, req)
		if err != nil {
			lastClass = ClassifyError(err)
			e.observer.ObserveAttempt(req.Kind(), lastClass)
			logger.Warn("submission failed",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", r.MaxAttempts()),
				zap.String("class", lastClass.String()),
				zap.Error(err))
			return err
		}

		txID = id
		e.observer.ObserveAttempt(req.Kind(), domain.ClassNone)
		return nil
	})

	outcome := domain.Outcome{Attempts: attempts}
	switch {
	case err == nil:
		outcome.TxID = txID
		logger.Info("submission succeeded", zap.Int("attempts", attempts), zap.String("tx", txID))
	case isExhausted(err):
		outcome.Err = err
		outcome.Class = lastClass
		outcome.Exhausted = true
		logger.Error("retries exhausted", zap.Int("attempts", attempts), zap.Error(err))
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		outcome.Err = errors.Wrap(err, "operation interrupted")
		outcome.Class = domain.ClassNonRetryable
		logger.Warn("operation interrupted", zap.Int("attempts", attempts), zap.Error(err))
	default:
		outcome.Err = err
		outcome.Class = lastClass
		logger.Error("submission failed permanently", zap.Int("attempts", attempts), zap.Error(err))
	}

	e.observer.ObserveOutcome(req.Kind(), outcome, time.Since(start))
	return outcome
}

func (e *Executor) beforeRetry(ctx context.Context, logger *zap.Logger, req domain.OperationRequest, attempt int) {
	if e.refresh == nil {
		return
	}
	if err := e.refresh(ctx); err != nil {
		e.observer.ObserveRefreshFailure(req.Kind())
		logger.Warn("state refresh failed, retrying with stale state",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		return
	}
	logger.Debug("state refreshed before retry", zap.Int("attempt", attempt+1))
}

func isExhausted(err error) bool {
	var exhausted *retrier.ExhaustedError
	return errors.As(err, &exhausted)
}
