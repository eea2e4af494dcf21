package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

// Metrics tracks lending operation attempts and outcomes.
type Metrics struct {
	// AttemptsTotal counts submissions per operation kind and error class ("none" on success)
	AttemptsTotal *prometheus.CounterVec
	// OutcomesTotal counts final results per operation kind
	OutcomesTotal *prometheus.CounterVec
	// RefreshFailuresTotal counts best-effort state refreshes that failed between attempts
	RefreshFailuresTotal *prometheus.CounterVec
	// OperationDuration tracks wall time of an operation including backoff waits
	OperationDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mrgnlend_submission_attempts_total",
				Help: "Total number of transaction submission attempts",
			},
			[]string{"kind", "class"},
		),
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mrgnlend_operation_outcomes_total",
				Help: "Total number of finished lending operations",
			},
			[]string{"kind", "result"},
		),
		RefreshFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mrgnlend_refresh_failures_total",
				Help: "Total number of failed account refreshes between attempts",
			},
			[]string{"kind"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mrgnlend_operation_duration_seconds",
				Help:    "Lending operation duration in seconds, backoff included",
				Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.AttemptsTotal, m.OutcomesTotal, m.RefreshFailuresTotal, m.OperationDuration)
	}

	return m
}

// ObserveAttempt records one submission.
func (m *Metrics) ObserveAttempt(kind domain.OperationKind, class domain.ErrorClass) {
	m.AttemptsTotal.WithLabelValues(kind.String(), class.String()).Inc()
}

// ObserveRefreshFailure records a failed refresh.
func (m *Metrics) ObserveRefreshFailure(kind domain.OperationKind) {
	m.RefreshFailuresTotal.WithLabelValues(kind.String()).Inc()
}

// ObserveOutcome records the final result of an operation.
func (m *Metrics) ObserveOutcome(kind domain.OperationKind, outcome domain.Outcome, elapsed time.Duration) {
	m.OutcomesTotal.WithLabelValues(kind.String(), resultLabel(outcome)).Inc()
	m.OperationDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func resultLabel(o domain.Outcome) string {
	switch {
	case o.Succeeded():
		return "success"
	case o.Exhausted:
		return "exhausted"
	default:
		return "failed"
	}
}

// Serve exposes the gatherer on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics listener")
	}
	return nil
}
