package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout state machine activity.
type CheckoutMetrics struct {
	transitions     *prometheus.CounterVec
	persistAttempts *prometheus.CounterVec
	persistDuration prometheus.Histogram
	captures        *prometheus.CounterVec
	sideTaskFailure *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_transitions_total",
		Help: "Checkout state transitions.",
	}, []string{"from", "to"})
	persistAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_persist_attempts_total",
		Help: "Order persistence attempts by outcome.",
	}, []string{"outcome"})
	persistDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_persist_duration_seconds",
		Help:    "Wall time spent persisting an order, retries included.",
		Buckets: prometheus.DefBuckets,
	})
	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_capture_total",
		Help: "Payment capture attempts by outcome.",
	}, []string{"outcome"})
	sideTaskFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_side_task_failures_total",
		Help: "Best-effort checkout side tasks that failed.",
	}, []string{"task"})
	reg.MustRegister(transitions, persistAttempts, persistDuration, captures, sideTaskFailure)
	return &CheckoutMetrics{
		transitions:     transitions,
		persistAttempts: persistAttempts,
		persistDuration: persistDuration,
		captures:        captures,
		sideTaskFailure: sideTaskFailure,
	}
}

// ObserveTransition counts a move between two checkout states.
func (m *CheckoutMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncPersistAttempt counts one order store attempt.
func (m *CheckoutMetrics) IncPersistAttempt(outcome string) {
	if m == nil || m.persistAttempts == nil {
		return
	}
	m.persistAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObservePersistDuration records the total time spent saving an order.
func (m *CheckoutMetrics) ObservePersistDuration(duration time.Duration) {
	if m == nil || m.persistDuration == nil {
		return
	}
	m.persistDuration.Observe(duration.Seconds())
}

// IncCapture counts a capture attempt.
func (m *CheckoutMetrics) IncCapture(outcome string) {
	if m == nil || m.captures == nil {
		return
	}
	m.captures.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncSideTaskFailure counts a failed best-effort task.
func (m *CheckoutMetrics) IncSideTaskFailure(task string) {
	if m == nil || m.sideTaskFailure == nil {
		return
	}
	m.sideTaskFailure.WithLabelValues(normalizeLabel(task)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
