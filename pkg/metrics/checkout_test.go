package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCheckoutMetrics(reg)
	metrics.ObserveTransition("persisting", "completed")
	metrics.IncPersistAttempt("retryable")
	metrics.IncPersistAttempt("retryable")
	metrics.IncCapture("")
	metrics.IncSideTaskFailure("email")
	metrics.ObservePersistDuration(300 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "checkout_transitions_total", "to", "completed"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected transitions=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_persist_attempts_total", "outcome", "retryable"); err != nil {
		t.Fatalf("fetch persist attempts: %v", err)
	} else if got != 2 {
		t.Fatalf("expected persist attempts=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_capture_total", "outcome", "unknown"); err != nil {
		t.Fatalf("fetch captures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected empty outcome to be labelled unknown, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_side_task_failures_total", "task", "email"); err != nil {
		t.Fatalf("fetch side task failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected side task failures=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "checkout_persist_duration_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("expected persist duration histogram")
	}
	if sum := mf.GetMetric()[0].GetHistogram().GetSampleSum(); sum <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", sum)
	}
}

func TestNilCheckoutMetricsIsSafe(t *testing.T) {
	var metrics *CheckoutMetrics
	metrics.ObserveTransition("idle", "awaiting_payment")
	metrics.IncCapture("ok")

	unregistered := NewCheckoutMetrics(nil)
	unregistered.IncPersistAttempt("ok")
	unregistered.ObservePersistDuration(time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
