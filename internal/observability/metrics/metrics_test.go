package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(Config{ServiceName: "subkit", Environment: "test"}, reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	second, err := New(Config{ServiceName: "subkit", Environment: "test"}, reg)
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}

	first.RecordSubscriptionOp("create", nil)
	second.RecordSubscriptionOp("create", nil)
	first.RecordSubscriptionOp("create", errors.New("boom"))

	if got := testutil.ToFloat64(first.subscriptionOps.WithLabelValues("create", OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok operations, got %v", got)
	}
	if got := testutil.ToFloat64(first.subscriptionOps.WithLabelValues("create", OutcomeError)); got != 1 {
		t.Fatalf("expected 1 failed operation, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSubscriptionOp("cancel", nil)
	m.RecordWebhookEvent("subscription_deleted", OutcomeOK)
	m.RecordNotification("welcome", OutcomeError)
	m.ObserveProcessorCall("create_customer", time.Now(), nil)
	m.RecordJobRun("reconcile_sweep", nil)
	m.RecordReconciled("sweep", 3)
}
