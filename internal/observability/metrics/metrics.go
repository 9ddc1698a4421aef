package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) constLabels() prometheus.Labels {
	service := strings.TrimSpace(c.ServiceName)
	if service == "" {
		service = "subkit"
	}
	env := strings.TrimSpace(c.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}

// Metrics exposes billing-domain instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	subscriptionOps  *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	processorLatency *prometheus.HistogramVec
	jobRuns          *prometheus.CounterVec
	reconciled       *prometheus.CounterVec
}

func New(cfg Config, registerer prometheus.Registerer) (*Metrics, error) {
	labels := cfg.constLabels()
	m := &Metrics{
		subscriptionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subkit_subscription_operations_total",
			Help:        "Client-initiated subscription operations by outcome.",
			ConstLabels: labels,
		}, []string{"operation", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subkit_webhook_events_total",
			Help:        "Inbound processor events by kind and outcome.",
			ConstLabels: labels,
		}, []string{"kind", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subkit_notifications_total",
			Help:        "Notification delivery attempts by kind and outcome.",
			ConstLabels: labels,
		}, []string{"kind", "outcome"}),
		processorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "subkit_processor_request_duration_seconds",
			Help:        "Latency of payment processor API calls.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: labels,
		}, []string{"operation", "outcome"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subkit_scheduler_job_runs_total",
			Help:        "Background job runs by name and outcome.",
			ConstLabels: labels,
		}, []string{"job", "outcome"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subkit_reconciled_subscriptions_total",
			Help:        "Subscriptions repaired by the reconciliation sweep.",
			ConstLabels: labels,
		}, []string{"source"}),
	}

	var err error
	if m.subscriptionOps, err = register(registerer, m.subscriptionOps); err != nil {
		return nil, err
	}
	if m.webhookEvents, err = register(registerer, m.webhookEvents); err != nil {
		return nil, err
	}
	if m.notifications, err = register(registerer, m.notifications); err != nil {
		return nil, err
	}
	if m.processorLatency, err = register(registerer, m.processorLatency); err != nil {
		return nil, err
	}
	if m.jobRuns, err = register(registerer, m.jobRuns); err != nil {
		return nil, err
	}
	if m.reconciled, err = register(registerer, m.reconciled); err != nil {
		return nil, err
	}
	return m, nil
}

// register reuses an already registered collector of the same shape.
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	if registerer == nil {
		return c, nil
	}
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

func (m *Metrics) RecordSubscriptionOp(operation string, err error) {
	if m == nil {
		return
	}
	m.subscriptionOps.WithLabelValues(operation, Outcome(err)).Inc()
}

func (m *Metrics) RecordWebhookEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveProcessorCall(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.processorLatency.WithLabelValues(operation, Outcome(err)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RecordJobRun(job string, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, Outcome(err)).Inc()
}

func (m *Metrics) RecordReconciled(source string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reconciled.WithLabelValues(source).Add(float64(count))
}
