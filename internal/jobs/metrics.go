// Package jobmetrics instruments worker tasks.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook delivery results.
const (
	DeliveryDelivered = "delivered"
	DeliveryRejected  = "rejected"
	DeliverySkipped   = "skipped"
	DeliveryError     = "error"
)

// Metrics holds the worker collectors.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	deliveries *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors with registerer. A nil registerer
// shares one instance on the default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() { defaultMetrics = register(prometheus.DefaultRegisterer) })
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	f := promauto.With(registerer)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_jobs_total",
			Help: "Task executions by task type and outcome.",
		}, []string{"job", "outcome"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_jobs_failures_total",
			Help: "Failed task executions by task type and whether asynq retries them.",
		}, []string{"job", "retry"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_job_duration_seconds",
			Help:    "Task execution time.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_webhook_deliveries_total",
			Help: "Broadcast webhook deliveries by result.",
		}, []string{"result"}),
	}
}

// Tracker times one task execution.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job. It is safe on a nil receiver.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the execution and returns err unchanged so it can be used in a
// deferred assignment.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		retry := "true"
		if errors.Is(err, asynq.SkipRetry) {
			retry = "false"
		}
		t.metrics.failures.WithLabelValues(t.job, retry).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, outcome).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddWebhookDelivery counts one delivery attempt.
func (m *Metrics) AddWebhookDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}
