package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockledger"

// Metrics exposes ledger-level instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	submissions      *prometheus.CounterVec
	submitDuration   *prometheus.HistogramVec
	staleRetries     prometheus.Counter
	storageRetries   *prometheus.CounterVec
	applyFailures    prometheus.Counter
	reconciliations  *prometheus.CounterVec
	reconcileLatency prometheus.Histogram
}

// NewMetrics registers the instruments on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submitted operations by transaction kind and outcome.",
		}, []string{"kind", "outcome"}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time spent in submit, including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		staleRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_version_retries_total",
			Help:      "Validate-and-apply attempts restarted after a stale read.",
		}),
		storageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_storage_retries_total",
			Help:      "Ledger storage operations retried after a transient failure.",
		}, []string{"op"}),
		applyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregator_apply_failures_total",
			Help:      "Committed movements that could not be applied to the stock projection.",
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciled stock keys by status.",
		}, []string{"status"}),
		reconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time to reconcile one product.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.submissions,
		m.submitDuration,
		m.staleRetries,
		m.storageRetries,
		m.applyFailures,
		m.reconciliations,
		m.reconcileLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RecordSubmission(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
	m.submitDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordStaleRetry() {
	if m == nil {
		return
	}
	m.staleRetries.Inc()
}

func (m *Metrics) RecordStorageRetry(op string) {
	if m == nil {
		return
	}
	m.storageRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordApplyFailure() {
	if m == nil {
		return
	}
	m.applyFailures.Inc()
}

func (m *Metrics) RecordReconciliation(status string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveReconcile(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconcileLatency.Observe(elapsed.Seconds())
}
