package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.RecordSubmission("sale", "committed", 10*time.Millisecond)
	m.RecordSubmission("sale", "committed", 5*time.Millisecond)
	m.RecordSubmission("sale", "insufficient_stock", time.Millisecond)
	m.RecordStaleRetry()
	m.RecordReconciliation("drift_detected")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("sale", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("sale", "insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliations.WithLabelValues("drift_detected")))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSubmission("sale", "committed", time.Millisecond)
		m.RecordStaleRetry()
		m.RecordStorageRetry("append")
		m.RecordApplyFailure()
		m.RecordReconciliation("consistent")
		m.ObserveReconcile(time.Millisecond)
	})
}

func TestNewTracerProvider_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := NewTracerProvider(context.Background(), TracingConfig{ServiceName: "stockledger"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
