package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	// Double registration must panic, not silently alias collectors.
	assert.Panics(t, func() { New(reg) })
}

func TestObserveRun(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveRun("cleanup", true, 2*time.Second)
	m.ObserveRun("cleanup", false, time.Second)
	m.ObserveRun("cleanup", false, time.Second)
	m.ObserveRun("detect", false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("cleanup", "dry_run")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("cleanup", "real")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("detect", "real")))
}

func TestObserveOrphans(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveOrphans("orphaned_storage_files", 12)
	assert.Equal(t, 12.0, testutil.ToFloat64(m.OrphansDetected.WithLabelValues("orphaned_storage_files")))

	// Gauge tracks the latest run, not a running total.
	m.ObserveOrphans("orphaned_storage_files", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OrphansDetected.WithLabelValues("orphaned_storage_files")))
}

func TestObserveCleaned(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveCleaned("orphaned_analytics", 5)
	m.ObserveCleaned("orphaned_analytics", 2)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.RecordsCleaned.WithLabelValues("orphaned_analytics")))
}

func TestObserveStorageFreed(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveStorageFreed(1024)
	m.ObserveStorageFreed(0)
	m.ObserveStorageFreed(-5) // never decrement a counter
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.StorageFreedBytes))
}
