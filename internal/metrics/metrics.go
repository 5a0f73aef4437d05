// Package metrics exposes Prometheus instrumentation for reconciliation
// runs. All metrics use the mediavault_ prefix.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements reconcile.Metrics on top of Prometheus collectors.
type Metrics struct {
	// RunsTotal counts reconciliation runs by action and mode.
	RunsTotal *prometheus.CounterVec

	// RunDuration tracks run latency by action.
	RunDuration *prometheus.HistogramVec

	// OrphansDetected is the last detected orphan count per category.
	OrphansDetected *prometheus.GaugeVec

	// RecordsCleaned counts deleted records by category.
	RecordsCleaned *prometheus.CounterVec

	// StorageFreedBytes counts bytes reclaimed from the blob store.
	StorageFreedBytes prometheus.Counter
}

// New creates the collectors and registers them with reg (typically
// prometheus.DefaultRegisterer). Panics if registration fails; this is
// expected during initialization only.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediavault_runs_total",
				Help: "Total reconciliation runs by action and mode",
			},
			[]string{"action", "mode"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediavault_run_duration_seconds",
				Help:    "Reconciliation run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		OrphansDetected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mediavault_orphans_detected",
				Help: "Orphans found by the last detection run, per category",
			},
			[]string{"category"},
		),
		RecordsCleaned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediavault_records_cleaned_total",
				Help: "Records removed by cleanup runs, per category",
			},
			[]string{"category"},
		),
		StorageFreedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mediavault_storage_freed_bytes_total",
				Help: "Bytes reclaimed from the blob store by cleanup runs",
			},
		),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.OrphansDetected,
		m.RecordsCleaned,
		m.StorageFreedBytes,
	)
	return m
}

// ObserveRun records one completed run.
func (m *Metrics) ObserveRun(action string, dryRun bool, duration time.Duration) {
	mode := "real"
	if dryRun {
		mode = "dry_run"
	}
	m.RunsTotal.WithLabelValues(action, mode).Inc()
	m.RunDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveOrphans records the detected count for one category.
func (m *Metrics) ObserveOrphans(categoryType string, count int) {
	m.OrphansDetected.WithLabelValues(categoryType).Set(float64(count))
}

// ObserveCleaned records deletions for one category.
func (m *Metrics) ObserveCleaned(categoryType string, deleted int64) {
	m.RecordsCleaned.WithLabelValues(categoryType).Add(float64(deleted))
}

// ObserveStorageFreed records reclaimed bytes.
func (m *Metrics) ObserveStorageFreed(bytes int64) {
	if bytes > 0 {
		m.StorageFreedBytes.Add(float64(bytes))
	}
}
