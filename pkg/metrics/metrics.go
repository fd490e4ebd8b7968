// Package metrics provides Prometheus metrics for the canonicalization
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks pipeline runs by final status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canon",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		},
		[]string{"status"},
	)

	// RunDuration tracks full run duration in seconds
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "canon",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// StageDuration tracks per-stage duration in seconds
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "canon",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// PayloadsConsidered tracks payloads considered in the last run
	PayloadsConsidered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "canon",
			Subsystem: "pipeline",
			Name:      "payloads_considered",
			Help:      "Number of payloads considered in the last run",
		},
	)

	// DuplicatesRemoved tracks duplicates removed in the last run
	DuplicatesRemoved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "canon",
			Subsystem: "dedup",
			Name:      "duplicates_removed",
			Help:      "Number of duplicate payloads removed in the last run",
		},
	)

	// InvalidExcluded tracks invalid payloads excluded in the last run
	InvalidExcluded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "canon",
			Subsystem: "dedup",
			Name:      "invalid_excluded",
			Help:      "Number of invalid payloads excluded in the last run",
		},
	)

	// GeometryExcluded tracks transactions excluded by the geometry rule
	GeometryExcluded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "canon",
			Subsystem: "geo",
			Name:      "geometry_excluded",
			Help:      "Number of transactions excluded by the zero-trust geometry rule in the last run",
		},
	)

	// SubstitutionsFound tracks substitution events detected in the last run
	SubstitutionsFound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "canon",
			Subsystem: "substitution",
			Name:      "events_found",
			Help:      "Number of substitution events detected in the last run",
		},
	)

	// AvgQualityScore tracks the mean quality score of the last run
	AvgQualityScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "canon",
			Subsystem: "quality",
			Name:      "avg_score",
			Help:      "Average quality score of the last committed canonical set",
		},
	)

	// TransactionsCommitted tracks canonical transactions committed per run
	TransactionsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canon",
			Subsystem: "pipeline",
			Name:      "transactions_committed_total",
			Help:      "Total canonical transactions committed across runs",
		},
	)
)

// RecordRun records the outcome of a pipeline run
func RecordRun(status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(durationSeconds)
}

// RecordStage records a completed pipeline stage
func RecordStage(stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}
