// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tickerlab"

var (
	// AnalysisRuns counts finished analyzer runs.
	// Labels: mode (sync, async, scheduled), outcome (succeeded, failed, timeout)
	AnalysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Total analyzer runs by mode and outcome",
	}, []string{"mode", "outcome"})

	// AnalysisDuration measures analyzer wall time.
	// Labels: mode
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Analyzer run duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300, 450, 600},
	}, []string{"mode"})

	// JobsEnqueued counts jobs pushed on the analysis queue.
	// Labels: mode (async, scheduled)
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Total analysis jobs enqueued",
	}, []string{"mode"})

	// JobsInFlight tracks jobs currently held by workers
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "in_flight",
		Help:      "Analysis jobs currently running on workers",
	})

	// IngestedRows counts ingested rows by kind and result.
	// Labels: kind (price, forecast, image), result (persisted, skipped, rejected)
	IngestedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "rows_total",
		Help:      "Total ingested rows by kind and result",
	}, []string{"kind", "result"})
)
