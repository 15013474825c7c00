// Package metrics holds the Prometheus collectors of the activity pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "heatmap",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages by outcome.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage", "status"})

	runCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatmap",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs grouped by style and status.",
	}, []string{"style", "status"})

	cleanerFixes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatmap",
		Subsystem: "cleaner",
		Name:      "fixes_total",
		Help:      "Record lines corrected by the cleaner, by fix kind.",
	}, []string{"kind"})

	composeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatmap",
		Subsystem: "composer",
		Name:      "outcomes_total",
		Help:      "Heatmap merge outcomes per bike model.",
	}, []string{"model", "outcome"})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "heatmap",
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent sync run without failures.",
	})
)

func init() {
	prometheus.MustRegister(stageDuration, runCounter, cleanerFixes, composeOutcomes, lastSyncGauge)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration, err error) {
	stageDuration.WithLabelValues(stage, status(err)).Observe(d.Seconds())
}

// RecordRun counts a finished pipeline run.
func RecordRun(style string, err error) {
	runCounter.WithLabelValues(style, status(err)).Inc()
}

// RecordCleanerFixes adds latitude and serial fix counts.
func RecordCleanerFixes(latitude, serial int) {
	if latitude > 0 {
		cleanerFixes.WithLabelValues("latitude").Add(float64(latitude))
	}
	if serial > 0 {
		cleanerFixes.WithLabelValues("serial").Add(float64(serial))
	}
}

// RecordComposeOutcome counts a heatmap merge outcome.
func RecordComposeOutcome(model, outcome string) {
	composeOutcomes.WithLabelValues(model, outcome).Inc()
}

// RecordSyncSuccess updates the sync watermark gauge.
func RecordSyncSuccess(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}
