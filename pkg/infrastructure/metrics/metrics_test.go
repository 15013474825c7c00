package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCleanerFixes(t *testing.T) {
	beforeLat := testutil.ToFloat64(cleanerFixes.WithLabelValues("latitude"))
	beforeSerial := testutil.ToFloat64(cleanerFixes.WithLabelValues("serial"))

	RecordCleanerFixes(3, 0)
	RecordCleanerFixes(0, 2)

	assert.Equal(t, beforeLat+3, testutil.ToFloat64(cleanerFixes.WithLabelValues("latitude")))
	assert.Equal(t, beforeSerial+2, testutil.ToFloat64(cleanerFixes.WithLabelValues("serial")))
}

func TestRecordRun(t *testing.T) {
	beforeOK := testutil.ToFloat64(runCounter.WithLabelValues("private", "ok"))
	beforeErr := testutil.ToFloat64(runCounter.WithLabelValues("private", "error"))

	RecordRun("private", nil)
	RecordRun("private", errors.New("boom"))

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(runCounter.WithLabelValues("private", "ok")))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(runCounter.WithLabelValues("private", "error")))
}

func TestRecordComposeOutcome(t *testing.T) {
	before := testutil.ToFloat64(composeOutcomes.WithLabelValues("mtb", "merged"))
	RecordComposeOutcome("mtb", "merged")
	assert.Equal(t, before+1, testutil.ToFloat64(composeOutcomes.WithLabelValues("mtb", "merged")))
}

func TestObserveStage(t *testing.T) {
	ObserveStage("decode", 120*time.Millisecond, nil)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(stageDuration, "heatmap_pipeline_stage_duration_seconds"), 1)
}

func TestRecordSyncSuccess(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	RecordSyncSuccess(ts)
	RecordSyncSuccess(time.Time{})
	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastSyncGauge))
}
