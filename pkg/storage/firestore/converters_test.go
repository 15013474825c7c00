package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fitglue/heatmap/pkg/types"
)

func TestHeatmapStateConverters(t *testing.T) {
	// Firestore hands integers back as int64
	m := map[string]interface{}{
		"main_blob_name": "heatmap/mtb_v02.gpx",
		"compose_count":  int64(17),
		"version":        int64(2),
	}
	s := FirestoreToHeatmapState(m)
	assert.Equal(t, types.HeatmapState{MainBlobName: "heatmap/mtb_v02.gpx", ComposeCount: 17, Version: 2}, *s)

	out := HeatmapStateToFirestore(s)
	assert.Equal(t, 17, out["compose_count"])
}

func TestFirestoreToActivityIndex(t *testing.T) {
	idx := FirestoreToActivityIndex(map[string]interface{}{
		"dates": []interface{}{"2025-01-01T10:00:00Z", 42, "2025-01-02T10:00:00Z"},
	})
	assert.Equal(t, []string{"2025-01-01T10:00:00Z", "2025-01-02T10:00:00Z"}, idx.Dates)

	empty := FirestoreToActivityIndex(map[string]interface{}{})
	assert.Empty(t, empty.Dates)
}

func TestFirestoreToManifest(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := FirestoreToManifest(map[string]interface{}{
		"activities/a.fit": "2025-02-01T10:00:00Z",
		"activities/b.fit": ts,
		"activities/c.fit": 12,
	})
	assert.Equal(t, types.ProcessedManifest{
		"activities/a.fit": "2025-02-01T10:00:00Z",
		"activities/b.fit": "2025-03-01T12:00:00Z",
	}, *m)
}

func TestMessageToFirestore_OmitsEmptyError(t *testing.T) {
	m := MessageToFirestore(&types.MessageRecord{IdempotencyKey: "u1", Status: types.MessageStatusProcessing})
	_, ok := m["error"]
	assert.False(t, ok)

	m = MessageToFirestore(&types.MessageRecord{IdempotencyKey: "u1", Status: types.MessageStatusFailed, Error: "boom"})
	assert.Equal(t, "boom", m["error"])
}
