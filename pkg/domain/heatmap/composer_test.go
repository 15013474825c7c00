package heatmap

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitglue/heatmap/pkg/domain/fitcsv"
	"github.com/fitglue/heatmap/pkg/domain/gpx"
	"github.com/fitglue/heatmap/pkg/testing/mocks"
	"github.com/fitglue/heatmap/pkg/types"
)

const bucket = "heatmap-bucket"

var rideStart = time.Date(2025, 9, 22, 7, 48, 49, 0, time.UTC)

func writeRide(t *testing.T, dir string, start time.Time) string {
	t.Helper()
	track := &types.Track{
		Name: "ride",
		Points: []types.TrackPoint{
			{Time: start, Latitude: 48.62, Longitude: 22.28},
			{Time: start.Add(time.Second), Latitude: 48.63, Longitude: 22.29},
		},
	}
	p := filepath.Join(dir, fmt.Sprintf("ride_%d.gpx", start.Unix()))
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, gpx.Write(f, track, ""))
	return p
}

func newComposer() (*Composer, *mocks.MemoryBlobStore, *mocks.MemoryDatabase) {
	blobs := mocks.NewMemoryBlobStore()
	db := mocks.NewMemoryDatabase()
	return NewComposer(blobs, db, bucket, nil), blobs, db
}

func TestBlobName(t *testing.T) {
	assert.Equal(t, "heatmap/mtb_v00.gpx", BlobName(fitcsv.BikeMTB, 0))
	assert.Equal(t, "heatmap/gravel_v12.gpx", BlobName(fitcsv.BikeGravel, 12))
	assert.Equal(t, "heatmap/fragments/ride.gpx", FragmentName("/tmp/ride.gpx"))
}

func TestMerge_FirstActivityCreatesHeatmap(t *testing.T) {
	c, blobs, db := newComposer()
	dir := t.TempDir()

	outcome, err := c.Merge(context.Background(), writeRide(t, dir, rideStart), fitcsv.BikeMTB)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, outcome)

	state := db.States["mtb"]
	assert.Equal(t, types.HeatmapState{MainBlobName: "heatmap/mtb_v00.gpx", ComposeCount: 1, Version: 0}, state)
	assert.Equal(t, []string{"2025-09-22T07:48:49Z"}, db.Indexes["mtb"])

	data, ok := blobs.Get(bucket, "heatmap/mtb_v00.gpx")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(string(data), gpx.Header("")))
	assert.Contains(t, string(data), "<trk>")
	assert.NotContains(t, string(data), "</gpx>")

	// fragment cleaned up
	assert.Equal(t, []string{"heatmap/mtb_v00.gpx"}, blobs.Objects(bucket))
}

func TestMerge_DuplicateIsNoop(t *testing.T) {
	c, blobs, db := newComposer()
	dir := t.TempDir()

	_, err := c.Merge(context.Background(), writeRide(t, dir, rideStart), fitcsv.BikeGravel)
	require.NoError(t, err)
	before, _ := blobs.Get(bucket, "heatmap/gravel_v00.gpx")
	opsBefore := len(blobs.Ops)

	outcome, err := c.Merge(context.Background(), writeRide(t, dir, rideStart), fitcsv.BikeGravel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.False(t, outcome.Changed())

	after, _ := blobs.Get(bucket, "heatmap/gravel_v00.gpx")
	assert.Equal(t, before, after)
	assert.Len(t, blobs.Ops, opsBefore)
	assert.Equal(t, 1, db.States["gravel"].ComposeCount)
	assert.Len(t, db.Indexes["gravel"], 1)
}

func TestMerge_NoTimestampIsNoop(t *testing.T) {
	c, blobs, db := newComposer()
	p := filepath.Join(t.TempDir(), "notime.gpx")
	require.NoError(t, os.WriteFile(p, []byte(`<?xml version="1.0"?>`+"\n<gpx>\n<trk><trkseg><trkpt lat=\"1\" lon=\"2\"/></trkseg></trk>\n</gpx>\n"), 0o600))

	outcome, err := c.Merge(context.Background(), p, fitcsv.BikeMTB)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoTimestamp, outcome)
	assert.Empty(t, blobs.Ops)
	assert.Empty(t, db.States)
	assert.Empty(t, db.Indexes)
}

func TestMerge_UnknownModelIsNoop(t *testing.T) {
	c, blobs, db := newComposer()

	outcome, err := c.Merge(context.Background(), writeRide(t, t.TempDir(), rideStart), fitcsv.BikeUnknown)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownModel, outcome)
	assert.Empty(t, blobs.Ops)
	assert.Empty(t, db.States)
}

func TestMerge_RollsOverAtMaxCompose(t *testing.T) {
	c, blobs, db := newComposer()
	db.States["mtb"] = types.HeatmapState{MainBlobName: "heatmap/mtb_v03.gpx", ComposeCount: MaxCompose - 1, Version: 3}
	blobs.Put(bucket, "heatmap/mtb_v03.gpx", []byte(gpx.Header("")))

	outcome, err := c.Merge(context.Background(), writeRide(t, t.TempDir(), rideStart), fitcsv.BikeMTB)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRolledOver, outcome)

	assert.Equal(t, types.HeatmapState{MainBlobName: "heatmap/mtb_v04.gpx", ComposeCount: 1, Version: 4}, db.States["mtb"])
	assert.Equal(t, []string{"heatmap/mtb_v04.gpx"}, blobs.Objects(bucket))

	data, _ := blobs.Get(bucket, "heatmap/mtb_v04.gpx")
	assert.Contains(t, string(data), "<trk>")
	assert.Contains(t, blobs.Ops, "compose heatmap/mtb_v04.gpx <- heatmap/mtb_v03.gpx")
}

// flakyStateDB fails the next SetHeatmapState call when failNext is set.
type flakyStateDB struct {
	*mocks.MemoryDatabase
	failNext bool
}

func (f *flakyStateDB) SetHeatmapState(ctx context.Context, model string, state *types.HeatmapState) error {
	if f.failNext {
		f.failNext = false
		return errors.New("firestore deadline exceeded")
	}
	return f.MemoryDatabase.SetHeatmapState(ctx, model, state)
}

func TestMerge_RolloverRetryAfterStateFailureKeepsTracks(t *testing.T) {
	blobs := mocks.NewMemoryBlobStore()
	db := &flakyStateDB{MemoryDatabase: mocks.NewMemoryDatabase()}
	c := NewComposer(blobs, db, bucket, nil)
	dir := t.TempDir()

	for i := 0; i < MaxCompose-1; i++ {
		_, err := c.Merge(context.Background(), writeRide(t, dir, rideStart.Add(time.Duration(i)*time.Hour)), fitcsv.BikeMTB)
		require.NoError(t, err)
	}
	require.Equal(t, MaxCompose-1, db.States["mtb"].ComposeCount)

	last := rideStart.Add(time.Duration(MaxCompose-1) * time.Hour)
	db.failNext = true
	_, err := c.Merge(context.Background(), writeRide(t, dir, last), fitcsv.BikeMTB)
	require.Error(t, err)

	// The previous version survives a failed state write.
	assert.Equal(t, "heatmap/mtb_v00.gpx", db.States["mtb"].MainBlobName)
	_, ok := blobs.Get(bucket, "heatmap/mtb_v00.gpx")
	assert.True(t, ok)

	outcome, err := c.Merge(context.Background(), writeRide(t, dir, last), fitcsv.BikeMTB)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRolledOver, outcome)

	assert.Equal(t, types.HeatmapState{MainBlobName: "heatmap/mtb_v01.gpx", ComposeCount: 1, Version: 1}, db.States["mtb"])
	assert.Len(t, db.Indexes["mtb"], MaxCompose)
	assert.Equal(t, []string{"heatmap/mtb_v01.gpx"}, blobs.Objects(bucket))

	data, _ := blobs.Get(bucket, "heatmap/mtb_v01.gpx")
	assert.Equal(t, MaxCompose, strings.Count(string(data), "<trk>"))
}

func TestMerge_RolloverDeletesOldVersionAfterStateSaved(t *testing.T) {
	c, blobs, db := newComposer()
	db.States["mtb"] = types.HeatmapState{MainBlobName: "heatmap/mtb_v00.gpx", ComposeCount: MaxCompose - 1, Version: 0}
	blobs.Put(bucket, "heatmap/mtb_v00.gpx", []byte(gpx.Header("")))

	_, err := c.Merge(context.Background(), writeRide(t, t.TempDir(), rideStart), fitcsv.BikeMTB)
	require.NoError(t, err)

	var rollover, deleteOld int
	for i, op := range blobs.Ops {
		switch op {
		case "compose heatmap/mtb_v01.gpx <- heatmap/mtb_v00.gpx":
			rollover = i
		case "delete heatmap/mtb_v00.gpx":
			deleteOld = i
		}
	}
	assert.Greater(t, deleteOld, rollover)
}

func TestMerge_BelowLimitDoesNotRollOver(t *testing.T) {
	c, blobs, db := newComposer()
	db.States["mtb"] = types.HeatmapState{MainBlobName: "heatmap/mtb_v00.gpx", ComposeCount: MaxCompose - 2, Version: 0}
	blobs.Put(bucket, "heatmap/mtb_v00.gpx", []byte(gpx.Header("")))

	outcome, err := c.Merge(context.Background(), writeRide(t, t.TempDir(), rideStart), fitcsv.BikeMTB)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, outcome)
	assert.Equal(t, types.HeatmapState{MainBlobName: "heatmap/mtb_v00.gpx", ComposeCount: MaxCompose - 1, Version: 0}, db.States["mtb"])
}

func TestMerge_ManyActivitiesStayUnderLimit(t *testing.T) {
	c, blobs, db := newComposer()
	dir := t.TempDir()

	n := 2*MaxCompose + 5
	for i := 0; i < n; i++ {
		outcome, err := c.Merge(context.Background(), writeRide(t, dir, rideStart.Add(time.Duration(i)*time.Hour)), fitcsv.BikeGravel)
		require.NoError(t, err)
		require.True(t, outcome.Changed())
		require.Less(t, db.States["gravel"].ComposeCount, MaxCompose)
	}

	state := db.States["gravel"]
	assert.Equal(t, 2, state.Version)
	assert.Equal(t, BlobName(fitcsv.BikeGravel, 2), state.MainBlobName)
	assert.Len(t, db.Indexes["gravel"], n)
	assert.Equal(t, []string{state.MainBlobName}, blobs.Objects(bucket))

	data, _ := blobs.Get(bucket, state.MainBlobName)
	assert.Equal(t, n, strings.Count(string(data), "<trk>"))

	sealed := filepath.Join(dir, "heatmap.gpx")
	require.NoError(t, os.WriteFile(sealed, data, 0o600))
	_, err := gpx.EnsureClosed(sealed)
	require.NoError(t, err)
	sealedData, err := os.ReadFile(sealed)
	require.NoError(t, err)

	var doc struct {
		Tracks []struct{} `xml:"trk"`
	}
	require.NoError(t, xml.Unmarshal(sealedData, &doc))
	assert.Len(t, doc.Tracks, n)
}

func TestMerge_ComposeFailureLeavesStateUntouched(t *testing.T) {
	c, blobs, db := newComposer()
	blobs.FailOn["compose"] = errors.New("backend unavailable")

	_, err := c.Merge(context.Background(), writeRide(t, t.TempDir(), rideStart), fitcsv.BikeMTB)
	require.Error(t, err)
	assert.Empty(t, db.States)
	assert.Empty(t, db.Indexes)
}

func TestMerge_StateLoadError(t *testing.T) {
	db := &mocks.MockDatabase{
		GetHeatmapStateFunc: func(ctx context.Context, model string) (*types.HeatmapState, error) {
			return nil, errors.New("firestore down")
		},
	}
	blobs := mocks.NewMemoryBlobStore()
	c := NewComposer(blobs, db, bucket, nil)

	_, err := c.Merge(context.Background(), writeRide(t, t.TempDir(), rideStart), fitcsv.BikeMTB)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firestore down")
	assert.Empty(t, blobs.Ops)
}

func TestMerge_StateWrittenBeforeIndex(t *testing.T) {
	var calls []string
	db := &mocks.MockDatabase{
		SetHeatmapStateFunc: func(ctx context.Context, model string, state *types.HeatmapState) error {
			calls = append(calls, "state")
			return nil
		},
		AddActivityDateFunc: func(ctx context.Context, model string, date string) error {
			calls = append(calls, "index:"+date)
			return nil
		},
	}
	c := NewComposer(mocks.NewMemoryBlobStore(), db, bucket, nil)

	_, err := c.Merge(context.Background(), writeRide(t, t.TempDir(), rideStart), fitcsv.BikeMTB)
	require.NoError(t, err)
	assert.Equal(t, []string{"state", "index:2025-09-22T07:48:49Z"}, calls)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "merged", OutcomeMerged.String())
	assert.Equal(t, "rolled_over", OutcomeRolledOver.String())
	assert.Equal(t, "duplicate", OutcomeDuplicate.String())
	assert.Equal(t, "no_timestamp", OutcomeNoTimestamp.String())
	assert.Equal(t, "unknown_model", OutcomeUnknownModel.String())
}
