package fit_parser

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitglue/heatmap/pkg/domain/file_generators"
	"github.com/fitglue/heatmap/pkg/types"
)

var rideStart = time.Date(2025, 9, 22, 7, 48, 49, 0, time.UTC)

func encode(t *testing.T, msgs ...proto.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, encoder.New(&buf).Encode(&proto.FIT{Messages: msgs}))
	return buf.Bytes()
}

func TestParseFitFile_GeneratedRide(t *testing.T) {
	alt := 150.0
	data, err := file_generators.GenerateFitFile(&types.Track{
		Name:  "Uzhhorod loop",
		Sport: "cycling",
		Points: []types.TrackPoint{
			{Time: rideStart, Latitude: 48.6201, Longitude: 22.2879, Altitude: &alt},
			{Time: rideStart.Add(time.Second), Latitude: 48.6203, Longitude: 22.2884},
			{Time: rideStart.Add(2 * time.Second), Latitude: -33.8688, Longitude: 151.2093},
		},
	})
	require.NoError(t, err)

	track, err := ParseFitFile(data)
	require.NoError(t, err)

	assert.Equal(t, "Uzhhorod loop", track.Name)
	assert.Equal(t, "cycling", track.Sport)
	assert.True(t, rideStart.Equal(track.StartTime))
	require.Len(t, track.Points, 3)

	assert.InDelta(t, 48.6201, track.Points[0].Latitude, 1e-6)
	assert.InDelta(t, 22.2879, track.Points[0].Longitude, 1e-6)
	require.NotNil(t, track.Points[0].Altitude)
	assert.InDelta(t, 150.0, *track.Points[0].Altitude, 0.2)
	assert.Nil(t, track.Points[1].Altitude)
	assert.InDelta(t, -33.8688, track.Points[2].Latitude, 1e-6)
}

func TestParseFitFile_SkipsRecordsWithoutPosition(t *testing.T) {
	data := encode(t,
		mesgdef.NewFileId(nil).SetType(typedef.FileActivity).SetTimeCreated(rideStart).ToMesg(nil),
		mesgdef.NewRecord(nil).SetTimestamp(rideStart).SetHeartRate(120).ToMesg(nil),
		mesgdef.NewRecord(nil).SetTimestamp(rideStart.Add(time.Second)).
			SetPositionLat(580333330).SetPositionLong(385432325).ToMesg(nil),
	)

	track, err := ParseFitFile(data)
	require.NoError(t, err)
	require.Len(t, track.Points, 1)
	assert.True(t, rideStart.Add(time.Second).Equal(track.Points[0].Time))
	assert.Equal(t, "activity 2025-09-22 07:48", track.Name)
}

func TestParseFitFile_Empty(t *testing.T) {
	_, err := ParseFitFile(nil)
	assert.Error(t, err)
}

func TestParseFitFile_Garbage(t *testing.T) {
	_, err := ParseFitFile([]byte("definitely not a FIT file"))
	assert.Error(t, err)
}

func TestValidateHeader(t *testing.T) {
	activity := encode(t,
		mesgdef.NewFileId(nil).SetType(typedef.FileActivity).SetTimeCreated(rideStart).ToMesg(nil),
	)
	require.NoError(t, ValidateHeader(bytes.NewReader(activity)))

	course := encode(t,
		mesgdef.NewFileId(nil).SetType(typedef.FileCourse).SetTimeCreated(rideStart).ToMesg(nil),
	)
	err := ValidateHeader(bytes.NewReader(course))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotActivity))

	assert.Error(t, ValidateHeader(bytes.NewReader([]byte("not fit"))))
}
