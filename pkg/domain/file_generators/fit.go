package file_generators

import (
	"bytes"
	"fmt"
	"math"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/fitglue/heatmap/pkg/types"
)

var sports = map[string]typedef.Sport{
	"cycling": typedef.SportCycling,
	"running": typedef.SportRunning,
	"walking": typedef.SportWalking,
	"hiking":  typedef.SportHiking,
}

// GenerateFitFile encodes a Track as a FIT activity file with one session.
// It is used to produce sample rides for local runs and tests.
func GenerateFitFile(track *types.Track) ([]byte, error) {
	if track == nil {
		return nil, fmt.Errorf("track cannot be nil")
	}
	if len(track.Points) == 0 {
		return nil, fmt.Errorf("track must have at least one point")
	}

	startTime := track.StartTime
	if startTime.IsZero() {
		startTime = track.Points[0].Time
	}
	endTime := track.Points[len(track.Points)-1].Time

	sport, ok := sports[track.Sport]
	if !ok {
		sport = typedef.SportGeneric
	}

	fit := &proto.FIT{
		Messages: []proto.Message{},
	}

	// 1. FileId message
	fileId := mesgdef.NewFileId(nil).
		SetType(typedef.FileActivity).
		SetManufacturer(typedef.ManufacturerDevelopment).
		SetProduct(1).
		SetTimeCreated(startTime)
	fit.Messages = append(fit.Messages, fileId.ToMesg(nil))

	// 2. Records
	for _, p := range track.Points {
		record := mesgdef.NewRecord(nil).
			SetTimestamp(p.Time).
			SetPositionLat(toSemicircles(p.Latitude)).
			SetPositionLong(toSemicircles(p.Longitude))
		if p.Altitude != nil {
			record.SetAltitude(uint16((*p.Altitude + 500) * 5))
		}
		fit.Messages = append(fit.Messages, record.ToMesg(nil))
	}

	// 3. Session message
	elapsed := uint32(endTime.Sub(startTime).Milliseconds())
	sessionMsg := mesgdef.NewSession(nil).
		SetTimestamp(endTime).
		SetStartTime(startTime).
		SetSport(sport).
		SetTotalElapsedTime(elapsed).
		SetTotalTimerTime(elapsed)
	if track.Name != "" {
		sessionMsg.SetSportProfileName(track.Name)
	}
	fit.Messages = append(fit.Messages, sessionMsg.ToMesg(nil))

	// 4. Activity message
	activityMsg := mesgdef.NewActivity(nil).
		SetTimestamp(endTime).
		SetType(typedef.ActivityManual).
		SetNumSessions(1)
	fit.Messages = append(fit.Messages, activityMsg.ToMesg(nil))

	var buf bytes.Buffer
	enc := encoder.New(&buf)

	if err := enc.Encode(fit); err != nil {
		return nil, fmt.Errorf("failed to encode FIT file: %w", err)
	}

	return buf.Bytes(), nil
}

func toSemicircles(deg float64) int32 {
	return int32(math.Round(deg * (math.MaxInt32 + 1) / 180))
}
