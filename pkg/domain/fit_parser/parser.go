package fit_parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/fitglue/heatmap/pkg/types"
)

// ErrNotActivity is returned when a FIT file is readable but is not an activity file.
var ErrNotActivity = errors.New("FIT file is not an activity")

const (
	invalidSemicircles = 0x7FFFFFFF
	invalidAltitude    = 0xFFFF
	semicircleConst    = 11930464.7111 // 2^31 / 180
)

// ValidateHeader reads just enough of a FIT file to check its header, CRC framing
// and FileId message. It is cheap enough to run before handing a file to an
// external decoder.
func ValidateHeader(r io.Reader) error {
	dec := decoder.New(r)
	fileID, err := dec.PeekFileId()
	if err != nil {
		return fmt.Errorf("invalid FIT file: %w", err)
	}
	if fileID.Type != typedef.FileActivity {
		return fmt.Errorf("%w: file type %s", ErrNotActivity, fileID.Type)
	}
	return nil
}

// ParseFitFile decodes the record messages of a FIT activity into a Track.
// Records without a valid position are skipped; the start time comes from the
// FileId message, falling back to the first timestamped record.
func ParseFitFile(data []byte) (*types.Track, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty FIT data")
	}
	return ParseFitReader(bytes.NewReader(data))
}

// ParseFitReader is ParseFitFile over a stream.
func ParseFitReader(r io.Reader) (*types.Track, error) {
	fitDec := decoder.New(r)

	track := &types.Track{}
	var sport typedef.Sport = typedef.SportInvalid

	for fitDec.Next() {
		fitData, err := fitDec.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIT file: %w", err)
		}

		for i := range fitData.Messages {
			msg := &fitData.Messages[i]
			switch msg.Num {
			case typedef.MesgNumFileId:
				fileId := mesgdef.NewFileId(msg)
				if track.StartTime.IsZero() && !fileId.TimeCreated.IsZero() {
					track.StartTime = fileId.TimeCreated.UTC()
				}

			case typedef.MesgNumRecord:
				point, ok := parseRecord(msg)
				if !ok {
					continue
				}
				track.Points = append(track.Points, point)

			case typedef.MesgNumSession:
				sessionMsg := mesgdef.NewSession(msg)
				if sport == typedef.SportInvalid {
					sport = sessionMsg.Sport
				}
				if track.Name == "" && sessionMsg.SportProfileName != "" {
					track.Name = sessionMsg.SportProfileName
				}
			}
		}
	}

	if len(track.Points) > 0 && (track.StartTime.IsZero() || track.Points[0].Time.Before(track.StartTime)) {
		track.StartTime = track.Points[0].Time
	}
	if sport != typedef.SportInvalid {
		track.Sport = strings.ToLower(sport.String())
	}
	if track.Name == "" {
		track.Name = generateTrackName(track.Sport, track.StartTime)
	}

	return track, nil
}

func parseRecord(msg *proto.Message) (types.TrackPoint, bool) {
	recordMsg := mesgdef.NewRecord(msg)

	if recordMsg.Timestamp.IsZero() {
		return types.TrackPoint{}, false
	}
	if recordMsg.PositionLat == invalidSemicircles || recordMsg.PositionLong == invalidSemicircles {
		return types.TrackPoint{}, false
	}

	point := types.TrackPoint{
		Time:      recordMsg.Timestamp.UTC(),
		Latitude:  float64(recordMsg.PositionLat) / semicircleConst,
		Longitude: float64(recordMsg.PositionLong) / semicircleConst,
	}

	// FIT uses 5 * (altitude + 500) scale
	if recordMsg.Altitude != invalidAltitude {
		alt := (float64(recordMsg.Altitude) / 5) - 500
		point.Altitude = &alt
	}

	return point, true
}

func generateTrackName(sport string, start time.Time) string {
	if sport == "" {
		sport = "activity"
	}
	if start.IsZero() {
		return sport
	}
	return fmt.Sprintf("%s %s", sport, start.Format("2006-01-02 15:04"))
}
