package file_generators

import (
	"testing"
	"time"

	"github.com/fitglue/heatmap/pkg/types"
)

func sampleTrack() *types.Track {
	start := time.Date(2025, 9, 22, 7, 48, 49, 0, time.UTC)
	alt := 212.4
	return &types.Track{
		Name:  "Morning Ride",
		Sport: "cycling",
		Points: []types.TrackPoint{
			{Time: start, Latitude: 48.6201, Longitude: 22.2879, Altitude: &alt},
			{Time: start.Add(time.Second), Latitude: 48.6202, Longitude: 22.2881},
		},
	}
}

func TestGenerateFitFile(t *testing.T) {
	result, err := GenerateFitFile(sampleTrack())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Byte 8-11 of the header is ".FIT"
	if len(result) < 14 {
		t.Fatalf("Result too short to be a FIT file: %d bytes", len(result))
	}
	if fileType := string(result[8:12]); fileType != ".FIT" {
		t.Errorf("Expected .FIT file type in header, got %q", fileType)
	}
}

func TestGenerateFitFile_Errors(t *testing.T) {
	if _, err := GenerateFitFile(nil); err == nil {
		t.Error("Expected error for nil track")
	}
	if _, err := GenerateFitFile(&types.Track{Name: "empty"}); err == nil {
		t.Error("Expected error for track without points")
	}
}

func TestToSemicircles(t *testing.T) {
	tests := []struct {
		deg  float64
		want int32
	}{
		{deg: 0, want: 0},
		{deg: 90, want: 1 << 30},
		{deg: -90, want: -(1 << 30)},
	}
	for _, tt := range tests {
		if got := toSemicircles(tt.deg); got != tt.want {
			t.Errorf("toSemicircles(%v) = %d, want %d", tt.deg, got, tt.want)
		}
	}
}
