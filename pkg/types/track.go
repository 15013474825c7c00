package types

import "time"

// Track is the GPS trace of one activity, decoded from its FIT file.
type Track struct {
	Name      string
	Sport     string
	StartTime time.Time
	Points    []TrackPoint
}

// TrackPoint is one positioned record. Coordinates are in decimal degrees.
type TrackPoint struct {
	Time      time.Time
	Latitude  float64
	Longitude float64
	// Altitude is nil when the device did not record it.
	Altitude *float64
}
