package types

import (
	"slices"
	"time"
)

// HeatmapState is the persisted composition cursor of one bike model's heatmap.
type HeatmapState struct {
	MainBlobName string `json:"main_blob_name" firestore:"main_blob_name"`
	ComposeCount int    `json:"compose_count" firestore:"compose_count"`
	Version      int    `json:"version" firestore:"version"`
}

// ActivityDateIndex holds the start timestamps already merged into a heatmap.
// It only grows.
type ActivityDateIndex struct {
	Dates []string `json:"dates" firestore:"dates"`
}

// Contains reports whether date has already been merged.
func (i *ActivityDateIndex) Contains(date string) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Dates, date)
}

// ProcessedManifest maps a source blob path to its processed-at timestamp (RFC3339, UTC).
type ProcessedManifest map[string]string

// Has reports whether the source path was already processed.
func (m ProcessedManifest) Has(path string) bool {
	_, ok := m[path]
	return ok
}

// DownloadLink is a short-lived record behind the frontend's /download/{id} proxy.
type DownloadLink struct {
	ID               string    `firestore:"-"`
	BucketName       string    `firestore:"bucket_name"`
	BlobName         string    `firestore:"blob_name"`
	DownloadFilename string    `firestore:"download_filename"`
	CreatedAt        time.Time `firestore:"created_at"`
	ExpiresAt        time.Time `firestore:"expires_at"`
}

// MessageStatus values stored on processed message documents.
const (
	MessageStatusProcessing = "processing"
	MessageStatusCompleted  = "completed"
	MessageStatusFailed     = "failed"
)

// RuntimeSwitch is an operator-controlled toggle document.
type RuntimeSwitch struct {
	Mode      string    `firestore:"mode"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// MessageRecord tracks one pipeline trigger message for idempotency and status.
type MessageRecord struct {
	IdempotencyKey string    `firestore:"idempotency_key"`
	Status         string    `firestore:"status"`
	Error          string    `firestore:"error,omitempty"`
	ProcessedAt    time.Time `firestore:"processed_at"`
	ExpiresAt      time.Time `firestore:"expires_at"`
}
