package firestore

import (
	"time"

	"github.com/fitglue/heatmap/pkg/types"
)

// Helper to safely get string from map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Firestore returns integers as int64
func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int64:
			return int(n)
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return 0
}

// Helper to safely get time from map (handles time.Time from Firestore)
func getTime(m map[string]interface{}, key string) time.Time {
	if v, ok := m[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

func getStrings(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// --- HeatmapState Converters ---

func HeatmapStateToFirestore(s *types.HeatmapState) map[string]interface{} {
	return map[string]interface{}{
		"main_blob_name": s.MainBlobName,
		"compose_count":  s.ComposeCount,
		"version":        s.Version,
	}
}

func FirestoreToHeatmapState(m map[string]interface{}) *types.HeatmapState {
	return &types.HeatmapState{
		MainBlobName: getString(m, "main_blob_name"),
		ComposeCount: getInt(m, "compose_count"),
		Version:      getInt(m, "version"),
	}
}

// --- ActivityDateIndex Converters ---

func ActivityIndexToFirestore(i *types.ActivityDateIndex) map[string]interface{} {
	dates := make([]interface{}, len(i.Dates))
	for n, d := range i.Dates {
		dates[n] = d
	}
	return map[string]interface{}{"dates": dates}
}

func FirestoreToActivityIndex(m map[string]interface{}) *types.ActivityDateIndex {
	return &types.ActivityDateIndex{Dates: getStrings(m, "dates")}
}

// --- ProcessedManifest Converters ---
// The manifest document is a flat map of source path to processed-at timestamp.

func ManifestToFirestore(p *types.ProcessedManifest) map[string]interface{} {
	m := make(map[string]interface{}, len(*p))
	for k, v := range *p {
		m[k] = v
	}
	return m
}

func FirestoreToManifest(m map[string]interface{}) *types.ProcessedManifest {
	out := make(types.ProcessedManifest, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339)
		}
	}
	return &out
}

// --- RuntimeSwitch Converters ---

func SwitchToFirestore(s *types.RuntimeSwitch) map[string]interface{} {
	return map[string]interface{}{
		"mode":       s.Mode,
		"updated_at": s.UpdatedAt,
	}
}

func FirestoreToSwitch(m map[string]interface{}) *types.RuntimeSwitch {
	return &types.RuntimeSwitch{
		Mode:      getString(m, "mode"),
		UpdatedAt: getTime(m, "updated_at"),
	}
}

// --- DownloadLink Converters ---

func DownloadLinkToFirestore(l *types.DownloadLink) map[string]interface{} {
	return map[string]interface{}{
		"bucket_name":       l.BucketName,
		"blob_name":         l.BlobName,
		"download_filename": l.DownloadFilename,
		"created_at":        l.CreatedAt,
		"expires_at":        l.ExpiresAt,
	}
}

func FirestoreToDownloadLink(m map[string]interface{}) *types.DownloadLink {
	return &types.DownloadLink{
		BucketName:       getString(m, "bucket_name"),
		BlobName:         getString(m, "blob_name"),
		DownloadFilename: getString(m, "download_filename"),
		CreatedAt:        getTime(m, "created_at"),
		ExpiresAt:        getTime(m, "expires_at"),
	}
}

// --- MessageRecord Converters ---

func MessageToFirestore(r *types.MessageRecord) map[string]interface{} {
	m := map[string]interface{}{
		"idempotency_key": r.IdempotencyKey,
		"status":          r.Status,
		"processed_at":    r.ProcessedAt,
		"expires_at":      r.ExpiresAt,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

func FirestoreToMessage(m map[string]interface{}) *types.MessageRecord {
	return &types.MessageRecord{
		IdempotencyKey: getString(m, "idempotency_key"),
		Status:         getString(m, "status"),
		Error:          getString(m, "error"),
		ProcessedAt:    getTime(m, "processed_at"),
		ExpiresAt:      getTime(m, "expires_at"),
	}
}
