package shared

import (
	"context"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/fitglue/heatmap/pkg/types"
)

// --- Persistence Interfaces ---

type Database interface {
	// Heatmap composition state, keyed by bike model slug.
	// Getters return (nil, nil) when nothing has been persisted yet.
	GetHeatmapState(ctx context.Context, model string) (*types.HeatmapState, error)
	SetHeatmapState(ctx context.Context, model string, state *types.HeatmapState) error
	GetActivityIndex(ctx context.Context, model string) (*types.ActivityDateIndex, error)
	AddActivityDate(ctx context.Context, model string, date string) error

	// Processed source files
	GetManifest(ctx context.Context) (types.ProcessedManifest, error)
	MarkProcessed(ctx context.Context, path string, at time.Time) error

	// Runtime switch ("prod" / "testing")
	GetStravaSwitch(ctx context.Context) (string, error)

	// Message idempotency and execution status
	CheckAndMarkMessage(ctx context.Context, collection, key string, ttl time.Duration) (bool, error)
	UpdateMessage(ctx context.Context, collection, key string, data map[string]interface{}) error

	// Download links for repaired files
	CreateDownloadLink(ctx context.Context, link *types.DownloadLink) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Exists(ctx context.Context, bucket, object string) (bool, error)
	Read(ctx context.Context, bucket, object string) ([]byte, error)
	Write(ctx context.Context, bucket, object string, data []byte) error
	Download(ctx context.Context, bucket, object, localPath string) error
	Upload(ctx context.Context, bucket, object, localPath string) error
	// Compose concatenates srcs, in order, into dst on the server side.
	Compose(ctx context.Context, bucket, dst string, srcs ...string) error
	Delete(ctx context.Context, bucket, object string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}
