package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shared "github.com/fitglue/heatmap/pkg"
	storage "github.com/fitglue/heatmap/pkg/storage/firestore"
	"github.com/fitglue/heatmap/pkg/types"
)

// ErrNotFound is returned for documents that must exist.
var ErrNotFound = errors.New("document not found")

// IsNotFound reports whether err is a Firestore NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || status.Code(err) == codes.NotFound
}

// FirestoreAdapter provides database operations using Firestore
// It wraps our typed storage client
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client // internal typed wrapper
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) GetHeatmapState(ctx context.Context, model string) (*types.HeatmapState, error) {
	state, err := a.storage.HeatmapSpecs().Doc(model).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (a *FirestoreAdapter) SetHeatmapState(ctx context.Context, model string, state *types.HeatmapState) error {
	return a.storage.HeatmapSpecs().Doc(model).Set(ctx, state)
}

func (a *FirestoreAdapter) GetActivityIndex(ctx context.Context, model string) (*types.ActivityDateIndex, error) {
	index, err := a.storage.HeatmapIndexes().Doc(model).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return index, nil
}

// AddActivityDate appends date to the model's index with an array union, so
// concurrent writers never drop each other's dates.
func (a *FirestoreAdapter) AddActivityDate(ctx context.Context, model string, date string) error {
	return a.storage.HeatmapIndexes().Doc(model).ArrayUnion(ctx, "dates", date)
}

func (a *FirestoreAdapter) GetManifest(ctx context.Context) (types.ProcessedManifest, error) {
	manifest, err := a.storage.Cursors().Doc(shared.DocStorageCursor).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return types.ProcessedManifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *manifest, nil
}

func (a *FirestoreAdapter) MarkProcessed(ctx context.Context, path string, at time.Time) error {
	return a.storage.Cursors().Doc(shared.DocStorageCursor).Update(ctx, map[string]interface{}{
		path: at.UTC().Format(time.RFC3339),
	})
}

// GetStravaSwitch returns the upload mode, or "" when the switch document is missing.
func (a *FirestoreAdapter) GetStravaSwitch(ctx context.Context) (string, error) {
	sw, err := a.storage.Switches().Doc(shared.DocStravaSwitch).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sw.Mode, nil
}

// CheckAndMarkMessage atomically records key in collection. It returns true when
// the key is new and false when it was seen before.
func (a *FirestoreAdapter) CheckAndMarkMessage(ctx context.Context, collection, key string, ttl time.Duration) (bool, error) {
	doc := a.storage.Messages(collection).Doc(key)
	isNew := false
	err := a.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		isNew = false
		_, err := tx.Get(doc.Ref)
		if err == nil {
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}
		now := time.Now().UTC()
		isNew = true
		return tx.Create(doc.Ref, doc.ToFirestore(&types.MessageRecord{
			IdempotencyKey: key,
			Status:         types.MessageStatusProcessing,
			ProcessedAt:    now,
			ExpiresAt:      now.Add(ttl),
		}))
	})
	if err != nil {
		return false, fmt.Errorf("check message %s/%s: %w", collection, key, err)
	}
	return isNew, nil
}

func (a *FirestoreAdapter) UpdateMessage(ctx context.Context, collection, key string, data map[string]interface{}) error {
	return a.storage.Messages(collection).Doc(key).Update(ctx, data)
}

// CreateDownloadLink stores link under a new document. link.ID is used when set.
func (a *FirestoreAdapter) CreateDownloadLink(ctx context.Context, link *types.DownloadLink) error {
	if link.ID == "" {
		return fmt.Errorf("download link needs an id")
	}
	return a.storage.DownloadLinks().Doc(link.ID).Create(ctx, link)
}
