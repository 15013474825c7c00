// Package heatmap appends activity tracks to per-bike heatmap GPX files in
// object storage using server-side composition.
//
// A composed object can only be composed a limited number of times, so each
// heatmap is versioned: once a main blob reaches MaxCompose compositions its
// content is copied into the next version and the old blob is deleted.
package heatmap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	shared "github.com/fitglue/heatmap/pkg"
	"github.com/fitglue/heatmap/pkg/domain/fitcsv"
	"github.com/fitglue/heatmap/pkg/domain/gpx"
	"github.com/fitglue/heatmap/pkg/types"
)

const (
	// MaxCompose is the number of compositions after which a heatmap rolls over.
	MaxCompose = 32

	blobPrefix     = shared.FolderHeatmap + "/"
	fragmentPrefix = shared.FolderFragments + "/"
	extension      = "gpx"
)

// BlobName is the object name of a heatmap version, e.g. heatmap/mtb_v03.gpx.
func BlobName(model fitcsv.BikeModel, version int) string {
	return fmt.Sprintf("%s%s_v%02d.%s", blobPrefix, model.Slug(), version, extension)
}

// FragmentName is the temporary object a stripped track is uploaded to.
func FragmentName(localGPX string) string {
	return fragmentPrefix + filepath.Base(localGPX)
}

// BlobStore is the subset of object storage the composer needs.
type BlobStore interface {
	Exists(ctx context.Context, bucket, object string) (bool, error)
	Write(ctx context.Context, bucket, object string, data []byte) error
	Upload(ctx context.Context, bucket, object, localPath string) error
	Compose(ctx context.Context, bucket, dst string, srcs ...string) error
	Delete(ctx context.Context, bucket, object string) error
}

// StateRepository persists composition state and the index of merged activities.
// Getters return nil, nil when nothing has been stored for the model yet.
type StateRepository interface {
	GetHeatmapState(ctx context.Context, model string) (*types.HeatmapState, error)
	SetHeatmapState(ctx context.Context, model string, state *types.HeatmapState) error
	GetActivityIndex(ctx context.Context, model string) (*types.ActivityDateIndex, error)
	AddActivityDate(ctx context.Context, model string, date string) error
}

// Outcome describes what Merge did with a track.
type Outcome int

const (
	OutcomeMerged Outcome = iota
	OutcomeRolledOver
	OutcomeDuplicate
	OutcomeNoTimestamp
	OutcomeUnknownModel
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMerged:
		return "merged"
	case OutcomeRolledOver:
		return "rolled_over"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeNoTimestamp:
		return "no_timestamp"
	case OutcomeUnknownModel:
		return "unknown_model"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Changed reports whether the heatmap was modified.
func (o Outcome) Changed() bool {
	return o == OutcomeMerged || o == OutcomeRolledOver
}

// Composer merges GPX tracks into per-model heatmaps.
//
// Merge is not safe for concurrent calls on the same model: two callers can read
// the same state and both compose into the same blob. Callers serialize merges
// per model.
type Composer struct {
	blobs   BlobStore
	state   StateRepository
	bucket  string
	creator string
	logger  *slog.Logger
}

// NewComposer returns a Composer writing to bucket.
func NewComposer(blobs BlobStore, state StateRepository, bucket string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		blobs:   blobs,
		state:   state,
		bucket:  bucket,
		creator: gpx.DefaultCreator,
		logger:  logger.With("component", "heatmap"),
	}
}

// Merge appends the track in localGPX to model's heatmap. localGPX must be a
// complete GPX document; it is stripped in place to a fragment before upload.
//
// Tracks whose first timestamp is already indexed, and tracks without any
// timestamp, are skipped without touching storage. State and index are written
// last, so a failure before that leaves the persisted state unchanged.
func (c *Composer) Merge(ctx context.Context, localGPX string, model fitcsv.BikeModel) (Outcome, error) {
	if !model.Known() {
		c.logger.Warn("Unknown bike model, heatmap not updated", "model", model.String(), "file", localGPX)
		return OutcomeUnknownModel, nil
	}
	slug := model.Slug()
	logger := c.logger.With("model", slug)

	state, err := c.loadState(ctx, model)
	if err != nil {
		return 0, err
	}
	index, err := c.state.GetActivityIndex(ctx, slug)
	if err != nil {
		return 0, fmt.Errorf("load heatmap index for %s: %w", slug, err)
	}

	firstTime, ok, err := gpx.FirstTime(localGPX)
	if err != nil {
		return 0, err
	}
	if !ok {
		logger.Warn("GPX has no time tag, heatmap not updated", "file", localGPX)
		return OutcomeNoTimestamp, nil
	}
	if index.Contains(firstTime) {
		logger.Warn("Activity already in heatmap index", "date", firstTime)
		return OutcomeDuplicate, nil
	}

	if _, err := gpx.StripEnvelope(localGPX); err != nil {
		return 0, fmt.Errorf("strip gpx envelope: %w", err)
	}

	fragment := FragmentName(localGPX)
	if err := c.blobs.Upload(ctx, c.bucket, fragment, localGPX); err != nil {
		return 0, fmt.Errorf("upload heatmap fragment: %w", err)
	}

	exists, err := c.blobs.Exists(ctx, c.bucket, state.MainBlobName)
	if err != nil {
		return 0, fmt.Errorf("check heatmap blob: %w", err)
	}
	if !exists {
		logger.Warn("Heatmap blob missing, creating with header", "blob", state.MainBlobName)
		if err := c.blobs.Write(ctx, c.bucket, state.MainBlobName, []byte(gpx.Header(c.creator))); err != nil {
			return 0, fmt.Errorf("create heatmap blob: %w", err)
		}
	}

	outcome := OutcomeMerged
	var superseded string
	if state.ComposeCount+1 >= MaxCompose {
		superseded = state.MainBlobName
		if err := c.mergeAndRollOver(ctx, model, state, fragment); err != nil {
			return 0, err
		}
		outcome = OutcomeRolledOver
	} else {
		if err := c.blobs.Compose(ctx, c.bucket, state.MainBlobName, state.MainBlobName, fragment); err != nil {
			return 0, fmt.Errorf("compose heatmap: %w", err)
		}
		state.ComposeCount++
		logger.Debug("Fragment composed", "fragment", fragment, "blob", state.MainBlobName, "compose_count", state.ComposeCount)
	}

	if err := c.state.SetHeatmapState(ctx, slug, state); err != nil {
		return 0, fmt.Errorf("save heatmap state for %s: %w", slug, err)
	}
	if err := c.state.AddActivityDate(ctx, slug, firstTime); err != nil {
		return 0, fmt.Errorf("save heatmap index for %s: %w", slug, err)
	}

	// The previous version is only dropped once state points at its successor.
	if superseded != "" {
		if err := c.blobs.Delete(ctx, c.bucket, superseded); err != nil {
			logger.Error("Failed to delete previous heatmap version", "blob", superseded, "error", err)
		} else {
			logger.Info("Previous heatmap version deleted", "blob", superseded)
		}
	}

	if err := c.blobs.Delete(ctx, c.bucket, fragment); err != nil {
		logger.Error("Failed to delete heatmap fragment", "fragment", fragment, "error", err)
	}

	logger.Info("Heatmap updated",
		"outcome", outcome.String(),
		"blob", state.MainBlobName,
		"compose_count", state.ComposeCount,
		"version", state.Version,
		"date", firstTime,
	)
	return outcome, nil
}

func (c *Composer) loadState(ctx context.Context, model fitcsv.BikeModel) (*types.HeatmapState, error) {
	state, err := c.state.GetHeatmapState(ctx, model.Slug())
	if err != nil {
		return nil, fmt.Errorf("load heatmap state for %s: %w", model.Slug(), err)
	}
	if state == nil {
		return &types.HeatmapState{MainBlobName: BlobName(model, 0)}, nil
	}
	if state.MainBlobName == "" {
		state.MainBlobName = BlobName(model, state.Version)
	}
	return state, nil
}

// mergeAndRollOver composes the fragment into the main blob and copies the
// result into the next version with a single-source composition, which counts
// as the new blob's first composition. The old main blob is left in place.
//
// An existing successor means an earlier attempt got this far and then failed
// to save state. The successor already holds the fragment, so it is adopted
// as is instead of composing the fragment a second time.
func (c *Composer) mergeAndRollOver(ctx context.Context, model fitcsv.BikeModel, state *types.HeatmapState, fragment string) error {
	next := BlobName(model, state.Version+1)
	resumed, err := c.blobs.Exists(ctx, c.bucket, next)
	if err != nil {
		return fmt.Errorf("check heatmap successor: %w", err)
	}

	if resumed {
		c.logger.Warn("Resuming interrupted heatmap rollover", "blob", next)
	} else {
		if err := c.blobs.Compose(ctx, c.bucket, state.MainBlobName, state.MainBlobName, fragment); err != nil {
			return fmt.Errorf("compose heatmap: %w", err)
		}
		if err := c.blobs.Compose(ctx, c.bucket, next, state.MainBlobName); err != nil {
			return fmt.Errorf("roll over heatmap to %s: %w", next, err)
		}
	}

	state.Version++
	state.MainBlobName = next
	state.ComposeCount = 1
	c.logger.Info("Heatmap rolled over", "blob", next, "version", state.Version)
	return nil
}
