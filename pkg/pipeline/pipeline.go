// Package pipeline runs one activity file through decode, clean, re-encode,
// Strava upload, GPX conversion and heatmap composition.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	shared "github.com/fitglue/heatmap/pkg"
	"github.com/fitglue/heatmap/pkg/domain/fitcsv"
	"github.com/fitglue/heatmap/pkg/domain/heatmap"
	"github.com/fitglue/heatmap/pkg/infrastructure/metrics"
	"github.com/fitglue/heatmap/pkg/infrastructure/sentry"
	"github.com/fitglue/heatmap/pkg/types"
)

// Codec converts between FIT files and their CSV record streams.
type Codec interface {
	Decode(ctx context.Context, fitPath, csvPath string) error
	Encode(ctx context.Context, csvPath, fitPath string) error
}

// Converter renders a FIT file as a GPX document.
type Converter interface {
	Convert(fitPath, gpxPath, name string) (*types.Track, error)
}

// Merger appends a GPX document to a bike model's heatmap.
type Merger interface {
	Merge(ctx context.Context, localGPX string, model fitcsv.BikeModel) (heatmap.Outcome, error)
}

// Uploader pushes a cleaned FIT file to Strava and tags it with gearID.
type Uploader interface {
	UploadActivity(ctx context.Context, fitPath, gearID string) (int64, error)
}

// SwitchReader reads the runtime switch that gates Strava uploads.
type SwitchReader interface {
	GetStravaSwitch(ctx context.Context) (string, error)
}

// LinkStore persists download links for repaired files.
type LinkStore interface {
	CreateDownloadLink(ctx context.Context, link *types.DownloadLink) error
}

// Notifier announces the result of a public repair run.
type Notifier interface {
	NotifyRepairResult(ctx context.Context, event types.RepairResultEvent) error
}

// Config holds the storage layout and limits of a pipeline.
type Config struct {
	Bucket            string // private activities, cleaned artifacts and heatmaps
	PublicInputBucket string // archive of files uploaded for repair; empty disables archiving
	OutputBucket      string // repaired files offered for download
	ScratchDir        string
	FrontendBaseURL   string
	LinkTTL           time.Duration
}

// Deps are the collaborators of a Pipeline. Uploader and Notifier may be nil.
type Deps struct {
	Blobs     shared.BlobStore
	Codec     Codec
	Converter Converter
	Merger    Merger
	Uploader  Uploader
	Switch    SwitchReader
	Links     LinkStore
	Notifier  Notifier
}

// Pipeline processes activities one stage at a time. Heatmap merges are
// serialized within a process; the composer itself does not lock.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mergeMu sync.Mutex
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.LinkTTL == 0 {
		cfg.LinkTTL = time.Hour
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "pipeline"),
		now:    time.Now,
	}
}

// stageTimer runs named stages of one activity and keeps their durations.
type stageTimer struct {
	logger   *slog.Logger
	activity string
	started  time.Time
	timings  []any
}

func newStageTimer(logger *slog.Logger, activity string) *stageTimer {
	return &stageTimer{logger: logger, activity: activity, started: time.Now()}
}

func (s *stageTimer) run(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	metrics.ObserveStage(name, d, err)
	s.timings = append(s.timings, name, d.Milliseconds())

	if err != nil {
		s.logger.Error("Stage failed", "stage", name, "duration_ms", d.Milliseconds(), "error", err)
		sentry.CaptureStageError(err, name, s.activity, s.logger)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logger.Debug("Stage completed", "stage", name, "duration_ms", d.Milliseconds())
	return nil
}

func (s *stageTimer) summary(style string) {
	s.logger.Info("Pipeline finished",
		"style", style,
		"total_ms", time.Since(s.started).Milliseconds(),
		slog.Group("stages_ms", s.timings...),
	)
}

func removeAll(logger *slog.Logger, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove scratch file", "path", p, "error", err)
		}
	}
}
