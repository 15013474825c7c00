package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/fitglue/heatmap/pkg/infrastructure/metrics"
	"github.com/fitglue/heatmap/pkg/types"
)

// Lister lists objects under a prefix.
type Lister interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ManifestStore records which source objects were fully processed.
type ManifestStore interface {
	GetManifest(ctx context.Context) (types.ProcessedManifest, error)
	MarkProcessed(ctx context.Context, path string, at time.Time) error
}

// PrivateRunner runs the private pipeline for one source object.
type PrivateRunner interface {
	RunPrivate(ctx context.Context, blobPath string) (PrivateResult, error)
}

// SyncReport counts what a sync pass did.
type SyncReport struct {
	Listed    int      `json:"listed"`
	Skipped   int      `json:"skipped"`
	Processed int      `json:"processed"`
	Failed    []string `json:"failed,omitempty"`
}

// Syncer processes every source FIT object that is not in the manifest yet.
type Syncer struct {
	lister   Lister
	manifest ManifestStore
	runner   PrivateRunner
	bucket   string
	prefix   string
	logger   *slog.Logger
	now      func() time.Time
}

func NewSyncer(lister Lister, manifest ManifestStore, runner PrivateRunner, bucket, prefix string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		lister:   lister,
		manifest: manifest,
		runner:   runner,
		bucket:   bucket,
		prefix:   prefix,
		logger:   logger.With("component", "sync"),
		now:      time.Now,
	}
}

// Run walks the source prefix. An object is marked processed only after its
// whole pipeline succeeded; failed objects stay unmarked and are retried on the
// next run. Failures do not stop the pass and are returned joined.
func (s *Syncer) Run(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	objects, err := s.lister.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return report, fmt.Errorf("list source files: %w", err)
	}
	processed, err := s.manifest.GetManifest(ctx)
	if err != nil {
		return report, fmt.Errorf("load manifest: %w", err)
	}
	s.logger.Debug("Manifest loaded", "records", len(processed))

	var errs []error
	for _, obj := range objects {
		if !strings.EqualFold(path.Ext(obj), ".fit") {
			continue
		}
		report.Listed++
		if processed.Has(obj) {
			report.Skipped++
			s.logger.Debug("Already processed", "blob", obj)
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if _, err := s.runner.RunPrivate(ctx, obj); err != nil {
			s.logger.Error("Activity failed, left for retry", "blob", obj, "error", err)
			report.Failed = append(report.Failed, obj)
			errs = append(errs, fmt.Errorf("%s: %w", obj, err))
			continue
		}
		if err := s.manifest.MarkProcessed(ctx, obj, s.now().UTC()); err != nil {
			s.logger.Error("Failed to mark activity processed", "blob", obj, "error", err)
			report.Failed = append(report.Failed, obj)
			errs = append(errs, fmt.Errorf("mark %s: %w", obj, err))
			continue
		}
		report.Processed++
	}

	s.logger.Info("Sync finished",
		"listed", report.Listed,
		"skipped", report.Skipped,
		"processed", report.Processed,
		"failed", len(report.Failed),
	)
	if len(errs) == 0 {
		metrics.RecordSyncSuccess(s.now())
	}
	return report, errors.Join(errs...)
}
