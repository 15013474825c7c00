package pipeline

import (
	"context"
	"errors"
	"fmt"

	shared "github.com/fitglue/heatmap/pkg"
	"github.com/fitglue/heatmap/pkg/domain/fitcsv"
	"github.com/fitglue/heatmap/pkg/domain/pathguard"
	"github.com/fitglue/heatmap/pkg/domain/heatmap"
	"github.com/fitglue/heatmap/pkg/infrastructure/metrics"
	"github.com/fitglue/heatmap/pkg/integrations/strava"
)

// ErrStravaNotConfigured is returned when the switch asks for uploads but no
// Strava client was wired.
var ErrStravaNotConfigured = errors.New("strava uploads enabled but no client configured")

// PrivateResult summarizes a private run.
type PrivateResult struct {
	Activity         Activity
	Clean            fitcsv.Result
	StravaActivityID int64
	Heatmap          heatmap.Outcome
}

// RunPrivate processes the source object at blobPath end to end: download,
// decode, clean, re-encode, optional Strava upload, GPX conversion and heatmap
// merge. The first failing stage aborts the run.
func (p *Pipeline) RunPrivate(ctx context.Context, blobPath string) (res PrivateResult, err error) {
	a := NewActivity(p.cfg.ScratchDir, blobPath)
	logger := p.logger.With("activity", a.Filename, "style", "private")
	st := newStageTimer(logger, a.Filename)
	res.Activity = a

	defer func() {
		removeAll(logger, a.localFiles()...)
		metrics.RecordRun("private", err)
		st.summary("private")
	}()

	logger.Info("Private pipeline started", "blob", blobPath)

	if err = st.run(ctx, "download_fit", func(ctx context.Context) error {
		if err := pathguard.Validate(a.LocalFIT, p.cfg.ScratchDir); err != nil {
			return err
		}
		return p.deps.Blobs.Download(ctx, p.cfg.Bucket, blobPath, a.LocalFIT)
	}); err != nil {
		return res, err
	}

	if err = st.run(ctx, "decode_fit", func(ctx context.Context) error {
		return p.deps.Codec.Decode(ctx, a.LocalFIT, a.LocalCSV)
	}); err != nil {
		return res, err
	}

	if err = st.run(ctx, "clean_gps", func(ctx context.Context) error {
		r, err := fitcsv.Run(ctx, a.LocalCSV, a.LocalFixedCSV, fitcsv.ModePrivate,
			fitcsv.WithScratchDir(p.cfg.ScratchDir), fitcsv.WithLogger(logger))
		res.Clean = r
		if err != nil {
			return err
		}
		metrics.RecordCleanerFixes(r.LatitudeFixes, r.SerialFixes)
		logger.Info("GPS cleaned", "bike_model", r.Model.String(), "changes", r.Changes())
		return p.deps.Blobs.Upload(ctx, p.cfg.Bucket, a.FixedCSVObject, a.LocalFixedCSV)
	}); err != nil {
		return res, err
	}

	if err = st.run(ctx, "encode_fit", func(ctx context.Context) error {
		if err := p.deps.Codec.Encode(ctx, a.LocalFixedCSV, a.LocalFixedFIT); err != nil {
			return err
		}
		return p.deps.Blobs.Upload(ctx, p.cfg.Bucket, a.FixedFITObject, a.LocalFixedFIT)
	}); err != nil {
		return res, err
	}

	if err = st.run(ctx, "upload_strava", func(ctx context.Context) error {
		id, err := p.uploadToStrava(ctx, a, res.Clean.Model)
		res.StravaActivityID = id
		return err
	}); err != nil {
		return res, err
	}

	if err = st.run(ctx, "gpx_heatmap", func(ctx context.Context) error {
		if _, err := p.deps.Converter.Convert(a.LocalFixedFIT, a.LocalGPX, a.BaseName); err != nil {
			return err
		}
		if err := p.deps.Blobs.Upload(ctx, p.cfg.Bucket, a.GPXObject, a.LocalGPX); err != nil {
			return err
		}

		p.mergeMu.Lock()
		defer p.mergeMu.Unlock()
		outcome, err := p.deps.Merger.Merge(ctx, a.LocalGPX, res.Clean.Model)
		if err != nil {
			return err
		}
		res.Heatmap = outcome
		metrics.RecordComposeOutcome(res.Clean.Model.Slug(), outcome.String())
		return nil
	}); err != nil {
		return res, err
	}

	logger.Info("Private pipeline completed",
		"bike_model", res.Clean.Model.String(),
		"heatmap", res.Heatmap.String(),
		"strava_activity_id", res.StravaActivityID,
	)
	return res, nil
}

// uploadToStrava uploads only when the runtime switch is "prod".
func (p *Pipeline) uploadToStrava(ctx context.Context, a Activity, model fitcsv.BikeModel) (int64, error) {
	mode, err := p.deps.Switch.GetStravaSwitch(ctx)
	if err != nil {
		return 0, fmt.Errorf("read strava switch: %w", err)
	}

	switch mode {
	case shared.SwitchProd:
		if p.deps.Uploader == nil {
			return 0, ErrStravaNotConfigured
		}
		gearID := ""
		if model.Known() {
			gearID = model.GearID()
		}
		id, err := p.deps.Uploader.UploadActivity(ctx, a.LocalFixedFIT, gearID)
		if errors.Is(err, strava.ErrDuplicateActivity) {
			// A rerun after a later stage failed; Strava kept the first upload.
			p.logger.Warn("Activity already on Strava", "activity", a.Filename, "strava_activity_id", id, "error", err)
			return id, nil
		}
		if err != nil {
			return id, err
		}
		p.logger.Info("Uploaded to Strava", "activity", a.Filename, "strava_activity_id", id, "gear_id", gearID)
		return id, nil
	case shared.SwitchTesting:
		p.logger.Warn("Not uploading to Strava", "activity", a.Filename, "mode", mode)
	default:
		p.logger.Error("Unknown Strava switch mode, upload skipped", "activity", a.Filename, "mode", mode)
	}
	return 0, nil
}
