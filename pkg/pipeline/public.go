package pipeline

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/fitglue/heatmap/pkg/domain/fitcsv"
	"github.com/fitglue/heatmap/pkg/domain/pathguard"
	"github.com/fitglue/heatmap/pkg/infrastructure/metrics"
	"github.com/fitglue/heatmap/pkg/types"
)

// Repair results reported to the user.
const (
	ResultFind     = "find"
	ResultNotFound = "not_found"
)

// RepairRequest is a file uploaded by a rider for GPS repair.
type RepairRequest struct {
	UploadID         string
	UserEmail        string
	OriginalFilename string
	Locale           string
	Data             []byte
}

// PublicResult summarizes a repair run.
type PublicResult struct {
	Result      string
	BadLines    int
	DownloadURL string
}

// RunPublic repairs an uploaded file. A file with fixes is re-encoded, stored
// in the output bucket behind a short-lived download link and reported as
// "find"; a clean file is reported as "not_found" and nothing is stored.
func (p *Pipeline) RunPublic(ctx context.Context, req RepairRequest) (res PublicResult, err error) {
	if req.UploadID == "" {
		return res, errors.New("repair request without upload id")
	}
	a := NewActivity(p.cfg.ScratchDir, req.UploadID+".fit")
	logger := p.logger.With("activity", a.Filename, "style", "public", "upload_id", req.UploadID)
	st := newStageTimer(logger, a.Filename)

	defer func() {
		removeAll(logger, a.localFiles()...)
		metrics.RecordRun("public", err)
		st.summary("public")
	}()

	logger.Info("Public pipeline started", "original_filename", req.OriginalFilename)

	if err = st.run(ctx, "receive_fit", func(ctx context.Context) error {
		if err := pathguard.Validate(a.LocalFIT, p.cfg.ScratchDir); err != nil {
			return err
		}
		if err := os.WriteFile(a.LocalFIT, req.Data, 0o600); err != nil {
			return err
		}
		if p.cfg.PublicInputBucket == "" {
			return nil
		}
		return p.deps.Blobs.Upload(ctx, p.cfg.PublicInputBucket, path.Join("uploads", a.Filename), a.LocalFIT)
	}); err != nil {
		return res, err
	}

	if err = st.run(ctx, "decode_fit", func(ctx context.Context) error {
		return p.deps.Codec.Decode(ctx, a.LocalFIT, a.LocalCSV)
	}); err != nil {
		return res, err
	}

	var clean fitcsv.Result
	if err = st.run(ctx, "clean_gps", func(ctx context.Context) error {
		r, err := fitcsv.Run(ctx, a.LocalCSV, a.LocalFixedCSV, fitcsv.ModePublic,
			fitcsv.WithScratchDir(p.cfg.ScratchDir), fitcsv.WithLogger(logger))
		clean = r
		if err == nil {
			metrics.RecordCleanerFixes(r.LatitudeFixes, r.SerialFixes)
		}
		return err
	}); err != nil {
		return res, err
	}
	res.BadLines = clean.Changes()

	if res.BadLines == 0 {
		logger.Info("No GPS issues found")
		res.Result = ResultNotFound
		err = st.run(ctx, "notify", func(ctx context.Context) error {
			return p.notify(ctx, req, res)
		})
		return res, err
	}

	if err = st.run(ctx, "encode_fit", func(ctx context.Context) error {
		if err := p.deps.Codec.Encode(ctx, a.LocalFixedCSV, a.LocalFixedFIT); err != nil {
			return err
		}
		return p.deps.Blobs.Upload(ctx, p.cfg.OutputBucket, a.FixedFITObject, a.LocalFixedFIT)
	}); err != nil {
		return res, err
	}

	if err = st.run(ctx, "download_link", func(ctx context.Context) error {
		url, err := p.createDownloadLink(ctx, a, req.OriginalFilename)
		res.DownloadURL = url
		return err
	}); err != nil {
		return res, err
	}

	res.Result = ResultFind
	err = st.run(ctx, "notify", func(ctx context.Context) error {
		return p.notify(ctx, req, res)
	})
	return res, err
}

func (p *Pipeline) createDownloadLink(ctx context.Context, a Activity, originalFilename string) (string, error) {
	now := p.now().UTC()
	link := &types.DownloadLink{
		ID:               uuid.NewString(),
		BucketName:       p.cfg.OutputBucket,
		BlobName:         a.FixedFITObject,
		DownloadFilename: DownloadFilename(originalFilename),
		CreatedAt:        now,
		ExpiresAt:        now.Add(p.cfg.LinkTTL),
	}
	if err := p.deps.Links.CreateDownloadLink(ctx, link); err != nil {
		return "", err
	}
	return strings.TrimRight(p.cfg.FrontendBaseURL, "/") + "/download/" + link.ID, nil
}

// DownloadFilename is the name offered for a repaired copy of original.
func DownloadFilename(original string) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "activity"
	}
	return base + "_clean.fit"
}

func (p *Pipeline) notify(ctx context.Context, req RepairRequest, res PublicResult) error {
	if p.deps.Notifier == nil {
		return nil
	}
	if req.UserEmail == "" || req.OriginalFilename == "" {
		p.logger.Warn("Repair result not sent: user_email or original_filename missing", "upload_id", req.UploadID)
		return nil
	}
	return p.deps.Notifier.NotifyRepairResult(ctx, types.RepairResultEvent{
		UploadID:         req.UploadID,
		UserEmail:        req.UserEmail,
		OriginalFilename: req.OriginalFilename,
		Locale:           NormalizeLocale(req.Locale),
		Result:           res.Result,
		BadLines:         res.BadLines,
		DownloadURL:      res.DownloadURL,
	})
}
