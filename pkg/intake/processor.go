// Package intake turns Pub/Sub trigger messages into pipeline runs with
// per-message idempotency and status tracking.
package intake

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	shared "github.com/fitglue/heatmap/pkg"
	"github.com/fitglue/heatmap/pkg/pipeline"
	"github.com/fitglue/heatmap/pkg/types"
)

// ErrBadMessage marks envelopes that can never be processed. They are
// rejected instead of acknowledged.
var ErrBadMessage = errors.New("malformed pipeline message")

// Style selects the pipeline a message triggers.
type Style string

const (
	StylePrivate Style = "private"
	StylePublic  Style = "public"
)

// ParseStyle validates a style name from a route or attribute.
func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case StylePrivate, StylePublic:
		return Style(s), nil
	}
	return "", fmt.Errorf("%w: unknown pipeline style %q", ErrBadMessage, s)
}

// Collection is the message collection idempotency keys are stored in.
func (s Style) Collection() string {
	if s == StylePrivate {
		return shared.CollectionDropboxMessages
	}
	return shared.CollectionProcessedMessages
}

// Runner runs the two pipeline styles.
type Runner interface {
	RunPrivate(ctx context.Context, blobPath string) (pipeline.PrivateResult, error)
	RunPublic(ctx context.Context, req pipeline.RepairRequest) (pipeline.PublicResult, error)
}

// Store is the persistence the processor needs.
type Store interface {
	CheckAndMarkMessage(ctx context.Context, collection, key string, ttl time.Duration) (bool, error)
	UpdateMessage(ctx context.Context, collection, key string, data map[string]interface{}) error
	GetManifest(ctx context.Context) (types.ProcessedManifest, error)
	MarkProcessed(ctx context.Context, path string, at time.Time) error
}

// Status of a handled message.
const (
	StatusCompleted = types.MessageStatusCompleted
	StatusFailed    = types.MessageStatusFailed
	StatusDuplicate = "duplicate"
)

// Result describes how a message was handled. Failed runs are still
// acknowledged; the failure is recorded on the message document.
type Result struct {
	Style    Style
	UploadID string
	Status   string
	Error    string
	Outputs  map[string]interface{}
}

// Processor validates, deduplicates and runs pipeline messages.
type Processor struct {
	store         Store
	runner        Runner
	origFitFolder string
	ttl           time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func NewProcessor(store Store, runner Runner, origFitFolder string, ttl time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Processor{
		store:         store,
		runner:        runner,
		origFitFolder: origFitFolder,
		ttl:           ttl,
		logger:        logger.With("component", "intake"),
		now:           time.Now,
	}
}

// Decode parses and validates the message body for style.
func Decode(style Style, data []byte) (*types.PipelineMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message data", ErrBadMessage)
	}
	var msg types.PipelineMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}

	var missing []string
	if msg.UploadID == "" {
		missing = append(missing, "upload_id")
	}
	switch style {
	case StylePrivate:
		if msg.BlobPath == "" && msg.DropboxPath == "" {
			missing = append(missing, "blob_path|dropbox_path")
		}
	case StylePublic:
		if msg.FileData == "" {
			missing = append(missing, "file_data")
		}
		if msg.UserEmail == "" {
			missing = append(missing, "user_email")
		}
		if msg.OriginalFilename == "" {
			missing = append(missing, "original_filename")
		}
	default:
		return nil, fmt.Errorf("%w: unknown pipeline style %q", ErrBadMessage, style)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrBadMessage, strings.Join(missing, ", "))
	}
	if msg.Locale == "" {
		msg.Locale = "en"
	}
	return &msg, nil
}

// SourceBlob is the storage object a private message refers to.
func (p *Processor) SourceBlob(msg *types.PipelineMessage) string {
	if msg.BlobPath != "" {
		return msg.BlobPath
	}
	name := msg.OriginalFilename
	if name == "" {
		name = path.Base(msg.DropboxPath)
	}
	return path.Join(p.origFitFolder, name)
}

// Process handles one message body. Only malformed messages return an error.
func (p *Processor) Process(ctx context.Context, style Style, data []byte) (Result, error) {
	msg, err := Decode(style, data)
	if err != nil {
		p.logger.Error("Rejecting message", "style", string(style), "error", err)
		return Result{Style: style}, err
	}

	var fileData []byte
	if style == StylePublic {
		fileData, err = base64.StdEncoding.DecodeString(msg.FileData)
		if err != nil {
			p.logger.Error("Rejecting message: invalid file data", "upload_id", msg.UploadID, "error", err)
			return Result{Style: style, UploadID: msg.UploadID}, fmt.Errorf("%w: invalid file data: %v", ErrBadMessage, err)
		}
	}

	res := Result{Style: style, UploadID: msg.UploadID}
	logger := p.logger.With("style", string(style), "upload_id", msg.UploadID)
	collection := style.Collection()

	isNew, err := p.store.CheckAndMarkMessage(ctx, collection, msg.UploadID, p.ttl)
	if err != nil {
		// Treated as a duplicate so a broken store cannot cause a redelivery loop.
		logger.Error("Idempotency check failed, dropping message", "error", err)
		res.Status = StatusDuplicate
		return res, nil
	}
	if !isNew {
		logger.Warn("Duplicate message")
		res.Status = StatusDuplicate
		return res, nil
	}

	var runErr error
	switch style {
	case StylePrivate:
		res.Outputs, runErr = p.runPrivate(ctx, logger, msg)
	case StylePublic:
		res.Outputs, runErr = p.runPublic(ctx, msg, fileData)
	}

	update := map[string]interface{}{}
	now := p.now().UTC()
	if runErr != nil {
		logger.Error("Processing failed", "error", runErr)
		res.Status = StatusFailed
		res.Error = runErr.Error()
		update["status"] = StatusFailed
		update["error"] = res.Error
		update["failed_at"] = now
	} else {
		res.Status = StatusCompleted
		update["status"] = StatusCompleted
		update["completed_at"] = now
		if len(res.Outputs) > 0 {
			update["result"] = res.Outputs
		}
	}
	if err := p.store.UpdateMessage(ctx, collection, msg.UploadID, update); err != nil {
		logger.Warn("Failed to record message status", "status", res.Status, "error", err)
	}
	return res, nil
}

func (p *Processor) runPrivate(ctx context.Context, logger *slog.Logger, msg *types.PipelineMessage) (map[string]interface{}, error) {
	blob := p.SourceBlob(msg)
	outputs := map[string]interface{}{"blob_path": blob}

	manifest, err := p.store.GetManifest(ctx)
	if err != nil {
		return outputs, fmt.Errorf("load manifest: %w", err)
	}
	if manifest.Has(blob) {
		logger.Warn("Source file already processed", "blob", blob)
		outputs["skipped"] = "already_processed"
		return outputs, nil
	}

	res, err := p.runner.RunPrivate(ctx, blob)
	if err != nil {
		return outputs, err
	}
	if err := p.store.MarkProcessed(ctx, blob, p.now().UTC()); err != nil {
		return outputs, fmt.Errorf("mark processed: %w", err)
	}
	outputs["bike_model"] = res.Clean.Model.Slug()
	outputs["changes"] = res.Clean.Changes()
	outputs["heatmap"] = res.Heatmap.String()
	if res.StravaActivityID != 0 {
		outputs["strava_activity_id"] = res.StravaActivityID
	}
	return outputs, nil
}

func (p *Processor) runPublic(ctx context.Context, msg *types.PipelineMessage, data []byte) (map[string]interface{}, error) {
	res, err := p.runner.RunPublic(ctx, pipeline.RepairRequest{
		UploadID:         msg.UploadID,
		UserEmail:        msg.UserEmail,
		OriginalFilename: msg.OriginalFilename,
		Locale:           msg.Locale,
		Data:             data,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"result":    res.Result,
		"bad_lines": res.BadLines,
	}, nil
}

// DecodeEnvelope parses a Pub/Sub push request body.
func DecodeEnvelope(body []byte) (*types.PubSubMessage, error) {
	var env types.PubSubMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid push envelope: %v", ErrBadMessage, err)
	}
	if len(env.Message.Data) == 0 {
		return nil, fmt.Errorf("%w: push envelope without message data", ErrBadMessage)
	}
	return &env, nil
}
