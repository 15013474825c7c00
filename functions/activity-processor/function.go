package activityprocessor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/fitglue/heatmap/pkg/bootstrap"
	"github.com/fitglue/heatmap/pkg/framework"
	"github.com/fitglue/heatmap/pkg/intake"
	"github.com/fitglue/heatmap/pkg/pipeline"
	"github.com/fitglue/heatmap/pkg/types"
)

const serviceName = "activity-processor"

// defaultStyle applies to messages published without a style attribute.
const defaultStyle = intake.StylePrivate

type messageProcessor interface {
	Process(ctx context.Context, style intake.Style, data []byte) (intake.Result, error)
}

type storageSyncer interface {
	Run(ctx context.Context) (pipeline.SyncReport, error)
}

type syncResponse struct {
	pipeline.SyncReport
	Error string `json:"error,omitempty"`
}

type app struct {
	svc       *bootstrap.Service
	processor messageProcessor
	syncer    storageSyncer
}

var (
	instance *app
	appOnce  sync.Once
	appErr   error
)

func init() {
	functions.CloudEvent("ProcessActivity", ProcessActivity)
	functions.HTTP("SyncStorage", SyncStorage)
}

func initApp(ctx context.Context) (*app, error) {
	if instance != nil {
		return instance, nil
	}
	appOnce.Do(func() {
		svc, err := bootstrap.NewService(ctx, serviceName)
		if err != nil {
			slog.Error("Failed to initialize service", "error", err)
			appErr = err
			return
		}
		logger := bootstrap.NewLogger(serviceName, svc.Config.LogLevel)
		p, syncer := bootstrap.NewPipeline(ctx, svc, logger)
		instance = &app{
			svc:       svc,
			processor: bootstrap.NewProcessor(svc, p, logger),
			syncer:    syncer,
		}
	})
	return instance, appErr
}

// ProcessActivity is the Pub/Sub entry point for both pipeline styles.
func ProcessActivity(ctx context.Context, e event.Event) error {
	a, err := initApp(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent(serviceName, a.svc, processHandler(a.processor))(ctx, e)
}

// SyncStorage lists the source folder and runs every unprocessed activity.
func SyncStorage(w http.ResponseWriter, r *http.Request) {
	a, err := initApp(r.Context())
	if err != nil {
		framework.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	framework.WrapHTTP(serviceName, a.svc, syncHandler(a.syncer))(w, r)
}

func processHandler(processor messageProcessor) framework.HandlerFunc {
	return func(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
		var msg types.PubSubMessage
		if err := e.DataAs(&msg); err != nil {
			return nil, fmt.Errorf("event.DataAs: %v", err)
		}

		style := defaultStyle
		if s := msg.Message.Attributes["style"]; s != "" {
			parsed, err := intake.ParseStyle(s)
			if err != nil {
				return nil, err
			}
			style = parsed
		}

		res, err := processor.Process(ctx, style, msg.Message.Data)
		if err != nil {
			// Retrying a malformed message cannot succeed.
			if errors.Is(err, intake.ErrBadMessage) {
				fwCtx.Logger.Error("Dropping malformed message", "error", err, "style", style)
				return map[string]interface{}{"status": "rejected", "error": err.Error()}, nil
			}
			return nil, err
		}

		return map[string]interface{}{
			"style":     string(res.Style),
			"upload_id": res.UploadID,
			"status":    res.Status,
			"error":     res.Error,
			"outputs":   res.Outputs,
		}, nil
	}
}

func syncHandler(syncer storageSyncer) framework.HTTPHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, fwCtx *framework.FrameworkContext) error {
		if r.Method != http.MethodPost {
			framework.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return nil
		}
		report, err := syncer.Run(r.Context())
		if err != nil && len(report.Failed) == 0 {
			return err
		}
		if err != nil {
			fwCtx.Logger.Error("Sync finished with failures", "error", err)
			framework.WriteJSON(w, http.StatusMultiStatus, syncResponse{SyncReport: report, Error: err.Error()})
			return nil
		}
		framework.WriteJSON(w, http.StatusOK, syncResponse{SyncReport: report})
		return nil
	}
}
