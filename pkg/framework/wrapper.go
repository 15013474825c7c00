package framework

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"

	"github.com/fitglue/heatmap/pkg/bootstrap"
	"github.com/fitglue/heatmap/pkg/infrastructure/sentry"
	"github.com/fitglue/heatmap/pkg/types"
)

// FrameworkContext contains dependencies injected by the framework
type FrameworkContext struct {
	Service     *bootstrap.Service
	Logger      *slog.Logger
	ExecutionID string
}

// HandlerFunc is the signature for a cloud function handler
type HandlerFunc func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error)

// HTTPHandlerFunc is the signature for an HTTP-triggered function handler
type HTTPHandlerFunc func(w http.ResponseWriter, r *http.Request, fwCtx *FrameworkContext) error

func newContext(serviceName string, svc *bootstrap.Service) *FrameworkContext {
	level := bootstrap.ParseLevel(os.Getenv("LOG_LEVEL"))
	if svc != nil && svc.Config != nil {
		level = svc.Config.LogLevel
	}
	execID := uuid.NewString()
	logger := bootstrap.NewLogger(serviceName, level).With("execution_id", execID)
	return &FrameworkContext{
		Service:     svc,
		Logger:      logger,
		ExecutionID: execID,
	}
}

// WrapCloudEvent wraps a handler with execution logging and error capture.
// Panics are reported to Sentry and re-raised.
func WrapCloudEvent(serviceName string, svc *bootstrap.Service, handler HandlerFunc) func(context.Context, event.Event) error {
	return func(ctx context.Context, e event.Event) error {
		fwCtx := newContext(serviceName, svc)
		uploadID, messageID := extractEventMetadata(e)
		if uploadID != "" {
			fwCtx.Logger = fwCtx.Logger.With("upload_id", uploadID)
		}
		logger := fwCtx.Logger
		defer sentry.RecoverAndCapture(logger)

		logger.Info("Function started", "event_id", e.ID(), "event_type", e.Type(), "message_id", messageID)

		outputs, err := handler(ctx, e, fwCtx)
		if err != nil {
			logger.Error("Function failed", "error", err)
			sentry.CaptureStageError(err, serviceName, uploadID, logger)
			return err
		}

		logger.Info("Function completed successfully", "outputs", outputs)
		return nil
	}
}

// WrapHTTP wraps an HTTP handler the same way. A handler error becomes a
// 500 response with a JSON error body.
func WrapHTTP(serviceName string, svc *bootstrap.Service, handler HTTPHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fwCtx := newContext(serviceName, svc)
		logger := fwCtx.Logger
		defer sentry.RecoverAndCapture(logger)

		logger.Info("Request started", "method", r.Method, "path", r.URL.Path)
		if err := handler(w, r, fwCtx); err != nil {
			logger.Error("Request failed", "error", err)
			sentry.CaptureStageError(err, serviceName, "", logger)
			WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		logger.Info("Request completed")
	}
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// extractEventMetadata reads the upload id from the Pub/Sub payload, if any.
func extractEventMetadata(e event.Event) (uploadID, messageID string) {
	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil {
		return "", ""
	}
	messageID = msg.Message.MessageID

	var payload struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.Unmarshal(msg.Message.Data, &payload); err == nil {
		uploadID = payload.UploadID
	}
	return uploadID, messageID
}
