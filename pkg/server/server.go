// Package server exposes the pipeline over HTTP for Pub/Sub push
// subscriptions and scheduled syncs when not running as Cloud Functions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fitglue/heatmap/pkg/intake"
	"github.com/fitglue/heatmap/pkg/pipeline"
)

// maxPushBody bounds a push request. Public uploads arrive inline.
const maxPushBody = 32 << 20

// Processor handles one decoded pipeline message.
type Processor interface {
	Process(ctx context.Context, style intake.Style, data []byte) (intake.Result, error)
}

// Syncer runs a storage sync pass.
type Syncer interface {
	Run(ctx context.Context) (pipeline.SyncReport, error)
}

// Config contains tunables for the HTTP server.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates an *http.Server with the provided handler.
func NewServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

type handler struct {
	processor Processor
	syncer    Syncer
	logger    *slog.Logger
}

// NewRouter builds the routes:
//
//	POST /pubsub/{style}  Pub/Sub push endpoint, style is private or public
//	POST /sync            storage sync pass
//	GET  /healthz
//	GET  /metrics
func NewRouter(processor Processor, syncer Syncer, logger *slog.Logger) http.Handler {
	h := &handler{processor: processor, syncer: syncer, logger: logger.With("component", "server")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/pubsub/{style}", h.push)
	r.Post("/sync", h.sync)
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// push acknowledges every message it handled, including failed runs.
// Malformed messages get 400 and infrastructure errors 500 so that
// Pub/Sub redelivers only what can still succeed.
func (h *handler) push(w http.ResponseWriter, r *http.Request) {
	style, err := intake.ParseStyle(chi.URLParam(r, "style"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	env, err := intake.DecodeEnvelope(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.processor.Process(r.Context(), style, env.Message.Data)
	switch {
	case errors.Is(err, intake.ErrBadMessage):
		h.logger.Warn("Rejected malformed message", "message_id", env.Message.MessageID, "error", err)
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		h.logger.Error("Message handling failed", "message_id", env.Message.MessageID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"upload_id": res.UploadID,
			"status":    res.Status,
			"error":     res.Error,
		})
	}
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncer.Run(r.Context())
	if err != nil && len(report.Failed) == 0 {
		h.logger.Error("Sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	resp := struct {
		pipeline.SyncReport
		Error string `json:"error,omitempty"`
	}{SyncReport: report}
	if err != nil {
		status = http.StatusMultiStatus
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
