package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"

	shared "github.com/fitglue/heatmap/pkg"
	"github.com/fitglue/heatmap/pkg/domain/codec"
	"github.com/fitglue/heatmap/pkg/domain/gpx"
	"github.com/fitglue/heatmap/pkg/domain/heatmap"
	"github.com/fitglue/heatmap/pkg/infrastructure/database"
	"github.com/fitglue/heatmap/pkg/infrastructure/oauth"
	infrapubsub "github.com/fitglue/heatmap/pkg/infrastructure/pubsub"
	"github.com/fitglue/heatmap/pkg/infrastructure/sentry"
	infrastorage "github.com/fitglue/heatmap/pkg/infrastructure/storage"
	"github.com/fitglue/heatmap/pkg/intake"
	"github.com/fitglue/heatmap/pkg/integrations/strava"
	"github.com/fitglue/heatmap/pkg/pipeline"
)

// Config holds standard configuration for all services
type Config struct {
	ProjectID     string
	Environment   string
	EnablePublish bool
	LogLevel      slog.Level

	Bucket            string
	PublicInputBucket string
	OutputBucket      string
	OrigFitFolder     string
	ScratchDir        string

	JavaBin       string
	FitCSVToolJar string

	TopicRepairResults string
	FrontendBaseURL    string
	DownloadLinkTTL    time.Duration
	MessageTTL         time.Duration

	Strava    oauth.Credentials
	SentryDSN string
	Port      string
}

// Service holds initialized dependencies
type Service struct {
	DB     shared.Database
	Store  shared.BlobStore
	Pub    shared.Publisher
	Config *Config
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig reads configuration from environment variables
func LoadConfig() *Config {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		projectID = shared.ProjectID // Fallback
	}
	enablePublish, _ := strconv.ParseBool(os.Getenv("ENABLE_PUBLISH"))

	return &Config{
		ProjectID:     projectID,
		Environment:   getenv("ENVIRONMENT", "dev"),
		EnablePublish: enablePublish,
		LogLevel:      ParseLevel(os.Getenv("LOG_LEVEL")),

		Bucket:            os.Getenv("GCS_BUCKET_NAME"),
		PublicInputBucket: os.Getenv("GCS_PUB_INPUT_BUCKET"),
		OutputBucket:      os.Getenv("GCS_PUB_OUTPUT_BUCKET"),
		OrigFitFolder:     getenv("GCS_ORIG_FIT_FOLDER", shared.DefaultOrigFitFolder),
		ScratchDir:        getenv("SCRATCH_DIR", "/tmp"),

		JavaBin:       getenv("JAVA_BIN", "java"),
		FitCSVToolJar: getenv("FIT_CSV_TOOL_JAR", "/opt/fitsdk/FitCSVTool.jar"),

		TopicRepairResults: getenv("TOPIC_REPAIR_RESULTS", shared.TopicRepairResults),
		FrontendBaseURL:    os.Getenv("FRONTEND_BASE_URL"),
		DownloadLinkTTL:    getDuration("DOWNLOAD_LINK_TTL", time.Hour),
		MessageTTL:         getDuration("MESSAGE_TTL", 24*time.Hour),

		Strava: oauth.Credentials{
			ClientID:     os.Getenv("STRAVA_CLIENT_ID"),
			ClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
			RefreshToken: os.Getenv("STRAVA_REFRESH_TOKEN"),
		},
		SentryDSN: os.Getenv("SENTRY_DSN"),
		Port:      getenv("PORT", "8080"),
	}
}

// Validate reports configuration the pipeline cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Bucket == "" {
		missing = append(missing, "GCS_BUCKET_NAME")
	}
	if c.OutputBucket == "" {
		missing = append(missing, "GCS_PUB_OUTPUT_BUCKET")
	}
	if c.FrontendBaseURL == "" {
		missing = append(missing, "FRONTEND_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SourcePrefix is the storage prefix the synced activity files land under.
func (c *Config) SourcePrefix() string {
	return strings.TrimSuffix(c.OrigFitFolder, "/") + "/"
}

// GetSlogHandlerOptions returns standard handler options for GCP
func GetSlogHandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Map standard keys to Cloud Logging keys
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{Key: "severity", Value: a.Value}
			}
			return a
		},
	}
}

// ComponentHandler wraps a slog.Handler to prepend [component] to the message
type ComponentHandler struct {
	slog.Handler
	component string
}

// WithGroup implements slog.Handler
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{
		Handler:   h.Handler.WithGroup(name),
		component: h.component,
	}
}

// WithAttrs implements slog.Handler
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newComp := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			newComp = a.Value.String()
		}
	}
	return &ComponentHandler{
		Handler:   h.Handler.WithAttrs(attrs),
		component: newComp,
	}
}

// Handle implements slog.Handler
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	comp := h.component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			comp = a.Value.String()
			return false
		}
		return true
	})

	if comp != "" {
		newRecord := slog.NewRecord(r.Time, r.Level, fmt.Sprintf("[%s] %s", comp, r.Message), r.PC)
		r.Attrs(func(a slog.Attr) bool {
			newRecord.AddAttrs(a)
			return true
		})
		r = newRecord
	}

	return h.Handler.Handle(ctx, r)
}

// NewLogger creates a configured logger instance
func NewLogger(serviceName string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, GetSlogHandlerOptions(level))
	return slog.New(&ComponentHandler{Handler: handler}).With("service", serviceName)
}

// InitLogger installs the service logger as the slog default
func InitLogger(serviceName string, level slog.Level) *slog.Logger {
	logger := NewLogger(serviceName, level)
	slog.SetDefault(logger)
	return logger
}

// NewService initializes all standard dependencies
func NewService(ctx context.Context, serviceName string) (*Service, error) {
	cfg := LoadConfig()
	logger := InitLogger(serviceName, cfg.LogLevel)

	logger.Info("Initializing service", "project_id", cfg.ProjectID, "environment", cfg.Environment)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := sentry.Init(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		ServerName:  serviceName,
	}, logger); err != nil {
		// error tracking is optional
		logger.Warn("Continuing without Sentry", "error", err)
	}

	// Firestore
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore init failed", "error", err)
		return nil, fmt.Errorf("firestore init: %w", err)
	}

	// Pub/Sub
	var pubAdapter shared.Publisher
	if cfg.EnablePublish {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub init failed", "error", err)
			return nil, fmt.Errorf("pubsub init: %w", err)
		}
		pubAdapter = &infrapubsub.PubSubAdapter{Client: psClient}
		logger.Info("Pub/Sub: REAL (ENABLE_PUBLISH=true)")
	} else {
		pubAdapter = &infrapubsub.LogPublisher{Logger: logger}
		logger.Info("Pub/Sub: MOCK (LogPublisher)")
	}

	// Storage
	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		logger.Error("Storage init failed", "error", err)
		return nil, fmt.Errorf("storage init: %w", err)
	}

	return &Service{
		DB:     database.NewFirestoreAdapter(fsClient),
		Pub:    pubAdapter,
		Store:  &infrastorage.StorageAdapter{Client: gcsClient},
		Config: cfg,
	}, nil
}

// NewStravaUploader returns a Strava client for the configured account, or
// nil when no credentials are set.
func NewStravaUploader(ctx context.Context, creds oauth.Credentials, logger *slog.Logger) *strava.Client {
	if !creds.Configured() {
		logger.Warn("Strava credentials not configured, uploads unavailable")
		return nil
	}
	src := oauth.NewTokenSource(creds, func(t *oauth2.Token) error {
		logger.Info("Strava access token refreshed", "expiry", t.Expiry)
		return nil
	})
	return strava.NewClient(oauth.NewClient(ctx, src))
}

// NewPipeline wires the activity pipeline and the storage syncer from svc.
func NewPipeline(ctx context.Context, svc *Service, logger *slog.Logger) (*pipeline.Pipeline, *pipeline.Syncer) {
	cfg := svc.Config

	deps := pipeline.Deps{
		Blobs:     svc.Store,
		Codec:     codec.NewFitCSVTool(cfg.JavaBin, cfg.FitCSVToolJar, cfg.ScratchDir, codec.WithLogger(logger)),
		Converter: gpx.FileConverter{},
		Merger:    heatmap.NewComposer(svc.Store, svc.DB, cfg.Bucket, logger),
		Switch:    svc.DB,
		Links:     svc.DB,
		Notifier:  &pipeline.EventNotifier{Publisher: svc.Pub, Topic: cfg.TopicRepairResults},
	}
	// A nil *strava.Client must not become a non-nil interface.
	if up := NewStravaUploader(ctx, cfg.Strava, logger); up != nil {
		deps.Uploader = up
	}

	p := pipeline.New(pipeline.Config{
		Bucket:            cfg.Bucket,
		PublicInputBucket: cfg.PublicInputBucket,
		OutputBucket:      cfg.OutputBucket,
		ScratchDir:        cfg.ScratchDir,
		FrontendBaseURL:   cfg.FrontendBaseURL,
		LinkTTL:           cfg.DownloadLinkTTL,
	}, deps, logger)

	syncer := pipeline.NewSyncer(svc.Store, svc.DB, p, cfg.Bucket, cfg.SourcePrefix(), logger)
	return p, syncer
}

// NewProcessor wires the message intake onto the pipeline.
func NewProcessor(svc *Service, p *pipeline.Pipeline, logger *slog.Logger) *intake.Processor {
	return intake.NewProcessor(svc.DB, p, svc.Config.OrigFitFolder, svc.Config.MessageTTL, logger)
}
