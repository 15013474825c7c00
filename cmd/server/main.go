package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitglue/heatmap/pkg/bootstrap"
	"github.com/fitglue/heatmap/pkg/infrastructure/sentry"
	"github.com/fitglue/heatmap/pkg/server"
)

const serviceName = "heatmap-server"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := bootstrap.NewService(ctx, serviceName)
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	logger := bootstrap.NewLogger(serviceName, svc.Config.LogLevel)
	p, syncer := bootstrap.NewPipeline(ctx, svc, logger)
	processor := bootstrap.NewProcessor(svc, p, logger)

	srv := server.NewServer(server.Config{
		Address:      ":" + svc.Config.Port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}, server.NewRouter(processor, syncer, logger))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	logger.Info("Shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}
