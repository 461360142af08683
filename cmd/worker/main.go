package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vkurennov/medarchive/internal/bootstrap"
	"github.com/vkurennov/medarchive/internal/config"
	"github.com/vkurennov/medarchive/internal/observability/logging"
	"github.com/vkurennov/medarchive/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	logger.Info("starting worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentSaved(ctx, func(handlerCtx context.Context, documentID string) error {
		received := time.Now()
		workerMetrics.StartRefresh()

		refreshCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()
		refreshErr := app.Overview.RefreshOverview(refreshCtx, documentID)

		workerMetrics.FinishRefresh("worker", time.Since(received), refreshErr)
		return refreshErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
