package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/vkurennov/medarchive/internal/adapters/http"
	"github.com/vkurennov/medarchive/internal/bootstrap"
	"github.com/vkurennov/medarchive/internal/config"
	"github.com/vkurennov/medarchive/internal/observability/logging"
	"github.com/vkurennov/medarchive/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	logger.Info("starting api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go app.RunDecisionPurger(ctx)

	router := httpadapter.NewRouter(
		app.Intake,
		app.Batch,
		app.Documents,
		app.OverviewRepo,
		app.Blobs,
		app.Pages,
		app.Notifier,
		metrics.NewHTTPServerMetrics("api"),
		httpadapter.Config{
			Service:        "api",
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			MaxConcurrent:  cfg.MaxConcurrent,
			EnqueueWait:    cfg.EnqueueWait,
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
