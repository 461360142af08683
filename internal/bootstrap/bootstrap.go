package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vkurennov/medarchive/internal/config"
	"github.com/vkurennov/medarchive/internal/core/catalog"
	"github.com/vkurennov/medarchive/internal/core/ports"
	"github.com/vkurennov/medarchive/internal/core/usecase"
	"github.com/vkurennov/medarchive/internal/infrastructure/fetch"
	"github.com/vkurennov/medarchive/internal/infrastructure/llm/ollama"
	"github.com/vkurennov/medarchive/internal/infrastructure/notify/botapi"
	"github.com/vkurennov/medarchive/internal/infrastructure/pdfinfo"
	"github.com/vkurennov/medarchive/internal/infrastructure/queue/nats"
	"github.com/vkurennov/medarchive/internal/infrastructure/repository/postgres"
	"github.com/vkurennov/medarchive/internal/infrastructure/resilience"
	"github.com/vkurennov/medarchive/internal/infrastructure/storage/localfs"
)

type App struct {
	Config  config.Config
	Catalog *catalog.Catalog

	Queue        *nats.Queue
	Blobs        ports.BlobStore
	Pages        ports.PageCounter
	Notifier     ports.Notifier
	OverviewRepo ports.OverviewRepository

	Intake    *usecase.IntakeUseCase
	Batch     *usecase.BatchUseCase
	Documents *usecase.DocumentUseCase
	Overview  *usecase.OverviewUseCase

	pending ports.PendingDecisionRepository

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	metricsCatalog, err := catalog.Load()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load metrics catalog: %w", err)
	}

	blobs, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	docRepo := postgres.NewDocumentRepository(db)
	pendingRepo := postgres.NewPendingDecisionRepository(db)
	batchRepo := postgres.NewBatchRepository(db)
	overviewRepo := postgres.NewOverviewRepository(db)

	analyzer := ollama.New(cfg.OllamaURL, cfg.OllamaVisionModel, blobs, ollama.Options{
		RequestTimeout:     cfg.AnalyzeTimeout,
		ResilienceExecutor: executor,
	})
	fetcher := fetch.New(fetch.Options{
		Timeout:            cfg.FetchTimeout,
		MaxSize:            cfg.MaxDownloadBytes,
		ResilienceExecutor: executor,
	})
	notifier := botapi.New(cfg.NotifyBaseURL, botapi.Options{
		Timeout:            30 * time.Second,
		ResilienceExecutor: executor,
	})
	pages := pdfinfo.New()

	intake := usecase.NewIntakeUseCase(
		docRepo, pendingRepo, analyzer, blobs, fetcher, notifier, queue, pages, metricsCatalog,
		usecase.IntakeConfig{
			PoolWindow:  cfg.DedupPoolWindow,
			PoolLimit:   cfg.DedupPoolLimit,
			DecisionTTL: cfg.DecisionTTL,
		},
	)
	batch := usecase.NewBatchUseCase(batchRepo, fetcher, blobs, intake, pages)
	documents := usecase.NewDocumentUseCase(docRepo, queue, metricsCatalog)
	overview := usecase.NewOverviewUseCase(docRepo, overviewRepo, ollama.NewGenerator(analyzer), cfg.OverviewLookback)

	return &App{
		Config:  cfg,
		Catalog: metricsCatalog,

		Queue:        queue,
		Blobs:        blobs,
		Pages:        pages,
		Notifier:     notifier,
		OverviewRepo: overviewRepo,

		Intake:    intake,
		Batch:     batch,
		Documents: documents,
		Overview:  overview,

		pending: pendingRepo,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// RunDecisionPurger deletes expired pending decisions on a fixed interval
// until ctx is cancelled. Unclaimed prompts otherwise accumulate forever.
func (a *App) RunDecisionPurger(ctx context.Context) {
	interval := a.Config.DecisionPurgeEvery
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := a.pending.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				slog.Warn("purge_expired_decisions_failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("purged_expired_decisions", "count", purged)
			}
		}
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
