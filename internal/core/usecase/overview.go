package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vkurennov/medarchive/internal/core/ports"
)

// OverviewUseCase regenerates the derived health overview after a document
// save. It runs in the worker, decoupled from the intake pipeline by the
// event bus.
type OverviewUseCase struct {
	docs      ports.DocumentRepository
	overview  ports.OverviewRepository
	generator ports.OverviewGenerator
	lookback  time.Duration

	now func() time.Time
}

func NewOverviewUseCase(
	docs ports.DocumentRepository,
	overview ports.OverviewRepository,
	generator ports.OverviewGenerator,
	lookback time.Duration,
) *OverviewUseCase {
	if lookback <= 0 {
		lookback = 180 * 24 * time.Hour
	}
	return &OverviewUseCase{
		docs:      docs,
		overview:  overview,
		generator: generator,
		lookback:  lookback,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *OverviewUseCase) RefreshOverview(ctx context.Context, documentID string) error {
	now := uc.now()
	docs, err := uc.docs.FindByDateRange(ctx, now.Add(-uc.lookback), now, 100)
	if err != nil {
		return fmt.Errorf("load recent documents: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	text, err := uc.generator.GenerateOverview(ctx, docs)
	if err != nil {
		return fmt.Errorf("generate overview: %w", err)
	}
	if err := uc.overview.Save(ctx, text, now); err != nil {
		return fmt.Errorf("save overview: %w", err)
	}
	return nil
}
