package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vkurennov/medarchive/internal/core/catalog"
	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/ports"
	"github.com/vkurennov/medarchive/internal/core/taxonomy"
)

// DocumentUseCase serves the browse/edit API and the manual form path.
type DocumentUseCase struct {
	docs    ports.DocumentRepository
	events  ports.EventBus
	metrics *catalog.Catalog

	now func() time.Time
}

func NewDocumentUseCase(docs ports.DocumentRepository, events ports.EventBus, metrics *catalog.Catalog) *DocumentUseCase {
	return &DocumentUseCase{
		docs:    docs,
		events:  events,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateManual persists a hand-entered document, running it through the same
// taxonomy normalization and measurement extraction as the intake pipeline.
func (uc *DocumentUseCase) CreateManual(ctx context.Context, doc *domain.Document) error {
	now := uc.now()
	doc.ID = uuid.NewString()
	doc.Category, doc.Subtype = normalizePair(doc.Category, doc.Subtype)
	if doc.Date.IsZero() {
		doc.Date = now
	}
	doc.Measurements = uc.metrics.Extract(doc.Fields, doc.Date)
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := uc.docs.Create(ctx, doc); err != nil {
		return fmt.Errorf("create manual document: %w", err)
	}
	uc.publish(ctx, doc.ID)
	return nil
}

func (uc *DocumentUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.docs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (uc *DocumentUseCase) ListByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Document, error) {
	docs, err := uc.docs.FindByDateRange(ctx, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Update overwrites document fields. Measurements are owned by intake and
// not touched here.
func (uc *DocumentUseCase) Update(ctx context.Context, doc *domain.Document) error {
	doc.Category, doc.Subtype = normalizePair(doc.Category, doc.Subtype)
	doc.UpdatedAt = uc.now()
	if err := uc.docs.Update(ctx, doc); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	uc.publish(ctx, doc.ID)
	return nil
}

// Delete removes a document; owned measurements cascade in the repository.
func (uc *DocumentUseCase) Delete(ctx context.Context, id string) error {
	if err := uc.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (uc *DocumentUseCase) MeasurementSeries(ctx context.Context, metric string) ([]domain.Measurement, error) {
	spec, ok := uc.metrics.Resolve(metric)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "measurement series", fmt.Errorf("unknown metric %q", metric))
	}
	series, err := uc.docs.MeasurementSeries(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("load measurement series: %w", err)
	}
	return series, nil
}

// Catalog exposes the metric specs for the series/export endpoints.
func (uc *DocumentUseCase) Catalog() *catalog.Catalog {
	return uc.metrics
}

// normalizePair enforces the taxonomy invariant: an inconsistent pair is
// re-derived and the subtype's canonical category wins.
func normalizePair(category taxonomy.Category, subtype taxonomy.Subtype) (taxonomy.Category, taxonomy.Subtype) {
	if taxonomy.Valid(category, subtype) {
		return category, subtype
	}
	return taxonomy.Normalize(string(category), string(subtype))
}

func (uc *DocumentUseCase) publish(ctx context.Context, documentID string) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishDocumentSaved(ctx, documentID); err != nil {
		slog.Warn("publish_document_saved_failed", "document_id", documentID, "error", err)
	}
}
