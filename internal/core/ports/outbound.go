package ports

import (
	"context"
	"io"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
)

// DocumentRepository persists documents together with their owned
// measurements. Create and Update are atomic over both.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	FindByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	MeasurementSeries(ctx context.Context, metric string) ([]domain.Measurement, error)
}

// PendingDecisionRepository holds unresolved duplicate decisions. Claim is
// the atomic check-then-delete: exactly one caller gets the decision back,
// any later caller observes domain.ErrDecisionExpired.
type PendingDecisionRepository interface {
	Create(ctx context.Context, decision *domain.PendingDecision) error
	SetPromptRef(ctx context.Context, id, promptRef string) error
	Claim(ctx context.Context, id string, now time.Time) (*domain.PendingDecision, error)
	CountByConversation(ctx context.Context, conversationKey string) (int, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// BatchRepository holds in-progress page collections keyed by conversation.
// ClaimAll atomically removes and returns the session's pages so concurrent
// finish calls cannot both forward them.
type BatchRepository interface {
	Start(ctx context.Context, conversationKey string, now time.Time) (created bool, pages int, err error)
	Active(ctx context.Context, conversationKey string) (bool, error)
	AddPage(ctx context.Context, conversationKey string, file domain.FileRef, receivedAt time.Time) (count int, err error)
	Cancel(ctx context.Context, conversationKey string) (pages int, existed bool, err error)
	ClaimAll(ctx context.Context, conversationKey string) (pagesOldestFirst []domain.BatchPage, existed bool, err error)
}

// OverviewRepository stores the derived health overview regenerated by the
// worker after each save.
type OverviewRepository interface {
	Save(ctx context.Context, text string, updatedAt time.Time) error
	Get(ctx context.Context) (string, time.Time, error)
}

// Analyzer is the external AI document analysis call. Multi-file submissions
// go through AnalyzeMultiple in a single call so the model sees every page of
// one logical document together.
type Analyzer interface {
	Analyze(ctx context.Context, file domain.FileRef) (domain.AnalysisResult, error)
	AnalyzeMultiple(ctx context.Context, files []domain.FileRef) (domain.AnalysisResult, error)
}

// BlobStore persists raw file bytes and returns a durable URL.
type BlobStore interface {
	Put(ctx context.Context, data io.Reader, suggestedName, mimeType string) (string, error)
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// FileFetcher downloads an inbound file from its source channel.
type FileFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// NotifyOption is one interactive button attached to an outbound message.
type NotifyOption struct {
	Label string
	Data  string
}

// Notifier sends messages back into the originating conversation and edits
// previously sent prompts in place.
type Notifier interface {
	Notify(ctx context.Context, conversationKey, text string, options []NotifyOption) (messageRef string, err error)
	EditNotification(ctx context.Context, conversationKey, messageRef, text string) error
}

// EventBus carries post-commit events: the orchestrator only emits, an
// independent worker consumes.
type EventBus interface {
	PublishDocumentSaved(ctx context.Context, documentID string) error
	SubscribeDocumentSaved(ctx context.Context, handler func(context.Context, string) error) error
}

// OverviewGenerator produces the derived health overview text from recent
// documents.
type OverviewGenerator interface {
	GenerateOverview(ctx context.Context, docs []domain.Document) (string, error)
}

// PageCounter inspects raw file bytes and reports the page count when the
// format carries one (PDF), zero otherwise.
type PageCounter interface {
	CountPages(data []byte, mimeType string) int
}
