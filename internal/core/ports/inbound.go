package ports

import (
	"context"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
)

// InboundFile is one submitted file before it is fetched and stored.
type InboundFile struct {
	SourceURL string
	Filename  string
	MimeType  string
}

// Submission is one logical intake request: one image, several images that
// form one document, or a finished batch. Batch pages arrive already stored
// and skip the fetch step.
type Submission struct {
	ConversationKey string
	Files           []InboundFile
	StoredFiles     []domain.FileRef
	Caption         string
}

// IntakeOutcome reports what a submission produced.
type IntakeOutcome struct {
	DocumentID string
	PendingID  string
	Duplicate  bool
	Reason     string
	Confidence float64
}

// DocumentIntake is the inbound contract for the intake pipeline and the
// out-of-band duplicate resolution callback.
type DocumentIntake interface {
	Ingest(ctx context.Context, sub Submission) (IntakeOutcome, error)
	Resolve(ctx context.Context, decisionID string, action domain.ResolutionAction, conversationKey string) error
}

// BatchOutcome reports a batch transition result to the conversation.
type BatchOutcome struct {
	HadSession bool
	Pages      int
	Forwarded  bool
	Intake     *IntakeOutcome
}

// BatchCollector accumulates pages sent one at a time into one multi-page
// submission.
type BatchCollector interface {
	Start(ctx context.Context, conversationKey string) (BatchOutcome, error)
	AddPage(ctx context.Context, conversationKey string, file InboundFile) (BatchOutcome, error)
	Cancel(ctx context.Context, conversationKey string) (BatchOutcome, error)
	Finish(ctx context.Context, conversationKey string, caption string) (BatchOutcome, error)
}

// DocumentService is the inbound read/edit model for the browse API.
type DocumentService interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	Delete(ctx context.Context, id string) error
	MeasurementSeries(ctx context.Context, metric string) ([]domain.Measurement, error)
}

// OverviewRefresher is the worker's inbound contract.
type OverviewRefresher interface {
	RefreshOverview(ctx context.Context, documentID string) error
}
