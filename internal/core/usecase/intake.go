package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vkurennov/medarchive/internal/core/catalog"
	"github.com/vkurennov/medarchive/internal/core/dedup"
	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/ports"
	"github.com/vkurennov/medarchive/internal/core/taxonomy"
)

// IntakeConfig bounds the duplicate candidate pool and the pending decision
// lifetime.
type IntakeConfig struct {
	PoolWindow  time.Duration
	PoolLimit   int
	DecisionTTL time.Duration
}

func (c IntakeConfig) normalize() IntakeConfig {
	out := c
	if out.PoolWindow <= 0 {
		out.PoolWindow = 7 * 24 * time.Hour
	}
	if out.PoolLimit <= 0 {
		out.PoolLimit = 50
	}
	if out.DecisionTTL <= 0 {
		out.DecisionTTL = time.Hour
	}
	return out
}

// IntakeUseCase drives one submission through the full pipeline: store files,
// analyze, normalize, duplicate-check, then save or park a pending decision.
type IntakeUseCase struct {
	docs     ports.DocumentRepository
	pending  ports.PendingDecisionRepository
	analyzer ports.Analyzer
	blobs    ports.BlobStore
	fetcher  ports.FileFetcher
	notifier ports.Notifier
	events   ports.EventBus
	pages    ports.PageCounter
	metrics  *catalog.Catalog
	cfg      IntakeConfig

	now func() time.Time
}

func NewIntakeUseCase(
	docs ports.DocumentRepository,
	pending ports.PendingDecisionRepository,
	analyzer ports.Analyzer,
	blobs ports.BlobStore,
	fetcher ports.FileFetcher,
	notifier ports.Notifier,
	events ports.EventBus,
	pages ports.PageCounter,
	metrics *catalog.Catalog,
	cfg IntakeConfig,
) *IntakeUseCase {
	return &IntakeUseCase{
		docs:     docs,
		pending:  pending,
		analyzer: analyzer,
		blobs:    blobs,
		fetcher:  fetcher,
		notifier: notifier,
		events:   events,
		pages:    pages,
		metrics:  metrics,
		cfg:      cfg.normalize(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *IntakeUseCase) Ingest(ctx context.Context, sub ports.Submission) (ports.IntakeOutcome, error) {
	files, err := uc.storeFiles(ctx, sub)
	if err != nil {
		return ports.IntakeOutcome{}, err
	}
	if len(files) == 0 {
		return ports.IntakeOutcome{}, domain.WrapError(domain.ErrInvalidInput, "ingest", fmt.Errorf("submission has no files"))
	}

	analysis := uc.analyze(ctx, files)
	candidate := uc.buildCandidate(analysis, files, sub.Caption)

	pool, err := uc.candidatePool(ctx, candidate.Date)
	if err != nil {
		return ports.IntakeOutcome{}, err
	}

	idx, match := dedup.FindFirst(signalsOf(pool), signalOf(candidate))
	if idx < 0 {
		if err := uc.saveNew(ctx, candidate); err != nil {
			return ports.IntakeOutcome{}, err
		}
		return ports.IntakeOutcome{DocumentID: candidate.ID}, nil
	}

	pendingID, err := uc.parkPending(ctx, sub.ConversationKey, candidate, &pool[idx], match)
	if err != nil {
		return ports.IntakeOutcome{}, err
	}
	return ports.IntakeOutcome{
		PendingID:  pendingID,
		Duplicate:  true,
		Reason:     match.Reason,
		Confidence: match.Confidence,
	}, nil
}

// storeFiles resolves every inbound file to durable storage. Batch pages are
// already durable and pass through unchanged.
func (uc *IntakeUseCase) storeFiles(ctx context.Context, sub ports.Submission) ([]domain.FileRef, error) {
	if len(sub.StoredFiles) > 0 {
		return sub.StoredFiles, nil
	}

	out := make([]domain.FileRef, 0, len(sub.Files))
	for _, in := range sub.Files {
		data, err := uc.fetcher.Fetch(ctx, in.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("fetch inbound file: %w", err)
		}
		url, err := uc.blobs.Put(ctx, bytes.NewReader(data), in.Filename, in.MimeType)
		if err != nil {
			return nil, fmt.Errorf("store inbound file: %w", err)
		}
		out = append(out, domain.FileRef{
			URL:       url,
			Filename:  in.Filename,
			MimeType:  in.MimeType,
			PageCount: uc.pages.CountPages(data, in.MimeType),
		})
	}
	return out, nil
}

// analyze makes exactly one analyzer call per submission. Total analyzer
// failure degrades to the manual-review fallback instead of losing the
// submission.
func (uc *IntakeUseCase) analyze(ctx context.Context, files []domain.FileRef) domain.AnalysisResult {
	var (
		result domain.AnalysisResult
		err    error
	)
	if len(files) == 1 {
		result, err = uc.analyzer.Analyze(ctx, files[0])
	} else {
		result, err = uc.analyzer.AnalyzeMultiple(ctx, files)
	}
	if err != nil {
		slog.Warn("analyzer_failed_fallback", "error", err, "files", len(files))
		return domain.FallbackAnalysis(files[0].Filename)
	}
	return result
}

func (uc *IntakeUseCase) buildCandidate(analysis domain.AnalysisResult, files []domain.FileRef, caption string) domain.Document {
	now := uc.now()
	category, subtype := taxonomy.Normalize(analysis.Category, analysis.Subtype)

	doc := domain.Document{
		ID:              uuid.NewString(),
		Date:            uc.documentDate(analysis.Date),
		Category:        category,
		Subtype:         subtype,
		Title:           analysis.Title,
		Doctor:          analysis.Doctor,
		Specialty:       analysis.Specialty,
		Clinic:          analysis.Clinic,
		Summary:         analysis.Summary,
		Conclusion:      analysis.Conclusion,
		Recommendations: analysis.Recommendations,
		Content:         caption,
		File:            &files[0],
		Tags:            analysis.Tags,
		Fields:          analysis.Fields,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return doc
}

// documentDate takes the analyzer-provided date when parseable, else "now".
func (uc *IntakeUseCase) documentDate(raw string) time.Time {
	for _, layout := range []string{"2006-01-02", "02.01.2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return uc.now()
}

func (uc *IntakeUseCase) candidatePool(ctx context.Context, date time.Time) ([]domain.Document, error) {
	from := date.Add(-uc.cfg.PoolWindow)
	to := date.Add(uc.cfg.PoolWindow)
	pool, err := uc.docs.FindByDateRange(ctx, from, to, uc.cfg.PoolLimit)
	if err != nil {
		return nil, fmt.Errorf("query duplicate candidate pool: %w", err)
	}
	return pool, nil
}

// saveNew persists the document with its extracted measurements as one
// atomic unit and emits the post-commit event. The event is fire-and-forget:
// a publish failure is logged, never surfaced to the submission.
func (uc *IntakeUseCase) saveNew(ctx context.Context, doc domain.Document) error {
	doc.Measurements = uc.metrics.Extract(doc.Fields, doc.Date)
	if err := uc.docs.Create(ctx, &doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	uc.publishSaved(ctx, doc.ID)
	return nil
}

func (uc *IntakeUseCase) parkPending(
	ctx context.Context,
	conversationKey string,
	candidate domain.Document,
	existing *domain.Document,
	match dedup.Match,
) (string, error) {
	now := uc.now()
	decision := &domain.PendingDecision{
		ID:              uuid.NewString(),
		ConversationKey: conversationKey,
		Candidate:       candidate,
		ExistingID:      existing.ID,
		ExpiresAt:       now.Add(uc.cfg.DecisionTTL),
		CreatedAt:       now,
	}
	if err := uc.pending.Create(ctx, decision); err != nil {
		return "", fmt.Errorf("create pending decision: %w", err)
	}

	// Web-form uploads carry no conversation. The decision still parks and
	// is resolvable through the API; it expires on its own otherwise.
	if conversationKey == "" {
		return decision.ID, nil
	}

	promptRef, err := uc.notifier.Notify(ctx, conversationKey, duplicatePromptText(existing, match), resolutionOptions(decision.ID))
	if err != nil {
		return "", fmt.Errorf("send duplicate prompt: %w", err)
	}
	if err := uc.pending.SetPromptRef(ctx, decision.ID, promptRef); err != nil {
		return "", fmt.Errorf("attach prompt ref: %w", err)
	}
	return decision.ID, nil
}

func duplicatePromptText(existing *domain.Document, match dedup.Match) string {
	return fmt.Sprintf(
		"Похоже, такой документ уже есть: «%s» от %s (%s, уверенность %.0f%%). Что сделать?",
		existing.Title,
		existing.Date.Format("02.01.2006"),
		match.Reason,
		match.Confidence*100,
	)
}

func resolutionOptions(decisionID string) []ports.NotifyOption {
	return []ports.NotifyOption{
		{Label: "Добавить как новый", Data: "dup:" + string(domain.ResolutionAddNew) + ":" + decisionID},
		{Label: "Заменить существующий", Data: "dup:" + string(domain.ResolutionReplace) + ":" + decisionID},
		{Label: "Отмена", Data: "dup:" + string(domain.ResolutionCancel) + ":" + decisionID},
	}
}

func signalOf(doc domain.Document) dedup.Signal {
	return dedup.Signal{
		Doctor:     doc.Doctor,
		Date:       doc.Date,
		Conclusion: doc.Conclusion,
		Title:      doc.Title,
		Fields:     doc.Fields,
	}
}

func signalsOf(docs []domain.Document) []dedup.Signal {
	out := make([]dedup.Signal, len(docs))
	for i := range docs {
		out[i] = signalOf(docs[i])
	}
	return out
}

func (uc *IntakeUseCase) publishSaved(ctx context.Context, documentID string) {
	if err := uc.events.PublishDocumentSaved(ctx, documentID); err != nil {
		slog.Warn("publish_document_saved_failed", "document_id", documentID, "error", err)
	}
}
