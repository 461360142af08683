package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/ports"
)

// BatchUseCase accumulates pages sent one at a time into one ordered
// multi-page submission. All session state lives in the repository so
// concurrent webhook calls for the same conversation observe the same
// session.
type BatchUseCase struct {
	batches ports.BatchRepository
	fetcher ports.FileFetcher
	blobs   ports.BlobStore
	intake  ports.DocumentIntake
	pages   ports.PageCounter

	now func() time.Time
}

func NewBatchUseCase(
	batches ports.BatchRepository,
	fetcher ports.FileFetcher,
	blobs ports.BlobStore,
	intake ports.DocumentIntake,
	pages ports.PageCounter,
) *BatchUseCase {
	return &BatchUseCase{
		batches: batches,
		fetcher: fetcher,
		blobs:   blobs,
		intake:  intake,
		pages:   pages,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a session. Starting an already-active session is idempotent:
// the accumulated pages survive and the current count is reported.
func (uc *BatchUseCase) Start(ctx context.Context, conversationKey string) (ports.BatchOutcome, error) {
	_, pages, err := uc.batches.Start(ctx, conversationKey, uc.now())
	if err != nil {
		return ports.BatchOutcome{}, fmt.Errorf("start batch session: %w", err)
	}
	return ports.BatchOutcome{HadSession: true, Pages: pages}, nil
}

// AddPage downloads the inbound file immediately and appends it to the
// active session. Valid only while a session is active. The session is
// checked before the download so a no-session call stores nothing.
func (uc *BatchUseCase) AddPage(ctx context.Context, conversationKey string, file ports.InboundFile) (ports.BatchOutcome, error) {
	active, err := uc.batches.Active(ctx, conversationKey)
	if err != nil {
		return ports.BatchOutcome{}, fmt.Errorf("check batch session: %w", err)
	}
	if !active {
		return ports.BatchOutcome{}, domain.WrapError(domain.ErrNoActiveBatch, "append batch page", errors.New(conversationKey))
	}

	data, err := uc.fetcher.Fetch(ctx, file.SourceURL)
	if err != nil {
		return ports.BatchOutcome{}, fmt.Errorf("fetch batch page: %w", err)
	}
	url, err := uc.blobs.Put(ctx, bytes.NewReader(data), file.Filename, file.MimeType)
	if err != nil {
		return ports.BatchOutcome{}, fmt.Errorf("store batch page: %w", err)
	}

	count, err := uc.batches.AddPage(ctx, conversationKey, domain.FileRef{
		URL:       url,
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		PageCount: uc.pages.CountPages(data, file.MimeType),
	}, uc.now())
	if err != nil {
		return ports.BatchOutcome{}, fmt.Errorf("append batch page: %w", err)
	}
	return ports.BatchOutcome{HadSession: true, Pages: count}, nil
}

// Cancel discards the session and its pages, if any existed.
func (uc *BatchUseCase) Cancel(ctx context.Context, conversationKey string) (ports.BatchOutcome, error) {
	pages, existed, err := uc.batches.Cancel(ctx, conversationKey)
	if err != nil {
		return ports.BatchOutcome{}, fmt.Errorf("cancel batch session: %w", err)
	}
	return ports.BatchOutcome{HadSession: existed, Pages: pages}, nil
}

// Finish atomically claims the session's pages and forwards them, oldest
// first, to the intake pipeline as one multi-page submission. A session that
// collected nothing is torn down and reported as such; no document is made.
func (uc *BatchUseCase) Finish(ctx context.Context, conversationKey string, caption string) (ports.BatchOutcome, error) {
	pages, existed, err := uc.batches.ClaimAll(ctx, conversationKey)
	if err != nil {
		return ports.BatchOutcome{}, fmt.Errorf("claim batch session: %w", err)
	}
	if !existed || len(pages) == 0 {
		return ports.BatchOutcome{HadSession: existed, Pages: 0}, nil
	}

	stored := make([]domain.FileRef, len(pages))
	for i, page := range pages {
		stored[i] = page.File
	}
	outcome, err := uc.intake.Ingest(ctx, ports.Submission{
		ConversationKey: conversationKey,
		StoredFiles:     stored,
		Caption:         caption,
	})
	if err != nil {
		return ports.BatchOutcome{}, fmt.Errorf("forward collected pages: %w", err)
	}
	return ports.BatchOutcome{
		HadSession: true,
		Pages:      len(pages),
		Forwarded:  true,
		Intake:     &outcome,
	}, nil
}
