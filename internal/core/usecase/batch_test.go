package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/ports"
)

// batchRepoFake mimics the repository's atomic claim semantics in memory.
type batchRepoFake struct {
	mu       sync.Mutex
	sessions map[string][]domain.BatchPage
}

func newBatchRepoFake() *batchRepoFake {
	return &batchRepoFake{sessions: make(map[string][]domain.BatchPage)}
}

func (f *batchRepoFake) Start(_ context.Context, key string, _ time.Time) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pages, ok := f.sessions[key]; ok {
		return false, len(pages), nil
	}
	f.sessions[key] = []domain.BatchPage{}
	return true, 0, nil
}

func (f *batchRepoFake) Active(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[key]
	return ok, nil
}

func (f *batchRepoFake) AddPage(_ context.Context, key string, file domain.FileRef, receivedAt time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages, ok := f.sessions[key]
	if !ok {
		return 0, domain.ErrNoActiveBatch
	}
	seq := len(pages) + 1
	f.sessions[key] = append(pages, domain.BatchPage{
		Key:        fmt.Sprintf("%s-p%d", key, seq),
		File:       file,
		Seq:        seq,
		ReceivedAt: receivedAt,
	})
	return seq, nil
}

func (f *batchRepoFake) Cancel(_ context.Context, key string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages, ok := f.sessions[key]
	delete(f.sessions, key)
	return len(pages), ok, nil
}

func (f *batchRepoFake) ClaimAll(_ context.Context, key string) ([]domain.BatchPage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages, ok := f.sessions[key]
	delete(f.sessions, key)
	return pages, ok, nil
}

type intakeSpy struct {
	submissions []ports.Submission
}

func (s *intakeSpy) Ingest(_ context.Context, sub ports.Submission) (ports.IntakeOutcome, error) {
	s.submissions = append(s.submissions, sub)
	return ports.IntakeOutcome{DocumentID: "doc-1"}, nil
}

func (s *intakeSpy) Resolve(context.Context, string, domain.ResolutionAction, string) error {
	return nil
}

func newBatchEnv() (*BatchUseCase, *batchRepoFake, *intakeSpy) {
	repo := newBatchRepoFake()
	intake := &intakeSpy{}
	uc := NewBatchUseCase(repo, &fetcherFake{}, newBlobFake(), intake, pageCounterFake{})
	return uc, repo, intake
}

func page(url string) ports.InboundFile {
	return ports.InboundFile{SourceURL: url, Filename: url + ".jpg", MimeType: "image/jpeg"}
}

func TestBatchStartIsIdempotent(t *testing.T) {
	uc, _, _ := newBatchEnv()
	ctx := context.Background()

	if _, err := uc.Start(ctx, "chat-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := uc.AddPage(ctx, "chat-1", page("p1")); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}

	outcome, err := uc.Start(ctx, "chat-1")
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if outcome.Pages != 1 {
		t.Fatalf("second start must keep accumulated pages, got %d", outcome.Pages)
	}
}

func TestBatchAddPageWithoutSessionFails(t *testing.T) {
	uc, _, _ := newBatchEnv()
	_, err := uc.AddPage(context.Background(), "chat-1", page("p1"))
	if !domain.IsKind(err, domain.ErrNoActiveBatch) {
		t.Fatalf("expected ErrNoActiveBatch, got %v", err)
	}
}

func TestBatchAddPageWithoutSessionDownloadsNothing(t *testing.T) {
	fetcher := &fetcherFake{}
	blobs := newBlobFake()
	uc := NewBatchUseCase(newBatchRepoFake(), fetcher, blobs, &intakeSpy{}, pageCounterFake{})

	_, err := uc.AddPage(context.Background(), "chat-1", page("p1"))
	if !domain.IsKind(err, domain.ErrNoActiveBatch) {
		t.Fatalf("expected ErrNoActiveBatch, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatalf("no-session add must not download the file, got %d fetches", fetcher.calls)
	}
	if len(blobs.saved) != 0 {
		t.Fatalf("no-session add must leave no stored blobs, got %d", len(blobs.saved))
	}
}

func TestBatchFinishForwardsPagesInReceiptOrder(t *testing.T) {
	uc, _, intake := newBatchEnv()
	ctx := context.Background()

	if _, err := uc.Start(ctx, "chat-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, name := range []string{"p1", "p2", "p3"} {
		if _, err := uc.AddPage(ctx, "chat-1", page(name)); err != nil {
			t.Fatalf("AddPage(%s) error = %v", name, err)
		}
	}

	outcome, err := uc.Finish(ctx, "chat-1", "три страницы")
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !outcome.Forwarded || outcome.Pages != 3 {
		t.Fatalf("expected 3 pages forwarded, got %+v", outcome)
	}
	if len(intake.submissions) != 1 {
		t.Fatalf("expected one submission, got %d", len(intake.submissions))
	}
	stored := intake.submissions[0].StoredFiles
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored files, got %d", len(stored))
	}
	for i, name := range []string{"p1.jpg", "p2.jpg", "p3.jpg"} {
		if stored[i].Filename != name {
			t.Fatalf("page %d out of order: got %q want %q", i, stored[i].Filename, name)
		}
	}
}

func TestBatchEmptyFinishReportsNothingCollected(t *testing.T) {
	uc, repo, intake := newBatchEnv()
	ctx := context.Background()

	if _, err := uc.Start(ctx, "chat-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	outcome, err := uc.Finish(ctx, "chat-1", "")
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if outcome.Forwarded || outcome.Pages != 0 || !outcome.HadSession {
		t.Fatalf("expected empty-finish teardown, got %+v", outcome)
	}
	if len(intake.submissions) != 0 {
		t.Fatalf("empty finish must not reach intake")
	}
	if _, ok := repo.sessions["chat-1"]; ok {
		t.Fatalf("session must be torn down")
	}
}

func TestBatchDoubleFinishForwardsOnlyOnce(t *testing.T) {
	uc, _, intake := newBatchEnv()
	ctx := context.Background()

	if _, err := uc.Start(ctx, "chat-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := uc.AddPage(ctx, "chat-1", page("p1")); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}

	first, err := uc.Finish(ctx, "chat-1", "")
	if err != nil || !first.Forwarded {
		t.Fatalf("first Finish() = %+v, %v", first, err)
	}
	second, err := uc.Finish(ctx, "chat-1", "")
	if err != nil {
		t.Fatalf("second Finish() error = %v", err)
	}
	if second.Forwarded || second.HadSession {
		t.Fatalf("second finish must find no session, got %+v", second)
	}
	if len(intake.submissions) != 1 {
		t.Fatalf("pages forwarded more than once")
	}
}

func TestBatchCancelWithoutSession(t *testing.T) {
	uc, _, _ := newBatchEnv()
	outcome, err := uc.Cancel(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if outcome.HadSession {
		t.Fatalf("expected nothing to cancel, got %+v", outcome)
	}
}

func TestBatchCancelDiscardsPages(t *testing.T) {
	uc, repo, _ := newBatchEnv()
	ctx := context.Background()

	if _, err := uc.Start(ctx, "chat-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := uc.AddPage(ctx, "chat-1", page("p1")); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}

	outcome, err := uc.Cancel(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !outcome.HadSession || outcome.Pages != 1 {
		t.Fatalf("expected 1 discarded page, got %+v", outcome)
	}
	if _, ok := repo.sessions["chat-1"]; ok {
		t.Fatalf("session must be gone after cancel")
	}
}
