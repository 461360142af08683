package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vkurennov/medarchive/internal/core/domain"
)

func newPendingMock(t *testing.T) (*PendingDecisionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewPendingDecisionRepository(db), mock, func() { db.Close() }
}

func pendingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "conversation_key", "candidate", "existing_id", "prompt_ref", "expires_at", "created_at",
	})
}

func TestPendingRepositoryClaimReturnsDecision(t *testing.T) {
	repo, mock, closeDB := newPendingMock(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectQuery("DELETE FROM pending_decisions").
		WithArgs("dec-1").
		WillReturnRows(pendingRows().AddRow(
			"dec-1", "chat-1", []byte(`{"id":"cand-1","title":"Общий анализ крови"}`),
			"doc-1", "msg-7", now.Add(time.Hour), now,
		))

	decision, err := repo.Claim(context.Background(), "dec-1", now)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if decision.Candidate.ID != "cand-1" || decision.ExistingID != "doc-1" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPendingRepositoryClaimGoneReportsExpired(t *testing.T) {
	repo, mock, closeDB := newPendingMock(t)
	defer closeDB()

	mock.ExpectQuery("DELETE FROM pending_decisions").
		WithArgs("dec-1").
		WillReturnRows(pendingRows())

	_, err := repo.Claim(context.Background(), "dec-1", time.Now())
	if !domain.IsKind(err, domain.ErrDecisionExpired) {
		t.Fatalf("expected ErrDecisionExpired, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPendingRepositoryClaimElapsedWindowReportsExpired(t *testing.T) {
	repo, mock, closeDB := newPendingMock(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectQuery("DELETE FROM pending_decisions").
		WithArgs("dec-1").
		WillReturnRows(pendingRows().AddRow(
			"dec-1", "chat-1", []byte(`{"id":"cand-1"}`), "doc-1", "", now.Add(-time.Minute), now.Add(-time.Hour),
		))

	_, err := repo.Claim(context.Background(), "dec-1", now)
	if !domain.IsKind(err, domain.ErrDecisionExpired) {
		t.Fatalf("expected ErrDecisionExpired, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPendingRepositorySetPromptRefMissingRow(t *testing.T) {
	repo, mock, closeDB := newPendingMock(t)
	defer closeDB()

	mock.ExpectExec("UPDATE pending_decisions").
		WithArgs("missing", "msg-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetPromptRef(context.Background(), "missing", "msg-1")
	if !domain.IsKind(err, domain.ErrDecisionExpired) {
		t.Fatalf("expected ErrDecisionExpired, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPendingRepositoryPurgeExpiredCountsRows(t *testing.T) {
	repo, mock, closeDB := newPendingMock(t)
	defer closeDB()

	mock.ExpectExec("DELETE FROM pending_decisions").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := repo.PurgeExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if purged != 3 {
		t.Fatalf("purged = %d, want 3", purged)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
