package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
)

// BatchRepository keeps in-progress page collections keyed by conversation.
// All mutations run inside transactions so concurrent webhook deliveries for
// the same conversation serialize on the session row.
type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Start opens a session if none is active. Re-starting an active session
// leaves its pages untouched and reports the accumulated count.
func (r *BatchRepository) Start(ctx context.Context, conversationKey string, now time.Time) (bool, int, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO batch_sessions (conversation_key, started_at)
VALUES ($1, $2)
ON CONFLICT (conversation_key) DO NOTHING
`, conversationKey, now)
	if err != nil {
		return false, 0, fmt.Errorf("start batch session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("start batch session: %w", err)
	}
	if affected > 0 {
		return true, 0, nil
	}

	var pages int
	err = r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM batch_pages WHERE conversation_key = $1
`, conversationKey).Scan(&pages)
	if err != nil {
		return false, 0, fmt.Errorf("count batch pages: %w", err)
	}
	return false, pages, nil
}

// Active reports whether a session is open for the conversation.
func (r *BatchRepository) Active(ctx context.Context, conversationKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM batch_sessions WHERE conversation_key = $1)
`, conversationKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check batch session: %w", err)
	}
	return exists, nil
}

// AddPage appends one page to the active session and returns the new count.
// Without an active session it reports domain.ErrNoActiveBatch.
func (r *BatchRepository) AddPage(ctx context.Context, conversationKey string, file domain.FileRef, receivedAt time.Time) (int, error) {
	fileJSON, err := json.Marshal(file)
	if err != nil {
		return 0, fmt.Errorf("marshal page file: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add page tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var started time.Time
	err = tx.QueryRowContext(ctx, `
SELECT started_at FROM batch_sessions WHERE conversation_key = $1 FOR UPDATE
`, conversationKey).Scan(&started)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.WrapError(domain.ErrNoActiveBatch, "add batch page", errors.New(conversationKey))
		}
		return 0, fmt.Errorf("lock batch session: %w", err)
	}

	var seq int
	err = tx.QueryRowContext(ctx, `
INSERT INTO batch_pages (conversation_key, seq, file, received_at)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3
FROM batch_pages
WHERE conversation_key = $1
RETURNING seq
`, conversationKey, fileJSON, receivedAt).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("insert batch page: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add page tx: %w", err)
	}
	return seq, nil
}

// Cancel discards the session and its pages.
func (r *BatchRepository) Cancel(ctx context.Context, conversationKey string) (int, bool, error) {
	pages, existed, err := r.teardown(ctx, conversationKey)
	if err != nil {
		return 0, false, fmt.Errorf("cancel batch session: %w", err)
	}
	return len(pages), existed, nil
}

// ClaimAll atomically removes and returns the session's pages, oldest first.
func (r *BatchRepository) ClaimAll(ctx context.Context, conversationKey string) ([]domain.BatchPage, bool, error) {
	pages, existed, err := r.teardown(ctx, conversationKey)
	if err != nil {
		return nil, false, fmt.Errorf("claim batch session: %w", err)
	}
	return pages, existed, nil
}

func (r *BatchRepository) teardown(ctx context.Context, conversationKey string) ([]domain.BatchPage, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Pages cascade off the session row, so they are collected before the
	// session delete decides whether a session existed at all.
	rows, err := tx.QueryContext(ctx, `
DELETE FROM batch_pages
WHERE conversation_key = $1
RETURNING seq, file, received_at
`, conversationKey)
	if err != nil {
		return nil, false, fmt.Errorf("delete pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.BatchPage
	for rows.Next() {
		var page domain.BatchPage
		var fileRaw []byte
		if err := rows.Scan(&page.Seq, &fileRaw, &page.ReceivedAt); err != nil {
			return nil, false, fmt.Errorf("scan page: %w", err)
		}
		if err := json.Unmarshal(fileRaw, &page.File); err != nil {
			return nil, false, fmt.Errorf("unmarshal page file: %w", err)
		}
		page.Key = fmt.Sprintf("%s-p%d", conversationKey, page.Seq)
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate pages: %w", err)
	}
	rows.Close()

	res, err := tx.ExecContext(ctx, `
DELETE FROM batch_sessions WHERE conversation_key = $1
`, conversationKey)
	if err != nil {
		return nil, false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}

	// DELETE ... RETURNING carries no ordering guarantee.
	sort.Slice(pages, func(i, j int) bool { return pages[i].Seq < pages[j].Seq })
	return pages, affected > 0, nil
}
