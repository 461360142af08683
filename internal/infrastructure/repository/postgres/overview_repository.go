package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OverviewRepository stores the single derived health overview row.
type OverviewRepository struct {
	db *sql.DB
}

func NewOverviewRepository(db *sql.DB) *OverviewRepository {
	return &OverviewRepository{db: db}
}

func (r *OverviewRepository) Save(ctx context.Context, text string, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO health_overview (id, body, updated_at)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
`, text, updatedAt)
	if err != nil {
		return fmt.Errorf("save overview: %w", err)
	}
	return nil
}

// Get returns the stored overview, or an empty body when none was
// generated yet.
func (r *OverviewRepository) Get(ctx context.Context) (string, time.Time, error) {
	var body string
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, `
SELECT body, updated_at FROM health_overview WHERE id = 1
`).Scan(&body, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, fmt.Errorf("load overview: %w", err)
	}
	return body, updatedAt, nil
}
