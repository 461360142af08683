package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
)

// PendingDecisionRepository parks duplicate candidates until resolution.
// Claim deletes the row in the same statement it reads it, so exactly one
// resolver gets the payload back.
type PendingDecisionRepository struct {
	db *sql.DB
}

func NewPendingDecisionRepository(db *sql.DB) *PendingDecisionRepository {
	return &PendingDecisionRepository{db: db}
}

func (r *PendingDecisionRepository) Create(ctx context.Context, decision *domain.PendingDecision) error {
	candidateJSON, err := json.Marshal(decision.Candidate)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO pending_decisions (id, conversation_key, candidate, existing_id, prompt_ref, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		decision.ID, decision.ConversationKey, candidateJSON, decision.ExistingID,
		decision.PromptRef, decision.ExpiresAt, decision.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pending decision: %w", err)
	}
	return nil
}

func (r *PendingDecisionRepository) SetPromptRef(ctx context.Context, id, promptRef string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE pending_decisions SET prompt_ref = $2 WHERE id = $1
`, id, promptRef)
	if err != nil {
		return fmt.Errorf("set prompt ref: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrDecisionExpired, "set prompt ref", errors.New(id))
	}
	return nil
}

// Claim removes and returns the decision. A decision that is gone or whose
// window elapsed reports domain.ErrDecisionExpired; an elapsed one is still
// deleted so it cannot be claimed again either.
func (r *PendingDecisionRepository) Claim(ctx context.Context, id string, now time.Time) (*domain.PendingDecision, error) {
	row := r.db.QueryRowContext(ctx, `
DELETE FROM pending_decisions
WHERE id = $1
RETURNING id, conversation_key, candidate, existing_id, prompt_ref, expires_at, created_at
`, id)

	var decision domain.PendingDecision
	var candidateRaw []byte
	err := row.Scan(
		&decision.ID, &decision.ConversationKey, &candidateRaw, &decision.ExistingID,
		&decision.PromptRef, &decision.ExpiresAt, &decision.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDecisionExpired, "claim decision", errors.New(id))
		}
		return nil, fmt.Errorf("claim pending decision: %w", err)
	}
	if decision.Expired(now) {
		return nil, domain.WrapError(domain.ErrDecisionExpired, "claim decision", errors.New(id))
	}
	if err := json.Unmarshal(candidateRaw, &decision.Candidate); err != nil {
		return nil, fmt.Errorf("unmarshal candidate: %w", err)
	}
	return &decision, nil
}

func (r *PendingDecisionRepository) CountByConversation(ctx context.Context, conversationKey string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM pending_decisions WHERE conversation_key = $1
`, conversationKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending decisions: %w", err)
	}
	return count, nil
}

func (r *PendingDecisionRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM pending_decisions WHERE expires_at <= $1
`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired decisions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired decisions: %w", err)
	}
	return int(affected), nil
}
