package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vkurennov/medarchive/internal/core/domain"
)

// Resolve applies the user's duplicate decision. The decision is claimed
// atomically first, so a concurrent resolver observes it as already gone and
// reports the elapsed time window instead of double-applying.
func (uc *IntakeUseCase) Resolve(ctx context.Context, decisionID string, action domain.ResolutionAction, conversationKey string) error {
	decision, err := uc.pending.Claim(ctx, decisionID, uc.now())
	if err != nil {
		if domain.IsKind(err, domain.ErrDecisionExpired) {
			uc.report(ctx, conversationKey, "", "Время ожидания истекло, решение уже недоступно.")
			return err
		}
		return fmt.Errorf("claim pending decision: %w", err)
	}

	switch action {
	case domain.ResolutionAddNew:
		return uc.resolveAddNew(ctx, decision)
	case domain.ResolutionReplace:
		return uc.resolveReplace(ctx, decision)
	case domain.ResolutionCancel:
		uc.report(ctx, decision.ConversationKey, decision.PromptRef, "Хорошо, документ не сохранён.")
		return nil
	default:
		uc.restoreDecision(ctx, decision)
		return domain.WrapError(domain.ErrInvalidInput, "resolve decision", fmt.Errorf("unknown action %q", action))
	}
}

func (uc *IntakeUseCase) resolveAddNew(ctx context.Context, decision *domain.PendingDecision) error {
	doc := decision.Candidate
	doc.Measurements = uc.metrics.Extract(doc.Fields, doc.Date)
	if err := uc.docs.Create(ctx, &doc); err != nil {
		uc.restoreDecision(ctx, decision)
		uc.report(ctx, decision.ConversationKey, "", "Не удалось сохранить документ, попробуйте ещё раз.")
		return fmt.Errorf("create document from decision: %w", err)
	}

	uc.publishSaved(ctx, doc.ID)
	uc.report(ctx, decision.ConversationKey, decision.PromptRef,
		fmt.Sprintf("Сохранено как новый документ: «%s».", doc.Title))
	return nil
}

func (uc *IntakeUseCase) resolveReplace(ctx context.Context, decision *domain.PendingDecision) error {
	existing, err := uc.docs.GetByID(ctx, decision.ExistingID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			// The colliding document vanished while the decision waited; the
			// stale decision stays claimed (deleted) and the user learns why.
			uc.report(ctx, decision.ConversationKey, decision.PromptRef,
				"Исходный документ уже удалён, заменить нечего.")
			return domain.WrapError(domain.ErrReplaceTargetGone, "resolve replace", err)
		}
		uc.restoreDecision(ctx, decision)
		return fmt.Errorf("load replace target: %w", err)
	}

	// Overwrite document fields from the parked payload. Measurements are
	// deliberately not regenerated on replace.
	doc := decision.Candidate
	doc.ID = existing.ID
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = uc.now()
	if err := uc.docs.Update(ctx, &doc); err != nil {
		uc.restoreDecision(ctx, decision)
		uc.report(ctx, decision.ConversationKey, "", "Не удалось заменить документ, попробуйте ещё раз.")
		return fmt.Errorf("replace document: %w", err)
	}

	uc.publishSaved(ctx, doc.ID)
	uc.report(ctx, decision.ConversationKey, decision.PromptRef,
		fmt.Sprintf("Документ «%s» заменён новыми данными.", doc.Title))
	return nil
}

// restoreDecision puts a claimed decision back after a failed mutation, so
// the user can press the button again instead of losing the parked payload.
func (uc *IntakeUseCase) restoreDecision(ctx context.Context, decision *domain.PendingDecision) {
	if err := uc.pending.Create(ctx, decision); err != nil {
		slog.Error("restore_pending_decision_failed", "decision_id", decision.ID, "error", err)
	}
}

// report edits the original prompt in place when its ref is known, otherwise
// sends a fresh message. Notification failures never fail the resolution.
func (uc *IntakeUseCase) report(ctx context.Context, conversationKey, promptRef, text string) {
	if conversationKey == "" {
		return
	}
	if promptRef != "" {
		if err := uc.notifier.EditNotification(ctx, conversationKey, promptRef, text); err == nil {
			return
		}
	}
	if _, err := uc.notifier.Notify(ctx, conversationKey, text, nil); err != nil {
		slog.Warn("notify_failed", "conversation", conversationKey, "error", err)
	}
}
