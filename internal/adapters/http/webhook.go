package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/ports"
)

// webhookPayload is the channel-agnostic delivery shape: one message from
// one conversation, carrying files, a text command, or a button callback.
type webhookPayload struct {
	ConversationKey string        `json:"conversation_key"`
	Text            string        `json:"text,omitempty"`
	Caption         string        `json:"caption,omitempty"`
	Callback        string        `json:"callback,omitempty"`
	Files           []webhookFile `json:"files,omitempty"`
}

type webhookFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

// webhook acknowledges every handled delivery with 200: pipeline failures
// are reported back into the conversation, not to the channel's retry loop.
func (rt *Router) webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(payload.ConversationKey) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_key is required"})
		return
	}

	ctx := r.Context()
	switch {
	case payload.Callback != "":
		rt.handleCallback(ctx, w, payload)
	case len(payload.Files) > 0:
		rt.handleFiles(ctx, w, payload)
	default:
		rt.handleCommand(ctx, w, payload)
	}
}

func (rt *Router) handleCallback(ctx context.Context, w http.ResponseWriter, payload webhookPayload) {
	rt.metrics.RecordWebhookCommand(rt.cfg.Service, "callback")

	parts := strings.SplitN(payload.Callback, ":", 3)
	if len(parts) != 3 || parts[0] != "dup" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown callback format"})
		return
	}
	action, ok := domain.ParseResolutionAction(parts[1])
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown resolution action"})
		return
	}

	err := rt.intake.Resolve(ctx, parts[2], action, payload.ConversationKey)
	outcome := "applied"
	if err != nil {
		// The usecase already told the user what went wrong.
		outcome = "failed"
		slog.Warn("resolution_failed", "action", action, "error", err)
	}
	rt.metrics.RecordPendingResolved(rt.cfg.Service, string(action), outcome)
	writeJSON(w, http.StatusOK, map[string]string{"status": outcome})
}

// handleFiles routes inbound files either into the active batch session or
// straight through intake when no batch is collecting.
func (rt *Router) handleFiles(ctx context.Context, w http.ResponseWriter, payload webhookPayload) {
	rt.metrics.RecordWebhookCommand(rt.cfg.Service, "files")

	inbound := make([]ports.InboundFile, len(payload.Files))
	for i, f := range payload.Files {
		inbound[i] = ports.InboundFile{SourceURL: f.URL, Filename: f.Filename, MimeType: f.MimeType}
	}

	// A single page during batch mode accumulates instead of ingesting.
	if len(inbound) == 1 {
		outcome, err := rt.batch.AddPage(ctx, payload.ConversationKey, inbound[0])
		if err == nil {
			rt.metrics.RecordBatchPage(rt.cfg.Service)
			rt.reply(ctx, payload.ConversationKey, fmt.Sprintf("Страница %d получена.", outcome.Pages))
			writeJSON(w, http.StatusOK, map[string]any{"status": "page_collected", "pages": outcome.Pages})
			return
		}
		if !domain.IsKind(err, domain.ErrNoActiveBatch) {
			rt.reply(ctx, payload.ConversationKey, "Не удалось принять страницу, попробуйте ещё раз.")
			writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
			return
		}
	}

	outcome, err := rt.intake.Ingest(ctx, ports.Submission{
		ConversationKey: payload.ConversationKey,
		Files:           inbound,
		Caption:         payload.Caption,
	})
	if err != nil {
		rt.reply(ctx, payload.ConversationKey, "Не удалось обработать документ, попробуйте ещё раз.")
		writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
		return
	}

	if outcome.Duplicate {
		// The duplicate prompt with its buttons is already in the chat.
		rt.metrics.RecordDuplicateDetected(rt.cfg.Service)
		writeJSON(w, http.StatusOK, map[string]any{"status": "pending_decision", "pending_id": outcome.PendingID})
		return
	}
	rt.metrics.RecordDocumentSaved(rt.cfg.Service, "webhook")
	rt.reply(ctx, payload.ConversationKey, "Документ сохранён.")
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved", "document_id": outcome.DocumentID})
}

func (rt *Router) handleCommand(ctx context.Context, w http.ResponseWriter, payload webhookPayload) {
	command, caption := splitCommand(payload.Text)
	rt.metrics.RecordWebhookCommand(rt.cfg.Service, strings.TrimPrefix(command, "/"))

	switch command {
	case "/batch":
		outcome, err := rt.batch.Start(ctx, payload.ConversationKey)
		if err != nil {
			rt.reply(ctx, payload.ConversationKey, "Не удалось включить режим пакета.")
			writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
			return
		}
		if outcome.Pages > 0 {
			rt.reply(ctx, payload.ConversationKey,
				fmt.Sprintf("Пакет уже идёт, собрано страниц: %d. Завершите командой /done.", outcome.Pages))
		} else {
			rt.reply(ctx, payload.ConversationKey,
				"Режим пакета включён. Присылайте страницы по одной, затем /done.")
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "batch_started", "pages": outcome.Pages})

	case "/done":
		outcome, err := rt.batch.Finish(ctx, payload.ConversationKey, caption)
		if err != nil {
			rt.reply(ctx, payload.ConversationKey, "Не удалось собрать документ из пакета, попробуйте ещё раз.")
			writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
			return
		}
		switch {
		case !outcome.HadSession:
			rt.reply(ctx, payload.ConversationKey, "Нет активного пакета. Начните с команды /batch.")
			writeJSON(w, http.StatusOK, map[string]string{"status": "no_batch"})
		case !outcome.Forwarded:
			rt.reply(ctx, payload.ConversationKey, "Ни одной страницы не получено, документ не создан.")
			writeJSON(w, http.StatusOK, map[string]string{"status": "empty_batch"})
		case outcome.Intake != nil && outcome.Intake.Duplicate:
			rt.metrics.RecordDuplicateDetected(rt.cfg.Service)
			writeJSON(w, http.StatusOK, map[string]any{"status": "pending_decision", "pending_id": outcome.Intake.PendingID})
		default:
			rt.metrics.RecordDocumentSaved(rt.cfg.Service, "batch")
			rt.reply(ctx, payload.ConversationKey,
				fmt.Sprintf("Документ из %d страниц сохранён.", outcome.Pages))
			writeJSON(w, http.StatusOK, map[string]any{"status": "saved", "pages": outcome.Pages})
		}

	case "/cancel":
		outcome, err := rt.batch.Cancel(ctx, payload.ConversationKey)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
			return
		}
		if outcome.HadSession {
			rt.reply(ctx, payload.ConversationKey,
				fmt.Sprintf("Пакет отменён, страниц удалено: %d.", outcome.Pages))
		} else {
			rt.reply(ctx, payload.ConversationKey, "Нет активного пакета.")
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "batch_cancelled", "pages": outcome.Pages})

	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func splitCommand(text string) (command, rest string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", trimmed
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) == 2 {
		return parts[0], strings.TrimSpace(parts[1])
	}
	return parts[0], ""
}

// reply failures never fail the webhook delivery.
func (rt *Router) reply(ctx context.Context, conversationKey, text string) {
	if rt.notifier == nil {
		return
	}
	if _, err := rt.notifier.Notify(ctx, conversationKey, text, nil); err != nil {
		slog.Warn("webhook_reply_failed", "conversation", conversationKey, "error", err)
	}
}
