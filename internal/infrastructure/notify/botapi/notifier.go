package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vkurennov/medarchive/internal/core/ports"
	"github.com/vkurennov/medarchive/internal/infrastructure/resilience"
)

// Notifier delivers messages back into the originating chat through a
// bot-API style HTTP endpoint. Interactive options become inline buttons
// whose callback data flows back in through the webhook.
type Notifier struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, options Options) *Notifier {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Notifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

func (n *Notifier) Notify(ctx context.Context, conversationKey, text string, options []ports.NotifyOption) (string, error) {
	payload := map[string]any{
		"chat_id": conversationKey,
		"text":    text,
	}
	if len(options) > 0 {
		buttons := make([]button, len(options))
		for i, opt := range options {
			buttons[i] = button{Text: opt.Label, CallbackData: opt.Data}
		}
		payload["reply_markup"] = map[string]any{"inline_keyboard": [][]button{buttons}}
	}

	var response struct {
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := n.post(ctx, "notify.send", "/sendMessage", payload, &response); err != nil {
		return "", wrapTemporaryIfNeeded("send notification", err)
	}
	return strconv.FormatInt(response.Result.MessageID, 10), nil
}

func (n *Notifier) EditNotification(ctx context.Context, conversationKey, messageRef, text string) error {
	messageID, err := strconv.ParseInt(messageRef, 10, 64)
	if err != nil {
		return fmt.Errorf("parse message ref %q: %w", messageRef, err)
	}
	payload := map[string]any{
		"chat_id":    conversationKey,
		"message_id": messageID,
		"text":       text,
	}
	var response struct{}
	if err := n.post(ctx, "notify.edit", "/editMessageText", payload, &response); err != nil {
		return wrapTemporaryIfNeeded("edit notification", err)
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, operation, path string, payload, out any) error {
	call := func(ctx context.Context) error {
		return n.postJSON(ctx, path, payload, out)
	}
	if n.executor != nil {
		return n.executor.Execute(ctx, operation, call, classifyNotifyError)
	}
	return call(ctx)
}

func (n *Notifier) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
