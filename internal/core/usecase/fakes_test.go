package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/ports"
)

type docsFake struct {
	docs      map[string]*domain.Document
	createErr error
	updateErr error
	updated   []string
}

func newDocsFake() *docsFake {
	return &docsFake{docs: make(map[string]*domain.Document)}
}

func (f *docsFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docsFake) FindByDateRange(_ context.Context, from, to time.Time, limit int) ([]domain.Document, error) {
	out := make([]domain.Document, 0)
	for _, doc := range f.docs {
		if doc.Date.Before(from) || doc.Date.After(to) {
			continue
		}
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *docsFake) Update(_ context.Context, doc *domain.Document) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	existing, ok := f.docs[doc.ID]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", errors.New(doc.ID))
	}
	measurements := existing.Measurements
	copyDoc := *doc
	copyDoc.Measurements = measurements
	f.docs[doc.ID] = &copyDoc
	f.updated = append(f.updated, doc.ID)
	return nil
}

func (f *docsFake) Delete(_ context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", errors.New(id))
	}
	delete(f.docs, id)
	return nil
}

func (f *docsFake) Count(context.Context) (int, error) { return len(f.docs), nil }

func (f *docsFake) MeasurementSeries(_ context.Context, metric string) ([]domain.Measurement, error) {
	out := make([]domain.Measurement, 0)
	for _, doc := range f.docs {
		for _, m := range doc.Measurements {
			if m.Name == metric {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

type pendingFake struct {
	decisions  map[string]*domain.PendingDecision
	promptRefs map[string]string
	createErr  error
}

func newPendingFake() *pendingFake {
	return &pendingFake{
		decisions:  make(map[string]*domain.PendingDecision),
		promptRefs: make(map[string]string),
	}
}

func (f *pendingFake) Create(_ context.Context, decision *domain.PendingDecision) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyDec := *decision
	f.decisions[decision.ID] = &copyDec
	return nil
}

func (f *pendingFake) SetPromptRef(_ context.Context, id, promptRef string) error {
	decision, ok := f.decisions[id]
	if !ok {
		return domain.WrapError(domain.ErrDecisionExpired, "set prompt ref", errors.New(id))
	}
	decision.PromptRef = promptRef
	f.promptRefs[id] = promptRef
	return nil
}

func (f *pendingFake) Claim(_ context.Context, id string, now time.Time) (*domain.PendingDecision, error) {
	decision, ok := f.decisions[id]
	if !ok || decision.Expired(now) {
		delete(f.decisions, id)
		return nil, domain.WrapError(domain.ErrDecisionExpired, "claim decision", errors.New(id))
	}
	delete(f.decisions, id)
	copyDec := *decision
	return &copyDec, nil
}

func (f *pendingFake) CountByConversation(_ context.Context, conversationKey string) (int, error) {
	count := 0
	for _, decision := range f.decisions {
		if decision.ConversationKey == conversationKey {
			count++
		}
	}
	return count, nil
}

func (f *pendingFake) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	purged := 0
	for id, decision := range f.decisions {
		if decision.Expired(now) {
			delete(f.decisions, id)
			purged++
		}
	}
	return purged, nil
}

type analyzerFake struct {
	result      domain.AnalysisResult
	err         error
	singleCalls int
	multiCalls  int
	lastFiles   []domain.FileRef
}

func (f *analyzerFake) Analyze(_ context.Context, file domain.FileRef) (domain.AnalysisResult, error) {
	f.singleCalls++
	f.lastFiles = []domain.FileRef{file}
	return f.result, f.err
}

func (f *analyzerFake) AnalyzeMultiple(_ context.Context, files []domain.FileRef) (domain.AnalysisResult, error) {
	f.multiCalls++
	f.lastFiles = files
	return f.result, f.err
}

type blobFake struct {
	saved map[string][]byte
	err   error
}

func newBlobFake() *blobFake { return &blobFake{saved: make(map[string][]byte)} }

func (f *blobFake) Put(_ context.Context, data io.Reader, suggestedName, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("blob://%s-%d", suggestedName, len(f.saved))
	f.saved[url] = raw
	return url, nil
}

func (f *blobFake) Open(_ context.Context, url string) (io.ReadCloser, error) {
	raw, ok := f.saved[url]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fetcherFake struct {
	data  map[string][]byte
	calls int
	err   error
}

func (f *fetcherFake) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if raw, ok := f.data[url]; ok {
		return raw, nil
	}
	return []byte("file-bytes"), nil
}

type notifyCall struct {
	conversationKey string
	text            string
	options         []ports.NotifyOption
}

type notifierFake struct {
	notifications []notifyCall
	edits         []notifyCall
	notifyErr     error
}

func (f *notifierFake) Notify(_ context.Context, conversationKey, text string, options []ports.NotifyOption) (string, error) {
	if f.notifyErr != nil {
		return "", f.notifyErr
	}
	f.notifications = append(f.notifications, notifyCall{conversationKey, text, options})
	return fmt.Sprintf("msg-%d", len(f.notifications)), nil
}

func (f *notifierFake) EditNotification(_ context.Context, conversationKey, messageRef, text string) error {
	f.edits = append(f.edits, notifyCall{conversationKey, messageRef + ": " + text, nil})
	return nil
}

type eventsFake struct {
	published []string
	err       error
}

func (f *eventsFake) PublishDocumentSaved(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *eventsFake) SubscribeDocumentSaved(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type pageCounterFake struct{}

func (pageCounterFake) CountPages([]byte, string) int { return 0 }
