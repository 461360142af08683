package httpadapter

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vkurennov/medarchive/internal/core/catalog"
	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/ports"
	"github.com/vkurennov/medarchive/internal/core/usecase"
	"github.com/vkurennov/medarchive/internal/infrastructure/export/excel"
	"github.com/vkurennov/medarchive/internal/observability/metrics"
)

type Router struct {
	intake   ports.DocumentIntake
	batch    ports.BatchCollector
	docs     *usecase.DocumentUseCase
	overview ports.OverviewRepository
	blobs    ports.BlobStore
	pages    ports.PageCounter
	notifier ports.Notifier
	metrics  *metrics.HTTPServerMetrics
	cfg      Config
}

type Config struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	EnqueueWait    time.Duration
	MaxUploadBytes int64
}

func NewRouter(
	intake ports.DocumentIntake,
	batch ports.BatchCollector,
	docs *usecase.DocumentUseCase,
	overview ports.OverviewRepository,
	blobs ports.BlobStore,
	pages ports.PageCounter,
	notifier ports.Notifier,
	serverMetrics *metrics.HTTPServerMetrics,
	cfg Config,
) *Router {
	if cfg.Service == "" {
		cfg.Service = "api"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	return &Router{
		intake:   intake,
		batch:    batch,
		docs:     docs,
		overview: overview,
		blobs:    blobs,
		pages:    pages,
		notifier: notifier,
		metrics:  serverMetrics,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/documents", rt.documents)
	mux.HandleFunc("/v1/documents/", rt.documentByID)
	mux.HandleFunc("/v1/measurements/", rt.measurementSeries)
	mux.HandleFunc("/v1/export/measurements.xlsx", rt.exportMeasurements)
	mux.HandleFunc("/v1/overview", rt.healthOverview)
	mux.HandleFunc("/v1/webhook", rt.webhook)

	var handler http.Handler = mux
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	if rt.cfg.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxConcurrent, rt.cfg.EnqueueWait)
	}
	handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.listDocuments(w, r)
	case http.MethodPost:
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			rt.uploadDocument(w, r)
			return
		}
		rt.createDocument(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from := now.AddDate(-10, 0, 0)
	to := now.AddDate(0, 0, 1)
	limit := 100

	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'from' date, want YYYY-MM-DD"})
			return
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'to' date, want YYYY-MM-DD"})
			return
		}
		to = t.AddDate(0, 0, 1)
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'limit'"})
			return
		}
		limit = n
	}

	docs, err := rt.docs.ListByDateRange(r.Context(), from, to, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// createDocument is the manual form path: a hand-entered document arrives as
// JSON and runs through the same normalization and extraction as intake.
func (rt *Router) createDocument(w http.ResponseWriter, r *http.Request) {
	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(doc.Title) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	if err := rt.docs.CreateManual(r.Context(), &doc); err != nil {
		writeError(w, err)
		return
	}
	rt.metrics.RecordDocumentSaved(rt.cfg.Service, "manual")
	writeJSON(w, http.StatusCreated, doc)
}

// uploadDocument is the web upload path: the file goes to blob storage here,
// then through the same intake pipeline as webhook submissions.
func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read upload: " + err.Error()})
		return
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	url, err := rt.blobs.Put(r.Context(), bytes.NewReader(data), fileHeader.Filename, mimeType)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := rt.intake.Ingest(r.Context(), ports.Submission{
		ConversationKey: r.FormValue("conversation_key"),
		StoredFiles: []domain.FileRef{{
			URL:       url,
			Filename:  fileHeader.Filename,
			MimeType:  mimeType,
			PageCount: rt.pages.CountPages(data, mimeType),
		}},
		Caption: r.FormValue("caption"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if outcome.Duplicate {
		rt.metrics.RecordDuplicateDetected(rt.cfg.Service)
		writeJSON(w, http.StatusConflict, outcome)
		return
	}
	rt.metrics.RecordDocumentSaved(rt.cfg.Service, "upload")
	writeJSON(w, http.StatusAccepted, outcome)
}

func (rt *Router) documentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := rt.docs.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodPut:
		var doc domain.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		doc.ID = id
		if err := rt.docs.Update(r.Context(), &doc); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := rt.docs.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) measurementSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	metric := strings.TrimPrefix(r.URL.Path, "/v1/measurements/")
	if metric == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "metric name is required"})
		return
	}

	series, err := rt.docs.MeasurementSeries(r.Context(), metric)
	if err != nil {
		writeError(w, err)
		return
	}
	spec, _ := rt.docs.Catalog().Resolve(metric)
	if series == nil {
		series = []domain.Measurement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metric":     spec.Name,
		"unit":       spec.Unit,
		"normal_min": spec.NormalMin,
		"normal_max": spec.NormalMax,
		"color":      spec.Color,
		"points":     series,
	})
}

func (rt *Router) exportMeasurements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	series := make(map[string][]domain.Measurement)
	specs := make(map[string]catalog.Spec)
	for _, name := range rt.docs.Catalog().Names() {
		points, err := rt.docs.MeasurementSeries(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(points) > 0 {
			series[name] = points
			if spec, ok := rt.docs.Catalog().Resolve(name); ok {
				specs[name] = spec
			}
		}
	}

	raw, err := excel.Workbook(series, specs)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="measurements.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// healthOverview serves the worker-generated summary. It is absent until the
// first document save triggers a refresh.
func (rt *Router) healthOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	text, updatedAt, err := rt.overview.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if text == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "overview not generated yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text, "updated_at": updatedAt})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
