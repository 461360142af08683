package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/ports"
	"github.com/vkurennov/medarchive/internal/infrastructure/resilience"
)

// Client sends stored document files to an Ollama vision model and parses
// the structured analysis it returns. One submission is always one model
// call: a multi-page document goes out as a single request carrying every
// page image.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	blobs      ports.BlobStore
	executor   *resilience.Executor
}

type Options struct {
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, model string, blobs ports.BlobStore, options Options) *Client {
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		blobs:      blobs,
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) Analyze(ctx context.Context, file domain.FileRef) (domain.AnalysisResult, error) {
	return c.AnalyzeMultiple(ctx, []domain.FileRef{file})
}

func (c *Client) AnalyzeMultiple(ctx context.Context, files []domain.FileRef) (domain.AnalysisResult, error) {
	if len(files) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("analyze: no files")
	}

	images := make([]string, 0, len(files))
	for _, file := range files {
		encoded, err := c.encodeFile(ctx, file)
		if err != nil {
			return domain.AnalysisResult{}, err
		}
		images = append(images, encoded)
	}

	reqBody := map[string]any{
		"model":  c.model,
		"prompt": buildAnalysisPrompt(len(files)),
		"images": images,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, "analyze")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.analyze", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.AnalysisResult{}, wrapTemporaryIfNeeded("analyze document", err)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(extractJSONObject(response.Response)), &result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("parse analysis json: %w", err)
	}
	return normalizeResult(result), nil
}

func (c *Client) encodeFile(ctx context.Context, file domain.FileRef) (string, error) {
	reader, err := c.blobs.Open(ctx, file.URL)
	if err != nil {
		return "", fmt.Errorf("open stored file %q: %w", file.Filename, err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read stored file %q: %w", file.Filename, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// normalizeResult cleans the model output once so downstream code consumes
// a predictable value.
func normalizeResult(result domain.AnalysisResult) domain.AnalysisResult {
	result.Category = strings.ToLower(strings.TrimSpace(result.Category))
	result.Subtype = strings.ToLower(strings.TrimSpace(result.Subtype))
	result.Title = strings.TrimSpace(result.Title)
	result.Date = strings.TrimSpace(result.Date)
	result.Doctor = strings.TrimSpace(result.Doctor)
	if result.Tags == nil {
		result.Tags = []string{}
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
