package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/vkurennov/medarchive/internal/core/domain"
)

// Generator produces the derived health overview text from recent documents.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateOverview(ctx context.Context, docs []domain.Document) (string, error) {
	reqBody := map[string]any{
		"model":  g.client.model,
		"prompt": buildOverviewPrompt(docs),
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return g.client.postJSON(ctx, "/api/generate", reqBody, &response, "overview")
	}

	var err error
	if g.client.executor != nil {
		err = g.client.executor.Execute(ctx, "ollama.overview", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("generate overview", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func buildOverviewPrompt(docs []domain.Document) string {
	var b strings.Builder
	for idx, doc := range docs {
		b.WriteString(fmt.Sprintf("[%d] %s | %s/%s | %s\n",
			idx+1, doc.Date.Format("2006-01-02"), doc.Category, doc.Subtype, doc.Title))
		if doc.Conclusion != "" {
			b.WriteString("Заключение: " + doc.Conclusion + "\n")
		}
		for _, m := range doc.Measurements {
			b.WriteString(fmt.Sprintf("%s: %g %s\n", m.Name, m.Value, m.Unit))
		}
		b.WriteString("\n")
	}

	return `Ты медицинский ассистент. Ниже список последних медицинских документов пациента.
Составь краткую сводку состояния здоровья на русском языке: ключевые показатели,
их динамика и на что обратить внимание. Не ставь диагнозов. Ответь обычным текстом.

Документы:
` + b.String()
}
