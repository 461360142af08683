package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/taxonomy"
)

// DocumentRepository persists documents and their owned measurements.
// Create is atomic over both; Update touches the document row only so
// existing measurements survive a replace.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, doc_date, category, subtype, title, doctor, specialty, clinic, summary, conclusion, recommendations, content, file, tags, fields, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	cols, err := marshalDocumentColumns(doc)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		doc.ID, doc.Date, string(doc.Category), string(doc.Subtype), doc.Title,
		doc.Doctor, doc.Specialty, doc.Clinic, doc.Summary, doc.Conclusion,
		cols.recommendations, doc.Content, cols.file, cols.tags, cols.fields,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for _, m := range doc.Measurements {
		_, err = tx.ExecContext(ctx, `
INSERT INTO measurements (document_id, name, value, unit, taken_at)
VALUES ($1,$2,$3,$4,$5)
`, doc.ID, m.Name, m.Value, m.Unit, m.Date)
		if err != nil {
			return fmt.Errorf("insert measurement %q: %w", m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT name, value, unit, taken_at
FROM measurements
WHERE document_id = $1
ORDER BY name
`, id)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Measurement
		if err := rows.Scan(&m.Name, &m.Value, &m.Unit, &m.Date); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		doc.Measurements = append(doc.Measurements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return doc, nil
}

// FindByDateRange lists documents dated within [from, to], newest first.
// Measurements are not loaded for ranged listings.
func (r *DocumentRepository) FindByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE doc_date >= $1 AND doc_date <= $2
ORDER BY doc_date DESC, created_at DESC
LIMIT $3
`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents by date: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	cols, err := marshalDocumentColumns(doc)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET doc_date = $2, category = $3, subtype = $4, title = $5, doctor = $6,
	specialty = $7, clinic = $8, summary = $9, conclusion = $10,
	recommendations = $11, content = $12, file = $13, tags = $14, fields = $15,
	updated_at = $16
WHERE id = $1
`,
		doc.ID, doc.Date, string(doc.Category), string(doc.Subtype), doc.Title,
		doc.Doctor, doc.Specialty, doc.Clinic, doc.Summary, doc.Conclusion,
		cols.recommendations, doc.Content, cols.file, cols.tags, cols.fields,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", errors.New(doc.ID))
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", errors.New(id))
	}
	return nil
}

func (r *DocumentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// MeasurementSeries returns every stored data point of one canonical metric,
// oldest first.
func (r *DocumentRepository) MeasurementSeries(ctx context.Context, metric string) ([]domain.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT name, value, unit, taken_at
FROM measurements
WHERE name = $1
ORDER BY taken_at ASC
`, metric)
	if err != nil {
		return nil, fmt.Errorf("query measurement series: %w", err)
	}
	defer rows.Close()

	var series []domain.Measurement
	for rows.Next() {
		var m domain.Measurement
		if err := rows.Scan(&m.Name, &m.Value, &m.Unit, &m.Date); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		series = append(series, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return series, nil
}

type documentJSONColumns struct {
	recommendations []byte
	file            []byte
	tags            []byte
	fields          []byte
}

func marshalDocumentColumns(doc *domain.Document) (documentJSONColumns, error) {
	var cols documentJSONColumns
	var err error

	if cols.recommendations, err = json.Marshal(emptySlice(doc.Recommendations)); err != nil {
		return cols, fmt.Errorf("marshal recommendations: %w", err)
	}
	if cols.tags, err = json.Marshal(emptySlice(doc.Tags)); err != nil {
		return cols, fmt.Errorf("marshal tags: %w", err)
	}
	if cols.fields, err = json.Marshal(emptyMap(doc.Fields)); err != nil {
		return cols, fmt.Errorf("marshal fields: %w", err)
	}
	if doc.File != nil {
		if cols.file, err = json.Marshal(doc.File); err != nil {
			return cols, fmt.Errorf("marshal file ref: %w", err)
		}
	}
	return cols, nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var category, subtype string
	var recommendationsRaw, tagsRaw, fieldsRaw []byte
	var fileRaw []byte

	err := row.Scan(
		&doc.ID, &doc.Date, &category, &subtype, &doc.Title,
		&doc.Doctor, &doc.Specialty, &doc.Clinic, &doc.Summary, &doc.Conclusion,
		&recommendationsRaw, &doc.Content, &fileRaw, &tagsRaw, &fieldsRaw,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Category = taxonomy.Category(category)
	doc.Subtype = taxonomy.Subtype(subtype)
	if err := json.Unmarshal(recommendationsRaw, &doc.Recommendations); err != nil {
		return nil, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(fieldsRaw, &doc.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if len(fileRaw) > 0 {
		var ref domain.FileRef
		if err := json.Unmarshal(fileRaw, &ref); err != nil {
			return nil, fmt.Errorf("unmarshal file ref: %w", err)
		}
		doc.File = &ref
	}
	return &doc, nil
}
