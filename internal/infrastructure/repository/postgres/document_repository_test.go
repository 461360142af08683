package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/core/taxonomy"
)

func newDocMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewDocumentRepository(db), mock, func() { db.Close() }
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "doc_date", "category", "subtype", "title", "doctor", "specialty",
		"clinic", "summary", "conclusion", "recommendations", "content", "file",
		"tags", "fields", "created_at", "updated_at",
	})
}

func TestDocumentRepositoryCreateWritesMeasurementsInOneTx(t *testing.T) {
	repo, mock, closeDB := newDocMock(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO measurements").
		WithArgs("doc-1", "Гемоглобин", 92.0, "г/л", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc := &domain.Document{
		ID:       "doc-1",
		Date:     time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC),
		Category: taxonomy.CategoryAnalysis,
		Subtype:  taxonomy.SubtypeBlood,
		Title:    "Общий анализ крови",
		Measurements: []domain.Measurement{
			{Name: "Гемоглобин", Value: 92, Unit: "г/л", Date: time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC)},
		},
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentRepositoryCreateRollsBackOnMeasurementFailure(t *testing.T) {
	repo, mock, closeDB := newDocMock(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO measurements").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	doc := &domain.Document{
		ID:           "doc-1",
		Measurements: []domain.Measurement{{Name: "Гемоглобин", Value: 92, Unit: "г/л"}},
	}
	if err := repo.Create(context.Background(), doc); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentRepositoryGetByIDLoadsMeasurements(t *testing.T) {
	repo, mock, closeDB := newDocMock(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectQuery("FROM documents").
		WithArgs("doc-1").
		WillReturnRows(documentRows().AddRow(
			"doc-1", now, "analysis", "blood", "Общий анализ крови", "Иванов И.И.", "",
			"", "", "", []byte(`[]`), "", nil, []byte(`["needs-review"]`),
			[]byte(`{"Гемоглобин":"92 г/л"}`), now, now,
		))
	mock.ExpectQuery("FROM measurements").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value", "unit", "taken_at"}).
			AddRow("Гемоглобин", 92.0, "г/л", now))

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.Subtype != taxonomy.SubtypeBlood {
		t.Fatalf("subtype = %q", doc.Subtype)
	}
	if doc.Fields["Гемоглобин"] != "92 г/л" {
		t.Fatalf("fields not restored: %v", doc.Fields)
	}
	if len(doc.Measurements) != 1 || doc.Measurements[0].Value != 92 {
		t.Fatalf("measurements not loaded: %v", doc.Measurements)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock, closeDB := newDocMock(t)
	defer closeDB()

	mock.ExpectQuery("FROM documents").
		WithArgs("missing").
		WillReturnRows(documentRows())

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentRepositoryUpdateMissingRow(t *testing.T) {
	repo, mock, closeDB := newDocMock(t)
	defer closeDB()

	mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &domain.Document{ID: "missing"})
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentRepositoryFindByDateRange(t *testing.T) {
	repo, mock, closeDB := newDocMock(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectQuery("FROM documents").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 50).
		WillReturnRows(documentRows().
			AddRow("doc-2", now, "examination", "ultrasound", "УЗИ почек", "", "",
				"", "", "", []byte(`[]`), "", nil, []byte(`[]`), []byte(`{}`), now, now).
			AddRow("doc-1", now.Add(-24*time.Hour), "analysis", "blood", "ОАК", "", "",
				"", "", "", []byte(`[]`), "", nil, []byte(`[]`), []byte(`{}`), now, now))

	docs, err := repo.FindByDateRange(context.Background(), now.Add(-7*24*time.Hour), now, 50)
	if err != nil {
		t.Fatalf("FindByDateRange() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "doc-2" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentRepositoryMeasurementSeries(t *testing.T) {
	repo, mock, closeDB := newDocMock(t)
	defer closeDB()

	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM measurements").
		WithArgs("Гемоглобин").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value", "unit", "taken_at"}).
			AddRow("Гемоглобин", 118.0, "г/л", base).
			AddRow("Гемоглобин", 126.0, "г/л", base.AddDate(0, 1, 0)))

	series, err := repo.MeasurementSeries(context.Background(), "Гемоглобин")
	if err != nil {
		t.Fatalf("MeasurementSeries() error = %v", err)
	}
	if len(series) != 2 || series[0].Value != 118 || series[1].Value != 126 {
		t.Fatalf("unexpected series: %+v", series)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
