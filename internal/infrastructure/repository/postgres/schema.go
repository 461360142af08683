package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates all tables used by the archive. Safe to call from
// every process on startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	doc_date TIMESTAMPTZ NOT NULL,
	category TEXT NOT NULL,
	subtype TEXT NOT NULL,
	title TEXT NOT NULL,
	doctor TEXT NOT NULL DEFAULT '',
	specialty TEXT NOT NULL DEFAULT '',
	clinic TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	conclusion TEXT NOT NULL DEFAULT '',
	recommendations JSONB NOT NULL DEFAULT '[]'::jsonb,
	content TEXT NOT NULL DEFAULT '',
	file JSONB,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_doc_date ON documents(doc_date DESC);

CREATE TABLE IF NOT EXISTS measurements (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	unit TEXT NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_measurements_name_taken_at ON measurements(name, taken_at);
CREATE INDEX IF NOT EXISTS idx_measurements_document ON measurements(document_id);

CREATE TABLE IF NOT EXISTS pending_decisions (
	id TEXT PRIMARY KEY,
	conversation_key TEXT NOT NULL,
	candidate JSONB NOT NULL,
	existing_id TEXT NOT NULL DEFAULT '',
	prompt_ref TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_conversation ON pending_decisions(conversation_key);

CREATE TABLE IF NOT EXISTS batch_sessions (
	conversation_key TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_pages (
	conversation_key TEXT NOT NULL REFERENCES batch_sessions(conversation_key) ON DELETE CASCADE,
	seq INT NOT NULL,
	file JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (conversation_key, seq)
);

CREATE TABLE IF NOT EXISTS health_overview (
	id INT PRIMARY KEY CHECK (id = 1),
	body TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
