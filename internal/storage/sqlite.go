package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_documents (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS kv_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS kv_log_name_id_idx ON kv_log (name, id);
`

// SQLiteStore backs the store with an embedded SQLite file (modernc driver).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database and creates the schema if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite store: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Read(ctx context.Context, name string) (json.RawMessage, bool, error) {
	if err := checkName(name); err != nil {
		return nil, false, err
	}
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM kv_documents WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite store: read %s: %w", name, err)
	}
	return json.RawMessage(body), true, nil
}

func (s *SQLiteStore) Write(ctx context.Context, name string, doc json.RawMessage) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_documents (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, name, string(doc), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite store: write %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, name string, record json.RawMessage) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_log (name, body, created_at) VALUES (?, ?, ?)`,
		name, string(record), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: append %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Log(ctx context.Context, name string) ([]json.RawMessage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM kv_log WHERE name = ? ORDER BY id ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: log %s: %w", name, err)
	}
	defer rows.Close()

	out := make([]json.RawMessage, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlite store: scan %s: %w", name, err)
		}
		out = append(out, json.RawMessage(body))
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Trim(ctx context.Context, name string, keep int) error {
	if err := checkName(name); err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_log
		WHERE name = ? AND id <= (
			SELECT id FROM kv_log WHERE name = ? ORDER BY id DESC LIMIT 1 OFFSET ?
		)
	`, name, name, keep)
	if err != nil {
		return fmt.Errorf("sqlite store: trim %s: %w", name, err)
	}
	return nil
}
