package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cargoquote/migrations"
)

// PostgresStore backs the store with the kv_documents and kv_log tables.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts, err := migrations.Statements()
	if err != nil {
		return fmt.Errorf("postgres store: load migrations: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, name string) (json.RawMessage, bool, error) {
	if err := checkName(name); err != nil {
		return nil, false, err
	}
	var body string
	err := s.db.QueryRow(ctx, `SELECT body::text FROM kv_documents WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: read %s: %w", name, err)
	}
	return json.RawMessage(body), true, nil
}

func (s *PostgresStore) Write(ctx context.Context, name string, doc json.RawMessage) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO kv_documents (name, body, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`, name, string(doc))
	if err != nil {
		return fmt.Errorf("postgres store: write %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, name string, record json.RawMessage) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `INSERT INTO kv_log (name, body) VALUES ($1, $2::jsonb)`, name, string(record))
	if err != nil {
		return fmt.Errorf("postgres store: append %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) Log(ctx context.Context, name string) ([]json.RawMessage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT body::text FROM kv_log WHERE name = $1 ORDER BY id ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("postgres store: log %s: %w", name, err)
	}
	defer rows.Close()

	out := make([]json.RawMessage, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres store: scan %s: %w", name, err)
		}
		out = append(out, json.RawMessage(body))
	}
	return out, rows.Err()
}

func (s *PostgresStore) Trim(ctx context.Context, name string, keep int) error {
	if err := checkName(name); err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.Exec(ctx, `
		DELETE FROM kv_log
		WHERE name = $1 AND id <= (
			SELECT id FROM kv_log WHERE name = $1 ORDER BY id DESC OFFSET $2 LIMIT 1
		)
	`, name, keep)
	if err != nil {
		return fmt.Errorf("postgres store: trim %s: %w", name, err)
	}
	return nil
}
