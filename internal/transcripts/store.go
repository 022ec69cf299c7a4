// Package transcripts persists conversation transcripts in SQLite so a chat
// can be resumed by session id.
package transcripts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"paperqa/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	system TEXT NOT NULL DEFAULT '',
	messages TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// Store is a SQLite-backed transcript store.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its parent directory when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: transcript store path is empty", domain.ErrInvalidArgument)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create registers an empty session and returns its id.
func (s *Store) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id, system, messages, created_at, updated_at) VALUES(?, '', '[]', ?, ?)`,
		id, now, now)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Load returns the stored transcript. An unknown id yields an empty
// transcript, so a caller-chosen id starts a new conversation.
func (s *Store) Load(ctx context.Context, id string) (domain.Transcript, error) {
	var system, raw string
	err := s.db.QueryRowContext(ctx, `SELECT system, messages FROM sessions WHERE id = ?`, id).Scan(&system, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transcript{}, nil
	}
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("load session %s: %w", id, err)
	}
	tr := domain.Transcript{System: system}
	if err := json.Unmarshal([]byte(raw), &tr.Messages); err != nil {
		return domain.Transcript{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return tr, nil
}

// Save replaces the stored transcript of id, creating the session if needed.
func (s *Store) Save(ctx context.Context, id string, tr domain.Transcript) error {
	if id == "" {
		return fmt.Errorf("%w: empty session id", domain.ErrInvalidArgument)
	}
	msgs := tr.Messages
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions(id, system, messages, created_at, updated_at) VALUES(?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET system = excluded.system, messages = excluded.messages, updated_at = excluded.updated_at`,
		id, tr.System, string(raw), now, now)
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// List returns session ids, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
