// ABOUTME: SQLite backend for the history document using modernc.org/sqlite
// ABOUTME: The full JSON document lives in a single row that each append replaces

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the history document in a one-row SQLite table
type SQLiteStore struct {
	*documentStore
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and loads the stored
// document. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "history", "backend", BackendSQLite)

	if path == "" {
		return nil, errors.New("history path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes ordered
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logs, err := s.loadDocument(logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.documentStore = newDocumentStore(logs, s, logger)

	logger.Info("SQLite history initialized", "path", path, "conversations", len(logs))
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS history_document (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) loadDocument(logger *slog.Logger) (map[string][]Message, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM history_document WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return make(map[string][]Message), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history document: %w", err)
	}

	logs, err := decodeDocument([]byte(body))
	if err != nil {
		logger.Warn("stored history document is corrupt, starting empty", "error", err)
		return make(map[string][]Message), nil
	}
	return logs, nil
}

func (s *SQLiteStore) writeDocument(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history_document (id, body, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing history document: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
