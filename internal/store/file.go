// ABOUTME: JSON file backend for the history document
// ABOUTME: Writes go to a temp file that is fsynced and renamed over the target

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileStore persists the history document as a single pretty-printed JSON file
type FileStore struct {
	*documentStore
	path string
}

// NewFileStore loads the history file at path, creating parent directories as
// needed. A missing file is an empty history. A file that fails to parse is
// moved aside and replaced by an empty history.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "history", "backend", BackendFile)

	if path == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	logs, err := loadFile(path, logger)
	if err != nil {
		return nil, err
	}

	fs := &FileStore{path: path}
	fs.documentStore = newDocumentStore(logs, fs, logger)

	logger.Info("history loaded", "path", path, "conversations", len(logs))
	return fs, nil
}

func loadFile(path string, logger *slog.Logger) (map[string][]Message, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string][]Message), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	logs, err := decodeDocument(data)
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, aside); renameErr != nil {
			logger.Warn("could not move corrupt history aside", "error", renameErr)
			aside = ""
		}
		logger.Warn("history file is corrupt, starting empty",
			"path", path,
			"moved_to", aside,
			"error", err)
		return make(map[string][]Message), nil
	}
	return logs, nil
}

// writeDocument replaces the history file atomically.
func (f *FileStore) writeDocument(_ context.Context, data []byte) error {
	return WriteFileAtomic(f.path, data)
}

// WriteFileAtomic replaces path with data via a synced temp file in the same
// directory, so readers see either the old or the new contents.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return fmt.Errorf("setting file permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Close is a no-op; every append is already durable.
func (f *FileStore) Close() error {
	return nil
}
