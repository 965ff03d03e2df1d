// ABOUTME: In-memory history document shared by the file and SQLite backends
// ABOUTME: Every append rewrites the full document through the backend writer under one lock

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// documentWriter persists the encoded history document
type documentWriter interface {
	writeDocument(ctx context.Context, data []byte) error
}

// documentStore holds the authoritative history mapping. mu is held across
// the in-memory mutation and the write, so writes never interleave.
type documentStore struct {
	mu     sync.Mutex
	logs   map[string][]Message
	writer documentWriter
	logger *slog.Logger
}

func newDocumentStore(logs map[string][]Message, writer documentWriter, logger *slog.Logger) *documentStore {
	if logs == nil {
		logs = make(map[string][]Message)
	}
	return &documentStore{
		logs:   logs,
		writer: writer,
		logger: logger,
	}
}

// decodeDocument parses a persisted history document. Empty input is an
// empty mapping; null logs are normalized to empty ones.
func decodeDocument(data []byte) (map[string][]Message, error) {
	logs := make(map[string][]Message)
	if len(data) == 0 {
		return logs, nil
	}
	if err := json.Unmarshal(data, &logs); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = make(map[string][]Message)
	}
	for key, log := range logs {
		if log == nil {
			logs[key] = []Message{}
		}
	}
	return logs, nil
}

func encodeDocument(logs map[string][]Message) ([]byte, error) {
	return json.MarshalIndent(logs, "", "  ")
}

// Append adds msg under key and rewrites the whole document.
func (d *documentStore) Append(ctx context.Context, key string, msg Message) error {
	if key == "" {
		return ErrEmptyKey
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.logs[key] = append(d.logs[key], msg)

	data, err := encodeDocument(d.logs)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := d.writer.writeDocument(ctx, data); err != nil {
		d.logger.Error("history write failed, keeping in-memory state",
			"conversation_key", key,
			"error", err)
		return fmt.Errorf("persisting history: %w", err)
	}

	d.logger.Debug("history appended",
		"conversation_key", key,
		"log_len", len(d.logs[key]))
	return nil
}

// Ensure creates an empty log for key. The bucket reaches disk with the next append.
func (d *documentStore) Ensure(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.logs[key]; !ok {
		d.logs[key] = []Message{}
	}
	return nil
}

// History returns a copy of the log for key.
func (d *documentStore) History(ctx context.Context, key string) ([]Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log := d.logs[key]
	out := make([]Message, len(log))
	copy(out, log)
	return out, nil
}

// Keys returns all conversation keys sorted.
func (d *documentStore) Keys(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.logs))
	for key := range d.logs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
