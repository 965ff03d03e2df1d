// ABOUTME: Mock HistoryStore implementation for testing
// ABOUTME: Allows relay tests to run without disk and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory HistoryStore for testing.
type MockStore struct {
	mu       sync.Mutex
	logs     map[string][]Message
	writeErr error
	appends  int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		logs: make(map[string][]Message),
	}
}

// SetWriteError makes subsequent appends report err after updating memory.
// Pass nil to restore successful writes.
func (m *MockStore) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Appends returns how many appends have been attempted.
func (m *MockStore) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

// Append adds msg under key.
func (m *MockStore) Append(ctx context.Context, key string, msg Message) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.appends++
	m.logs[key] = append(m.logs[key], msg)
	return m.writeErr
}

// Ensure creates an empty log for key.
func (m *MockStore) Ensure(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.logs[key]; !ok {
		m.logs[key] = []Message{}
	}
	return nil
}

// History returns a copy of the log for key.
func (m *MockStore) History(ctx context.Context, key string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, len(m.logs[key]))
	copy(out, m.logs[key])
	return out, nil
}

// Keys returns all conversation keys sorted.
func (m *MockStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.logs))
	for k := range m.logs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
