// ABOUTME: Tests for the JSON file history backend
// ABOUTME: Covers restart fidelity, corrupt files, write failures, and ordering under concurrency

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatHistory.json")
	fs, err := NewFileStore(path, nil)
	require.NoError(t, err)
	return fs, path
}

func TestNewFileStore_MissingFileIsEmpty(t *testing.T) {
	fs, path := newTestFileStore(t)

	keys, err := fs.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Nothing is written until the first append
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewFileStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "chatHistory.json")

	fs, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, fs.Append(context.Background(), "v1", NewMessage("Sam", "hello", time.Now())))

	if _, err := os.Stat(path); err != nil {
		t.Errorf("history file was not created: %v", err)
	}
}

func TestNewFileStore_RequiresPath(t *testing.T) {
	_, err := NewFileStore("", nil)
	assert.Error(t, err)
}

func TestFileStore_RestartFidelity(t *testing.T) {
	ctx := context.Background()
	fs, path := newTestFileStore(t)

	now := time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)
	require.NoError(t, fs.Append(ctx, "v1", NewMessage("Sam", "hello", now)))
	require.NoError(t, fs.Append(ctx, "v1", NewMessage(AdminSender, "hi", now.Add(time.Second))))
	require.NoError(t, fs.Append(ctx, "v2", NewMessage("Ana", "ping", now.Add(2*time.Second))))

	reopened, err := NewFileStore(path, nil)
	require.NoError(t, err)

	v1, err := reopened.History(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, v1, 2)
	assert.Equal(t, "Sam", v1[0].Sender)
	assert.Equal(t, "hello", v1[0].Text)
	assert.Equal(t, "3:04:05 PM", v1[0].Time)
	assert.True(t, now.Equal(v1[0].SentAt))
	assert.Equal(t, AdminSender, v1[1].Sender)
	assert.Equal(t, "hi", v1[1].Text)

	keys, err := reopened.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, keys)
}

func TestFileStore_DocumentFormat(t *testing.T) {
	ctx := context.Background()
	fs, path := newTestFileStore(t)

	require.NoError(t, fs.Append(ctx, "v1", NewMessage("Sam", "hello", time.Now())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc["v1"], 1)
	assert.Equal(t, "Sam", doc["v1"][0]["sender"])
	assert.Equal(t, "hello", doc["v1"][0]["message"])
	assert.Contains(t, doc["v1"][0], "time")
	assert.Contains(t, string(data), "\n  \"v1\"", "document should be pretty-printed")
}

func TestFileStore_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatHistory.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	fs, err := NewFileStore(path, nil)
	require.NoError(t, err)

	keys, err := fs.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)

	aside, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, aside, 1, "corrupt file should be moved aside")
}

func TestFileStore_NullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatHistory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"v1": null}`), 0644))

	fs, err := NewFileStore(path, nil)
	require.NoError(t, err)

	log, err := fs.History(context.Background(), "v1")
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.Empty(t, log)
}

func TestFileStore_WriteFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	fs, path := newTestFileStore(t)

	require.NoError(t, fs.Append(ctx, "v1", NewMessage("Sam", "one", time.Now())))

	// A non-empty directory at the target path makes the rename fail
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0755))

	err := fs.Append(ctx, "v1", NewMessage("Sam", "two", time.Now()))
	require.Error(t, err)

	log, err := fs.History(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, log, 2, "in-memory append should survive a failed write")

	// The next successful write carries the earlier message too
	require.NoError(t, os.RemoveAll(path))
	require.NoError(t, fs.Append(ctx, "v1", NewMessage("Sam", "three", time.Now())))

	reopened, err := NewFileStore(path, nil)
	require.NoError(t, err)
	log, err = reopened.History(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "two", log[1].Text)
}

func TestFileStore_EmptyKey(t *testing.T) {
	fs, _ := newTestFileStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, fs.Append(ctx, "", NewMessage("Sam", "x", time.Now())), ErrEmptyKey)
	assert.ErrorIs(t, fs.Ensure(ctx, ""), ErrEmptyKey)
}

func TestFileStore_UnknownKeyIsEmpty(t *testing.T) {
	fs, _ := newTestFileStore(t)

	log, err := fs.History(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestFileStore_EnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFileStore(t)

	require.NoError(t, fs.Append(ctx, "v1", NewMessage("Sam", "hello", time.Now())))
	require.NoError(t, fs.Ensure(ctx, "v1"))
	require.NoError(t, fs.Ensure(ctx, "v2"))

	log, err := fs.History(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, log, 1, "Ensure must not reset an existing log")

	keys, err := fs.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, keys)
}

func TestFileStore_HistoryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFileStore(t)
	require.NoError(t, fs.Append(ctx, "v1", NewMessage("Sam", "hello", time.Now())))

	log, err := fs.History(ctx, "v1")
	require.NoError(t, err)
	log[0].Text = "mutated"

	again, err := fs.History(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again[0].Text)
}

func TestFileStore_ConcurrentAppendsKeepPerKeyOrder(t *testing.T) {
	ctx := context.Background()
	fs, path := newTestFileStore(t)

	const visitors = 8
	const perVisitor = 20

	var wg sync.WaitGroup
	for v := 0; v < visitors; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			key := fmt.Sprintf("v%d", v)
			for i := 0; i < perVisitor; i++ {
				msg := NewMessage(key, fmt.Sprintf("%d", i), time.Now())
				if err := fs.Append(ctx, key, msg); err != nil {
					t.Errorf("append %s/%d: %v", key, i, err)
				}
			}
		}(v)
	}
	wg.Wait()

	reopened, err := NewFileStore(path, nil)
	require.NoError(t, err)

	for v := 0; v < visitors; v++ {
		key := fmt.Sprintf("v%d", v)
		log, err := reopened.History(ctx, key)
		require.NoError(t, err)
		require.Len(t, log, perVisitor)
		for i, msg := range log {
			assert.Equal(t, fmt.Sprintf("%d", i), msg.Text, "order for %s", key)
		}
	}
}
