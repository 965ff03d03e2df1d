// ABOUTME: HistoryStore interface and message types for coven-relay persistence
// ABOUTME: Conversation logs are keyed by conversation key and only ever appended to

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrEmptyKey is returned when an operation is given an empty conversation key
var ErrEmptyKey = errors.New("conversation key is required")

// ErrUnknownBackend is returned by Open for an unrecognized backend name
var ErrUnknownBackend = errors.New("unknown history backend")

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// AdminSender is the sender label recorded for operator replies
const AdminSender = "Admin"

// DisplayTimeLayout formats Message.Time for operator display
const DisplayTimeLayout = "3:04:05 PM"

// Message is a single entry in a conversation log
type Message struct {
	Sender string    `json:"sender"`
	Text   string    `json:"message"`
	Time   string    `json:"time"`
	SentAt time.Time `json:"sentAt"`
}

// NewMessage builds a Message stamped with the given time
func NewMessage(sender, text string, now time.Time) Message {
	return Message{
		Sender: sender,
		Text:   text,
		Time:   now.Format(DisplayTimeLayout),
		SentAt: now,
	}
}

// HistoryStore is the durable mapping from conversation key to its ordered log.
// Implementations are safe for concurrent use and serialize their writes.
type HistoryStore interface {
	// Append adds msg to the end of the log for key and persists the whole
	// mapping before returning. The in-memory append survives a failed write.
	Append(ctx context.Context, key string, msg Message) error

	// Ensure creates an empty log for key if none exists.
	Ensure(ctx context.Context, key string) error

	// History returns a copy of the log for key, empty for unknown keys.
	History(ctx context.Context, key string) ([]Message, error)

	// Keys returns every conversation key in sorted order.
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

// Open creates a HistoryStore for the named backend. Existing history at path
// is loaded once here.
func Open(backend, path string, logger *slog.Logger) (HistoryStore, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(path, logger)
	case BackendSQLite:
		return NewSQLiteStore(path, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
