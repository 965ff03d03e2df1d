// ABOUTME: Flat-file log of contact form submissions
// ABOUTME: Keeps every entry in one JSON array that is rewritten atomically on each submission

package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-relay/internal/store"
)

const (
	maxNameLength    = 200
	maxEmailLength   = 320
	maxMessageLength = 10000
)

// ErrInvalidSubmission is returned when a submission is missing or oversized fields.
var ErrInvalidSubmission = errors.New("invalid contact submission")

// Entry is one stored submission.
type Entry struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// Submission is the visitor-supplied part of an Entry.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Validate trims the fields and checks that they are present and bounded.
func (s *Submission) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Message = strings.TrimSpace(s.Message)

	switch {
	case s.Name == "" || s.Email == "" || s.Message == "":
		return fmt.Errorf("%w: name, email and message are required", ErrInvalidSubmission)
	case len(s.Name) > maxNameLength:
		return fmt.Errorf("%w: name too long", ErrInvalidSubmission)
	case len(s.Email) > maxEmailLength:
		return fmt.Errorf("%w: email too long", ErrInvalidSubmission)
	case len(s.Message) > maxMessageLength:
		return fmt.Errorf("%w: message too long", ErrInvalidSubmission)
	}

	if _, err := mail.ParseAddress(s.Email); err != nil {
		return fmt.Errorf("%w: email address is not valid", ErrInvalidSubmission)
	}
	return nil
}

// Log appends submissions to a JSON array file.
type Log struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// NewLog prepares a contact log at path, creating parent directories.
func NewLog(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errors.New("contact log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating contact directory: %w", err)
	}
	return &Log{
		path:   path,
		now:    time.Now,
		logger: logger.With("component", "contact"),
	}, nil
}

// Add validates sub, appends it, and rewrites the file.
func (l *Log) Add(_ context.Context, sub Submission) (Entry, error) {
	if err := sub.Validate(); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:      uuid.New().String(),
		Name:    sub.Name,
		Email:   sub.Email,
		Message: sub.Message,
		Date:    l.now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("encoding contact log: %w", err)
	}
	if err := store.WriteFileAtomic(l.path, data); err != nil {
		l.logger.Error("failed to write contact log", "path", l.path, "error", err)
		return Entry{}, fmt.Errorf("persisting contact log: %w", err)
	}

	l.logger.Info("contact submission stored", "id", entry.ID, "total", len(entries))
	return entry, nil
}

// List returns every stored submission, oldest first.
func (l *Log) List(_ context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// read loads the file. A corrupt file is an error rather than an empty log so
// a rewrite never discards earlier submissions.
func (l *Log) read() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading contact log: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding contact log: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
