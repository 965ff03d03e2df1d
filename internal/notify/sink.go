// ABOUTME: Fire-and-forget notification sink with a bounded backlog, worker cap, and per-send timeout
// ABOUTME: Optionally coalesces bursts per conversation through a dedupe.Window

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-relay/internal/dedupe"
	"github.com/2389/coven-relay/internal/metrics"
)

const (
	defaultMaxInFlight = 4
	defaultBacklog     = 64
	defaultTimeout     = 10 * time.Second
	coalesceMaxKeys    = 10000
)

// SinkOptions tunes a Sink. Zero values pick defaults; a zero CoalesceWindow
// disables coalescing.
type SinkOptions struct {
	// MaxInFlight is how many sends run at once.
	MaxInFlight int
	// Backlog is how many notifications may wait for a free sender.
	Backlog        int
	Timeout        time.Duration
	CoalesceWindow time.Duration
}

// Sink hands notifications to a Notifier on background workers.
// Notify never blocks and never reports failure to the caller; it drops a
// notification only when the backlog is full.
type Sink struct {
	notifier Notifier
	timeout  time.Duration
	queue    chan Notification
	window   *dedupe.Window
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewSink creates a Sink around notifier. m may be nil.
func NewSink(notifier Notifier, opts SinkOptions, m *metrics.Metrics, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.Backlog <= 0 {
		opts.Backlog = defaultBacklog
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	s := &Sink{
		notifier: notifier,
		timeout:  opts.Timeout,
		queue:    make(chan Notification, opts.Backlog),
		metrics:  m,
		logger:   logger.With("component", "notify"),
	}
	if opts.CoalesceWindow > 0 {
		s.window = dedupe.NewWindow(opts.CoalesceWindow, coalesceMaxKeys)
	}

	s.wg.Add(opts.MaxInFlight)
	for i := 0; i < opts.MaxInFlight; i++ {
		go s.worker()
	}
	return s
}

// Notify schedules n for delivery and returns immediately.
func (s *Sink) Notify(n Notification) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.window != nil && !s.window.Claim(n.ConversationKey) {
		s.mu.Unlock()
		s.metrics.Notification(metrics.NotifyCoalesced)
		s.logger.Debug("notification coalesced", "conversation_key", n.ConversationKey)
		return
	}

	select {
	case s.queue <- n:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		s.metrics.Notification(metrics.NotifyRejected)
		s.logger.Warn("notification dropped, backlog full",
			"conversation_key", n.ConversationKey)
	}
}

// worker delivers queued notifications until the queue is closed and empty.
func (s *Sink) worker() {
	defer s.wg.Done()
	for n := range s.queue {
		s.deliver(n)
	}
}

func (s *Sink) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Notification(metrics.NotifyFailed)
			s.logger.Error("notifier panicked", "conversation_key", n.ConversationKey, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.notifier.Send(ctx, n); err != nil {
		s.metrics.Notification(metrics.NotifyFailed)
		s.logger.Warn("notification failed",
			"conversation_key", n.ConversationKey,
			"error", err)
		return
	}

	s.metrics.Notification(metrics.NotifySent)
	s.logger.Debug("notification sent", "conversation_key", n.ConversationKey)
}

// Close stops accepting notifications and waits for the backlog to drain
// until ctx is done.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	if s.window != nil {
		s.window.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
