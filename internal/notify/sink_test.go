// ABOUTME: Tests for the asynchronous notification Sink
// ABOUTME: Covers non-blocking dispatch, failure isolation, coalescing, caps, and shutdown

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/metrics"
)

// fakeNotifier records sends and can block or fail on demand.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	err   error
	block chan struct{}
	calls chan Notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{calls: make(chan Notification, 100)}
}

func (f *fakeNotifier) Send(ctx context.Context, n Notification) error {
	f.calls <- n
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) Sent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.sent...)
}

func waitCall(t *testing.T, f *fakeNotifier) Notification {
	t.Helper()
	select {
	case n := <-f.calls:
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notifier call")
		return Notification{}
	}
}

func TestSink_DeliversAsynchronously(t *testing.T) {
	f := newFakeNotifier()
	f.block = make(chan struct{})
	s := NewSink(f, SinkOptions{}, nil, nil)

	start := time.Now()
	s.Notify(Notification{ConversationKey: "v1", Name: "Sam", Text: "hello"})
	assert.Less(t, time.Since(start), 100*time.Millisecond, "Notify must not wait for the notifier")

	n := waitCall(t, f)
	assert.Equal(t, "Sam", n.Name)

	close(f.block)
	require.NoError(t, s.Close(context.Background()))
	assert.Len(t, f.Sent(), 1)
}

func TestSink_FailureIsIsolated(t *testing.T) {
	f := newFakeNotifier()
	f.err = errors.New("smtp down")
	m := metrics.New()
	s := NewSink(f, SinkOptions{}, m, nil)

	assert.NotPanics(t, func() {
		s.Notify(Notification{ConversationKey: "v1", Text: "hello"})
	})
	waitCall(t, f)
	require.NoError(t, s.Close(context.Background()))
}

func TestSink_Timeout(t *testing.T) {
	f := newFakeNotifier()
	f.block = make(chan struct{}) // never closed; ctx timeout releases it
	s := NewSink(f, SinkOptions{Timeout: 20 * time.Millisecond}, nil, nil)

	s.Notify(Notification{ConversationKey: "v1"})
	waitCall(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx), "timed-out send should finish on its own")
}

func TestSink_Coalesces(t *testing.T) {
	f := newFakeNotifier()
	s := NewSink(f, SinkOptions{CoalesceWindow: time.Hour}, nil, nil)

	s.Notify(Notification{ConversationKey: "v1", Text: "one"})
	s.Notify(Notification{ConversationKey: "v1", Text: "two"})
	s.Notify(Notification{ConversationKey: "v2", Text: "three"})

	require.NoError(t, s.Close(context.Background()))

	sent := f.Sent()
	require.Len(t, sent, 2)
	texts := []string{sent[0].Text, sent[1].Text}
	assert.ElementsMatch(t, []string{"one", "three"}, texts)
}

func TestSink_DropsWhenBacklogFull(t *testing.T) {
	f := newFakeNotifier()
	f.block = make(chan struct{})
	m := metrics.New()
	s := NewSink(f, SinkOptions{MaxInFlight: 1, Backlog: 1}, m, nil)

	s.Notify(Notification{ConversationKey: "v1", Text: "first"})
	waitCall(t, f)
	s.Notify(Notification{ConversationKey: "v2", Text: "second"})
	s.Notify(Notification{ConversationKey: "v3", Text: "third"})

	close(f.block)
	require.NoError(t, s.Close(context.Background()))

	var texts []string
	for _, n := range f.Sent() {
		texts = append(texts, n.Text)
	}
	assert.Equal(t, []string{"first", "second"}, texts)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `coven_relay_notifications_total{result="rejected"} 1`)
}

func TestSink_BurstQueuesBehindSlowNotifier(t *testing.T) {
	f := newFakeNotifier()
	f.block = make(chan struct{})
	s := NewSink(f, SinkOptions{MaxInFlight: 2}, nil, nil)

	for i := 0; i < 10; i++ {
		s.Notify(Notification{ConversationKey: fmt.Sprintf("v%d", i), Text: fmt.Sprintf("msg %d", i)})
	}
	waitCall(t, f)
	waitCall(t, f)

	close(f.block)
	require.NoError(t, s.Close(context.Background()))
	assert.Len(t, f.Sent(), 10)
}

func TestSink_IgnoresAfterClose(t *testing.T) {
	f := newFakeNotifier()
	s := NewSink(f, SinkOptions{}, nil, nil)
	require.NoError(t, s.Close(context.Background()))

	s.Notify(Notification{ConversationKey: "v1"})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.Sent())
}

func TestSink_CloseHonoursContext(t *testing.T) {
	f := newFakeNotifier()
	f.block = make(chan struct{})
	defer close(f.block)
	s := NewSink(f, SinkOptions{Timeout: time.Hour}, nil, nil)

	s.Notify(Notification{ConversationKey: "v1"})
	waitCall(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.NoError(t, n.Send(context.Background(), Notification{Name: "Sam", Text: "hi"}))
}

func TestNotificationBody(t *testing.T) {
	n := Notification{Name: "Sam", Text: "hello"}
	assert.Equal(t, "New message from: Sam\n\nMessage:\nhello", n.Body())
}
