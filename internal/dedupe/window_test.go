// ABOUTME: Tests for the coalescing Window.
// ABOUTME: Validates admission, expiry, size bounds, sweeping, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestWindow(period time.Duration, maxKeys int) (*Window, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewWindow(period, maxKeys)
	w.now = clock.Now
	return w, clock
}

func TestWindow_FirstClaimAdmitted(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)
	defer w.Close()

	assert.True(t, w.Claim("conv-1"))
	assert.True(t, w.held("conv-1"))
	assert.False(t, w.held("conv-2"))
}

func TestWindow_RepeatRejectedUntilExpiry(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 10)
	defer w.Close()

	assert.True(t, w.Claim("conv-1"))
	assert.False(t, w.Claim("conv-1"))

	clock.Advance(30 * time.Second)
	assert.False(t, w.Claim("conv-1"), "still inside the window")

	clock.Advance(31 * time.Second)
	assert.True(t, w.Claim("conv-1"), "window elapsed")
	assert.False(t, w.Claim("conv-1"), "re-claim opens a new window")
}

func TestWindow_KeysAreIndependent(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)
	defer w.Close()

	assert.True(t, w.Claim("conv-1"))
	assert.True(t, w.Claim("conv-2"))
	assert.False(t, w.Claim("conv-1"))
}

func TestWindow_EvictsOldestAtCapacity(t *testing.T) {
	w, _ := newTestWindow(time.Hour, 3)
	defer w.Close()

	for i := 1; i <= 3; i++ {
		assert.True(t, w.Claim(fmt.Sprintf("k%d", i)))
	}
	assert.True(t, w.Claim("k4"))

	assert.Equal(t, 3, w.size())
	assert.False(t, w.held("k1"), "oldest claim should be evicted")
	assert.True(t, w.held("k4"))

	// An evicted key is admitted again
	assert.True(t, w.Claim("k1"))
}

func TestWindow_Sweep(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 10)
	defer w.Close()

	w.Claim("old")
	clock.Advance(45 * time.Second)
	w.Claim("new")
	clock.Advance(30 * time.Second)

	w.sweep()

	assert.Equal(t, 1, w.size())
	assert.False(t, w.held("old"))
	assert.True(t, w.held("new"))
}

func TestWindow_ZeroMaxKeys(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 0)
	defer w.Close()

	assert.True(t, w.Claim("a"))
	assert.True(t, w.Claim("b"))
	assert.Equal(t, 1, w.size())
}

func TestWindow_CloseTwice(t *testing.T) {
	w := NewWindow(time.Minute, 10)
	w.Close()
	assert.NotPanics(t, w.Close)
}

func TestWindow_ConcurrentClaimsAdmitOnce(t *testing.T) {
	w := NewWindow(time.Hour, 100)
	defer w.Close()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Claim("same") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}
