// ABOUTME: Size-bounded time window that admits each key at most once per period.
// ABOUTME: Used by the notification sink to coalesce bursts per conversation.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type claim struct {
	key string
	at  time.Time
}

// Window admits a key once and then rejects it until period has elapsed.
// Claims are kept oldest-first, so expiry and eviction both work from the front.
type Window struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	byAge   *list.List
	period  time.Duration
	maxKeys int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWindow creates a Window. A background sweeper drops expired claims every
// period (at least once a second).
func NewWindow(period time.Duration, maxKeys int) *Window {
	if maxKeys <= 0 {
		maxKeys = 1
	}
	w := &Window{
		claims:  make(map[string]*list.Element),
		byAge:   list.New(),
		period:  period,
		maxKeys: maxKeys,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// Claim reports whether key is admitted. An admitted key is recorded and
// further claims for it fail until period has passed.
func (w *Window) Claim(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if elem, ok := w.claims[key]; ok {
		c := elem.Value.(*claim)
		if now.Sub(c.at) < w.period {
			return false
		}
		c.at = now
		w.byAge.MoveToBack(elem)
		return true
	}

	for len(w.claims) >= w.maxKeys {
		w.dropOldestLocked()
	}
	w.claims[key] = w.byAge.PushBack(&claim{key: key, at: now})
	return true
}

// held reports whether key is inside its window without claiming it.
func (w *Window) held(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	elem, ok := w.claims[key]
	if !ok {
		return false
	}
	return w.now().Sub(elem.Value.(*claim).at) < w.period
}

// size returns the number of tracked keys, expired or not.
func (w *Window) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.claims)
}

func (w *Window) dropOldestLocked() {
	front := w.byAge.Front()
	if front == nil {
		return
	}
	w.byAge.Remove(front)
	delete(w.claims, front.Value.(*claim).key)
}

// sweep removes expired claims. Must not hold mu.
func (w *Window) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for front := w.byAge.Front(); front != nil; front = w.byAge.Front() {
		if now.Sub(front.Value.(*claim).at) < w.period {
			return
		}
		w.dropOldestLocked()
	}
}

func (w *Window) sweepLoop() {
	interval := w.period
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stop:
			return
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (w *Window) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
}
