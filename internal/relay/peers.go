// ABOUTME: Peer abstraction for live connections and the table of connected peers
// ABOUTME: Sends never block; a peer that cannot take a frame drops it

package relay

import (
	"log/slog"
	"sync"

	"github.com/2389/coven-relay/internal/metrics"
)

// Peer is a live connection the relay can push frames to.
type Peer interface {
	ID() string
	// Send enqueues f without blocking. It returns false if the frame was dropped.
	Send(f Frame) bool
}

type peerTable struct {
	mu      sync.RWMutex
	peers   map[string]Peer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func newPeerTable(m *metrics.Metrics, logger *slog.Logger) *peerTable {
	return &peerTable{
		peers:   make(map[string]Peer),
		metrics: m,
		logger:  logger,
	}
}

func (t *peerTable) add(p Peer) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.peers[p.ID()]; exists {
		return false
	}
	t.peers[p.ID()] = p
	return true
}

func (t *peerTable) remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.peers[id]; !exists {
		return false
	}
	delete(t.peers, id)
	return true
}

func (t *peerTable) has(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.peers[id]
	return ok
}

func (t *peerTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// send delivers f to the peer with id. Unknown peers are a silent no-op.
func (t *peerTable) send(id string, f Frame) bool {
	t.mu.RLock()
	p, ok := t.peers[id]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	if !p.Send(f) {
		t.metrics.FrameDropped(f.Type)
		t.logger.Warn("dropped frame for slow peer",
			"connection_id", id,
			"event", f.Type)
		return false
	}
	return true
}
