// ABOUTME: Pushes the visitor roster to admin connections
// ABOUTME: One snapshot per change, delivered to each admin individually

package relay

import (
	"log/slog"

	"github.com/2389/coven-relay/internal/metrics"
	"github.com/2389/coven-relay/internal/presence"
)

// Broadcaster keeps admins' rosters current.
type Broadcaster struct {
	registry *presence.Registry
	peers    *peerTable
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func newBroadcaster(registry *presence.Registry, peers *peerTable, m *metrics.Metrics, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		peers:    peers,
		metrics:  m,
		logger:   logger.With("component", "broadcaster"),
	}
}

// BroadcastRoster snapshots the roster once and sends it to every admin.
// It returns how many admins accepted the frame.
func (b *Broadcaster) BroadcastRoster() int {
	frame := rosterFrame(b.registry.ListVisitors())
	admins := b.registry.ListAdmins()

	delivered := 0
	for _, adminID := range admins {
		if b.peers.send(adminID, frame) {
			b.metrics.RosterPushed()
			delivered++
		}
	}

	b.logger.Debug("roster broadcast",
		"admins", len(admins),
		"delivered", delivered)
	return delivered
}

// SendRoster sends the current roster to a single admin.
func (b *Broadcaster) SendRoster(adminID string) bool {
	ok := b.peers.send(adminID, rosterFrame(b.registry.ListVisitors()))
	if ok {
		b.metrics.RosterPushed()
	}
	return ok
}
