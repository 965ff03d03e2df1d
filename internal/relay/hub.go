// ABOUTME: Connection lifecycle manager that turns peer events into registry, routing and roster work
// ABOUTME: Each event runs under one mutex so no two events interleave their mutations

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-relay/internal/metrics"
	"github.com/2389/coven-relay/internal/presence"
	"github.com/2389/coven-relay/internal/store"
)

// ErrNotConnected indicates an event for a connection that is not (or no longer) connected.
var ErrNotConnected = errors.New("connection is not connected")

// ErrDuplicateConnection indicates Connect was called twice for one connection ID.
var ErrDuplicateConnection = errors.New("connection already connected")

// ErrNotAdmin indicates an admin-only event from a connection that is not an admin.
var ErrNotAdmin = errors.New("connection is not a registered admin")

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int
	Visitors    int
	Admins      int
}

// Hub owns the relay's live state and handles every connection event.
type Hub struct {
	mu          sync.Mutex
	registry    *presence.Registry
	history     store.HistoryStore
	peers       *peerTable
	router      *Router
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewHub wires a registry, router and broadcaster around history.
// sink and m may be nil.
func NewHub(history store.HistoryStore, sink NotificationSink, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	registry := presence.NewRegistry(logger)
	peers := newPeerTable(m, logger.With("component", "peers"))

	m.RegisterPresence(
		func() int { return registry.Counts().Visitors },
		func() int { return registry.Counts().Admins },
	)

	return &Hub{
		registry:    registry,
		history:     history,
		peers:       peers,
		router:      newRouter(registry, history, peers, sink, m, logger),
		broadcaster: newBroadcaster(registry, peers, m, logger),
		logger:      logger.With("component", "hub"),
	}
}

// Connect starts tracking peer. The connection is unregistered until it
// sends registerVisitor or registerAdmin.
func (h *Hub) Connect(peer Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.peers.add(peer) {
		return ErrDuplicateConnection
	}
	h.logger.Debug("connection opened", "connection_id", peer.ID())
	return nil
}

// Disconnect tears down connID. A departing visitor triggers a roster push;
// a departing admin does not.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.peers.remove(connID) {
		return
	}

	removal := h.registry.Remove(connID)
	if removal.Visitor != nil {
		h.broadcaster.BroadcastRoster()
	}
	h.logger.Debug("connection closed",
		"connection_id", connID,
		"was_visitor", removal.Visitor != nil,
		"was_admin", removal.Admin)
}

// RegisterVisitor makes connID a visitor named name. A valid visitorID
// becomes the conversation key so a returning visitor keeps their history;
// otherwise the connection ID is used.
func (h *Hub) RegisterVisitor(ctx context.Context, connID, name, visitorID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.peers.has(connID) {
		return ErrNotConnected
	}

	key := ""
	if visitorID != "" {
		if ValidVisitorID(visitorID) {
			key = visitorID
		} else {
			h.logger.Debug("ignoring invalid visitor id", "connection_id", connID)
		}
	}

	session, created, err := h.registry.RegisterVisitor(connID, name, key)
	if err != nil {
		h.reject(connID, err)
		return err
	}
	if !created {
		return nil
	}

	if err := h.history.Ensure(ctx, session.ConversationKey); err != nil {
		h.logger.Warn("could not create conversation log",
			"conversation_key", session.ConversationKey,
			"error", err)
	}
	h.broadcaster.BroadcastRoster()
	return nil
}

// RegisterAdmin makes connID an admin and replies with the current roster.
// Callers are responsible for deciding whether the connection may be an admin.
func (h *Hub) RegisterAdmin(ctx context.Context, connID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.peers.has(connID) {
		return ErrNotConnected
	}

	if _, err := h.registry.RegisterAdmin(connID); err != nil {
		h.reject(connID, err)
		return err
	}
	h.broadcaster.SendRoster(connID)
	return nil
}

// RejectRegistration tells connID its registration was refused.
func (h *Hub) RejectRegistration(connID string, reason error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reject(connID, reason)
}

func (h *Hub) reject(connID string, reason error) {
	h.logger.Warn("registration rejected", "connection_id", connID, "error", reason)
	h.peers.send(connID, registrationErrorFrame(reason.Error()))
}

// VisitorMessage routes text from visitor connID.
func (h *Hub) VisitorMessage(ctx context.Context, connID, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.peers.has(connID) {
		return ErrNotConnected
	}
	return h.router.RouteVisitorMessage(ctx, connID, text)
}

// AdminMessage routes a reply from admin connID to connection to.
func (h *Hub) AdminMessage(ctx context.Context, connID, to, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireAdmin(connID); err != nil {
		return err
	}
	return h.router.RouteAdminMessage(ctx, to, text)
}

// GetChatHistory replies to admin connID with the log for key.
func (h *Hub) GetChatHistory(ctx context.Context, connID, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireAdmin(connID); err != nil {
		return err
	}

	log, err := h.router.FetchHistory(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching history for %s: %w", key, err)
	}
	h.peers.send(connID, historyFrame(log))
	return nil
}

func (h *Hub) requireAdmin(connID string) error {
	if !h.peers.has(connID) {
		return ErrNotConnected
	}
	if !h.registry.IsAdmin(connID) {
		h.logger.Debug("dropping admin event from non-admin", "connection_id", connID)
		return ErrNotAdmin
	}
	return nil
}

// Roster returns the current visitor roster.
func (h *Hub) Roster() []presence.VisitorSession {
	return h.registry.ListVisitors()
}

// Stats reports connection and registration counts.
func (h *Hub) Stats() Stats {
	counts := h.registry.Counts()
	return Stats{
		Connections: h.peers.count(),
		Visitors:    counts.Visitors,
		Admins:      counts.Admins,
	}
}
