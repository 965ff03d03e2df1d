// ABOUTME: Routes chat messages between visitors and admins and files them in history
// ABOUTME: Visitor messages fan out to every admin; admin replies go to one connection

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-relay/internal/metrics"
	"github.com/2389/coven-relay/internal/notify"
	"github.com/2389/coven-relay/internal/presence"
	"github.com/2389/coven-relay/internal/store"
)

// ErrNotRegistered indicates a visitor message from a connection with no session.
var ErrNotRegistered = errors.New("connection is not a registered visitor")

// ErrMissingTarget indicates an admin message without a recipient.
var ErrMissingTarget = errors.New("admin message has no target")

// NotificationSink receives one notification per visitor message and must not block.
type NotificationSink interface {
	Notify(n notify.Notification)
}

// Router applies the relay's routing rules.
type Router struct {
	registry *presence.Registry
	history  store.HistoryStore
	peers    *peerTable
	sink     NotificationSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func newRouter(
	registry *presence.Registry,
	history store.HistoryStore,
	peers *peerTable,
	sink NotificationSink,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	return &Router{
		registry: registry,
		history:  history,
		peers:    peers,
		sink:     sink,
		metrics:  m,
		logger:   logger.With("component", "router"),
		now:      time.Now,
	}
}

// RouteVisitorMessage files text under the visitor's conversation, delivers it
// to every admin and schedules one notification.
func (r *Router) RouteVisitorMessage(ctx context.Context, connID, text string) error {
	session, ok := r.registry.Visitor(connID)
	if !ok {
		r.logger.Debug("dropping message from unregistered connection", "connection_id", connID)
		return ErrNotRegistered
	}

	now := r.now()
	r.append(ctx, session.ConversationKey, store.NewMessage(session.DisplayName, text, now))

	frame := Frame{
		Type: EventAdminReceiveMessage,
		Payload: AdminReceiveMessage{
			From:    connID,
			Name:    session.DisplayName,
			Message: text,
		},
	}
	for _, adminID := range r.registry.ListAdmins() {
		r.peers.send(adminID, frame)
	}
	r.metrics.MessageRouted(metrics.DirectionVisitor)

	if r.sink != nil {
		r.sink.Notify(notify.Notification{
			ConversationKey: session.ConversationKey,
			Name:            session.DisplayName,
			Text:            text,
			SentAt:          now,
		})
	}

	r.logger.Debug("visitor message routed",
		"connection_id", connID,
		"conversation_key", session.ConversationKey)
	return nil
}

// RouteAdminMessage files an admin reply and delivers it to connection to.
// The target is not required to be a live visitor: the reply is filed under
// the conversation key to resolves to, and delivery to a missing connection
// is a no-op.
func (r *Router) RouteAdminMessage(ctx context.Context, to, text string) error {
	if to == "" {
		return ErrMissingTarget
	}

	key := r.conversationKeyFor(to)
	r.append(ctx, key, store.NewMessage(store.AdminSender, text, r.now()))

	delivered := r.peers.send(to, Frame{
		Type:    EventVisitorReceiveMessage,
		Payload: VisitorReceiveMessage{Message: text},
	})
	r.metrics.MessageRouted(metrics.DirectionAdmin)

	r.logger.Debug("admin message routed",
		"to", to,
		"conversation_key", key,
		"delivered", delivered)
	return nil
}

// FetchHistory returns the conversation log for key. A key naming a visitor
// connection, live or recently departed, resolves to that visitor's
// conversation.
func (r *Router) FetchHistory(ctx context.Context, key string) ([]store.Message, error) {
	log, err := r.history.History(ctx, r.conversationKeyFor(key))
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	if log == nil {
		log = []store.Message{}
	}
	return log, nil
}

func (r *Router) conversationKeyFor(id string) string {
	return r.registry.ConversationKey(id)
}

// append persists msg. A failed write leaves the message in memory and is
// only counted here; the store has already logged it.
func (r *Router) append(ctx context.Context, key string, msg store.Message) {
	if err := r.history.Append(ctx, key, msg); err != nil {
		r.metrics.PersistFailed()
		r.logger.Debug("history append not persisted",
			"conversation_key", key,
			"error", err)
	}
}
