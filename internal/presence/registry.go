// ABOUTME: Tracks live visitor sessions and admin connections for the relay.
// ABOUTME: Enforces one role per connection and keeps the roster in registration order.

package presence

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrRoleConflict indicates a connection tried to take a second role.
var ErrRoleConflict = errors.New("connection already registered with another role")

// ErrInvalidConnection indicates an empty connection ID.
var ErrInvalidConnection = errors.New("connection id is required")

// VisitorSession is a live visitor connection as shown on the roster.
type VisitorSession struct {
	ConnectionID    string `json:"id"`
	DisplayName     string `json:"name"`
	ConversationKey string `json:"conversationKey"`
}

// Removal reports what Remove took out of the registry.
type Removal struct {
	Visitor *VisitorSession
	Admin   bool
}

// Counts is a point-in-time size of the registry.
type Counts struct {
	Visitors int
	Admins   int
}

// maxAliases bounds how many connection IDs keep resolving to a durable
// conversation key after their session ends. The oldest alias goes first.
const maxAliases = 10000

// Registry owns every live session and the admin set.
type Registry struct {
	mu       sync.RWMutex
	visitors map[string]*VisitorSession
	order    []string // visitor connection IDs in registration order
	admins   map[string]struct{}

	// aliases maps a visitor connection ID to its durable conversation key
	// and outlives the session.
	aliases    map[string]string
	aliasOrder []string
	aliasLimit int
	logger     *slog.Logger
}

// NewRegistry creates an empty Registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		visitors:   make(map[string]*VisitorSession),
		admins:     make(map[string]struct{}),
		aliases:    make(map[string]string),
		aliasLimit: maxAliases,
		logger:     logger.With("component", "presence"),
	}
}

// RegisterVisitor records connID as a visitor. conversationKey falls back to
// connID when empty. Registering an existing visitor returns the existing
// session with created=false.
func (r *Registry) RegisterVisitor(connID, displayName, conversationKey string) (VisitorSession, bool, error) {
	if connID == "" {
		return VisitorSession{}, false, ErrInvalidConnection
	}
	if conversationKey == "" {
		conversationKey = connID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, isAdmin := r.admins[connID]; isAdmin {
		return VisitorSession{}, false, ErrRoleConflict
	}
	if existing, ok := r.visitors[connID]; ok {
		return *existing, false, nil
	}

	session := &VisitorSession{
		ConnectionID:    connID,
		DisplayName:     displayName,
		ConversationKey: conversationKey,
	}
	r.visitors[connID] = session
	r.order = append(r.order, connID)
	if conversationKey != connID {
		r.addAlias(connID, conversationKey)
	}

	r.logger.Info("=== VISITOR CONNECTED ===",
		"connection_id", connID,
		"name", displayName,
		"conversation_key", conversationKey,
		"total_visitors", len(r.visitors),
	)
	return *session, true, nil
}

func (r *Registry) addAlias(connID, conversationKey string) {
	if _, ok := r.aliases[connID]; !ok {
		r.aliasOrder = append(r.aliasOrder, connID)
	}
	r.aliases[connID] = conversationKey

	for len(r.aliasOrder) > r.aliasLimit {
		oldest := r.aliasOrder[0]
		r.aliasOrder = r.aliasOrder[1:]
		delete(r.aliases, oldest)
	}
}

// RegisterAdmin adds connID to the admin set. created is false when it was
// already an admin.
func (r *Registry) RegisterAdmin(connID string) (bool, error) {
	if connID == "" {
		return false, ErrInvalidConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, isVisitor := r.visitors[connID]; isVisitor {
		return false, ErrRoleConflict
	}
	if _, ok := r.admins[connID]; ok {
		return false, nil
	}

	r.admins[connID] = struct{}{}
	r.logger.Info("=== ADMIN CONNECTED ===",
		"connection_id", connID,
		"total_admins", len(r.admins),
	)
	return true, nil
}

// Remove drops connID from whichever role holds it.
func (r *Registry) Remove(connID string) Removal {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.visitors[connID]; ok {
		delete(r.visitors, connID)
		for i, id := range r.order {
			if id == connID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		r.logger.Info("=== VISITOR DISCONNECTED ===",
			"connection_id", connID,
			"name", session.DisplayName,
			"total_visitors", len(r.visitors),
		)
		removed := *session
		return Removal{Visitor: &removed}
	}

	if _, ok := r.admins[connID]; ok {
		delete(r.admins, connID)
		r.logger.Info("=== ADMIN DISCONNECTED ===",
			"connection_id", connID,
			"total_admins", len(r.admins),
		)
		return Removal{Admin: true}
	}

	return Removal{}
}

// ListVisitors returns the roster in registration order.
func (r *Registry) ListVisitors() []VisitorSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]VisitorSession, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.visitors[id])
	}
	return out
}

// ListAdmins returns the admin connection IDs.
func (r *Registry) ListAdmins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.admins))
	for id := range r.admins {
		out = append(out, id)
	}
	return out
}

// Visitor looks up a live visitor session.
func (r *Registry) Visitor(connID string) (VisitorSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.visitors[connID]
	if !ok {
		return VisitorSession{}, false
	}
	return *session, true
}

// ConversationKey resolves id to a conversation key. A live visitor
// connection resolves to its session's key, and a connection that registered
// with a durable key keeps resolving to it after disconnect. Any other id is
// returned unchanged.
func (r *Registry) ConversationKey(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if session, ok := r.visitors[id]; ok {
		return session.ConversationKey
	}
	if key, ok := r.aliases[id]; ok {
		return key
	}
	return id
}

// IsAdmin reports whether connID is a registered admin.
func (r *Registry) IsAdmin(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.admins[connID]
	return ok
}

// Counts returns the number of live visitors and admins.
func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Counts{Visitors: len(r.visitors), Admins: len(r.admins)}
}
