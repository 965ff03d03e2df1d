// ABOUTME: WebSocket endpoint that turns socket frames into relay Hub events
// ABOUTME: Enforces frame size, per-connection rate limits, and a bad-frame budget

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/2389/coven-relay/internal/auth"
	"github.com/2389/coven-relay/internal/metrics"
	"github.com/2389/coven-relay/internal/relay"
)

const maxDecodeErrorsPerConn = 3

// ErrAdminAuthRequired is sent to connections that register as admin without a valid token.
var ErrAdminAuthRequired = errors.New("admin authentication required")

// AdminAuthenticator decides whether the handshake request carries admin credentials.
type AdminAuthenticator interface {
	Authenticate(r *http.Request) (*auth.AuthContext, error)
}

// Options bounds per-connection resource use. Zero values pick defaults.
type Options struct {
	FramesPerSecond float64
	Burst           int
	MaxFrameBytes   int
	SendQueue       int
	WriteTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.FramesPerSecond <= 0 {
		o.FramesPerSecond = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 * 1024
	}
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type registerVisitorPayload struct {
	Name      *string `json:"name"`
	VisitorID string  `json:"visitorId"`
}

type visitorMessagePayload struct {
	Message *string `json:"message"`
}

type adminMessagePayload struct {
	To      *string `json:"to"`
	Message *string `json:"message"`
}

// Handler serves the relay WebSocket endpoint.
type Handler struct {
	hub     *relay.Hub
	authn   AdminAuthenticator
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
	ws      websocket.Handler

	mu     sync.Mutex
	live   map[string]*wsPeer
	closed bool
	conns  sync.WaitGroup
}

// NewHandler creates the endpoint. With a nil authn any connection may
// register as admin.
func NewHandler(hub *relay.Hub, authn AdminAuthenticator, opts Options, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		hub:     hub,
		authn:   authn,
		opts:    opts.withDefaults(),
		metrics: m,
		logger:  logger.With("component", "websocket"),
		live:    make(map[string]*wsPeer),
	}
	h.ws = websocket.Handler(h.serveConn)
	return h
}

type adminAllowedKey struct{}

// ServeHTTP checks the method and admin credentials, then upgrades.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	allowed := true
	if h.authn != nil {
		_, err := h.authn.Authenticate(r)
		allowed = err == nil
	}
	r = r.WithContext(context.WithValue(r.Context(), adminAllowedKey{}, allowed))

	h.ws.ServeHTTP(w, r)
}

// connection is the per-socket state the read loop works with.
type connection struct {
	id           string
	adminAllowed bool
	peer         *wsPeer
	logger       *slog.Logger
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	ctx := conn.Request().Context()
	conn.MaxPayloadBytes = h.opts.MaxFrameBytes

	allowed, _ := ctx.Value(adminAllowedKey{}).(bool)
	id := uuid.New().String()
	logger := h.logger.With("connection_id", id)

	c := &connection{
		id:           id,
		adminAllowed: allowed,
		peer:         newWSPeer(id, conn, h.opts.SendQueue, h.opts.WriteTimeout, logger),
		logger:       logger,
	}

	if !h.track(c.peer) {
		c.peer.close()
		c.peer.wait()
		return
	}
	defer h.conns.Done()
	defer h.untrack(id)

	if err := h.hub.Connect(c.peer); err != nil {
		logger.Error("failed to track connection", "error", err)
		c.peer.close()
		c.peer.wait()
		return
	}
	logger.Debug("websocket connected", "remote", conn.Request().RemoteAddr)

	defer func() {
		h.hub.Disconnect(id)
		c.peer.close()
		c.peer.wait()
		logger.Debug("websocket disconnected")
	}()

	h.readLoop(ctx, conn, c)
}

func (h *Handler) track(p *wsPeer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.live[p.id] = p
	h.conns.Add(1)
	return true
}

func (h *Handler) untrack(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.live, id)
}

// Close refuses new sockets and closes every live one. Read loops then run
// their normal disconnect path.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	peers := make([]*wsPeer, 0, len(h.live))
	for _, p := range h.live {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	if len(peers) > 0 {
		h.logger.Info("closed websocket connections", "count", len(peers))
	}
}

// Wait blocks until every connection accepted before Close has finished its
// disconnect path, or ctx ends. Call it after Close.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for websocket connections: %w", ctx.Err())
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, c *connection) {
	limiter := rate.NewLimiter(rate.Limit(h.opts.FramesPerSecond), h.opts.Burst)
	decodeErrors := 0

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				h.metrics.FrameRejected()
				c.logger.Warn("dropping oversized frame", "limit", h.opts.MaxFrameBytes)
				continue
			}
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			h.metrics.FrameRejected()
			decodeErrors++
			c.logger.Debug("undecodable frame", "consecutive", decodeErrors)
			if decodeErrors >= maxDecodeErrorsPerConn {
				c.logger.Warn("closing connection after repeated undecodable frames")
				return
			}
			continue
		}
		decodeErrors = 0

		if !limiter.Allow() {
			h.metrics.FrameRejected()
			c.logger.Debug("rate limited frame", "event", frame.Type)
			continue
		}

		h.dispatch(ctx, c, frame)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *connection, frame inboundFrame) {
	var err error

	switch frame.Type {
	case relay.EventRegisterAdmin:
		if !c.adminAllowed {
			h.hub.RejectRegistration(c.id, ErrAdminAuthRequired)
			return
		}
		err = h.hub.RegisterAdmin(ctx, c.id)

	case relay.EventRegisterVisitor:
		var p registerVisitorPayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.Name == nil {
			h.malformed(c, frame)
			return
		}
		err = h.hub.RegisterVisitor(ctx, c.id, *p.Name, p.VisitorID)

	case relay.EventVisitorMessage:
		var p visitorMessagePayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.Message == nil {
			h.malformed(c, frame)
			return
		}
		err = h.hub.VisitorMessage(ctx, c.id, *p.Message)

	case relay.EventAdminMessage:
		var p adminMessagePayload
		if json.Unmarshal(frame.Payload, &p) != nil || p.To == nil || p.Message == nil {
			h.malformed(c, frame)
			return
		}
		err = h.hub.AdminMessage(ctx, c.id, *p.To, *p.Message)

	case relay.EventGetChatHistory:
		var key string
		if json.Unmarshal(frame.Payload, &key) != nil {
			h.malformed(c, frame)
			return
		}
		err = h.hub.GetChatHistory(ctx, c.id, key)

	default:
		h.malformed(c, frame)
		return
	}

	if err != nil {
		c.logger.Debug("event not applied", "event", frame.Type, "error", err)
	}
}

func (h *Handler) malformed(c *connection, frame inboundFrame) {
	h.metrics.FrameRejected()
	c.logger.Debug("dropping malformed event", "event", frame.Type)
}
