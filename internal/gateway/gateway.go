// ABOUTME: Gateway orchestrator that wires the relay components into one HTTP server
// ABOUTME: Owns startup, the route table, health checks, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/coven-relay/internal/auth"
	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/contact"
	"github.com/2389/coven-relay/internal/metrics"
	"github.com/2389/coven-relay/internal/notify"
	"github.com/2389/coven-relay/internal/relay"
	"github.com/2389/coven-relay/internal/store"
	"github.com/2389/coven-relay/internal/transport"
)

// Gateway orchestrates the coven-relay server components.
type Gateway struct {
	config     *config.Config
	history    store.HistoryStore
	metrics    *metrics.Metrics
	sink       *notify.Sink
	hub        *relay.Hub
	ws         *transport.Handler
	authSvc    *auth.Service
	contacts   *contact.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// initNotifier picks SMTP delivery when configured and log-only delivery otherwise.
func initNotifier(cfg config.NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	if !cfg.Enabled {
		return notify.NewLogNotifier(logger), nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		To:       cfg.To,
	})
	if err != nil {
		return nil, fmt.Errorf("creating SMTP notifier: %w", err)
	}
	return n, nil
}

// initAuth builds the admin login service, or returns nil when admin auth is off.
func initAuth(cfg config.AuthConfig, logger *slog.Logger) (*auth.Service, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	creds, err := auth.NewCredentials(cfg.AdminUsername, cfg.AdminPasswordHash)
	if err != nil {
		return nil, fmt.Errorf("loading admin credentials: %w", err)
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}
	return auth.NewService(creds, verifier, cfg.TokenTTL, cfg.SecureCookie, logger), nil
}

// New creates a Gateway from cfg. History is loaded here; nothing listens
// until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	history, err := store.Open(cfg.History.Backend, cfg.History.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	gw, err := build(cfg, history, logger)
	if err != nil {
		_ = history.Close()
		return nil, err
	}
	return gw, nil
}

func build(cfg *config.Config, history store.HistoryStore, logger *slog.Logger) (*Gateway, error) {
	m := metrics.New()

	notifier, err := initNotifier(cfg.Notify, logger)
	if err != nil {
		return nil, err
	}

	authSvc, err := initAuth(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	contactLog, err := contact.NewLog(cfg.Contact.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening contact log: %w", err)
	}

	sink := notify.NewSink(notifier, notify.SinkOptions{
		MaxInFlight:    cfg.Notify.MaxInFlight,
		Backlog:        cfg.Notify.Backlog,
		Timeout:        cfg.Notify.Timeout,
		CoalesceWindow: cfg.Notify.CoalesceWindow,
	}, m, logger)

	hub := relay.NewHub(history, sink, m, logger)

	var authn transport.AdminAuthenticator
	if authSvc != nil {
		authn = authSvc
	}
	ws := transport.NewHandler(hub, authn, transport.Options{
		FramesPerSecond: cfg.Limits.FramesPerSecond,
		Burst:           cfg.Limits.Burst,
		MaxFrameBytes:   cfg.Limits.MaxFrameBytes,
		SendQueue:       cfg.Limits.SendQueue,
	}, m, logger)

	gw := &Gateway{
		config:   cfg,
		history:  history,
		metrics:  m,
		sink:     sink,
		hub:      hub,
		ws:       ws,
		authSvc:  authSvc,
		contacts: contact.NewHandler(contactLog, m, logger),
		logger:   logger.With("component", "gateway"),
	}

	if authSvc == nil {
		gw.logger.Warn("admin authentication disabled: any connection may register as admin and /admin/contacts is open")
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return gw, nil
}

// routes builds the HTTP route table.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/ws", g.ws)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/contact", g.contacts.HandleSubmit)

	listContacts := http.Handler(http.HandlerFunc(g.contacts.HandleList))
	if g.authSvc != nil {
		mux.HandleFunc("/admin/login", g.authSvc.HandleLogin)
		mux.HandleFunc("/admin/logout", g.authSvc.HandleLogout)
		listContacts = g.authSvc.RequireAdmin(listContacts)
	}
	mux.Handle("/admin/contacts", listContacts)

	if g.config.Metrics.Enabled {
		mux.Handle(g.config.Metrics.Path, g.metrics.Handler())
	}

	return mux
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Hub returns the relay hub.
func (g *Gateway) Hub() *relay.Hub {
	return g.hub
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until the context is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context because the caller's is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.shutdownTimeout())
	defer cancel()
	return g.Shutdown(ctx)
}

func (g *Gateway) shutdownTimeout() time.Duration {
	if g.config.Server.ShutdownTimeout > 0 {
		return g.config.Server.ShutdownTimeout
	}
	return 5 * time.Second
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, closes live sockets and waits for their
// disconnect paths to finish. Pending notifications drain before the history
// store closes.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down relay")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Hijacked websocket connections are not covered by http.Server.Shutdown
	g.ws.Close()
	errs = appendCloseError(errs, "websocket drain", g.ws.Wait(ctx))

	errs = appendCloseError(errs, "notification drain", g.sink.Close(ctx))
	errs = appendCloseError(errs, "history close", g.history.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the history store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	keys, err := g.history.Keys(r.Context())
	if err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("history store unavailable"))
		return
	}

	stats := g.hub.Stats()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d visitors, %d admins, %d conversations)", stats.Visitors, stats.Admins, len(keys))
}
