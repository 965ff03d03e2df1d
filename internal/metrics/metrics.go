// ABOUTME: Prometheus collectors for relay traffic, persistence, and notifications
// ABOUTME: All recording methods are nil-safe so components work without metrics

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coven_relay"

// Message directions
const (
	DirectionVisitor = "visitor"
	DirectionAdmin   = "admin"
)

// Notification outcomes
const (
	NotifySent      = "sent"
	NotifyFailed    = "failed"
	NotifyCoalesced = "coalesced"
	NotifyRejected  = "rejected"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	messages        *prometheus.CounterVec
	persistFailures prometheus.Counter
	framesDropped   *prometheus.CounterVec
	badFrames       prometheus.Counter
	notifications   *prometheus.CounterVec
	rosterPushes    prometheus.Counter
	contacts        prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Chat messages accepted by the router, by sender role.",
		}, []string{"direction"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_failures_total",
			Help:      "History appends whose durable write failed.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped because a peer queue was full or closed.",
		}, []string{"event"}),
		badFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_frames_rejected_total",
			Help:      "Inbound frames that could not be decoded or were rate limited.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Visitor message notifications, by outcome.",
		}, []string{"result"}),
		rosterPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_pushes_total",
			Help:      "updateUserList frames sent to admins.",
		}),
		contacts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_submissions_total",
			Help:      "Contact form submissions stored.",
		}),
	}

	reg.MustRegister(
		m.messages,
		m.persistFailures,
		m.framesDropped,
		m.badFrames,
		m.notifications,
		m.rosterPushes,
		m.contacts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterPresence exposes live connection counts sampled at scrape time.
func (m *Metrics) RegisterPresence(visitors, admins func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "visitors_connected",
			Help:      "Visitor connections currently registered.",
		}, func() float64 { return float64(visitors()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admins_connected",
			Help:      "Admin connections currently registered.",
		}, func() float64 { return float64(admins()) }),
	)
}

func (m *Metrics) MessageRouted(direction string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction).Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) FrameDropped(event string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(event).Inc()
}

func (m *Metrics) FrameRejected() {
	if m == nil {
		return
	}
	m.badFrames.Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) RosterPushed() {
	if m == nil {
		return
	}
	m.rosterPushes.Inc()
}

func (m *Metrics) ContactStored() {
	if m == nil {
		return
	}
	m.contacts.Inc()
}
