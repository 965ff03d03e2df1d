// ABOUTME: Tests for relay Prometheus metrics
// ABOUTME: Verifies counters, presence gauges, the HTTP handler, and nil safety

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()

	m.MessageRouted(DirectionVisitor)
	m.MessageRouted(DirectionVisitor)
	m.MessageRouted(DirectionAdmin)
	m.PersistFailed()
	m.Notification(NotifySent)
	m.FrameDropped("updateUserList")

	body := scrape(t, m)
	assert.Contains(t, body, `coven_relay_messages_routed_total{direction="visitor"} 2`)
	assert.Contains(t, body, `coven_relay_messages_routed_total{direction="admin"} 1`)
	assert.Contains(t, body, "coven_relay_history_write_failures_total 1")
	assert.Contains(t, body, `coven_relay_notifications_total{result="sent"} 1`)
	assert.Contains(t, body, `coven_relay_frames_dropped_total{event="updateUserList"} 1`)
}

func TestHandler_ExposesPresenceGauges(t *testing.T) {
	m := New()
	m.RegisterPresence(func() int { return 3 }, func() int { return 1 })

	body := scrape(t, m)
	assert.True(t, strings.Contains(body, "coven_relay_visitors_connected 3"), body)
	assert.True(t, strings.Contains(body, "coven_relay_admins_connected 1"), body)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.MessageRouted(DirectionVisitor)
		m.PersistFailed()
		m.FrameDropped("x")
		m.FrameRejected()
		m.Notification(NotifyFailed)
		m.RosterPushed()
		m.ContactStored()
		m.RegisterPresence(func() int { return 0 }, func() int { return 0 })
		_ = m.Registry()
	})
}
