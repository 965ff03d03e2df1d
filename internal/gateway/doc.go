// Package gateway orchestrates the coven-relay server components.
//
// # Overview
//
// New opens the history store and builds, in order: metrics, the
// notification sink, the relay hub, the optional admin auth service, the
// contact log, and the WebSocket transport. All of them are served from one
// http.Server.
//
// # Routes
//
//	GET  /ws              WebSocket relay endpoint
//	GET  /health          liveness, always 200
//	GET  /health/ready    200 when the history store answers
//	POST /contact         contact form submission
//	GET  /admin/contacts  stored submissions (admin token required when auth is on)
//	POST /admin/login     issue an admin token cookie (auth only)
//	POST /admin/logout    clear the admin token cookie (auth only)
//	GET  /metrics         Prometheus metrics (when enabled)
//
// # Shutdown
//
// Shutdown stops the HTTP server and closes every live WebSocket. It waits
// for each connection to finish its disconnect path, then drains in-flight
// notifications. The history store is closed last.
package gateway
