// Package transport serves the relay WebSocket endpoint.
//
// Every accepted socket gets a fresh connection ID and a queued writer. Frames
// are JSON objects of the form {"type": ..., "payload": ...}; undecodable,
// oversized, unknown, or rate-limited frames are dropped, and a run of
// undecodable frames closes the socket.
package transport
