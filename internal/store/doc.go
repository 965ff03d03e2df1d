// Package store provides durable conversation history for the relay.
//
// # Architecture
//
// History is a single document mapping conversation keys to ordered
// message logs. The whole document is held in memory and rewritten after
// every append, so what is on disk always matches a state the relay
// actually reached.
//
//   - HistoryStore: the interface the relay depends on
//   - FileStore: pretty-printed JSON file, replaced atomically per write
//   - SQLiteStore: the same JSON document kept in a one-row SQLite table
//   - MockStore: in-memory implementation for tests
//
// Open selects a backend by name ("file" or "sqlite").
//
// # Document Format
//
// The persisted form is a JSON object keyed by conversation key:
//
//	{
//	  "visitor-42": [
//	    {"sender": "Sam", "message": "hello", "time": "3:04:05 PM", "sentAt": "..."},
//	    {"sender": "Admin", "message": "hi", "time": "3:04:09 PM", "sentAt": "..."}
//	  ]
//	}
//
// A missing document loads as empty history. A document that fails to parse
// is logged and treated as empty; FileStore first moves the bad file aside.
//
// # Failure Semantics
//
// Writes are serialized by one mutex per store. When a write fails the
// in-memory append is kept, the error is logged, and Append returns it so
// the caller can count the failure. The next successful write persists the
// full document again, including the message whose write failed.
//
// # Thread Safety
//
// All HistoryStore implementations are safe for concurrent use.
package store
