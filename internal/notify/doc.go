// Package notify tells operators about new visitor messages.
//
// The relay hands every visitor message to a Sink, which runs the configured
// Notifier on its own goroutines. Delivery is best effort: failures, timeouts
// and overload are logged and counted but never reach the caller.
//
//   - SMTPNotifier: plain-text email through an SMTP server
//   - LogNotifier: writes the notification to the log (mail disabled)
package notify
