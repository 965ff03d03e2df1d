// Package dedupe coalesces repeated keys inside a sliding time window.
//
// The notification sink uses a Window so a burst of visitor messages in one
// conversation produces a single outbound email instead of one per line.
package dedupe
