// Package presence tracks who is connected to the relay and in which role.
//
// A connection is either a visitor (shown on the roster with a display name
// and conversation key) or an admin (a member of the admin set), never both.
// The Registry is the only owner of this state; callers receive copies.
package presence
