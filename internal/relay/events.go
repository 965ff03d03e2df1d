// ABOUTME: Event names and payload shapes exchanged between peers and the relay
// ABOUTME: Outbound frames are built here so every component emits the same wire format

package relay

import (
	"regexp"

	"github.com/2389/coven-relay/internal/presence"
	"github.com/2389/coven-relay/internal/store"
)

// Inbound event names.
const (
	EventRegisterAdmin   = "registerAdmin"
	EventRegisterVisitor = "registerVisitor"
	EventVisitorMessage  = "visitorMessage"
	EventAdminMessage    = "adminMessage"
	EventGetChatHistory  = "getChatHistory"
)

// Outbound event names.
const (
	EventUpdateUserList        = "updateUserList"
	EventAdminReceiveMessage   = "adminReceiveMessage"
	EventVisitorReceiveMessage = "visitorReceiveMessage"
	EventChatHistoryData       = "chatHistoryData"
	EventRegistrationError     = "registrationError"
)

// Frame is one outbound event.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// AdminReceiveMessage is delivered to admins for every visitor message.
type AdminReceiveMessage struct {
	From    string `json:"from"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// VisitorReceiveMessage is delivered to a visitor for an admin reply.
type VisitorReceiveMessage struct {
	Message string `json:"message"`
}

// RegistrationError tells a peer its registration was refused.
type RegistrationError struct {
	Error string `json:"error"`
}

func rosterFrame(roster []presence.VisitorSession) Frame {
	if roster == nil {
		roster = []presence.VisitorSession{}
	}
	return Frame{Type: EventUpdateUserList, Payload: roster}
}

func historyFrame(log []store.Message) Frame {
	if log == nil {
		log = []store.Message{}
	}
	return Frame{Type: EventChatHistoryData, Payload: log}
}

func registrationErrorFrame(reason string) Frame {
	return Frame{Type: EventRegistrationError, Payload: RegistrationError{Error: reason}}
}

var visitorIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidVisitorID reports whether id can serve as a durable conversation key.
func ValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}
