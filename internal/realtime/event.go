package realtime

import (
	"github.com/PaulBabatuyi/realtime-chat/internal/data"
)

// Frame and event types.
const (
	TypeAuth            = "auth"
	TypeMessage         = "message"
	TypeTyping          = "typing"
	TypeStopTyping      = "stop-typing"
	TypeRead            = "read"
	TypeChatStarted     = "chat-started"
	TypeParticipantLeft = "participant-left"
	TypeChatDeleted     = "chat-deleted"
)

// Event is a server-originated frame. Fields not relevant to Type are omitted
// on the wire.
type Event struct {
	Type      string `json:"type"`
	ChatID    string `json:"chatId,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"messageId,omitempty"`

	// Message carries the stored message for API-originated message events.
	Message *data.Message `json:"message,omitempty"`
	// Chat carries membership for chat-started and participant-left.
	Chat *data.ChatSummary `json:"chat,omitempty"`
	// User is the participant who left.
	User string `json:"user,omitempty"`
	// Reader and Count describe a mark-as-read.
	Reader string `json:"reader,omitempty"`
	Count  int64  `json:"count,omitempty"`
}

// inbound is a client frame.
type inbound struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	ChatID    string `json:"chatId"`
	Text      string `json:"text"`
	MessageID string `json:"messageId"`
}

// relayable reports whether an open connection may send frames of type t.
func relayable(t string) bool {
	switch t {
	case TypeMessage, TypeTyping, TypeStopTyping, TypeRead:
		return true
	}
	return false
}
