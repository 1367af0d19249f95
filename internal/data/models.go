package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// SystemSender is the author recorded on messages the service writes itself.
const SystemSender = "System"

// User maps to users collection (id, username, password hash, timestamps)
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	Username  string        `bson:"username" json:"username"`
	Password  string        `bson:"password" json:"-"`
	CreatedAt time.Time     `bson:"created_at" json:"-"`
	UpdatedAt time.Time     `bson:"updated_at" json:"-"`
}

// Chat maps to chats collection. Participants are the active members,
// AllParticipants everyone who ever took part and LeftParticipants those who
// left. PairKey is only set while the original pair are both active and backs
// the one-chat-per-pair guarantee.
type Chat struct {
	ID               bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Participants     []string      `bson:"participants" json:"participants"`
	AllParticipants  []string      `bson:"all_participants" json:"allParticipants"`
	LeftParticipants []string      `bson:"left_participants" json:"leftParticipants"`
	PairKey          string        `bson:"pair_key,omitempty" json:"-"`
	LastMessage      *Message      `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	CreatedAt        time.Time     `bson:"created_at" json:"createdAt"`
	LastActivityAt   time.Time     `bson:"last_activity_at" json:"lastActivityAt"`
}

// HasParticipant reports whether user is an active member of the chat.
func (c *Chat) HasParticipant(user string) bool {
	return contains(c.Participants, user)
}

// HasEverParticipated reports whether user was ever a member of the chat.
func (c *Chat) HasEverParticipated(user string) bool {
	return contains(c.AllParticipants, user)
}

// Message maps to messages collection (chat, sender, text, read receipts)
type Message struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID    bson.ObjectID `bson:"chat_id" json:"chatId"`
	Sender    string        `bson:"sender" json:"sender"`
	Text      string        `bson:"text" json:"text"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
	ReadBy    []string      `bson:"read_by" json:"readBy"`
}

// ChatSummary is the preview returned by active chat listings: membership
// plus only the latest message.
type ChatSummary struct {
	ID               string    `json:"id"`
	Participants     []string  `json:"participants"`
	AllParticipants  []string  `json:"allParticipants"`
	LeftParticipants []string  `json:"leftParticipants"`
	LastMessage      *Message  `json:"lastMessage,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
}

// LeaveResult describes the outcome of a Leave call.
type LeaveResult struct {
	// Chat is the state after the call; for deleted chats it is the last
	// state before deletion.
	Chat *Chat
	// SystemMessage is the departure note, nil when nothing changed or the
	// chat was deleted.
	SystemMessage *Message
	// Deleted is set when the leaver was the last active participant.
	Deleted bool
	// Changed is false when the user was not an active participant.
	Changed bool
}

// Summary returns the listing view of the chat.
func (c *Chat) Summary() *ChatSummary {
	return &ChatSummary{
		ID:               c.ID.Hex(),
		Participants:     c.Participants,
		AllParticipants:  c.AllParticipants,
		LeftParticipants: c.LeftParticipants,
		LastMessage:      c.LastMessage,
		CreatedAt:        c.CreatedAt,
		LastActivityAt:   c.LastActivityAt,
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
