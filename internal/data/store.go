// Package data provides DB models and stores.
package data

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/realtime-chat/internal/normalize"
)

// ChatStore is the durable representation of chats, participants and
// messages. Implementations serialize mutations per chat id and
// FindOrCreateChat per unordered participant pair.
type ChatStore interface {
	// FindOrCreateChat returns the chat whose active participants are exactly
	// the pair, creating it when none exists. created reports a new chat.
	FindOrCreateChat(ctx context.Context, userA, userB string) (chat *Chat, created bool, err error)
	// GetChat returns the chat or ErrNotFound.
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	// AppendMessage stores a message with ReadBy = {sender}.
	AppendMessage(ctx context.Context, chatID, sender, text string) (*Message, error)
	// ListMessages returns the chat history in chronological order.
	ListMessages(ctx context.Context, chatID string) ([]*Message, error)
	// ListActiveChatsFor returns the chats user is active in, most recent first.
	ListActiveChatsFor(ctx context.Context, user string) ([]*ChatSummary, error)
	// Leave removes user from the active participants. The chat and its
	// messages are deleted when nobody remains.
	Leave(ctx context.Context, chatID, user string) (*LeaveResult, error)
	// MarkRead adds user to ReadBy of every message and reports how many
	// messages changed.
	MarkRead(ctx context.Context, chatID, user string) (int64, error)
}

// PairKey is the order-independent key of a two-user chat.
func PairKey(userA, userB string) string {
	pair := []string{normalize.Username(userA), normalize.Username(userB)}
	sort.Strings(pair)
	return strings.Join(pair, "\x00")
}

func validatePair(userA, userB string) (string, string, error) {
	a, b := normalize.Username(userA), normalize.Username(userB)
	if a == "" || b == "" {
		return "", "", fmt.Errorf("%w: both participants are required", ErrInvalidInput)
	}
	if a == b {
		return "", "", fmt.Errorf("%w: cannot start a chat with yourself", ErrInvalidInput)
	}
	return a, b, nil
}

// parseChatID maps malformed ids onto ErrNotFound: an id that cannot exist
// names an unknown chat.
func parseChatID(chatID string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(chatID)
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("chat %q: %w", chatID, ErrNotFound)
	}
	return id, nil
}

func departureNote(chatID bson.ObjectID, user string, at time.Time) *Message {
	return &Message{
		ChatID:    chatID,
		Sender:    SystemSender,
		Text:      fmt.Sprintf("%s has left the chat.", user),
		CreatedAt: at,
		ReadBy:    []string{},
	}
}

func sortSummaries(out []*ChatSummary) {
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
}
