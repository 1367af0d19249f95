package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/realtime-chat/internal/normalize"
)

// MemoryChatStore is an in-process ChatStore. A single RWMutex serializes all
// mutations, so operations on different chats do not proceed independently as
// they do in MongoChatStore. That is accepted for simplicity: the store backs
// STORE_DRIVER=memory for local development and the handler tests.
type MemoryChatStore struct {
	mu       sync.RWMutex
	chats    map[bson.ObjectID]*Chat
	messages map[bson.ObjectID][]*Message
	now      func() time.Time
}

var _ ChatStore = (*MemoryChatStore)(nil)

// MemoryOption configures a MemoryChatStore.
type MemoryOption func(*MemoryChatStore)

// WithClock overrides the time source, mainly for deterministic ordering in tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryChatStore) { s.now = now }
}

// NewMemoryChatStore returns an empty store.
func NewMemoryChatStore(opts ...MemoryOption) *MemoryChatStore {
	s := &MemoryChatStore{
		chats:    make(map[bson.ObjectID]*Chat),
		messages: make(map[bson.ObjectID][]*Message),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryChatStore) FindOrCreateChat(_ context.Context, userA, userB string) (*Chat, bool, error) {
	a, b, err := validatePair(userA, userB)
	if err != nil {
		return nil, false, err
	}
	key := PairKey(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.chats {
		if c.PairKey == key {
			return cloneChat(c), false, nil
		}
	}

	now := s.now()
	c := &Chat{
		ID:               bson.NewObjectID(),
		Participants:     []string{a, b},
		AllParticipants:  []string{a, b},
		LeftParticipants: []string{},
		PairKey:          key,
		CreatedAt:        now,
		LastActivityAt:   now,
	}
	s.chats[c.ID] = c
	return cloneChat(c), true, nil
}

func (s *MemoryChatStore) GetChat(_ context.Context, chatID string) (*Chat, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}
	return cloneChat(c), nil
}

func (s *MemoryChatStore) AppendMessage(_ context.Context, chatID, sender, text string) (*Message, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	text = normalize.Text(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	sender = normalize.Username(sender)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}

	msg := &Message{
		ID:        bson.NewObjectID(),
		ChatID:    id,
		Sender:    sender,
		Text:      text,
		CreatedAt: s.now(),
		ReadBy:    []string{sender},
	}
	s.appendLocked(c, msg)
	return cloneMessage(msg), nil
}

func (s *MemoryChatStore) ListMessages(_ context.Context, chatID string) ([]*Message, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[id]; !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}
	return lo.Map(s.messages[id], func(m *Message, _ int) *Message { return cloneMessage(m) }), nil
}

func (s *MemoryChatStore) ListActiveChatsFor(_ context.Context, user string) ([]*ChatSummary, error) {
	user = normalize.Username(user)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ChatSummary, 0)
	for _, c := range s.chats {
		if lo.Contains(c.Participants, user) {
			out = append(out, cloneChat(c).Summary())
		}
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryChatStore) Leave(_ context.Context, chatID, user string) (*LeaveResult, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	user = normalize.Username(user)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}
	if !lo.Contains(c.Participants, user) {
		return &LeaveResult{Chat: cloneChat(c)}, nil
	}

	c.Participants = lo.Without(c.Participants, user)
	if !lo.Contains(c.LeftParticipants, user) {
		c.LeftParticipants = append(c.LeftParticipants, user)
	}
	if !lo.Contains(c.AllParticipants, user) {
		c.AllParticipants = append(c.AllParticipants, user)
	}
	c.PairKey = ""

	if len(c.Participants) == 0 {
		delete(s.chats, id)
		delete(s.messages, id)
		return &LeaveResult{Chat: cloneChat(c), Deleted: true, Changed: true}, nil
	}

	note := departureNote(id, user, s.now())
	note.ID = bson.NewObjectID()
	s.appendLocked(c, note)
	return &LeaveResult{Chat: cloneChat(c), SystemMessage: cloneMessage(note), Changed: true}, nil
}

func (s *MemoryChatStore) MarkRead(_ context.Context, chatID, user string) (int64, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	user = normalize.Username(user)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[id]
	if !ok {
		return 0, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}

	var changed int64
	for _, m := range s.messages[id] {
		if !lo.Contains(m.ReadBy, user) {
			m.ReadBy = append(m.ReadBy, user)
			changed++
		}
	}
	if c.LastMessage != nil && !lo.Contains(c.LastMessage.ReadBy, user) {
		c.LastMessage.ReadBy = append(c.LastMessage.ReadBy, user)
	}
	return changed, nil
}

func (s *MemoryChatStore) appendLocked(c *Chat, msg *Message) {
	s.messages[c.ID] = append(s.messages[c.ID], msg)
	c.LastMessage = cloneMessage(msg)
	c.LastActivityAt = msg.CreatedAt
}

func cloneChat(c *Chat) *Chat {
	out := *c
	out.Participants = append([]string{}, c.Participants...)
	out.AllParticipants = append([]string{}, c.AllParticipants...)
	out.LeftParticipants = append([]string{}, c.LeftParticipants...)
	if c.LastMessage != nil {
		out.LastMessage = cloneMessage(c.LastMessage)
	}
	return &out
}

func cloneMessage(m *Message) *Message {
	out := *m
	out.ReadBy = append([]string{}, m.ReadBy...)
	return &out
}
