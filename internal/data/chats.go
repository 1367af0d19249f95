package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/realtime-chat/internal/keylock"
	"github.com/PaulBabatuyi/realtime-chat/internal/normalize"
)

// MongoChatStore implements ChatStore on the chats and messages collections.
//
// Mutations on one chat are serialized in-process by a lock keyed by chat id,
// and chat creation by a lock keyed by the participant pair. The sparse unique
// index on pair_key enforces the one-chat-per-pair rule at the storage layer
// as well.
type MongoChatStore struct {
	chats    *mongo.Collection
	messages *mongo.Collection

	chatLocks keylock.Map
	pairLocks keylock.Map
}

var _ ChatStore = (*MongoChatStore)(nil)

// NewMongoChatStore returns a MongoChatStore using the given collections.
func NewMongoChatStore(chats, messages *mongo.Collection) *MongoChatStore {
	return &MongoChatStore{chats: chats, messages: messages}
}

// BSON timestamps have millisecond precision; truncating up front keeps the
// values we return identical to what is read back later.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *MongoChatStore) FindOrCreateChat(ctx context.Context, userA, userB string) (*Chat, bool, error) {
	a, b, err := validatePair(userA, userB)
	if err != nil {
		return nil, false, err
	}
	key := PairKey(a, b)

	unlock := s.pairLocks.Lock(key)
	defer unlock()

	now := storeNow()
	newID := bson.NewObjectID()

	// upsert: only inserts when no chat currently holds the pair key
	update := bson.M{"$setOnInsert": bson.M{
		"_id":               newID,
		"participants":      []string{a, b},
		"all_participants":  []string{a, b},
		"left_participants": []string{},
		"created_at":        now,
		"last_activity_at":  now,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var chat Chat
	err = s.chats.FindOneAndUpdate(ctx, bson.M{"pair_key": key}, update, opts).Decode(&chat)
	if err != nil {
		// another process inserted the same pair between our lookup and insert
		if mongo.IsDuplicateKeyError(err) {
			if err := s.chats.FindOne(ctx, bson.M{"pair_key": key}).Decode(&chat); err != nil {
				return nil, false, fmt.Errorf("find chat after upsert race: %w", err)
			}
			return &chat, false, nil
		}
		return nil, false, fmt.Errorf("find or create chat: %w", err)
	}

	return &chat, chat.ID == newID, nil
}

func (s *MongoChatStore) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	return s.findChat(ctx, id)
}

func (s *MongoChatStore) findChat(ctx context.Context, id bson.ObjectID) (*Chat, error) {
	var chat Chat
	if err := s.chats.FindOne(ctx, bson.M{"_id": id}).Decode(&chat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("chat %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("load chat %s: %w", id.Hex(), err)
	}
	return &chat, nil
}

func (s *MongoChatStore) ListActiveChatsFor(ctx context.Context, user string) ([]*ChatSummary, error) {
	// last_activity_at is the creation time until the first message lands
	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.chats.Find(ctx, bson.M{"participants": normalize.Username(user)}, opts)
	if err != nil {
		return nil, fmt.Errorf("list active chats: %w", err)
	}
	defer cursor.Close(ctx)

	var chats []*Chat
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("decode active chats: %w", err)
	}

	out := lo.Map(chats, func(c *Chat, _ int) *ChatSummary { return c.Summary() })
	return out, nil
}

func (s *MongoChatStore) Leave(ctx context.Context, chatID, user string) (*LeaveResult, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	user = normalize.Username(user)

	unlock := s.chatLocks.Lock(id.Hex())
	defer unlock()

	chat, err := s.findChat(ctx, id)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(user) {
		return &LeaveResult{Chat: chat}, nil
	}

	chat.Participants = lo.Without(chat.Participants, user)
	chat.LeftParticipants = lo.Uniq(append(chat.LeftParticipants, user))
	chat.AllParticipants = lo.Uniq(append(chat.AllParticipants, user))
	chat.PairKey = ""

	if len(chat.Participants) == 0 {
		// messages first: a failure leaves the chat in place to retry the leave
		if _, err := s.messages.DeleteMany(ctx, bson.M{"chat_id": id}); err != nil {
			return nil, fmt.Errorf("delete messages of chat %s: %w", chatID, err)
		}
		if _, err := s.chats.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return nil, fmt.Errorf("delete chat %s: %w", chatID, err)
		}
		return &LeaveResult{Chat: chat, Deleted: true, Changed: true}, nil
	}

	note := departureNote(id, user, storeNow())
	res, err := s.messages.InsertOne(ctx, note)
	if err != nil {
		return nil, fmt.Errorf("insert departure note: %w", err)
	}
	note.ID = res.InsertedID.(bson.ObjectID)

	update := bson.M{
		"$set": bson.M{
			"participants":      chat.Participants,
			"left_participants": chat.LeftParticipants,
			"all_participants":  chat.AllParticipants,
			"last_message":      note,
			"last_activity_at":  note.CreatedAt,
		},
		// frees the pair so the two users can start a fresh chat later
		"$unset": bson.M{"pair_key": ""},
	}
	if _, err := s.chats.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return nil, fmt.Errorf("update chat %s: %w", chatID, err)
	}

	chat.LastMessage = note
	chat.LastActivityAt = note.CreatedAt
	return &LeaveResult{Chat: chat, SystemMessage: note, Changed: true}, nil
}
