package data

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/realtime-chat/internal/normalize"
)

// AppendMessage inserts a message document and refreshes the chat preview.
func (s *MongoChatStore) AppendMessage(ctx context.Context, chatID, sender, text string) (*Message, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	text = normalize.Text(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	sender = normalize.Username(sender)

	unlock := s.chatLocks.Lock(id.Hex())
	defer unlock()

	// existence check under the chat lock: a concurrent Leave cannot delete
	// the chat between here and the insert
	if _, err := s.findChat(ctx, id); err != nil {
		return nil, err
	}

	msg := &Message{
		ChatID:    id,
		Sender:    sender,
		Text:      text,
		CreatedAt: storeNow(),
		ReadBy:    []string{sender},
	}
	res, err := s.messages.InsertOne(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	msg.ID = res.InsertedID.(bson.ObjectID)

	preview := bson.M{"$set": bson.M{"last_message": msg, "last_activity_at": msg.CreatedAt}}
	if _, err := s.chats.UpdateOne(ctx, bson.M{"_id": id}, preview); err != nil {
		// the message is already stored; a stale preview is not an error
		zerolog.Ctx(ctx).Warn().Err(err).Str("chat_id", chatID).Msg("update chat preview")
	}
	return msg, nil
}

// ListMessages returns the chat history, oldest first.
func (s *MongoChatStore) ListMessages(ctx context.Context, chatID string) ([]*Message, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	if _, err := s.findChat(ctx, id); err != nil {
		return nil, err
	}

	// _id breaks ties between messages stored within the same millisecond
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.messages.Find(ctx, bson.M{"chat_id": id}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

// MarkRead adds user to read_by of every message in the chat that lacks it.
func (s *MongoChatStore) MarkRead(ctx context.Context, chatID, user string) (int64, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	user = normalize.Username(user)

	unlock := s.chatLocks.Lock(id.Hex())
	defer unlock()

	if _, err := s.findChat(ctx, id); err != nil {
		return 0, err
	}

	// $addToSet keeps read_by a set; $ne skips messages already read
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"chat_id": id, "read_by": bson.M{"$ne": user}},
		bson.M{"$addToSet": bson.M{"read_by": user}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}

	if res.ModifiedCount > 0 {
		_, err = s.chats.UpdateOne(ctx,
			bson.M{"_id": id, "last_message": bson.M{"$exists": true}},
			bson.M{"$addToSet": bson.M{"last_message.read_by": user}},
		)
		if err != nil {
			return 0, fmt.Errorf("update chat preview read state: %w", err)
		}
	}
	return res.ModifiedCount, nil
}
