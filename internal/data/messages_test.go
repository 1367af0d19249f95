package data

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMongoChatStore(t *testing.T) {
	testChatStore(t, func(t *testing.T) ChatStore {
		c := setupDB(t)
		return NewMongoChatStore(c.ChatsCollection(), c.MessagesCollection())
	})
}

func TestMongoAppendKeepsMessageWhenPreviewFails(t *testing.T) {
	c := setupDB(t)
	s := NewMongoChatStore(c.ChatsCollection(), c.MessagesCollection())
	ctx := context.Background()

	chat, _, err := s.FindOrCreateChat(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("FindOrCreateChat failed: %v", err)
	}

	// reject any chat document carrying a preview
	chats := c.ChatsCollection()
	cmd := bson.D{
		{Key: "collMod", Value: chats.Name()},
		{Key: "validator", Value: bson.M{"last_message": bson.M{"$exists": false}}},
	}
	if err := chats.Database().RunCommand(ctx, cmd).Err(); err != nil {
		t.Fatalf("collMod failed: %v", err)
	}

	msg, err := s.AppendMessage(ctx, chat.ID.Hex(), "alice", "hello")
	if err != nil {
		t.Fatalf("AppendMessage returned error after storing: %v", err)
	}
	if msg.ID.IsZero() {
		t.Fatal("expected stored message id")
	}

	history, err := s.ListMessages(ctx, chat.ID.Hex())
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("expected exactly the appended message, got %d messages", len(history))
	}
}

func TestMongoLeaveRemovesMessagesWithChat(t *testing.T) {
	c := setupDB(t)
	s := NewMongoChatStore(c.ChatsCollection(), c.MessagesCollection())
	ctx := context.Background()

	chat, _, err := s.FindOrCreateChat(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("FindOrCreateChat failed: %v", err)
	}
	id := chat.ID.Hex()
	if _, err := s.AppendMessage(ctx, id, "alice", "hi"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if _, err := s.Leave(ctx, id, "alice"); err != nil {
		t.Fatalf("first Leave failed: %v", err)
	}
	res, err := s.Leave(ctx, id, "bob")
	if err != nil {
		t.Fatalf("second Leave failed: %v", err)
	}
	if !res.Deleted {
		t.Fatal("expected chat to be deleted")
	}

	n, err := c.MessagesCollection().CountDocuments(ctx, bson.M{"chat_id": chat.ID})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no orphaned messages, found %d", n)
	}
	n, err = c.ChatsCollection().CountDocuments(ctx, bson.M{"_id": chat.ID})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 0 {
		t.Fatal("expected chat document to be gone")
	}
}
