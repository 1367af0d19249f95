package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// testChatStore runs the behaviour every ChatStore implementation shares.
func testChatStore(t *testing.T, newStore func(t *testing.T) ChatStore) {
	t.Run("FindOrCreateIsOrderIndependent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, created, err := s.FindOrCreateChat(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.True(t, created)
		assert.ElementsMatch(t, []string{"alice", "bob"}, first.Participants)
		assert.ElementsMatch(t, []string{"alice", "bob"}, first.AllParticipants)
		assert.Empty(t, first.LeftParticipants)

		again, created, err := s.FindOrCreateChat(ctx, " BOB ", "Alice")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("FindOrCreateRejectsBadPairs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, pair := range [][2]string{{"alice", "alice"}, {"alice", "ALICE "}, {"", "bob"}, {"alice", "  "}} {
			_, _, err := s.FindOrCreateChat(ctx, pair[0], pair[1])
			assert.ErrorIs(t, err, ErrInvalidInput, "pair %q", pair)
		}
	})

	t.Run("ConcurrentStartChatCreatesOne", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = make(map[bson.ObjectID]int)
			creates int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, b := "alice", "bob"
				if i%2 == 1 {
					a, b = b, a
				}
				chat, created, err := s.FindOrCreateChat(ctx, a, b)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[chat.ID]++
				if created {
					creates++
				}
			}(i)
		}
		wg.Wait()

		assert.Len(t, ids, 1)
		assert.Equal(t, 1, creates)
	})

	t.Run("UnknownChatIsNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{bson.NewObjectID().Hex(), "not-an-id", ""} {
			_, err := s.GetChat(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.AppendMessage(ctx, id, "alice", "hi")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.ListMessages(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.MarkRead(ctx, id, "alice")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Leave(ctx, id, "alice")
			assert.ErrorIs(t, err, ErrNotFound)
		}

		// nothing was written along the way
		chats, err := s.ListActiveChatsFor(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, chats)
	})

	t.Run("AppendAndList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		chat, _, err := s.FindOrCreateChat(ctx, "alice", "bob")
		require.NoError(t, err)
		id := chat.ID.Hex()

		_, err = s.AppendMessage(ctx, id, "alice", "   ")
		assert.ErrorIs(t, err, ErrInvalidInput)

		m1, err := s.AppendMessage(ctx, id, "Alice", "  hi bob ")
		require.NoError(t, err)
		assert.Equal(t, "alice", m1.Sender)
		assert.Equal(t, "hi bob", m1.Text)
		assert.Equal(t, []string{"alice"}, m1.ReadBy)
		assert.Equal(t, chat.ID, m1.ChatID)

		time.Sleep(2 * time.Millisecond)
		m2, err := s.AppendMessage(ctx, id, "bob", "hello alice")
		require.NoError(t, err)

		history, err := s.ListMessages(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, m1.ID, history[0].ID)
		assert.Equal(t, m2.ID, history[1].ID)

		got, err := s.GetChat(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.LastMessage)
		assert.Equal(t, m2.ID, got.LastMessage.ID)
	})

	t.Run("MarkReadIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		chat, _, err := s.FindOrCreateChat(ctx, "alice", "bob")
		require.NoError(t, err)
		id := chat.ID.Hex()

		for _, text := range []string{"one", "two", "three"} {
			_, err := s.AppendMessage(ctx, id, "alice", text)
			require.NoError(t, err)
		}

		n, err := s.MarkRead(ctx, id, "bob")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		n, err = s.MarkRead(ctx, id, "bob")
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		// the sender already read their own messages
		n, err = s.MarkRead(ctx, id, "alice")
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		history, err := s.ListMessages(ctx, id)
		require.NoError(t, err)
		for _, m := range history {
			assert.ElementsMatch(t, []string{"alice", "bob"}, m.ReadBy)
		}

		got, err := s.GetChat(ctx, id)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"alice", "bob"}, got.LastMessage.ReadBy)
	})

	t.Run("LeaveThenDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		chat, _, err := s.FindOrCreateChat(ctx, "alice", "bob")
		require.NoError(t, err)
		id := chat.ID.Hex()
		_, err = s.AppendMessage(ctx, id, "alice", "hi bob")
		require.NoError(t, err)

		res, err := s.Leave(ctx, id, "alice")
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.False(t, res.Deleted)
		require.NotNil(t, res.SystemMessage)
		assert.Equal(t, SystemSender, res.SystemMessage.Sender)
		assert.Equal(t, "alice has left the chat.", res.SystemMessage.Text)
		assert.Empty(t, res.SystemMessage.ReadBy)
		assert.Equal(t, []string{"bob"}, res.Chat.Participants)
		assert.Equal(t, []string{"alice"}, res.Chat.LeftParticipants)
		assert.ElementsMatch(t, []string{"alice", "bob"}, res.Chat.AllParticipants)

		history, err := s.ListMessages(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, SystemSender, history[1].Sender)

		bobChats, err := s.ListActiveChatsFor(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, bobChats, 1)
		assert.Equal(t, id, bobChats[0].ID)
		assert.Equal(t, "alice has left the chat.", bobChats[0].LastMessage.Text)

		aliceChats, err := s.ListActiveChatsFor(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, aliceChats)

		// leaving twice changes nothing
		res, err = s.Leave(ctx, id, "alice")
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.Nil(t, res.SystemMessage)
		history, err = s.ListMessages(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 2)

		res, err = s.Leave(ctx, id, "bob")
		require.NoError(t, err)
		assert.True(t, res.Deleted)
		assert.Nil(t, res.SystemMessage)

		_, err = s.GetChat(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.ListMessages(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("LeftPairCanStartAgain", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		old, _, err := s.FindOrCreateChat(ctx, "alice", "bob")
		require.NoError(t, err)
		_, err = s.Leave(ctx, old.ID.Hex(), "alice")
		require.NoError(t, err)

		fresh, created, err := s.FindOrCreateChat(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, old.ID, fresh.ID)

		// bob still sees the half-left chat as well
		bobChats, err := s.ListActiveChatsFor(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, bobChats, 2)
	})

	t.Run("ActiveChatsMostRecentFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		withBob, _, err := s.FindOrCreateChat(ctx, "alice", "bob")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		withCarol, _, err := s.FindOrCreateChat(ctx, "alice", "carol")
		require.NoError(t, err)

		chats, err := s.ListActiveChatsFor(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, withCarol.ID.Hex(), chats[0].ID)
		assert.Nil(t, chats[0].LastMessage)

		time.Sleep(2 * time.Millisecond)
		_, err = s.AppendMessage(ctx, withBob.ID.Hex(), "bob", "ping")
		require.NoError(t, err)

		chats, err = s.ListActiveChatsFor(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, withBob.ID.Hex(), chats[0].ID)
		assert.Equal(t, "ping", chats[0].LastMessage.Text)
	})
}

func TestErrorsWrap(t *testing.T) {
	_, err := parseChatID("zzz")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if PairKey("Bob", "alice") != PairKey("alice", "bob") {
		t.Fatalf("pair key must not depend on order or case")
	}
}
