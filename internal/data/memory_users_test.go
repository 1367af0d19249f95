package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUsersStore(t *testing.T) {
	users := NewMemoryUsersStore()
	ctx := context.Background()

	u, err := users.CreateUser(ctx, " Alice ", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.False(t, u.ID.IsZero())

	_, err = users.CreateUser(ctx, "ALICE", "other")
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = users.CreateUser(ctx, "  ", "x")
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := users.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash", got.Password)

	_, err = users.GetUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := users.UserExists(ctx, "Alice")
	require.NoError(t, err)
	assert.True(t, ok)

	for _, name := range []string{"alicia", "bob", "a.c"} {
		_, err := users.CreateUser(ctx, name, "x")
		require.NoError(t, err)
	}

	found, err := users.SearchUsers(ctx, "ALI", "alice")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alicia", found[0].Username)
	assert.Empty(t, found[0].Password)

	found, err = users.SearchUsers(ctx, ".", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a.c", found[0].Username)

	found, err = users.SearchUsers(ctx, "", "bob")
	require.NoError(t, err)
	assert.Len(t, found, 3)
}
