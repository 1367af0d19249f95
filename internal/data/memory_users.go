package data

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/realtime-chat/internal/normalize"
)

// MemoryUsersStore is the in-process counterpart of UsersStore.
type MemoryUsersStore struct {
	mu    sync.RWMutex
	users map[string]*User // by normalized username
}

// NewMemoryUsersStore returns an empty store.
func NewMemoryUsersStore() *MemoryUsersStore {
	return &MemoryUsersStore{users: make(map[string]*User)}
}

func (m *MemoryUsersStore) CreateUser(_ context.Context, username, hashedPassword string) (*User, error) {
	name := normalize.Username(username)
	if name == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[name]; ok {
		return nil, fmt.Errorf("user %q: %w", name, ErrUserExists)
	}
	now := time.Now()
	u := &User{ID: bson.NewObjectID(), Username: name, Password: hashedPassword, CreatedAt: now, UpdatedAt: now}
	m.users[name] = u

	out := *u
	return &out, nil
}

func (m *MemoryUsersStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[normalize.Username(username)]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (m *MemoryUsersStore) UserExists(_ context.Context, username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[normalize.Username(username)]
	return ok, nil
}

// SearchUsers matches query as a case-insensitive substring, like the Mongo
// store's quoted regex. Passwords are not returned.
func (m *MemoryUsersStore) SearchUsers(_ context.Context, query, exclude string) ([]*User, error) {
	q := strings.ToLower(normalize.Text(query))
	exclude = normalize.Username(exclude)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*User, 0)
	for name, u := range m.users {
		if name == exclude || !strings.Contains(name, q) {
			continue
		}
		found := *u
		found.Password = ""
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > searchLimit {
		out = out[:searchLimit]
	}
	return out, nil
}
