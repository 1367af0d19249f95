package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/PaulBabatuyi/realtime-chat/internal/auth"
	"github.com/PaulBabatuyi/realtime-chat/internal/data"
	"github.com/PaulBabatuyi/realtime-chat/internal/realtime"
)

// userStore is the subset of the users store the handlers need; both
// data.UsersStore and data.MemoryUsersStore satisfy it.
type userStore interface {
	CreateUser(ctx context.Context, username, hashedPassword string) (*data.User, error)
	GetUserByUsername(ctx context.Context, username string) (*data.User, error)
	UserExists(ctx context.Context, username string) (bool, error)
	SearchUsers(ctx context.Context, query, exclude string) ([]*data.User, error)
}

// eventPublisher pushes live events to connected participants.
type eventPublisher interface {
	Publish(ctx context.Context, chatID string, ev realtime.Event) (int, error)
	PublishTo(identities []string, ev realtime.Event) int
}

// Server holds the stores, auth manager and event publisher behind the HTTP API.
type Server struct {
	users  userStore
	chats  data.ChatStore
	auth   *auth.JWTManager
	events eventPublisher
	log    zerolog.Logger

	// storeTimeout bounds every store call made on behalf of a request
	storeTimeout time.Duration
}

// newServer returns a ready-to-use Server wired with stores, auth manager and publisher.
func newServer(users userStore, chats data.ChatStore, authMgr *auth.JWTManager, events eventPublisher, logger zerolog.Logger, storeTimeout time.Duration) *Server {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Server{
		users:        users,
		chats:        chats,
		auth:         authMgr,
		events:       events,
		log:          logger,
		storeTimeout: storeTimeout,
	}
}

func (s *Server) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}
