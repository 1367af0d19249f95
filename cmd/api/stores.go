package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/PaulBabatuyi/realtime-chat/internal/config"
	"github.com/PaulBabatuyi/realtime-chat/internal/data"
	"github.com/PaulBabatuyi/realtime-chat/internal/db"
)

// stores bundles the users and chat stores selected by STORE_DRIVER.
type stores struct {
	users userStore
	chats data.ChatStore
	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn().Msg("using in-memory stores; data is lost on restart")
		return &stores{
			users: data.NewMemoryUsersStore(),
			chats: data.NewMemoryChatStore(),
			ping:  func(context.Context) error { return nil },
			close: func(context.Context) error { return nil },
		}, nil
	}

	dbClient, err := db.New(ctx, cfg.MongoURI, db.Options{
		Database:         cfg.MongoDatabase,
		OperationTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to DB: %w", err)
	}

	// Ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		_ = dbClient.Close(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")

	return &stores{
		users: data.NewUsersStore(dbClient.UsersCollection()),
		chats: data.NewMongoChatStore(dbClient.ChatsCollection(), dbClient.MessagesCollection()),
		ping:  dbClient.Ping,
		close: dbClient.Close,
	}, nil
}
