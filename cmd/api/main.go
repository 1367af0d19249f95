package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PaulBabatuyi/realtime-chat/internal/auth"
	"github.com/PaulBabatuyi/realtime-chat/internal/config"
	"github.com/PaulBabatuyi/realtime-chat/internal/logging"
	"github.com/PaulBabatuyi/realtime-chat/internal/middleware"
	"github.com/PaulBabatuyi/realtime-chat/internal/presence"
	"github.com/PaulBabatuyi/realtime-chat/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = st.close(context.Background())
	}()

	jwtMgr := newJWTManager(cfg)

	// small burst allows a couple of quick retries on register/login
	limiter := middleware.NewLimiterStore(cfg.RateLimitRPM, cfg.RateLimitBurst, time.Minute)
	defer limiter.Stop()

	registry := presence.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, st.chats, jwtMgr, logger, realtime.Options{
		SendBuffer:    cfg.WSSendBuffer,
		PingInterval:  cfg.WSPingInterval,
		PongWait:      cfg.WSPongWait,
		MaxFrameBytes: cfg.WSMaxFrameBytes,
		LookupTimeout: cfg.StoreTimeout,
	})

	srv := newServer(st.users, st.chats, jwtMgr, broadcaster, logger, cfg.StoreTimeout)
	httpServer := &http.Server{
		Addr: cfg.Addr(),
		Handler: srv.routes(routeOptions{
			limiter:   limiter,
			ws:        http.HandlerFunc(broadcaster.ServeWS),
			staticDir: cfg.StaticDir,
			health:    st.ping,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("driver", cfg.StoreDriver).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return err
		}
		hs := newHealthService(st.ping, logger)
		go hs.watch(ctx, 10*time.Second)
		go func() {
			if err := hs.serve(lis); err != nil {
				errCh <- err
			}
		}()
		defer hs.stop()
	}

	// Graceful shutdown on SIGINT/SIGTERM
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newJWTManager prefers JWT_KEYS so signing keys can be rotated; JWT_SECRET
// is the single-key fallback.
func newJWTManager(cfg config.Config) *auth.JWTManager {
	if len(cfg.JWTKeys) > 0 {
		return auth.NewJWTManagerFromKeys(cfg.JWTKeys, cfg.JWTActiveKid, cfg.TokenTTL)
	}
	return auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
}
