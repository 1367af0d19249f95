package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/PaulBabatuyi/realtime-chat/internal/metrics"
	"github.com/PaulBabatuyi/realtime-chat/internal/middleware"
)

// routeOptions carries the collaborators the router mounts next to the API.
type routeOptions struct {
	limiter   *middleware.LimiterStore
	ws        http.Handler
	staticDir string
	health    func(ctx context.Context) error
}

func (s *Server) routes(o routeOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(
		hlog.NewHandler(s.log),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		middleware.Recover,
	)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(metrics.Middleware, accessLog)

	limited := middleware.RateLimit(o.limiter)
	api.Handle("/register", limited(http.HandlerFunc(s.handleRegister))).Methods(http.MethodPost)
	api.Handle("/login", limited(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)

	protect := middleware.RequireAuth(s.auth)
	api.Handle("/active-chats", protect(http.HandlerFunc(s.handleActiveChats))).Methods(http.MethodGet)
	api.Handle("/search-users", protect(http.HandlerFunc(s.handleSearchUsers))).Methods(http.MethodGet)
	api.Handle("/start-chat", protect(http.HandlerFunc(s.handleStartChat))).Methods(http.MethodPost)
	api.Handle("/chats/{chatId}", protect(http.HandlerFunc(s.handleListMessages))).Methods(http.MethodGet)
	api.Handle("/chats/{chatId}/messages", protect(http.HandlerFunc(s.handleSendMessage))).Methods(http.MethodPost)
	api.Handle("/chats/{chatId}/leave", protect(http.HandlerFunc(s.handleLeave))).Methods(http.MethodPost)
	api.Handle("/chats/{chatId}/mark-as-read", protect(http.HandlerFunc(s.handleMarkRead))).Methods(http.MethodPost)

	// the websocket route stays outside the access-log writer wrapper
	if o.ws != nil {
		r.Handle("/ws", o.ws).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", healthHandler(o.health)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if o.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(o.staticDir)))
	}
	return r
}

func accessLog(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		var e *zerolog.Event
		if status >= http.StatusInternalServerError {
			e = hlog.FromRequest(r).Error()
		} else {
			e = hlog.FromRequest(r).Info()
		}
		e.Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(next)
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
