// Package realtime carries live chat events over websocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/PaulBabatuyi/realtime-chat/internal/data"
	"github.com/PaulBabatuyi/realtime-chat/internal/metrics"
	"github.com/PaulBabatuyi/realtime-chat/internal/presence"
)

// Authenticator resolves a bearer token to the identity it was issued for.
type Authenticator interface {
	Identity(token string) (string, error)
}

// ChatResolver looks up a chat's current participants.
type ChatResolver interface {
	GetChat(ctx context.Context, chatID string) (*data.Chat, error)
}

// Options tunes connection handling. Zero values take the defaults below.
type Options struct {
	SendBuffer    int
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	MaxFrameBytes int64
	// LookupTimeout bounds the chat lookup done for every relayed frame.
	LookupTimeout time.Duration
	// CheckOrigin is passed to the upgrader; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 << 10
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 5 * time.Second
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
	return o
}

// Broadcaster accepts websocket connections, relays client frames to the
// participants of the addressed chat and pushes server events. It never
// persists anything.
type Broadcaster struct {
	registry *presence.Registry
	chats    ChatResolver
	auth     Authenticator
	log      zerolog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

// NewBroadcaster wires a Broadcaster to its registry, chat lookup and token
// verifier.
func NewBroadcaster(registry *presence.Registry, chats ChatResolver, auth Authenticator, logger zerolog.Logger, opts Options) *Broadcaster {
	opts = opts.withDefaults()
	return &Broadcaster{
		registry: registry,
		chats:    chats,
		auth:     auth,
		log:      logger.With().Str("component", "realtime").Logger(),
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

// ServeWS upgrades the request and runs the connection until it closes. A
// token may be supplied up front (Authorization header or token query
// parameter); otherwise the first frame must be an auth frame.
//
// A token-authenticated connection is registered only after the upgrader has
// written the 101 response, so a publish racing with the handshake can miss
// it. Clients should resync through the HTTP API once connected.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := ""
	if token := requestToken(r); token != "" {
		id, err := b.auth.Identity(token)
		if err != nil {
			b.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade with invalid token")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		identity = id
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied with an HTTP error
		b.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(b, conn)
	metrics.WsConnections.Inc()
	c.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket connected")

	if identity != "" {
		c.open(identity)
	}

	go c.writePump()
	c.readPump()
}

// Publish pushes ev to every connection of the chat's current participants.
// It returns the number of connections the event was queued on.
func (b *Broadcaster) Publish(ctx context.Context, chatID string, ev Event) (int, error) {
	chat, err := b.chats.GetChat(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if ev.ChatID == "" {
		ev.ChatID = chatID
	}
	return b.PublishTo(chat.Participants, ev), nil
}

// PublishTo pushes ev to every connection of the given identities. Slow or
// closed connections are skipped; they never block the caller.
func (b *Broadcaster) PublishTo(identities []string, ev Event) int {
	frame, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("type", ev.Type).Msg("encode event")
		return 0
	}

	delivered := 0
	for _, identity := range lo.Uniq(identities) {
		sent, failed := b.registry.SendToUser(identity, frame)
		delivered += sent
		if sent > 0 {
			metrics.FanoutDeliveries.WithLabelValues(ev.Type).Add(float64(sent))
		}
		if failed > 0 {
			metrics.FanoutDrops.WithLabelValues(ev.Type).Add(float64(failed))
			b.log.Warn().Str("identity", identity).Str("type", ev.Type).Int("failed", failed).Msg("event dropped for slow or closed connections")
		}
	}
	return delivered
}

// handleFrame processes one client frame. Invalid frames are dropped; only an
// invalid auth attempt ends the connection.
func (b *Broadcaster) handleFrame(c *client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		b.drop(c, "malformed", err)
		return
	}
	if in.Type == "" {
		b.drop(c, "missing type", nil)
		return
	}

	switch c.State() {
	case StateConnecting:
		if in.Type != TypeAuth {
			b.drop(c, "unauthenticated", nil)
			return
		}
		identity, err := b.auth.Identity(in.Token)
		if err != nil {
			b.drop(c, "invalid token", err)
			c.close(websocket.ClosePolicyViolation, "invalid token")
			return
		}
		c.open(identity)
		metrics.WsFramesTotal.WithLabelValues(TypeAuth).Inc()
		return
	case StateClosed:
		return
	}

	if !relayable(in.Type) {
		b.drop(c, "unknown type", nil)
		return
	}
	if in.ChatID == "" {
		b.drop(c, "missing chatId", nil)
		return
	}
	if in.Type == TypeMessage && strings.TrimSpace(in.Text) == "" {
		b.drop(c, "empty text", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.LookupTimeout)
	defer cancel()

	chat, err := b.chats.GetChat(ctx, in.ChatID)
	if err != nil {
		b.drop(c, "unknown chat", err)
		return
	}
	sender := c.Identity()
	if !chat.HasParticipant(sender) {
		b.drop(c, "not a participant", nil)
		return
	}

	metrics.WsFramesTotal.WithLabelValues(in.Type).Inc()
	b.PublishTo(chat.Participants, Event{
		Type:      in.Type,
		ChatID:    in.ChatID,
		Sender:    sender,
		Text:      in.Text,
		MessageID: in.MessageID,
	})
}

func (b *Broadcaster) drop(c *client, reason string, err error) {
	metrics.WsFramesDropped.WithLabelValues(reason).Inc()
	c.log.Warn().Err(err).Str("reason", reason).Msg("frame dropped")
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("token")
}
