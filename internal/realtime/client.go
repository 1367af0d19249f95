package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/PaulBabatuyi/realtime-chat/internal/metrics"
)

// client is one websocket connection. The read pump runs on the handler
// goroutine and owns teardown; the write pump drains send.
type client struct {
	id   string
	b    *Broadcaster
	conn *websocket.Conn
	log  zerolog.Logger

	// send is never closed; done signals the write pump instead so a late
	// Send can never panic.
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}

	mu          sync.Mutex
	state       State
	identity    string
	closeCode   int
	closeReason string

	teardown sync.Once
}

func newClient(b *Broadcaster, conn *websocket.Conn) *client {
	id := uuid.NewString()
	return &client{
		id:         id,
		b:          b,
		conn:       conn,
		log:        b.log.With().Str("conn_id", id).Logger(),
		send:       make(chan []byte, b.opts.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		state:      StateConnecting,
	}
}

func (c *client) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the authenticated identity, empty while connecting.
func (c *client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Send queues frame without blocking. A full buffer closes the connection.
func (c *client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.closeLocked(websocket.ClosePolicyViolation, "slow consumer")
		return false
	}
}

// open moves a connecting client to Open and registers it for its identity.
func (c *client) open(identity string) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateOpen
	c.identity = identity
	c.log = c.log.With().Str("identity", identity).Logger()
	c.mu.Unlock()

	c.b.registry.Register(identity, c)
	c.log.Info().Msg("websocket authenticated")
}

func (c *client) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(code, reason)
}

func (c *client) closeLocked(code int, reason string) {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
}

// finish runs once when the read pump exits: stop the writer, wait for it
// to flush the close frame, then drop the connection from presence.
func (c *client) finish() {
	c.teardown.Do(func() {
		c.close(websocket.CloseNormalClosure, "")
		<-c.writerDone
		c.b.registry.Unregister(c)
		metrics.WsConnections.Dec()

		c.mu.Lock()
		reason := c.closeReason
		c.mu.Unlock()
		c.log.Info().Str("reason", reason).Msg("websocket closed")
	})
}

func (c *client) readPump() {
	defer c.finish()

	opts := c.b.opts
	c.conn.SetReadLimit(opts.MaxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			c.close(websocket.CloseNormalClosure, "read: "+err.Error())
			return
		}
		c.b.handleFrame(c, raw)
		if c.State() == StateClosed {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.b.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.writerDone)
	}()

	writeWait := c.b.opts.WriteWait
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close(websocket.CloseAbnormalClosure, "write: "+err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseAbnormalClosure, "ping: "+err.Error())
				return
			}
		case <-c.done:
			c.mu.Lock()
			code, reason := c.closeCode, c.closeReason
			c.mu.Unlock()
			// best effort; the peer may already be gone
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, closeText(code, reason)),
				time.Now().Add(writeWait))
			return
		}
	}
}

// closeText keeps the reason within the 123 bytes a close frame allows and
// hides internal read errors from the peer.
func closeText(code int, reason string) string {
	if code != websocket.ClosePolicyViolation {
		return ""
	}
	if len(reason) > 120 {
		return reason[:120]
	}
	return reason
}
