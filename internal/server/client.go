package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one authenticated live connection. It exists from admission
// until the socket closes and is the in-memory session record binding a
// socket to a username.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	log      *slog.Logger
	username string
	addr     string
	closed   bool
	limiter  *tokenBucket
	readMax  int64
}

// NewClient wraps an upgraded connection for the given authenticated
// username. The send channel is buffered so slow readers do not stall the
// hub's broadcast loop.
func NewClient(conn *websocket.Conn, hub *Hub, username, addr string, opts ClientOptions) *Client {
	if conn != nil && opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}

	return &Client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      hub,
		log:      hub.log,
		username: username,
		addr:     addr,
		limiter:  newTokenBucket(opts.RateLimitBurst, opts.RateLimitRefill),
		readMax:  opts.MaxMessageSize,
	}
}

// ClientOptions carries the per-connection limits from the configuration.
type ClientOptions struct {
	MaxMessageSize  int64
	RateLimitBurst  int
	RateLimitRefill time.Duration
}

// Username returns the identity bound to this session.
func (c *Client) Username() string {
	return c.username
}

// readPump relays inbound frames to the hub until the connection dies. Every
// text frame is treated as a chat payload and relayed verbatim; the protocol
// imposes no schema on it.
func (c *Client) readPump() {
	defer func() {
		// The hub may already be gone during shutdown; never block on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("closing connection in read pump", "session", c.id, "error", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("setting read deadline", "session", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadEnd(err)
			return
		}

		if !c.limiter.allow() {
			c.log.Warn("rate limit exceeded, discarding message",
				"session", c.id, "username", c.username)
			continue
		}

		evt := Event{
			Name:     EventChatMessage,
			Username: c.username,
			Payload:  string(raw),
		}
		select {
		case c.hub.broadcast <- evt:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) logReadEnd(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded read limit",
			"session", c.id, "limit", c.readMax)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure),
		errors.Is(err, io.EOF),
		isExpectedCloseError(err):
		c.log.Info("client disconnected", "session", c.id, "username", c.username)
	default:
		c.log.Warn("websocket read error", "session", c.id, "error", err)
	}
}

// writePump drains the send channel to the socket and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("closing connection in write pump", "session", c.id, "error", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Hub closed the channel; say goodbye.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("websocket write error", "session", c.id, "error", err)
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
