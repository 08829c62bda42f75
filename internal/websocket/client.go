package websocket

import (
	"errors"
	"sync"
	"time"

	"encore-realtime/internal/metrics"
	"encore-realtime/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Admission close codes. Clients retry 4001 with a fresh token and treat
// 4003 as permission denied.
const (
	CloseInvalidToken = 4001
	CloseNotMember    = 4003
)

var (
	ErrSendClosed     = errors.New("websocket: connection closed")
	ErrSendBufferFull = errors.New("websocket: send buffer full")
)

type ClientOptions struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	FrameRate      float64 // inbound frames per second; 0 disables limiting
	FrameBurst     int
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
		FrameRate:      10,
		FrameBurst:     20,
	}
}

// Client is one live socket binding a user to a room. It implements Sender.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	kind      string
	roomID    int
	userID    int
	sessionID string
	opts      ClientOptions
	limiter   *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, kind string, roomID, userID int, opts ClientOptions) *Client {
	defaults := DefaultClientOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaults.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaults.PongWait
	}

	var limiter *rate.Limiter
	if opts.FrameRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.FrameRate), opts.FrameBurst)
	}

	return &Client{
		conn:      conn,
		send:      make(chan []byte, opts.SendBuffer),
		kind:      kind,
		roomID:    roomID,
		userID:    userID,
		sessionID: uuid.NewString(),
		opts:      opts,
		limiter:   limiter,
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

// Send queues data for the write pump without blocking. A client whose
// buffer is full is closed: it cannot keep up and will be cleaned up by
// its own read loop.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSendClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame to the peer. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads frames until the connection fails or closes, handing each
// one to handle. It runs on the connection's own goroutine and returns when
// the peer is gone.
func (c *Client) ReadPump(handle func(frame []byte)) {
	defer c.conn.Close()

	if c.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logEvent(logger.Log().Error()).Err(err).Msg("websocket read error")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.InboundFramesDropped.WithLabelValues(c.kind, "rate_limited").Inc()
			c.logEvent(logger.Log().Debug()).Msg("inbound frame rate limited")
			continue
		}

		handle(message)
	}
}

// WritePump drains the send queue to the socket and keeps the connection
// alive with pings at 9/10 of the pong wait.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logEvent(logger.Log().Debug()).Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// logEvent tags e with the connection's identity. The session id tells a
// replaced connection apart from its successor for the same room and user.
func (c *Client) logEvent(e *zerolog.Event) *zerolog.Event {
	return e.
		Str("kind", c.kind).
		Int("room_id", c.roomID).
		Int("user_id", c.userID).
		Str("session", c.sessionID)
}

// CloseWithCode rejects a freshly upgraded connection before it is registered.
func CloseWithCode(conn *websocket.Conn, code int, reason string, writeWait time.Duration) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		logger.Debug("Error writing close frame %d: %v", code, err)
	}
	conn.Close()
}
