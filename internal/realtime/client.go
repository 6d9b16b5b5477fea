package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Conn is the subset of *websocket.Conn the client uses; tests substitute a
// mock connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is the server-side half of one open connection. Identity fields are
// empty until the authenticate event succeeds.
type Client struct {
	id   string
	hub  *Hub
	conn Conn
	send chan []byte

	mu       sync.RWMutex
	userID   string
	username string
	isBot    bool

	closed     int32
	sendClosed int32
	done       chan struct{}

	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn Conn) *Client {
	return &Client{
		id:   uuid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// UserID returns the authenticated user id, or "" before authentication.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) IsAuthenticated() bool {
	return c.UserID() != ""
}

func (c *Client) setIdentity(userID, username string, isBot bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.username = username
	c.isBot = isBot
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.done)
		// Unblock the read pump so the hub reaps the connection promptly.
		c.conn.Close()
		slog.Debug("Client marked as closed", "clientID", c.id, "userID", c.UserID())
	}
}

func (c *Client) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
		close(c.send)
	}
}

func (c *Client) readPump() {
	c.wg.Add(1)
	defer func() {
		c.wg.Done()
		c.close()

		select {
		case c.hub.unregister <- c:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending unregister request", "clientID", c.id, "userID", c.UserID())
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "clientID", c.id, "userID", c.UserID(), "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.UserID(), "error", err)
			}
			break
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			slog.Error("Failed to unmarshal event", "clientID", c.id, "error", err)
			c.sendError("INVALID_EVENT", "Invalid event format")
			continue
		}
		if err := event.Validate(); err != nil {
			c.sendError("UNKNOWN_EVENT", err.Error())
			continue
		}

		select {
		case c.hub.inbound <- &clientEvent{client: c, event: &event}:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending event to hub", "clientID", c.id, "event", event.Type)
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	c.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// Send queues an event for delivery on this connection. Delivery is
// best-effort: a full buffer means the peer stopped draining, so the
// connection is dropped rather than blocking the caller. Only the
// unregister path ever closes the send channel, so a dead client keeps
// returning ErrClientDisconnected instead of panicking a deliverer.
func (c *Client) Send(event *Event) error {
	if c.isClosed() || atomic.LoadInt32(&c.sendClosed) == 1 {
		return ErrClientDisconnected
	}

	data, err := event.Encode()
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientDisconnected
	default:
		slog.Warn("Send buffer full, closing client", "clientID", c.id, "userID", c.UserID())
		c.close()
		return ErrClientDisconnected
	}
}

func (c *Client) sendError(code, message string) {
	c.Send(NewErrorEvent(code, message))
}
