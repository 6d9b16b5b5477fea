package feedclient

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

// Conn is one open transport connection.
type Conn interface {
	ReadEvent() (*Event, error)
	WriteEvent(event *Event) error
	Close() error
}

// Transport dials connections. Tests substitute a scripted fake.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketTransport is the production transport.
type WebSocketTransport struct{}

func (WebSocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadEvent() (*Event, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *wsConn) WriteEvent(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
