// Package feedclient is the client half of the geofeed realtime protocol:
// one persistent WebSocket with automatic reconnection, a heartbeat to keep
// intermediaries from idling the connection, and an outbox that replays
// sends buffered while offline.
package feedclient

import (
	"encoding/json"
	"time"
)

// Wire event names. These mirror the server contract; the contract is the
// field set, not the keyword.
const (
	EventAuthenticate    = "authenticate"
	EventAuthenticated   = "authenticated"
	EventSendMessage     = "sendMessage"
	EventRefreshMessages = "refreshMessages"
	EventUserStatus      = "userStatusChange"
	EventFollowedMessage = "newFollowedUserMessage"
	EventHeartbeat       = "heartbeat"
	EventHeartbeatAck    = "heartbeatAck"
	EventError           = "error"
)

// Event is the wire envelope.
type Event struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Seq       uint64          `json:"_seq,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// DecodeData unmarshals the payload into dest.
func (e *Event) DecodeData(dest interface{}) error {
	return json.Unmarshal(e.Data, dest)
}

func newEvent(name string, payload interface{}) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return &Event{
		Event:     name,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// AuthenticatePayload carries the stored identity announced on every
// (re)connect: a bearer token, or a bare id/username pair for bots.
type AuthenticatePayload struct {
	Token    string `json:"token,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

type AuthenticatedPayload struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	UserID   string `json:"userId,omitempty"`
	IsBot    bool   `json:"isBot"`
}

type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type FollowerNotification struct {
	Sender    string `json:"sender"`
	Preview   string `json:"preview"`
	Timestamp int64  `json:"timestamp"`
	MessageID string `json:"messageId"`
}

type UserStatusPayload struct {
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

// SendMessagePayload posts a location-tagged update.
type SendMessagePayload struct {
	Message   string  `json:"message"`
	MessageID string  `json:"messageId"`
	Username  string  `json:"username"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}
