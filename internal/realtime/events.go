package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"geofeed/internal/models"
)

// EventType identifies a realtime wire event using a custom enum type for
// better type safety
type EventType string

const (
	// Client -> server
	EventAuthenticate EventType = "authenticate"
	EventSendMessage  EventType = "sendMessage"
	EventHeartbeat    EventType = "heartbeat"

	// Server -> client
	EventAuthenticated   EventType = "authenticated"
	EventRefreshMessages EventType = "refreshMessages"
	EventUserStatus      EventType = "userStatusChange"
	EventFollowedMessage EventType = "newFollowedUserMessage"
	EventHeartbeatAck    EventType = "heartbeatAck"
	EventError           EventType = "error"
)

// PreviewLength caps the text excerpt carried by follower notifications;
// the full message body only ever travels through storage.
const PreviewLength = 50

// String returns the string representation of the EventType
func (et EventType) String() string {
	return string(et)
}

// IsValid checks if the EventType is a valid enum value
func (et EventType) IsValid() bool {
	switch et {
	case EventAuthenticate, EventSendMessage, EventHeartbeat,
		EventAuthenticated, EventRefreshMessages, EventUserStatus,
		EventFollowedMessage, EventHeartbeatAck, EventError:
		return true
	default:
		return false
	}
}

// Event is the wire envelope. Data holds the event-specific payload; Seq is
// set by clients on outbox-queued sends and echoed for ordering diagnostics.
type Event struct {
	Type      EventType       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Seq       uint64          `json:"_seq,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Validate validates the envelope
func (e *Event) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid event type: %q", e.Type)
	}
	return nil
}

// DecodeData unmarshals the payload into dest.
func (e *Event) DecodeData(dest interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	return json.Unmarshal(e.Data, dest)
}

// Encode serializes the envelope for the transport.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Event payload structures

type AuthenticatePayload struct {
	Token string `json:"token,omitempty"`
	// Fallback identity for bot clients running inside the trusted network.
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

type AuthenticatedPayload struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	UserID   string `json:"userId,omitempty"`
	IsBot    bool   `json:"isBot"`
}

type SendMessagePayload struct {
	Message   string  `json:"message"`
	MessageID string  `json:"messageId"`
	Username  string  `json:"username"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

type UserStatusPayload struct {
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

// FollowerNotification is the lightweight payload fanned out to a poster's
// followers. It is derived from the persisted message, never stored.
type FollowerNotification struct {
	Sender    string `json:"sender"`
	Preview   string `json:"preview"`
	Timestamp int64  `json:"timestamp"`
	MessageID string `json:"messageId"`
}

type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event constructors

// NewEvent creates an envelope with the payload marshaled in place. A payload
// that cannot be marshaled is a programming error, so this panics rather than
// returning an error every caller would have to ignore.
func NewEvent(eventType EventType, payload interface{}) *Event {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("realtime: unmarshalable payload for %s: %v", eventType, err))
		}
		data = b
	}
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewRefreshEvent creates the zero-payload change signal. Clients treat it
// purely as "your cached view may be stale" and re-pull from storage.
func NewRefreshEvent() *Event {
	return NewEvent(EventRefreshMessages, nil)
}

func NewUserStatusEvent(username string, online bool) *Event {
	return NewEvent(EventUserStatus, UserStatusPayload{
		Username: username,
		IsOnline: online,
	})
}

func NewFollowerNotificationEvent(message *models.Message) *Event {
	return NewEvent(EventFollowedMessage, FollowerNotification{
		Sender:    message.Username,
		Preview:   message.Preview(PreviewLength),
		Timestamp: message.SentAt.UnixMilli(),
		MessageID: message.ID,
	})
}

func NewAuthenticatedEvent(success bool, userID, username string, isBot bool) *Event {
	return NewEvent(EventAuthenticated, AuthenticatedPayload{
		Success:  success,
		UserID:   userID,
		Username: username,
		IsBot:    isBot,
	})
}

func NewHeartbeatAckEvent() *Event {
	return NewEvent(EventHeartbeatAck, HeartbeatPayload{Timestamp: time.Now().UnixMilli()})
}

func NewErrorEvent(code, message string) *Event {
	return NewEvent(EventError, ErrorPayload{Code: code, Message: message})
}
