package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"log/slog"

	"geofeed/internal/services"
)

const (
	broadcastBusChannel = "geofeed:broadcast"
	userBusPrefix       = "geofeed:user:"
	userBusPattern      = userBusPrefix + "*"
)

// BridgeEnvelope wraps an event for the shared bus. OriginProc lets the
// publishing process recognise its own traffic; ExcludeConn only means
// anything on the process that owns that connection.
type BridgeEnvelope struct {
	Event       *Event `json:"event"`
	OriginProc  string `json:"originProc"`
	ExcludeConn string `json:"excludeConn,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// localDelivery is the slice of the hub the bridge feeds received traffic
// back into.
type localDelivery interface {
	DeliverBroadcastLocal(event *Event, excludeConnID string)
	DeliverUserLocal(userID string, event *Event)
}

// Bridge shares broadcast and private-channel traffic between server
// processes. It carries no state of its own; when publishing fails the hub
// falls back to local-only delivery.
type Bridge interface {
	PublishBroadcast(ctx context.Context, env *BridgeEnvelope) error
	PublishToUser(ctx context.Context, userID string, env *BridgeEnvelope) error
	Run(ctx context.Context, local localDelivery)
}

// RedisBridge implements Bridge over Redis pub/sub.
type RedisBridge struct {
	redis *services.RedisService
}

func NewRedisBridge(redis *services.RedisService) *RedisBridge {
	return &RedisBridge{redis: redis}
}

func (b *RedisBridge) PublishBroadcast(ctx context.Context, env *BridgeEnvelope) error {
	return b.redis.Publish(ctx, broadcastBusChannel, env)
}

func (b *RedisBridge) PublishToUser(ctx context.Context, userID string, env *BridgeEnvelope) error {
	return b.redis.Publish(ctx, userBusPrefix+userID, env)
}

// Run consumes the bus until ctx is cancelled, re-delivering every received
// envelope to this process's local connections. The publishing process
// receives its own messages here too; that is how its local delivery
// happens, so nothing is delivered twice.
func (b *RedisBridge) Run(ctx context.Context, local localDelivery) {
	pubsub := b.redis.PSubscribe(ctx, broadcastBusChannel, userBusPattern)
	defer pubsub.Close()

	ch := pubsub.Channel()
	slog.Info("Horizontal fan-out bridge running")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				slog.Warn("Fan-out bridge subscription closed")
				return
			}
			if err := b.dispatch(msg.Channel, []byte(msg.Payload), local); err != nil {
				slog.Error("Failed to dispatch bus message", "channel", msg.Channel, "error", err)
			}

		case <-ctx.Done():
			slog.Info("Fan-out bridge stopping")
			return
		}
	}
}

func (b *RedisBridge) dispatch(channel string, payload []byte, local localDelivery) error {
	var env BridgeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("malformed bus envelope: %w", err)
	}
	if env.Event == nil {
		return fmt.Errorf("bus envelope without event on %s", channel)
	}

	switch {
	case channel == broadcastBusChannel:
		local.DeliverBroadcastLocal(env.Event, env.ExcludeConn)
	case strings.HasPrefix(channel, userBusPrefix):
		userID := env.UserID
		if userID == "" {
			userID = strings.TrimPrefix(channel, userBusPrefix)
		}
		local.DeliverUserLocal(userID, env.Event)
	default:
		return fmt.Errorf("unexpected bus channel %s", channel)
	}
	return nil
}
