package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"geofeed/internal/database"

	"github.com/redis/go-redis/v9"
)

// RedisService keeps the cross-process view of presence and carries the
// pub/sub traffic for the horizontal fan-out bridge.
type RedisService struct {
	client *database.RedisClient
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{client: client}
}

// =============================================================================
// User Status Management
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SAdd(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":    "online",
		"last_seen": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 5*time.Minute)

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("Failed to set user online", "userID", userID, "error", err)
		return err
	}

	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SRem(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":    "offline",
		"last_seen": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 24*time.Hour)

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("Failed to set user offline", "userID", userID, "error", err)
		return err
	}

	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, "online_users", userID).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, "online_users").Result()
}

// =============================================================================
// PubSub Operations
// =============================================================================

func (r *RedisService) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := r.client.GetClient().Publish(ctx, channel, data).Err(); err != nil {
		slog.Error("Failed to publish", "channel", channel, "error", err)
		return err
	}

	return nil
}

func (r *RedisService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	pubsub := r.client.GetClient().Subscribe(ctx, channels...)
	slog.Debug("Subscribed to channels", "channels", channels)
	return pubsub
}

func (r *RedisService) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	pubsub := r.client.GetClient().PSubscribe(ctx, patterns...)
	slog.Debug("Pattern subscribed to channels", "patterns", patterns)
	return pubsub
}
