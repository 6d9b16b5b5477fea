package realtime

import (
	"context"
	"time"

	"log/slog"

	"geofeed/internal/models"
)

// FollowerSource resolves who follows a user. Backed by the follow
// repository in production.
type FollowerSource interface {
	GetFollowerIDs(ctx context.Context, userID string) ([]string, error)
}

type userDelivery interface {
	SendToUser(userID string, event *Event)
}

const (
	defaultFanoutBatchSize  = 100
	defaultFanoutBatchPause = 5 * time.Millisecond
)

// FanoutNotifier delivers the lightweight follower notification for a
// committed message. Followers are processed in fixed-size batches with a
// short cooperative pause between batches so one popular author cannot
// monopolize the scheduler. Delivery is best-effort and at-most-once:
// offline followers catch up on their next pull.
type FanoutNotifier struct {
	followers  FollowerSource
	delivery   userDelivery
	batchSize  int
	batchPause time.Duration
}

func NewFanoutNotifier(followers FollowerSource, batchSize int, batchPause time.Duration) *FanoutNotifier {
	if batchSize <= 0 {
		batchSize = defaultFanoutBatchSize
	}
	if batchPause <= 0 {
		batchPause = defaultFanoutBatchPause
	}
	return &FanoutNotifier{
		followers:  followers,
		batchSize:  batchSize,
		batchPause: batchPause,
	}
}

// Notify fans the notification out to every follower of the message author.
// A follower-lookup failure drops the whole fan-out (logged, never fatal);
// per-follower delivery failures only skip that follower.
func (n *FanoutNotifier) Notify(ctx context.Context, message *models.Message) {
	followerIDs, err := n.followers.GetFollowerIDs(ctx, message.UserID)
	if err != nil {
		slog.Error("Failed to resolve followers", "userID", message.UserID, "messageID", message.ID, "error", err)
		return
	}
	if len(followerIDs) == 0 {
		return
	}

	event := NewFollowerNotificationEvent(message)
	batches := n.partition(followerIDs)

	for i, batch := range batches {
		for _, followerID := range batch {
			n.delivery.SendToUser(followerID, event)
		}

		// Yield between batches so a large fan-out never runs unbroken.
		// A started fan-out always runs to completion; follower count and
		// batch size bound the total work.
		if len(batches) > 1 && i < len(batches)-1 {
			time.Sleep(n.batchPause)
		}
	}

	slog.Debug("Fan-out complete", "messageID", message.ID,
		"followers", len(followerIDs), "batches", len(batches))
}

func (n *FanoutNotifier) partition(ids []string) [][]string {
	batches := make([][]string, 0, (len(ids)+n.batchSize-1)/n.batchSize)
	for start := 0; start < len(ids); start += n.batchSize {
		end := start + n.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
