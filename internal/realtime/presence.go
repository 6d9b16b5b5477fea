package realtime

import (
	"context"

	"log/slog"
)

// PresenceStatusStore is the cross-process presence cache (Redis).
type PresenceStatusStore interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

// PresenceUserStore persists the durable online flag and lastSeen stamp.
type PresenceUserStore interface {
	SetOnline(ctx context.Context, id string, online bool) error
}

type statusBroadcaster interface {
	BroadcastAll(event *Event, excludeConnID string)
}

// PresenceTracker turns connection-registry transitions into presence side
// effects. The hub only invokes Online on a user's 0->1 connection
// transition and Offline when the last connection closes, so a user with
// two tabs open never flaps.
type PresenceTracker struct {
	status    PresenceStatusStore
	users     PresenceUserStore
	broadcast statusBroadcaster
}

// NewPresenceTracker builds a tracker. Either store may be nil (tests,
// cache-less deployments); persistence errors are logged and never block
// the status broadcast.
func NewPresenceTracker(status PresenceStatusStore, users PresenceUserStore) *PresenceTracker {
	return &PresenceTracker{status: status, users: users}
}

func (p *PresenceTracker) Online(ctx context.Context, userID, username string) {
	if p.status != nil {
		if err := p.status.SetUserOnline(ctx, userID); err != nil {
			slog.Error("Failed to cache online status", "userID", userID, "error", err)
		}
	}
	if p.users != nil {
		if err := p.users.SetOnline(ctx, userID, true); err != nil {
			slog.Error("Failed to persist online status", "userID", userID, "error", err)
		}
	}

	slog.Info("User online", "userID", userID, "username", username)
	if p.broadcast != nil {
		p.broadcast.BroadcastAll(NewUserStatusEvent(username, true), "")
	}
}

func (p *PresenceTracker) Offline(ctx context.Context, userID, username string) {
	if p.status != nil {
		if err := p.status.SetUserOffline(ctx, userID); err != nil {
			slog.Error("Failed to cache offline status", "userID", userID, "error", err)
		}
	}
	if p.users != nil {
		if err := p.users.SetOnline(ctx, userID, false); err != nil {
			slog.Error("Failed to persist offline status", "userID", userID, "error", err)
		}
	}

	slog.Info("User offline", "userID", userID, "username", username)
	if p.broadcast != nil {
		p.broadcast.BroadcastAll(NewUserStatusEvent(username, false), "")
	}
}
