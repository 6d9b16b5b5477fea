package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAuthenticateBindsIdentity(t *testing.T) {
	hub := newTestHub(t, nil, nil, nil)
	client, conn := connectClient(t, hub, "alice")

	if got := client.UserID(); got != "alice" {
		t.Errorf("expected userID alice, got %q", got)
	}
	if got := client.Username(); got != "user-alice" {
		t.Errorf("expected username user-alice, got %q", got)
	}

	events := conn.writtenEvents(t)
	var reply *AuthenticatedPayload
	for _, event := range events {
		if event.Type == EventAuthenticated {
			var payload AuthenticatedPayload
			if err := event.DecodeData(&payload); err != nil {
				t.Fatalf("decode authenticated payload: %v", err)
			}
			reply = &payload
		}
	}
	if reply == nil {
		t.Fatal("no authenticated reply received")
	}
	if !reply.Success || reply.UserID != "alice" {
		t.Errorf("unexpected authenticated reply: %+v", reply)
	}
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	hub := newTestHub(t, nil, nil, nil)
	_, conn := connectClient(t, hub, "")

	conn.feed(t, NewEvent(EventAuthenticate, AuthenticatePayload{Token: "garbage"}))
	waitFor(t, time.Second, func() bool {
		return conn.countEvents(t, EventAuthenticated) > 0
	})

	var payload AuthenticatedPayload
	for _, event := range conn.writtenEvents(t) {
		if event.Type == EventAuthenticated {
			event.DecodeData(&payload)
		}
	}
	if payload.Success {
		t.Error("expected authentication to fail")
	}
	if hub.OnlineUserCount() != 0 {
		t.Errorf("rejected client must not join the registry, got %d online", hub.OnlineUserCount())
	}
}

// One connection carries one identity. A second authenticate on the same
// socket is rejected, and closing the socket still takes the original user
// fully offline.
func TestReauthenticateRejectedAndRegistryStaysConsistent(t *testing.T) {
	status := &recordingStatusStore{}
	hub := newTestHub(t, nil, nil, status)
	client, conn := connectClient(t, hub, "alice")

	conn.feed(t, NewEvent(EventAuthenticate, AuthenticatePayload{Token: "token-bob"}))
	waitFor(t, time.Second, func() bool {
		return conn.countEvents(t, EventError) > 0
	})

	if got := client.UserID(); got != "alice" {
		t.Errorf("identity must not change, got %q", got)
	}
	if got := hub.OnlineUserCount(); got != 1 {
		t.Errorf("expected 1 online user, got %d", got)
	}

	conn.Close()
	waitFor(t, time.Second, func() bool {
		return hub.OnlineUserCount() == 0
	})

	_, offline := status.counts()
	if offline != 1 {
		t.Errorf("expected exactly one offline transition, got %d", offline)
	}
	status.mu.Lock()
	defer status.mu.Unlock()
	if len(status.offline) == 1 && status.offline[0] != "alice" {
		t.Errorf("offline transition for wrong user: %v", status.offline)
	}
}

func TestSendMessageRequiresAuthentication(t *testing.T) {
	store := &fakeStore{}
	hub := newTestHub(t, store, nil, nil)
	_, conn := connectClient(t, hub, "")

	conn.feed(t, NewEvent(EventSendMessage, SendMessagePayload{
		Message:   "hi",
		MessageID: uuid.New().String(),
	}))
	waitFor(t, time.Second, func() bool {
		return conn.countEvents(t, EventError) > 0
	})

	if store.count() != 0 {
		t.Errorf("unauthenticated send must not persist, got %d messages", store.count())
	}
}

// Posting "hello" reaches storage, then every other connected client gets
// the change signal while the author does not, and the author's followers
// get the preview notification.
func TestSendMessageBroadcastsAndNotifiesFollowers(t *testing.T) {
	store := &fakeStore{}
	followers := &fakeFollowers{ids: []string{"bob"}}
	hub := newTestHub(t, store, followers, nil)

	_, authorConn := connectClient(t, hub, "alice")
	_, otherConn := connectClient(t, hub, "carol")
	_, followerConn := connectClient(t, hub, "bob")

	messageID := uuid.New().String()
	authorConn.feed(t, NewEvent(EventSendMessage, SendMessagePayload{
		Message:   "hello",
		MessageID: messageID,
		Latitude:  52.52,
		Longitude: 13.405,
	}))

	waitFor(t, time.Second, func() bool {
		return otherConn.countEvents(t, EventRefreshMessages) > 0 &&
			followerConn.countEvents(t, EventFollowedMessage) > 0
	})

	if store.count() != 1 {
		t.Fatalf("expected 1 persisted message, got %d", store.count())
	}
	if got := authorConn.countEvents(t, EventRefreshMessages); got != 0 {
		t.Errorf("author must not receive its own change signal, got %d", got)
	}

	var notification FollowerNotification
	for _, event := range followerConn.writtenEvents(t) {
		if event.Type == EventFollowedMessage {
			if err := event.DecodeData(&notification); err != nil {
				t.Fatalf("decode notification: %v", err)
			}
		}
	}
	if notification.Preview != "hello" {
		t.Errorf("expected preview %q, got %q", "hello", notification.Preview)
	}
	if notification.Sender != "user-alice" {
		t.Errorf("expected sender user-alice, got %q", notification.Sender)
	}
	if notification.MessageID != messageID {
		t.Errorf("expected messageId %s, got %s", messageID, notification.MessageID)
	}
}

func TestPersistFailureSuppressesSignals(t *testing.T) {
	store := &fakeStore{fail: errors.New("db down")}
	followers := &fakeFollowers{ids: []string{"bob"}}
	hub := newTestHub(t, store, followers, nil)

	_, authorConn := connectClient(t, hub, "alice")
	_, otherConn := connectClient(t, hub, "carol")
	_, followerConn := connectClient(t, hub, "bob")

	authorConn.feed(t, NewEvent(EventSendMessage, SendMessagePayload{
		Message:   "lost",
		MessageID: uuid.New().String(),
	}))
	waitFor(t, time.Second, func() bool {
		return authorConn.countEvents(t, EventError) > 0
	})

	// Give any stray broadcast a moment to surface before asserting.
	time.Sleep(50 * time.Millisecond)

	if got := otherConn.countEvents(t, EventRefreshMessages); got != 0 {
		t.Errorf("change signal must not fire on failed persistence, got %d", got)
	}
	if got := followerConn.countEvents(t, EventFollowedMessage); got != 0 {
		t.Errorf("fan-out must not fire on failed persistence, got %d", got)
	}
}

func TestChangeCommittedBroadcastsOnce(t *testing.T) {
	hub := newTestHub(t, nil, nil, nil)

	_, conn1 := connectClient(t, hub, "alice")
	_, conn2 := connectClient(t, hub, "bob")

	hub.ChangeCommitted("")

	waitFor(t, time.Second, func() bool {
		return conn1.countEvents(t, EventRefreshMessages) > 0 &&
			conn2.countEvents(t, EventRefreshMessages) > 0
	})

	time.Sleep(50 * time.Millisecond)
	if got := conn1.countEvents(t, EventRefreshMessages); got != 1 {
		t.Errorf("expected exactly one change signal, got %d", got)
	}
}

func TestHeartbeatGetsAcked(t *testing.T) {
	hub := newTestHub(t, nil, nil, nil)
	_, conn := connectClient(t, hub, "alice")

	conn.feed(t, NewEvent(EventHeartbeat, HeartbeatPayload{Timestamp: time.Now().UnixMilli()}))
	waitFor(t, time.Second, func() bool {
		return conn.countEvents(t, EventHeartbeatAck) > 0
	})

	var payload HeartbeatPayload
	for _, event := range conn.writtenEvents(t) {
		if event.Type == EventHeartbeatAck {
			if err := event.DecodeData(&payload); err != nil {
				t.Fatalf("decode heartbeat ack: %v", err)
			}
		}
	}
	if payload.Timestamp == 0 {
		t.Error("heartbeat ack must carry a timestamp")
	}
}

func TestServerPushedEventsAreRejectedFromClients(t *testing.T) {
	hub := newTestHub(t, nil, nil, nil)
	_, conn := connectClient(t, hub, "alice")

	conn.feed(t, NewEvent(EventRefreshMessages, nil))
	waitFor(t, time.Second, func() bool {
		return conn.countEvents(t, EventError) > 0
	})
}
