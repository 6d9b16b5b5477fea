package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"geofeed/internal/models"
)

type recordingDelivery struct {
	mu     sync.Mutex
	sends  []string
	events []*Event
}

func (d *recordingDelivery) SendToUser(userID string, event *Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends = append(d.sends, userID)
	d.events = append(d.events, event)
}

func (d *recordingDelivery) recipients() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.sends))
	copy(out, d.sends)
	return out
}

func testMessage(text string) *models.Message {
	return &models.Message{
		ID:       "msg-1",
		UserID:   "alice",
		Username: "user-alice",
		Text:     text,
		SentAt:   time.Now(),
	}
}

func TestNotifyNoFollowers(t *testing.T) {
	delivery := &recordingDelivery{}
	notifier := NewFanoutNotifier(&fakeFollowers{}, 100, time.Millisecond)
	notifier.delivery = delivery

	notifier.Notify(context.Background(), testMessage("hello"))

	if got := len(delivery.recipients()); got != 0 {
		t.Errorf("expected no deliveries, got %d", got)
	}
}

func TestNotifyDeliversToEveryFollower(t *testing.T) {
	followers := &fakeFollowers{ids: []string{"bob", "carol", "dave"}}
	delivery := &recordingDelivery{}
	notifier := NewFanoutNotifier(followers, 100, time.Millisecond)
	notifier.delivery = delivery

	notifier.Notify(context.Background(), testMessage("hello"))

	got := delivery.recipients()
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, id := range got {
		seen[id] = true
	}
	for _, want := range followers.ids {
		if !seen[want] {
			t.Errorf("follower %s never received the notification", want)
		}
	}

	// All followers share one event instance with the preview payload.
	var payload FollowerNotification
	if err := delivery.events[0].DecodeData(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Preview != "hello" || payload.Sender != "user-alice" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestNotifyBatchesLargeFollowerLists(t *testing.T) {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("follower-%d", i)
	}
	delivery := &recordingDelivery{}
	notifier := NewFanoutNotifier(&fakeFollowers{ids: ids}, 100, time.Millisecond)
	notifier.delivery = delivery

	start := time.Now()
	notifier.Notify(context.Background(), testMessage("hello"))
	elapsed := time.Since(start)

	if got := len(delivery.recipients()); got != 250 {
		t.Fatalf("expected 250 deliveries, got %d", got)
	}
	// 250 followers at batch size 100 means two inter-batch pauses.
	if elapsed < 2*time.Millisecond {
		t.Errorf("expected pauses between batches, fan-out took %v", elapsed)
	}
	// Batching preserves follower order.
	for i, id := range delivery.recipients() {
		if id != ids[i] {
			t.Fatalf("delivery order broken at %d: got %s, want %s", i, id, ids[i])
		}
	}
}

func TestNotifyFollowerLookupFailure(t *testing.T) {
	delivery := &recordingDelivery{}
	notifier := NewFanoutNotifier(&fakeFollowers{err: errors.New("db down")}, 100, time.Millisecond)
	notifier.delivery = delivery

	// Must log and return, never panic or deliver.
	notifier.Notify(context.Background(), testMessage("hello"))

	if got := len(delivery.recipients()); got != 0 {
		t.Errorf("expected no deliveries on lookup failure, got %d", got)
	}
}

func TestPartition(t *testing.T) {
	notifier := NewFanoutNotifier(&fakeFollowers{}, 3, time.Millisecond)

	cases := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{1}},
		{3, []int{3}},
		{4, []int{3, 1}},
		{9, []int{3, 3, 3}},
	}
	for _, tc := range cases {
		ids := make([]string, tc.n)
		batches := notifier.partition(ids)
		if len(batches) != len(tc.want) {
			t.Errorf("n=%d: got %d batches, want %d", tc.n, len(batches), len(tc.want))
			continue
		}
		for i, batch := range batches {
			if len(batch) != tc.want[i] {
				t.Errorf("n=%d batch %d: got len %d, want %d", tc.n, i, len(batch), tc.want[i])
			}
		}
	}
}
