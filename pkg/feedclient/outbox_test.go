package feedclient

import (
	"encoding/json"
	"testing"
	"time"
)

func TestOutboxSequenceStrictlyIncreasing(t *testing.T) {
	outbox := NewOutbox()

	var last uint64
	for i := 0; i < 100; i++ {
		item := outbox.Enqueue(EventSendMessage, json.RawMessage(`{}`))
		if item.Seq <= last {
			t.Fatalf("sequence not strictly increasing: %d after %d", item.Seq, last)
		}
		last = item.Seq
	}
}

func TestOutboxDrainPreservesOrderAndEmpties(t *testing.T) {
	outbox := NewOutbox()
	names := []string{"first", "second", "third"}
	for _, name := range names {
		outbox.Enqueue(name, nil)
	}

	drained := outbox.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 items, got %d", len(drained))
	}
	for i, item := range drained {
		if item.Name != names[i] {
			t.Errorf("item %d: got %q, want %q", i, item.Name, names[i])
		}
		if !item.Resend {
			t.Errorf("item %d: drained items must be flagged as resends", i)
		}
	}
	if outbox.Len() != 0 {
		t.Errorf("drain must empty the queue, %d left", outbox.Len())
	}
	if got := outbox.Drain(); got != nil {
		t.Errorf("draining an empty outbox must return nil, got %v", got)
	}
}

func TestOutboxSequenceSurvivesDrain(t *testing.T) {
	outbox := NewOutbox()
	outbox.Enqueue("a", nil)
	outbox.Enqueue("b", nil)
	drained := outbox.Drain()

	next := outbox.Enqueue("c", nil)
	if next.Seq <= drained[len(drained)-1].Seq {
		t.Errorf("sequence reused after drain: %d <= %d", next.Seq, drained[1].Seq)
	}
}

func TestOutboxRequeueKeepsSequence(t *testing.T) {
	outbox := NewOutbox()
	item := outbox.Enqueue("a", nil)
	outbox.Drain()

	outbox.Requeue(item)
	requeued := outbox.Drain()
	if len(requeued) != 1 {
		t.Fatalf("expected 1 item, got %d", len(requeued))
	}
	if requeued[0].Seq != item.Seq {
		t.Errorf("requeue must keep the original sequence: got %d, want %d", requeued[0].Seq, item.Seq)
	}
	if !requeued[0].Resend {
		t.Error("requeued item must be flagged as a resend")
	}
}

func TestOutboxEnqueueStampsTime(t *testing.T) {
	outbox := NewOutbox()
	before := time.Now()
	item := outbox.Enqueue("a", nil)
	if item.EnqueuedAt.Before(before) {
		t.Error("enqueue timestamp not set")
	}
}
