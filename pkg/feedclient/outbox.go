package feedclient

import (
	"encoding/json"
	"time"
)

// OutboundEvent is a send buffered while the connection is down. Seq is
// assigned at enqueue time, strictly increasing for the client session, and
// never reused.
type OutboundEvent struct {
	Name       string
	Payload    json.RawMessage
	Seq        uint64
	EnqueuedAt time.Time
	Resend     bool
}

// Outbox buffers outbound events across disconnections and replays them in
// enqueue order. It is owned by the client's run loop and is not safe for
// concurrent use.
type Outbox struct {
	nextSeq uint64
	items   []OutboundEvent
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

// NextSeq assigns the next sequence number.
func (o *Outbox) NextSeq() uint64 {
	o.nextSeq++
	return o.nextSeq
}

// Enqueue appends an event with the next sequence number and a timestamp.
func (o *Outbox) Enqueue(name string, payload json.RawMessage) OutboundEvent {
	item := OutboundEvent{
		Name:       name,
		Payload:    payload,
		Seq:        o.NextSeq(),
		EnqueuedAt: time.Now(),
	}
	o.items = append(o.items, item)
	return item
}

// Drain returns all buffered events in enqueue order and empties the queue.
// Sequence numbers keep counting; a later enqueue never reuses one.
func (o *Outbox) Drain() []OutboundEvent {
	if len(o.items) == 0 {
		return nil
	}
	drained := o.items
	o.items = nil
	for i := range drained {
		drained[i].Resend = true
	}
	return drained
}

// Requeue puts a failed send back, keeping its original sequence number so
// replay order survives a mid-flush disconnect.
func (o *Outbox) Requeue(item OutboundEvent) {
	item.Resend = true
	o.items = append(o.items, item)
}

func (o *Outbox) Len() int {
	return len(o.items)
}
