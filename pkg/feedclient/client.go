package feedclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrMaxRetriesExceeded is reported when automatic reconnection gives up;
// the client then stays disconnected until an explicit Connect.
var ErrMaxRetriesExceeded = errors.New("reconnect attempts exhausted")

// ErrAuthenticationFailed is reported when the server rejects the stored
// identity. Reconnection stops until the caller fixes the credentials and
// calls Connect again.
var ErrAuthenticationFailed = errors.New("authentication rejected")

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectDelay    = 5 * time.Second
	defaultBackoffCeiling    = 60 * time.Second
	defaultMaxReconnects     = 10
	dialTimeout              = 10 * time.Second
)

// Options configures a Client. URL and one identity form (Token, or
// UserID+Username for bots) are required; everything else has defaults.
type Options struct {
	URL      string
	Token    string
	UserID   string
	Username string

	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration // base delay, doubled per attempt
	BackoffCeiling       time.Duration
	MaxReconnectAttempts int

	Transport Transport

	// OnEvent receives every server event except heartbeat acks. Called
	// from the client's run loop; do not block.
	OnEvent func(event *Event)
	// OnStateChange observes lifecycle transitions (UI status indicator).
	OnStateChange func(state State)
	// OnError receives transport and protocol errors. None are fatal.
	OnError func(err error)
}

func (o *Options) applyDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = defaultHeartbeatInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.BackoffCeiling <= 0 {
		o.BackoffCeiling = defaultBackoffCeiling
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = defaultMaxReconnects
	}
	if o.Transport == nil {
		o.Transport = WebSocketTransport{}
	}
}

type msgKind int

const (
	msgDialed msgKind = iota
	msgClosed
	msgInbound
)

type loopMsg struct {
	kind  msgKind
	gen   int
	conn  Conn
	err   error
	event *Event
}

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdDisconnect
	cmdSend
)

type command struct {
	kind    cmdKind
	name    string
	payload json.RawMessage
}

// Client owns one persistent connection and its outbox. All shared state is
// mutated by a single run loop; the exported methods only post commands, so
// callers never race each other.
type Client struct {
	opts     Options
	state    int32
	commands chan command
	internal chan loopMsg
	outbox   *Outbox
	done     chan struct{}
	loopDone chan struct{}
}

func New(opts Options) *Client {
	opts.applyDefaults()
	c := &Client{
		opts:     opts,
		state:    int32(StateDisconnected),
		commands: make(chan command, 64),
		internal: make(chan loopMsg, 64),
		outbox:   NewOutbox(),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go c.run()
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// Connect requests a connection. Idempotent: a no-op while connecting,
// reconnecting, or already connected.
func (c *Client) Connect() {
	c.post(command{kind: cmdConnect})
}

// Disconnect closes the connection and cancels all timers synchronously
// with respect to the run loop. The outbox is kept: a later Connect still
// flushes it.
func (c *Client) Disconnect() {
	c.post(command{kind: cmdDisconnect})
}

// Close disconnects and stops the run loop for good.
func (c *Client) Close() {
	c.Disconnect()
	close(c.done)
	<-c.loopDone
}

// Send emits a named event. While connected it goes straight out; while
// disconnected it is buffered and replayed, in order, on reconnect. Only a
// payload that cannot be marshaled returns an error.
func (c *Client) Send(name string, payload interface{}) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}
	c.post(command{kind: cmdSend, name: name, payload: data})
	return nil
}

// PostUpdate is the common case: send a location-tagged update. It assigns
// the message id (the server's deduplication key) and returns it.
func (c *Client) PostUpdate(text string, latitude, longitude float64) (string, error) {
	messageID := uuid.New().String()
	err := c.Send(EventSendMessage, SendMessagePayload{
		Message:   text,
		MessageID: messageID,
		Username:  c.opts.Username,
		Latitude:  latitude,
		Longitude: longitude,
		Timestamp: time.Now().UnixMilli(),
	})
	return messageID, err
}

func (c *Client) post(cmd command) {
	select {
	case c.commands <- cmd:
	case <-c.loopDone:
	}
}

func (c *Client) setState(s State) {
	if State(atomic.SwapInt32(&c.state, int32(s))) == s {
		return
	}
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Client) reportError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func (c *Client) run() {
	defer close(c.loopDone)

	var (
		conn     Conn
		gen      int
		attempts int
		retryT   *time.Timer
		retryC   <-chan time.Time
		hbTicker *time.Ticker
		hbC      <-chan time.Time
	)

	stopRetry := func() {
		if retryT != nil {
			retryT.Stop()
			retryT = nil
		}
		retryC = nil
	}
	stopHeartbeat := func() {
		if hbTicker != nil {
			hbTicker.Stop()
			hbTicker = nil
		}
		hbC = nil
	}
	teardown := func() {
		gen++
		stopRetry()
		stopHeartbeat()
		if conn != nil {
			conn.Close()
			conn = nil
		}
	}
	// scheduleRetry applies the backoff policy: base delay doubling per
	// attempt, capped, bounded by the max attempt count.
	scheduleRetry := func() {
		attempts++
		if attempts > c.opts.MaxReconnectAttempts {
			stopRetry()
			stopHeartbeat()
			c.setState(StateDisconnected)
			c.reportError(ErrMaxRetriesExceeded)
			return
		}
		c.setState(StateReconnecting)
		delay := backoffDelay(c.opts.ReconnectDelay, c.opts.BackoffCeiling, attempts)
		retryT = time.NewTimer(delay)
		retryC = retryT.C
	}

	for {
		select {
		case cmd := <-c.commands:
			switch cmd.kind {
			case cmdConnect:
				switch c.State() {
				case StateConnecting, StateConnected, StateReconnecting:
					// idempotent
				default:
					attempts = 0
					c.setState(StateConnecting)
					c.dial(gen)
				}

			case cmdDisconnect:
				teardown()
				c.setState(StateDisconnected)

			case cmdSend:
				if c.State() == StateConnected && conn != nil {
					item := OutboundEvent{
						Name:       cmd.name,
						Payload:    cmd.payload,
						Seq:        c.outbox.NextSeq(),
						EnqueuedAt: time.Now(),
					}
					if err := c.writeItem(conn, item); err != nil {
						c.reportError(err)
						c.outbox.Requeue(item)
					}
				} else {
					c.outbox.Enqueue(cmd.name, cmd.payload)
				}
			}

		case msg := <-c.internal:
			if msg.gen != gen {
				continue // stale: belongs to a torn-down connection
			}
			switch msg.kind {
			case msgDialed:
				if msg.err != nil {
					c.reportError(msg.err)
					scheduleRetry()
					continue
				}
				conn = msg.conn
				attempts = 0
				stopRetry()
				c.setState(StateConnected)
				c.announceIdentity(conn)
				c.flushOutbox(conn)
				hbTicker = time.NewTicker(c.opts.HeartbeatInterval)
				hbC = hbTicker.C
				c.startReadLoop(conn, gen)

			case msgClosed:
				if conn == nil {
					continue
				}
				conn.Close()
				conn = nil
				gen++
				stopHeartbeat()
				if msg.err != nil {
					c.reportError(msg.err)
				}
				scheduleRetry()

			case msgInbound:
				c.handleInbound(msg.event, &teardown)
			}

		case <-retryC:
			stopRetry()
			if c.State() == StateReconnecting {
				c.dial(gen)
			}

		case <-hbC:
			if conn != nil {
				hb, _ := newEvent(EventHeartbeat, HeartbeatPayload{Timestamp: time.Now().UnixMilli()})
				if err := conn.WriteEvent(hb); err != nil {
					c.reportError(err)
				}
			}

		case <-c.done:
			teardown()
			c.setState(StateDisconnected)
			return
		}
	}
}

func (c *Client) dial(gen int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		conn, err := c.opts.Transport.Dial(ctx, c.opts.URL)
		c.deliver(loopMsg{kind: msgDialed, gen: gen, conn: conn, err: err})
	}()
}

func (c *Client) startReadLoop(conn Conn, gen int) {
	go func() {
		for {
			event, err := conn.ReadEvent()
			if err != nil {
				c.deliver(loopMsg{kind: msgClosed, gen: gen, err: err})
				return
			}
			c.deliver(loopMsg{kind: msgInbound, gen: gen, event: event})
		}
	}()
}

func (c *Client) deliver(msg loopMsg) {
	select {
	case c.internal <- msg:
	case <-c.loopDone:
	}
}

func (c *Client) announceIdentity(conn Conn) {
	auth, _ := newEvent(EventAuthenticate, AuthenticatePayload{
		Token:    c.opts.Token,
		UserID:   c.opts.UserID,
		Username: c.opts.Username,
	})
	if err := conn.WriteEvent(auth); err != nil {
		c.reportError(err)
	}
}

// flushOutbox replays everything buffered while offline, strictly in
// enqueue order, then empties the queue.
func (c *Client) flushOutbox(conn Conn) {
	for _, item := range c.outbox.Drain() {
		if err := c.writeItem(conn, item); err != nil {
			c.reportError(err)
			c.outbox.Requeue(item)
		}
	}
}

func (c *Client) writeItem(conn Conn, item OutboundEvent) error {
	return conn.WriteEvent(&Event{
		Event:     item.Name,
		Data:      item.Payload,
		Seq:       item.Seq,
		Timestamp: item.EnqueuedAt.UnixMilli(),
	})
}

func (c *Client) handleInbound(event *Event, teardown *func()) {
	switch event.Event {
	case EventHeartbeatAck:
		return // liveness only

	case EventAuthenticated:
		var payload AuthenticatedPayload
		if err := event.DecodeData(&payload); err == nil && !payload.Success {
			// Bad identity: stop reconnecting until the caller fixes it.
			(*teardown)()
			c.setState(StateDisconnected)
			c.reportError(ErrAuthenticationFailed)
			return
		}
	}

	if c.opts.OnEvent != nil {
		c.opts.OnEvent(event)
	}
}

// backoffDelay doubles the base per attempt and never exceeds the ceiling:
// 5s, 10s, 20s, ... for the defaults.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}
