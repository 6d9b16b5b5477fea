package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"geofeed/internal/models"
)

// mockConn satisfies Conn and records everything written to it. Reads block
// until the test feeds an event or closes the connection.
type mockConn struct {
	mu       sync.Mutex
	written  [][]byte
	incoming chan []byte
	closed   bool
	done     chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.incoming:
		return 1, data, nil
	case <-m.done:
		return 0, nil, io.EOF
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("write on closed connection")
	}
	// Ignore control frames; tests only care about data messages.
	if len(data) > 0 {
		cp := make([]byte, len(data))
		copy(cp, data)
		m.written = append(m.written, cp)
	}
	return nil
}

func (m *mockConn) SetReadLimit(int64)                {}
func (m *mockConn) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// feed delivers a raw client event to the read pump.
func (m *mockConn) feed(t *testing.T, event *Event) {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	m.incoming <- data
}

// writtenEvents decodes every data frame written so far.
func (m *mockConn) writtenEvents(t *testing.T) []*Event {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]*Event, 0, len(m.written))
	for _, raw := range m.written {
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("unmarshal written frame: %v", err)
		}
		events = append(events, &event)
	}
	return events
}

func (m *mockConn) countEvents(t *testing.T, eventType EventType) int {
	t.Helper()
	n := 0
	for _, event := range m.writtenEvents(t) {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

// fakeStore is an in-memory MessageStore with a switchable failure mode.
type fakeStore struct {
	mu       sync.Mutex
	messages []*models.Message
	fail     error
}

func (s *fakeStore) Create(ctx context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeAuth accepts any token of the form "token-<userID>" and resolves it
// to a user named "user-<userID>".
type fakeAuth struct{}

func (fakeAuth) Authenticate(ctx context.Context, token, userID, username string) (*models.User, error) {
	if len(token) > 6 && token[:6] == "token-" {
		id := token[6:]
		return &models.User{ID: id, Username: "user-" + id}, nil
	}
	return nil, errors.New("invalid credentials")
}

// fakeFollowers returns a fixed follower list.
type fakeFollowers struct {
	ids []string
	err error
}

func (f *fakeFollowers) GetFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

// recordingStatusStore counts presence cache writes.
type recordingStatusStore struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (s *recordingStatusStore) SetUserOnline(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = append(s.online, userID)
	return nil
}

func (s *recordingStatusStore) SetUserOffline(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = append(s.offline, userID)
	return nil
}

func (s *recordingStatusStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.online), len(s.offline)
}

// newTestHub builds a hub with fakes and runs its loop.
func newTestHub(t *testing.T, store *fakeStore, followers FollowerSource, status PresenceStatusStore) *Hub {
	t.Helper()
	if store == nil {
		store = &fakeStore{}
	}
	if followers == nil {
		followers = &fakeFollowers{}
	}

	hub := NewHub(HubOptions{
		Store:    store,
		Auth:     fakeAuth{},
		Presence: NewPresenceTracker(status, nil),
		Notifier: NewFanoutNotifier(followers, 100, time.Millisecond),
	})
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

// connectClient registers a connection and optionally authenticates it as
// the given user id.
func connectClient(t *testing.T, hub *Hub, userID string) (*Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	client := NewClient(hub, conn)
	if err := hub.Register(client); err != nil {
		t.Fatalf("register client: %v", err)
	}
	go client.writePump()
	go client.readPump()

	if userID != "" {
		conn.feed(t, NewEvent(EventAuthenticate, AuthenticatePayload{Token: "token-" + userID}))
		waitFor(t, time.Second, func() bool {
			return conn.countEvents(t, EventAuthenticated) > 0
		})
	}
	return client, conn
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
