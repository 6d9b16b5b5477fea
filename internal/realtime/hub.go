package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"geofeed/internal/models"

	"github.com/google/uuid"
)

var (
	ErrClientDisconnected = fmt.Errorf("client disconnected")
	ErrNotAuthenticated   = fmt.Errorf("connection not authenticated")
)

// MessageStore is the slice of storage this subsystem writes through. The
// change signal and fan-out only ever run after Create returns nil.
type MessageStore interface {
	Create(ctx context.Context, message *models.Message) error
}

// Authenticator resolves presented credentials to a user: either a bearer
// token or, for trusted bot clients, a bare (userId, username) pair.
type Authenticator interface {
	Authenticate(ctx context.Context, token, userID, username string) (*models.User, error)
}

// EventExporter streams committed feed events to an external bus for
// downstream consumers. Optional; delivery is best-effort.
type EventExporter interface {
	MessageCreated(ctx context.Context, message *models.Message) error
}

type clientEvent struct {
	client *Client
	event  *Event
}

// Hub owns the connection registry and runs the single event loop that all
// connection goroutines feed into. The registry (userClients) is the source
// of truth for presence.
type Hub struct {
	// Guards the registry maps: the hub loop writes, delivery paths on the
	// bridge and notifier goroutines read.
	mu sync.RWMutex

	// Registered clients, authenticated or not
	clients map[*Client]bool

	// Connection registry: user id -> set of open connections. A user may
	// hold several simultaneous connections (tabs, devices).
	userClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan *clientEvent

	store    MessageStore
	auth     Authenticator
	presence *PresenceTracker
	notifier *FanoutNotifier
	exporter EventExporter
	bridge   Bridge

	procID         string
	sendBufferSize int

	ctx    context.Context
	cancel context.CancelFunc
}

// HubOptions wires the hub's collaborators. Exporter and Bridge may be nil;
// the hub then runs single-process with no event export.
type HubOptions struct {
	Store          MessageStore
	Auth           Authenticator
	Presence       *PresenceTracker
	Notifier       *FanoutNotifier
	Exporter       EventExporter
	Bridge         Bridge
	SendBufferSize int
}

func NewHub(opts HubOptions) *Hub {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:        make(map[*Client]bool),
		userClients:    make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		inbound:        make(chan *clientEvent),
		store:          opts.Store,
		auth:           opts.Auth,
		presence:       opts.Presence,
		notifier:       opts.Notifier,
		exporter:       opts.Exporter,
		bridge:         opts.Bridge,
		procID:         uuid.New().String(),
		sendBufferSize: opts.SendBufferSize,
		ctx:            ctx,
		cancel:         cancel,
	}

	if h.presence != nil {
		h.presence.broadcast = h
	}
	if h.notifier != nil {
		h.notifier.delivery = h
	}

	return h
}

// ProcID identifies this server process on the horizontal fan-out bus.
func (h *Hub) ProcID() string {
	return h.procID
}

func (h *Hub) Run() {
	if h.bridge != nil {
		go h.bridge.Run(h.ctx, h)
	}

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ce := <-h.inbound:
			h.handleClientEvent(ce)

		case <-h.ctx.Done():
			slog.Info("Realtime hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

// Register hands a new connection to the hub loop.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout registering client %s", client.id)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	slog.Info("Client registered", "clientID", client.id)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	client.closeSendChannel()

	userID := client.UserID()
	if userID == "" {
		h.mu.Unlock()
		slog.Info("Unauthenticated client unregistered", "clientID", client.id)
		return
	}

	set := h.userClients[userID]
	delete(set, client)
	remaining := len(set)
	if remaining == 0 {
		delete(h.userClients, userID)
	}
	h.mu.Unlock()

	slog.Info("Client unregistered", "clientID", client.id, "userID", userID, "remaining", remaining)

	// Last connection gone: the user went offline.
	if remaining == 0 && h.presence != nil {
		h.presence.Offline(h.ctx, userID, client.Username())
	}
}

// bindUser attaches an authenticated connection to its user's private
// channel and flips presence if this is the user's first open connection.
func (h *Hub) bindUser(client *Client) {
	h.mu.Lock()
	set := h.userClients[client.UserID()]
	if set == nil {
		set = make(map[*Client]bool)
		h.userClients[client.UserID()] = set
	}
	first := len(set) == 0
	set[client] = true
	h.mu.Unlock()

	if first && h.presence != nil {
		h.presence.Online(h.ctx, client.UserID(), client.Username())
	}
}

func (h *Hub) handleClientEvent(ce *clientEvent) {
	switch ce.event.Type {
	case EventAuthenticate:
		h.handleAuthenticate(ce.client, ce.event)
	case EventSendMessage:
		h.handleSendMessage(ce.client, ce.event)
	case EventHeartbeat:
		ce.client.Send(NewHeartbeatAckEvent())
	default:
		ce.client.sendError("UNEXPECTED_EVENT", fmt.Sprintf("event %s is not accepted from clients", ce.event.Type))
	}
}

func (h *Hub) handleAuthenticate(client *Client, event *Event) {
	// A connection carries exactly one identity for its lifetime. Allowing a
	// rebind would leave the old user's registry entry dangling and leak
	// their private-channel traffic onto this socket.
	if client.IsAuthenticated() {
		client.sendError("ALREADY_AUTHENTICATED", "connection already has an identity")
		return
	}

	var payload AuthenticatePayload
	if err := event.DecodeData(&payload); err != nil {
		client.Send(NewAuthenticatedEvent(false, "", "", false))
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	user, err := h.auth.Authenticate(ctx, payload.Token, payload.UserID, payload.Username)
	if err != nil {
		slog.Warn("Authentication failed", "clientID", client.id, "error", err)
		client.Send(NewAuthenticatedEvent(false, "", "", false))
		return
	}

	client.setIdentity(user.ID, user.Username, user.IsBot)
	h.bindUser(client)
	client.Send(NewAuthenticatedEvent(true, user.ID, user.Username, user.IsBot))

	slog.Info("Client authenticated", "clientID", client.id, "userID", user.ID, "username", user.Username)
}

func (h *Hub) handleSendMessage(client *Client, event *Event) {
	if !client.IsAuthenticated() {
		client.sendError("NOT_AUTHENTICATED", ErrNotAuthenticated.Error())
		return
	}

	var payload SendMessagePayload
	if err := event.DecodeData(&payload); err != nil {
		client.sendError("INVALID_PAYLOAD", err.Error())
		return
	}

	sentAt := time.Now()
	if payload.Timestamp > 0 {
		sentAt = time.UnixMilli(payload.Timestamp)
	}
	message := &models.Message{
		ID:        payload.MessageID,
		UserID:    client.UserID(),
		Username:  client.Username(),
		Text:      payload.Message,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		SentAt:    sentAt,
	}

	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	// Only a confirmed write may trigger the change signal and fan-out.
	if err := h.store.Create(ctx, message); err != nil {
		slog.Error("Failed to persist message", "clientID", client.id, "messageID", message.ID, "error", err)
		client.sendError("PERSIST_FAILED", "message could not be saved")
		return
	}

	h.MessageCommitted(message, client.id)
}

// MessageCommitted runs the post-commit pipeline for a durably stored
// message: export, change signal to everyone but the origin, and follower
// fan-out. HTTP handlers call this too for writes that arrive outside the
// realtime channel (origin "" means exclude nobody).
func (h *Hub) MessageCommitted(message *models.Message, originConnID string) {
	if h.exporter != nil {
		ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
		defer cancel()
		if err := h.exporter.MessageCreated(ctx, message); err != nil {
			slog.Error("Failed to export message event", "messageID", message.ID, "error", err)
		}
	}

	h.BroadcastAll(NewRefreshEvent(), originConnID)

	if h.notifier != nil {
		go h.notifier.Notify(h.ctx, message)
	}
}

// ChangeCommitted broadcasts the change signal for a non-message write
// (like toggle, delete) that storage has confirmed.
func (h *Hub) ChangeCommitted(originConnID string) {
	h.BroadcastAll(NewRefreshEvent(), originConnID)
}

// =============================================================================
// Delivery
// =============================================================================

// BroadcastAll sends an event to every connected client except the named
// origin connection. With a bridge attached the event travels over the
// shared bus so every process delivers it.
func (h *Hub) BroadcastAll(event *Event, excludeConnID string) {
	if h.bridge != nil {
		env := &BridgeEnvelope{Event: event, OriginProc: h.procID, ExcludeConn: excludeConnID}
		if err := h.bridge.PublishBroadcast(h.ctx, env); err == nil {
			return
		}
		// Bus down: fall back to local delivery so single-process mode
		// keeps working.
	}
	h.DeliverBroadcastLocal(event, excludeConnID)
}

// SendToUser delivers an event to every open connection in the user's
// private channel. Missing users are not an error: offline followers simply
// miss the live notification.
func (h *Hub) SendToUser(userID string, event *Event) {
	if h.bridge != nil {
		env := &BridgeEnvelope{Event: event, OriginProc: h.procID, UserID: userID}
		if err := h.bridge.PublishToUser(h.ctx, userID, env); err == nil {
			return
		}
	}
	h.DeliverUserLocal(userID, event)
}

// DeliverBroadcastLocal fans the event out to connections held by this
// process only. The bridge calls this on every process, including the one
// that published.
func (h *Hub) DeliverBroadcastLocal(event *Event, excludeConnID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.id == excludeConnID {
			continue
		}
		if err := client.Send(event); err != nil {
			slog.Debug("Broadcast delivery failed", "clientID", client.id, "event", event.Type, "error", err)
		}
	}
}

func (h *Hub) DeliverUserLocal(userID string, event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.userClients[userID] {
		if err := client.Send(event); err != nil {
			slog.Debug("User delivery failed", "clientID", client.id, "userID", userID, "event", event.Type, "error", err)
		}
	}
}

// OnlineUserCount reports how many distinct users hold at least one open
// connection on this process.
func (h *Hub) OnlineUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients)
}
