package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"mail-gateway/internal/broker"
)

var (
	ErrClientDisconnected = fmt.Errorf("client disconnected")

	// ErrBrokerLost is returned by Run when the broker stream ends outside
	// of a requested shutdown. There is no local-only fallback; the process
	// is expected to exit.
	ErrBrokerLost = errors.New("broker connection lost")
)

// AuditSink mirrors published envelopes to an out-of-band store. Optional.
type AuditSink interface {
	Record(channel string, payload []byte) error
}

// Hub owns the gateway's connection lifecycle and routes inbound broker
// messages to local sockets. Broker dispatch runs on a single goroutine so
// fan-out keeps each channel's delivery order.
type Hub struct {
	// Registered clients, authenticated or not
	clients map[*Client]bool

	// Register requests from accepted connections
	register chan *Client

	// Unregister requests from closing connections
	unregister chan *Client

	registry *Registry
	broker   broker.Broker
	auth     Authenticator
	audit    AuditSink

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.RWMutex
}

// NewHub wires the hub to its collaborators. audit may be nil.
func NewHub(b broker.Broker, auth Authenticator, audit AuditSink) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		registry:   NewRegistry(b),
		broker:     b,
		auth:       auth,
		audit:      audit,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Registry exposes the connection registry for tests and diagnostics.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run drives the hub until Stop is called. It returns ErrBrokerLost if the
// broker stream closes first.
func (h *Hub) Run() error {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg, ok := <-h.broker.Messages():
			if !ok {
				if h.ctx.Err() != nil {
					return nil
				}
				return ErrBrokerLost
			}
			h.dispatch(msg)

		case <-h.ctx.Done():
			slog.Info("Gateway hub shutting down")
			return nil
		}
	}
}

// Stop ends the run loop and closes every live connection.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeSend()
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	slog.Info("Client registered", "clientID", client.id)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	h.registry.Detach(h.ctx, client)
	slog.Info("Client unregistered", "clientID", client.id, "userID", client.UserID())
}

// dispatch routes one inbound broker message. Mailbox channels fan out to
// every connection of every interested user; user channels go to all of that
// user's connections. Zero interested local users is a valid no-op, the real
// subscribers may live on another gateway instance.
func (h *Hub) dispatch(msg broker.Message) {
	switch {
	case strings.HasPrefix(msg.Channel, PrefixMailbox):
		mailboxID := strings.TrimPrefix(msg.Channel, PrefixMailbox)
		for _, userID := range h.registry.UsersOf(mailboxID) {
			h.deliverToUser(userID, msg.Payload)
		}

	case strings.HasPrefix(msg.Channel, PrefixUser):
		userID := strings.TrimPrefix(msg.Channel, PrefixUser)
		h.observeUserEvent(userID, msg.Payload)
		h.deliverToUser(userID, msg.Payload)

	default:
		slog.Debug("Ignoring message on unroutable channel", "channel", msg.Channel)
	}
}

// observeUserEvent updates registry state for system events that ride user
// channels, before the event itself is delivered.
func (h *Hub) observeUserEvent(userID string, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Error("Malformed broker payload on user channel", "userID", userID, "error", err)
		return
	}
	if env.EventName != EventMailboxAdded {
		return
	}

	mailboxID := mailboxIDFromEvent(&env)
	if mailboxID == "" {
		slog.Error("Mailbox-added event without mailbox id", "userID", userID)
		return
	}
	if werr := h.registry.AddMailboxToUser(h.ctx, userID, mailboxID); werr != nil {
		slog.Error("Rejected mailbox-added event", "userID", userID, "mailboxID", mailboxID, "error", werr)
	}
}

// deliverToUser writes the payload verbatim to each of the user's sockets.
// A socket that cannot accept the write is already closing; it is detached
// on the spot and delivery continues to the remaining recipients.
func (h *Hub) deliverToUser(userID string, payload []byte) {
	for _, client := range h.registry.ConnectionsOf(userID) {
		if err := client.sendRaw(payload); err != nil {
			slog.Debug("Delivery failed, detaching connection", "clientID", client.id, "userID", userID)
			h.registry.Detach(h.ctx, client)
		}
	}
}

func mailboxIDFromEvent(env *Envelope) string {
	mailbox, ok := env.Data["mailbox"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := mailbox["id"].(string)
	return id
}
