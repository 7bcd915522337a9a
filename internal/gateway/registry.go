package gateway

import (
	"context"
	"log/slog"
	"sync"

	"mail-gateway/internal/broker"
	"mail-gateway/internal/models"
)

// userSession aggregates the live connections and mailbox interests of one
// authenticated user. It exists while the user has at least one connection.
type userSession struct {
	conns     map[string]*Client
	mailboxes map[string]struct{}
}

// Registry is the single source of truth mapping users to sockets and
// mailboxes to interested users. Every mutation is serialized under one
// mutex, and every broker subscribe/unsubscribe is triggered by a 0->1 or
// 1->0 transition of the corresponding set, never by separate flags.
//
// Invariants held under the lock:
//   - a U:<id> broker subscription exists iff users[id] exists
//   - an M:<id> broker subscription exists iff mailboxes[id] is non-empty
//   - users[u].mailboxes and mailboxes[m] cross-reference consistently
type Registry struct {
	mu        sync.Mutex
	users     map[string]*userSession
	mailboxes map[string]map[string]struct{}

	broker broker.Broker
}

func NewRegistry(b broker.Broker) *Registry {
	return &Registry{
		users:     make(map[string]*userSession),
		mailboxes: make(map[string]map[string]struct{}),
		broker:    b,
	}
}

// Attach binds an authenticated connection to its user session, creating the
// session and its broker subscriptions on first interest. Ids are validated
// before any state is touched so a rejected attach leaves nothing behind.
func (r *Registry) Attach(ctx context.Context, c *Client, userID string, mailboxIDs []string) *WireError {
	if !models.ValidID(userID) {
		return wireErr(ErrNameValidation, "Invalid user ID!")
	}
	for _, mailboxID := range mailboxIDs {
		if !models.ValidID(mailboxID) {
			return wireErr(ErrNameValidation, "Invalid mailbox ID!")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.users[userID]
	if !ok {
		sess = &userSession{
			conns:     make(map[string]*Client),
			mailboxes: make(map[string]struct{}),
		}
		r.users[userID] = sess
		r.subscribe(ctx, PrefixUser+userID)
	}
	sess.conns[c.id] = c

	for _, mailboxID := range mailboxIDs {
		r.addMailboxLocked(ctx, sess, userID, mailboxID)
	}

	slog.Info("Connection attached", "clientID", c.id, "userID", userID, "mailboxes", len(mailboxIDs))
	return nil
}

// Detach removes a connection from its owning session. When the session's
// last connection goes, the user's mailbox interests are unwound and the
// session destroyed. Safe to call for never-attached connections.
func (r *Registry) Detach(ctx context.Context, c *Client) {
	userID := c.UserID()
	if userID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.users[userID]
	if !ok {
		return
	}
	if _, ok := sess.conns[c.id]; !ok {
		return
	}
	delete(sess.conns, c.id)
	if len(sess.conns) > 0 {
		return
	}

	for mailboxID := range sess.mailboxes {
		subscribers := r.mailboxes[mailboxID]
		delete(subscribers, userID)
		if len(subscribers) == 0 {
			delete(r.mailboxes, mailboxID)
			r.unsubscribe(ctx, PrefixMailbox+mailboxID)
		}
	}
	delete(r.users, userID)
	r.unsubscribe(ctx, PrefixUser+userID)

	slog.Info("User session destroyed", "clientID", c.id, "userID", userID)
}

// AddMailboxToUser records a new mailbox interest for a user with an active
// session, subscribing the mailbox channel if this is its first subscriber.
// Called by the event router when a mailbox-added system event is observed.
func (r *Registry) AddMailboxToUser(ctx context.Context, userID, mailboxID string) *WireError {
	if !models.ValidID(mailboxID) {
		return wireErr(ErrNameValidation, "Invalid mailbox ID!")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.users[userID]
	if !ok {
		// User has no live session here; the interest will be picked up
		// from the user record on their next attach.
		return nil
	}
	r.addMailboxLocked(ctx, sess, userID, mailboxID)
	return nil
}

// addMailboxLocked links user and mailbox both ways. Caller holds r.mu and
// has validated the ids.
func (r *Registry) addMailboxLocked(ctx context.Context, sess *userSession, userID, mailboxID string) {
	sess.mailboxes[mailboxID] = struct{}{}

	subscribers, ok := r.mailboxes[mailboxID]
	if !ok {
		subscribers = make(map[string]struct{})
		r.mailboxes[mailboxID] = subscribers
		r.subscribe(ctx, PrefixMailbox+mailboxID)
	}
	subscribers[userID] = struct{}{}
}

// ConnectionsOf returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsOf(userID string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.users[userID]
	if !ok {
		return nil
	}
	conns := make([]*Client, 0, len(sess.conns))
	for _, c := range sess.conns {
		conns = append(conns, c)
	}
	return conns
}

// UsersOf returns a snapshot of the user ids interested in a mailbox.
func (r *Registry) UsersOf(mailboxID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	subscribers, ok := r.mailboxes[mailboxID]
	if !ok {
		return nil
	}
	users := make([]string, 0, len(subscribers))
	for userID := range subscribers {
		users = append(users, userID)
	}
	return users
}

func (r *Registry) subscribe(ctx context.Context, channel string) {
	if err := r.broker.Subscribe(ctx, channel); err != nil {
		slog.Error("Broker subscribe failed", "channel", channel, "error", err)
	}
}

func (r *Registry) unsubscribe(ctx context.Context, channel string) {
	if err := r.broker.Unsubscribe(ctx, channel); err != nil {
		slog.Error("Broker unsubscribe failed", "channel", channel, "error", err)
	}
}
