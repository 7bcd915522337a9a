package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mail-gateway/internal/broker"
	"mail-gateway/internal/models"
)

var errConnClosed = errors.New("connection closed")

type scriptedFrame struct {
	messageType int
	data        []byte
}

// mockConn implements the Conn interface for testing. Frames pushed by the
// test are handed to the read pump one at a time; written envelopes are
// recorded for assertions.
type mockConn struct {
	mu        sync.Mutex
	writes    [][]byte
	closed    bool
	closeSent bool

	frames chan scriptedFrame
	done   chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		frames: make(chan scriptedFrame, 16),
		done:   make(chan struct{}),
	}
}

func (m *mockConn) push(messageType int, data []byte) {
	m.frames <- scriptedFrame{messageType: messageType, data: data}
}

func (m *mockConn) pushText(data string) {
	m.push(websocket.TextMessage, []byte(data))
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-m.frames:
		return f.messageType, f.data, nil
	case <-m.done:
		return 0, nil, errConnClosed
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errConnClosed
	}
	switch messageType {
	case websocket.TextMessage:
		m.writes = append(m.writes, data)
	case websocket.CloseMessage:
		m.closeSent = true
	}
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *mockConn) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConn) SetReadLimit(int64)                {}
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) envelopes() []*Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	envs := make([]*Envelope, 0, len(m.writes))
	for _, w := range m.writes {
		var env Envelope
		if err := json.Unmarshal(w, &env); err == nil {
			envs = append(envs, &env)
		}
	}
	return envs
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// fakeBroker records subscription transitions and lets tests inject inbound
// bus messages.
type fakeBroker struct {
	mu        sync.Mutex
	subCount  map[string]int
	unsubs    []string
	published []broker.Message

	inbound chan broker.Message
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		subCount: make(map[string]int),
		inbound:  make(chan broker.Message, 32),
	}
}

func (b *fakeBroker) Subscribe(_ context.Context, channels ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range channels {
		b.subCount[ch]++
	}
	return nil
}

func (b *fakeBroker) Unsubscribe(_ context.Context, channels ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range channels {
		b.subCount[ch]--
		b.unsubs = append(b.unsubs, ch)
	}
	return nil
}

func (b *fakeBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, broker.Message{Channel: channel, Payload: payload})
	return nil
}

func (b *fakeBroker) Messages() <-chan broker.Message {
	return b.inbound
}

func (b *fakeBroker) Close() error {
	close(b.inbound)
	return nil
}

func (b *fakeBroker) inject(channel string, payload []byte) {
	b.inbound <- broker.Message{Channel: channel, Payload: payload}
}

// subscribed reports whether the channel currently has an active
// subscription (more subscribes than unsubscribes).
func (b *fakeBroker) subscribed(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subCount[channel] > 0
}

// subscribes returns how many subscribe calls the channel has seen in total.
func (b *fakeBroker) subscribes(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.subCount[channel]
	for _, ch := range b.unsubs {
		if ch == channel {
			n++
		}
	}
	return n
}

// fakeAuth resolves fixed token and user tables.
type fakeAuth struct {
	sessions map[string]*models.Session
	users    map[string]*models.User
}

func (a *fakeAuth) ResolveSession(_ context.Context, token string) (*models.Session, error) {
	s, ok := a.sessions[token]
	if !ok {
		return nil, errors.New("session not found")
	}
	return s, nil
}

func (a *fakeAuth) ResolveUser(_ context.Context, userID string) (*models.User, error) {
	u, ok := a.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

// Well-formed document ids for test fixtures.
const (
	testUserID   = "64b0c0ffee00000000000001"
	testUser2ID  = "64b0c0ffee00000000000002"
	testMailboxA = "64b0c0ffee0000000000000a"
	testMailboxB = "64b0c0ffee0000000000000b"
	testMailboxC = "64b0c0ffee0000000000000c"
)

func newTestAuth() *fakeAuth {
	return &fakeAuth{
		sessions: map[string]*models.Session{
			"T":  {ID: "64b0c0ffee000000000000f1", UserID: testUserID},
			"T2": {ID: "64b0c0ffee000000000000f2", UserID: testUser2ID},
		},
		users: map[string]*models.User{
			testUserID: {
				ID:        testUserID,
				Username:  "alice",
				Password:  "$2a$10$secret-hash",
				FirstName: "Alice",
				LastName:  "Atlas",
				Mailboxes: []string{testMailboxA, testMailboxB},
			},
			testUser2ID: {
				ID:        testUser2ID,
				Username:  "bob",
				Password:  "$2a$10$secret-hash",
				FirstName: "Bob",
				LastName:  "Atlas",
				Mailboxes: []string{testMailboxA},
			},
		},
	}
}

// newTestHub builds a hub on fakes and starts its run loop.
func newTestHub(t *testing.T) (*Hub, *fakeBroker) {
	t.Helper()

	bus := newFakeBroker()
	hub := NewHub(bus, newTestAuth(), nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub, bus
}

// connect wires a scripted connection into the hub.
func connect(t *testing.T, hub *Hub) (*Client, *mockConn) {
	t.Helper()

	conn := newMockConn()
	client := NewClient(hub, conn)
	hub.Serve(client)
	return client, conn
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// authenticateClient pushes an auth frame and waits for S:authSuccess.
func authenticateClient(t *testing.T, conn *mockConn, token string) {
	t.Helper()

	conn.pushText(`{"eventName":"auth","data":{"token":"` + token + `"}}`)
	if !waitUntil(t, time.Second, func() bool {
		for _, env := range conn.envelopes() {
			if env.EventName == EventAuthSuccess {
				return true
			}
		}
		return false
	}) {
		t.Fatalf("client never received %s; got %v", EventAuthSuccess, conn.envelopes())
	}
}
