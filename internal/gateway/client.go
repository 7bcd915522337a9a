package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from peer; inbound traffic is only the
	// auth frame, so this stays small
	maxMessageSize = 4096
)

// Conn is the subset of *websocket.Conn the client drives. Tests substitute
// a scripted implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one live socket. It starts unauthenticated; a successful auth
// handshake binds it to a user and attaches it to the registry.
type Client struct {
	id   string
	hub  *Hub
	conn Conn
	send chan []byte

	// sendMu serializes queueing on send with the close of send, so the
	// channel can never be closed between a sendClosed check and the send.
	sendMu sync.Mutex

	// Written once by setAuthenticated before authed flips to 1; read
	// through UserID, which gates on the flag.
	userID string

	authed     int32
	closed     int32
	sendClosed int32

	wg sync.WaitGroup
}

// NewClient wraps an accepted connection. The caller must register it with
// the hub and start the pumps.
func NewClient(hub *Hub, conn Conn) *Client {
	return &Client{
		id:   uuid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
}

func (c *Client) ID() string {
	return c.id
}

// UserID returns the owning user id, or "" before authentication.
func (c *Client) UserID() string {
	if !c.authenticated() {
		return ""
	}
	return c.userID
}

func (c *Client) authenticated() bool {
	return atomic.LoadInt32(&c.authed) == 1
}

func (c *Client) setAuthenticated(userID string) {
	c.userID = userID
	atomic.StoreInt32(&c.authed, 1)
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	atomic.CompareAndSwapInt32(&c.closed, 0, 1)
}

// closeSend stops accepting outbound envelopes. The write pump drains what
// is already queued, emits a close frame and closes the connection.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.closeSendLocked()
}

// closeSendLocked closes the send queue. Caller holds sendMu.
func (c *Client) closeSendLocked() {
	if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
		close(c.send)
	}
}

// Send queues an envelope for delivery. A full buffer means the peer stopped
// reading; the connection is torn down rather than blocking the sender.
func (c *Client) Send(env *Envelope) error {
	return c.sendRaw(env.Encode())
}

// sendRaw queues pre-encoded bytes, preserving broker framing verbatim.
func (c *Client) sendRaw(data []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if atomic.LoadInt32(&c.sendClosed) == 1 {
		return ErrClientDisconnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("Send buffer full, closing client", "clientID", c.id, "userID", c.UserID())
		c.closeSendLocked()
		return ErrClientDisconnected
	}
}

// fail reports a fatal protocol error and shuts the connection down. The
// error envelope is flushed before the close frame.
func (c *Client) fail(werr *WireError) {
	c.sendRaw(NewError(werr).Encode())
	c.closeSend()
}

func (c *Client) readPump() {
	defer func() {
		c.wg.Done()
		c.close()
		c.closeSend()

		// Cleanup is not cancellable: the hub must always run detach so
		// subscriptions cannot leak. Only a full hub shutdown skips it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}

		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "clientID", c.id, "userID", c.UserID(), "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.UserID(), "error", err)
			}
			return
		}

		env, werr := decodeFrame(messageType, data)
		if werr != nil {
			c.fail(werr)
			return
		}

		if c.authenticated() {
			// Server-push protocol: nothing is expected from the client
			// after the handshake.
			slog.Debug("Ignoring post-auth frame", "clientID", c.id, "userID", c.UserID(), "eventName", env.EventName)
			continue
		}

		if env.EventName != EventAuth {
			c.fail(wireErr(ErrNameNoAuth, "Not accepting events before authentication."))
			return
		}

		if werr := c.hub.authenticate(c, env); werr != nil {
			if werr.Name == ErrNameInvalid {
				// Missing token is recoverable, the client may resend.
				c.Send(NewError(werr))
				continue
			}
			c.fail(werr)
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Queue drained after closeSend: say goodbye and unblock
				// the read pump.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.conn.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "userID", c.UserID(), "error", err)
				c.conn.Close()
				return
			}

		case <-ticker.C:
			if c.isClosed() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "userID", c.UserID(), "error", err)
				c.conn.Close()
				return
			}
		}
	}
}

// waitForPumps blocks until both pumps have exited or the timeout elapses.
func (c *Client) waitForPumps(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for client pumps", "clientID", c.id, "userID", c.UserID())
	}
}
