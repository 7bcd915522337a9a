package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The gateway authenticates on the first frame, not on the
		// upgrade; cross-origin pages cannot get past the handshake.
		return true
	},
}

// ServeWS upgrades an HTTP request and runs the connection's pumps. The
// S:responsive greeting is queued before anything else so clients know the
// socket is live ahead of authenticating.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := NewClient(hub, conn)
	hub.Serve(client)
}

// Serve registers a wrapped connection and starts its pumps. Split from
// ServeWS so tests can drive scripted connections.
func (h *Hub) Serve(client *Client) {
	select {
	case h.register <- client:
	case <-time.After(5 * time.Second):
		slog.Error("Timeout registering client", "clientID", client.id)
		client.conn.Close()
		return
	case <-h.ctx.Done():
		client.conn.Close()
		return
	}

	client.Send(NewEvent(EventResponsive, nil))

	client.wg.Add(2)
	go client.writePump()
	go client.readPump()

	slog.Debug("Connection accepted", "clientID", client.id)
}
