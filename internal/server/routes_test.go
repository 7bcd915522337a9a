package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"mail-gateway/internal/broker"
	"mail-gateway/internal/gateway"
	"mail-gateway/internal/models"
)

// memoryBus records publishes and never delivers anything back.
type memoryBus struct {
	mu        sync.Mutex
	published []broker.Message
	inbound   chan broker.Message
}

func newMemoryBus() *memoryBus {
	return &memoryBus{inbound: make(chan broker.Message)}
}

func (b *memoryBus) Subscribe(ctx context.Context, channels ...string) error   { return nil }
func (b *memoryBus) Unsubscribe(ctx context.Context, channels ...string) error { return nil }

func (b *memoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, broker.Message{Channel: channel, Payload: payload})
	return nil
}

func (b *memoryBus) Messages() <-chan broker.Message { return b.inbound }
func (b *memoryBus) Close() error                    { return nil }

type noopAuth struct{}

func (noopAuth) ResolveSession(ctx context.Context, token string) (*models.Session, error) {
	return nil, errors.New("no sessions here")
}

func (noopAuth) ResolveUser(ctx context.Context, userID string) (*models.User, error) {
	return nil, errors.New("no users here")
}

func newTestRouter(t *testing.T) (*gin.Engine, *memoryBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := newMemoryBus()
	hub := gateway.NewHub(bus, noopAuth{}, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	router := gin.New()
	SetupRoutes(router, hub)
	return router, bus
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestInternalPublish(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		router, bus := newTestRouter(t)

		body, _ := json.Marshal(map[string]any{
			"channel":  "M:64b0c0ffee00000000000001",
			"envelope": gateway.NewEvent("mailReceived", map[string]any{"subject": "hi"}),
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/internal/publish", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body)
		}

		bus.mu.Lock()
		defer bus.mu.Unlock()
		if len(bus.published) != 1 {
			t.Fatalf("published %d messages, want 1", len(bus.published))
		}
		if got := bus.published[0].Channel; got != "M:64b0c0ffee00000000000001" {
			t.Errorf("channel = %q", got)
		}
	})

	t.Run("missing channel rejected", func(t *testing.T) {
		router, bus := newTestRouter(t)

		body, _ := json.Marshal(map[string]any{
			"envelope": gateway.NewEvent("mailReceived", nil),
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/internal/publish", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		bus.mu.Lock()
		defer bus.mu.Unlock()
		if len(bus.published) != 0 {
			t.Errorf("published %d messages, want 0", len(bus.published))
		}
	})
}
