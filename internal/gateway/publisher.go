package gateway

import (
	"context"
	"log/slog"
)

// Publish announces a domain event on a broker channel. This is the
// fire-and-forget surface the REST and SMTP layers call whenever a domain
// mutation happens; delivery to local sockets always takes the broker path,
// never a shortcut, so ordering holds across gateway instances.
func (h *Hub) Publish(ctx context.Context, channel string, env *Envelope) error {
	payload := env.Encode()

	if h.audit != nil {
		if err := h.audit.Record(channel, payload); err != nil {
			slog.Warn("Audit record failed", "channel", channel, "error", err)
		}
	}

	return h.broker.Publish(ctx, channel, payload)
}
