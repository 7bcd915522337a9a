package gateway

import (
	"context"
	"log/slog"
	"time"

	"mail-gateway/internal/models"
)

// authTimeout bounds the external session and user lookups for one attempt.
const authTimeout = 10 * time.Second

// Authenticator resolves an opaque token to an identity. Session issuance
// and verification live with an external collaborator; the gateway only
// consumes this pair of lookups.
type Authenticator interface {
	ResolveSession(ctx context.Context, token string) (*models.Session, error)
	ResolveUser(ctx context.Context, userID string) (*models.User, error)
}

// authenticate handles one auth frame from an unauthenticated connection:
// session lookup, then user lookup, then registry attach, failing fast at
// the first broken link. A nil return means the connection is authenticated
// and S:authSuccess has been queued.
//
// The returned EINVALID (missing token) is the one recoverable failure;
// every other error closes the connection.
func (h *Hub) authenticate(c *Client, env *Envelope) *WireError {
	token, _ := env.Data["token"].(string)
	if token == "" {
		return wireErr(ErrNameInvalid, "Missing data.")
	}

	authType := "session"
	if t, ok := env.Data["type"].(string); ok && t != "" {
		authType = t
	}
	switch authType {
	case "session":
	case "oauth":
		return wireErr(ErrNameNotImplemented, "oAuth authentication has not been implemented yet.")
	default:
		return wireErr(ErrNameAuth, "Unknown auth type.")
	}

	ctx, cancel := context.WithTimeout(h.ctx, authTimeout)
	defer cancel()

	session, err := h.auth.ResolveSession(ctx, token)
	if err != nil {
		slog.Debug("Session lookup failed", "clientID", c.id, "error", err)
		return wireErr(ErrNameAuth, "Authentication failed.")
	}

	user, err := h.auth.ResolveUser(ctx, session.UserID)
	if err != nil {
		slog.Debug("User lookup failed", "clientID", c.id, "userID", session.UserID, "error", err)
		return wireErr(ErrNameAuth, "Authentication failed.")
	}

	// Bind the user before attach so a close racing the attach still runs
	// a full detach.
	c.setAuthenticated(user.ID)
	if werr := h.registry.Attach(h.ctx, c, user.ID, user.Mailboxes); werr != nil {
		return werr
	}

	// User marshals without its credential field.
	c.Send(NewEvent(EventAuthSuccess, map[string]any{"user": user}))
	return nil
}
