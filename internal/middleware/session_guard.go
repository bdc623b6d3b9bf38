package middleware

import (
	"context"
	"net/http"

	"storefront-gateway/internal/bus"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/models"
	"storefront-gateway/pkg/utils"
)

type contextKey string

const UserKey contextKey = "user"

// SessionSource exposes the current account session.
type SessionSource interface {
	Current() *models.AccountSession
}

// SessionGuard protects account-scoped local routes. A request with
// no session is answered 401 and a login-required event is published
// so the UI can prompt without navigating away.
type SessionGuard struct {
	session SessionSource
	bus     *bus.Bus
}

func NewSessionGuard(session SessionSource, b *bus.Bus) *SessionGuard {
	return &SessionGuard{session: session, bus: b}
}

// Require rejects unauthenticated requests.
func (g *SessionGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := g.session.Current()
		if cur == nil {
			metrics.EventsPublished.WithLabelValues(bus.EventLoginRequired).Inc()
			g.bus.Publish(bus.EventLoginRequired, bus.LoginRequired{
				Message:     "Please log in to continue",
				RedirectURL: r.URL.Path,
			})
			utils.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, cur.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext extracts the authenticated user set by Require.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok
}
