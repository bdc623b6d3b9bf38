package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront-gateway/internal/bus"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/storage"
)

// refreshLeeway is how close to expiry a bearer may get before it is
// refreshed instead of handed out.
const refreshLeeway = 30 * time.Second

// RefreshAPI mints a new bearer from a refresh credential.
type RefreshAPI interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// Store holds the authenticated identity. The user and bearer are set
// and cleared together; Current never returns a partial pair.
type Store struct {
	mu      sync.Mutex
	storage storage.Store
	bus     *bus.Bus
	api     RefreshAPI

	user         *models.User
	token        string
	refreshToken string
}

func NewStore(st storage.Store, b *bus.Bus, refreshAPI RefreshAPI) *Store {
	return &Store{storage: st, bus: b, api: refreshAPI}
}

// Hydrate restores a previously persisted session so a restart does
// not immediately deauthenticate the user. The restore is soft: it is
// not validated against the server until the next authorized call
// fails. Nothing is restored unless both user and token are present.
func (s *Store) Hydrate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &models.User{}
	userFound, err := storage.GetJSON(s.storage, storage.KeyUser, user)
	if err != nil {
		log.Printf("[Session] failed to read persisted user: %v", err)
		return
	}

	var token string
	tokenFound, err := storage.GetJSON(s.storage, storage.KeyAuthToken, &token)
	if err != nil {
		log.Printf("[Session] failed to read persisted token: %v", err)
		return
	}

	if !userFound || !tokenFound || token == "" {
		// A half-written session would look authenticated with no
		// valid credential. Drop whichever half exists.
		if userFound || tokenFound {
			log.Printf("[Session] discarding partial persisted session")
			s.clearStorageLocked()
		}
		return
	}

	s.user = user
	s.token = token
	if _, err := storage.GetJSON(s.storage, storage.KeyRefreshToken, &s.refreshToken); err != nil {
		log.Printf("[Session] failed to read persisted refresh token: %v", err)
	}
	log.Printf("[Session] restored session for user %s", user.ID)
}

// Adopt commits the authenticated pair atomically, persists it, and
// publishes login-completed. Subscribers observe a fully queryable
// session.
func (s *Store) Adopt(user *models.User, tokens models.TokenPair) error {
	if user == nil || tokens.IDToken == "" {
		return fmt.Errorf("user and token must both be present")
	}

	s.mu.Lock()
	s.user = user
	s.token = tokens.IDToken
	s.refreshToken = tokens.RefreshToken

	if err := storage.SetJSON(s.storage, storage.KeyUser, user); err != nil {
		log.Printf("[Session] failed to persist user: %v", err)
	}
	if err := storage.SetJSON(s.storage, storage.KeyAuthToken, tokens.IDToken); err != nil {
		log.Printf("[Session] failed to persist token: %v", err)
	}
	if tokens.RefreshToken != "" {
		if err := storage.SetJSON(s.storage, storage.KeyRefreshToken, tokens.RefreshToken); err != nil {
			log.Printf("[Session] failed to persist refresh token: %v", err)
		}
	}
	if user.Role != nil {
		if err := storage.SetJSON(s.storage, storage.KeyUserRole, *user.Role); err != nil {
			log.Printf("[Session] failed to persist role: %v", err)
		}
	}
	s.mu.Unlock()

	metrics.EventsPublished.WithLabelValues(bus.EventLoginCompleted).Inc()
	s.bus.Publish(bus.EventLoginCompleted, bus.LoginCompleted{User: user})
	return nil
}

// Clear drops the session and publishes logout-completed.
func (s *Store) Clear() {
	s.mu.Lock()
	had := s.user != nil
	s.user = nil
	s.token = ""
	s.refreshToken = ""
	s.clearStorageLocked()
	s.mu.Unlock()

	if had {
		metrics.EventsPublished.WithLabelValues(bus.EventLogoutCompleted).Inc()
		s.bus.Publish(bus.EventLogoutCompleted, bus.LogoutCompleted{ResetCounters: true})
	}
}

// Current returns the session pair, or nil when unauthenticated.
func (s *Store) Current() *models.AccountSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil || s.token == "" {
		return nil
	}
	return &models.AccountSession{User: s.user, Token: s.token}
}

// Token returns a fresh bearer, refreshing it through the identity
// provider when the held one is stale. Empty string means
// unauthenticated; call sites must treat that as such.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	token := s.token
	refresh := s.refreshToken
	s.mu.Unlock()

	if token == "" {
		return "", nil
	}
	if !tokenStale(token) || refresh == "" {
		return token, nil
	}

	pair, err := s.api.Refresh(ctx, refresh)
	if err != nil {
		// Hand out the stale bearer and let the authorized call fail
		// if the server agrees it is dead.
		log.Printf("[Session] token refresh failed: %v", err)
		return token, nil
	}

	s.mu.Lock()
	s.token = pair.IDToken
	if pair.RefreshToken != "" {
		s.refreshToken = pair.RefreshToken
	}
	if err := storage.SetJSON(s.storage, storage.KeyAuthToken, s.token); err != nil {
		log.Printf("[Session] failed to persist refreshed token: %v", err)
	}
	if pair.RefreshToken != "" {
		if err := storage.SetJSON(s.storage, storage.KeyRefreshToken, s.refreshToken); err != nil {
			log.Printf("[Session] failed to persist refresh token: %v", err)
		}
	}
	token = s.token
	s.mu.Unlock()

	log.Printf("[Session] bearer token refreshed")
	return token, nil
}

func (s *Store) clearStorageLocked() {
	s.storage.Delete(storage.KeyUser)
	s.storage.Delete(storage.KeyAuthToken)
	s.storage.Delete(storage.KeyRefreshToken)
	s.storage.Delete(storage.KeyUserRole)
}

// tokenStale inspects the bearer's exp claim without verifying the
// signature; the gateway has no signing key and the server remains
// authoritative. Tokens that cannot be parsed are treated as fresh
// and left for the server to reject.
func tokenStale(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < refreshLeeway
}
