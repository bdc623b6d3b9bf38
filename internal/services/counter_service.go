package services

import (
	"context"
	"log"

	"storefront-gateway/internal/bus"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/guest"
	"storefront-gateway/internal/models"
)

// CountersAPI is the slice of the upstream client the counter service
// needs.
type CountersAPI interface {
	GetCart(ctx context.Context, token string) (*models.Cart, error)
	WishlistCount(ctx context.Context, token string) (int, error)
}

// TokenSource yields the current bearer, empty when unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CounterService computes the badge counters (cart items, wishlist)
// shown by the UI shell. Upstream failures degrade to zero rather than
// blocking anything.
type CounterService struct {
	API     CountersAPI
	Session TokenSource
	Guest   *guest.Store
}

func NewCounterService(api CountersAPI, session TokenSource, guestStore *guest.Store) *CounterService {
	return &CounterService{
		API:     api,
		Session: session,
		Guest:   guestStore,
	}
}

// Start subscribes the service to logout events so counters reset
// when the session ends. Returns a disposer.
func (s *CounterService) Start(b *bus.Bus) func() {
	return b.Subscribe(bus.EventLogoutCompleted, func(payload interface{}) {
		if p, ok := payload.(bus.LogoutCompleted); ok && !p.ResetCounters {
			return
		}
		s.Reset(context.Background())
	})
}

// Refresh recomputes the counters from the authoritative sources and
// caches the result.
func (s *CounterService) Refresh(ctx context.Context) models.Counters {
	counters := models.Counters{}

	token, err := s.Session.Token(ctx)
	if err != nil {
		log.Printf("[Counters] failed to read token: %v", err)
	}

	if token == "" {
		if count, err := s.Guest.ItemCount(); err == nil {
			counters.CartItems = count
		}
		cache.SetCounters(ctx, counters)
		return counters
	}

	if cart, err := s.API.GetCart(ctx, token); err != nil {
		log.Printf("[Counters] cart count unavailable, defaulting to 0: %v", err)
	} else {
		counters.CartItems = cart.TotalItems
	}

	if count, err := s.API.WishlistCount(ctx, token); err != nil {
		log.Printf("[Counters] wishlist count unavailable, defaulting to 0: %v", err)
	} else {
		counters.Wishlist = count
	}

	cache.SetCounters(ctx, counters)
	return counters
}

// Get returns the cached counters, recomputing on a miss.
func (s *CounterService) Get(ctx context.Context) models.Counters {
	if counters, ok := cache.GetCounters(ctx); ok {
		return counters
	}
	return s.Refresh(ctx)
}

// Reset zeroes the counters, used on logout.
func (s *CounterService) Reset(ctx context.Context) {
	cache.SetCounters(ctx, models.Counters{})
}
