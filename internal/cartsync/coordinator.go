package cartsync

import (
	"context"
	"errors"
	"log"
	"time"

	"storefront-gateway/internal/bus"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/guest"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/models"
)

// ErrMergeVerificationFailed means the guest cart was non-empty but
// the authoritative cart came back empty after the merge and its one
// retry. Non-fatal: the login stands, the user keeps their identity.
var ErrMergeVerificationFailed = errors.New("cart merge verification failed")

// CartAPI is the slice of the upstream client the coordinator needs.
type CartAPI interface {
	MergeCart(ctx context.Context, token, guestSessionID string) (*models.Cart, error)
	GetCart(ctx context.Context, token string) (*models.Cart, error)
}

// TokenSource yields the current bearer, empty when unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CounterRefresher recomputes the badge counters.
type CounterRefresher interface {
	Refresh(ctx context.Context) models.Counters
}

// AlertSink receives operator-visible warnings.
type AlertSink interface {
	AddAlert(severity, kind, message string)
}

// Coordinator folds the guest cart into the account's server-side
// cart when a login completes, verifies the merge landed, and retries
// once. The upstream merge is handled by an async worker, so a settle
// delay separates the merge call from its verification fetch.
type Coordinator struct {
	API         CartAPI
	Guest       *guest.Store
	Session     TokenSource
	Counters    CounterRefresher
	Alerts      AlertSink
	SettleDelay time.Duration

	sleep func(time.Duration)
}

func NewCoordinator(api CartAPI, guestStore *guest.Store, session TokenSource, counters CounterRefresher, settleDelay time.Duration) *Coordinator {
	return &Coordinator{
		API:         api,
		Guest:       guestStore,
		Session:     session,
		Counters:    counters,
		SettleDelay: settleDelay,
		sleep:       time.Sleep,
	}
}

// Start subscribes the coordinator to login-completed. The handler
// runs synchronously inside the publish so the merge finishes before
// the login flow moves on to anything that reads cart totals.
func (c *Coordinator) Start(b *bus.Bus) func() {
	return b.Subscribe(bus.EventLoginCompleted, func(interface{}) {
		if err := c.Reconcile(context.Background()); err != nil {
			log.Printf("[CartSync] reconciliation incomplete: %v", err)
		}
	})
}

// Reconcile performs the snapshot, merge, verify, bounded retry, cache
// refresh and counter refresh sequence. Network failures are logged
// and swallowed: the account session is already committed and must
// not be rolled back. Only a verification failure after the retry is
// reported, and even that is advisory.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	token, err := c.Session.Token(ctx)
	if err != nil {
		log.Printf("[CartSync] failed to read token: %v", err)
		return nil
	}
	if token == "" {
		return nil
	}

	// Snapshot before any server call: the merge endpoint may consume
	// the guest session server-side as a side effect.
	guestItems, err := c.Guest.Cart()
	if err != nil {
		log.Printf("[CartSync] failed to snapshot guest cart: %v", err)
		guestItems = nil
	}
	countBefore := models.CountItems(guestItems)
	guestSessionID, _ := c.Guest.SessionID()

	metrics.CartMergesTotal.Inc()
	merged, err := c.API.MergeCart(ctx, token, guestSessionID)
	if err != nil {
		log.Printf("[CartSync] merge failed: %v", err)
		cache.InvalidateCart(ctx)
		c.refreshCounters(ctx)
		return nil
	}

	c.sleep(c.SettleDelay)

	verified, err := c.API.GetCart(ctx, token)
	if err != nil {
		log.Printf("[CartSync] verification fetch failed, using merge response: %v", err)
		verified = merged
	}

	failed := false
	if countBefore > 0 && verified.IsEmpty() {
		// One retry, never a loop.
		metrics.CartMergeRetries.Inc()
		log.Printf("[CartSync] merged cart empty with %d guest items pending, retrying merge once", countBefore)

		if retried, err := c.API.MergeCart(ctx, token, guestSessionID); err != nil {
			log.Printf("[CartSync] merge retry failed: %v", err)
		} else {
			verified = retried
		}

		c.sleep(c.SettleDelay)

		if refetched, err := c.API.GetCart(ctx, token); err != nil {
			log.Printf("[CartSync] retry verification fetch failed: %v", err)
		} else {
			verified = refetched
		}

		if verified.IsEmpty() {
			failed = true
			metrics.CartMergeFailures.Inc()
			log.Printf("[CartSync] %v: %d guest items did not land, giving up", ErrMergeVerificationFailed, countBefore)
			if c.Alerts != nil {
				c.Alerts.AddAlert("warning", "cart-merge", "guest cart items were not reflected after merge and retry")
			}
		}
	}

	if failed {
		cache.InvalidateCart(ctx)
	} else {
		cache.SetCachedCart(ctx, verified)
		// The guest session is inert only after a verified migration.
		if err := c.Guest.Destroy(); err != nil {
			log.Printf("[CartSync] failed to clear guest session: %v", err)
		}
	}

	// Badge counts must reflect the merged state, never pre-merge.
	c.refreshCounters(ctx)

	if failed {
		return ErrMergeVerificationFailed
	}
	return nil
}

func (c *Coordinator) refreshCounters(ctx context.Context) {
	if c.Counters != nil {
		c.Counters.Refresh(ctx)
	}
}
