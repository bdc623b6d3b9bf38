package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-gateway/internal/models"
)

// Cached view keys
const (
	CartViewKey = "view:cart"
	CountersKey = "view:counters"

	cartTTL     = 10 * time.Minute
	countersTTL = 10 * time.Minute
)

var client *redis.Client

// Init connects the cache. The gateway degrades gracefully without it:
// a nil client turns every operation into a no-op.
func Init(addr, password string) error {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return err
	}
	client = c
	return nil
}

// GetClient returns the Redis client, nil when the cache is disabled.
func GetClient() *redis.Client {
	return client
}

// SetCachedCart stores the authoritative cart view.
func SetCachedCart(ctx context.Context, cart *models.Cart) {
	if client == nil || cart == nil {
		return
	}
	raw, err := json.Marshal(cart)
	if err != nil {
		return
	}
	client.Set(ctx, CartViewKey, raw, cartTTL)
}

// GetCachedCart returns the cached cart view if present.
func GetCachedCart(ctx context.Context) (*models.Cart, bool) {
	if client == nil {
		return nil, false
	}
	raw, err := client.Get(ctx, CartViewKey).Bytes()
	if err != nil {
		return nil, false
	}
	cart := &models.Cart{}
	if err := json.Unmarshal(raw, cart); err != nil {
		return nil, false
	}
	return cart, true
}

// InvalidateCart drops the cached cart view so the next read fetches
// the authoritative state.
func InvalidateCart(ctx context.Context) {
	if client == nil {
		return
	}
	client.Del(ctx, CartViewKey)
}

// SetCounters caches the badge counters.
func SetCounters(ctx context.Context, counters models.Counters) {
	if client == nil {
		return
	}
	raw, err := json.Marshal(counters)
	if err != nil {
		return
	}
	client.Set(ctx, CountersKey, raw, countersTTL)
}

// GetCounters returns the cached badge counters if present.
func GetCounters(ctx context.Context) (models.Counters, bool) {
	if client == nil {
		return models.Counters{}, false
	}
	raw, err := client.Get(ctx, CountersKey).Bytes()
	if err != nil {
		return models.Counters{}, false
	}
	var c models.Counters
	if err := json.Unmarshal(raw, &c); err != nil {
		return models.Counters{}, false
	}
	return c, true
}

// InvalidateCounters drops the cached badge counters.
func InvalidateCounters(ctx context.Context) {
	if client == nil {
		return
	}
	client.Del(ctx, CountersKey)
}
