package health

import (
	"context"
	"time"

	"storefront-gateway/internal/storage"
)

// Pinger reports round-trip latency to the storefront platform.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

type HealthChecker struct {
	upstream Pinger
	store    storage.Store
}

type HealthStatus struct {
	Status   string         `json:"status"`
	Upstream UpstreamHealth `json:"upstream"`
	Storage  StorageHealth  `json:"storage"`
}

type UpstreamHealth struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

type StorageHealth struct {
	Status string `json:"status"`
}

func NewHealthChecker(upstream Pinger, store storage.Store) *HealthChecker {
	return &HealthChecker{upstream: upstream, store: store}
}

func (h *HealthChecker) CheckBasic() HealthStatus {
	upstreamHealth := h.checkUpstream()
	storageHealth := h.checkStorage()

	status := "healthy"
	if upstreamHealth.Status != "healthy" || storageHealth.Status != "healthy" {
		status = "unhealthy"
	}

	return HealthStatus{
		Status:   status,
		Upstream: upstreamHealth,
		Storage:  storageHealth,
	}
}

func (h *HealthChecker) checkUpstream() UpstreamHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rtt, err := h.upstream.Ping(ctx)
	if err != nil {
		return UpstreamHealth{
			Status:       "unhealthy",
			ResponseTime: rtt.Milliseconds(),
		}
	}

	return UpstreamHealth{
		Status:       "healthy",
		ResponseTime: rtt.Milliseconds(),
	}
}

func (h *HealthChecker) checkStorage() StorageHealth {
	if _, _, err := h.store.Get(storage.KeyGuestSession); err != nil {
		return StorageHealth{Status: "unhealthy"}
	}
	return StorageHealth{Status: "healthy"}
}
