package handlers

import (
	"net/http"

	"storefront-gateway/internal/services"
	"storefront-gateway/pkg/utils"
)

type CountersHandler struct {
	Service *services.CounterService
}

func NewCountersHandler(svc *services.CounterService) *CountersHandler {
	return &CountersHandler{Service: svc}
}

// GetCounters returns the badge counters for the header UI.
func (h *CountersHandler) GetCounters(w http.ResponseWriter, r *http.Request) {
	counters := h.Service.Get(r.Context())
	utils.JSON(w, http.StatusOK, counters)
}

// RefreshCounters forces a recompute, bypassing the cached view.
func (h *CountersHandler) RefreshCounters(w http.ResponseWriter, r *http.Request) {
	counters := h.Service.Refresh(r.Context())
	utils.JSON(w, http.StatusOK, counters)
}
