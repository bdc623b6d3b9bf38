package handlers

import (
	"net/http"

	"storefront-gateway/internal/monitoring"
	"storefront-gateway/pkg/utils"
)

type MonitoringHandler struct {
	Monitor *monitoring.Monitor
}

func NewMonitoringHandler(monitor *monitoring.Monitor) *MonitoringHandler {
	return &MonitoringHandler{Monitor: monitor}
}

func (h *MonitoringHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, h.Monitor.CollectStats())
}

func (h *MonitoringHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, h.Monitor.Alerts())
}
