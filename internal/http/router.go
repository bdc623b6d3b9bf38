package http

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-gateway/internal/events"
	"storefront-gateway/internal/handlers"
	"storefront-gateway/internal/middleware"
)

func NewRouter(
	authHandler *handlers.AuthHandler,
	cartHandler *handlers.CartHandler,
	countersHandler *handlers.CountersHandler,
	monitoringHandler *handlers.MonitoringHandler,
	healthHandler *handlers.HealthHandler,
	eventsHub *events.Hub,
	sessionGuard *middleware.SessionGuard,
) *mux.Router {
	r := mux.NewRouter()

	// Phone challenge flow
	r.HandleFunc("/api/auth/phone/send-code", authHandler.SendCode).Methods("POST")
	r.HandleFunc("/api/auth/phone/verify-code", authHandler.VerifyCode).Methods("POST")
	r.HandleFunc("/api/auth/phone/challenge", authHandler.ChallengeStatus).Methods("GET")
	r.HandleFunc("/api/auth/phone/challenge", authHandler.ResetChallenge).Methods("DELETE")

	// Credential login and session
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/logout", authHandler.Logout).Methods("POST")
	r.HandleFunc("/api/auth/session", authHandler.SessionInfo).Methods("GET")

	// Cart (guest-local before login, account cart after)
	r.HandleFunc("/api/cart", cartHandler.GetCart).Methods("GET")
	r.HandleFunc("/api/cart", cartHandler.ClearCart).Methods("DELETE")
	r.HandleFunc("/api/cart/items", cartHandler.AddItem).Methods("POST")
	r.HandleFunc("/api/cart/items/{productId}", cartHandler.UpdateItem).Methods("PUT")
	r.HandleFunc("/api/cart/items/{productId}", cartHandler.RemoveItem).Methods("DELETE")

	// Header badge counters
	r.HandleFunc("/api/counters", countersHandler.GetCounters).Methods("GET")
	r.HandleFunc("/api/counters/refresh", countersHandler.RefreshCounters).Methods("POST")

	// Protected account routes
	accountAPI := r.PathPrefix("/api/account").Subrouter()
	accountAPI.Use(sessionGuard.Require)
	accountAPI.HandleFunc("/profile", authHandler.Profile).Methods("GET")

	// Identity event stream for open UI surfaces
	r.HandleFunc("/ws/events", eventsHub.HandleWS)

	// Monitoring
	r.HandleFunc("/api/monitoring/stats", monitoringHandler.GetStats).Methods("GET")
	r.HandleFunc("/api/monitoring/alerts", monitoringHandler.GetAlerts).Methods("GET")

	// Health endpoints (no auth required - for probes)
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")

	// Metrics endpoint (Prometheus format)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
