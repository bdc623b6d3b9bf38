package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-gateway/internal/api"
	"storefront-gateway/internal/bus"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/captcha"
	"storefront-gateway/internal/cartsync"
	"storefront-gateway/internal/config"
	"storefront-gateway/internal/events"
	"storefront-gateway/internal/guest"
	"storefront-gateway/internal/handlers"
	"storefront-gateway/internal/health"
	h "storefront-gateway/internal/http"
	"storefront-gateway/internal/middleware"
	"storefront-gateway/internal/monitoring"
	"storefront-gateway/internal/otp"
	"storefront-gateway/internal/services"
	"storefront-gateway/internal/session"
	"storefront-gateway/internal/storage"
)

func newStore(cfg *config.Config) storage.Store {
	if cfg.Redis.Enabled && cache.GetClient() != nil {
		log.Println("[Storage] Using Redis-backed profile store")
		return storage.NewRedisStore(cache.GetClient())
	}

	store, err := storage.NewFileStore(cfg.Storage.ProfilePath)
	if err != nil {
		log.Fatalf("Failed to open profile store: %v", err)
	}
	log.Printf("[Storage] Using file-backed profile store at %s", cfg.Storage.ProfilePath)
	return store
}

func main() {
	port := flag.Int("port", 0, "Server port (overrides config)")
	flag.Parse()

	cfg := config.Load()
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// Redis cache is optional - graceful fallback if unavailable
	if err := cache.Init(cfg.Redis.Addr, cfg.Redis.Password); err != nil {
		log.Printf("[Redis] Cache unavailable: %v (cart views will always hit upstream)", err)
	} else {
		log.Println("[Redis] Cache connected successfully")
	}

	store := newStore(cfg)
	eventBus := bus.New()

	apiClient := api.NewClient(cfg.Upstream.BaseURL, cfg.UpstreamTimeout())

	var verifier captcha.Verifier
	if cfg.Captcha.Endpoint != "" {
		verifier = captcha.NewHTTPVerifier(cfg.Captcha.Endpoint, cfg.Captcha.SiteKey, cfg.Captcha.Secret)
	} else {
		verifier = captcha.Static(os.Getenv("CAPTCHA_STATIC_TOKEN"))
	}

	guestStore := guest.NewStore(store)
	sessionStore := session.NewStore(store, eventBus, apiClient)
	sessionStore.Hydrate()

	machine := otp.NewMachine(apiClient, verifier, store, otp.Config{
		Expiry:      cfg.OTPExpiry(),
		WarningLead: cfg.OTPWarningLead(),
	})
	if remaining, err := machine.RestoreOnLoad(); err != nil {
		log.Printf("[OTP] Failed to restore challenge: %v", err)
	} else if remaining > 0 {
		log.Printf("[OTP] Restored pending challenge, %ds remaining", remaining)
	}

	counterService := services.NewCounterService(apiClient, sessionStore, guestStore)
	counterService.Start(eventBus)

	monitor := monitoring.NewMonitor()

	coordinator := cartsync.NewCoordinator(apiClient, guestStore, sessionStore, counterService, cfg.SettleDelay())
	coordinator.Alerts = monitor
	coordinator.Start(eventBus)

	eventsHub := events.NewHub()
	eventsHub.Start(eventBus)
	defer eventsHub.Close()

	healthChecker := health.NewHealthChecker(apiClient, store)

	authHandler := handlers.NewAuthHandler(machine, sessionStore, apiClient)
	cartHandler := handlers.NewCartHandler(guestStore, sessionStore, apiClient)
	countersHandler := handlers.NewCountersHandler(counterService)
	monitoringHandler := handlers.NewMonitoringHandler(monitor)
	healthHandler := handlers.NewHealthHandler(healthChecker)
	sessionGuard := middleware.NewSessionGuard(sessionStore, eventBus)

	router := h.NewRouter(
		authHandler,
		cartHandler,
		countersHandler,
		monitoringHandler,
		healthHandler,
		eventsHub,
		sessionGuard,
	)

	corsMiddleware := middleware.NewCORS(cfg)
	handler := middleware.PanicRecovery(middleware.MetricsMiddleware(corsMiddleware(router)))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("Gateway running on %s (upstream: %s)", addr, cfg.Upstream.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}
