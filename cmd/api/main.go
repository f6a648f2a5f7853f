// Package main provides the entrypoint for the GoldWatch API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/goldwatch/goldwatch/internal/api"
	"github.com/goldwatch/goldwatch/internal/goldprice"
	"github.com/goldwatch/goldwatch/internal/goldprice/goldpriceorg"
	"github.com/goldwatch/goldwatch/internal/provider/resilience"
	"github.com/goldwatch/goldwatch/internal/push"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "goldwatch-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting GoldWatch API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	subscriptionsPath := os.Getenv("PUSH_SUBSCRIPTIONS_PATH")
	if subscriptionsPath == "" {
		subscriptionsPath = "storage/push-subscriptions.json"
	}

	notifyInterval := push.DefaultNotifyInterval
	if raw := os.Getenv("PUSH_NOTIFY_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			log.Warn().Str("value", raw).Msg("invalid PUSH_NOTIFY_INTERVAL, using default")
		} else {
			notifyInterval = parsed
		}
	}

	// Initialize the subscription registry
	store := push.NewStore(push.StoreConfig{
		Path:   subscriptionsPath,
		Logger: log,
	})
	log.Info().
		Str("path", subscriptionsPath).
		Int("subscriptions", store.Len()).
		Msg("subscription registry loaded")

	// Initialize the upstream price feed client behind the resilience wrapper
	feedClient := goldpriceorg.NewClient(goldpriceorg.ClientConfig{
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig(goldpriceorg.ProviderName)),
		Logger:     log,
	})

	priceService := goldprice.NewService(goldprice.ServiceConfig{
		Client: feedClient,
		Logger: log,
	})
	log.Info().Msg("price service initialized")

	// Initialize the push delivery service
	pushService := push.NewService(push.ServiceConfig{
		Store:    store,
		Prices:   priceService,
		Logger:   log,
		Interval: notifyInterval,
	})
	if pushService.Enabled() {
		log.Info().
			Dur("interval", pushService.Interval()).
			Msg("push delivery configured")
	} else {
		log.Warn().Msg("VAPID keys not configured - push delivery disabled")
	}

	// Start the delivery scheduler
	pushService.Start()

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		PriceService: priceService,
		PushService:  pushService,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop the scheduler and flush the registry
	pushService.Stop()

	log.Info().Msg("server stopped")
}
