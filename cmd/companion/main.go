package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/sunshine-watchface/internal/api/http"
	"github.com/i474232898/sunshine-watchface/internal/companion"
	"github.com/i474232898/sunshine-watchface/internal/config"
	"github.com/i474232898/sunshine-watchface/internal/scheduler"
	"github.com/i474232898/sunshine-watchface/internal/store"
	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/weather"
	"github.com/i474232898/sunshine-watchface/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.LoadCompanion()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	// In-memory store with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	// Providers with resilience (backoff + circuit breaker).
	var provs []weather.Provider
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	// Open-Meteo needs no key but only works with coordinates.
	if cfg.Location.Lat != nil && cfg.Location.Lon != nil {
		provs = append(provs, providers.NewOpenMeteoProvider(httpClient))
	}

	// Core service orchestrating providers and store.
	service := weather.NewService(memStore, provs)

	ch := syncchan.NewMQTTChannel(syncchan.MQTTConfig{
		BrokerURL:   cfg.Sync.BrokerURL,
		ClientID:    cfg.Sync.ClientID,
		TopicPrefix: cfg.Sync.TopicPrefix,
	})
	comp := companion.New(ch, service, cfg.Location, cfg.Reconnect)
	comp.Connect()
	defer comp.Close()

	// Scheduler that periodically fetches, stores and pushes to the watch.
	sched := scheduler.New(time.UTC, cfg.FetchInterval)
	if len(provs) == 0 {
		log.Println("INFO: no weather providers configured; use PUT /api/v1/weather to supply rows")
	} else {
		refresh := scheduler.RefreshJob([]weather.Location{cfg.Location}, service, func() {
			if _, err := comp.PushLatest(); err != nil && !errors.Is(err, syncchan.ErrNotConnected) {
				log.Printf("ERROR: push after refresh: %v", err)
			}
		})
		if err := sched.Every("weather-refresh", cfg.FetchInterval, refresh); err != nil {
			log.Fatalf("failed to schedule weather refresh: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "sunshine-companion",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "sunshine-companion",
			"connected": comp.Connected(),
		})
	})

	// API routes.
	httpapi.RegisterCompanionRoutes(app, service, comp, cfg.Location)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
