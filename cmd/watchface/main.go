package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/sunshine-watchface/internal/api/http"
	"github.com/i474232898/sunshine-watchface/internal/config"
	"github.com/i474232898/sunshine-watchface/internal/render"
	"github.com/i474232898/sunshine-watchface/internal/resilience"
	"github.com/i474232898/sunshine-watchface/internal/scheduler"
	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/watch"
)

func main() {
	// Load configuration.
	cfg, err := config.LoadWatch()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ch := syncchan.NewMQTTChannel(syncchan.MQTTConfig{
		BrokerURL:   cfg.Sync.BrokerURL,
		ClientID:    cfg.Sync.ClientID,
		TopicPrefix: cfg.Sync.TopicPrefix,
	})

	// The "display" is the log: one line per minute and on every weather change.
	var lastLine string
	sink := watch.FrameSinkFunc(func(f render.Frame) {
		line := f.Hour + ":" + f.Minute + " " + f.Date + " " + f.High + "/" + f.Low + " " + string(f.Condition)
		if line == lastLine {
			return
		}
		lastLine = line
		log.Printf("DEBUG: face: %s", line)
	})

	engine := watch.NewEngine(ch, sink, watch.Options{
		TickPeriod: cfg.TickPeriod,
		Render: render.Options{
			Use24Hour: cfg.Use24Hour,
			Location:  cfg.TimeZone,
		},
	})

	// Retries live outside the engine; the lifecycle only reports.
	retry := resilience.NewReconnector("watch-sync", cfg.Reconnect, engine.Reconnect)
	engine.Observe(func(t watch.Transition) {
		switch t.To.State {
		case watch.Failed, watch.Suspended:
			retry.Lost(t.To.Reason)
		case watch.Connected:
			retry.Connected()
		case watch.Disconnected:
			retry.Reset()
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := engine.Run(ctx); err != nil {
			log.Printf("ERROR: engine stopped: %v", err)
		}
	}()

	// The host's minute tick, aligned to wall-clock minutes.
	sched := scheduler.New(cfg.TimeZone, 0)
	if err := sched.EveryMinute("time-tick", func(context.Context) { engine.TimeTick() }); err != nil {
		log.Fatalf("failed to schedule time tick: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// A headless face is visible from the start.
	engine.SetVisible(true)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "sunshine-watchface",
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
			"status":     "ok",
			"service":    "sunshine-watchface",
			"connection": engine.Status().String(),
		})
	})

	// API routes.
	httpapi.RegisterWatchRoutes(app, engine)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	retry.Reset()
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
