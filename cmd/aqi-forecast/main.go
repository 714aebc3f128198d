package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/aqi-forecast/internal/api/http"
	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/aqi/providers"
	"github.com/i474232898/aqi-forecast/internal/cache"
	"github.com/i474232898/aqi-forecast/internal/config"
	"github.com/i474232898/aqi-forecast/internal/forecast"
	"github.com/i474232898/aqi-forecast/internal/model"
	"github.com/i474232898/aqi-forecast/internal/registry"
	"github.com/i474232898/aqi-forecast/internal/scheduler"
	"github.com/i474232898/aqi-forecast/internal/store"
	"github.com/i474232898/aqi-forecast/internal/training"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration; missing secrets stop the process here.
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	auth, err := registry.ResolveAuth(cfg.RegistrySessionFile, cfg.RegistryAPIKey)
	if err != nil {
		log.Fatalf("failed to resolve registry credentials: %v", err)
	}
	reg, err := registry.Open(ctx, registry.Options{
		Backend: registry.Backend(cfg.RegistryBackend),
		Dir:     cfg.RegistryDir,
		Bucket:  cfg.RegistryBucket,
		Auth:    auth,
	})
	if err != nil {
		log.Fatalf("failed to open registry: %v", err)
	}
	defer reg.Close()

	st, closeStore, err := store.Open(ctx, store.Options{
		Backend:    store.Backend(cfg.StoreBackend),
		Path:       cfg.StorePath,
		MaxHistory: cfg.StoreMaxHistory,
		MaxAge:     cfg.StoreMaxAge,
	})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer closeStore()

	// Shared HTTP client for outbound weather API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Request path: a single upstream attempt. Ingestion may retry.
	forecastProvider := providers.NewOpenWeatherProvider(providers.SingleAttempt(httpClient), cfg.OpenWeatherAPIKey, "")
	ingestProvider := providers.NewOpenWeatherProvider(providers.WithRetries(httpClient), cfg.OpenWeatherAPIKey, "")

	loader := model.NewLoader(reg, cfg.ModelName)
	engine := forecast.NewEngine(forecastProvider, loader, forecast.WithMissingPolicy(cfg.MissingPolicy()))

	predCache := cache.Open(ctx, cfg.RedisURL, cfg.CacheTTL)
	defer predCache.Close()

	// Scheduler that periodically ingests history and optionally retrains.
	service := aqi.NewService(st, ingestProvider, reg, cfg.FeatureGroup)
	sched := scheduler.New(cfg.Locations, cfg.FetchInterval, service)
	switch {
	case cfg.RetrainInterval <= 0:
	case len(cfg.Locations) == 0:
		log.Println("INFO: scheduled retraining disabled: no location configured")
	default:
		// The model is trained on the first configured location's feature group.
		src := training.FeatureGroupSource{Reader: reg, Group: cfg.FeatureGroup, Location: cfg.Locations[0]}
		trainer := training.NewTrainer(src, reg, cfg.ModelName)
		sched.WithRetraining(trainer, cfg.RetrainInterval, reloadAfterRetrain(loader, predCache))
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "aqi-forecast",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "aqi-forecast",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, engine, service, predCache)

	go func() {
		log.Printf("INFO: listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// reloadAfterRetrain drops the cached model and every cached forecast so the
// next request is served by the newly registered version.
func reloadAfterRetrain(loader *model.Loader, predCache cache.Predictions) func(*training.Report) {
	return func(report *training.Report) {
		loader.Invalidate()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := predCache.Invalidate(ctx); err != nil {
			log.Printf("ERROR: failed to flush cached forecasts after retrain: %v", err)
		}
		log.Printf("INFO: model %s version %d will serve new forecasts", report.ModelName, report.Version)
	}
}
