package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/aqi/providers"
	"github.com/i474232898/aqi-forecast/internal/config"
	"github.com/i474232898/aqi-forecast/internal/registry"
	"github.com/i474232898/aqi-forecast/internal/store"
)

func main() {
	from := flag.String("from", "", "start date (YYYY-MM-DD, UTC); defaults to one year before -to")
	to := flag.String("to", "", "end date (YYYY-MM-DD, UTC), exclusive; defaults to today")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if *to != "" {
		if end, err = time.Parse(aqi.DateLayout, *to); err != nil {
			log.Fatalf("invalid -to: %v", err)
		}
	}
	start := end.AddDate(-1, 0, 0)
	if *from != "" {
		if start, err = time.Parse(aqi.DateLayout, *from); err != nil {
			log.Fatalf("invalid -from: %v", err)
		}
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
		Backend: store.Backend(cfg.StoreBackend),
		Path:    cfg.StorePath,
	})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer closeStore()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	provider := providers.NewOpenWeatherProvider(providers.WithRetries(httpClient), cfg.OpenWeatherAPIKey, "")
	service := aqi.NewService(st, provider, reg, cfg.FeatureGroup)

	failed := 0
	for _, loc := range cfg.Locations {
		n, err := service.Ingest(ctx, loc, start, end)
		if err != nil {
			failed++
			log.Printf("ERROR: ingest %s failed (%s): %v", loc.Key(), aqi.KindOf(err), err)
			continue
		}
		log.Printf("INFO: ingested %d records for %s", n, loc.Key())
	}
	if failed > 0 {
		log.Fatalf("ingest failed for %d of %d locations", failed, len(cfg.Locations))
	}
}
