package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/config"
	"github.com/i474232898/aqi-forecast/internal/registry"
	"github.com/i474232898/aqi-forecast/internal/store"
	"github.com/i474232898/aqi-forecast/internal/training"
)

func main() {
	source := flag.String("source", "registry", "training data source: store or registry")
	location := flag.String("location", "", "lat:lon to train on (defaults to the first configured location)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	loc, err := pickLocation(*location, cfg.Locations)
	if err != nil {
		log.Fatalf("invalid -location: %v", err)
	}

	var src training.Source
	switch *source {
	case "registry":
		src = training.FeatureGroupSource{Reader: reg, Group: cfg.FeatureGroup, Location: loc}
	case "store":
		st, closeStore, err := store.Open(ctx, store.Options{
			Backend: store.Backend(cfg.StoreBackend),
			Path:    cfg.StorePath,
		})
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		defer closeStore()
		src = training.StoreSource{Store: st, Location: loc}
	default:
		log.Fatalf("unknown -source %q (want store or registry)", *source)
	}

	report, err := training.NewTrainer(src, reg, cfg.ModelName).Run(ctx)
	if err != nil {
		log.Fatalf("training failed (%s): %v", aqi.KindOf(err), err)
	}

	fmt.Printf("run %s: registered %s version %d\n", report.RunID, report.ModelName, report.Version)
	fmt.Printf("best params: n_estimators=%d max_depth=%d learning_rate=%g\n",
		report.Params.NEstimators, report.Params.MaxDepth, report.Params.LearningRate)
	fmt.Printf("MSE: %.2f, R^2: %.2f%%\n", report.Metrics.MSE, report.Metrics.R2*100)
}

func pickLocation(raw string, configured []aqi.Location) (aqi.Location, error) {
	if raw != "" {
		locs, err := config.ParseLocations(raw)
		if err != nil {
			return aqi.Location{}, err
		}
		if len(locs) != 1 {
			return aqi.Location{}, fmt.Errorf("expected exactly one location, got %d", len(locs))
		}
		return locs[0], nil
	}
	if len(configured) == 0 {
		return aqi.Location{}, fmt.Errorf("no location configured")
	}
	return configured[0], nil
}
