package config

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/features"
)

// Config is the process configuration, read once at startup.
type Config struct {
	OpenWeatherAPIKey string `env:"OPENWEATHER_API_KEY,required"`
	RegistryAPIKey    string `env:"REGISTRY_API_KEY,required"`

	RegistryBackend     string `env:"REGISTRY_BACKEND,default=local"`
	RegistryDir         string `env:"REGISTRY_DIR,default=./registry"`
	RegistryBucket      string `env:"REGISTRY_BUCKET"`
	RegistrySessionFile string `env:"REGISTRY_SESSION_FILE"`

	ModelName    string `env:"MODEL_NAME,default=xgb_model"`
	FeatureGroup string `env:"FEATURE_GROUP,default=historical_aqi_data"`

	StoreBackend    string        `env:"STORE_BACKEND,default=memory"`
	StorePath       string        `env:"STORE_PATH,default=./aqi.db"`
	StoreMaxHistory int           `env:"STORE_MAX_HISTORY,default=0"` // records per location (0 = unlimited)
	StoreMaxAge     time.Duration `env:"STORE_MAX_AGE,default=0"`     // 0 = unlimited

	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT,default=15s"`
	FetchInterval   time.Duration `env:"FETCH_INTERVAL,default=1h"`
	RetrainInterval time.Duration `env:"RETRAIN_INTERVAL,default=0"` // 0 disables scheduled retraining

	// Locations to ingest, as comma separated lat:lon pairs.
	RawLocations string `env:"LOCATIONS,default=24.8607:67.0011"`
	Locations    []aqi.Location

	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL,default=30m"`

	ZeroFillExtendedLags bool `env:"ZERO_FILL_EXTENDED_LAGS,default=false"`

	Port string `env:"PORT,default=8000"`
}

// MissingPolicy returns the feature reindexing policy for inference.
func (c *Config) MissingPolicy() features.MissingPolicy {
	if c.ZeroFillExtendedLags {
		return features.ZeroFillExtendedLags
	}
	return features.Strict
}

// Load reads .env (if present) and then the environment. Missing required
// secrets are reported as aqi.ErrConfiguration.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", aqi.ErrConfiguration, err)
	}

	locs, err := ParseLocations(cfg.RawLocations)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid LOCATIONS: %v", aqi.ErrConfiguration, err)
	}
	cfg.Locations = locs

	switch cfg.RegistryBackend {
	case "local":
	case "gcs":
		if cfg.RegistryBucket == "" {
			return nil, fmt.Errorf("%w: REGISTRY_BUCKET is required for the gcs registry backend", aqi.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported REGISTRY_BACKEND %q", aqi.ErrConfiguration, cfg.RegistryBackend)
	}
	switch cfg.StoreBackend {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("%w: unsupported STORE_BACKEND %q", aqi.ErrConfiguration, cfg.StoreBackend)
	}

	return &cfg, nil
}

// ParseLocations parses "lat:lon,lat:lon" into locations.
func ParseLocations(s string) ([]aqi.Location, error) {
	var locs []aqi.Location
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		latStr, lonStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("location %q is not lat:lon", part)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("location %q has invalid latitude", part)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("location %q has invalid longitude", part)
		}
		locs = append(locs, aqi.Location{Lat: lat, Lon: lon})
	}
	return locs, nil
}
