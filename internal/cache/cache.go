package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// Predictions caches forecasts per location and calendar day.
type Predictions interface {
	Get(ctx context.Context, key string) ([]aqi.Prediction, bool, error)
	Set(ctx context.Context, key string, preds []aqi.Prediction) error
	// Invalidate drops every cached forecast, e.g. after a new model version.
	Invalidate(ctx context.Context) error
	Close() error
}

const keyPrefix = "aqi:forecast:"

// Key identifies the forecast for loc issued on the UTC day of now. A
// forecast issued on a different day covers different dates.
func Key(loc aqi.Location, now time.Time) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, loc.Key(), now.UTC().Format(aqi.DateLayout))
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]aqi.Prediction, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []aqi.Prediction) error         { return nil }
func (Noop) Invalidate(context.Context) error                            { return nil }
func (Noop) Close() error                                                { return nil }

// Redis stores forecasts as JSON with a fixed TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the Redis server at url (redis://host:port/db).
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	log.Printf("INFO: connected to Redis at %s", opts.Addr)
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]aqi.Prediction, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var preds []aqi.Prediction
	if err := json.Unmarshal(val, &preds); err != nil {
		return nil, false, err
	}
	return preds, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, preds []aqi.Prediction) error {
	data, err := json.Marshal(preds)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached forecasts: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Open returns a Redis cache when url is set and reachable, and Noop otherwise.
func Open(ctx context.Context, url string, ttl time.Duration) Predictions {
	if url == "" {
		return Noop{}
	}
	c, err := NewRedis(ctx, url, ttl)
	if err != nil {
		log.Printf("ERROR: prediction cache disabled: %v", err)
		return Noop{}
	}
	return c
}
