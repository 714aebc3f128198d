package cache

import (
	"context"
	"testing"
	"time"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

func TestKeyIsPerLocationAndDay(t *testing.T) {
	loc := aqi.Location{Lat: 24.8607, Lon: 67.0011}
	morning := time.Date(2026, 2, 27, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 2, 27, 23, 0, 0, 0, time.UTC)
	next := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	if Key(loc, morning) != Key(loc, evening) {
		t.Error("expected the same key within one UTC day")
	}
	if Key(loc, morning) == Key(loc, next) {
		t.Error("expected a new key on the next day")
	}
	if Key(loc, morning) == Key(aqi.Location{Lat: 1, Lon: 1}, morning) {
		t.Error("expected keys to differ by location")
	}
	if got, want := Key(loc, morning), "aqi:forecast:24.8607:67.0011:2026-02-27"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOpenWithoutURLIsNoop(t *testing.T) {
	c := Open(context.Background(), "", time.Minute)
	if _, ok := c.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", c)
	}
	if err := c.Set(context.Background(), "k", []aqi.Prediction{{Date: "2026-02-28", PredictedAQI: 3}}); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(context.Background(), "k"); hit {
		t.Fatal("noop cache must never hit")
	}
}

func TestOpenWithBadURLFallsBack(t *testing.T) {
	c := Open(context.Background(), "not-a-url", time.Minute)
	if _, ok := c.(Noop); !ok {
		t.Fatalf("expected Noop fallback, got %T", c)
	}
}
