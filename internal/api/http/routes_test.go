package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

type fakeForecaster struct {
	mu    sync.Mutex
	calls int
	preds []aqi.Prediction
	err   error
}

func (f *fakeForecaster) PredictNextThreeDays(ctx context.Context, lat, lon float64) ([]aqi.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.preds, f.err
}

type mapCache struct {
	mu sync.Mutex
	m  map[string][]aqi.Prediction
}

func (c *mapCache) Get(ctx context.Context, key string) ([]aqi.Prediction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[key]
	return p, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, preds []aqi.Prediction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = preds
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = map[string][]aqi.Prediction{}
	return nil
}

func (c *mapCache) Close() error { return nil }

var samplePreds = []aqi.Prediction{
	{Date: "2026-02-28", PredictedAQI: 2},
	{Date: "2026-03-01", PredictedAQI: 3},
	{Date: "2026-03-02", PredictedAQI: 4},
}

func newApp(f Forecaster, c *mapCache) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	if c == nil {
		RegisterRoutes(app, f, nil, nil)
	} else {
		RegisterRoutes(app, f, nil, c)
	}
	return app
}

func get(t *testing.T, app *fiber.App, url string) (int, map[string]any, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var obj map[string]any
	_ = json.Unmarshal(body, &obj)
	return resp.StatusCode, obj, body
}

func TestPredictReturnsForecast(t *testing.T) {
	f := &fakeForecaster{preds: samplePreds}
	app := newApp(f, nil)

	for _, path := range []string{"/predict_aqi", "/api/v1/aqi/forecast"} {
		status, _, body := get(t, app, path+"?lat=24.8607&lon=67.0011")
		if status != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, status, body)
		}
		var got []aqi.Prediction
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if len(got) != 3 || got[0].Date != "2026-02-28" || got[2].PredictedAQI != 4 {
			t.Fatalf("%s: unexpected body %s", path, body)
		}
	}
}

func TestPredictResponseShape(t *testing.T) {
	app := newApp(&fakeForecaster{preds: samplePreds[:1]}, nil)
	_, _, body := get(t, app, "/predict_aqi?lat=1&lon=2")
	if want := `[{"Date":"2026-02-28","Predicted_AQI":2}]`; string(body) != want {
		t.Fatalf("got %s, want %s", body, want)
	}
}

func TestPredictQueryValidation(t *testing.T) {
	f := &fakeForecaster{preds: samplePreds}
	app := newApp(f, nil)

	tests := []string{
		"/predict_aqi",
		"/predict_aqi?lat=24.8",
		"/predict_aqi?lon=67",
		"/predict_aqi?lat=abc&lon=67",
		"/predict_aqi?lat=91&lon=67",
		"/predict_aqi?lat=24&lon=-181",
		"/predict_aqi?lat=NaN&lon=67",
	}
	for _, url := range tests {
		status, obj, body := get(t, app, url)
		if status != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", url, status)
		}
		if _, ok := obj["error"]; !ok {
			t.Errorf("%s: expected error field in %s", url, body)
		}
	}
	if f.calls != 0 {
		t.Fatalf("forecaster must not run for invalid queries, ran %d times", f.calls)
	}
}

func TestPredictCoreFailures(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{fmt.Errorf("%w: 2 observations", aqi.ErrInsufficientHistory), "insufficient_history"},
		{aqi.ErrNoData, "no_data"},
		{fmt.Errorf("%w: status 500", aqi.ErrUpstreamFetch), "upstream_fetch"},
		{fmt.Errorf("%w: missing column no2_lag_4", aqi.ErrFeatureMismatch), "feature_mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			app := newApp(&fakeForecaster{err: tt.err}, nil)
			status, obj, body := get(t, app, "/predict_aqi?lat=1&lon=2")
			if status != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", status)
			}
			if obj["kind"] != tt.kind {
				t.Fatalf("expected kind %q in %s", tt.kind, body)
			}
		})
	}
}

func TestPredictUsesCache(t *testing.T) {
	f := &fakeForecaster{preds: samplePreds}
	app := newApp(f, &mapCache{m: map[string][]aqi.Prediction{}})

	for i := 0; i < 3; i++ {
		if status, _, _ := get(t, app, "/predict_aqi?lat=1&lon=2"); status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
	}
	if f.calls != 1 {
		t.Fatalf("expected a single forecast, got %d", f.calls)
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	f := &fakeForecaster{err: aqi.ErrNoData}
	app := newApp(f, &mapCache{m: map[string][]aqi.Prediction{}})

	get(t, app, "/predict_aqi?lat=1&lon=2")
	get(t, app, "/predict_aqi?lat=1&lon=2")
	if f.calls != 2 {
		t.Fatalf("expected failures to be retried, got %d calls", f.calls)
	}
}

func TestAlerts(t *testing.T) {
	f := &fakeForecaster{preds: []aqi.Prediction{
		{Date: "2026-02-28", PredictedAQI: 42},
		{Date: "2026-03-01", PredictedAQI: 160},
		{Date: "2026-03-02", PredictedAQI: 310},
	}}
	app := newApp(f, nil)

	status, _, body := get(t, app, "/api/v1/aqi/alerts?lat=1&lon=2")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var resp struct {
		Alerts []aqi.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []aqi.Level{aqi.LevelGood, aqi.LevelUnhealthy, aqi.LevelHazardous}
	if len(resp.Alerts) != len(want) {
		t.Fatalf("unexpected alerts %s", body)
	}
	for i, a := range resp.Alerts {
		if a.Level != want[i] {
			t.Errorf("alert %d: expected %s, got %s", i, want[i], a.Level)
		}
	}
}

func TestCacheInvalidationRecomputes(t *testing.T) {
	f := &fakeForecaster{preds: samplePreds}
	c := &mapCache{m: map[string][]aqi.Prediction{}}
	app := newApp(f, c)

	get(t, app, "/predict_aqi?lat=1&lon=2")
	get(t, app, "/predict_aqi?lat=1&lon=2")
	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	get(t, app, "/predict_aqi?lat=1&lon=2")
	if f.calls != 2 {
		t.Fatalf("expected a fresh forecast after invalidation, got %d calls", f.calls)
	}
}

type fakeHistory map[string][]aqi.Observation

func (h fakeHistory) History(ctx context.Context, loc aqi.Location) ([]aqi.Observation, error) {
	obs, ok := h[loc.Key()]
	if !ok {
		return nil, aqi.ErrNotFound
	}
	return obs, nil
}

func TestHistory(t *testing.T) {
	loc := aqi.Location{Lat: 24.8607, Lon: 67.0011}
	ts := time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)
	var comps aqi.Components
	for i := range comps {
		comps[i] = aqi.Missing
	}
	comps[aqi.PM25] = 12.5
	history := fakeHistory{loc.Key(): {{Timestamp: ts, AQI: 2, Components: comps}}}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, &fakeForecaster{}, history, nil)

	status, _, body := get(t, app, "/api/v1/aqi/history?lat=24.8607&lon=67.0011")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var resp struct {
		Observations []aqi.Observation `json:"observations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Observations) != 1 || resp.Observations[0].Components[aqi.PM25] != 12.5 {
		t.Fatalf("unexpected body %s", body)
	}
	if !aqi.IsMissing(resp.Observations[0].Components[aqi.CO]) {
		t.Fatal("expected missing co to decode as missing")
	}

	if status, _, _ := get(t, app, "/api/v1/aqi/history?lat=1&lon=1"); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown location, got %d", status)
	}
	if status, _, _ := get(t, app, "/api/v1/aqi/history?lat=1"); status != http.StatusBadRequest {
		t.Fatalf("expected 400 without lon, got %d", status)
	}
}

func TestHistoryRouteRequiresReader(t *testing.T) {
	app := newApp(&fakeForecaster{}, nil)
	if status, _, _ := get(t, app, "/api/v1/aqi/history?lat=1&lon=1"); status != http.StatusNotFound {
		t.Fatalf("expected 404 when history is not wired, got %d", status)
	}
}
