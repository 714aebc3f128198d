package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/cache"
	"github.com/i474232898/aqi-forecast/internal/metrics"
)

var validate = validator.New()

// Forecaster predicts the AQI for the three days after today.
type Forecaster interface {
	PredictNextThreeDays(ctx context.Context, lat, lon float64) ([]aqi.Prediction, error)
}

// HistoryReader returns the stored observations for a location.
type HistoryReader interface {
	History(ctx context.Context, loc aqi.Location) ([]aqi.Observation, error)
}

// handler serves forecasts, consulting the prediction cache first.
type handler struct {
	forecaster Forecaster
	history    HistoryReader
	cache      cache.Predictions
	now        func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. The history
// route is only registered when history is set; predCache may be nil.
func RegisterRoutes(app *fiber.App, forecaster Forecaster, history HistoryReader, predCache cache.Predictions) {
	if predCache == nil {
		predCache = cache.Noop{}
	}
	h := &handler{forecaster: forecaster, history: history, cache: predCache, now: time.Now}

	app.Get("/predict_aqi", h.predict)

	v1 := app.Group("/api/v1")
	v1.Get("/aqi/forecast", h.predict)
	v1.Get("/aqi/alerts", h.alerts)
	if history != nil {
		v1.Get("/aqi/history", h.historyRecords)
	}
}

func (h *handler) historyRecords(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	obs, err := h.history.History(c.UserContext(), loc)
	if err != nil {
		if errors.Is(err, aqi.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no pollutant history for requested location")
		}
		return err
	}
	return c.JSON(fiber.Map{
		"location":     loc,
		"observations": obs,
	})
}

func (h *handler) predict(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	preds, err := h.forecast(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(preds)
}

func (h *handler) alerts(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	preds, err := h.forecast(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"location": loc,
		"alerts":   aqi.Alerts(preds),
	})
}

func (h *handler) forecast(ctx context.Context, loc aqi.Location) ([]aqi.Prediction, error) {
	key := cache.Key(loc, h.now())
	if preds, hit, err := h.cache.Get(ctx, key); err != nil {
		log.Printf("ERROR: prediction cache get %s: %v", key, err)
	} else if hit {
		metrics.CacheHits.Inc()
		return preds, nil
	}

	start := time.Now()
	preds, err := h.forecaster.PredictNextThreeDays(ctx, loc.Lat, loc.Lon)
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Predictions.WithLabelValues(aqi.KindOf(err)).Inc()
		return nil, err
	}
	metrics.Predictions.WithLabelValues("ok").Inc()

	if err := h.cache.Set(ctx, key, preds); err != nil {
		log.Printf("ERROR: prediction cache set %s: %v", key, err)
	}
	return preds, nil
}

// ErrorHandler renders every error as JSON. Fiber errors keep their status;
// forecast failures are 500 with the failure kind attached.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	kind := aqi.KindOf(err)
	switch {
	case errors.Is(err, aqi.ErrFeatureMismatch):
		log.Printf("ERROR: feature mismatch serving %s: %v", c.OriginalURL(), err)
	case aqi.Unavailable(err):
		log.Printf("INFO: prediction unavailable for %s: %v", c.OriginalURL(), err)
	default:
		log.Printf("ERROR: request %s failed (%s): %v", c.OriginalURL(), kind, err)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kind,
	})
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	Lat *float64 `validate:"required,gte=-90,lte=90"`
	Lon *float64 `validate:"required,gte=-180,lte=180"`
}

func parseLocationQuery(c *fiber.Ctx) (aqi.Location, error) {
	var q locationQuery

	for _, p := range []struct {
		name string
		dst  **float64
	}{{"lat", &q.Lat}, {"lon", &q.Lon}} {
		raw := c.Query(p.name)
		if raw == "" {
			return aqi.Location{}, fmt.Errorf("%s query parameter is required", p.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return aqi.Location{}, fmt.Errorf("%s must be a number", p.name)
		}
		*p.dst = &v
	}

	if err := validate.Struct(q); err != nil {
		return aqi.Location{}, err
	}
	return aqi.Location{Lat: *q.Lat, Lon: *q.Lon}, nil
}
