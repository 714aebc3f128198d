package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Predictions counts forecast requests by outcome ("ok" or an aqi.KindOf kind).
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqi_forecast_predictions_total",
		Help: "Total number of forecast requests by outcome.",
	}, []string{"outcome"})

	PredictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aqi_forecast_prediction_duration_seconds",
		Help:    "Duration of a full three-day forecast.",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqi_forecast_cache_hits_total",
		Help: "Total number of forecasts served from the cache.",
	})

	// IngestedObservations counts records written by ingestion, per location key.
	IngestedObservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqi_forecast_ingested_observations_total",
		Help: "Total number of pollutant records ingested.",
	}, []string{"location"})

	IngestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqi_forecast_ingest_failures_total",
		Help: "Total number of failed ingestion runs.",
	})

	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqi_forecast_training_runs_total",
		Help: "Total number of training runs by outcome.",
	}, []string{"outcome"})
)
