// Package model holds the trained AQI regressor together with the feature
// names it was fitted on, and loads it from the registry on demand.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/aqi-forecast/internal/features"
	"github.com/i474232898/aqi-forecast/internal/gbm"
)

// Metrics are the held-out evaluation results of a training run.
type Metrics struct {
	MSE float64 `json:"mse"`
	R2  float64 `json:"r2"`
}

// TrainedModel is a fitted regressor plus the ordered feature-name list its
// input must be reindexed to.
type TrainedModel struct {
	Name         string        `json:"name"`
	Version      int           `json:"version,omitempty"`
	RunID        string        `json:"run_id"`
	TrainedAt    time.Time     `json:"trained_at"`
	SpecVersion  int           `json:"feature_spec_version"`
	FeatureNames []string      `json:"feature_names"`
	Metrics      Metrics       `json:"metrics"`
	Ensemble     *gbm.Ensemble `json:"ensemble"`
}

// ErrInvalidArtifact is returned when a serialized model cannot be used.
var ErrInvalidArtifact = errors.New("invalid model artifact")

// Predict runs the model over a feature table, reindexing it to
// FeatureNames under policy first.
func (m *TrainedModel) Predict(t *features.Table, policy features.MissingPolicy) ([]float64, error) {
	X, err := t.Matrix(m.FeatureNames, policy)
	if err != nil {
		return nil, err
	}
	return m.Ensemble.Predict(X)
}

// Encode serializes the model as JSON.
func Encode(m *TrainedModel) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a serialized model and checks it is internally consistent.
func Decode(data []byte) (*TrainedModel, error) {
	var m TrainedModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if m.Ensemble == nil {
		return nil, fmt.Errorf("%w: no ensemble", ErrInvalidArtifact)
	}
	if len(m.FeatureNames) != m.Ensemble.NumFeatures {
		return nil, fmt.Errorf("%w: %d feature names for %d model inputs", ErrInvalidArtifact,
			len(m.FeatureNames), m.Ensemble.NumFeatures)
	}
	return &m, nil
}
