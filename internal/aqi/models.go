package aqi

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Pollutant indexes a component concentration inside Components.
type Pollutant int

const (
	CO Pollutant = iota
	NO
	NO2
	O3
	SO2
	PM25
	PM10
	NH3

	NumPollutants = 8
)

var pollutantNames = [NumPollutants]string{"co", "no", "no2", "o3", "so2", "pm2_5", "pm10", "nh3"}

// Pollutants lists every pollutant in canonical column order.
var Pollutants = []Pollutant{CO, NO, NO2, O3, SO2, PM25, PM10, NH3}

// String returns the column name used by the weather API and the feature tables.
func (p Pollutant) String() string {
	if p < 0 || int(p) >= NumPollutants {
		return fmt.Sprintf("pollutant(%d)", int(p))
	}
	return pollutantNames[p]
}

// ParsePollutant maps a column name back to its Pollutant.
func ParsePollutant(name string) (Pollutant, bool) {
	for i, n := range pollutantNames {
		if n == name {
			return Pollutant(i), true
		}
	}
	return 0, false
}

// Missing marks a pollutant the upstream response did not report.
var Missing = math.NaN()

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Components holds the concentrations of one observation, indexed by Pollutant.
type Components [NumPollutants]float64

// Location is a point for which we ingest history and serve forecasts.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Lat, l.Lon)
}

// Observation is one hourly pollutant reading. Timestamp is always UTC.
type Observation struct {
	Timestamp  time.Time  `json:"date"`
	AQI        float64    `json:"aqi"`
	Components Components `json:"components"`
}

// Prediction is the forecast AQI for a single calendar day.
type Prediction struct {
	Date         string `json:"Date"`
	PredictedAQI int    `json:"Predicted_AQI"`
}

// DateLayout is the calendar date format used in predictions.
const DateLayout = "2006-01-02"

// MarshalJSON encodes the components as an object keyed by pollutant name.
// Missing values are encoded as null.
func (c Components) MarshalJSON() ([]byte, error) {
	m := make(map[string]*float64, NumPollutants)
	for _, p := range Pollutants {
		if IsMissing(c[p]) {
			m[p.String()] = nil
			continue
		}
		v := c[p]
		m[p.String()] = &v
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes an object keyed by pollutant name. Absent or null
// keys become Missing; unknown keys are ignored.
func (c *Components) UnmarshalJSON(data []byte) error {
	var m map[string]*float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for _, p := range Pollutants {
		v, ok := m[p.String()]
		if !ok || v == nil {
			c[p] = Missing
			continue
		}
		c[p] = *v
	}
	return nil
}
