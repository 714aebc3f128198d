// Package features turns time-ordered pollutant observations into the
// feature table consumed by the AQI regression model. The same Spec drives
// training and inference.
package features

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// SpecVersion identifies the column set produced by DefaultSpec. Bump it
// whenever a column is added, removed or computed differently.
const SpecVersion = 2

// Interaction is the element-wise product of two pollutants.
type Interaction struct {
	A, B aqi.Pollutant
}

// Name returns the column name, e.g. "co_pm2_5".
func (i Interaction) Name() string {
	return i.A.String() + "_" + i.B.String()
}

// Spec describes the feature columns and how they are computed.
//
// Interaction terms are computed from the raw current-step values of each
// row, both when training and when serving.
type Spec struct {
	Version        int
	Lags           int
	RollingWindows []int
	Interactions   []Interaction
}

// DefaultSpec returns the feature spec shared by the trainer and the
// inference engine.
func DefaultSpec() Spec {
	return Spec{
		Version:        SpecVersion,
		Lags:           3,
		RollingWindows: []int{3, 6},
		Interactions: []Interaction{
			{aqi.CO, aqi.PM25},
			{aqi.NO, aqi.NO2},
			{aqi.O3, aqi.PM10},
			{aqi.SO2, aqi.NH3},
		},
	}
}

const (
	ColMonth     = "month"
	ColDay       = "day"
	ColDayOfWeek = "day_of_week"
	ColHour      = "hour"
	ColIsWeekend = "is_weekend"
)

// Seasons in one-hot column order.
var Seasons = []string{"Winter", "Spring", "Summer", "Autumn"}

// SeasonColumn returns the one-hot column name for a season.
func SeasonColumn(season string) string {
	return "season_" + season
}

// LagColumn returns the column name for the lag-k value of p.
func LagColumn(p aqi.Pollutant, k int) string {
	return fmt.Sprintf("%s_lag_%d", p, k)
}

// RollingColumn returns the column name for the trailing average of p over window rows.
func RollingColumn(p aqi.Pollutant, window int) string {
	return fmt.Sprintf("%s_%dhr_avg", p, window)
}

// MinObservations is the smallest input that yields one valid row.
func (s Spec) MinObservations() int {
	return s.Lags + 1
}

// Columns returns the feature column names in table order. The target is
// not a column.
func (s Spec) Columns() []string {
	cols := []string{ColMonth, ColDay, ColDayOfWeek, ColHour, ColIsWeekend}
	for _, season := range Seasons {
		cols = append(cols, SeasonColumn(season))
	}
	for _, p := range aqi.Pollutants {
		cols = append(cols, p.String())
	}
	for _, p := range aqi.Pollutants {
		for k := 1; k <= s.Lags; k++ {
			cols = append(cols, LagColumn(p, k))
		}
	}
	for _, p := range aqi.Pollutants {
		for _, w := range s.RollingWindows {
			cols = append(cols, RollingColumn(p, w))
		}
	}
	for _, in := range s.Interactions {
		cols = append(cols, in.Name())
	}
	return cols
}

// isExtendedLag reports whether name is a lag-4, lag-5 or lag-6 column of a
// known pollutant.
func isExtendedLag(name string) bool {
	i := strings.LastIndex(name, "_lag_")
	if i <= 0 {
		return false
	}
	if _, ok := aqi.ParsePollutant(name[:i]); !ok {
		return false
	}
	k, err := strconv.Atoi(name[i+len("_lag_"):])
	if err != nil {
		return false
	}
	return k >= 4 && k <= 6
}
