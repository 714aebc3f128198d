package features

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// Build computes the feature table for obs. obs is sorted by timestamp
// before construction and must not contain duplicate timestamps. Only rows
// whose raw values and lag columns are all present are returned, in time
// order; with Lags = 3 the first three observations never yield a row.
func Build(obs []aqi.Observation, spec Spec) (*Table, error) {
	sorted := make([]aqi.Observation, len(obs))
	copy(sorted, obs)
	aqi.SortObservations(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Equal(sorted[i-1].Timestamp) {
			return nil, fmt.Errorf("duplicate observation at %s", sorted[i].Timestamp)
		}
	}

	t := NewTable(spec.Columns())
	if len(sorted) == 0 {
		return t, nil
	}

	rolling := make(map[int][aqi.NumPollutants][]float64, len(spec.RollingWindows))
	for _, w := range spec.RollingWindows {
		var series [aqi.NumPollutants][]float64
		for _, p := range aqi.Pollutants {
			series[p] = RollingMean(column(sorted, p), w)
		}
		rolling[w] = series
	}

	for i := spec.Lags; i < len(sorted); i++ {
		o := sorted[i]
		t.AppendRow(Row{
			Timestamp: o.Timestamp,
			Target:    o.AQI,
			Values:    make([]float64, len(t.Columns)),
		})
		r := t.Len() - 1

		t.SetCalendar(r, o.Timestamp)
		t.Set(r, ColHour, float64(o.Timestamp.Hour()))

		valid := true
		for _, p := range aqi.Pollutants {
			v := o.Components[p]
			valid = valid && !aqi.IsMissing(v)
			t.Set(r, p.String(), v)

			for k := 1; k <= spec.Lags; k++ {
				lag := sorted[i-k].Components[p]
				valid = valid && !aqi.IsMissing(lag)
				t.Set(r, LagColumn(p, k), lag)
			}
			for _, w := range spec.RollingWindows {
				t.Set(r, RollingColumn(p, w), rolling[w][p][i])
			}
		}
		for _, in := range spec.Interactions {
			t.Set(r, in.Name(), o.Components[in.A]*o.Components[in.B])
		}

		if !valid {
			t.Rows = t.Rows[:r]
		}
	}
	return t, nil
}

// Latest returns the most recent row of t.
func Latest(t *Table) (Row, bool) {
	if t.Len() == 0 {
		return Row{}, false
	}
	return t.Rows[t.Len()-1], true
}

func column(obs []aqi.Observation, p aqi.Pollutant) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Components[p]
	}
	return out
}

// RollingMean returns the trailing mean over window values for each index.
// Missing values are skipped; at the start of the series the mean is taken
// over however many values are available. An index whose window holds no
// present value is Missing.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	buf := make([]float64, 0, window)
	for i := range values {
		buf = buf[:0]
		for j := max(0, i-window+1); j <= i; j++ {
			if !aqi.IsMissing(values[j]) {
				buf = append(buf, values[j])
			}
		}
		if len(buf) == 0 {
			out[i] = aqi.Missing
			continue
		}
		out[i] = stat.Mean(buf, nil)
	}
	return out
}

// ClipOutliers returns a copy of obs with each pollutant clipped to
// [Q1 - factor*IQR, Q3 + factor*IQR], with quartiles computed over the whole
// input. Missing values are preserved.
func ClipOutliers(obs []aqi.Observation, factor float64) []aqi.Observation {
	out := make([]aqi.Observation, len(obs))
	copy(out, obs)

	for _, p := range aqi.Pollutants {
		present := make([]float64, 0, len(obs))
		for _, o := range obs {
			if v := o.Components[p]; !aqi.IsMissing(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			continue
		}
		sort.Float64s(present)
		q1 := Quantile(present, 0.25)
		q3 := Quantile(present, 0.75)
		iqr := q3 - q1
		lo, hi := q1-factor*iqr, q3+factor*iqr

		for i := range out {
			v := out[i].Components[p]
			if aqi.IsMissing(v) {
				continue
			}
			out[i].Components[p] = math.Min(math.Max(v, lo), hi)
		}
	}
	return out
}

// Quantile returns the q-th quantile of sorted using linear interpolation
// between the closest order statistics (h = (n-1)q).
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return aqi.Missing
	}
	h := float64(n-1) * q
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
