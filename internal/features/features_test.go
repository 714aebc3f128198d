package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

func hourly(start time.Time, n int, value func(i int) float64) []aqi.Observation {
	obs := make([]aqi.Observation, n)
	for i := range obs {
		var c aqi.Components
		for _, p := range aqi.Pollutants {
			c[p] = value(i) + float64(p)
		}
		obs[i] = aqi.Observation{
			Timestamp:  start.Add(time.Duration(i) * time.Hour),
			AQI:        float64(1 + i%5),
			Components: c,
		}
	}
	return obs
}

func TestBuildDropsRowsWithoutLagHistory(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, n := range []int{4, 7, 24, 7 * 24} {
		obs := hourly(start, n, func(i int) float64 { return float64(i) })
		table, err := Build(obs, DefaultSpec())
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if table.Len() != n-3 {
			t.Errorf("n=%d: expected %d rows, got %d", n, n-3, table.Len())
		}
	}
}

func TestBuildSortsInput(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := hourly(start, 6, func(i int) float64 { return float64(i) })
	reversed := make([]aqi.Observation, len(obs))
	for i := range obs {
		reversed[len(obs)-1-i] = obs[i]
	}

	table, err := Build(reversed, DefaultSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last, ok := Latest(table)
	if !ok {
		t.Fatal("expected a latest row")
	}
	if !last.Timestamp.Equal(obs[5].Timestamp) {
		t.Fatalf("expected latest row at %v, got %v", obs[5].Timestamp, last.Timestamp)
	}

	lag1, _ := table.Value(table.Len()-1, LagColumn(aqi.CO, 1))
	lag3, _ := table.Value(table.Len()-1, LagColumn(aqi.CO, 3))
	if lag1 != 4 || lag3 != 2 {
		t.Fatalf("expected co lags 4 and 2, got %v and %v", lag1, lag3)
	}
}

func TestBuildRejectsDuplicateTimestamps(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := hourly(start, 5, func(i int) float64 { return 1 })
	obs = append(obs, obs[2])
	if _, err := Build(obs, DefaultSpec()); err == nil {
		t.Fatal("expected duplicate timestamp error")
	}
}

func TestBuildSkipsRowsWithMissingLag(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := hourly(start, 8, func(i int) float64 { return 1 })
	obs[4].Components[aqi.NO2] = aqi.Missing

	table, err := Build(obs, DefaultSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Rows 3..7 exist; row 4 has a missing raw value and rows 5..7 carry it as a lag.
	if table.Len() != 1 {
		t.Fatalf("expected 1 valid row, got %d", table.Len())
	}
	if !table.Rows[0].Timestamp.Equal(obs[3].Timestamp) {
		t.Fatalf("unexpected surviving row %v", table.Rows[0].Timestamp)
	}
}

func TestSeasonOneHotIsPartition(t *testing.T) {
	want := map[time.Month]string{
		time.December: "Winter", time.January: "Winter", time.February: "Winter",
		time.March: "Spring", time.April: "Spring", time.May: "Spring",
		time.June: "Summer", time.July: "Summer", time.August: "Summer",
		time.September: "Autumn", time.October: "Autumn", time.November: "Autumn",
	}
	for _, year := range []int{1999, 2024, 2025} {
		for m := time.January; m <= time.December; m++ {
			start := time.Date(year, m, 10, 0, 0, 0, 0, time.UTC)
			table, err := Build(hourly(start, 4, func(i int) float64 { return 1 }), DefaultSpec())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			sum := 0.0
			for _, s := range Seasons {
				v, _ := table.Value(0, SeasonColumn(s))
				sum += v
				if s == want[m] && v != 1 {
					t.Errorf("%d-%s: expected %s set", year, m, s)
				}
			}
			if sum != 1 {
				t.Errorf("%d-%s: expected exactly one season, got %v", year, m, sum)
			}
		}
	}
}

func TestRollingMeanMinPeriods(t *testing.T) {
	got := RollingMean([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{1, 1.5, 2, 3, 4}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestRollingMeanSkipsMissing(t *testing.T) {
	got := RollingMean([]float64{aqi.Missing, 2, aqi.Missing, 4}, 3)
	if !aqi.IsMissing(got[0]) {
		t.Fatalf("expected missing for empty window, got %v", got[0])
	}
	if got[1] != 2 || got[2] != 2 || got[3] != 3 {
		t.Fatalf("unexpected rolling mean %v", got)
	}
}

func TestCalendarColumns(t *testing.T) {
	// 2025-03-08 is a Saturday.
	start := time.Date(2025, 3, 8, 14, 0, 0, 0, time.UTC)
	table, err := Build(hourly(start.Add(-3*time.Hour), 4, func(i int) float64 { return 1 }), DefaultSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checks := map[string]float64{
		ColMonth: 3, ColDay: 8, ColDayOfWeek: 5, ColHour: 14, ColIsWeekend: 1,
	}
	for col, want := range checks {
		if got, _ := table.Value(0, col); got != want {
			t.Errorf("%s: expected %v, got %v", col, want, got)
		}
	}
}

func TestInteractionsUseRawValues(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := hourly(start, 4, func(i int) float64 { return float64(i) })
	table, err := Build(obs, DefaultSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := obs[3].Components
	got, _ := table.Value(0, "co_pm2_5")
	if want := c[aqi.CO] * c[aqi.PM25]; got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestClipOutliers(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	values := []float64{1, 2, 3, 4, 100}
	obs := hourly(start, len(values), func(i int) float64 { return values[i] })
	obs[2].Components[aqi.NH3] = aqi.Missing

	clipped := ClipOutliers(obs, 1.5)

	// co values are 1,2,3,4,100: Q1=2, Q3=4, IQR=2, upper bound 7.
	if got := clipped[4].Components[aqi.CO]; got != 7 {
		t.Fatalf("expected outlier clipped to 7, got %v", got)
	}
	if got := clipped[0].Components[aqi.CO]; got != 1 {
		t.Fatalf("expected in-range value kept, got %v", got)
	}
	if !aqi.IsMissing(clipped[2].Components[aqi.NH3]) {
		t.Fatal("expected missing value preserved")
	}
	if obs[4].Components[aqi.CO] != 100 {
		t.Fatal("input must not be modified")
	}
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	if got := Quantile(sorted, 0.25); got != 1.75 {
		t.Fatalf("expected 1.75, got %v", got)
	}
	if got := Quantile(sorted, 0.75); got != 3.25 {
		t.Fatalf("expected 3.25, got %v", got)
	}
}

func buildSample(t *testing.T) *Table {
	t.Helper()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	table, err := Build(hourly(start, 7, func(i int) float64 { return 2 }), DefaultSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return table
}

func TestMatrixReordersByName(t *testing.T) {
	table := buildSample(t)
	names := []string{}
	cols := DefaultSpec().Columns()
	for i := len(cols) - 1; i >= 0; i-- {
		names = append(names, cols[i])
	}

	m, err := table.Matrix(names, Strict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for j, name := range names {
		want, _ := table.Value(0, name)
		if m[0][j] != want {
			t.Fatalf("column %s: expected %v, got %v", name, want, m[0][j])
		}
	}
}

func TestMatrixMissingColumnFails(t *testing.T) {
	// A table built without the 6-hour window lacks every <p>_6hr_avg column.
	spec := DefaultSpec()
	spec.RollingWindows = []int{3}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	table, err := Build(hourly(start, 7, func(i int) float64 { return 2 }), spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Has(RollingColumn(aqi.O3, 6)) {
		t.Fatal("expected o3_6hr_avg to be absent")
	}

	_, err = table.Matrix(DefaultSpec().Columns(), Strict)
	if !errors.Is(err, aqi.ErrFeatureMismatch) {
		t.Fatalf("expected feature mismatch, got %v", err)
	}

	// The zero-fill policy only covers extended lags.
	_, err = table.Matrix(DefaultSpec().Columns(), ZeroFillExtendedLags)
	if !errors.Is(err, aqi.ErrFeatureMismatch) {
		t.Fatalf("expected feature mismatch under zero-fill policy, got %v", err)
	}
}

func TestMatrixExtraColumnFails(t *testing.T) {
	table := buildSample(t)
	names := DefaultSpec().Columns()[1:]

	if _, err := table.Matrix(names, Strict); !errors.Is(err, aqi.ErrFeatureMismatch) {
		t.Fatalf("expected feature mismatch for unexpected column, got %v", err)
	}
}

func TestMatrixZeroFillsExtendedLagsOnlyUnderPolicy(t *testing.T) {
	table := buildSample(t)
	names := append(DefaultSpec().Columns(), LagColumn(aqi.PM25, 4), LagColumn(aqi.CO, 6))

	if _, err := table.Matrix(names, Strict); !errors.Is(err, aqi.ErrFeatureMismatch) {
		t.Fatalf("strict policy: expected feature mismatch, got %v", err)
	}

	m, err := table.Matrix(names, ZeroFillExtendedLags)
	if err != nil {
		t.Fatalf("zero-fill policy: unexpected error: %v", err)
	}
	n := len(names)
	if m[0][n-2] != 0 || m[0][n-1] != 0 {
		t.Fatalf("expected zero-filled extended lags, got %v %v", m[0][n-2], m[0][n-1])
	}

	bogus := append(DefaultSpec().Columns(), "co_lag_7", "dust_lag_4")
	if _, err := table.Matrix(bogus, ZeroFillExtendedLags); !errors.Is(err, aqi.ErrFeatureMismatch) {
		t.Fatalf("expected mismatch for non-extended lag names, got %v", err)
	}
}
