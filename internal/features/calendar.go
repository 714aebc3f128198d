package features

import "time"

// Season maps a calendar month to its meteorological season.
func Season(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "Winter"
	case time.March, time.April, time.May:
		return "Spring"
	case time.June, time.July, time.August:
		return "Summer"
	default:
		return "Autumn"
	}
}

// DayOfWeek returns the weekday with Monday as 0 and Sunday as 6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// SetCalendar overwrites the date-derived columns of row for date.
// The hour column is left untouched.
func (t *Table) SetCalendar(row int, date time.Time) {
	dow := DayOfWeek(date)
	t.Set(row, ColMonth, float64(date.Month()))
	t.Set(row, ColDay, float64(date.Day()))
	t.Set(row, ColDayOfWeek, float64(dow))
	weekend := 0.0
	if dow >= 5 {
		weekend = 1
	}
	t.Set(row, ColIsWeekend, weekend)

	current := Season(date.Month())
	for _, s := range Seasons {
		v := 0.0
		if s == current {
			v = 1
		}
		t.Set(row, SeasonColumn(s), v)
	}
}
