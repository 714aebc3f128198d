package aqi

// Level is an alert band for a predicted AQI value.
type Level string

const (
	LevelGood          Level = "good"
	LevelModerate      Level = "moderate"
	LevelUnhealthy     Level = "unhealthy"
	LevelVeryUnhealthy Level = "very_unhealthy"
	LevelHazardous     Level = "hazardous"
)

// Alert pairs a prediction with its alert band.
type Alert struct {
	Prediction
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Classify maps a predicted AQI to its alert band.
func Classify(value int) Level {
	switch {
	case value >= 300:
		return LevelHazardous
	case value >= 200:
		return LevelVeryUnhealthy
	case value >= 150:
		return LevelUnhealthy
	case value >= 100:
		return LevelModerate
	default:
		return LevelGood
	}
}

var levelMessages = map[Level]string{
	LevelGood:          "Good AQI",
	LevelModerate:      "Moderate AQI",
	LevelUnhealthy:     "Unhealthy AQI",
	LevelVeryUnhealthy: "Very Unhealthy AQI",
	LevelHazardous:     "Hazardous AQI",
}

// Alerts classifies every prediction, preserving order.
func Alerts(preds []Prediction) []Alert {
	out := make([]Alert, 0, len(preds))
	for _, p := range preds {
		lvl := Classify(p.PredictedAQI)
		out = append(out, Alert{Prediction: p, Level: lvl, Message: levelMessages[lvl]})
	}
	return out
}
