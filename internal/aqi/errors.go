package aqi

import "errors"

var (
	// ErrConfiguration is returned when required settings or credentials are absent.
	ErrConfiguration = errors.New("configuration error")
	// ErrUpstreamFetch is returned when the weather API call fails.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrParse is returned when the upstream response cannot be decoded.
	ErrParse = errors.New("malformed upstream response")
	// ErrNoData is returned when the upstream response holds zero records.
	ErrNoData = errors.New("no pollutant data")
	// ErrInsufficientHistory is returned when no row has a full lag history.
	ErrInsufficientHistory = errors.New("insufficient pollutant history")
	// ErrFeatureMismatch is returned when a feature table cannot be reindexed
	// to the columns a trained model expects.
	ErrFeatureMismatch = errors.New("feature mismatch")
)

// KindOf returns a stable name for the failure class of err, or "internal".
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrUpstreamFetch):
		return "upstream_fetch"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrFeatureMismatch):
		return "feature_mismatch"
	default:
		return "internal"
	}
}

// Unavailable reports whether err means the upstream data was valid but unusable.
func Unavailable(err error) bool {
	return errors.Is(err, ErrNoData) || errors.Is(err, ErrInsufficientHistory)
}
