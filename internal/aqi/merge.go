package aqi

import "sort"

// SortObservations orders obs ascending by timestamp in place.
func SortObservations(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})
}

// MergeObservations combines an existing history with newly ingested records.
// The result is sorted ascending by timestamp with one record per timestamp;
// on a duplicate timestamp the incoming record replaces the existing one, and
// among duplicates inside incoming the last one wins.
func MergeObservations(existing, incoming []Observation) []Observation {
	byTS := make(map[int64]Observation, len(existing)+len(incoming))
	for _, o := range existing {
		byTS[o.Timestamp.Unix()] = o
	}
	for _, o := range incoming {
		o.Timestamp = o.Timestamp.UTC()
		byTS[o.Timestamp.Unix()] = o
	}

	merged := make([]Observation, 0, len(byTS))
	for _, o := range byTS {
		merged = append(merged, o)
	}
	SortObservations(merged)
	return merged
}
