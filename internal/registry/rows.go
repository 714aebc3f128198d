package registry

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// rowHeader is the feature group CSV header: date, aqi, then one column per pollutant.
var rowHeader = func() []string {
	h := []string{"date", "aqi"}
	for _, p := range aqi.Pollutants {
		h = append(h, p.String())
	}
	return h
}()

// EncodeRows writes obs as feature group CSV. Missing pollutants are empty cells.
func EncodeRows(obs []aqi.Observation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(rowHeader); err != nil {
		return nil, err
	}
	record := make([]string, len(rowHeader))
	for _, o := range obs {
		record[0] = o.Timestamp.UTC().Format(time.RFC3339)
		record[1] = strconv.FormatFloat(o.AQI, 'g', -1, 64)
		for i, p := range aqi.Pollutants {
			v := o.Components[p]
			if aqi.IsMissing(v) {
				record[2+i] = ""
			} else {
				record[2+i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRows parses feature group CSV. Columns are matched by header name, so
// pollutant columns may appear in any order and absent columns read as missing.
func DecodeRows(data []byte) ([]aqi.Observation, error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	dateCol, aqiCol := -1, -1
	pollCols := make(map[int]aqi.Pollutant)
	for i, name := range records[0] {
		switch name {
		case "date":
			dateCol = i
		case "aqi":
			aqiCol = i
		default:
			if p, ok := aqi.ParsePollutant(name); ok {
				pollCols[i] = p
			}
		}
	}
	if dateCol < 0 || aqiCol < 0 {
		return nil, fmt.Errorf("rows header %v lacks date or aqi column", records[0])
	}

	out := make([]aqi.Observation, 0, len(records)-1)
	for n, rec := range records[1:] {
		ts, err := time.Parse(time.RFC3339, rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q: %w", n+1, rec[dateCol], err)
		}
		v, err := strconv.ParseFloat(rec[aqiCol], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid aqi %q: %w", n+1, rec[aqiCol], err)
		}
		o := aqi.Observation{Timestamp: ts.UTC(), AQI: v}
		for i := range o.Components {
			o.Components[i] = aqi.Missing
		}
		for col, p := range pollCols {
			if rec[col] == "" {
				continue
			}
			c, err := strconv.ParseFloat(rec[col], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid %s %q: %w", n+1, p, rec[col], err)
			}
			o.Components[p] = c
		}
		out = append(out, o)
	}
	return out, nil
}
