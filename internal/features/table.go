package features

import (
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// MissingPolicy controls how Matrix treats expected columns absent from the table.
type MissingPolicy int

const (
	// Strict fails on any absent column.
	Strict MissingPolicy = iota
	// ZeroFillExtendedLags fills absent lag-4, lag-5 and lag-6 pollutant
	// columns with 0 and fails on any other absent column.
	ZeroFillExtendedLags
)

func (p MissingPolicy) String() string {
	switch p {
	case Strict:
		return "strict"
	case ZeroFillExtendedLags:
		return "zero_fill_extended_lags"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Row is one feature row. Values are aligned with Table.Columns.
type Row struct {
	Timestamp time.Time
	Target    float64
	Values    []float64
}

// Table is a feature table addressed by column name.
type Table struct {
	Columns []string
	Rows    []Row
	index   map[string]int
}

// NewTable creates an empty table with the given columns.
func NewTable(columns []string) *Table {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Table{Columns: columns, index: idx}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Has reports whether the table carries the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Value returns the named value of a row.
func (t *Table) Value(row int, name string) (float64, bool) {
	i, ok := t.index[name]
	if !ok {
		return 0, false
	}
	return t.Rows[row].Values[i], true
}

// Set assigns the named value of a row. Unknown columns are ignored.
func (t *Table) Set(row int, name string, v float64) {
	if i, ok := t.index[name]; ok {
		t.Rows[row].Values[i] = v
	}
}

// AppendRow adds a copy of r.
func (t *Table) AppendRow(r Row) {
	vals := make([]float64, len(r.Values))
	copy(vals, r.Values)
	r.Values = vals
	t.Rows = append(t.Rows, r)
}

// Targets returns the target value of every row.
func (t *Table) Targets() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Target
	}
	return out
}

// Matrix returns the rows with their values laid out in exactly the order of
// names. The table must carry every name and nothing else; the policy may
// allow listed columns to be zero-filled. Any other difference is
// aqi.ErrFeatureMismatch.
func (t *Table) Matrix(names []string, policy MissingPolicy) ([][]float64, error) {
	src := make([]int, len(names))
	wanted := make(map[string]bool, len(names))
	var missing []string
	for j, name := range names {
		wanted[name] = true
		i, ok := t.index[name]
		switch {
		case ok:
			src[j] = i
		case policy == ZeroFillExtendedLags && isExtendedLag(name):
			src[j] = -1
		default:
			missing = append(missing, name)
		}
	}

	var extra []string
	for _, c := range t.Columns {
		if !wanted[c] {
			extra = append(extra, c)
		}
	}

	if len(missing) > 0 || len(extra) > 0 {
		return nil, fmt.Errorf("%w: missing [%s] unexpected [%s] (policy %s)", aqi.ErrFeatureMismatch,
			strings.Join(missing, ", "), strings.Join(extra, ", "), policy)
	}

	out := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		vals := make([]float64, len(names))
		for j, i := range src {
			if i >= 0 {
				vals[j] = row.Values[i]
			}
		}
		out[r] = vals
	}
	return out, nil
}
