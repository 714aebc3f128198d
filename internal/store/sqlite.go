package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists pollutant records in a SQLite database.
type SQLiteStore struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Printf("INFO: connected to SQLite store: %s", path)
	return &SQLiteStore{conn: conn}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Pollutant column names are quoted: "no" is an SQL keyword.
var pollutantColumns = func() string {
	names := make([]string, 0, aqi.NumPollutants)
	for _, p := range aqi.Pollutants {
		names = append(names, `"`+p.String()+`"`)
	}
	return strings.Join(names, ", ")
}()

var pollutantUpdates = func() string {
	sets := make([]string, 0, aqi.NumPollutants)
	for _, p := range aqi.Pollutants {
		sets = append(sets, fmt.Sprintf(`"%[1]s" = excluded."%[1]s"`, p.String()))
	}
	return strings.Join(sets, ", ")
}()

// Append upserts obs for loc; a record with an existing timestamp replaces it.
func (s *SQLiteStore) Append(ctx context.Context, loc aqi.Location, obs []aqi.Observation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (location_key, lat, lon, ts, aqi, `+pollutantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_key, ts) DO UPDATE SET aqi = excluded.aqi, `+pollutantUpdates+`
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	key := loc.Key()
	for _, o := range obs {
		args := []any{key, loc.Lat, loc.Lon, o.Timestamp.UTC().Unix(), o.AQI}
		for _, p := range aqi.Pollutants {
			v := o.Components[p]
			args = append(args, sql.NullFloat64{Float64: v, Valid: !aqi.IsMissing(v)})
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert observation at %s: %w", o.Timestamp.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

func scanObservation(rows interface{ Scan(...any) error }) (aqi.Observation, error) {
	var (
		ts   int64
		o    aqi.Observation
		vals [aqi.NumPollutants]sql.NullFloat64
	)
	dest := []any{&ts, &o.AQI}
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return o, err
	}
	o.Timestamp = time.Unix(ts, 0).UTC()
	for i, v := range vals {
		if v.Valid {
			o.Components[i] = v.Float64
		} else {
			o.Components[i] = aqi.Missing
		}
	}
	return o, nil
}

// All returns the full history for loc in ascending time order.
func (s *SQLiteStore) All(ctx context.Context, loc aqi.Location) ([]aqi.Observation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT ts, aqi, `+pollutantColumns+`
		FROM observations
		WHERE location_key = ?
		ORDER BY ts ASC
	`, loc.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []aqi.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Latest returns the most recent observation for loc.
func (s *SQLiteStore) Latest(ctx context.Context, loc aqi.Location) (aqi.Observation, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT ts, aqi, `+pollutantColumns+`
		FROM observations
		WHERE location_key = ?
		ORDER BY ts DESC
		LIMIT 1
	`, loc.Key())
	o, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return aqi.Observation{}, ErrNotFound
	}
	if err != nil {
		return aqi.Observation{}, fmt.Errorf("failed to query latest observation: %w", err)
	}
	return o, nil
}

// Locations returns every location with stored records, ordered by key.
func (s *SQLiteStore) Locations(ctx context.Context) ([]aqi.Location, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT lat, lon FROM observations
		GROUP BY location_key
		ORDER BY location_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []aqi.Location
	for rows.Next() {
		var l aqi.Location
		if err := rows.Scan(&l.Lat, &l.Lon); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
