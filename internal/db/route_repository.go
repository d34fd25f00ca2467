package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RouteRecord is one row of route_cache. LastSeen is nil when the route was
// imported without a usable timestamp.
type RouteRecord struct {
	Key         string
	Origin      string
	Destination string
	LastSeen    *time.Time
	NotFound    bool
}

// RouteRepository handles database operations for cached routes.
type RouteRepository struct {
	db *DB
}

// NewRouteRepository creates a new route repository.
func NewRouteRepository(db *DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// All returns every cached route.
func (r *RouteRepository) All(ctx context.Context) ([]RouteRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, origin, destination, last_seen, not_found FROM route_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var records []RouteRecord
	for rows.Next() {
		rec, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate routes: %w", err)
	}
	return records, nil
}

// Get returns one route, or nil if the key is unknown.
func (r *RouteRepository) Get(ctx context.Context, key string) (*RouteRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT key, origin, destination, last_seen, not_found FROM route_cache WHERE key = $1`,
		key)
	rec, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert inserts or replaces a route.
func (r *RouteRepository) Upsert(ctx context.Context, rec RouteRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO route_cache (key, origin, destination, last_seen, not_found)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
			origin = EXCLUDED.origin,
			destination = EXCLUDED.destination,
			last_seen = EXCLUDED.last_seen,
			not_found = EXCLUDED.not_found`,
		rec.Key, rec.Origin, rec.Destination, nullTime(rec.LastSeen), rec.NotFound,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert route %s: %w", rec.Key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoute(s rowScanner) (RouteRecord, error) {
	var (
		rec      RouteRecord
		lastSeen sql.NullTime
	)
	if err := s.Scan(&rec.Key, &rec.Origin, &rec.Destination, &lastSeen, &rec.NotFound); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan route: %w", err)
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		rec.LastSeen = &t
	}
	return rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
