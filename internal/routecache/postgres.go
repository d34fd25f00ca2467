package routecache

import (
	"context"
	"time"

	"github.com/unklstewy/flightboard/internal/db"
)

// PostgresStore keeps the cache in the route_cache table, shared by every
// dashboard worker pointed at the same database.
type PostgresStore struct {
	conn *db.DB
	repo *db.RouteRepository
}

// NewPostgresStore wraps an open connection. The schema must exist
// (db.InitSchema).
func NewPostgresStore(conn *db.DB) *PostgresStore {
	return &PostgresStore{conn: conn, repo: db.NewRouteRepository(conn)}
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (map[string]Entry, error) {
	records, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]Entry, len(records))
	for _, rec := range records {
		e := Entry{From: rec.Origin, To: rec.Destination, NotFound: rec.NotFound}
		if rec.LastSeen != nil {
			e.LastSeen = formatTimestamp(*rec.LastSeen)
		}
		entries[rec.Key] = e
	}
	return entries, nil
}

// Put implements Store. A LastSeen that does not parse is stored as NULL.
func (s *PostgresStore) Put(ctx context.Context, key string, e Entry) error {
	rec := db.RouteRecord{
		Key:         key,
		Origin:      e.From,
		Destination: e.To,
		NotFound:    e.NotFound,
	}
	if ts, ok := e.Timestamp(); ok {
		t := ts.UTC().Truncate(time.Microsecond)
		rec.LastSeen = &t
	}
	return s.repo.Upsert(ctx, rec)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}
