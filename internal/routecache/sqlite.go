package routecache

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the cache in a local SQLite database. WAL mode lets
// several dashboard workers on one host read while another writes.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS route_cache (
	key TEXT PRIMARY KEY,
	origin TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	last_seen TEXT NOT NULL DEFAULT '',
	not_found INTEGER NOT NULL DEFAULT 0
);
`

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, origin, destination, last_seen, not_found FROM route_cache`)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var (
			key string
			e   Entry
		)
		if err := rows.Scan(&key, &e.From, &e.To, &e.LastSeen, &e.NotFound); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		entries[key] = e
	}
	return entries, rows.Err()
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO route_cache (key, origin, destination, last_seen, not_found)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			origin = excluded.origin,
			destination = excluded.destination,
			last_seen = excluded.last_seen,
			not_found = excluded.not_found`,
		key, e.From, e.To, e.LastSeen, e.NotFound)
	if err != nil {
		return fmt.Errorf("upsert route %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
