package routecache

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Store is the persistence behind a Cache. Load returns the whole mapping;
// Put writes one entry. Implementations need not lock against other
// processes: concurrent writers may overwrite each other's entries.
type Store interface {
	Load(ctx context.Context) (map[string]Entry, error)
	Put(ctx context.Context, key string, e Entry) error
	Close() error
}

// Cache hands out snapshots of a Store and serves maintenance operations.
type Cache struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Cache. logger may be nil.
func New(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, logger: logger, now: time.Now}
}

// SetClock replaces time.Now, for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Snapshot loads the mapping once for a batch of lookups. A load failure is
// logged and yields an empty snapshot, so callers always get a usable one.
func (c *Cache) Snapshot(ctx context.Context) *Snapshot {
	entries, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("Route cache load failed, starting empty", slog.Any("error", err))
		entries = nil
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}
	return &Snapshot{entries: entries, store: c.store, logger: c.logger, now: c.now}
}

// List returns every entry sorted by key.
func (c *Cache) List(ctx context.Context) ([]KeyedEntry, error) {
	entries, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load route cache: %w", err)
	}
	out := make([]KeyedEntry, 0, len(entries))
	for k, e := range entries {
		out = append(out, KeyedEntry{Key: k, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get returns the entry stored under key, or ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string) (Entry, error) {
	entries, err := c.store.Load(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("load route cache: %w", err)
	}
	e, ok := entries[NormalizeKey(key)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Set stores a manual route for key, replacing whatever was there.
// Unlike Snapshot.Update it reports persistence failures.
func (c *Cache) Set(ctx context.Context, key, from, to string) (Entry, error) {
	key = NormalizeKey(key)
	if key == "" {
		return Entry{}, fmt.Errorf("empty key")
	}
	e := Entry{
		From:     NormalizeKey(from),
		To:       NormalizeKey(to),
		LastSeen: formatTimestamp(c.now()),
	}
	if err := c.store.Put(ctx, key, e); err != nil {
		return Entry{}, fmt.Errorf("store route %s: %w", key, err)
	}
	return e, nil
}

// Snapshot is an in-memory copy of the cache for one request batch.
// It is safe for concurrent use.
type Snapshot struct {
	mu      sync.Mutex
	entries map[string]Entry
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Lookup finds key, falling back to its airline prefix (the leading letters,
// at most three) when the key itself is absent. The stored airports are
// returned whether or not the entry is fresh. An entry is fresh while fewer
// than maxAgeDays whole days have passed since LastSeen; entries without a
// readable timestamp are always fresh.
func (s *Snapshot) Lookup(key string, maxAgeDays int) (Lookup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := key
	e, ok := s.entries[key]
	if !ok {
		prefix := airlinePrefix(key)
		if prefix == "" || prefix == key {
			return Lookup{}, false
		}
		if e, ok = s.entries[prefix]; !ok {
			return Lookup{}, false
		}
		matched = prefix
	}

	fresh := true
	if ts, ok := e.Timestamp(); ok {
		days := math.Floor(s.now().Sub(ts).Hours() / 24)
		fresh = days < float64(maxAgeDays)
	}

	return Lookup{From: e.From, To: e.To, Fresh: fresh, Key: matched}, true
}

// IsSuppressed reports whether key holds a not-found result younger than
// window. Only the exact key counts, and an unreadable timestamp never
// suppresses.
func (s *Snapshot) IsSuppressed(key string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.NotFound {
		return false
	}
	ts, ok := e.Timestamp()
	if !ok {
		return false
	}
	return s.now().Sub(ts) < window
}

// Update overwrites key with a new result stamped now and writes it through
// to the store. A not-found result always stores empty airports.
// Persistence failures are logged; the in-memory value stays updated.
func (s *Snapshot) Update(ctx context.Context, key, from, to string, notFound bool) Entry {
	if notFound {
		from, to = "", ""
	}
	e := Entry{From: from, To: to, LastSeen: formatTimestamp(s.now()), NotFound: notFound}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	if err := s.store.Put(ctx, key, e); err != nil {
		s.logger.Warn("Route cache write failed",
			slog.String("key", key),
			slog.Any("error", err))
	}
	return e
}
