// Package routecache persists resolved flight routes keyed by callsign.
//
// Entries are never evicted; staleness is judged at read time from
// LastSeen. A Snapshot is the whole mapping loaded once for a batch of
// lookups, and every write through it goes straight to the backing Store.
package routecache

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Cache.Get for unknown keys.
var ErrNotFound = errors.New("route not cached")

// Entry is one cached route. NotFound marks a negative result: the
// upstream was asked and knew nothing, and From/To are empty.
type Entry struct {
	From     string `json:"from"`
	To       string `json:"to"`
	LastSeen string `json:"last_seen"`
	NotFound bool   `json:"not_found"`
}

// KeyedEntry pairs an entry with its key for listings.
type KeyedEntry struct {
	Key string `json:"key"`
	Entry
}

// Lookup is the result of Snapshot.Lookup.
type Lookup struct {
	From  string
	To    string
	Fresh bool

	// Key is the key that matched: the exact key or its airline prefix
	Key string
}

// Timestamp returns LastSeen parsed, or false when missing or malformed.
func (e Entry) Timestamp() (time.Time, bool) {
	return parseTimestamp(e.LastSeen)
}

// timestampLayouts are tried after RFC 3339. Older cache files carry naive
// ISO timestamps without an offset.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp reads an ISO-8601 timestamp. Values with an offset are
// parsed as such; naive values are taken to be local time.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatTimestamp is the canonical LastSeen format for new writes.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NormalizeKey trims and upper-cases a callsign.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// airlinePrefix returns the leading letters of key, at most three.
func airlinePrefix(key string) string {
	n := 0
	for n < len(key) && n < 3 {
		c := key[n]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			break
		}
		n++
	}
	return key[:n]
}
