// Package resolver attaches departure and arrival airports to live aircraft
// observations, consulting the route cache before any upstream service.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/unklstewy/flightboard/internal/events"
	"github.com/unklstewy/flightboard/internal/routecache"
	"github.com/unklstewy/flightboard/pkg/adsb"
	"github.com/unklstewy/flightboard/pkg/flightaware"
	"github.com/unklstewy/flightboard/pkg/opensky"
)

// Resolver defaults.
const (
	DefaultCacheDays      = 7
	DefaultSuppressWindow = 24 * time.Hour
)

// Resolver resolves routes with a cache-first strategy. Upstream misses are
// remembered as not-found entries so the same flight is not looked up again
// within SuppressWindow.
type Resolver struct {
	// Source is the upstream route service. A nil Source behaves like a
	// disabled upstream.
	Source RouteSource

	// Enabled turns upstream lookups on.
	Enabled bool

	// CacheDays is how long a cached route counts as fresh.
	CacheDays int

	// SuppressWindow is how long a not-found result blocks new lookups.
	SuppressWindow time.Duration

	// Publisher receives an event after every upstream result is cached.
	Publisher events.Publisher

	Logger *slog.Logger
}

// Resolve returns the best known route for obs. It never fails: every
// upstream problem degrades to whatever the cache holds, possibly nothing.
// Upstream answers, including "no data", are written through snap; lookups
// that were cancelled or throttled before reaching upstream are not.
func (r *Resolver) Resolve(ctx context.Context, obs adsb.Aircraft, snap *routecache.Snapshot) (from, to string) {
	key := routecache.NormalizeKey(obs.Callsign)
	if key == "" {
		return "", ""
	}

	cached, hit := snap.Lookup(key, r.cacheDays())

	if snap.IsSuppressed(key, r.suppressWindow()) {
		return cached.From, cached.To
	}
	if hit && cached.Fresh && (cached.From != "" || cached.To != "") {
		return cached.From, cached.To
	}

	icao := strings.TrimSpace(obs.ICAO)
	if !r.Enabled || r.Source == nil || icao == "" {
		return cached.From, cached.To
	}

	upFrom, upTo, err := r.Source.LookupRoute(ctx, obs)
	if err != nil && notAttempted(ctx, err) {
		// Nothing was asked upstream, so nothing is learned or cached.
		r.logger().Debug("Route lookup skipped",
			slog.String("callsign", key),
			slog.Any("error", err))
		return cached.From, cached.To
	}
	if err != nil {
		r.logger().Warn("Route lookup failed",
			slog.String("source", r.Source.Name()),
			slog.String("callsign", key),
			slog.String("icao24", icao),
			slog.Any("error", err))
		upFrom, upTo = "", ""
	}

	if upFrom == "" && upTo == "" {
		entry := snap.Update(ctx, key, "", "", true)
		r.publish(ctx, key, icao, entry)
		return cached.From, cached.To
	}

	from = firstNonEmpty(upFrom, cached.From)
	to = firstNonEmpty(upTo, cached.To)
	entry := snap.Update(ctx, key, from, to, false)
	r.publish(ctx, key, icao, entry)

	r.logger().Debug("Route resolved",
		slog.String("callsign", key),
		slog.String("from", from),
		slog.String("to", to))
	return from, to
}

// notAttempted reports whether a lookup ended before any upstream answer:
// the caller went away or a local rate limiter refused to wait.
func notAttempted(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, opensky.ErrThrottled) ||
		errors.Is(err, flightaware.ErrThrottled)
}

func (r *Resolver) publish(ctx context.Context, key, icao string, e routecache.Entry) {
	if r.Publisher == nil {
		return
	}
	at, _ := e.Timestamp()
	ev := events.RouteResolved{
		Key:      key,
		ICAO24:   icao,
		From:     e.From,
		To:       e.To,
		NotFound: e.NotFound,
		Source:   r.Source.Name(),
		At:       at,
	}
	if err := r.Publisher.PublishRoute(ctx, ev); err != nil {
		r.logger().Warn("Route event publish failed",
			slog.String("callsign", key),
			slog.Any("error", err))
	}
}

func (r *Resolver) cacheDays() int {
	if r.CacheDays <= 0 {
		return DefaultCacheDays
	}
	return r.CacheDays
}

func (r *Resolver) suppressWindow() time.Duration {
	if r.SuppressWindow <= 0 {
		return DefaultSuppressWindow
	}
	return r.SuppressWindow
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
