// Package nearby ranks the aircraft closest to a point and enriches them
// with airline and route information for the board.
package nearby

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/unklstewy/flightboard/internal/airlines"
	"github.com/unklstewy/flightboard/internal/routecache"
	"github.com/unklstewy/flightboard/pkg/adsb"
	"github.com/unklstewy/flightboard/pkg/coordinates"
	"github.com/unklstewy/flightboard/pkg/tracking"
)

// DefaultLimit is the number of flights shown when none is configured.
const DefaultLimit = 4

// Flight is an aircraft observation enriched for display.
type Flight struct {
	ICAO         string    `json:"icao24"`
	Callsign     string    `json:"callsign"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	AltitudeFt   float64   `json:"altitude_ft"`
	SpeedKt      float64   `json:"speed_kt"`
	Track        float64   `json:"track"`
	VerticalRate float64   `json:"vertical_rate"`
	DistanceKm   float64   `json:"distance_km"`
	BearingDeg   float64   `json:"bearing_deg"`
	AirlineCode  string    `json:"airline_code,omitempty"`
	AirlineName  string    `json:"airline_name,omitempty"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	LastSeen     time.Time `json:"last_seen"`
}

// RouteResolver supplies routes. *resolver.Resolver implements it.
type RouteResolver interface {
	Resolve(ctx context.Context, obs adsb.Aircraft, snap *routecache.Snapshot) (from, to string)
}

// Aggregator merges a live feed with resolved routes.
type Aggregator struct {
	feed     adsb.DataSource
	resolver RouteResolver
	cache    *routecache.Cache
	limit    int
	logger   *slog.Logger
	now      func() time.Time

	// snapshots memoizes feed results per center and radius, nil when
	// memoization is off.
	snapshots *expirable.LRU[string, []adsb.Aircraft]
}

// Config configures an Aggregator.
type Config struct {
	// Limit caps the returned list, DefaultLimit when zero.
	Limit int

	// FeedTTL is how long a feed snapshot is reused. Zero disables reuse.
	FeedTTL time.Duration
}

// New creates an Aggregator. resolver and cache may be nil, in which case
// only feed-reported routes are shown.
func New(feed adsb.DataSource, resolver RouteResolver, cache *routecache.Cache, cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		feed:     feed,
		resolver: resolver,
		cache:    cache,
		limit:    cfg.Limit,
		logger:   logger,
		now:      time.Now,
	}
	if cfg.FeedTTL > 0 {
		a.snapshots = expirable.NewLRU[string, []adsb.Aircraft](16, nil, cfg.FeedTTL)
	}
	return a
}

// Limit returns the maximum number of flights returned.
func (a *Aggregator) Limit() int {
	return a.limit
}

// NearbyFlights returns up to Limit aircraft around center ordered by
// distance. A feed failure is logged and yields an empty list; an aircraft
// without a route is kept with empty airports.
func (a *Aggregator) NearbyFlights(ctx context.Context, center coordinates.Geographic, radiusKm float64) []Flight {
	aircraft, reused, err := a.fetch(ctx, center, radiusKm)
	if err != nil {
		a.logger.Error("Live feed fetch failed",
			slog.String("provider", a.feed.Name()),
			slog.Any("error", err))
		return []Flight{}
	}

	var snap *routecache.Snapshot
	if a.resolver != nil && a.cache != nil {
		snap = a.cache.Snapshot(ctx)
	}

	now := a.now()
	flights := make([]Flight, 0, len(aircraft))
	for _, ac := range aircraft {
		if !usablePosition(ac) {
			continue
		}
		if reused {
			// Reused snapshots are projected forward so distances stay current.
			ac = tracking.Extrapolate(ac, now)
		}
		pos := ac.Position()
		code := airlines.Code(ac.Callsign)
		if ac.AirlineICAO != "" {
			code = ac.AirlineICAO
		}
		f := Flight{
			ICAO:         ac.ICAO,
			Callsign:     ac.Callsign,
			Latitude:     ac.Latitude,
			Longitude:    ac.Longitude,
			AltitudeFt:   ac.Altitude,
			SpeedKt:      ac.GroundSpeed,
			Track:        ac.Track,
			VerticalRate: ac.VerticalRate,
			DistanceKm:   round(coordinates.DistanceKm(center, pos), 1),
			BearingDeg:   round(coordinates.Bearing(center, pos), 0),
			AirlineCode:  code,
			AirlineName:  airlines.Name(code),
			From:         ac.Origin,
			To:           ac.Destination,
			LastSeen:     ac.LastSeen,
		}
		if snap != nil {
			// Feed-reported airports stay when nothing better is known.
			from, to := a.resolver.Resolve(ctx, ac, snap)
			if from != "" {
				f.From = from
			}
			if to != "" {
				f.To = to
			}
		}
		flights = append(flights, f)
	}

	sort.SliceStable(flights, func(i, j int) bool {
		return flights[i].DistanceKm < flights[j].DistanceKm
	})
	if len(flights) > a.limit {
		flights = flights[:a.limit]
	}
	return flights
}

// fetch returns the aircraft around center and whether they came from a
// memoized snapshot.
func (a *Aggregator) fetch(ctx context.Context, center coordinates.Geographic, radiusKm float64) ([]adsb.Aircraft, bool, error) {
	key := fmt.Sprintf("%.4f,%.4f,%.1f", center.Latitude, center.Longitude, radiusKm)
	if a.snapshots != nil {
		if cached, ok := a.snapshots.Get(key); ok {
			return cached, true, nil
		}
	}

	aircraft, err := a.feed.GetAircraft(ctx, center, radiusKm)
	if err != nil {
		return nil, false, err
	}
	if a.snapshots != nil {
		a.snapshots.Add(key, aircraft)
	}
	return aircraft, false, nil
}

// usablePosition rejects missing or placeholder (0,0) positions.
func usablePosition(ac adsb.Aircraft) bool {
	if !ac.HasPosition() {
		return false
	}
	return ac.Latitude != 0 || ac.Longitude != 0
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
