// Package adsb provides live aircraft position feeds.
//
// Every backend (airplanes.live, AirLabs, OpenSky) implements DataSource and
// produces the same Aircraft shape, so route enrichment and ranking are
// written once against the interface.
package adsb

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/unklstewy/flightboard/pkg/coordinates"
)

// Aircraft represents an aircraft tracked via ADS-B.
// All position data is in WGS84 coordinate system.
type Aircraft struct {
	// ICAO is the unique 24-bit ICAO aircraft address (e.g., "a12345")
	ICAO string

	// Callsign is the flight number or aircraft registration, trimmed
	Callsign string

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64

	// Altitude in feet above mean sea level (MSL)
	// Note: Some aircraft report geometric altitude, others barometric
	Altitude float64

	// GroundSpeed in knots
	GroundSpeed float64

	// Track is the ground track (heading) in degrees (0-359)
	// 0 = North, 90 = East, 180 = South, 270 = West
	Track float64

	// VerticalRate in feet per minute (positive = climbing, negative = descending)
	VerticalRate float64

	// AirlineICAO is the operator code when the feed reports one
	AirlineICAO string

	// Origin and Destination are airport codes reported by the feed itself.
	// Only some providers (AirLabs) fill these in.
	Origin      string
	Destination string

	// LastSeen is the timestamp of the last position update
	LastSeen time.Time
}

// Position returns the aircraft location as a Geographic point.
func (a Aircraft) Position() coordinates.Geographic {
	return coordinates.Geographic{Latitude: a.Latitude, Longitude: a.Longitude}
}

// HasPosition reports whether the aircraft carries a usable position.
func (a Aircraft) HasPosition() bool {
	if math.IsNaN(a.Latitude) || math.IsNaN(a.Longitude) {
		return false
	}
	if a.Latitude < -90 || a.Latitude > 90 || a.Longitude < -180 || a.Longitude > 180 {
		return false
	}
	return true
}

// DataSource is the interface that all ADS-B data providers must implement.
// This abstraction allows switching between online services without
// touching the aggregation and route enrichment code.
type DataSource interface {
	// Name identifies the provider in logs and API responses.
	Name() string

	// GetAircraft returns all currently tracked aircraft around a center
	// point. Providers with a native radius parameter use it; the others
	// geofence with coordinates.BoundingBoxAround.
	GetAircraft(ctx context.Context, center coordinates.Geographic, radiusKm float64) ([]Aircraft, error)

	// Close cleanly shuts down the data source connection.
	Close() error
}

// TokenSource supplies bearer tokens for feeds that accept authentication.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

const (
	feetPerMeter       = 3.28084
	knotsPerKmh        = 0.539957
	knotsPerMs         = 1.943844
	feetPerMinPerMs    = 196.850394
	defaultHTTPTimeout = 10 * time.Second
)

func cleanCallsign(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
