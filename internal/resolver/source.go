package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/unklstewy/flightboard/pkg/adsb"
	"github.com/unklstewy/flightboard/pkg/flightaware"
	"github.com/unklstewy/flightboard/pkg/opensky"
)

// RouteSource looks up the route an aircraft is flying. Returning two
// empty strings with a nil error means the service has no data.
type RouteSource interface {
	Name() string
	LookupRoute(ctx context.Context, obs adsb.Aircraft) (from, to string, err error)
}

// historyClient is the part of *opensky.HistoryClient used by OpenSkySource.
type historyClient interface {
	LatestRoute(ctx context.Context, icao24 string) (opensky.Route, error)
}

// OpenSkySource resolves routes from OpenSky flight history by ICAO24.
type OpenSkySource struct {
	client historyClient
}

// NewOpenSkySource wraps an OpenSky history client.
func NewOpenSkySource(client *opensky.HistoryClient) *OpenSkySource {
	return &OpenSkySource{client: client}
}

// Name implements RouteSource.
func (s *OpenSkySource) Name() string { return "opensky" }

// LookupRoute implements RouteSource.
func (s *OpenSkySource) LookupRoute(ctx context.Context, obs adsb.Aircraft) (string, string, error) {
	route, err := s.client.LatestRoute(ctx, strings.ToLower(strings.TrimSpace(obs.ICAO)))
	if err != nil {
		if errors.Is(err, opensky.ErrUnauthorized) {
			return "", "", fmt.Errorf("opensky rejected credentials: %w", err)
		}
		return "", "", err
	}
	return route.From, route.To, nil
}

// flightAwareClient is the part of *flightaware.Client used by FlightAwareSource.
type flightAwareClient interface {
	CurrentRoute(ctx context.Context, ident string) (from, to string, err error)
}

// FlightAwareSource resolves routes from AeroAPI by callsign.
type FlightAwareSource struct {
	client flightAwareClient
}

// NewFlightAwareSource wraps an AeroAPI client.
func NewFlightAwareSource(client *flightaware.Client) *FlightAwareSource {
	return &FlightAwareSource{client: client}
}

// Name implements RouteSource.
func (s *FlightAwareSource) Name() string { return "flightaware" }

// LookupRoute implements RouteSource.
func (s *FlightAwareSource) LookupRoute(ctx context.Context, obs adsb.Aircraft) (string, string, error) {
	ident := strings.TrimSpace(obs.Callsign)
	if ident == "" {
		return "", "", nil
	}
	return s.client.CurrentRoute(ctx, ident)
}
