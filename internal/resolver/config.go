package resolver

import (
	"log/slog"
	"time"

	"github.com/unklstewy/flightboard/internal/events"
	"github.com/unklstewy/flightboard/pkg/config"
	"github.com/unklstewy/flightboard/pkg/flightaware"
	"github.com/unklstewy/flightboard/pkg/opensky"
)

// FromConfig builds a Resolver for the configured route source. tokens may
// be nil, in which case OpenSky history is queried anonymously.
func FromConfig(cfg *config.Config, tokens *opensky.TokenManager, publisher events.Publisher, logger *slog.Logger) *Resolver {
	r := &Resolver{
		Enabled:        cfg.OpenSky.Enabled,
		CacheDays:      cfg.OpenSky.CacheDays,
		SuppressWindow: cfg.OpenSky.SuppressWindow(),
		Publisher:      publisher,
		Logger:         logger,
	}

	switch cfg.RouteSource {
	case config.RouteSourceFlightAware:
		r.Enabled = cfg.FlightAware.Enabled && cfg.FlightAware.APIKey != ""
		r.Source = NewFlightAwareSource(flightaware.NewClient(flightaware.Config{
			APIKey:          cfg.FlightAware.APIKey,
			RequestsPerHour: cfg.FlightAware.RequestsPerHour,
			BaseURL:         cfg.FlightAware.BaseURL,
		}))
	default:
		var auth opensky.Authenticator
		if tokens != nil {
			auth = tokens
		}
		r.Source = NewOpenSkySource(opensky.NewHistoryClient(opensky.HistoryConfig{
			BaseURL:           cfg.OpenSky.BaseURL,
			RequestsPerMinute: cfg.OpenSky.RequestsPerMinute,
			MaxPartition:      time.Duration(cfg.OpenSky.HistoryPartitionHours) * time.Hour,
		}, auth, logger))
	}
	return r
}
