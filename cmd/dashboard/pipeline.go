package main

import (
	"log/slog"

	"github.com/unklstewy/flightboard/internal/events"
	"github.com/unklstewy/flightboard/internal/nearby"
	"github.com/unklstewy/flightboard/internal/resolver"
	"github.com/unklstewy/flightboard/internal/routecache"
	"github.com/unklstewy/flightboard/pkg/adsb"
	"github.com/unklstewy/flightboard/pkg/config"
	"github.com/unklstewy/flightboard/pkg/opensky"
)

// pipeline is everything derived from one configuration. It is rebuilt
// when the configuration is replaced over the API.
type pipeline struct {
	cfg        *config.Config
	feed       adsb.DataSource
	resolver   *resolver.Resolver
	aggregator *nearby.Aggregator
}

// newPipeline wires the feed, resolver and aggregator for cfg. The token
// manager is rebuilt too, so credential changes apply immediately.
func newPipeline(cfg *config.Config, cache *routecache.Cache, publisher events.Publisher, logger *slog.Logger) *pipeline {
	var tokens *opensky.TokenManager
	if cfg.OpenSky.ClientID != "" && cfg.OpenSky.ClientSecret != "" {
		tokens = opensky.NewTokenManager(cfg.OpenSky.ClientID, cfg.OpenSky.ClientSecret, cfg.OpenSky.TokenURL,
			opensky.WithLogger(logger))
	}

	feed := newFeed(cfg, tokens, logger)
	res := resolver.FromConfig(cfg, tokens, publisher, logger)
	agg := nearby.New(feed, res, cache, nearby.Config{
		Limit:   cfg.EffectiveLimit(),
		FeedTTL: cfg.FeedCacheTTL(),
	}, logger)

	return &pipeline{cfg: cfg, feed: feed, resolver: res, aggregator: agg}
}

// newFeed returns the configured live aircraft feed.
func newFeed(cfg *config.Config, tokens *opensky.TokenManager, logger *slog.Logger) adsb.DataSource {
	switch cfg.Feed.Provider {
	case config.ProviderAirLabs:
		baseURL := cfg.AirLabs.BaseURL
		if baseURL == "" {
			baseURL = cfg.Feed.BaseURL
		}
		return adsb.NewAirLabsClient(baseURL, cfg.AirLabs.APIKey)
	case config.ProviderOpenSky:
		var ts adsb.TokenSource
		if tokens != nil {
			ts = tokens
		}
		return adsb.NewOpenSkyStatesClient(cfg.Feed.BaseURL, ts, logger)
	default:
		return adsb.NewAirplanesLiveClient(cfg.Feed.BaseURL)
	}
}
