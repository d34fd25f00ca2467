package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/unklstewy/flightboard/pkg/coordinates"
)

// OpenSkyBaseURL is the OpenSky Network REST API root.
const OpenSkyBaseURL = "https://opensky-network.org/api"

// OpenSkyStatesClient implements DataSource using OpenSky /states/all with a
// bounding box. When a TokenSource is configured requests carry a bearer
// token; a token failure falls back to anonymous access.
type OpenSkyStatesClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// NewOpenSkyStatesClient creates a states client. tokens may be nil.
func NewOpenSkyStatesClient(baseURL string, tokens TokenSource, logger *slog.Logger) *OpenSkyStatesClient {
	if baseURL == "" {
		baseURL = OpenSkyBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenSkyStatesClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// Name implements DataSource.
func (c *OpenSkyStatesClient) Name() string { return "opensky" }

// Close implements DataSource.
func (c *OpenSkyStatesClient) Close() error { return nil }

// openSkyStates mirrors the JSON shape returned by /states/all.
type openSkyStates struct {
	Time   int64           `json:"time"`
	States [][]interface{} `json:"states"`
}

// GetAircraft implements DataSource.
func (c *OpenSkyStatesClient) GetAircraft(ctx context.Context, center coordinates.Geographic, radiusKm float64) ([]Aircraft, error) {
	box := coordinates.BoundingBoxAround(center, radiusKm)

	q := url.Values{}
	q.Set("lamin", fmt.Sprintf("%.4f", box.LatMin))
	q.Set("lomin", fmt.Sprintf("%.4f", box.LonMin))
	q.Set("lamax", fmt.Sprintf("%.4f", box.LatMax))
	q.Set("lomax", fmt.Sprintf("%.4f", box.LonMax))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/states/all?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		if token, err := c.tokens.Token(ctx); err != nil {
			c.logger.Warn("OpenSky token unavailable, querying anonymously", slog.Any("error", err))
		} else {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, newRateLimitError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var raw openSkyStates
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return parseStates(raw), nil
}

// parseStates converts OpenSky state vectors. Index layout:
// 0 icao24, 1 callsign, 4 last_contact, 5 lon, 6 lat, 7 baro_altitude (m),
// 9 velocity (m/s), 10 true_track, 11 vertical_rate (m/s), 13 geo_altitude (m).
func parseStates(raw openSkyStates) []Aircraft {
	aircraft := make([]Aircraft, 0, len(raw.States))
	for _, s := range raw.States {
		if len(s) < 12 {
			continue
		}
		lon, okLon := s[5].(float64)
		lat, okLat := s[6].(float64)
		if !okLon || !okLat {
			continue
		}

		ac := Aircraft{
			ICAO:      stringVal(s[0]),
			Callsign:  cleanCallsign(stringVal(s[1])),
			Latitude:  lat,
			Longitude: lon,
		}
		if len(s) > 13 {
			if v, ok := s[13].(float64); ok {
				ac.Altitude = v * feetPerMeter
			}
		}
		if ac.Altitude == 0 {
			if v, ok := s[7].(float64); ok {
				ac.Altitude = v * feetPerMeter
			}
		}
		if v, ok := s[9].(float64); ok {
			ac.GroundSpeed = v * knotsPerMs
		}
		if v, ok := s[10].(float64); ok {
			ac.Track = v
		}
		if v, ok := s[11].(float64); ok {
			ac.VerticalRate = v * feetPerMinPerMs
		}
		if v, ok := s[4].(float64); ok {
			ac.LastSeen = time.Unix(int64(v), 0).UTC()
		}
		aircraft = append(aircraft, ac)
	}
	return aircraft
}

func stringVal(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
