package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/flightboard/pkg/coordinates"
)

// AirplanesLiveBaseURL is the public airplanes.live v2 endpoint.
const AirplanesLiveBaseURL = "https://api.airplanes.live/v2"

// AirplanesLiveClient implements the DataSource interface for airplanes.live API.
// API Documentation: https://airplanes.live/api-guide/
// Rate Limit: 1 request per second
type AirplanesLiveClient struct {
	// baseURL is the API base URL (default: https://api.airplanes.live/v2)
	baseURL string

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// limiter spaces requests at least one second apart
	limiter *rate.Limiter
}

// NewAirplanesLiveClient creates a new airplanes.live API client.
// baseURL should be "https://api.airplanes.live/v2" (or custom for testing)
func NewAirplanesLiveClient(baseURL string) *AirplanesLiveClient {
	if baseURL == "" {
		baseURL = AirplanesLiveBaseURL
	}
	return &AirplanesLiveClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Name implements DataSource.
func (c *AirplanesLiveClient) Name() string { return "airplanes.live" }

// GetAircraft returns all aircraft within a radius of a given point.
// Uses the /point/[lat]/[lon]/[radius] endpoint, which takes nautical miles.
// Maximum radius is 250 nautical miles.
func (c *AirplanesLiveClient) GetAircraft(ctx context.Context, center coordinates.Geographic, radiusKm float64) ([]Aircraft, error) {
	radiusNM := coordinates.KmToNauticalMiles(radiusKm)
	if radiusNM > 250.0 {
		radiusNM = 250.0
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/point/%.4f/%.4f/%.0f", c.baseURL, center.Latitude, center.Longitude, radiusNM)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aircraft data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, newRateLimitError(resp)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp airplanesLiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	aircraft := make([]Aircraft, 0, len(apiResp.Aircraft))
	for _, ac := range apiResp.Aircraft {
		// Skip aircraft with invalid data
		if ac.Lat == nil || ac.Lon == nil {
			continue
		}

		aircraft = append(aircraft, convertAirplanesLiveAircraft(ac))
	}

	return aircraft, nil
}

// Close cleanly shuts down the client.
// For airplanes.live, this is a no-op as there are no persistent connections.
func (c *AirplanesLiveClient) Close() error {
	return nil
}

// airplanesLiveResponse represents the JSON response from airplanes.live API.
type airplanesLiveResponse struct {
	// Aircraft is the array of aircraft data
	Aircraft []airplanesLiveAircraft `json:"ac"`

	// Total number of aircraft
	Total int `json:"total"`

	// Current timestamp
	Now float64 `json:"now"`
}

// airplanesLiveAircraft represents a single aircraft in the airplanes.live API response.
// Field documentation: https://airplanes.live/adsb-field-explanations/
type airplanesLiveAircraft struct {
	Hex      string      `json:"hex"`
	Flight   *string     `json:"flight"`
	Lat      *float64    `json:"lat"`
	Lon      *float64    `json:"lon"`
	AltBaro  interface{} `json:"alt_baro"` // float or "ground"
	AltGeom  interface{} `json:"alt_geom"` // float or "ground"
	Gs       *float64    `json:"gs"`
	Track    *float64    `json:"track"`
	BaroRate *float64    `json:"baro_rate"`
	Seen     *float64    `json:"seen"`
}

// convertAirplanesLiveAircraft converts an airplanes.live aircraft to our Aircraft type.
func convertAirplanesLiveAircraft(ac airplanesLiveAircraft) Aircraft {
	aircraft := Aircraft{
		ICAO: ac.Hex,
	}

	if ac.Flight != nil {
		aircraft.Callsign = cleanCallsign(*ac.Flight)
	}

	if ac.Lat != nil {
		aircraft.Latitude = *ac.Lat
	}
	if ac.Lon != nil {
		aircraft.Longitude = *ac.Lon
	}

	// Altitude - prefer geometric (GPS) over barometric
	if alt := parseAltitude(ac.AltGeom); alt != nil {
		aircraft.Altitude = *alt
	} else if alt := parseAltitude(ac.AltBaro); alt != nil {
		aircraft.Altitude = *alt
	}

	if ac.Gs != nil {
		aircraft.GroundSpeed = *ac.Gs
	}
	if ac.Track != nil {
		aircraft.Track = *ac.Track
	}
	if ac.BaroRate != nil {
		aircraft.VerticalRate = *ac.BaroRate
	}

	// Timestamp - calculate from "seen" seconds ago
	if ac.Seen != nil {
		seenDuration := time.Duration(*ac.Seen * float64(time.Second))
		aircraft.LastSeen = time.Now().UTC().Add(-seenDuration)
	} else {
		aircraft.LastSeen = time.Now().UTC()
	}

	return aircraft
}

// parseAltitude safely extracts altitude from interface{} which can be float64 or string.
// Returns nil if the value is invalid.
func parseAltitude(val interface{}) *float64 {
	if val == nil {
		return nil
	}

	switch v := val.(type) {
	case float64:
		return &v
	case string:
		// "ground" means altitude is 0 or on ground
		if v == "ground" {
			zero := 0.0
			return &zero
		}
		return nil
	default:
		return nil
	}
}
