package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/unklstewy/flightboard/pkg/coordinates"
)

// AirLabsBaseURL is the AirLabs Data API v9 endpoint.
const AirLabsBaseURL = "https://airlabs.co/api/v9"

// AirLabsClient implements DataSource against the AirLabs /flights endpoint.
// AirLabs has no radius parameter, so queries are geofenced with a bounding box.
// Unlike the raw ADS-B feeds it also reports scheduled departure/arrival airports.
type AirLabsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAirLabsClient creates an AirLabs client. An empty baseURL selects the public API.
func NewAirLabsClient(baseURL, apiKey string) *AirLabsClient {
	if baseURL == "" {
		baseURL = AirLabsBaseURL
	}
	return &AirLabsClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Name implements DataSource.
func (c *AirLabsClient) Name() string { return "airlabs" }

// Close implements DataSource.
func (c *AirLabsClient) Close() error { return nil }

type airLabsResponse struct {
	Response []airLabsFlight `json:"response"`
	Error    *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

type airLabsFlight struct {
	Hex         string   `json:"hex"`
	FlightICAO  string   `json:"flight_icao"`
	FlightIATA  string   `json:"flight_iata"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Alt         float64  `json:"alt"`   // meters
	Dir         float64  `json:"dir"`   // degrees
	Speed       float64  `json:"speed"` // km/h
	VSpeed      float64  `json:"v_speed"`
	AirlineICAO string   `json:"airline_icao"`
	DepICAO     string   `json:"dep_icao"`
	DepIATA     string   `json:"dep_iata"`
	ArrICAO     string   `json:"arr_icao"`
	ArrIATA     string   `json:"arr_iata"`
	Updated     int64    `json:"updated"` // unix seconds
}

// GetAircraft implements DataSource.
func (c *AirLabsClient) GetAircraft(ctx context.Context, center coordinates.Geographic, radiusKm float64) ([]Aircraft, error) {
	box := coordinates.BoundingBoxAround(center, radiusKm)

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	// bbox order is SW lat, SW lng, NE lat, NE lng
	q.Set("bbox", fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", box.LatMin, box.LonMin, box.LatMax, box.LonMax))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/flights?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

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

	var apiResp airLabsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	// AirLabs reports key/quota problems with HTTP 200 and an error object
	if apiResp.Error != nil {
		return nil, fmt.Errorf("AirLabs error %s: %s", apiResp.Error.Code, apiResp.Error.Message)
	}

	aircraft := make([]Aircraft, 0, len(apiResp.Response))
	for _, f := range apiResp.Response {
		if f.Lat == nil || f.Lng == nil {
			continue
		}
		aircraft = append(aircraft, convertAirLabsFlight(f))
	}
	return aircraft, nil
}

func convertAirLabsFlight(f airLabsFlight) Aircraft {
	ac := Aircraft{
		ICAO:         f.Hex,
		Callsign:     cleanCallsign(f.FlightICAO),
		Latitude:     *f.Lat,
		Longitude:    *f.Lng,
		Altitude:     f.Alt * feetPerMeter,
		GroundSpeed:  f.Speed * knotsPerKmh,
		Track:        f.Dir,
		VerticalRate: f.VSpeed * feetPerMinPerMs,
		AirlineICAO:  f.AirlineICAO,
		Origin:       firstNonEmpty(f.DepIATA, f.DepICAO),
		Destination:  firstNonEmpty(f.ArrIATA, f.ArrICAO),
	}
	if ac.Callsign == "" {
		ac.Callsign = cleanCallsign(f.FlightIATA)
	}
	if f.Updated > 0 {
		ac.LastSeen = time.Unix(f.Updated, 0).UTC()
	} else {
		ac.LastSeen = time.Now().UTC()
	}
	return ac
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
