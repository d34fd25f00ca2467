// Package flightaware provides a client for the FlightAware AeroAPI v4.
//
// The dashboard uses it as an alternative route source: AeroAPI knows the
// filed origin and destination of a flight by its ident (callsign), which
// covers aircraft that have no OpenSky history yet.
//
// API Documentation: https://www.flightaware.com/aeroapi/portal/documentation
// Rate Limits: Free tier allows 500 requests/month, paid tiers offer higher limits.
package flightaware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the FlightAware AeroAPI v4 base URL
	BaseURL = "https://aeroapi.flightaware.com/aeroapi"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second
)

// ErrRateLimited is returned when AeroAPI answers 429.
var ErrRateLimited = errors.New("flightaware: rate limited")

// ErrThrottled is returned when the local rate limiter refuses to wait for a
// slot. No request reached AeroAPI.
var ErrThrottled = errors.New("flightaware: throttled locally")

// Client represents a FlightAware AeroAPI client.
type Client struct {
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
}

// Config contains configuration for the FlightAware client.
type Config struct {
	APIKey          string
	RequestsPerHour int
	Timeout         time.Duration

	// BaseURL overrides the AeroAPI endpoint (tests, proxies).
	BaseURL string
}

// NewClient creates a new FlightAware AeroAPI client with a client-side
// rate limiter sized from RequestsPerHour.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.RequestsPerHour == 0 {
		// Default: 500 requests/month ≈ 0.7 requests/hour, use 1 req/hour as safe default
		cfg.RequestsPerHour = 1
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}

	// Convert requests per hour to rate limiter (allows burst of 1)
	requestsPerSecond := float64(cfg.RequestsPerHour) / 3600.0
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), 1)

	return &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: limiter,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Airport is an origin or destination as reported by AeroAPI.
type Airport struct {
	ICAO string `json:"code_icao"` // e.g. "KCLT"
	IATA string `json:"code_iata"` // e.g. "CLT"
	Name string `json:"name"`
}

// Code returns the ICAO code, or the IATA code when AeroAPI has no ICAO one.
func (a *Airport) Code() string {
	if a == nil {
		return ""
	}
	if a.ICAO != "" {
		return a.ICAO
	}
	return a.IATA
}

// Flight is one entry of the /flights/{ident} response.
type Flight struct {
	Ident      string `json:"ident"`
	FAFlightID string `json:"fa_flight_id"`

	// Origin and Destination are null for position-only flights
	Origin      *Airport `json:"origin"`
	Destination *Airport `json:"destination"`

	ScheduledOut *time.Time `json:"scheduled_out"`
	ActualOff    *time.Time `json:"actual_off"`
	ActualOn     *time.Time `json:"actual_on"`

	AircraftType string `json:"aircraft_type"`
	Status       string `json:"status"` // e.g., "Scheduled", "En Route", "Arrived"
}

// Airborne reports whether the flight has taken off and not yet landed.
func (f Flight) Airborne() bool {
	return f.ActualOff != nil && f.ActualOn == nil
}

// FlightsByIdent returns the flights AeroAPI knows for a callsign, most
// recent first. A 404 is an empty result, not an error.
func (c *Client) FlightsByIdent(ctx context.Context, ident string) ([]Flight, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrThrottled, err)
	}

	endpoint := fmt.Sprintf("%s/flights/%s", c.baseURL, url.PathEscape(strings.TrimSpace(ident)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Flights []Flight `json:"flights"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return response.Flights, nil
}

// CurrentRoute returns origin and destination codes for the flight a
// callsign is most likely flying right now: the airborne leg if there is
// one, otherwise the most recent flight with any airport. Both are empty
// when nothing is known.
func (c *Client) CurrentRoute(ctx context.Context, ident string) (from, to string, err error) {
	flights, err := c.FlightsByIdent(ctx, ident)
	if err != nil {
		return "", "", err
	}

	for _, f := range flights {
		if f.Airborne() {
			return f.Origin.Code(), f.Destination.Code(), nil
		}
	}
	for _, f := range flights {
		if f.Origin.Code() != "" || f.Destination.Code() != "" {
			return f.Origin.Code(), f.Destination.Code(), nil
		}
	}
	return "", "", nil
}
