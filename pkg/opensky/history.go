package opensky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the OpenSky REST API root.
const DefaultBaseURL = "https://opensky-network.org/api"

var (
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("opensky: rate limited")

	// ErrUnauthorized is returned on HTTP 401. The cached token has already
	// been reset when a caller sees it.
	ErrUnauthorized = errors.New("opensky: unauthorized")

	// ErrThrottled is returned when the local rate limiter refuses to wait
	// for a slot. No request reached OpenSky.
	ErrThrottled = errors.New("opensky: throttled locally")
)

// Authenticator supplies and invalidates bearer tokens. *TokenManager
// implements it.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
	Reset()
}

// Flight is one entry of the /flights/aircraft response.
type Flight struct {
	ICAO24              string  `json:"icao24"`
	FirstSeen           int64   `json:"firstSeen"`
	EstDepartureAirport *string `json:"estDepartureAirport"`
	LastSeen            int64   `json:"lastSeen"`
	EstArrivalAirport   *string `json:"estArrivalAirport"`
	Callsign            *string `json:"callsign"`
}

// Route is a departure/arrival airport pair. Either side may be empty.
type Route struct {
	From string
	To   string
}

// Empty reports whether neither airport is known.
func (r Route) Empty() bool {
	return r.From == "" && r.To == ""
}

// HistoryConfig configures a HistoryClient.
type HistoryConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// RequestsPerMinute caps outgoing history calls. Zero means unlimited.
	RequestsPerMinute float64

	// WindowStart and WindowEnd are offsets back from now. OpenSky only
	// publishes flight history after a delay, so the defaults are 3 and 2
	// days.
	WindowStart time.Duration
	WindowEnd   time.Duration

	// MaxPartition splits wider windows into several requests, most recent
	// first. Zero means a single request.
	MaxPartition time.Duration

	// Timeout is the per-request HTTP timeout, default 10s.
	Timeout time.Duration
}

// HistoryClient queries OpenSky flight history by ICAO24 address.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
	auth       Authenticator
	limiter    *rate.Limiter
	cfg        HistoryConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewHistoryClient creates a history client. auth may be nil for anonymous
// access; logger may be nil.
func NewHistoryClient(cfg HistoryConfig, auth Authenticator, logger *slog.Logger) *HistoryClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.WindowStart <= 0 {
		cfg.WindowStart = 72 * time.Hour
	}
	if cfg.WindowEnd <= 0 || cfg.WindowEnd >= cfg.WindowStart {
		cfg.WindowEnd = cfg.WindowStart - 24*time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}

	return &HistoryClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		auth:       auth,
		limiter:    rate.NewLimiter(limit, 1),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces time.Now, for tests.
func (c *HistoryClient) SetClock(now func() time.Time) {
	c.now = now
}

// FlightsByAircraft returns the flights of one aircraft between begin and
// end. No flights (including HTTP 404) is an empty slice and a nil error.
func (c *HistoryClient) FlightsByAircraft(ctx context.Context, icao24 string, begin, end time.Time) ([]Flight, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrThrottled, err)
	}

	q := url.Values{}
	q.Set("icao24", strings.ToLower(strings.TrimSpace(icao24)))
	q.Set("begin", strconv.FormatInt(begin.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/flights/aircraft?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.auth != nil {
		if token, err := c.auth.Token(ctx); err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			c.logger.Debug("OpenSky history request without token", slog.Any("error", err))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	case http.StatusUnauthorized:
		if c.auth != nil {
			c.auth.Reset()
		}
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		if ra := resp.Header.Get("X-Rate-Limit-Retry-After-Seconds"); ra != "" {
			return nil, fmt.Errorf("%w (retry after %ss)", ErrRateLimited, ra)
		}
		return nil, ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var flights []Flight
	if err := json.NewDecoder(resp.Body).Decode(&flights); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return flights, nil
}

// LatestRoute returns the airports of the most recent flight of icao24
// inside the history window. The window is searched newest partition first
// and the first partition with any flights wins. An aircraft with no history
// yields an empty Route and a nil error.
func (c *HistoryClient) LatestRoute(ctx context.Context, icao24 string) (Route, error) {
	if strings.TrimSpace(icao24) == "" {
		return Route{}, nil
	}

	now := c.now()
	for _, span := range c.partitions(now.Add(-c.cfg.WindowStart), now.Add(-c.cfg.WindowEnd)) {
		flights, err := c.FlightsByAircraft(ctx, icao24, span[0], span[1])
		if err != nil {
			return Route{}, err
		}
		if len(flights) == 0 {
			continue
		}
		return routeOf(mostRecent(flights)), nil
	}
	return Route{}, nil
}

// partitions splits [begin, end] into spans no longer than MaxPartition,
// ordered newest first.
func (c *HistoryClient) partitions(begin, end time.Time) [][2]time.Time {
	step := c.cfg.MaxPartition
	if step <= 0 || end.Sub(begin) <= step {
		return [][2]time.Time{{begin, end}}
	}

	var spans [][2]time.Time
	for hi := end; hi.After(begin); hi = hi.Add(-step) {
		lo := hi.Add(-step)
		if lo.Before(begin) {
			lo = begin
		}
		spans = append(spans, [2]time.Time{lo, hi})
	}
	return spans
}

func mostRecent(flights []Flight) Flight {
	latest := flights[0]
	for _, f := range flights[1:] {
		if f.LastSeen > latest.LastSeen {
			latest = f
		}
	}
	return latest
}

func routeOf(f Flight) Route {
	var r Route
	if f.EstDepartureAirport != nil {
		r.From = strings.TrimSpace(*f.EstDepartureAirport)
	}
	if f.EstArrivalAirport != nil {
		r.To = strings.TrimSpace(*f.EstArrivalAirport)
	}
	return r
}
