package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Feed providers.
const (
	ProviderAirplanesLive = "airplanes.live"
	ProviderAirLabs       = "airlabs"
	ProviderOpenSky       = "opensky"
)

// Route sources.
const (
	RouteSourceOpenSky     = "opensky"
	RouteSourceFlightAware = "flightaware"
)

// Route cache backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// redacted replaces secrets in Redacted output.
const redacted = "********"

// Config represents the complete dashboard configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Location    LocationConfig    `json:"location"`
	Feed        FeedConfig        `json:"feed"`
	AirLabs     AirLabsConfig     `json:"airlabs"`
	OpenSky     OpenSkyConfig     `json:"opensky"`
	FlightAware FlightAwareConfig `json:"flightaware"`

	// RouteSource selects the upstream used to resolve routes:
	// "opensky" (flight history by ICAO24) or "flightaware" (AeroAPI by callsign)
	RouteSource string `json:"route_source"`

	RouteCache RouteCacheConfig `json:"route_cache"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	NATS       NATSConfig       `json:"nats"`
	Admin      AdminConfig      `json:"admin"`
	Logging    LoggingConfig    `json:"logging"`
	Content    ContentConfig    `json:"content"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// RequestTimeoutSeconds bounds every API request, upstream calls included
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string `json:"allowed_origins"`
}

// LocationConfig is the dashboard's center point.
type LocationConfig struct {
	// Name is a friendly identifier shown on the display
	Name string `json:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`
}

// FeedConfig selects and tunes the live aircraft feed.
type FeedConfig struct {
	// Provider is "airplanes.live", "airlabs" or "opensky"
	Provider string `json:"provider"`

	// BaseURL overrides the provider's API root
	BaseURL string `json:"base_url,omitempty"`

	// RadiusKm is the default search radius around the location
	RadiusKm float64 `json:"radius_km"`

	// Limit is the number of nearest flights returned.
	// 0 selects the provider default (AirLabs 5, others 4).
	Limit int `json:"limit"`

	// CacheTTLSeconds memoizes feed snapshots for repeated requests
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

// AirLabsConfig contains AirLabs Data API settings.
type AirLabsConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`

	// RadiusKm overrides feed.radius_km when AirLabs is the provider
	RadiusKm float64 `json:"radius_km,omitempty"`
}

// OpenSkyConfig contains OpenSky Network settings for route lookups.
type OpenSkyConfig struct {
	// Enabled turns upstream route lookups on. When false only cached
	// routes are served.
	Enabled bool `json:"enabled"`

	// ClientID and ClientSecret are OAuth2 client credentials.
	// Without them requests are anonymous.
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`

	// CacheDays is how many whole days a cached route stays fresh
	CacheDays int `json:"cache_days"`

	BaseURL  string `json:"base_url,omitempty"`
	TokenURL string `json:"token_url,omitempty"`

	// RequestsPerMinute caps flight history calls (0 = unlimited)
	RequestsPerMinute float64 `json:"requests_per_minute"`

	// SuppressHours is how long a not-found result blocks new lookups
	SuppressHours int `json:"suppress_hours"`

	// HistoryPartitionHours splits the history window into smaller requests (0 = one request)
	HistoryPartitionHours int `json:"history_partition_hours,omitempty"`
}

// FlightAwareConfig contains FlightAware AeroAPI settings.
type FlightAwareConfig struct {
	// APIKey is the FlightAware API key for AeroAPI v4
	// Sign up at: https://www.flightaware.com/aeroapi/
	APIKey string `json:"api_key"`

	// Enabled determines if FlightAware integration should be used
	Enabled bool `json:"enabled"`

	// RequestsPerHour limits the API call rate
	// Free tier: ~0.7 requests/hour (500/month)
	// Basic tier: ~340 requests/hour (250,000/month)
	RequestsPerHour int `json:"requests_per_hour"`

	BaseURL string `json:"base_url,omitempty"`
}

// RouteCacheConfig selects where resolved routes are persisted.
type RouteCacheConfig struct {
	// Backend is "file", "sqlite", "postgres" or "redis"
	Backend string `json:"backend"`

	// Path is the JSON file or SQLite database path
	Path string `json:"path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Driver is the database driver (postgres)
	Driver string `json:"driver"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`
}

// RedisConfig is used by the redis route cache backend.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`

	// Key is the hash holding all routes
	Key string `json:"key"`
}

// NATSConfig enables route resolution events. Empty URL disables publishing.
type NATSConfig struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

// AdminConfig protects configuration and cache maintenance endpoints.
type AdminConfig struct {
	Username string `json:"username"`

	// PasswordHash is a bcrypt hash (see `routecache hash-password`)
	PasswordHash string `json:"password_hash"`

	// JWTSecret signs admin session tokens
	JWTSecret string `json:"jwt_secret"`

	// TokenHours is the admin session lifetime
	TokenHours int `json:"token_hours"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level"`

	// Dir receives rotated log files. Empty logs to stderr only.
	Dir string `json:"dir"`
}

// ContentConfig locates the signage media shown between flight pages.
type ContentConfig struct {
	// Dir holds the media files (default: "content")
	Dir string `json:"dir"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Keys missing from the file keep their defaults. A .env file next to the
// config (or in the working directory) is loaded before environment
// overrides are applied.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                  "8080",
			Host:                  "0.0.0.0",
			RequestTimeoutSeconds: 20,
		},
		Location: LocationConfig{
			Name:      "Home",
			Latitude:  0.0,
			Longitude: 0.0,
		},
		Feed: FeedConfig{
			Provider:        ProviderAirplanesLive,
			RadiusKm:        50,
			CacheTTLSeconds: 10,
		},
		OpenSky: OpenSkyConfig{
			Enabled:           true,
			CacheDays:         7,
			RequestsPerMinute: 30,
			SuppressHours:     24,
		},
		FlightAware: FlightAwareConfig{
			Enabled:         false,
			RequestsPerHour: 1, // Conservative default for free tier
		},
		RouteSource: RouteSourceOpenSky,
		RouteCache: RouteCacheConfig{
			Backend: BackendFile,
			Path:    "data/routes.json",
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Database:     "flightboard",
			Username:     "flightboard",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "flightboard:routes",
		},
		NATS: NATSConfig{
			Subject: "flightboard.routes",
		},
		Admin: AdminConfig{
			Username:   "admin",
			TokenHours: 24,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Content: ContentConfig{
			Dir: "content",
		},
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		errs = append(errs, fmt.Errorf("location.latitude %v out of range", c.Location.Latitude))
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		errs = append(errs, fmt.Errorf("location.longitude %v out of range", c.Location.Longitude))
	}

	switch c.Feed.Provider {
	case ProviderAirplanesLive, ProviderOpenSky:
	case ProviderAirLabs:
		if c.AirLabs.APIKey == "" {
			errs = append(errs, errors.New("airlabs.api_key is required for the airlabs provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feed.provider %q", c.Feed.Provider))
	}
	if c.Feed.RadiusKm < 0 {
		errs = append(errs, errors.New("feed.radius_km must not be negative"))
	}
	if c.Feed.Limit < 0 {
		errs = append(errs, errors.New("feed.limit must not be negative"))
	}

	switch c.RouteSource {
	case RouteSourceOpenSky:
	case RouteSourceFlightAware:
		if c.FlightAware.APIKey == "" {
			errs = append(errs, errors.New("flightaware.api_key is required for the flightaware route source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown route_source %q", c.RouteSource))
	}
	if c.OpenSky.CacheDays < 0 {
		errs = append(errs, errors.New("opensky.cache_days must not be negative"))
	}

	switch c.RouteCache.Backend {
	case BackendFile, BackendSQLite:
		if c.RouteCache.Path == "" {
			errs = append(errs, fmt.Errorf("route_cache.path is required for the %s backend", c.RouteCache.Backend))
		}
	case BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown route_cache.backend %q", c.RouteCache.Backend))
	}

	if c.Content.Dir == "" {
		errs = append(errs, errors.New("content.dir is required"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe to expose over the API, with every secret
// replaced by a placeholder.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cp.AirLabs.APIKey)
	mask(&cp.OpenSky.ClientSecret)
	mask(&cp.FlightAware.APIKey)
	mask(&cp.Database.Password)
	mask(&cp.Redis.Password)
	mask(&cp.Admin.PasswordHash)
	mask(&cp.Admin.JWTSecret)
	return &cp
}

// MergeSecrets copies secrets from prev into c wherever c still carries the
// redaction placeholder, so a config read from GET /api/config can be posted
// back unchanged.
func (c *Config) MergeSecrets(prev *Config) {
	keep := func(dst *string, src string) {
		if *dst == redacted {
			*dst = src
		}
	}
	keep(&c.AirLabs.APIKey, prev.AirLabs.APIKey)
	keep(&c.OpenSky.ClientSecret, prev.OpenSky.ClientSecret)
	keep(&c.FlightAware.APIKey, prev.FlightAware.APIKey)
	keep(&c.Database.Password, prev.Database.Password)
	keep(&c.Redis.Password, prev.Redis.Password)
	keep(&c.Admin.PasswordHash, prev.Admin.PasswordHash)
	keep(&c.Admin.JWTSecret, prev.Admin.JWTSecret)
}

// EffectiveRadiusKm returns the search radius for the configured provider.
func (c *Config) EffectiveRadiusKm() float64 {
	if c.Feed.Provider == ProviderAirLabs && c.AirLabs.RadiusKm > 0 {
		return c.AirLabs.RadiusKm
	}
	return c.Feed.RadiusKm
}

// EffectiveLimit returns how many flights the nearby list is truncated to.
func (c *Config) EffectiveLimit() int {
	if c.Feed.Limit > 0 {
		return c.Feed.Limit
	}
	if c.Feed.Provider == ProviderAirLabs {
		return 5
	}
	return 4
}

// FeedCacheTTL returns the feed snapshot lifetime.
func (c *Config) FeedCacheTTL() time.Duration {
	return time.Duration(c.Feed.CacheTTLSeconds) * time.Second
}

// RequestTimeout returns the per-request deadline for API handlers.
func (c *Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// SuppressWindow returns how long a not-found route blocks new lookups.
func (c *OpenSkyConfig) SuppressWindow() time.Duration {
	if c.SuppressHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.SuppressHours) * time.Hour
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("FLIGHTBOARD_PORT"); port != "" {
		c.Server.Port = port
	}
	if dbPassword := os.Getenv("FLIGHTBOARD_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if key := os.Getenv("FLIGHTBOARD_AIRLABS_API_KEY"); key != "" {
		c.AirLabs.APIKey = key
	}
	if id := os.Getenv("FLIGHTBOARD_OPENSKY_CLIENT_ID"); id != "" {
		c.OpenSky.ClientID = id
	}
	if secret := os.Getenv("FLIGHTBOARD_OPENSKY_CLIENT_SECRET"); secret != "" {
		c.OpenSky.ClientSecret = secret
	}
	if enabled := os.Getenv("FLIGHTBOARD_OPENSKY_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			c.OpenSky.Enabled = b
		}
	}
	if faKey := os.Getenv("FLIGHTBOARD_FLIGHTAWARE_API_KEY"); faKey != "" {
		c.FlightAware.APIKey = faKey
	}
	if redisPassword := os.Getenv("FLIGHTBOARD_REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}
	if natsURL := os.Getenv("FLIGHTBOARD_NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}
	if secret := os.Getenv("FLIGHTBOARD_JWT_SECRET"); secret != "" {
		c.Admin.JWTSecret = secret
	}
	if backend := os.Getenv("FLIGHTBOARD_ROUTE_CACHE_BACKEND"); backend != "" {
		c.RouteCache.Backend = strings.ToLower(backend)
	}
}
