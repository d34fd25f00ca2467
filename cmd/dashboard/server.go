package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/flightboard/internal/auth"
	"github.com/unklstewy/flightboard/internal/events"
	"github.com/unklstewy/flightboard/internal/routecache"
	"github.com/unklstewy/flightboard/pkg/adsb"
	"github.com/unklstewy/flightboard/pkg/config"
	"github.com/unklstewy/flightboard/pkg/coordinates"
)

const version = "1.0.0"

// Server holds the HTTP router and its dependencies
type Server struct {
	router     *chi.Mux
	configPath string
	cache      *routecache.Cache
	publisher  events.Publisher
	authSvc    *auth.Service
	logger     *slog.Logger

	mu   sync.RWMutex
	pipe *pipeline
}

// NewServer builds the router for cfg.
func NewServer(cfg *config.Config, configPath string, cache *routecache.Cache, publisher events.Publisher, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		configPath: configPath,
		cache:      cache,
		publisher:  publisher,
		authSvc:    newAuthService(cfg),
		logger:     logger,
		pipe:       newPipeline(cfg, cache, publisher, logger),
	}
	s.setupRoutes(cfg.Server.AllowedOrigins, cfg.RequestTimeout())
	return s
}

func newAuthService(cfg *config.Config) *auth.Service {
	return auth.NewService(auth.Config{
		Username:      cfg.Admin.Username,
		PasswordHash:  cfg.Admin.PasswordHash,
		JWTSecret:     cfg.Admin.JWTSecret,
		TokenDuration: time.Duration(cfg.Admin.TokenHours) * time.Hour,
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the live feed.
func (s *Server) Close() error {
	return s.current().feed.Close()
}

func (s *Server) current() *pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipe
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(origins []string, timeout time.Duration) {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(timeout))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})

	r.Get("/content/*", s.handleServeContent)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/content", s.handleListContent)
		r.With(s.requireAdmin).Delete("/content/{filename}", s.handleDeleteContent)
		r.Get("/config", s.handleGetConfig)
		r.With(s.requireAdmin).Post("/config", s.handleUpdateConfig)
		r.Get("/flights/nearby", s.handleNearbyFlights)
		r.Get("/routes/{callsign}", s.handleResolveRoute)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/auth/login", s.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/admin/routes", s.handleListRoutes)
				r.Get("/admin/routes/{key}", s.handleGetRoute)
				r.Put("/admin/routes/{key}", s.handleSetRoute)
			})
		})
	})
}

// requireAdmin defers to the current auth service, which changes with the
// configuration.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		svc := s.authSvc
		s.mu.RUnlock()
		svc.Middleware(next).ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.current().cfg.Redacted())
}

// handleUpdateConfig replaces the configuration. Redacted secrets posted
// back unchanged keep their stored values.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	prev := s.current().cfg

	next := config.DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(next); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}
	next.MergeSecrets(prev)

	if err := next.Validate(); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	if err := next.Save(s.configPath); err != nil {
		s.logger.Error("Config save failed", slog.Any("error", err))
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "Failed to save configuration",
		})
		return
	}

	pipe := newPipeline(next, s.cache, s.publisher, s.logger)
	s.mu.Lock()
	old := s.pipe
	s.pipe = pipe
	s.authSvc = newAuthService(next)
	s.mu.Unlock()
	old.feed.Close()

	s.logger.Info("Configuration updated",
		slog.String("provider", next.Feed.Provider),
		slog.String("route_source", next.RouteSource))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Configuration updated",
	})
}

// handleNearbyFlights returns the closest flights around the configured
// location, or around lat/lon when given.
func (s *Server) handleNearbyFlights(w http.ResponseWriter, r *http.Request) {
	p := s.current()
	center := coordinates.Geographic{
		Latitude:  p.cfg.Location.Latitude,
		Longitude: p.cfg.Location.Longitude,
	}
	radius := p.cfg.EffectiveRadiusKm()

	q := r.URL.Query()
	var err error
	if center.Latitude, err = floatParam(q.Get("lat"), center.Latitude, -90, 90); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lat")
		return
	}
	if center.Longitude, err = floatParam(q.Get("lon"), center.Longitude, -180, 180); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lon")
		return
	}
	if radius, err = floatParam(q.Get("radius_km"), radius, 0, 500); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid radius_km")
		return
	}

	flights := p.aggregator.NearbyFlights(r.Context(), center, radius)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"flights":   flights,
		"count":     len(flights),
		"center":    map[string]float64{"latitude": center.Latitude, "longitude": center.Longitude},
		"radius_km": radius,
		"provider":  p.feed.Name(),
	})
}

// handleResolveRoute resolves one callsign. icao24 enables an upstream
// lookup; without it only the cache is consulted.
func (s *Server) handleResolveRoute(w http.ResponseWriter, r *http.Request) {
	callsign := routecache.NormalizeKey(chi.URLParam(r, "callsign"))
	obs := adsb.Aircraft{
		Callsign: callsign,
		ICAO:     strings.TrimSpace(r.URL.Query().Get("icao24")),
	}

	from, to := s.current().resolver.Resolve(r.Context(), obs, s.cache.Snapshot(r.Context()))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"callsign": callsign,
		"from":     from,
		"to":       to,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.RLock()
	svc := s.authSvc
	s.mu.RUnlock()

	token, expiresAt, err := svc.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		respondError(w, http.StatusServiceUnavailable, "Admin login is not configured")
		return
	case err != nil:
		s.logger.Warn("Admin login rejected", slog.String("username", req.Username))
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.cache.List(r.Context())
	if err != nil {
		s.logger.Error("Route cache list failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Failed to read route cache")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"routes": routes,
		"count":  len(routes),
	})
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	key := routecache.NormalizeKey(chi.URLParam(r, "key"))
	e, err := s.cache.Get(r.Context(), key)
	switch {
	case errors.Is(err, routecache.ErrNotFound):
		respondError(w, http.StatusNotFound, "Route not found")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Failed to read route cache")
		return
	}
	respondJSON(w, http.StatusOK, routecache.KeyedEntry{Key: key, Entry: e})
}

func (s *Server) handleSetRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.From) == "" && strings.TrimSpace(req.To) == "" {
		respondError(w, http.StatusBadRequest, "from or to is required")
		return
	}

	key := routecache.NormalizeKey(chi.URLParam(r, "key"))
	e, err := s.cache.Set(r.Context(), key, req.From, req.To)
	if err != nil {
		s.logger.Error("Route cache write failed", slog.String("key", key), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Failed to store route")
		return
	}

	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		s.logger.Info("Route set manually",
			slog.String("key", key),
			slog.String("from", e.From),
			slog.String("to", e.To),
			slog.String("by", claims.Username))
	}
	if err := s.publisher.PublishRoute(r.Context(), events.RouteResolved{
		Key:    key,
		From:   e.From,
		To:     e.To,
		Source: "manual",
		At:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("Route event publish failed", slog.Any("error", err))
	}

	respondJSON(w, http.StatusOK, routecache.KeyedEntry{Key: key, Entry: e})
}

// floatParam parses an optional query value within [min, max].
func floatParam(raw string, def, min, max float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || v < min || v > max {
		return 0, errors.New("out of range")
	}
	return v, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// shutdown stops srv within timeout.
func shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
