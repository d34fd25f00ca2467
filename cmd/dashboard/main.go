// Flightboard dashboard server.
// Serves nearby flights enriched with departure/arrival airports, plus the
// configuration and route cache maintenance API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/flightboard/internal/events"
	"github.com/unklstewy/flightboard/internal/logging"
	"github.com/unklstewy/flightboard/internal/routecache"
	"github.com/unklstewy/flightboard/pkg/config"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	lg := logging.New("dashboard", cfg.Logging.Level, cfg.Logging.Dir)
	defer lg.Close()
	logger := lg.Logger

	if err := run(cfg, logger); err != nil {
		logger.Error("Dashboard stopped", slog.Any("error", err))
		lg.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.Content.Dir, 0o755); err != nil {
		logger.Warn("Content directory unavailable",
			slog.String("dir", cfg.Content.Dir),
			slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := routecache.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open route cache: %w", err)
	}
	cache := routecache.New(store, logger)
	defer cache.Close()

	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			// Events are optional; the board works without them.
			logger.Warn("Route events disabled", slog.Any("error", err))
		} else {
			publisher = nc
		}
	}
	defer publisher.Close()

	srv := NewServer(cfg, *configPath, cache, publisher, logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			slog.String("addr", httpServer.Addr),
			slog.String("provider", cfg.Feed.Provider),
			slog.String("route_source", cfg.RouteSource),
			slog.String("route_cache", cfg.RouteCache.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	if err := shutdown(httpServer, 30*time.Second); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
