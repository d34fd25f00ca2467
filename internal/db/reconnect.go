package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unklstewy/flightboard/pkg/config"
)

// maxReconnectDelay caps the exponential backoff.
const maxReconnectDelay = 60 * time.Second

// connectFunc is swapped out in tests.
var connectFunc = Connect

// ReconnectWithRetry connects to the database with exponential backoff.
// It is meant for startup, when the database container may still be coming
// up; request-time database errors are not retried.
//
// Parameters:
//   - ctx: Cancels the wait between attempts
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx is done)
//   - initialDelay: Initial wait time between retries
//
// Returns: Connected database or the last error
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	delay := initialDelay
	attempt := 0

	for {
		attempt++
		logger.Info("Database connection attempt", slog.Int("attempt", attempt))

		db, err := connectFunc(cfg)
		if err == nil {
			logger.Info("Database connected", slog.Int("attempt", attempt))
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
		}

		logger.Warn("Database connection failed",
			slog.Any("error", err),
			slog.Duration("retry_in", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting: %w", ctx.Err())
		}

		// Exponential backoff with cap at 60 seconds
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) error {
	if db == nil {
		return fmt.Errorf("no database connection")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health query: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected health query result %d", result)
	}
	return nil
}
