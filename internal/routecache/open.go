package routecache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unklstewy/flightboard/internal/db"
	"github.com/unklstewy/flightboard/pkg/config"
)

// Open builds the Store selected by cfg.RouteCache.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.RouteCache.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.RouteCache.Path), nil

	case config.BackendSQLite:
		return OpenSQLite(cfg.RouteCache.Path)

	case config.BackendPostgres:
		conn, err := db.ReconnectWithRetry(ctx, cfg.Database, 5, time.Second, logger)
		if err != nil {
			return nil, err
		}
		if err := conn.InitSchema(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return NewPostgresStore(conn), nil

	case config.BackendRedis:
		return OpenRedis(RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})

	default:
		return nil, fmt.Errorf("unknown route cache backend %q", cfg.RouteCache.Backend)
	}
}
