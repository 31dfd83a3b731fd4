package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/smartschedule/schedulebot/core/logger"
)

const connectAttempts = 5

// Connect opens the database connection, configures the pool, and verifies
// connectivity, retrying while the server is still starting.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	var (
		db  *sqlx.DB
		err error
	)
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		db, err = sqlx.ConnectContext(attemptCtx, "postgres", cfg.DSN())
		cancel()
		if err == nil {
			break
		}
		logger.DB.Warn("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("dsn", cfg.Redacted()),
			slog.Int("attempts", attempt),
			logger.Err(err),
		)
		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections)
	}

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", "postgres"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}
