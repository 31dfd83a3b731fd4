package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/smartschedule/schedulebot/core/logger"
)

// RunMigrations applies every pending up migration found at the root of
// files to db. The connection stays open afterwards.
func RunMigrations(db *sqlx.DB, files fs.FS) error {
	if db == nil {
		return fmt.Errorf("migrate: nil db")
	}
	src, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("migrate: open source: %w", err)
	}
	defer src.Close()

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrate: init driver: %w", err)
	}

	// The instance is not closed: closing it would close db as well.
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate: init: %w", err)
	}

	fromVer, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := time.Since(start)

	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			logger.Err(upErr),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, dirty, _ := m.Version()
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Bool("dirty", dirty),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return nil
}
