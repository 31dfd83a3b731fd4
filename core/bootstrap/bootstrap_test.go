package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/smartschedule/schedulebot/core/config"
	coredatabase "github.com/smartschedule/schedulebot/core/database"
)

func noopLogger(*coreconfig.Config) error { return nil }

func TestRunWithoutDatabase(t *testing.T) {
	connected := false
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noopLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			connected = true
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.False(t, connected)
}

func TestRunConnectFailure(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   &coredatabase.Config{Host: "db"},
		Migrations: fstest.MapFS{},
		LoggerInit: noopLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			return nil, errors.New("refused")
		},
		Migrate: func(*sqlx.DB, fs.FS) error {
			t.Fatal("migrate must not run without a connection")
			return nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)
}
