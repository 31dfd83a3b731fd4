package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p w'd", Name: "schedule"}
	assert.Equal(t, `user=bot password='p w\'d' host=db port=5432 dbname=schedule sslmode=disable`, cfg.DSN())

	cfg.SSLMode = "require"
	cfg.Password = "secret"
	assert.Equal(t, "user=bot password=secret host=db port=5432 dbname=schedule sslmode=require", cfg.DSN())
	assert.NotContains(t, cfg.Redacted(), "secret")
}
