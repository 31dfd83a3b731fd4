package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{
		Telegram:  TelegramConfig{Token: "1:x", RunMode: " Polling "},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback", ""}},
	}
	require.NoError(t, Normalize(&cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, []string{UpdateCallback, ""}, cfg.RateLimit.ExcludeUpdates)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestNormalizeReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Telegram:  TelegramConfig{RunMode: "webhook"},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{"inline"}},
	}
	err := Normalize(&cfg)
	require.Error(t, err)
	for _, part := range []string{"telegram.token", "webhook.url", "webhook.listen", "webhook.port", `"inline"`} {
		assert.ErrorContains(t, err, part)
	}

	cfg = Config{Telegram: TelegramConfig{Token: "1:x", RunMode: "sse"}}
	assert.ErrorContains(t, Normalize(&cfg), `"sse"`)
	assert.Error(t, Normalize(nil))
}

func TestDecodeAppliesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: file\n  run_mode: webhook\n"), 0o600))
	t.Setenv("BOT_TOKEN", "env")

	var cfg Config
	require.NoError(t, Decode(path, &cfg))
	assert.Equal(t, "env", cfg.Telegram.Token)
	assert.Equal(t, "webhook", cfg.Telegram.RunMode)

	assert.ErrorContains(t, Decode(filepath.Join(t.TempDir(), "missing.yaml"), &cfg), "config: read")
}
