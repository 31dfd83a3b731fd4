// Package config holds the schedule bot configuration on top of the core
// Telegram, logging and metrics settings.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/smartschedule/schedulebot/core/config"
	coredatabase "github.com/smartschedule/schedulebot/core/database"
)

const (
	// SnapshotFile stores presence data in a flat text file.
	SnapshotFile = "file"
	// SnapshotPostgres stores presence data in the known_users table.
	SnapshotPostgres = "postgres"
)

// ScheduleConfig points the bot at the schedule service.
type ScheduleConfig struct {
	BaseURL string `yaml:"base_url" envconfig:"SCHEDULE_BASE_URL"`
	// WebAppBaseURL is the prefix for full-schedule menu links; defaults to BaseURL.
	WebAppBaseURL  string `yaml:"webapp_base_url" envconfig:"SCHEDULE_WEBAPP_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Timezone       string `yaml:"timezone" envconfig:"SCHEDULE_TIMEZONE"`
	// WeekdayNames lists the names the service expects, Sunday first.
	WeekdayNames []string `yaml:"weekday_names"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkDelayMS int      `yaml:"chunk_delay_ms"`
}

// SubscriptionConfig names the channel users must join. An empty Channel
// disables the check.
type SubscriptionConfig struct {
	Channel    string `yaml:"channel" envconfig:"SUBSCRIPTION_CHANNEL"`
	ChannelURL string `yaml:"channel_url"`
}

// AdminConfig guards the teacher list export.
type AdminConfig struct {
	Secret string `yaml:"secret" envconfig:"ADMIN_SECRET"`
	// Contact is shown in the welcome and help texts, e.g. "@support".
	Contact string `yaml:"contact" envconfig:"ADMIN_CONTACT"`
}

// StatsConfig controls the operator report.
type StatsConfig struct {
	// OperatorToken selects a separate bot for the report; empty reuses the main bot.
	OperatorToken       string `yaml:"operator_token" envconfig:"OPERATOR_BOT_TOKEN"`
	OperatorChatID      int64  `yaml:"operator_chat_id" envconfig:"OPERATOR_CHAT_ID"`
	IntervalSeconds     int    `yaml:"interval_seconds"`
	ActiveWindowSeconds int    `yaml:"active_window_seconds"`
}

// SnapshotConfig selects where presence data survives restarts.
type SnapshotConfig struct {
	Backend string `yaml:"backend" envconfig:"SNAPSHOT_BACKEND"`
	Path    string `yaml:"path" envconfig:"SNAPSHOT_PATH"`
}

// ConversationsConfig tunes the in-memory conversation store.
type ConversationsConfig struct {
	IdleTTLMinutes int `yaml:"idle_ttl_minutes"`
	Shards         int `yaml:"shards"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Schedule      ScheduleConfig      `yaml:"schedule"`
	Subscription  SubscriptionConfig  `yaml:"subscription"`
	Admin         AdminConfig         `yaml:"admin"`
	Stats         StatsConfig         `yaml:"stats"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Database      coredatabase.Config `yaml:"database"`
	Conversations ConversationsConfig `yaml:"conversations"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads the YAML file, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var defaultWeekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Normalize validates bot sections and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	s := &cfg.Schedule
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if s.BaseURL == "" {
		return fmt.Errorf("schedule.base_url is required")
	}
	s.WebAppBaseURL = strings.TrimRight(strings.TrimSpace(s.WebAppBaseURL), "/")
	if s.WebAppBaseURL == "" {
		s.WebAppBaseURL = s.BaseURL
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = 15
	}
	if strings.TrimSpace(s.Timezone) == "" {
		s.Timezone = "Local"
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("invalid schedule.timezone %q: %w", s.Timezone, err)
	}
	if len(s.WeekdayNames) == 0 {
		s.WeekdayNames = append([]string(nil), defaultWeekdays...)
	}
	if len(s.WeekdayNames) != 7 {
		return fmt.Errorf("schedule.weekday_names must list 7 days starting with Sunday, got %d", len(s.WeekdayNames))
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = 4000
	}
	if s.ChunkDelayMS < 0 {
		return fmt.Errorf("schedule.chunk_delay_ms must be >= 0")
	}
	if s.ChunkDelayMS == 0 {
		s.ChunkDelayMS = 500
	}

	sub := &cfg.Subscription
	sub.Channel = strings.TrimSpace(sub.Channel)
	if sub.Channel != "" && !strings.HasPrefix(sub.Channel, "@") && !strings.HasPrefix(sub.Channel, "-") {
		sub.Channel = "@" + sub.Channel
	}
	if sub.ChannelURL == "" && strings.HasPrefix(sub.Channel, "@") {
		sub.ChannelURL = "https://t.me/" + strings.TrimPrefix(sub.Channel, "@")
	}

	if cfg.Stats.IntervalSeconds <= 0 {
		cfg.Stats.IntervalSeconds = 30
	}
	if cfg.Stats.ActiveWindowSeconds <= 0 {
		cfg.Stats.ActiveWindowSeconds = 300
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Snapshot.Backend))
	if backend == "" {
		backend = SnapshotFile
	}
	switch backend {
	case SnapshotFile:
		if strings.TrimSpace(cfg.Snapshot.Path) == "" {
			cfg.Snapshot.Path = "user_data.txt"
		}
	case SnapshotPostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required when snapshot.backend is 'postgres'")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
	default:
		return fmt.Errorf("invalid snapshot.backend %q; allowed: file, postgres", cfg.Snapshot.Backend)
	}
	cfg.Snapshot.Backend = backend

	if cfg.Conversations.IdleTTLMinutes <= 0 {
		cfg.Conversations.IdleTTLMinutes = 720
	}
	return nil
}

// Location resolves the configured schedule timezone.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Interval is the report and snapshot cadence.
func (s StatsConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// ActiveWindow is how long a user counts as online after the last update.
func (s StatsConfig) ActiveWindow() time.Duration {
	return time.Duration(s.ActiveWindowSeconds) * time.Second
}

// UsesDatabase reports whether PostgreSQL must be connected at startup.
func (c *Config) UsesDatabase() bool {
	return c.Snapshot.Backend == SnapshotPostgres
}
