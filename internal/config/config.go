// Package config loads and validates rankings configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig             `mapstructure:"logging"`
	Fetch    FetchConfig               `mapstructure:"fetch"`
	DB       DBConfig                  `mapstructure:"db"`
	Archive  ArchiveConfig             `mapstructure:"archive"`
	PubSub   PubSubConfig              `mapstructure:"pubsub"`
	Schedule ScheduleConfig            `mapstructure:"schedule"`
	Server   ServerConfig              `mapstructure:"server"`
	Sources  map[string]SourceOverride `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig governs page retrieval.
type FetchConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	UserAgent        string   `mapstructure:"user_agent"`
	DelayMs          int      `mapstructure:"delay_ms"`
	RespectRobots    bool     `mapstructure:"respect_robots"`
	HeadlessSources  []string `mapstructure:"headless_sources"`
	HeadlessParallel int      `mapstructure:"headless_parallel"`
}

// DBConfig selects the store. An empty DSN keeps everything in memory.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// ArchiveConfig controls raw HTML snapshots.
type ArchiveConfig struct {
	Backend  string `mapstructure:"backend"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceOverride adjusts a catalogue source.
type SourceOverride struct {
	UpdateFrequency time.Duration `mapstructure:"update_frequency"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANKINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.delay_ms", 2000)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.headless_sources", []string{})
	v.SetDefault("fetch.headless_parallel", 1)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("schedule.cron", "0 3 * * *")
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.DelayMs < 0 {
		return fmt.Errorf("fetch.delay_ms must be >= 0")
	}
	if len(c.Fetch.HeadlessSources) > 0 && c.Fetch.HeadlessParallel <= 0 {
		return fmt.Errorf("fetch.headless_parallel must be > 0 when headless sources are set")
	}
	if c.DB.MaxConns < 0 || c.DB.MinConns < 0 {
		return fmt.Errorf("db connection limits must be >= 0")
	}
	// One connection holds the source lock while writes need another.
	if c.DB.MaxConns == 1 {
		return fmt.Errorf("db.max_conns must be 0 (driver default) or at least 2")
	}
	switch c.Archive.Backend {
	case ArchiveNone, "":
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set when archive.backend is local")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	for code, o := range c.Sources {
		if o.UpdateFrequency < 0 {
			return fmt.Errorf("sources.%s.update_frequency must be >= 0", code)
		}
	}
	return nil
}

// Timeout converts the fetch timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// Delay converts the politeness delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Fetch.DelayMs) * time.Millisecond
}

// MaxConnLifetime converts the pool lifetime into a duration.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSeconds) * time.Second
}

// Frequencies returns the per-source update frequency overrides.
func (c Config) Frequencies() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.Sources))
	for code, o := range c.Sources {
		if o.UpdateFrequency > 0 {
			out[code] = o.UpdateFrequency
		}
	}
	return out
}

// Headless reports whether code should be rendered in a browser.
func (c Config) Headless(code string) bool {
	for _, s := range c.Fetch.HeadlessSources {
		if strings.EqualFold(s, code) {
			return true
		}
	}
	return false
}
