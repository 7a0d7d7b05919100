// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/aimd54/ranked-matchmaking/internal/models"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Matchmaking   MatchmakingConfig   `mapstructure:"matchmaking"`
	Ranking       RankingConfig       `mapstructure:"ranking"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	AdminToken  string `mapstructure:"admin_token"` // Guards the operational endpoints
}

// NotificationsConfig contains webhook notification settings.
type NotificationsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN renders the key/value connection string the postgres driver expects.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig contains Redis connection and pool settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ExpansionStep widens the XP window once an entry has waited AfterSeconds.
type ExpansionStep struct {
	AfterSeconds int `mapstructure:"after_seconds" yaml:"after_seconds"`
	XPWindow     int `mapstructure:"xp_window" yaml:"xp_window"`
}

// MatchmakingConfig contains queue and pairing settings.
type MatchmakingConfig struct {
	Formats              []string        `mapstructure:"formats"`
	QueueTTLSeconds      int             `mapstructure:"queue_ttl_seconds"`
	BaseWindow           int             `mapstructure:"base_window"`
	Expansion            []ExpansionStep `mapstructure:"expansion"`
	RematchCooldownHours int             `mapstructure:"rematch_cooldown_hours"`
	DefaultDurationHours int             `mapstructure:"default_duration_hours"`
	MaxDurationHours     int             `mapstructure:"max_duration_hours"`
	LockTTLSeconds       int             `mapstructure:"lock_ttl_seconds"`
}

// QueueTTL returns how long a new entry may search before it expires.
func (m *MatchmakingConfig) QueueTTL() time.Duration {
	return time.Duration(m.QueueTTLSeconds) * time.Second
}

// RematchCooldown returns the window during which recent opponents are avoided.
func (m *MatchmakingConfig) RematchCooldown() time.Duration {
	return time.Duration(m.RematchCooldownHours) * time.Hour
}

// LockTTL returns the lifetime of the per-format pass lock.
func (m *MatchmakingConfig) LockTTL() time.Duration {
	return time.Duration(m.LockTTLSeconds) * time.Second
}

// RankingConfig contains rank ledger settings.
type RankingConfig struct {
	TiersFile               string `mapstructure:"tiers_file"` // Optional YAML override of the built-in tier table
	DefaultSeasonID         int    `mapstructure:"default_season_id"`
	RecentTransactionsLimit int    `mapstructure:"recent_transactions_limit"`
	DecayInactiveDays       int    `mapstructure:"decay_inactive_days"`
}

// SchedulerConfig contains periodic job settings.
type SchedulerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Timezone            string `mapstructure:"timezone"`
	MatchmakingSchedule string `mapstructure:"matchmaking_schedule"`
	CleanupSchedule     string `mapstructure:"cleanup_schedule"`
	DecaySchedule       string `mapstructure:"decay_schedule"`
	Workers             int    `mapstructure:"workers"` // Formats paired in parallel
}

// MetricsConfig contains metrics collection settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("matchmaking.formats", models.AllFormats)
	v.SetDefault("matchmaking.queue_ttl_seconds", 300)
	v.SetDefault("matchmaking.base_window", 100)
	v.SetDefault("matchmaking.expansion", []map[string]int{
		{"after_seconds": 30, "xp_window": 200},
		{"after_seconds": 60, "xp_window": 300},
		{"after_seconds": 120, "xp_window": 500},
	})
	v.SetDefault("matchmaking.rematch_cooldown_hours", 24)
	v.SetDefault("matchmaking.default_duration_hours", 72)
	v.SetDefault("matchmaking.max_duration_hours", 168)
	v.SetDefault("matchmaking.lock_ttl_seconds", 30)

	v.SetDefault("ranking.default_season_id", 1)
	v.SetDefault("ranking.recent_transactions_limit", 10)
	v.SetDefault("ranking.decay_inactive_days", 14)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.matchmaking_schedule", "@every 10s")
	v.SetDefault("scheduler.cleanup_schedule", "@every 1m")
	v.SetDefault("scheduler.decay_schedule", "0 3 * * 1")
	v.SetDefault("scheduler.workers", 4)

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.port", 9090)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ranked-matchmaking/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")
	_ = v.BindEnv("server.admin_token", "ADMIN_TOKEN")

	// Notification configuration
	_ = v.BindEnv("notifications.webhook_url", "NOTIFICATIONS_WEBHOOK_URL")
	_ = v.BindEnv("notifications.channel", "NOTIFICATIONS_CHANNEL")
	_ = v.BindEnv("notifications.enabled", "NOTIFICATIONS_ENABLED")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Matchmaking configuration
	_ = v.BindEnv("matchmaking.queue_ttl_seconds", "MATCHMAKING_QUEUE_TTL_SECONDS")
	_ = v.BindEnv("matchmaking.base_window", "MATCHMAKING_BASE_WINDOW")
	_ = v.BindEnv("matchmaking.rematch_cooldown_hours", "MATCHMAKING_REMATCH_COOLDOWN_HOURS")
	_ = v.BindEnv("matchmaking.lock_ttl_seconds", "MATCHMAKING_LOCK_TTL_SECONDS")

	// Ranking configuration
	_ = v.BindEnv("ranking.tiers_file", "RANKING_TIERS_FILE")
	_ = v.BindEnv("ranking.default_season_id", "RANKING_SEASON_ID")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.matchmaking_schedule", "SCHEDULER_MATCHMAKING_SCHEDULE")
	_ = v.BindEnv("scheduler.cleanup_schedule", "SCHEDULER_CLEANUP_SCHEDULE")
	_ = v.BindEnv("scheduler.decay_schedule", "SCHEDULER_DECAY_SCHEDULE")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Enabled && c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required when redis is enabled")
	}
	return c.Matchmaking.Validate()
}

// Validate checks the queue and expansion ladder settings.
func (m *MatchmakingConfig) Validate() error {
	if len(m.Formats) == 0 {
		return fmt.Errorf("at least one matchmaking format must be configured")
	}
	for _, f := range m.Formats {
		if !models.IsValidFormat(f) {
			return fmt.Errorf("unknown matchmaking format %q", f)
		}
	}
	if m.QueueTTLSeconds <= 0 {
		return fmt.Errorf("matchmaking.queue_ttl_seconds must be positive")
	}
	if m.BaseWindow < 0 {
		return fmt.Errorf("matchmaking.base_window must not be negative")
	}
	if m.DefaultDurationHours <= 0 || m.DefaultDurationHours > m.MaxDurationHours {
		return fmt.Errorf("matchmaking.default_duration_hours must be between 1 and max_duration_hours")
	}

	prevAfter, prevWindow := 0, m.BaseWindow
	for i, step := range m.Expansion {
		if step.AfterSeconds <= prevAfter {
			return fmt.Errorf("matchmaking.expansion[%d].after_seconds must be greater than %d", i, prevAfter)
		}
		if step.XPWindow < prevWindow {
			return fmt.Errorf("matchmaking.expansion[%d].xp_window must not be narrower than %d", i, prevWindow)
		}
		prevAfter, prevWindow = step.AfterSeconds, step.XPWindow
	}

	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// IsFormatEnabled reports whether the format is configured for matchmaking.
func (m *MatchmakingConfig) IsFormatEnabled(format string) bool {
	for _, f := range m.Formats {
		if f == format {
			return true
		}
	}
	return false
}
