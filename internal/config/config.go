// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
	// ErrInvalidTimeout is returned when a timeout or size limit is not positive.
	ErrInvalidTimeout = errors.New("config: timeouts and limits must be positive")
	// ErrInvalidRetention is returned when RETENTION_HOURS is not positive.
	ErrInvalidRetention = errors.New("config: RETENTION_HOURS must be positive")
)

// secretVars lists the variables that may also be supplied as <NAME>_FILE.
var secretVars = []string{"API_KEY", "AWS_SECRET_ACCESS_KEY", "DATABASE_URL", "REDIS_PASSWORD"}

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	APIKey         string   `env:"API_KEY" json:"-"` // Masked in JSON
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// Local storage settings
	WorkDir       string `env:"WORK_DIR, default=/tmp/reelcard/work" json:"work_dir"`
	OutputDir     string `env:"OUTPUT_DIR, default=/tmp/reelcard/out" json:"output_dir"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL, default=http://localhost:8080/assets" json:"public_base_url"`
	SourceDir     string `env:"SOURCE_DIR" json:"source_dir,omitempty"`

	// Processing settings
	FFmpegPath           string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	EncodeTimeoutSec     int    `env:"ENCODE_TIMEOUT_SEC, default=300" json:"encode_timeout_sec"`
	FetchTimeoutSec      int    `env:"FETCH_TIMEOUT_SEC, default=30" json:"fetch_timeout_sec"`
	MaxFetchBytes        int64  `env:"MAX_FETCH_BYTES, default=104857600" json:"max_fetch_bytes"`
	MaxConcurrentRenders int    `env:"MAX_CONCURRENT_RENDERS, default=2" json:"max_concurrent_renders"`
	RenderProfile        string `env:"RENDER_PROFILE" json:"render_profile,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3PublicBaseURL    string `env:"S3_PUBLIC_BASE_URL" json:"s3_public_base_url,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional job store
	DatabaseURL string `env:"DATABASE_URL" json:"-"` // Masked in JSON

	// Optional image render cache
	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`
	CacheTTLSec   int    `env:"CACHE_TTL_SEC, default=86400" json:"cache_ttl_sec"`

	// Optional job events
	MQTTURL      string `env:"MQTT_URL" json:"mqtt_url,omitempty"`
	MQTTTopic    string `env:"MQTT_TOPIC, default=reelcard/jobs" json:"mqtt_topic"`
	MQTTClientID string `env:"MQTT_CLIENT_ID, default=reelcard-api" json:"mqtt_client_id"`

	// Retention
	RetentionHours  int    `env:"RETENTION_HOURS, default=24" json:"retention_hours"`
	JanitorSchedule string `env:"JANITOR_SCHEDULE, default=@every 15m" json:"janitor_schedule"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if finished assets should be published to S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PostgresEnabled returns true if jobs should be stored in Postgres.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// CacheEnabled returns true if image renders should be cached in Redis.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// MQTTEnabled returns true if job events should be published over MQTT.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTURL != ""
}

// AuthEnabled returns true if requests must carry the API key.
func (c *Config) AuthEnabled() bool {
	return c.APIKey != ""
}

// EncodeTimeout bounds one encoder run.
func (c *Config) EncodeTimeout() time.Duration {
	return time.Duration(c.EncodeTimeoutSec) * time.Second
}

// FetchTimeout bounds one source download.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// CacheTTL is how long a cached image render is kept.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// Retention is how long published assets and finished jobs are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// Load reads configuration from environment variables using go-envconfig,
// resolves <NAME>_FILE secrets and validates the result.
func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) resolveSecrets() error {
	targets := map[string]*string{
		"API_KEY":               &c.APIKey,
		"AWS_SECRET_ACCESS_KEY": &c.AWSSecretAccessKey,
		"DATABASE_URL":          &c.DatabaseURL,
		"REDIS_PASSWORD":        &c.RedisPassword,
	}
	for _, name := range secretVars {
		if os.Getenv(name+"_FILE") == "" {
			continue
		}
		value, err := ResolveSecret(name)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		*targets[name] = value
	}
	return nil
}

// Validate checks that the configuration can start the server.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	if c.EncodeTimeoutSec <= 0 || c.FetchTimeoutSec <= 0 || c.MaxFetchBytes <= 0 || c.MaxConcurrentRenders <= 0 {
		return ErrInvalidTimeout
	}
	if c.RetentionHours <= 0 {
		return ErrInvalidRetention
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Auth: %t, WorkDir: %s, OutputDir: %s, PublicBaseURL: %s, SourceDir: %s, FFmpegPath: %s, EncodeTimeoutSec: %d, MaxConcurrentRenders: %d, S3Bucket: %s, S3Region: %s, Postgres: %t, RedisAddr: %s, MQTTURL: %s, RetentionHours: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.AuthEnabled(),
		c.WorkDir,
		c.OutputDir,
		c.PublicBaseURL,
		c.SourceDir,
		c.FFmpegPath,
		c.EncodeTimeoutSec,
		c.MaxConcurrentRenders,
		c.S3Bucket,
		c.S3Region,
		c.PostgresEnabled(),
		c.RedisAddr,
		c.MQTTURL,
		c.RetentionHours,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
