/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/telrun/internal/condition"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBus selects where schedule events are forwarded.
type EventBus string

const (
	EventBusNone  EventBus = "none"
	EventBusNATS  EventBus = "nats"
	EventBusRedis EventBus = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string // console or json; empty picks by environment
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string

	// Scheduling
	ObservatoryFile   string
	OutputDir         string
	MaxSunAltitude    float64 // degrees
	MinElevation      float64 // degrees
	MaxAirmass        float64
	MinMoonSeparation float64 // degrees
	Resolution        time.Duration
	GapTime           time.Duration // upper bound on one transition
	MaxIterations     int
	Optimizer         string

	// S3 object storage for exported schedules. Empty bucket keeps exports
	// on the local filesystem under OutputDir.
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Event forwarding
	EventBus      EventBus
	NATSURL       string
	NATSSubject   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// Run cache for the HTTP API, on the Redis server above
	CacheEnabled bool
	CacheTTL     time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"TELRUN_ENV"}, "development"),
		LogLevel:    getEnvAny([]string{"TELRUN_LOG_LEVEL"}, "info"),
		LogFormat:   getEnvAny([]string{"TELRUN_LOG_FORMAT"}, ""),
		HTTPBind:    getEnvAny([]string{"TELRUN_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"TELRUN_HTTP_PORT"}, 8080),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"TELRUN_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"TELRUN_DB_DSN"}, ""),

		ObservatoryFile:   getEnvAny([]string{"TELRUN_OBSERVATORY", "OBSERVATORY_CONFIG"}, "observatory.yaml"),
		OutputDir:         getEnvAny([]string{"TELRUN_OUTPUT_DIR", "TELRUN_EXECUTE"}, "./schedules"),
		MaxSunAltitude:    getEnvFloatAny([]string{"TELRUN_MAX_SUN_ALTITUDE"}, -12),
		MinElevation:      getEnvFloatAny([]string{"TELRUN_MIN_ELEVATION"}, 30),
		MaxAirmass:        getEnvFloatAny([]string{"TELRUN_MAX_AIRMASS"}, 3),
		MinMoonSeparation: getEnvFloatAny([]string{"TELRUN_MIN_MOON_SEPARATION"}, 30),
		Resolution:        getEnvDurationAny([]string{"TELRUN_RESOLUTION"}, 5*time.Second),
		GapTime:           getEnvDurationAny([]string{"TELRUN_GAP_TIME"}, 60*time.Second),
		MaxIterations:     getEnvIntAny([]string{"TELRUN_MAX_ITERATIONS"}, 10000),
		Optimizer:         getEnvAny([]string{"TELRUN_OPTIMIZER"}, "priority"),

		S3AccessKeyID:     getEnvAny([]string{"TELRUN_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"TELRUN_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"TELRUN_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"TELRUN_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Prefix:          getEnvAny([]string{"TELRUN_S3_PREFIX"}, "schedules"),
		S3Endpoint:        getEnvAny([]string{"TELRUN_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"TELRUN_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		EventBus:      EventBus(getEnvAny([]string{"TELRUN_EVENT_BUS"}, string(EventBusNone))),
		NATSURL:       getEnvAny([]string{"TELRUN_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		NATSSubject:   getEnvAny([]string{"TELRUN_NATS_SUBJECT"}, "telrun.events"),
		RedisAddr:     getEnvAny([]string{"TELRUN_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"TELRUN_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"TELRUN_REDIS_DB"}, 0),
		RedisChannel:  getEnvAny([]string{"TELRUN_REDIS_CHANNEL"}, "telrun:events"),
		CacheEnabled:  getEnvBoolAny([]string{"TELRUN_CACHE_ENABLED"}, false),
		CacheTTL:      getEnvDurationAny([]string{"TELRUN_CACHE_TTL"}, 10*time.Minute),

		TracingEnabled:    getEnvBoolAny([]string{"TELRUN_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"TELRUN_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"TELRUN_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBDSN == "" && cfg.DBBackend == DatabaseSQLite {
		cfg.DBDSN = "telrun.db"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()
	return cfg, nil
}

// Validate checks value ranges and required settings.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("TELRUN_DB_DSN must be provided for %s", c.DBBackend)
	}
	switch c.EventBus {
	case EventBusNone, EventBusNATS, EventBusRedis:
	default:
		return fmt.Errorf("unsupported event bus %q", c.EventBus)
	}
	switch {
	case c.MaxSunAltitude < -90 || c.MaxSunAltitude > 90:
		return fmt.Errorf("max sun altitude %v out of range", c.MaxSunAltitude)
	case c.MinElevation < 0 || c.MinElevation > 90:
		return fmt.Errorf("min elevation %v out of range", c.MinElevation)
	case c.MaxAirmass < 1:
		return fmt.Errorf("max airmass %v must be at least 1", c.MaxAirmass)
	case c.MinMoonSeparation < 0 || c.MinMoonSeparation > 180:
		return fmt.Errorf("min moon separation %v out of range", c.MinMoonSeparation)
	case c.Resolution <= 0:
		return fmt.Errorf("resolution %s must be positive", c.Resolution)
	case c.GapTime < 0:
		return fmt.Errorf("gap time %s must not be negative", c.GapTime)
	case c.CacheEnabled && c.CacheTTL <= 0:
		return fmt.Errorf("cache ttl %s must be positive", c.CacheTTL)
	case c.TracingSampleRate < 0 || c.TracingSampleRate > 1:
		return fmt.Errorf("tracing sample rate %v out of range", c.TracingSampleRate)
	}
	return nil
}

// Limits returns the site-wide observing limits.
func (c *Config) Limits() condition.Limits {
	return condition.Limits{
		MaxSunAltitude:    c.MaxSunAltitude,
		MinElevation:      c.MinElevation,
		MaxAirmass:        c.MaxAirmass,
		MinMoonSeparation: c.MinMoonSeparation,
	}
}

// LogFormatOrDefault picks console output in development and JSON otherwise.
func (c *Config) LogFormatOrDefault() string {
	if c.LogFormat != "" {
		return c.LogFormat
	}
	if strings.EqualFold(c.Environment, "development") {
		return "console"
	}
	return "json"
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"TELRUN_EXECUTE":     "use TELRUN_OUTPUT_DIR",
		"OBSERVATORY_CONFIG": "use TELRUN_OBSERVATORY",
		"OBSERVATORY_HOME":   "set TELRUN_OBSERVATORY and TELRUN_OUTPUT_DIR explicitly",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("90s") or bare seconds ("90").
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return def
}
