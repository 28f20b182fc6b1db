// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Loading order (Koanf v2): defaults, then config file, then environment
// variables. Config is immutable after Load() and safe for concurrent
// read access.
type Config struct {
	Upstream UpstreamConfig `koanf:"upstream"`
	Database DatabaseConfig `koanf:"database"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Topology TopologyConfig `koanf:"topology"`
	Calendar CalendarConfig `koanf:"calendar"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// UpstreamConfig holds the connection settings for the open-data archive
// that serves parquetized vehicle position shards.
//
// Environment Variables:
//   - UPSTREAM_URL: Archive base URL
//   - UPSTREAM_TOKEN: Bearer token for the archive API
//   - UPSTREAM_COMPONENT: Dataset component name
type UpstreamConfig struct {
	URL       string        `koanf:"url"`
	Token     string        `koanf:"token"`
	Component string        `koanf:"component"`
	Timeout   time.Duration `koanf:"timeout"`

	// CacheDir holds downloaded shard files between queries. Empty
	// disables the on-disk cache and shards are re-fetched every query.
	CacheDir string `koanf:"cache_dir"`

	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// DatabaseConfig holds DuckDB tuning options. The database itself is
// ephemeral; it exists only to scan parquet shards.
type DatabaseConfig struct {
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// PipelineConfig holds the tunables of the speed estimation core.
type PipelineConfig struct {
	// Timezone is the IANA name of the single civil timezone used for
	// calendar predicates and bucket alignment.
	Timezone string `koanf:"timezone"`

	BucketWidth time.Duration `koanf:"bucket_width"`

	MaxTimeDelta     time.Duration `koanf:"max_time_delta"`
	MaxDistanceDelta float64       `koanf:"max_distance_delta"` // meters
	NearStopDistance float64       `koanf:"near_stop_distance"` // meters

	// CSVDumpPath, when set, receives a CSV copy of every query result.
	CSVDumpPath string `koanf:"csv_dump_path"`
}

// TopologyConfig holds the settings for the network topology source
// (stops and segment shapes). Components are URL paths relative to the
// upstream base URL.
type TopologyConfig struct {
	StopsComponent    string        `koanf:"stops_component"`
	SegmentsComponent string        `koanf:"segments_component"`
	CacheTTL          time.Duration `koanf:"cache_ttl"`
}

// CalendarConfig points at the operator day-type calendar export.
type CalendarConfig struct {
	Path string `koanf:"path"`

	// SchoolDayType marks regular school-period service. Dates carrying
	// any other day type are treated as atypical.
	SchoolDayType string `koanf:"school_day_type"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	if c.Upstream.Token == "" {
		return fmt.Errorf("upstream.token is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive, got %v", c.Upstream.Timeout)
	}
	if c.Upstream.RetryAttempts < 0 {
		return fmt.Errorf("upstream.retry_attempts must not be negative, got %d", c.Upstream.RetryAttempts)
	}

	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must not be negative, got %d", c.Database.Threads)
	}

	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("pipeline.timezone %q is not a valid IANA timezone: %w", c.Pipeline.Timezone, err)
	}
	if c.Pipeline.BucketWidth <= 0 {
		return fmt.Errorf("pipeline.bucket_width must be positive, got %v", c.Pipeline.BucketWidth)
	}
	if c.Pipeline.MaxTimeDelta <= 0 {
		return fmt.Errorf("pipeline.max_time_delta must be positive, got %v", c.Pipeline.MaxTimeDelta)
	}
	if c.Pipeline.MaxDistanceDelta <= 0 {
		return fmt.Errorf("pipeline.max_distance_delta must be positive, got %v", c.Pipeline.MaxDistanceDelta)
	}
	if c.Pipeline.NearStopDistance < 0 {
		return fmt.Errorf("pipeline.near_stop_distance must not be negative, got %v", c.Pipeline.NearStopDistance)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}

	return nil
}
