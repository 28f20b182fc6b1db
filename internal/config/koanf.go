// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/interstop/config.yaml",
	"/etc/interstop/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			URL:           "https://api.mobilitytwin.brussels",
			Token:         "",
			Component:     "stib_vehicle_distance_parquetize",
			Timeout:       60 * time.Second,
			CacheDir:      "/data/shards",
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
		},
		Database: DatabaseConfig{
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Pipeline: PipelineConfig{
			Timezone:         "Europe/Brussels",
			BucketWidth:      15 * time.Minute,
			MaxTimeDelta:     30 * time.Second,
			MaxDistanceDelta: 600,
			NearStopDistance: 50,
			CSVDumpPath:      "",
		},
		Topology: TopologyConfig{
			StopsComponent:    "stib/stops",
			SegmentsComponent: "stib/segments",
			CacheTTL:          24 * time.Hour,
		},
		Calendar: CalendarConfig{
			Path:          "",
			SchoolDayType: "SCH",
		},
		Server: ServerConfig{
			Port:            8480,
			Host:            "0.0.0.0",
			Timeout:         120 * time.Second,
			RateLimitReqs:   60,
			RateLimitWindow: 1 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// UPSTREAM_TOKEN -> upstream.token, HTTP_PORT -> server.port, etc.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive through environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices for
// known slice fields. YAML values already arrive as slices and are left
// alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment noise cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Upstream archive mappings
		"upstream_url":            "upstream.url",
		"upstream_token":          "upstream.token",
		"upstream_component":      "upstream.component",
		"upstream_timeout":        "upstream.timeout",
		"upstream_cache_dir":      "upstream.cache_dir",
		"upstream_retry_attempts": "upstream.retry_attempts",
		"upstream_retry_delay":    "upstream.retry_delay",

		// Database mappings
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Pipeline mappings
		"pipeline_timezone":           "pipeline.timezone",
		"pipeline_bucket_width":       "pipeline.bucket_width",
		"pipeline_max_time_delta":     "pipeline.max_time_delta",
		"pipeline_max_distance_delta": "pipeline.max_distance_delta",
		"pipeline_near_stop_distance": "pipeline.near_stop_distance",
		"pipeline_csv_dump_path":      "pipeline.csv_dump_path",

		// Topology mappings
		"topology_stops_component":    "topology.stops_component",
		"topology_segments_component": "topology.segments_component",
		"topology_cache_ttl":          "topology.cache_ttl",

		// Calendar mappings
		"calendar_path":            "calendar.path",
		"calendar_school_day_type": "calendar.school_day_type",

		// Server mappings
		"http_port":           "server.port",
		"http_host":           "server.host",
		"http_timeout":        "server.timeout",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",
		"cors_origins":        "server.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
