// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package main is the entry point for the Interstop server.
//
// Interstop estimates commercial speeds of surface transit vehicles from
// anonymized open-data position shards. Every query fetches the parquet
// shards covering its date range, filters observations on local civil
// time, derives per-vehicle movement deltas and aggregates them into
// 15-minute segment speed buckets.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings from defaults, config file and
//     environment variables (Koanf v2)
//  2. Database: in-memory DuckDB used as the parquet scan engine
//  3. Source: archive index client with circuit breaker and shard cache
//  4. Topology: stops and segments GeoJSON client with snapshot cache
//  5. Calendar: optional day-type calendar CSV
//  6. Engine: the estimation pipeline
//  7. HTTP server: Chi REST API plus Prometheus metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults. The archive bearer token (UPSTREAM_TOKEN) is the
// only setting without a usable default.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: it stops
// accepting new connections, waits up to 10s for in-flight requests,
// then closes the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mpeeters-be/interstop/internal/api"
	"github.com/mpeeters-be/interstop/internal/calendar"
	"github.com/mpeeters-be/interstop/internal/config"
	"github.com/mpeeters-be/interstop/internal/database"
	"github.com/mpeeters-be/interstop/internal/logging"
	"github.com/mpeeters-be/interstop/internal/pipeline"
	"github.com/mpeeters-be/interstop/internal/source"
	"github.com/mpeeters-be/interstop/internal/topology"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("upstream", cfg.Upstream.URL).
		Str("component", cfg.Upstream.Component).
		Str("timezone", cfg.Pipeline.Timezone).
		Msg("Starting Interstop")

	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		logging.Fatal().Err(err).Str("timezone", cfg.Pipeline.Timezone).Msg("Invalid timezone")
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	if err := db.Ping(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Database not responding")
	}
	logging.Info().Msg("Database initialized successfully")

	src := source.New(cfg.Upstream)
	topo := topology.NewClient(cfg.Upstream, cfg.Topology)

	var cal *calendar.Calendar
	if cfg.Calendar.Path != "" {
		cal, err = calendar.Load(cfg.Calendar.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Calendar.Path).Msg("Failed to load day-type calendar")
		}
		logging.Info().Int("entries", cal.Len()).Msg("Day-type calendar loaded")
	} else {
		logging.Info().Msg("No day-type calendar configured")
	}

	engine := pipeline.NewEngine(src, db, pipeline.Config{
		Timezone:    loc,
		BucketWidth: cfg.Pipeline.BucketWidth,
		Thresholds: pipeline.Thresholds{
			MaxTimeDelta:     cfg.Pipeline.MaxTimeDelta,
			MaxDistanceDelta: cfg.Pipeline.MaxDistanceDelta,
			NearStopDistance: cfg.Pipeline.NearStopDistance,
		},
		CSVDumpPath: cfg.Pipeline.CSVDumpPath,
	})

	handler := api.NewHandler(engine, topo, cal, cfg.Calendar.SchoolDayType)
	router := api.NewRouter(handler, cfg.Server)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logging.Info().Msg("Application stopped gracefully")
}
