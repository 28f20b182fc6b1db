// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package database wraps an ephemeral in-memory DuckDB instance used as
// a columnar scan engine over downloaded parquet shards. Nothing is ever
// persisted; every query reads the shard files directly.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/mpeeters-be/interstop/internal/config"
)

// DB wraps the DuckDB connection.
type DB struct {
	conn *sql.DB
}

// New opens an in-memory DuckDB instance tuned by cfg.
func New(cfg config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}

	// Disable auto-install/auto-load to prevent hangs in restricted
	// network environments. Parquet scanning is built into core DuckDB
	// and needs no extensions.
	connStr := fmt.Sprintf(":memory:?threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A second pooled connection would open a second, empty in-memory
	// database. Pin the pool to one connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	return &DB{conn: conn}, nil
}

// Ping checks that the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}
