// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpeeters-be/interstop/internal/config"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(config.DatabaseConfig{MaxMemory: "500MB", Threads: 2})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing database: %v", err)
		}
	})
	return db
}

// writeShard materializes a parquet fixture through DuckDB itself.
func writeShard(t *testing.T, db *DB, path, selectSQL string) {
	t.Helper()
	stmt := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET)", selectSQL, path)
	if _, err := db.conn.ExecContext(context.Background(), stmt); err != nil {
		t.Fatalf("writing parquet fixture: %v", err)
	}
}

const observationColumns = "t(lineId, pointId, directionId, distanceFromPoint, date)"

func TestReadObservations(t *testing.T) {
	db := newTestDB(t)
	shard := filepath.Join(t.TempDir(), "shard-0.parquet")
	writeShard(t, db, shard, fmt.Sprintf(`SELECT * FROM (VALUES
		('93', '5151', '1', CAST(100 AS DOUBLE), TIMESTAMP '2026-03-02 07:00:00'),
		('93', '5151', '1', CAST(200 AS DOUBLE), TIMESTAMP '2026-03-02 07:00:20'),
		('71', '1234', '2', CAST(300 AS DOUBLE), TIMESTAMP '2026-03-02 07:00:00')
	) AS %s`, observationColumns))

	brussels, err := time.LoadLocation("Europe/Brussels")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}

	obs, err := db.ReadObservations(context.Background(), []string{shard}, "93", brussels)
	if err != nil {
		t.Fatalf("ReadObservations: %v", err)
	}

	if len(obs) != 2 {
		t.Fatalf("expected 2 observations for line 93, got %d", len(obs))
	}
	first := obs[0]
	if first.PointID != "5151" || first.DirectionID != "1" || first.DistanceFromPoint != 100 {
		t.Errorf("unexpected first observation: %+v", first)
	}
	if got := first.Timestamp.Format(time.RFC3339); got != "2026-03-02T07:00:00Z" {
		t.Errorf("timestamp = %s, want UTC 07:00:00", got)
	}
	if got := first.LocalTime.Format("15:04:05"); got != "08:00:00" {
		t.Errorf("local time = %s, want 08:00:00 Brussels", got)
	}
}

func TestReadObservationsDropsMalformedRows(t *testing.T) {
	db := newTestDB(t)
	shard := filepath.Join(t.TempDir(), "shard-0.parquet")
	writeShard(t, db, shard, fmt.Sprintf(`SELECT * FROM (VALUES
		('93', '5151', '1', CAST(100 AS DOUBLE), TIMESTAMP '2026-03-02 07:00:00'),
		('93', '5151', '1', CAST(NULL AS DOUBLE), TIMESTAMP '2026-03-02 07:00:20'),
		('93', CAST(NULL AS VARCHAR), '1', CAST(200 AS DOUBLE), TIMESTAMP '2026-03-02 07:00:40')
	) AS %s`, observationColumns))

	obs, err := db.ReadObservations(context.Background(), []string{shard}, "93", time.UTC)
	if err != nil {
		t.Fatalf("ReadObservations: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("expected malformed rows dropped, got %d observations", len(obs))
	}
}

func TestReadObservationsMergesShards(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "shard-a.parquet")
	b := filepath.Join(dir, "shard-b.parquet")
	writeShard(t, db, a, fmt.Sprintf(`SELECT * FROM (VALUES
		('93', '5151', '1', CAST(100 AS DOUBLE), TIMESTAMP '2026-03-02 07:00:00')
	) AS %s`, observationColumns))
	writeShard(t, db, b, fmt.Sprintf(`SELECT * FROM (VALUES
		('93', '5151', '1', CAST(200 AS DOUBLE), TIMESTAMP '2026-03-02 07:00:20')
	) AS %s`, observationColumns))

	obs, err := db.ReadObservations(context.Background(), []string{a, b}, "93", time.UTC)
	if err != nil {
		t.Fatalf("ReadObservations: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected observations from both shards, got %d", len(obs))
	}
}

func TestReadObservationsNoFiles(t *testing.T) {
	db := newTestDB(t)
	obs, err := db.ReadObservations(context.Background(), nil, "93", time.UTC)
	if err != nil {
		t.Fatalf("ReadObservations: %v", err)
	}
	if len(obs) != 0 {
		t.Fatalf("expected no observations without files, got %d", len(obs))
	}
}

func TestQuoteFileList(t *testing.T) {
	got := quoteFileList([]string{"/data/a.parquet", "/data/o'brien.parquet"})
	want := "'/data/a.parquet', '/data/o''brien.parquet'"
	if got != want {
		t.Errorf("quoteFileList = %s, want %s", got, want)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
