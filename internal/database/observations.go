// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mpeeters-be/interstop/internal/logging"
	"github.com/mpeeters-be/interstop/internal/metrics"
	"github.com/mpeeters-be/interstop/internal/models"
)

// ReadObservations scans the given parquet shard files and returns the
// raw observations for one line. Timestamps are stored as UTC in the
// shards; LocalTime is derived in loc exactly once here.
//
// Records with missing identity or measurement fields are dropped row by
// row and counted; a malformed record never fails the scan.
func (db *DB) ReadObservations(ctx context.Context, files []string, lineID string, loc *time.Location) ([]models.Observation, error) {
	if len(files) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT lineId, pointId, directionId, distanceFromPoint, date
		 FROM read_parquet([%s])
		 WHERE lineId = ?`,
		quoteFileList(files))

	rows, err := db.conn.QueryContext(ctx, query, lineID)
	if err != nil {
		return nil, fmt.Errorf("scanning parquet shards: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("closing shard scan")
		}
	}()

	var (
		out       []models.Observation
		malformed int
	)
	for rows.Next() {
		var (
			line, point, direction sql.NullString
			distance               sql.NullFloat64
			ts                     sql.NullTime
		)
		if err := rows.Scan(&line, &point, &direction, &distance, &ts); err != nil {
			return nil, fmt.Errorf("scanning observation row: %w", err)
		}
		if !line.Valid || !point.Valid || !direction.Valid || !distance.Valid || !ts.Valid {
			malformed++
			continue
		}
		utc := ts.Time.UTC()
		out = append(out, models.Observation{
			LineID:            line.String,
			PointID:           point.String,
			DirectionID:       direction.String,
			DistanceFromPoint: distance.Float64,
			Timestamp:         utc,
			LocalTime:         utc.In(loc),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating observation rows: %w", err)
	}

	if malformed > 0 {
		metrics.ObservationsMalformed.Add(float64(malformed))
		logging.Warn().Int("count", malformed).Str("line", lineID).Msg("malformed observations dropped")
	}

	return out, nil
}

// quoteFileList renders file paths as a SQL string list for read_parquet.
// Paths cannot be bound as parameters there, so quotes are escaped by
// doubling.
func quoteFileList(files []string) string {
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = "'" + strings.ReplaceAll(f, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}
