// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/mpeeters-be/interstop/internal/logging"
	"github.com/mpeeters-be/interstop/internal/metrics"
	"github.com/mpeeters-be/interstop/internal/models"
)

// ShardSource resolves and fetches the archive shards covering a UTC time
// range. Per-shard failures are folded into the returned set; an error is
// returned only when the source cannot be consulted at all.
type ShardSource interface {
	Fetch(ctx context.Context, lineID string, from, to time.Time) (models.ShardSet, error)
}

// ObservationReader reads raw observations for one line out of local
// shard files, converting source timestamps to loc exactly once.
type ObservationReader interface {
	ReadObservations(ctx context.Context, files []string, lineID string, loc *time.Location) ([]models.Observation, error)
}

// Config carries the tunables of the estimation core.
type Config struct {
	// Timezone is the single civil timezone for all calendar predicates
	// and bucket alignment. Threaded explicitly; never process state.
	Timezone *time.Location

	// BucketWidth is the aggregation bucket width. Canonical: 15 minutes.
	BucketWidth time.Duration

	// Thresholds bound what one vehicle can produce between samples.
	Thresholds Thresholds

	// CSVDumpPath, when set, receives the raw result table of every query
	// as a debug side channel. Failures to write are logged, not returned.
	CSVDumpPath string
}

// Engine runs estimation queries end to end. It is stateless between
// queries; observations, deltas and buckets are recomputed per invocation
// and discarded.
type Engine struct {
	source ShardSource
	reader ObservationReader
	cfg    Config
}

// NewEngine creates an estimation engine.
func NewEngine(source ShardSource, reader ObservationReader, cfg Config) *Engine {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = 15 * time.Minute
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Engine{source: source, reader: reader, cfg: cfg}
}

// EstimateSpeeds answers one speed query.
//
// Invalid parameters are rejected before the observation source is
// touched. A range with no surviving observations yields an empty,
// well-typed table, not an error. Shards that could not be fetched are
// skipped and reported in the result; only a source that cannot be
// consulted at all fails the query.
func (e *Engine) EstimateSpeeds(ctx context.Context, q models.SpeedQuery) (*models.SpeedResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}()

	loc := e.cfg.Timezone
	from := q.WindowStart(loc).UTC()
	to := q.WindowEnd(loc).UTC()

	shards, err := e.source.Fetch(ctx, q.LineID, from, to)
	if err != nil {
		return nil, fmt.Errorf("resolving observation shards: %w", err)
	}
	for _, f := range shards.Failures {
		logging.Warn().Str("shard", f.URL).Str("error", f.Error).Msg("shard unavailable, skipping")
	}

	result := &models.SpeedResult{
		Rows:          []models.SpeedBucket{},
		ShardsFetched: len(shards.Files),
		ShardsFailed:  len(shards.Failures),
		Failures:      shards.Failures,
	}
	if len(shards.Files) == 0 {
		return result, nil
	}

	obs, err := e.reader.ReadObservations(ctx, shards.Files, q.LineID, loc)
	if err != nil {
		return nil, fmt.Errorf("reading observations: %w", err)
	}

	filtered := FilterSamples(obs, q, loc)
	result.ObservationsRead = len(filtered)
	metrics.ObservationsFiltered.Add(float64(len(filtered)))

	deduped := Deduplicate(filtered)
	deltas := ComputeDeltas(deduped)
	valid := FilterValid(deltas, e.cfg.Thresholds, q.Mode)
	metrics.DeltaSamplesAccepted.Add(float64(len(valid)))
	metrics.DeltaSamplesRejected.Add(float64(len(deltas) - len(valid)))

	result.Rows = Aggregate(valid, e.cfg.BucketWidth)

	if e.cfg.CSVDumpPath != "" {
		if err := dumpCSV(e.cfg.CSVDumpPath, result.Rows); err != nil {
			logging.Warn().Err(err).Str("path", e.cfg.CSVDumpPath).Msg("result CSV dump failed")
		}
	}

	logging.Debug().
		Str("line", q.LineID).
		Int("observations", len(filtered)).
		Int("deltas", len(deltas)).
		Int("valid", len(valid)).
		Int("buckets", len(result.Rows)).
		Msg("speed query complete")

	return result, nil
}
