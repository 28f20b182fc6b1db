// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package models defines the domain types shared across the Interstop
// pipeline: raw observations, derived delta samples, aggregated speed
// buckets, and the query parameters accepted by the API.
package models

import "time"

// Observation is a single anonymous position report: a vehicle somewhere on
// a line reported its cumulative distance since last passing a reporting
// point. There is no vehicle identifier; observations are only meaningful
// as a keyed time series.
type Observation struct {
	LineID      string `json:"lineId"`
	PointID     string `json:"pointId"`
	DirectionID string `json:"directionId"`

	// DistanceFromPoint is meters traveled since last passing the point,
	// reset to ~0 at each point.
	DistanceFromPoint float64 `json:"distanceFromPoint"`

	// Timestamp is the instant of the report as recorded upstream (UTC).
	Timestamp time.Time `json:"timestamp"`

	// LocalTime is Timestamp expressed in the query's civil timezone.
	// It is computed exactly once, when observations are read, and every
	// calendar predicate (hour, weekday, date, bucket) uses it.
	LocalTime time.Time `json:"-"`
}

// Key returns the series key of the observation.
func (o Observation) Key() ObservationKey {
	return ObservationKey{PointID: o.PointID, DirectionID: o.DirectionID, LineID: o.LineID}
}

// ObservationKey identifies one observation time series. Ordering by
// timestamp within a key is the only meaningful order; no cross-key
// ordering exists.
type ObservationKey struct {
	PointID     string
	DirectionID string
	LineID      string
}

// DeltaSample is derived from two temporally adjacent, deduplicated
// observations of the same key.
type DeltaSample struct {
	Key ObservationKey

	// LocalTime is the local civil time of the later observation.
	LocalTime time.Time

	// DistanceFromPoint is the later observation's distance, kept for the
	// near-stop mode predicate.
	DistanceFromPoint float64

	// DistanceDelta is cur.DistanceFromPoint - prev.DistanceFromPoint in
	// meters. Signed: a negative delta means the point was vacated and
	// reoccupied by a different vehicle.
	DistanceDelta float64

	// TimeDelta is the elapsed time between the two observations in seconds.
	TimeDelta float64

	// SpeedKmh is DistanceDelta / TimeDelta converted to km/h.
	SpeedKmh float64
}

// SpeedBucket is one output row: the mean speed and sample count for a
// (line, direction, point, local time bucket) group. At most one row
// exists per group.
type SpeedBucket struct {
	LineID      string    `json:"lineId"`
	DirectionID string    `json:"directionId"`
	PointID     string    `json:"pointId"`
	Bucket      time.Time `json:"bucket"`
	AvgSpeedKmh float64   `json:"avgSpeedKmh"`
	SampleCount int       `json:"sampleCount"`
}

// ShardFailure records one archive shard that could not be fetched.
// Failed shards are skipped, not fatal: the result is computed from the
// shards that did arrive.
type ShardFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ShardSet is the outcome of resolving and fetching the archive shards
// covering a time range: the local files that arrived plus the shards
// that did not. An explicit accumulator, so partial failure is visible
// instead of swallowed.
type ShardSet struct {
	Files    []string
	Failures []ShardFailure
}

// SpeedResult is the output table of one estimation query plus the
// partial-failure accounting the caller needs to judge completeness.
type SpeedResult struct {
	Rows []SpeedBucket `json:"rows"`

	ShardsFetched int            `json:"shardsFetched"`
	ShardsFailed  int            `json:"shardsFailed"`
	Failures      []ShardFailure `json:"failures,omitempty"`

	// ObservationsRead counts observations surviving the sample filter,
	// before deduplication.
	ObservationsRead int `json:"observationsRead"`
}
