// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package pipeline

import (
	"time"

	"github.com/mpeeters-be/interstop/internal/models"
)

// Thresholds bound what a single tracked vehicle can plausibly produce
// between two consecutive samples. Observed deployments disagree on the
// exact values (30s vs 40s time bound), so they are configuration, not
// constants.
type Thresholds struct {
	// MaxTimeDelta is the largest gap between two samples that can still
	// be the same vehicle. The nominal sampling period is ~20s.
	MaxTimeDelta time.Duration

	// MaxDistanceDelta is the largest distance advance in meters between
	// two samples that can still be the same vehicle.
	MaxDistanceDelta float64

	// NearStopDistance is the distance-from-point threshold in meters for
	// ModeGreaterThanZeroNearStop: zero-speed samples closer to the point
	// than this are treated as sensor artifacts.
	NearStopDistance float64
}

// DefaultThresholds returns the nominal deployment values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxTimeDelta:     30 * time.Second,
		MaxDistanceDelta: 600,
		NearStopDistance: 50,
	}
}

// physicallyValid reports whether a delta sample can represent a single
// tracked vehicle. A gap above MaxTimeDelta means the predecessor cannot
// be the same vehicle; a negative or oversized distance delta means the
// point was vacated and reoccupied, or an approaching vehicle reset the
// counter. Either way the sample is a hand-off, not a measurement.
func physicallyValid(d models.DeltaSample, t Thresholds) bool {
	if d.TimeDelta <= 0 || d.TimeDelta > t.MaxTimeDelta.Seconds() {
		return false
	}
	if d.DistanceDelta < 0 || d.DistanceDelta > t.MaxDistanceDelta {
		return false
	}
	return true
}

// FilterValid discards physically invalid samples unconditionally, then
// applies the query's speed computation mode to the survivors. The sample
// count downstream always matches the averaged set; no pre-filter
// denominator is reused.
func FilterValid(deltas []models.DeltaSample, t Thresholds, mode models.SpeedComputationMode) []models.DeltaSample {
	out := make([]models.DeltaSample, 0, len(deltas))
	for _, d := range deltas {
		if !physicallyValid(d, t) {
			continue
		}
		if !mode.Accept(d, t.NearStopDistance) {
			continue
		}
		out = append(out, d)
	}
	return out
}
