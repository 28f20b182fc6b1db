// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package pipeline

import (
	"sort"

	"github.com/mpeeters-be/interstop/internal/models"
)

// metersPerSecondToKmh converts m/s to km/h.
const metersPerSecondToKmh = 3.6

// ComputeDeltas turns each keyed observation series into delta samples.
//
// No vehicle identifier exists, so the domain is modeled as a time series
// per (point, direction, line) key: two adjacent samples either belong to
// the same physical vehicle or they don't, and that decision is a pure
// predicate over the deltas, applied later by FilterValid. This stage only
// computes; it never filters.
//
// Observations of a key are sorted by timestamp ascending before pairing.
// The sort is mandatory — shards arrive in arbitrary order and delta
// computation is only correct on a strictly increasing series. The first
// observation of each key yields no sample (no predecessor).
func ComputeDeltas(obs []models.Observation) []models.DeltaSample {
	series := make(map[models.ObservationKey][]models.Observation)
	for _, o := range obs {
		key := o.Key()
		series[key] = append(series[key], o)
	}

	// Deterministic key order keeps identical queries bit-identical.
	keys := make([]models.ObservationKey, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.LineID != b.LineID {
			return a.LineID < b.LineID
		}
		if a.DirectionID != b.DirectionID {
			return a.DirectionID < b.DirectionID
		}
		return a.PointID < b.PointID
	})

	var out []models.DeltaSample
	for _, key := range keys {
		s := series[key]
		sort.Slice(s, func(i, j int) bool {
			return s[i].Timestamp.Before(s[j].Timestamp)
		})

		for i := 1; i < len(s); i++ {
			prev, cur := s[i-1], s[i]

			timeDelta := cur.Timestamp.Sub(prev.Timestamp).Seconds()
			distanceDelta := cur.DistanceFromPoint - prev.DistanceFromPoint

			var speedKmh float64
			if timeDelta != 0 {
				speedKmh = distanceDelta / timeDelta * metersPerSecondToKmh
			}

			out = append(out, models.DeltaSample{
				Key:               key,
				LocalTime:         cur.LocalTime,
				DistanceFromPoint: cur.DistanceFromPoint,
				DistanceDelta:     distanceDelta,
				TimeDelta:         timeDelta,
				SpeedKmh:          speedKmh,
			})
		}
	}
	return out
}
