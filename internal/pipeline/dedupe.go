// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package pipeline

import "github.com/mpeeters-be/interstop/internal/models"

// occupancyKey identifies one reading slot. Archive shards overlap at
// their boundaries, so the same slot can appear in two shards.
type occupancyKey struct {
	pointID     string
	directionID string
	unixTS      int64
}

// Deduplicate drops every (point, direction, timestamp) group that has
// more than one member — the whole group, not one survivor. A duplicated
// slot signals an ambiguous reading; picking either copy would silently
// bias the delta computation downstream.
//
// Relative order of surviving observations is preserved.
func Deduplicate(obs []models.Observation) []models.Observation {
	counts := make(map[occupancyKey]int, len(obs))
	for _, o := range obs {
		counts[occKey(o)]++
	}

	out := make([]models.Observation, 0, len(obs))
	for _, o := range obs {
		if counts[occKey(o)] == 1 {
			out = append(out, o)
		}
	}
	return out
}

func occKey(o models.Observation) occupancyKey {
	return occupancyKey{
		pointID:     o.PointID,
		directionID: o.DirectionID,
		unixTS:      o.Timestamp.Unix(),
	}
}
