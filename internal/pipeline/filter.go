// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package pipeline implements the speed estimation core: a synchronous
// batch computation over an in-memory observation table.
//
// One query is one linear pass through five stages:
//
//	FilterSamples -> Deduplicate -> ComputeDeltas -> FilterValid -> Aggregate
//
// Every stage is total on empty input: empty in, empty out, no error.
// Stages share no state; each query's working set is private to its
// invocation, so concurrent queries need no locking.
package pipeline

import (
	"time"

	"github.com/mpeeters-be/interstop/internal/models"
)

// FilterSamples restricts observations to the query's line, point set,
// date window, hour-of-day window, weekday set, and excluded date ranges.
//
// Every calendar predicate is evaluated on the observation's local civil
// time, which the reader computed exactly once from the source instant.
// Evaluating hour and weekday on local time before filtering is what keeps
// observations near local midnight on the correct calendar day.
func FilterSamples(obs []models.Observation, q models.SpeedQuery, loc *time.Location) []models.Observation {
	points := make(map[string]struct{}, len(q.PointIDs))
	for _, p := range q.PointIDs {
		points[p] = struct{}{}
	}
	weekdays := make(map[int]struct{}, len(q.Weekdays))
	for _, d := range q.Weekdays {
		weekdays[d] = struct{}{}
	}

	windowStart := q.WindowStart(loc)
	windowEnd := q.WindowEnd(loc)

	out := make([]models.Observation, 0, len(obs))
	for _, o := range obs {
		if o.LineID != q.LineID {
			continue
		}
		if _, ok := points[o.PointID]; !ok {
			continue
		}

		local := o.LocalTime
		if local.Before(windowStart) || local.After(windowEnd) {
			continue
		}
		if h := local.Hour(); h < q.StartHour || h > q.EndHour {
			continue
		}
		if _, ok := weekdays[humanWeekday(local.Weekday())]; !ok {
			continue
		}
		if dateExcluded(models.DateOf(local), q.ExcludedRanges) {
			continue
		}

		out = append(out, o)
	}
	return out
}

// humanWeekday converts time.Weekday (Sunday=0) to the human convention
// used by queries (Monday=1 .. Sunday=7).
func humanWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// dateExcluded reports whether the local date falls in any excluded range,
// both endpoint days included.
func dateExcluded(d models.Date, ranges []models.DateRange) bool {
	for _, r := range ranges {
		if r.Contains(d) {
			return true
		}
	}
	return false
}
