// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package pipeline

import (
	"sort"
	"time"

	"github.com/mpeeters-be/interstop/internal/models"
)

type bucketKey struct {
	line      string
	direction string
	point     string
	bucket    int64
}

type bucketAccum struct {
	localBucket time.Time
	sumKmh      float64
	count       int
}

// Aggregate groups valid delta samples into fixed-width buckets aligned to
// the local wall clock and computes mean speed and sample count per
// (line, direction, point, bucket).
//
// Alignment is to local time, not to an arbitrary epoch: with 15-minute
// buckets a sample at local 08:07:30 lands in the 08:00 bucket. Output is
// sorted by (line, direction, point, bucket) so identical queries produce
// identical tables, and holds at most one row per group.
func Aggregate(deltas []models.DeltaSample, width time.Duration) []models.SpeedBucket {
	if width <= 0 {
		width = 15 * time.Minute
	}

	groups := make(map[bucketKey]*bucketAccum)
	for _, d := range deltas {
		b := bucketStart(d.LocalTime, width)
		key := bucketKey{
			line:      d.Key.LineID,
			direction: d.Key.DirectionID,
			point:     d.Key.PointID,
			bucket:    b.Unix(),
		}
		acc, ok := groups[key]
		if !ok {
			acc = &bucketAccum{localBucket: b}
			groups[key] = acc
		}
		acc.sumKmh += d.SpeedKmh
		acc.count++
	}

	out := make([]models.SpeedBucket, 0, len(groups))
	for key, acc := range groups {
		out = append(out, models.SpeedBucket{
			LineID:      key.line,
			DirectionID: key.direction,
			PointID:     key.point,
			Bucket:      acc.localBucket,
			AvgSpeedKmh: acc.sumKmh / float64(acc.count),
			SampleCount: acc.count,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LineID != b.LineID {
			return a.LineID < b.LineID
		}
		if a.DirectionID != b.DirectionID {
			return a.DirectionID < b.DirectionID
		}
		if a.PointID != b.PointID {
			return a.PointID < b.PointID
		}
		return a.Bucket.Before(b.Bucket)
	})
	return out
}

// bucketStart truncates t to the containing bucket in t's own location.
// time.Truncate works on the absolute timeline and would misalign buckets
// for zones with a non-whole-hour UTC offset, so truncation is done on the
// wall-clock fields instead.
func bucketStart(t time.Time, width time.Duration) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	sinceMidnight := t.Sub(midnight)
	return midnight.Add(sinceMidnight - sinceMidnight%width)
}
