// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package insights post-processes a speed table into presentation-grade
// statistics: an IQR outlier trim followed by aggregate summaries and
// weekday, hour and month breakdowns.
package insights

import (
	"fmt"
	"math"
	"sort"

	"github.com/mpeeters-be/interstop/internal/models"
)

// Summary holds aggregate statistics over bucket speeds.
type Summary struct {
	Count     int     `json:"count"`
	MeanKmh   float64 `json:"meanKmh"`
	MedianKmh float64 `json:"medianKmh"`
	P25Kmh    float64 `json:"p25Kmh"`
	P75Kmh    float64 `json:"p75Kmh"`
	MinKmh    float64 `json:"minKmh"`
	MaxKmh    float64 `json:"maxKmh"`
}

// BreakdownEntry is one labelled group mean.
type BreakdownEntry struct {
	Label       string  `json:"label"`
	AvgSpeedKmh float64 `json:"avgSpeedKmh"`
	Buckets     int     `json:"buckets"`
}

// Report is the full insights payload for one speed table.
type Report struct {
	Summary   Summary          `json:"summary"`
	Trimmed   int              `json:"trimmedBuckets"`
	ByWeekday []BreakdownEntry `json:"byWeekday"`
	ByHour    []BreakdownEntry `json:"byHour"`
	ByMonth   []BreakdownEntry `json:"byMonth"`
}

// Analyze trims outliers from the table and builds the report. The input
// slice is never modified; every invocation recomputes from scratch.
func Analyze(rows []models.SpeedBucket) Report {
	trimmed := TrimOutliers(rows)
	return Report{
		Summary:   Summarize(trimmed),
		Trimmed:   len(rows) - len(trimmed),
		ByWeekday: byWeekday(trimmed),
		ByHour:    byHour(trimmed),
		ByMonth:   byMonth(trimmed),
	}
}

// TrimOutliers drops rows whose speed falls outside
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. Quantiles use linear interpolation over
// the sorted speeds. Fewer than four rows are returned untouched since
// the quartiles would be meaningless.
func TrimOutliers(rows []models.SpeedBucket) []models.SpeedBucket {
	if len(rows) < 4 {
		return append([]models.SpeedBucket(nil), rows...)
	}

	speeds := make([]float64, len(rows))
	for i, r := range rows {
		speeds[i] = r.AvgSpeedKmh
	}
	sort.Float64s(speeds)

	q1 := quantile(speeds, 0.25)
	q3 := quantile(speeds, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	out := make([]models.SpeedBucket, 0, len(rows))
	for _, r := range rows {
		if r.AvgSpeedKmh >= lower && r.AvgSpeedKmh <= upper {
			out = append(out, r)
		}
	}
	return out
}

// Summarize computes aggregate statistics over the table's speeds.
func Summarize(rows []models.SpeedBucket) Summary {
	if len(rows) == 0 {
		return Summary{}
	}

	speeds := make([]float64, len(rows))
	sum := 0.0
	minV, maxV := math.Inf(1), math.Inf(-1)
	for i, r := range rows {
		speeds[i] = r.AvgSpeedKmh
		sum += r.AvgSpeedKmh
		minV = math.Min(minV, r.AvgSpeedKmh)
		maxV = math.Max(maxV, r.AvgSpeedKmh)
	}
	sort.Float64s(speeds)

	return Summary{
		Count:     len(rows),
		MeanKmh:   sum / float64(len(rows)),
		MedianKmh: quantile(speeds, 0.5),
		P25Kmh:    quantile(speeds, 0.25),
		P75Kmh:    quantile(speeds, 0.75),
		MinKmh:    minV,
		MaxKmh:    maxV,
	}
}

// quantile interpolates linearly between order statistics. The input
// must be sorted and non-empty.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := p * float64(len(sorted)-1)
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

var weekdayNames = [8]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func byWeekday(rows []models.SpeedBucket) []BreakdownEntry {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, r := range rows {
		wd := int(r.Bucket.Weekday())
		if wd == 0 {
			wd = 7 // Sunday
		}
		sums[wd] += r.AvgSpeedKmh
		counts[wd]++
	}

	var out []BreakdownEntry
	for wd := 1; wd <= 7; wd++ {
		if counts[wd] == 0 {
			continue
		}
		out = append(out, BreakdownEntry{
			Label:       weekdayNames[wd],
			AvgSpeedKmh: sums[wd] / float64(counts[wd]),
			Buckets:     counts[wd],
		})
	}
	return out
}

func byHour(rows []models.SpeedBucket) []BreakdownEntry {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, r := range rows {
		h := r.Bucket.Hour()
		sums[h] += r.AvgSpeedKmh
		counts[h]++
	}

	var out []BreakdownEntry
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		out = append(out, BreakdownEntry{
			Label:       fmt.Sprintf("%02d", h),
			AvgSpeedKmh: sums[h] / float64(counts[h]),
			Buckets:     counts[h],
		})
	}
	return out
}

func byMonth(rows []models.SpeedBucket) []BreakdownEntry {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range rows {
		m := r.Bucket.Format("2006-01")
		sums[m] += r.AvgSpeedKmh
		counts[m]++
	}

	labels := make([]string, 0, len(sums))
	for m := range sums {
		labels = append(labels, m)
	}
	sort.Strings(labels)

	out := make([]BreakdownEntry, 0, len(labels))
	for _, m := range labels {
		out = append(out, BreakdownEntry{
			Label:       m,
			AvgSpeedKmh: sums[m] / float64(counts[m]),
			Buckets:     counts[m],
		})
	}
	return out
}
