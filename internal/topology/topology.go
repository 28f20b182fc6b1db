// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package topology models the transit network: stops ordered along each
// line and direction, and the segments linking consecutive stops.
// Segment lengths come from the feed's cumulative distance where
// available, with a geodesic fallback over the segment shape.
package topology

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/golang/geo/s2"

	"github.com/mpeeters-be/interstop/internal/models"
)

// earthRadiusM matches the mean earth radius used for geodesic lengths.
const earthRadiusM = 6371008.8

// Stop is one stop on a line in one direction.
type Stop struct {
	LineID    string  `json:"lineId"`
	Direction int     `json:"direction"`
	StopID    string  `json:"stopId"`
	StopName  string  `json:"stopName"`
	Sequence  int     `json:"stopSequence"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Segment links a stop to its predecessor along a line and direction.
type Segment struct {
	LineID       string  `json:"lineId"`
	Direction    int     `json:"direction"`
	FromStopID   string  `json:"fromStopId"`
	FromStopName string  `json:"fromStopName"`
	ToStopID     string  `json:"toStopId"`
	ToStopName   string  `json:"toStopName"`
	Name         string  `json:"name"`
	LengthM      float64 `json:"lengthM"`
}

// shape carries a segment's feed geometry and cumulative distance,
// keyed by the stop the segment starts at.
type shape struct {
	lineID      string
	direction   int
	startStopID string
	distanceM   float64 // cumulative along the line, 0 when absent
	points      []s2.LatLng
}

// BuildSegments orders stops by (line, direction, sequence) and links
// each stop to its predecessor. The first stop of every direction has no
// predecessor and yields no segment. Lengths come from the cumulative
// feed distance of consecutive shapes; when the feed carries no usable
// distance the geodesic length of the shape is used instead.
func BuildSegments(stops []Stop, shapes []shape) []Segment {
	ordered := append([]Stop(nil), stops...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.LineID != b.LineID {
			return a.LineID < b.LineID
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.Sequence < b.Sequence
	})

	type dirKey struct {
		lineID    string
		direction int
	}
	type shapeKey struct {
		lineID    string
		direction int
		startStop string
	}
	shapeByStart := make(map[shapeKey]shape, len(shapes))
	for _, s := range shapes {
		shapeByStart[shapeKey{s.lineID, s.direction, s.startStopID}] = s
	}

	var (
		out  []Segment
		prev = make(map[dirKey]Stop)
	)
	for _, stop := range ordered {
		key := dirKey{stop.LineID, stop.Direction}
		p, ok := prev[key]
		prev[key] = stop
		if !ok {
			continue
		}

		seg := Segment{
			LineID:       stop.LineID,
			Direction:    stop.Direction,
			FromStopID:   p.StopID,
			FromStopName: p.StopName,
			ToStopID:     stop.StopID,
			ToStopName:   stop.StopName,
			Name:         fmt.Sprintf("%s -> %s", p.StopName, stop.StopName),
		}

		// The feed's distance is cumulative along the line at the shape's
		// starting stop, so the segment length is the diff between the
		// shapes anchored at both ends.
		cur, curOK := shapeByStart[shapeKey{stop.LineID, stop.Direction, stop.StopID}]
		before, beforeOK := shapeByStart[shapeKey{stop.LineID, stop.Direction, p.StopID}]
		switch {
		case curOK && beforeOK && cur.distanceM > before.distanceM:
			seg.LengthM = cur.distanceM - before.distanceM
		case curOK && len(cur.points) >= 2:
			seg.LengthM = geodesicLengthM(cur.points)
		}

		out = append(out, seg)
	}
	return out
}

// geodesicLengthM sums great-circle distances along a polyline.
func geodesicLengthM(points []s2.LatLng) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += points[i-1].Distance(points[i]).Radians() * earthRadiusM
	}
	return total
}

// TraversalSeconds converts a segment length and average speed into the
// time a vehicle needs to traverse the segment. Returns 0 for
// non-positive speeds.
func TraversalSeconds(lengthM, speedKmh float64) float64 {
	if speedKmh <= 0 {
		return 0
	}
	return lengthM / (speedKmh / 3.6)
}

// droppedLines are the metro lines the position feed does not cover.
var droppedLines = map[string]struct{}{"1": {}, "2": {}, "5": {}, "6": {}}

var nightLine = regexp.MustCompile(`N`)
var lineNumber = regexp.MustCompile(`\d+`)

// AnalyzableLines returns the distinct line IDs carried by stops, minus
// metro and night lines, sorted by numeric value.
func AnalyzableLines(stops []Stop) []string {
	seen := make(map[string]struct{})
	for _, s := range stops {
		if _, drop := droppedLines[s.LineID]; drop {
			continue
		}
		if nightLine.MatchString(s.LineID) {
			continue
		}
		seen[s.LineID] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := lineNumeric(out[i]), lineNumeric(out[j])
		if a != b {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

func lineNumeric(lineID string) int {
	m := lineNumber.FindString(lineID)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// EnrichedRow is a speed bucket joined with its segment.
type EnrichedRow struct {
	models.SpeedBucket
	SegmentName      string  `json:"segmentName"`
	LengthM          float64 `json:"lengthM"`
	TraversalSeconds float64 `json:"traversalSeconds"`
}

// Join attaches segment names, lengths and traversal times to a speed
// table. Rows whose point has no segment (the first stop of a direction)
// keep empty segment fields.
func Join(rows []models.SpeedBucket, segments []Segment) []EnrichedRow {
	byToStop := make(map[string]Segment, len(segments))
	for _, seg := range segments {
		byToStop[seg.LineID+"|"+seg.ToStopID] = seg
	}

	out := make([]EnrichedRow, len(rows))
	for i, r := range rows {
		er := EnrichedRow{SpeedBucket: r}
		if seg, ok := byToStop[r.LineID+"|"+r.PointID]; ok {
			er.SegmentName = seg.Name
			er.LengthM = seg.LengthM
			er.TraversalSeconds = TraversalSeconds(seg.LengthM, r.AvgSpeedKmh)
		}
		out[i] = er
	}
	return out
}
