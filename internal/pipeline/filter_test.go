// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package pipeline

import (
	"testing"
	"time"

	"github.com/mpeeters-be/interstop/internal/models"
)

var brussels = mustLoadLocation("Europe/Brussels")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// obsAt builds an observation whose local civil time in Brussels is the
// given "2006-01-02 15:04:05" string.
func obsAt(t *testing.T, line, point, dir, localTime string, distance float64) models.Observation {
	t.Helper()
	local, err := time.ParseInLocation("2006-01-02 15:04:05", localTime, brussels)
	if err != nil {
		t.Fatalf("parse local time %q: %v", localTime, err)
	}
	return models.Observation{
		LineID:            line,
		PointID:           point,
		DirectionID:       dir,
		DistanceFromPoint: distance,
		Timestamp:         local.UTC(),
		LocalTime:         local,
	}
}

func baseFilterQuery() models.SpeedQuery {
	return models.SpeedQuery{
		LineID:    "93",
		PointIDs:  []string{"5151"},
		StartDate: models.Date{Year: 2026, Month: time.March, Day: 1},
		EndDate:   models.Date{Year: 2026, Month: time.March, Day: 31},
		StartHour: 0,
		EndHour:   23,
		Weekdays:  []int{1, 2, 3, 4, 5, 6, 7},
	}
}

func TestFilterSamplesWeekdayAndHour(t *testing.T) {
	// 2026-03-02 is a Monday.
	var obs []models.Observation
	for day := 2; day <= 8; day++ { // one full week
		for hour := 0; hour < 24; hour++ {
			obs = append(obs, obsAt(t, "93", "5151", "1",
				time.Date(2026, time.March, day, hour, 30, 0, 0, brussels).Format("2006-01-02 15:04:05"), 100))
		}
	}

	q := baseFilterQuery()
	q.Weekdays = []int{1} // Monday
	q.StartHour = 6
	q.EndHour = 9

	got := FilterSamples(obs, q, brussels)

	if len(got) != 4 {
		t.Fatalf("expected 4 observations (Monday 06..09), got %d", len(got))
	}
	for _, o := range got {
		if o.LocalTime.Weekday() != time.Monday {
			t.Errorf("non-Monday observation survived: %v", o.LocalTime)
		}
		if h := o.LocalTime.Hour(); h < 6 || h > 9 {
			t.Errorf("out-of-window hour survived: %v", o.LocalTime)
		}
	}
}

func TestFilterSamplesHourWindowInclusive(t *testing.T) {
	q := baseFilterQuery()
	q.StartHour = 6
	q.EndHour = 9

	inside := obsAt(t, "93", "5151", "1", "2026-03-02 09:59:59", 100)
	outside := obsAt(t, "93", "5151", "1", "2026-03-02 10:00:00", 100)

	got := FilterSamples([]models.Observation{inside, outside}, q, brussels)
	if len(got) != 1 || !got[0].LocalTime.Equal(inside.LocalTime) {
		t.Fatalf("expected only the 09:59:59 observation, got %d rows", len(got))
	}
}

func TestFilterSamplesExcludedRange(t *testing.T) {
	q := baseFilterQuery()
	q.ExcludedRanges = []models.DateRange{{
		Start: models.Date{Year: 2026, Month: time.March, Day: 10},
		End:   models.Date{Year: 2026, Month: time.March, Day: 12},
	}}

	insideExclusion := obsAt(t, "93", "5151", "1", "2026-03-12 23:59:00", 100)
	adjacentOutside := obsAt(t, "93", "5151", "1", "2026-03-13 00:01:00", 100)

	got := FilterSamples([]models.Observation{insideExclusion, adjacentOutside}, q, brussels)
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if !got[0].LocalTime.Equal(adjacentOutside.LocalTime) {
		t.Errorf("wrong observation survived exclusion: %v", got[0].LocalTime)
	}
}

func TestFilterSamplesLocalMidnightBoundary(t *testing.T) {
	// 22:45 UTC on Monday is 23:45 Monday in Brussels (winter, UTC+1);
	// 23:15 UTC on Monday is already 00:15 Tuesday locally. The weekday
	// predicate must see the local day, not the UTC day.
	mondayLateUTC := time.Date(2026, time.March, 2, 22, 45, 0, 0, time.UTC)
	tuesdayEarlyLocal := time.Date(2026, time.March, 2, 23, 15, 0, 0, time.UTC)

	obs := []models.Observation{
		{LineID: "93", PointID: "5151", DirectionID: "1", Timestamp: mondayLateUTC, LocalTime: mondayLateUTC.In(brussels)},
		{LineID: "93", PointID: "5151", DirectionID: "1", Timestamp: tuesdayEarlyLocal, LocalTime: tuesdayEarlyLocal.In(brussels)},
	}

	q := baseFilterQuery()
	q.Weekdays = []int{1} // Monday only

	got := FilterSamples(obs, q, brussels)
	if len(got) != 1 {
		t.Fatalf("expected 1 Monday-local observation, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(mondayLateUTC) {
		t.Errorf("UTC-Monday/local-Tuesday observation misclassified")
	}
}

func TestFilterSamplesLineAndPointRestriction(t *testing.T) {
	obs := []models.Observation{
		obsAt(t, "93", "5151", "1", "2026-03-02 10:00:00", 100),
		obsAt(t, "93", "9999", "1", "2026-03-02 10:00:00", 100), // wrong point
		obsAt(t, "81", "5151", "1", "2026-03-02 10:00:00", 100), // wrong line
	}

	got := FilterSamples(obs, baseFilterQuery(), brussels)
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if got[0].LineID != "93" || got[0].PointID != "5151" {
		t.Errorf("wrong observation survived: %+v", got[0])
	}
}

func TestFilterSamplesEmptyInput(t *testing.T) {
	got := FilterSamples(nil, baseFilterQuery(), brussels)
	if len(got) != 0 {
		t.Fatalf("expected empty output for empty input, got %d", len(got))
	}
}

func TestHumanWeekday(t *testing.T) {
	tests := []struct {
		in   time.Weekday
		want int
	}{
		{time.Monday, 1},
		{time.Wednesday, 3},
		{time.Saturday, 6},
		{time.Sunday, 7},
	}
	for _, tt := range tests {
		if got := humanWeekday(tt.in); got != tt.want {
			t.Errorf("humanWeekday(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
