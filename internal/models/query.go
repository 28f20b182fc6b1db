// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidQuery marks query parameter errors detected at the boundary,
// before any observation fetch. Callers match with errors.Is.
var ErrInvalidQuery = errors.New("invalid query parameters")

// Date is a civil calendar date without a time component, serialized as
// "2006-01-02". Comparisons are date-only; the timezone the date belongs
// to is supplied by the query context, never embedded here.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the civil date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// In returns the midnight instant of the date in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// String formats the date as "2006-01-02".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON encodes the date as "2006-01-02".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a "2006-01-02" string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange is an inclusive range of civil dates. Both endpoint days are
// excluded in full when the range is used as an exclusion period.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Contains reports whether d falls inside the range, endpoints included.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// SpeedQuery is the inbound query consumed by the estimation engine.
//
// Weekdays use human indices with Monday=1 through Sunday=7. Hours are
// inclusive on both ends: StartHour=6, EndHour=9 retains observations
// from 06:00:00 through 09:59:59 local time.
type SpeedQuery struct {
	LineID         string               `json:"lineId" validate:"required"`
	PointIDs       []string             `json:"pointIds" validate:"required,min=1,dive,required"`
	StartDate      Date                 `json:"startDate"`
	EndDate        Date                 `json:"endDate"`
	StartHour      int                  `json:"startHour" validate:"min=0,max=23"`
	EndHour        int                  `json:"endHour" validate:"min=0,max=23"`
	Weekdays       []int                `json:"weekdays" validate:"required,min=1,dive,min=1,max=7"`
	ExcludedRanges []DateRange          `json:"excludedRanges"`
	Mode           SpeedComputationMode `json:"mode"`
}

// Validate rejects parameter combinations the struct tags cannot express.
// It runs at the boundary, before the observation source is touched.
func (q SpeedQuery) Validate() error {
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidQuery)
	}
	if q.EndDate.Before(q.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidQuery, q.EndDate, q.StartDate)
	}
	if q.StartHour > q.EndHour {
		return fmt.Errorf("%w: start hour %d is after end hour %d", ErrInvalidQuery, q.StartHour, q.EndHour)
	}
	if len(q.PointIDs) == 0 {
		return fmt.Errorf("%w: at least one point is required", ErrInvalidQuery)
	}
	for _, r := range q.ExcludedRanges {
		if r.End.Before(r.Start) {
			return fmt.Errorf("%w: excluded range %s..%s is inverted", ErrInvalidQuery, r.Start, r.End)
		}
	}
	return nil
}

// WindowStart returns the first instant of the query window in loc
// (start date at start hour).
func (q SpeedQuery) WindowStart(loc *time.Location) time.Time {
	return time.Date(q.StartDate.Year, q.StartDate.Month, q.StartDate.Day, q.StartHour, 0, 0, 0, loc)
}

// WindowEnd returns the last instant of the query window in loc
// (end date at the end of the end hour).
func (q SpeedQuery) WindowEnd(loc *time.Location) time.Time {
	return time.Date(q.EndDate.Year, q.EndDate.Month, q.EndDate.Day, q.EndHour, 59, 59, 0, loc)
}
