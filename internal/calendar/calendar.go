// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package calendar loads the operator's day-type calendar export. The
// export assigns every service date a day type (school period, school
// holiday, public holiday and so on); analyses use it to exclude
// atypical days without hand-listing date ranges.
package calendar

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mpeeters-be/interstop/internal/logging"
	"github.com/mpeeters-be/interstop/internal/models"
)

const (
	dateColumn    = "CALENDAR_DATE"
	dayTypeColumn = "DAY_TYPE"
)

// Calendar maps service dates to operator day types. Immutable after
// Load and safe for concurrent reads.
type Calendar struct {
	byDate map[models.Date]string
}

// Load reads a day-type calendar CSV. The file must carry a header with
// CALENDAR_DATE and DAY_TYPE columns; extra columns are ignored. Rows
// with unparseable dates are skipped and counted.
func Load(path string) (*Calendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening calendar file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Warn().Err(cerr).Str("path", path).Msg("closing calendar file")
		}
	}()

	cal, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar file %s: %w", path, err)
	}
	return cal, nil
}

// Parse reads a day-type calendar CSV from r.
func Parse(r io.Reader) (*Calendar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	dateIdx, typeIdx := -1, -1
	for i, col := range header {
		switch strings.ToUpper(strings.TrimSpace(col)) {
		case dateColumn:
			dateIdx = i
		case dayTypeColumn:
			typeIdx = i
		}
	}
	if dateIdx < 0 || typeIdx < 0 {
		return nil, fmt.Errorf("header misses %s or %s columns: %v", dateColumn, dayTypeColumn, header)
	}

	byDate := make(map[models.Date]string)
	skipped := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record: %w", err)
		}
		if dateIdx >= len(record) || typeIdx >= len(record) {
			skipped++
			continue
		}
		d, err := models.ParseDate(strings.TrimSpace(record[dateIdx]))
		if err != nil {
			skipped++
			continue
		}
		byDate[d] = strings.TrimSpace(record[typeIdx])
	}

	if skipped > 0 {
		logging.Warn().Int("count", skipped).Msg("calendar records skipped")
	}

	return &Calendar{byDate: byDate}, nil
}

// DayType returns the day type recorded for a date.
func (c *Calendar) DayType(d models.Date) (string, bool) {
	t, ok := c.byDate[d]
	return t, ok
}

// Len returns the number of dated entries.
func (c *Calendar) Len() int {
	return len(c.byDate)
}

// ExcludedPeriods returns one single-day range per date in [start, end]
// whose day type matches any of dayTypes. The ranges plug directly into
// a speed query's excluded ranges.
func (c *Calendar) ExcludedPeriods(dayTypes []string, start, end models.Date) []models.DateRange {
	wanted := make(map[string]struct{}, len(dayTypes))
	for _, t := range dayTypes {
		wanted[strings.TrimSpace(t)] = struct{}{}
	}

	var out []models.DateRange
	for d, t := range c.byDate {
		if d.Before(start) || d.After(end) {
			continue
		}
		if _, ok := wanted[t]; ok {
			out = append(out, models.DateRange{Start: d, End: d})
		}
	}
	sortRanges(out)
	return out
}

// AtypicalPeriods returns one single-day range per date in [start, end]
// whose day type differs from schoolDayType. Dates absent from the
// calendar are not excluded.
func (c *Calendar) AtypicalPeriods(schoolDayType string, start, end models.Date) []models.DateRange {
	var out []models.DateRange
	for d, t := range c.byDate {
		if d.Before(start) || d.After(end) {
			continue
		}
		if t != schoolDayType {
			out = append(out, models.DateRange{Start: d, End: d})
		}
	}
	sortRanges(out)
	return out
}

// DayTypes returns the distinct day types present, sorted.
func (c *Calendar) DayTypes() []string {
	seen := make(map[string]struct{})
	for _, t := range c.byDate {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func sortRanges(rs []models.DateRange) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Start.Before(rs[j].Start)
	})
}
