// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mpeeters-be/interstop/internal/models"
)

// WriteCSV writes the result table to w with the stable column order
// lineId, directionId, pointId, speed, count, date.
func WriteCSV(w io.Writer, rows []models.SpeedBucket) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lineId", "directionId", "pointId", "speed", "count", "date"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.LineID,
			r.DirectionID,
			r.PointID,
			strconv.FormatFloat(r.AvgSpeedKmh, 'f', -1, 64),
			strconv.Itoa(r.SampleCount),
			r.Bucket.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// dumpCSV writes the result table to a file, truncating any previous dump.
func dumpCSV(path string, rows []models.SpeedBucket) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dump file: %w", err)
	}
	defer f.Close()
	return WriteCSV(f, rows)
}
