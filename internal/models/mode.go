// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// SpeedComputationMode selects which physically valid delta samples enter
// aggregation. The three modes form a pessimistic-to-optimistic spectrum
// and are mutually exclusive, so they are a closed enumeration rather than
// boolean flags.
type SpeedComputationMode int

const (
	// ModeAll accepts every valid sample, including zero-speed dwell
	// samples (speed >= 0).
	ModeAll SpeedComputationMode = iota

	// ModeGreaterThanZero accepts only moving samples (speed > 0),
	// excluding genuinely stationary dwell time.
	ModeGreaterThanZero

	// ModeGreaterThanZeroNearStop accepts zero-speed samples only when the
	// vehicle is far from the reporting point. Queuing right at a stop
	// produces false zero-speed readings; the same reading mid-segment is
	// trusted.
	ModeGreaterThanZeroNearStop
)

const (
	modeAllStr            = "all"
	modeGTZeroStr         = "gt_zero"
	modeGTZeroNearStopStr = "gt_zero_near_stop"
)

// ParseSpeedComputationMode converts the wire representation to a mode.
func ParseSpeedComputationMode(s string) (SpeedComputationMode, error) {
	switch s {
	case modeAllStr, "":
		return ModeAll, nil
	case modeGTZeroStr:
		return ModeGreaterThanZero, nil
	case modeGTZeroNearStopStr:
		return ModeGreaterThanZeroNearStop, nil
	default:
		return ModeAll, fmt.Errorf("invalid speed computation mode %q (expected %s, %s or %s)",
			s, modeAllStr, modeGTZeroStr, modeGTZeroNearStopStr)
	}
}

// String returns the wire representation of the mode.
func (m SpeedComputationMode) String() string {
	switch m {
	case ModeGreaterThanZero:
		return modeGTZeroStr
	case ModeGreaterThanZeroNearStop:
		return modeGTZeroNearStopStr
	default:
		return modeAllStr
	}
}

// Accept reports whether a physically valid delta sample passes the mode
// predicate. nearStopDistanceM is the distance-from-point threshold below
// which zero-speed samples are distrusted (ModeGreaterThanZeroNearStop only).
func (m SpeedComputationMode) Accept(d DeltaSample, nearStopDistanceM float64) bool {
	switch m {
	case ModeGreaterThanZero:
		return d.SpeedKmh > 0
	case ModeGreaterThanZeroNearStop:
		return d.DistanceFromPoint > nearStopDistanceM || d.SpeedKmh > 0
	default:
		return d.SpeedKmh >= 0
	}
}

// MarshalJSON encodes the mode as its wire string.
func (m SpeedComputationMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes the mode from its wire string.
func (m *SpeedComputationMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, err := ParseSpeedComputationMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
