// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mpeeters-be/interstop/internal/calendar"
	"github.com/mpeeters-be/interstop/internal/insights"
	"github.com/mpeeters-be/interstop/internal/logging"
	"github.com/mpeeters-be/interstop/internal/models"
	"github.com/mpeeters-be/interstop/internal/pipeline"
	"github.com/mpeeters-be/interstop/internal/topology"
)

// SpeedEstimator answers speed estimation queries.
type SpeedEstimator interface {
	EstimateSpeeds(ctx context.Context, q models.SpeedQuery) (*models.SpeedResult, error)
}

// TopologySource serves the network topology: analyzable lines, ordered
// stops and inter-stop segments.
type TopologySource interface {
	Lines(ctx context.Context) ([]string, error)
	StopsFor(ctx context.Context, lineID string, direction int) ([]topology.Stop, error)
	SegmentsFor(ctx context.Context, lineID string, direction int) ([]topology.Segment, error)
}

// Handler holds the dependencies of all HTTP handlers. Topology and
// calendar are optional; their endpoints answer NOT_FOUND when absent.
type Handler struct {
	engine        SpeedEstimator
	topo          TopologySource
	cal           *calendar.Calendar
	schoolDayType string
}

// NewHandler creates the handler set.
func NewHandler(engine SpeedEstimator, topo TopologySource, cal *calendar.Calendar, schoolDayType string) *Handler {
	return &Handler{engine: engine, topo: topo, cal: cal, schoolDayType: schoolDayType}
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, time.Now())
}

// speedsPayload is the success payload of the speeds endpoint. Rows holds
// either plain buckets or topology-enriched rows.
type speedsPayload struct {
	Rows             interface{}           `json:"rows"`
	ObservationsRead int                   `json:"observationsRead"`
	ShardsFetched    int                   `json:"shardsFetched"`
	ShardsFailed     int                   `json:"shardsFailed"`
	Failures         []models.ShardFailure `json:"failures,omitempty"`
}

// Speeds runs one estimation query.
//
// POST /api/v1/speeds
//
// Query parameters:
//   - format=csv streams the result table as CSV instead of JSON
//   - join=segments attaches segment names, lengths and traversal times
func (h *Handler) Speeds(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var q models.SpeedQuery
	if err := decodeBody(r, &q); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "malformed request body", err)
		return
	}
	if apiErr := validateRequest(&q); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	result, err := h.engine.EstimateSpeeds(r.Context(), q)
	if err != nil {
		respondEstimateError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="speeds.csv"`)
		if err := pipeline.WriteCSV(w, result.Rows); err != nil {
			logging.Error().Err(err).Msg("csv export write failed")
		}
		return
	}

	payload := speedsPayload{
		Rows:             result.Rows,
		ObservationsRead: result.ObservationsRead,
		ShardsFetched:    result.ShardsFetched,
		ShardsFailed:     result.ShardsFailed,
		Failures:         result.Failures,
	}

	if r.URL.Query().Get("join") == "segments" {
		enriched, err := h.joinSegments(r.Context(), q.LineID, result.Rows)
		if err != nil {
			respondError(w, http.StatusBadGateway, codeUpstream, "segment join failed", err)
			return
		}
		if enriched == nil {
			respondError(w, http.StatusNotFound, codeNotFound, "topology source not configured", nil)
			return
		}
		payload.Rows = enriched
	}

	respondSuccess(w, http.StatusOK, payload, start)
}

// joinSegments enriches rows with the segments of both directions of the
// line. Returns nil rows without error when no topology is configured.
func (h *Handler) joinSegments(ctx context.Context, lineID string, rows []models.SpeedBucket) ([]topology.EnrichedRow, error) {
	if h.topo == nil {
		return nil, nil
	}

	var segments []topology.Segment
	for _, direction := range []int{0, 1} {
		segs, err := h.topo.SegmentsFor(ctx, lineID, direction)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segs...)
	}
	return topology.Join(rows, segments), nil
}

// insightsPayload is the success payload of the insights endpoint.
type insightsPayload struct {
	insights.Report
	ShardsFetched int `json:"shardsFetched"`
	ShardsFailed  int `json:"shardsFailed"`
}

// Insights runs one estimation query and reduces the result table to a
// trimmed statistical summary with weekday, hour and month breakdowns.
//
// POST /api/v1/insights
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var q models.SpeedQuery
	if err := decodeBody(r, &q); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "malformed request body", err)
		return
	}
	if apiErr := validateRequest(&q); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	result, err := h.engine.EstimateSpeeds(r.Context(), q)
	if err != nil {
		respondEstimateError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, insightsPayload{
		Report:        insights.Analyze(result.Rows),
		ShardsFetched: result.ShardsFetched,
		ShardsFailed:  result.ShardsFailed,
	}, start)
}

// Lines lists the analyzable line IDs.
//
// GET /api/v1/lines
func (h *Handler) Lines(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.topo == nil {
		respondError(w, http.StatusNotFound, codeNotFound, "topology source not configured", nil)
		return
	}

	lines, err := h.topo.Lines(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, codeUpstream, "fetching lines failed", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{"lines": lines}, start)
}

// Stops lists the ordered stops of one line and direction.
//
// GET /api/v1/lines/{lineID}/stops?direction=0
func (h *Handler) Stops(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.topo == nil {
		respondError(w, http.StatusNotFound, codeNotFound, "topology source not configured", nil)
		return
	}

	lineID := chi.URLParam(r, "lineID")
	direction := 0
	if raw := r.URL.Query().Get("direction"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			respondError(w, http.StatusBadRequest, codeValidation, "direction must be a non-negative integer", nil)
			return
		}
		direction = d
	}

	stops, err := h.topo.StopsFor(r.Context(), lineID, direction)
	if err != nil {
		respondError(w, http.StatusBadGateway, codeUpstream, "fetching stops failed", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"lineId":    lineID,
		"direction": direction,
		"stops":     stops,
	}, start)
}

// CalendarExcluded lists exclusion periods derived from the day-type
// calendar.
//
// GET /api/v1/calendar/excluded?start=2026-01-01&end=2026-06-30
//
// With day_types=a,b only those day types are excluded; without it every
// date whose day type differs from the regular school day type is.
func (h *Handler) CalendarExcluded(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.cal == nil {
		respondError(w, http.StatusNotFound, codeNotFound, "day-type calendar not configured", nil)
		return
	}

	from, err := models.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "start must be a 2006-01-02 date", nil)
		return
	}
	to, err := models.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "end must be a 2006-01-02 date", nil)
		return
	}
	if to.Before(from) {
		respondError(w, http.StatusBadRequest, codeValidation, "end is before start", nil)
		return
	}

	var periods []models.DateRange
	if raw := r.URL.Query().Get("day_types"); raw != "" {
		periods = h.cal.ExcludedPeriods(parseCommaSeparated(raw), from, to)
	} else {
		periods = h.cal.AtypicalPeriods(h.schoolDayType, from, to)
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"excludedRanges": periods,
		"dayTypes":       h.cal.DayTypes(),
	}, start)
}

// respondValidation renders a struct-validation failure.
func respondValidation(w http.ResponseWriter, apiErr *models.APIError) {
	respondJSON(w, http.StatusBadRequest, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    apiErr,
	})
}

// respondEstimateError maps estimation failures onto the error taxonomy.
func respondEstimateError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrInvalidQuery) {
		respondError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
		return
	}
	respondError(w, http.StatusBadGateway, codeUpstream, "speed estimation failed", err)
}
