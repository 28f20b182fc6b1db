// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/mpeeters-be/interstop/internal/calendar"
	"github.com/mpeeters-be/interstop/internal/config"
	"github.com/mpeeters-be/interstop/internal/models"
	"github.com/mpeeters-be/interstop/internal/topology"
)

type fakeEngine struct {
	result *models.SpeedResult
	err    error
	calls  int
}

func (f *fakeEngine) EstimateSpeeds(_ context.Context, _ models.SpeedQuery) (*models.SpeedResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeTopology struct {
	lines    []string
	stops    []topology.Stop
	segments map[int][]topology.Segment
	err      error
}

func (f *fakeTopology) Lines(_ context.Context) ([]string, error) {
	return f.lines, f.err
}

func (f *fakeTopology) StopsFor(_ context.Context, _ string, _ int) ([]topology.Stop, error) {
	return f.stops, f.err
}

func (f *fakeTopology) SegmentsFor(_ context.Context, _ string, direction int) ([]topology.Segment, error) {
	return f.segments[direction], f.err
}

func sampleResult() *models.SpeedResult {
	bucket := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	return &models.SpeedResult{
		Rows: []models.SpeedBucket{
			{LineID: "93", DirectionID: "1", PointID: "5151", Bucket: bucket, AvgSpeedKmh: 18, SampleCount: 4},
		},
		ShardsFetched:    2,
		ObservationsRead: 12,
	}
}

const validQuery = `{
	"lineId": "93",
	"pointIds": ["5151"],
	"startDate": "2026-03-02",
	"endDate": "2026-03-02",
	"startHour": 6,
	"endHour": 9,
	"weekdays": [1, 2, 3, 4, 5]
}`

func newTestServer(t *testing.T, engine SpeedEstimator, topo TopologySource, cal *calendar.Calendar) *httptest.Server {
	t.Helper()
	handler := NewHandler(engine, topo, cal, "SCH")
	router := NewRouter(handler, config.ServerConfig{Timeout: 5 * time.Second})
	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, models.APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return resp, envelope
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, nil)

	resp, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if envelope.Status != "success" {
		t.Errorf("envelope status = %q", envelope.Status)
	}
}

func TestSpeedsReturnsRows(t *testing.T) {
	engine := &fakeEngine{result: sampleResult()}
	srv := newTestServer(t, engine, nil, nil)

	resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/speeds", validQuery)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, envelope = %+v", resp.StatusCode, envelope)
	}
	if engine.calls != 1 {
		t.Errorf("engine called %d times", engine.calls)
	}

	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %#v", envelope.Data)
	}
	rows, ok := data["rows"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Fatalf("rows = %#v", data["rows"])
	}
	if data["shardsFetched"].(float64) != 2 {
		t.Errorf("shardsFetched = %v", data["shardsFetched"])
	}
}

func TestSpeedsRejectsMissingFields(t *testing.T) {
	engine := &fakeEngine{result: sampleResult()}
	srv := newTestServer(t, engine, nil, nil)

	resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/speeds", `{"lineId": "93"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v", envelope.Error)
	}
	if engine.calls != 0 {
		t.Errorf("engine touched on invalid request")
	}
}

func TestSpeedsRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, nil)

	resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/speeds", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestSpeedsMapsEngineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid query parameters",
			err:        fmt.Errorf("%w: end date before start date", models.ErrInvalidQuery),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "upstream failure",
			err:        errors.New("resolving observation shards: connection refused"),
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeEngine{err: tt.err}, nil, nil)

			resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/speeds", validQuery)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if envelope.Error == nil || envelope.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", envelope.Error, tt.wantCode)
			}
		})
	}
}

func TestSpeedsCSVExport(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, nil)

	resp, err := http.Post(srv.URL+"/api/v1/speeds?format=csv", "application/json", strings.NewReader(validQuery))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, body = %q", len(lines), body)
	}
	if lines[0] != "lineId,directionId,pointId,speed,count,date" {
		t.Errorf("csv header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "93,1,5151,18,4,") {
		t.Errorf("csv row = %q", lines[1])
	}
}

func TestSpeedsJoinSegments(t *testing.T) {
	topo := &fakeTopology{
		segments: map[int][]topology.Segment{
			0: {{LineID: "93", Direction: 0, FromStopID: "5150", ToStopID: "5151", Name: "Legrand -> Bascule", LengthM: 700}},
		},
	}
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, topo, nil)

	resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/speeds?join=segments", validQuery)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, envelope = %+v", resp.StatusCode, envelope)
	}

	data := envelope.Data.(map[string]interface{})
	rows := data["rows"].([]interface{})
	row := rows[0].(map[string]interface{})
	if row["segmentName"] != "Legrand -> Bascule" {
		t.Errorf("segmentName = %v", row["segmentName"])
	}
	if row["lengthM"].(float64) != 700 {
		t.Errorf("lengthM = %v", row["lengthM"])
	}
}

func TestSpeedsJoinWithoutTopology(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, nil)

	resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/speeds?join=segments", validQuery)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestInsights(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, nil)

	resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/insights", validQuery)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, envelope = %+v", resp.StatusCode, envelope)
	}

	data := envelope.Data.(map[string]interface{})
	summary, ok := data["summary"].(map[string]interface{})
	if !ok {
		t.Fatalf("summary = %#v", data["summary"])
	}
	if summary["count"].(float64) != 1 {
		t.Errorf("summary count = %v", summary["count"])
	}
	if summary["meanKmh"].(float64) != 18 {
		t.Errorf("mean = %v", summary["meanKmh"])
	}
}

func TestLines(t *testing.T) {
	topo := &fakeTopology{lines: []string{"7", "71", "93"}}
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, topo, nil)

	resp, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/lines", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data := envelope.Data.(map[string]interface{})
	lines := data["lines"].([]interface{})
	if len(lines) != 3 || lines[2] != "93" {
		t.Errorf("lines = %v", lines)
	}
}

func TestLinesWithoutTopology(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, nil)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/lines", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStops(t *testing.T) {
	topo := &fakeTopology{stops: []topology.Stop{
		{LineID: "93", StopID: "5150", StopName: "Legrand", Sequence: 1},
		{LineID: "93", StopID: "5151", StopName: "Bascule", Sequence: 2},
	}}
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, topo, nil)

	resp, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/lines/93/stops?direction=0", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data := envelope.Data.(map[string]interface{})
	if data["lineId"] != "93" {
		t.Errorf("lineId = %v", data["lineId"])
	}
	stops := data["stops"].([]interface{})
	if len(stops) != 2 {
		t.Errorf("stops = %v", stops)
	}
}

func TestStopsRejectsBadDirection(t *testing.T) {
	topo := &fakeTopology{}
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, topo, nil)

	resp, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/lines/93/stops?direction=west", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestCalendarExcluded(t *testing.T) {
	cal, err := calendar.Parse(strings.NewReader(
		"CALENDAR_DATE,DAY_TYPE\n2026-03-02,SCH\n2026-03-03,VAC\n2026-03-04,PH\n"))
	if err != nil {
		t.Fatalf("parsing calendar: %v", err)
	}
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, cal)

	resp, envelope := doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/calendar/excluded?start=2026-03-01&end=2026-03-31", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, envelope = %+v", resp.StatusCode, envelope)
	}

	data := envelope.Data.(map[string]interface{})
	ranges := data["excludedRanges"].([]interface{})
	if len(ranges) != 2 {
		t.Fatalf("excludedRanges = %v", ranges)
	}
	first := ranges[0].(map[string]interface{})
	if first["start"] != "2026-03-03" {
		t.Errorf("first excluded = %v", first)
	}
}

func TestCalendarExcludedByDayType(t *testing.T) {
	cal, err := calendar.Parse(strings.NewReader(
		"CALENDAR_DATE,DAY_TYPE\n2026-03-02,SCH\n2026-03-03,VAC\n2026-03-04,PH\n"))
	if err != nil {
		t.Fatalf("parsing calendar: %v", err)
	}
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, cal)

	resp, envelope := doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/calendar/excluded?start=2026-03-01&end=2026-03-31&day_types=PH", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	data := envelope.Data.(map[string]interface{})
	ranges := data["excludedRanges"].([]interface{})
	if len(ranges) != 1 {
		t.Fatalf("excludedRanges = %v", ranges)
	}
}

func TestCalendarExcludedValidatesDates(t *testing.T) {
	cal, err := calendar.Parse(strings.NewReader("CALENDAR_DATE,DAY_TYPE\n2026-03-02,SCH\n"))
	if err != nil {
		t.Fatalf("parsing calendar: %v", err)
	}
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, cal)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/calendar/excluded?start=bogus&end=2026-03-31", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCalendarExcludedWithoutCalendar(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{result: sampleResult()}, nil, nil)

	resp, _ := doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/calendar/excluded?start=2026-03-01&end=2026-03-31", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
