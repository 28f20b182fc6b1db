// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

package topology

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang/geo/s2"

	"github.com/mpeeters-be/interstop/internal/config"
	"github.com/mpeeters-be/interstop/internal/logging"
)

// Client fetches the network topology from the transit API and caches it
// in memory. The topology changes rarely; one TTL-bounded snapshot per
// process is enough.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	stopsPath    string
	segmentsPath string
	ttl          time.Duration

	mu        sync.Mutex
	stops     []Stop
	shapes    []shape
	fetchedAt time.Time
}

// NewClient creates a topology client sharing the upstream archive's
// base URL and bearer token.
func NewClient(up config.UpstreamConfig, topo config.TopologyConfig) *Client {
	ttl := topo.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{
		httpClient:   &http.Client{Timeout: up.Timeout},
		baseURL:      up.URL,
		token:        up.Token,
		stopsPath:    topo.StopsComponent,
		segmentsPath: topo.SegmentsComponent,
		ttl:          ttl,
	}
}

// Lines returns the analyzable line IDs.
func (c *Client) Lines(ctx context.Context) ([]string, error) {
	stops, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return AnalyzableLines(stops), nil
}

// StopsFor returns the stops of one line and direction in sequence order.
func (c *Client) StopsFor(ctx context.Context, lineID string, direction int) ([]Stop, error) {
	stops, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out []Stop
	for _, s := range stops {
		if s.LineID == lineID && s.Direction == direction {
			out = append(out, s)
		}
	}
	sortStopsBySequence(out)
	return out, nil
}

// SegmentsFor returns the consecutive-stop segments of one line and
// direction.
func (c *Client) SegmentsFor(ctx context.Context, lineID string, direction int) ([]Segment, error) {
	stops, shapes, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var dirStops []Stop
	for _, s := range stops {
		if s.LineID == lineID && s.Direction == direction {
			dirStops = append(dirStops, s)
		}
	}
	var dirShapes []shape
	for _, s := range shapes {
		if s.lineID == lineID && s.direction == direction {
			dirShapes = append(dirShapes, s)
		}
	}
	return BuildSegments(dirStops, dirShapes), nil
}

// snapshot returns the cached topology, refreshing it when the TTL has
// lapsed. A refresh failure with a previous snapshot in hand falls back
// to the stale copy.
func (c *Client) snapshot(ctx context.Context) ([]Stop, []shape, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stops != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.stops, c.shapes, nil
	}

	stops, shapes, err := c.fetch(ctx)
	if err != nil {
		if c.stops != nil {
			logging.Warn().Err(err).Msg("topology refresh failed, serving stale snapshot")
			return c.stops, c.shapes, nil
		}
		return nil, nil, err
	}

	c.stops = stops
	c.shapes = shapes
	c.fetchedAt = time.Now()
	return c.stops, c.shapes, nil
}

func (c *Client) fetch(ctx context.Context) ([]Stop, []shape, error) {
	stopsFC, err := c.getFeatures(ctx, c.stopsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching stops: %w", err)
	}
	segmentsFC, err := c.getFeatures(ctx, c.segmentsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching segments: %w", err)
	}

	stops, err := decodeStops(stopsFC)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding stops: %w", err)
	}
	shapes, err := decodeShapes(segmentsFC)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding segments: %w", err)
	}

	logging.Debug().Int("stops", len(stops)).Int("segments", len(shapes)).Msg("topology snapshot refreshed")
	return stops, shapes, nil
}

func (c *Client) getFeatures(ctx context.Context, path string) (*geoFeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("closing topology response")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	var fc geoFeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &fc, nil
}

// GeoJSON wire types. Properties stay raw until the endpoint-specific
// decoder runs.
type geoFeatureCollection struct {
	Features []geoFeature `json:"features"`
}

type geoFeature struct {
	Properties json.RawMessage `json:"properties"`
	Geometry   geoGeometry     `json:"geometry"`
}

type geoGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// flexID tolerates stop identifiers arriving as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type stopProperties struct {
	RouteShortName string `json:"route_short_name"`
	Direction      int    `json:"direction"`
	StopSequence   int    `json:"stop_sequence"`
	StopID         flexID `json:"stop_id"`
	StopName       string `json:"stop_name"`
}

type segmentProperties struct {
	LineID    string  `json:"line_id"`
	Direction int     `json:"direction"`
	Start     flexID  `json:"start"`
	Distance  float64 `json:"distance"`
}

func decodeStops(fc *geoFeatureCollection) ([]Stop, error) {
	out := make([]Stop, 0, len(fc.Features))
	for _, f := range fc.Features {
		var p stopProperties
		if err := json.Unmarshal(f.Properties, &p); err != nil {
			return nil, err
		}
		stop := Stop{
			LineID:    p.RouteShortName,
			Direction: p.Direction,
			StopID:    string(p.StopID),
			StopName:  p.StopName,
			Sequence:  p.StopSequence,
		}
		if f.Geometry.Type == "Point" {
			var coords []float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err == nil && len(coords) >= 2 {
				stop.Lon, stop.Lat = coords[0], coords[1]
			}
		}
		out = append(out, stop)
	}
	return out, nil
}

// decodeShapes converts segment features. The feed's direction is
// 1-based while stop directions are 0-based; normalized here so the two
// sources join cleanly.
func decodeShapes(fc *geoFeatureCollection) ([]shape, error) {
	out := make([]shape, 0, len(fc.Features))
	for _, f := range fc.Features {
		var p segmentProperties
		if err := json.Unmarshal(f.Properties, &p); err != nil {
			return nil, err
		}
		s := shape{
			lineID:      p.LineID,
			direction:   p.Direction - 1,
			startStopID: string(p.Start),
			distanceM:   p.Distance,
		}
		if f.Geometry.Type == "LineString" {
			var coords [][]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err == nil {
				for _, c := range coords {
					if len(c) >= 2 {
						s.points = append(s.points, s2.LatLngFromDegrees(c[1], c[0]))
					}
				}
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func sortStopsBySequence(stops []Stop) {
	sort.Slice(stops, func(i, j int) bool {
		return stops[i].Sequence < stops[j].Sequence
	})
}
