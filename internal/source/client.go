// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package source talks to the open-data archive that serves parquetized
// vehicle position shards. A query first asks the archive index which
// shard files cover a UTC time range for a line, then downloads each
// shard into the local cache.
//
// Resilience:
//   - Circuit breaker on the index endpoint (the single point of failure)
//   - Per-shard retries with fixed delay; a shard that stays unreachable
//     is reported as a failure, never as a query error
//   - On-disk shard cache keyed by URL hash
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mpeeters-be/interstop/internal/config"
	"github.com/mpeeters-be/interstop/internal/logging"
	"github.com/mpeeters-be/interstop/internal/metrics"
	"github.com/mpeeters-be/interstop/internal/models"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

const breakerName = "archive-index"

// Client fetches observation shards from the archive.
type Client struct {
	cfg        config.UpstreamConfig
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]string]
}

// indexResponse is the archive index payload.
type indexResponse struct {
	Results []string `json:"results"`
}

// New creates an archive client.
func New(cfg config.UpstreamConfig) *Client {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("archive index circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         cb,
	}
}

// Fetch resolves the shard files covering [from, to] for one line and
// makes each of them available locally. Shards that cannot be downloaded
// are folded into the returned set; only an unreachable index fails the
// call.
func (c *Client) Fetch(ctx context.Context, lineID string, from, to time.Time) (models.ShardSet, error) {
	urls, err := c.cb.Execute(func() ([]string, error) {
		return c.listShards(ctx, lineID, from, to)
	})
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, breakerResult(err)).Inc()
		return models.ShardSet{}, fmt.Errorf("listing shards: %w", err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()

	set := models.ShardSet{}
	for _, shardURL := range urls {
		path, err := c.ensureLocal(ctx, shardURL)
		if err != nil {
			metrics.ShardFetches.WithLabelValues("failed").Inc()
			set.Failures = append(set.Failures, models.ShardFailure{URL: shardURL, Error: err.Error()})
			continue
		}
		set.Files = append(set.Files, path)
	}
	return set, nil
}

// listShards asks the archive index for the shard URLs covering the
// requested window.
func (c *Client) listShards(ctx context.Context, lineID string, from, to time.Time) ([]string, error) {
	keys, err := json.Marshal(map[string]string{"lineId": lineID})
	if err != nil {
		return nil, fmt.Errorf("encoding index keys: %w", err)
	}

	q := url.Values{}
	q.Set("start_timestamp", fmt.Sprintf("%d", from.Unix()))
	q.Set("end_timestamp", fmt.Sprintf("%d", to.Unix()))
	q.Set("component", c.cfg.Component)
	q.Set("keys", string(keys))

	endpoint := fmt.Sprintf("%s/parquetized?%s", c.cfg.URL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating index request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying archive index: %w", err)
	}
	defer closeQuietly(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("archive index returned status %d: %s", resp.StatusCode, body)
	}

	var idx indexResponse
	if err := json.NewDecoder(resp.Body).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decoding index response: %w", err)
	}

	logging.Debug().
		Str("line", lineID).
		Int("shards", len(idx.Results)).
		Time("from", from).
		Time("to", to).
		Msg("archive index resolved")

	return idx.Results, nil
}

// ensureLocal returns the local path of a shard, downloading it into the
// cache unless a previous query already did.
func (c *Client) ensureLocal(ctx context.Context, shardURL string) (string, error) {
	path := c.cachePath(shardURL)

	if _, err := os.Stat(path); err == nil {
		metrics.ShardFetches.WithLabelValues("hit").Inc()
		return path, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}
		if lastErr = c.download(ctx, shardURL, path); lastErr == nil {
			metrics.ShardFetches.WithLabelValues("downloaded").Inc()
			return path, nil
		}
		logging.Warn().Err(lastErr).Str("shard", shardURL).Int("attempt", attempt+1).Msg("shard download failed")
	}
	return "", lastErr
}

// download streams one shard to the cache. The file is written to a temp
// name and renamed so a torn download never poisons the cache.
func (c *Client) download(ctx context.Context, shardURL, path string) error {
	start := time.Now()
	defer func() {
		metrics.ShardFetchDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shardURL, nil)
	if err != nil {
		return fmt.Errorf("creating shard request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading shard: %w", err)
	}
	defer closeQuietly(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return fmt.Errorf("shard download returned status %d: %s", resp.StatusCode, body)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".shard-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		closeQuietly(tmp)
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing shard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing shard file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("moving shard into cache: %w", err)
	}
	return nil
}

// cachePath derives a stable cache file name from the shard URL.
func (c *Client) cachePath(shardURL string) string {
	dir := c.cfg.CacheDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "interstop-shards")
	}
	sum := sha256.Sum256([]byte(shardURL))
	return filepath.Join(dir, hex.EncodeToString(sum[:16])+".parquet")
}

// readBodyForError reads up to maxErrorBodySize of a response body for
// error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("close failed")
	}
}

func breakerResult(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "rejected"
	}
	return "failure"
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
