// Package scanner is the egress proxy's secret-scanner client (spec
// §4.11). It tracks a single availability bit and fails closed: while the
// scanner is unavailable, every scan synthesizes a positive hit tagged
// scanner_unavailable rather than silently allowing traffic through.
// Grounded on original_source/proxy/addon.py's SecretScanner (the
// fail-closed redesign spec.md calls for, not
// dockerfiles/proxy/secret_scanner.py's older fail-open variant) and on
// the teacher's internal/providers/anthropic.go HTTP client construction.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// healthRecheckInterval bounds how often Scan will re-probe a scanner it
// believes is down. Without this, a burst of sandbox traffic hitting an
// unavailable scanner would re-issue the health check on every single
// call instead of once per interval.
const healthRecheckInterval = 2 * time.Second

// LengthFloor is the minimum input length worth scanning (spec §4.10/§4.11:
// "inputs below the length floor are trivially passed").
const LengthFloor = 10

// FullConfidence is the per-scanner score a clean result reports; anything
// lower is treated as a positive hit.
const FullConfidence = 1.0

const healthCheckTimeout = 5 * time.Second

// Result is the outcome of a scan.
type Result struct {
	Positive bool
	Tags     []string
}

// Client talks to the external secret scanner over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration

	available  atomic.Bool
	recheckLim *rate.Limiter
}

// New constructs a Client and runs an initial health check synchronously,
// the way addon.py's __init__ does before serving any traffic.
func New(baseURL, token string, timeout time.Duration) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{},
		timeout:    timeout,
		recheckLim: rate.NewLimiter(rate.Every(healthRecheckInterval), 1),
	}
	c.available.Store(c.healthCheck(context.Background()))
	return c
}

// Available reports the current availability bit.
func (c *Client) Available() bool {
	return c.available.Load()
}

// Scan submits text for analysis. Below LengthFloor, it trivially passes.
// While unavailable, it retries the health check once (mirroring
// addon.py's _scan_for_secrets re-check) before failing closed, but at most
// once per health-recheck interval; a call inside that interval fails
// closed without probing.
func (c *Client) Scan(ctx context.Context, text string) Result {
	if len(text) < LengthFloor {
		return Result{}
	}

	if !c.Available() {
		if !c.recheckLim.Allow() {
			return Result{Positive: true, Tags: []string{"scanner_unavailable"}}
		}
		if !c.healthCheck(ctx) {
			return Result{Positive: true, Tags: []string{"scanner_unavailable"}}
		}
		c.available.Store(true)
	}

	result, err := c.doScan(ctx, text)
	if err != nil {
		c.available.Store(false)
		return Result{Positive: true, Tags: []string{"scanner_unavailable"}}
	}
	return result
}

type scanRequest struct {
	Prompt string `json:"prompt"`
}

type scanResponse struct {
	IsValid  bool               `json:"is_valid"`
	Scanners map[string]float64 `json:"scanners"`
}

func (c *Client) doScan(ctx context.Context, text string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(scanRequest{Prompt: text})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze/prompt", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("scanner: unexpected status %d", resp.StatusCode)
	}

	var out scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, err
	}

	if out.IsValid {
		return Result{}, nil
	}

	var tags []string
	for name, score := range out.Scanners {
		if score < FullConfidence {
			tags = append(tags, name)
		}
	}
	return Result{Positive: true, Tags: tags}, nil
}

func (c *Client) healthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
