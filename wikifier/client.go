// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package wikifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/logger"
)

const (
	annotatePath     = "/annotate-article"
	maxResponseBytes = 8 << 20
)

// Observer receives upstream call measurements.
type Observer interface {
	ObserveUpstreamDuration(statusCode string, elapsed float64)
	IncrementUpstreamErrors(reason string)
}

// Client extracts reference entries from text using the Wikifier annotation service.
type Client struct {
	mu      sync.RWMutex
	config  Config
	limiter *RateLimiter
	breaker *circuitBreaker

	httpClient *http.Client
	log        logger.Logger
	observer   Observer
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient; log and observer
// may be nil.
func NewClient(cfg Config, httpClient *http.Client, log logger.Logger, observer Observer) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		config:     cfg,
		limiter:    newRateLimiterFor(cfg.RateLimit),
		breaker:    newCircuitBreaker(cfg.CircuitBreaker),
		httpClient: httpClient,
		log:        log,
		observer:   observer,
	}
}

// Configure swaps the configuration used by subsequent calls. Calls already in flight
// keep the settings they started with, except that a call waiting on a replaced rate
// limiter continues waiting on the new one.
func (c *Client) Configure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.RateLimit != c.config.RateLimit {
		if c.limiter != nil {
			c.limiter.Close()
		}
		c.limiter = newRateLimiterFor(cfg.RateLimit)
	}
	if cfg.CircuitBreaker != c.config.CircuitBreaker {
		c.breaker = newCircuitBreaker(cfg.CircuitBreaker)
	}
	c.config = cfg
}

// Close releases the rate limiter.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiter != nil {
		c.limiter.Close()
		c.limiter = nil
	}
}

func (c *Client) currentLimiter() *RateLimiter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.limiter
}

func (c *Client) snapshot() (Config, *RateLimiter, *circuitBreaker) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config, c.limiter, c.breaker
}

// Extract returns the reference entries the classifier finds in text, in response order.
// A response of unknown shape is logged and yields no entries.
func (c *Client) Extract(ctx context.Context, text string) ([]annotations.ReferenceEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, annotations.ErrInvalidInput
	}

	cfg, limiter, breaker := c.snapshot()
	if cfg.UserKey == "" {
		return nil, annotations.ErrMissingCredential
	}

	endpoint := strings.TrimSuffix(cfg.apiURL(), "/") + annotatePath
	if breaker.isOpen(endpoint) {
		c.countError("circuit_open")
		return nil, fmt.Errorf("%w: circuit breaker open for %s", annotations.ErrUpstreamUnavailable, endpoint)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	if err := waitRateLimiter(ctx, limiter, c.currentLimiter); err != nil {
		c.countError("rate_limited")
		return nil, fmt.Errorf("%w: rate limiter: %w", annotations.ErrUpstreamUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = queryParams(cfg, text).Encode()
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		breaker.recordFailure(endpoint)
		c.observe("error", start)
		c.countError("transport")
		return nil, fmt.Errorf("%w: %w", annotations.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	c.observe(strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		breaker.recordFailure(endpoint)
		c.countError("status")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", annotations.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		breaker.recordFailure(endpoint)
		c.countError("read")
		return nil, fmt.Errorf("%w: failed to read response: %w", annotations.ErrUpstreamUnavailable, err)
	}
	breaker.recordSuccess(endpoint)

	entries, strategy, err := parseResponse(body, cfg.referenceBaseURL())
	if err != nil {
		if errors.Is(err, annotations.ErrParseFailure) {
			c.countError("parse")
			if c.log != nil {
				c.log.Warn("Unrecognized classifier response", "error", err, "body_bytes", len(body))
			}
			return []annotations.ReferenceEntry{}, nil
		}
		return nil, err
	}

	if c.log != nil {
		c.log.Debug("Extracted references", "strategy", strategy, "count", len(entries))
	}

	return entries, nil
}

func queryParams(cfg Config, text string) url.Values {
	params := url.Values{}
	params.Set("userKey", cfg.UserKey)
	params.Set("text", text)
	params.Set("lang", cfg.language())
	params.Set("pageRankSqThreshold", strconv.FormatFloat(cfg.PageRankSqThreshold, 'f', -1, 64))
	params.Set("applyPageRankSqThreshold", strconv.FormatBool(cfg.ApplyPageRankSqThreshold))
	params.Set("nTopDfValuesToIgnore", strconv.Itoa(cfg.NTopDfValuesToIgnore))
	params.Set("nWordsToIgnoreFromList", strconv.Itoa(cfg.NWordsToIgnoreFromList))
	return params
}

func (c *Client) observe(statusCode string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstreamDuration(statusCode, time.Since(start).Seconds())
	}
}

func (c *Client) countError(reason string) {
	if c.observer != nil {
		c.observer.IncrementUpstreamErrors(reason)
	}
}
