// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package wikifier

import (
	"net/url"
	"sync"
	"time"
)

// circuitBreaker tracks failures per host so an unhealthy classifier is not hammered
type circuitBreaker struct {
	mu                 sync.Mutex
	hostFailures       map[string][]time.Time
	maxFailuresPerHost int
	failureWindow      time.Duration
	now                func() time.Time
}

func newCircuitBreaker(cfg CircuitBreakerConfig) *circuitBreaker {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = DefaultCircuitBreakerWindowSeconds * time.Second
	}
	return &circuitBreaker{
		hostFailures:       make(map[string][]time.Time),
		maxFailuresPerHost: cfg.MaxFailures,
		failureWindow:      window,
		now:                time.Now,
	}
}

func hostOf(urlStr string) (string, bool) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", false
	}
	return parsed.Host, true
}

// recordFailure records a failure for a host with timestamp
func (cb *circuitBreaker) recordFailure(urlStr string) {
	host, ok := hostOf(urlStr)
	if !ok {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.hostFailures[host] = append(cb.pruneLocked(host), cb.now())
}

// recordSuccess closes the breaker for a host
func (cb *circuitBreaker) recordSuccess(urlStr string) {
	host, ok := hostOf(urlStr)
	if !ok {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.hostFailures, host)
}

// isOpen checks if the circuit breaker is open for a host (too many failures)
func (cb *circuitBreaker) isOpen(urlStr string) bool {
	if cb.maxFailuresPerHost <= 0 {
		return false
	}
	host, ok := hostOf(urlStr)
	if !ok {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	recent := cb.pruneLocked(host)
	cb.hostFailures[host] = recent
	return len(recent) >= cb.maxFailuresPerHost
}

// pruneLocked drops failures outside the window. Callers hold mu.
func (cb *circuitBreaker) pruneLocked(host string) []time.Time {
	now := cb.now()
	failures := cb.hostFailures[host]
	recent := failures[:0]
	for _, timestamp := range failures {
		if now.Sub(timestamp) <= cb.failureWindow {
			recent = append(recent, timestamp)
		}
	}
	return recent
}
