// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package wikifier

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimiterClosed is returned by Wait once the limiter has been closed.
var ErrRateLimiterClosed = errors.New("rate limiter closed")

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens     chan struct{}
	refillRate time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// NewRateLimiter creates a new rate limiter with the specified requests per minute and burst size
func NewRateLimiter(requestsPerMinute, burstSize int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burstSize <= 0 {
		burstSize = 10
	}

	refillRate := time.Minute / time.Duration(requestsPerMinute)

	limiter := &RateLimiter{
		tokens:     make(chan struct{}, burstSize),
		refillRate: refillRate,
		done:       make(chan struct{}),
	}

	for i := 0; i < burstSize; i++ {
		limiter.tokens <- struct{}{}
	}

	go limiter.refillTokens()

	return limiter
}

// Wait blocks until a token is available or context is canceled
func (r *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-r.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRateLimiterClosed
	}
}

// TryAcquire attempts to acquire a token without blocking
func (r *RateLimiter) TryAcquire() bool {
	select {
	case <-r.tokens:
		return true
	default:
		return false
	}
}

// Close stops the rate limiter and releases resources
func (r *RateLimiter) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// refillTokens periodically adds tokens to the bucket
func (r *RateLimiter) refillTokens() {
	ticker := time.NewTicker(r.refillRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case r.tokens <- struct{}{}:
			default:
			}
		case <-r.done:
			return
		}
	}
}

// newRateLimiterFor returns a limiter for cfg, or nil when throttling is disabled
func newRateLimiterFor(cfg RateLimitConfig) *RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	return NewRateLimiter(cfg.RequestsPerMinute, cfg.BurstSize)
}

// waitRateLimiter waits for rate limiter if it exists. When the limiter is replaced
// while waiting, the wait moves to the limiter returned by current.
func waitRateLimiter(ctx context.Context, limiter *RateLimiter, current func() *RateLimiter) error {
	for limiter != nil {
		err := limiter.Wait(ctx)
		if !errors.Is(err, ErrRateLimiterClosed) || current == nil {
			return err
		}
		next := current()
		if next == limiter {
			return err
		}
		limiter = next
	}
	return nil
}
