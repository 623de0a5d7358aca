// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package wikifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	const endpoint = "https://www.wikifier.org/annotate-article"

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := newCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, WindowSeconds: 60})
	cb.now = func() time.Time { return now }

	assert.False(t, cb.isOpen(endpoint))
	cb.recordFailure(endpoint)
	assert.False(t, cb.isOpen(endpoint))
	cb.recordFailure(endpoint)
	assert.True(t, cb.isOpen(endpoint))

	// other hosts are unaffected
	assert.False(t, cb.isOpen("https://other.example.com/annotate-article"))

	// failures age out of the window
	now = now.Add(61 * time.Second)
	assert.False(t, cb.isOpen(endpoint))

	cb.recordFailure(endpoint)
	cb.recordFailure(endpoint)
	assert.True(t, cb.isOpen(endpoint))
	cb.recordSuccess(endpoint)
	assert.False(t, cb.isOpen(endpoint))
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := newCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < 100; i++ {
		cb.recordFailure("https://www.wikifier.org")
	}
	assert.False(t, cb.isOpen("https://www.wikifier.org"))
}
