package http

import (
	"sync"
	"time"
)

// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
// memory exhaustion from rotating source keys.
const maxTrackedKeys = 4096

const rateLimitWindow = 60 * time.Second

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// WebhookRateLimiter bounds inbound webhook calls per key within a
// sliding window. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	maxHits int
	entries map[string]*rateLimitEntry
}

// NewWebhookRateLimiter creates a limiter allowing maxHitsPerMinute per
// key. maxHitsPerMinute <= 0 disables limiting (Allow always true).
func NewWebhookRateLimiter(maxHitsPerMinute int) *WebhookRateLimiter {
	return &WebhookRateLimiter{
		maxHits: maxHitsPerMinute,
		entries: make(map[string]*rateLimitEntry),
	}
}

// Allow returns true if the key is within rate limits. Stale entries are
// pruned when the tracked-key cap is approached.
func (r *WebhookRateLimiter) Allow(key string) bool {
	if r.maxHits <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= rateLimitWindow {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= rateLimitWindow {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.maxHits
}
