// Package ratelimit implements the per-(chain_id, agent_id) rolling
// sliding-window limiter spec.md §5 requires: at most 10 submissions per
// hour per agent, rejecting the rest with a retry_after hint. It follows
// the teacher's config-struct-with-defaults, mutex-guarded-state
// construction style.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config controls the sliding window.
type Config struct {
	MaxEvents int
	Window    time.Duration
}

// DefaultConfig matches spec.md §4.1: <= 10 submissions/hour.
func DefaultConfig() Config {
	return Config{MaxEvents: 10, Window: time.Hour}
}

// Limiter is a keyed sliding-window rate limiter.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	events   map[string][]time.Time
}

// New creates a Limiter. A zero Config is normalized to DefaultConfig().
func New(cfg Config) *Limiter {
	if cfg.MaxEvents <= 0 || cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	return &Limiter{cfg: cfg, events: make(map[string][]time.Time)}
}

func key(chainID uint64, agentID string) string {
	return fmt.Sprintf("%d:%s", chainID, agentID)
}

// Allow reports whether a new event for (chainID, agentID) is permitted
// right now, recording it if so. When denied, retryAfter is how long the
// caller should wait before the oldest event in the window expires.
func (l *Limiter) Allow(chainID uint64, agentID string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	k := key(chainID, agentID)
	windowStart := now.Add(-l.cfg.Window)

	events := l.events[k]
	fresh := events[:0]
	for _, t := range events {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= l.cfg.MaxEvents {
		l.events[k] = fresh
		oldest := fresh[0]
		return false, oldest.Add(l.cfg.Window).Sub(now)
	}

	fresh = append(fresh, now)
	l.events[k] = fresh
	return true, 0
}
