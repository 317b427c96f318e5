package services

import (
	"sync"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/metrics"
)

// FloodGuard admits at most threshold requests per sliding window. The call
// that would exceed it is refused and starts a cooldown during which every
// call is refused.
type FloodGuard struct {
	mu           sync.Mutex
	window       time.Duration
	cooldown     time.Duration
	threshold    int
	admitted     []time.Time
	blockedUntil time.Time
}

// NewFloodGuard creates a guard with the given window, threshold and cooldown.
func NewFloodGuard(window time.Duration, threshold int, cooldown time.Duration) *FloodGuard {
	return &FloodGuard{window: window, threshold: threshold, cooldown: cooldown}
}

// Admit records a request at now and reports whether it may proceed.
func (g *FloodGuard) Admit(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Before(g.blockedUntil) {
		return false
	}

	cutoff := now.Add(-g.window)
	kept := g.admitted[:0]
	for _, t := range g.admitted {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.admitted = kept

	if g.threshold > 0 && len(g.admitted) >= g.threshold {
		g.blockedUntil = now.Add(g.cooldown)
		g.admitted = g.admitted[:0]
		metrics.FloodBlocks.Inc()
		return false
	}

	g.admitted = append(g.admitted, now)
	return true
}

// Blocked reports whether the guard is cooling down at now.
func (g *FloodGuard) Blocked(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return now.Before(g.blockedUntil)
}

// BlockedUntil returns the end of the current cooldown, if any.
func (g *FloodGuard) BlockedUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockedUntil
}
