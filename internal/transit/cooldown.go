// Package transit holds the meridian-crossing logic: deciding which stars
// just crossed, gating re-fires for most of a sidereal day, and projecting
// which stars come up next.
package transit

import (
	"sync"
	"time"
)

// Cooldown tracks when each star last fired. Entries are only added or
// refreshed, never removed: absence means the star has never fired. The loop
// is the only writer; the RWMutex exists for the status API readers.
type Cooldown struct {
	mu        sync.RWMutex
	window    time.Duration
	lastFired map[string]time.Time
}

// NewCooldown builds a tracker whose window is fraction of a sidereal day.
// Callers keep fraction strictly below 1 so detection jitter at the boundary
// cannot swallow the next true crossing; the loop config enforces that.
func NewCooldown(fraction, siderealDaySeconds float64) *Cooldown {
	return &Cooldown{
		window:    time.Duration(fraction * siderealDaySeconds * float64(time.Second)),
		lastFired: make(map[string]time.Time),
	}
}

// Window returns the ineligibility span.
func (c *Cooldown) Window() time.Duration {
	return c.window
}

// Eligible reports whether the named star may fire at instant now.
func (c *Cooldown) Eligible(name string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.lastFired[name]
	if !ok {
		return true
	}
	return now.Sub(t) >= c.window
}

// MarkFired records a firing at instant now.
func (c *Cooldown) MarkFired(name string, now time.Time) {
	c.mu.Lock()
	c.lastFired[name] = now
	c.mu.Unlock()
}

// ActiveCount returns how many stars are ineligible at instant now.
func (c *Cooldown) ActiveCount(now time.Time) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, t := range c.lastFired {
		if now.Sub(t) < c.window {
			n++
		}
	}
	return n
}
