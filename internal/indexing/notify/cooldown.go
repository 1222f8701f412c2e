package notify

import (
	"sync"
	"time"
)

// Cooldown allows one event per period. The zero time counts as long ago.
type Cooldown struct {
	mu     sync.Mutex
	period time.Duration
	last   time.Time
	now    func() time.Time
}

func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period, now: time.Now}
}

// Allow reports whether the period has elapsed and, if so, starts a new one.
func (c *Cooldown) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.last.IsZero() && now.Sub(c.last) < c.period {
		return false
	}
	c.last = now
	return true
}

// Last returns when the last allowed event happened.
func (c *Cooldown) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
