package dispatch

import "time"

const (
	minConcurrency = 1
	maxConcurrency = 50

	initialCooldown = 1000 * time.Millisecond
	maxCooldown     = 8000 * time.Millisecond
)

// Controller adjusts effective concurrency in response to throttle signals,
// additive-increase/multiplicative-decrease style: halve on throttle (floor 1)
// with a doubling cooldown, climb by one after `target` consecutive successes.
//
// It is not safe for concurrent use; the dispatcher drives it from its
// admission loop only.
type Controller struct {
	target        int
	current       int
	streak        int
	backoff       time.Duration
	cooldownUntil time.Time
}

// NewController clamps the requested concurrency to [1,50] and starts at full
// speed.
func NewController(requested int) *Controller {
	target := requested
	if target < minConcurrency {
		target = minConcurrency
	}
	if target > maxConcurrency {
		target = maxConcurrency
	}
	return &Controller{
		target:  target,
		current: target,
		backoff: initialCooldown,
	}
}

// Target is the user-requested concurrency after clamping.
func (c *Controller) Target() int { return c.target }

// Current is the effective concurrency: the number of workers the dispatcher
// may have in flight right now.
func (c *Controller) Current() int { return c.current }

// CooldownRemaining reports how long admission stays paused. Zero means work
// may be admitted.
func (c *Controller) CooldownRemaining(now time.Time) time.Duration {
	if remaining := c.cooldownUntil.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// RecordSuccess counts toward the additive-increase streak. After `target`
// consecutive successes the effective concurrency climbs by one, capped at
// the target.
func (c *Controller) RecordSuccess() {
	c.streak++
	if c.streak < c.target {
		return
	}
	c.streak = 0
	if c.current < c.target {
		c.current++
	}
}

// RecordFailure resets the success streak. A throttle failure additionally
// halves the effective concurrency (floor 1) and pauses admission for the
// current cooldown, which doubles per throttle up to the cap.
func (c *Controller) RecordFailure(now time.Time, throttled bool) {
	c.streak = 0
	if !throttled {
		return
	}
	c.current /= 2
	if c.current < minConcurrency {
		c.current = minConcurrency
	}
	c.cooldownUntil = now.Add(c.backoff)
	c.backoff *= 2
	if c.backoff > maxCooldown {
		c.backoff = maxCooldown
	}
}
