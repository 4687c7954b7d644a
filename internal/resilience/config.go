package resilience

import "time"

// PolicyFrom builds a Policy from config values, keeping defaults for zero
// fields.
func PolicyFrom(attempts int, base, max time.Duration) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if base > 0 {
		p.BaseDelay = base
	}
	if max > 0 {
		p.MaxDelay = max
	}
	return p
}

// BreakerFrom builds a BreakerConfig from config values.
func BreakerFrom(threshold int, cooldown time.Duration) BreakerConfig {
	c := DefaultBreakerConfig()
	if threshold > 0 {
		c.Threshold = threshold
	}
	if cooldown > 0 {
		c.Cooldown = cooldown
	}
	return c
}
