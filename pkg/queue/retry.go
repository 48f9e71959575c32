package queue

import "time"

// retryDelay computes the backoff before the next dispatch attempt.
// attempt is the number of attempts already made (>= 1).
func retryDelay(cfg Config, attempt int8) time.Duration {
	base := cfg.RetryBackoffBase
	if base <= 0 {
		return 0
	}

	if cfg.RetryBackoff == BackoffFixed {
		return base
	}

	// Exponential: base, 2*base, 4*base... capped so a struggling sink
	// never pushes an item out indefinitely.
	delay := base
	for i := int8(1); i < attempt; i++ {
		delay *= 2
		if cfg.RetryBackoffMax > 0 && delay >= cfg.RetryBackoffMax {
			return cfg.RetryBackoffMax
		}
	}
	if cfg.RetryBackoffMax > 0 && delay > cfg.RetryBackoffMax {
		return cfg.RetryBackoffMax
	}
	return delay
}
