package queue

import (
	"log/slog"
	"math/rand"
	"time"
)

// Option is a functional option for configuring a Queue
type Option func(*queueOptions)

type queueOptions struct {
	store  Store
	alert  func(error)
	now    func() time.Time
	logger *slog.Logger
	rng    *rand.Rand
}

// WithStore sets the durable store backing the queue
func WithStore(store Store) Option {
	return func(o *queueOptions) {
		if store != nil {
			o.store = store
		}
	}
}

// WithPersistenceAlert registers a callback invoked when persistence
// retries are exhausted. Use it to page an operator; the queue keeps
// running on in-memory state.
func WithPersistenceAlert(alert func(error)) Option {
	return func(o *queueOptions) {
		if alert != nil {
			o.alert = alert
		}
	}
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(o *queueOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger for the queue
func WithLogger(logger *slog.Logger) Option {
	return func(o *queueOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRand overrides the random source used by the delay policy,
// making scheduled times reproducible in tests.
func WithRand(rng *rand.Rand) Option {
	return func(o *queueOptions) {
		if rng != nil {
			o.rng = rng
		}
	}
}

// EnqueueOption is a functional option for the Enqueue method
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority    Priority
	maxAttempts int8
}

// WithPriority sets the priority for the item
func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxAttempts overrides the configured dispatch attempt cap (1-10)
// Capped at 10 to prevent infinite retry loops on persistent failures
func WithMaxAttempts(maxAttempts int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if maxAttempts >= 1 && maxAttempts <= 10 {
			o.maxAttempts = maxAttempts
		}
	}
}
