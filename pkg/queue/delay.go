package queue

import (
	"fmt"
	"math/rand"
	"time"
)

// delayPolicy computes release times for accepted items. It is only
// called while the queue mutex is held, so the rng and batch counters
// need no locking of their own.
type delayPolicy struct {
	mode            DelayMode
	minDelay        time.Duration
	maxDelay        time.Duration
	batchSize       int
	batchInterval   time.Duration
	hybridJitterMax time.Duration
	rng             *rand.Rand

	// batch bookkeeping
	batchOrigin time.Time
	batchIndex  int
	batchCount  int
}

func newDelayPolicy(cfg Config, rng *rand.Rand) *delayPolicy {
	return &delayPolicy{
		mode:            cfg.DelayMode,
		minDelay:        cfg.MinSendDelay,
		maxDelay:        cfg.MaxSendDelay,
		batchSize:       cfg.BatchSize,
		batchInterval:   cfg.BatchInterval,
		hybridJitterMax: cfg.HybridJitterMax,
		rng:             rng,
	}
}

// schedule returns the release time for an item arriving at the given
// moment, plus the batch id when batching applies. The returned time is
// never before arrival.
func (p *delayPolicy) schedule(arrival time.Time) (time.Time, string) {
	switch p.mode {
	case DelayModeRandom:
		return arrival.Add(p.uniform(p.minDelay, p.maxDelay)), ""
	case DelayModeBatch:
		release, batchID := p.assignBatch(arrival)
		return release, batchID
	case DelayModeHybrid:
		release, batchID := p.assignBatch(arrival)
		return release.Add(p.uniform(0, p.hybridJitterMax)), batchID
	default:
		// DelayModeImmediate: due as soon as the scheduler looks.
		return arrival, ""
	}
}

// assignBatch places the item into the current batch, opening a new one
// when the batch is full or its release time has already passed. The
// N-th batch of a sequence releases at origin + (N+1) * interval, so a
// fresh batch always gets a full interval of quiet time before firing.
func (p *delayPolicy) assignBatch(arrival time.Time) (time.Time, string) {
	if p.batchOrigin.IsZero() || !p.releaseAt(p.batchIndex).After(arrival) {
		p.batchOrigin = arrival
		p.batchIndex = 0
		p.batchCount = 0
	} else if p.batchCount >= p.batchSize {
		p.batchIndex++
		p.batchCount = 0
	}

	p.batchCount++
	return p.releaseAt(p.batchIndex), p.batchID(p.batchIndex)
}

func (p *delayPolicy) releaseAt(index int) time.Time {
	return p.batchOrigin.Add(time.Duration(index+1) * p.batchInterval)
}

func (p *delayPolicy) batchID(index int) string {
	return fmt.Sprintf("%d-%d", p.batchOrigin.Unix(), index)
}

// uniform draws a duration from the closed interval [min, max].
func (p *delayPolicy) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(p.rng.Int63n(int64(max-min)+1))
}
