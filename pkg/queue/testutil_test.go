package queue_test

import (
	"sync"
	"time"

	"github.com/relaykit/relayq/pkg/queue"
)

// fakeClock is a controllable time source shared between the queue and
// the scheduler in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testConfig returns a valid configuration with deterministic, fast
// values. AutoSave is off; persistence tests enable it explicitly.
func testConfig() queue.Config {
	cfg := queue.DefaultConfig()
	cfg.DelayMode = queue.DelayModeImmediate
	cfg.CheckInterval = 10 * time.Millisecond
	cfg.DispatchTimeout = time.Second
	cfg.RetryBackoff = queue.BackoffFixed
	cfg.RetryBackoffBase = time.Minute
	cfg.ImmediateJitterMin = 0
	cfg.ImmediateJitterMax = 0
	cfg.AutoSave = false
	return cfg
}

func payload(messageID int64) queue.Payload {
	return queue.Payload{
		MessageID:    messageID,
		ChannelTitle: "test channel",
		Text:         "caption",
		Files: []queue.FileRef{
			{Path: "/tmp/downloads/file.jpg", MediaType: "photo"},
		},
	}
}
