package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/relayq/pkg/queue"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*queue.Config)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *queue.Config) {},
		},
		{
			name:    "unknown delay mode",
			mutate:  func(c *queue.Config) { c.DelayMode = "chaotic" },
			wantErr: queue.ErrInvalidDelayMode,
		},
		{
			name:    "negative min delay",
			mutate:  func(c *queue.Config) { c.MinSendDelay = -time.Second },
			wantErr: queue.ErrInvalidDelayBounds,
		},
		{
			name: "min delay above max",
			mutate: func(c *queue.Config) {
				c.MinSendDelay = 3 * time.Hour
				c.MaxSendDelay = time.Hour
			},
			wantErr: queue.ErrInvalidDelayBounds,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *queue.Config) { c.BatchSize = 0 },
			wantErr: queue.ErrInvalidBatchSize,
		},
		{
			name:    "zero batch interval",
			mutate:  func(c *queue.Config) { c.BatchInterval = 0 },
			wantErr: queue.ErrInvalidBatchInterval,
		},
		{
			name:    "zero check interval",
			mutate:  func(c *queue.Config) { c.CheckInterval = 0 },
			wantErr: queue.ErrInvalidCheckInterval,
		},
		{
			name:    "zero capacity",
			mutate:  func(c *queue.Config) { c.MaxQueueSize = 0 },
			wantErr: queue.ErrInvalidCapacity,
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *queue.Config) { c.MaxAttempts = 0 },
			wantErr: queue.ErrInvalidMaxAttempts,
		},
		{
			name:    "zero dispatch timeout",
			mutate:  func(c *queue.Config) { c.DispatchTimeout = 0 },
			wantErr: queue.ErrInvalidDispatchTimeout,
		},
		{
			name:    "zero backoff base",
			mutate:  func(c *queue.Config) { c.RetryBackoffBase = 0 },
			wantErr: queue.ErrInvalidBackoffBase,
		},
		{
			name:    "unknown backoff mode",
			mutate:  func(c *queue.Config) { c.RetryBackoff = "quadratic" },
			wantErr: queue.ErrInvalidBackoffMode,
		},
		{
			name:    "unknown resume policy",
			mutate:  func(c *queue.Config) { c.ResumePolicy = "drop" },
			wantErr: queue.ErrInvalidResumePolicy,
		},
		{
			name: "jitter min above max",
			mutate: func(c *queue.Config) {
				c.ImmediateJitterMin = time.Minute
				c.ImmediateJitterMax = time.Second
			},
			wantErr: queue.ErrInvalidJitterBounds,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := queue.DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("all violations are reported together", func(t *testing.T) {
		t.Parallel()

		cfg := queue.DefaultConfig()
		cfg.DelayMode = "chaotic"
		cfg.BatchSize = 0
		cfg.MaxQueueSize = -1

		err := cfg.Validate()
		assert.ErrorIs(t, err, queue.ErrInvalidDelayMode)
		assert.ErrorIs(t, err, queue.ErrInvalidBatchSize)
		assert.ErrorIs(t, err, queue.ErrInvalidCapacity)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("QUEUE_DELAY_MODE", "batch")
		t.Setenv("QUEUE_BATCH_SIZE", "8")
		t.Setenv("QUEUE_BATCH_INTERVAL", "15m")
		t.Setenv("QUEUE_MAX_SIZE", "250")
		t.Setenv("QUEUE_AUTO_SAVE", "false")
		t.Setenv("QUEUE_RESUME_POLICY", "reschedule")

		cfg, err := queue.LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, queue.DelayModeBatch, cfg.DelayMode)
		assert.Equal(t, 8, cfg.BatchSize)
		assert.Equal(t, 15*time.Minute, cfg.BatchInterval)
		assert.Equal(t, 250, cfg.MaxQueueSize)
		assert.False(t, cfg.AutoSave)
		assert.Equal(t, queue.ResumeReschedule, cfg.ResumePolicy)

		// Untouched fields keep their documented defaults.
		assert.Equal(t, 5*time.Minute, cfg.MinSendDelay)
		assert.Equal(t, int8(3), cfg.MaxAttempts)
	})

	t.Run("invalid environment values fail fast", func(t *testing.T) {
		t.Setenv("QUEUE_MAX_SIZE", "0")

		_, err := queue.LoadConfig()
		assert.ErrorIs(t, err, queue.ErrInvalidCapacity)
	})
}
