package queue

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the configuration for the delayed dispatch queue
type Config struct {
	DelayMode          DelayMode     `env:"QUEUE_DELAY_MODE" envDefault:"random"`
	MinSendDelay       time.Duration `env:"QUEUE_MIN_SEND_DELAY" envDefault:"5m"`
	MaxSendDelay       time.Duration `env:"QUEUE_MAX_SEND_DELAY" envDefault:"2h"`
	BatchSize          int           `env:"QUEUE_BATCH_SIZE" envDefault:"5"`
	BatchInterval      time.Duration `env:"QUEUE_BATCH_INTERVAL" envDefault:"30m"`
	HybridJitterMax    time.Duration `env:"QUEUE_HYBRID_JITTER_MAX" envDefault:"5m"`
	CheckInterval      time.Duration `env:"QUEUE_CHECK_INTERVAL" envDefault:"30s"`
	MaxQueueSize       int           `env:"QUEUE_MAX_SIZE" envDefault:"100"`
	MaxAttempts        int8          `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff       BackoffMode   `env:"QUEUE_RETRY_BACKOFF" envDefault:"exponential"`
	RetryBackoffBase   time.Duration `env:"QUEUE_RETRY_BACKOFF_BASE" envDefault:"5m"`
	RetryBackoffMax    time.Duration `env:"QUEUE_RETRY_BACKOFF_MAX" envDefault:"1h"`
	DispatchTimeout    time.Duration `env:"QUEUE_DISPATCH_TIMEOUT" envDefault:"2m"`
	ImmediateJitterMin time.Duration `env:"QUEUE_IMMEDIATE_JITTER_MIN" envDefault:"1s"`
	ImmediateJitterMax time.Duration `env:"QUEUE_IMMEDIATE_JITTER_MAX" envDefault:"30s"`
	AutoSave           bool          `env:"QUEUE_AUTO_SAVE" envDefault:"true"`
	SavePath           string        `env:"QUEUE_SAVE_PATH" envDefault:"queue_state.json"`
	ResumePolicy       ResumePolicy  `env:"QUEUE_RESUME_POLICY" envDefault:"keep"`
	HistoryLimit       int           `env:"QUEUE_HISTORY_LIMIT" envDefault:"100"`
}

// Validate rejects a misconfigured queue before any item is accepted.
func (c Config) Validate() error {
	var errs []error

	switch c.DelayMode {
	case DelayModeImmediate, DelayModeRandom, DelayModeBatch, DelayModeHybrid:
	default:
		errs = append(errs, ErrInvalidDelayMode)
	}
	if c.MinSendDelay < 0 || c.MinSendDelay > c.MaxSendDelay {
		errs = append(errs, ErrInvalidDelayBounds)
	}
	if c.BatchSize <= 0 {
		errs = append(errs, ErrInvalidBatchSize)
	}
	if c.BatchInterval <= 0 {
		errs = append(errs, ErrInvalidBatchInterval)
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, ErrInvalidCheckInterval)
	}
	if c.MaxQueueSize <= 0 {
		errs = append(errs, ErrInvalidCapacity)
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, ErrInvalidMaxAttempts)
	}
	if c.DispatchTimeout <= 0 {
		errs = append(errs, ErrInvalidDispatchTimeout)
	}
	if c.RetryBackoffBase <= 0 {
		errs = append(errs, ErrInvalidBackoffBase)
	}
	switch c.RetryBackoff {
	case BackoffFixed, BackoffExponential:
	default:
		errs = append(errs, ErrInvalidBackoffMode)
	}
	switch c.ResumePolicy {
	case ResumeKeep, ResumeReschedule:
	default:
		errs = append(errs, ErrInvalidResumePolicy)
	}
	if c.ImmediateJitterMin < 0 || c.ImmediateJitterMin > c.ImmediateJitterMax {
		errs = append(errs, ErrInvalidJitterBounds)
	}

	return errors.Join(errs...)
}

// DefaultConfig returns a Config populated with the documented defaults.
func DefaultConfig() Config {
	return Config{
		DelayMode:          DelayModeRandom,
		MinSendDelay:       5 * time.Minute,
		MaxSendDelay:       2 * time.Hour,
		BatchSize:          5,
		BatchInterval:      30 * time.Minute,
		HybridJitterMax:    5 * time.Minute,
		CheckInterval:      30 * time.Second,
		MaxQueueSize:       100,
		MaxAttempts:        3,
		RetryBackoff:       BackoffExponential,
		RetryBackoffBase:   5 * time.Minute,
		RetryBackoffMax:    time.Hour,
		DispatchTimeout:    2 * time.Minute,
		ImmediateJitterMin: time.Second,
		ImmediateJitterMax: 30 * time.Second,
		AutoSave:           true,
		SavePath:           "queue_state.json",
		ResumePolicy:       ResumeKeep,
		HistoryLimit:       100,
	}
}

// LoadConfig reads configuration from the environment. A .env file is
// loaded first when present; missing files are not an error.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
