package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption is a functional option for configuring a Scheduler
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	cleanup CleanupFunc
	logger  *slog.Logger
	now     func() time.Time
}

// WithCleanup registers the post-send cleanup signal for staged media files
func WithCleanup(cleanup CleanupFunc) SchedulerOption {
	return func(o *schedulerOptions) {
		if cleanup != nil {
			o.cleanup = cleanup
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchedulerClock overrides the scheduler's time source (used in tests)
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}
