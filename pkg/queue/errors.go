package queue

import "errors"

// Common errors
var (
	// ErrQueueFull is returned when enqueueing would exceed capacity.
	// Callers must treat this as backpressure, not drop the item silently.
	ErrQueueFull = errors.New("queue is at capacity")

	// ErrStoreNil is returned when a nil store is provided
	ErrStoreNil = errors.New("store cannot be nil")

	// ErrQueueNil is returned when a nil queue is provided
	ErrQueueNil = errors.New("queue cannot be nil")

	// ErrSchedulerNil is returned when a nil scheduler is provided
	ErrSchedulerNil = errors.New("scheduler cannot be nil")

	// ErrSinkNil is returned when a nil dispatch sink is provided
	ErrSinkNil = errors.New("dispatch sink cannot be nil")

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrInvalidDelayBounds is returned when min delay exceeds max delay
	ErrInvalidDelayBounds = errors.New("min send delay must not exceed max send delay")

	// ErrInvalidJitterBounds is returned when immediate jitter bounds are inverted
	ErrInvalidJitterBounds = errors.New("min immediate jitter must not exceed max immediate jitter")

	// ErrInvalidBatchSize is returned when batch size is not positive
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidBatchInterval is returned when batch interval is not positive
	ErrInvalidBatchInterval = errors.New("batch interval must be positive")

	// ErrInvalidCheckInterval is returned when the scheduler interval is not positive
	ErrInvalidCheckInterval = errors.New("check interval must be positive")

	// ErrInvalidCapacity is returned when max queue size is not positive
	ErrInvalidCapacity = errors.New("max queue size must be positive")

	// ErrInvalidMaxAttempts is returned when max attempts is not positive
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrInvalidDispatchTimeout is returned when the dispatch timeout is not positive
	ErrInvalidDispatchTimeout = errors.New("dispatch timeout must be positive")

	// ErrInvalidBackoffBase is returned when the retry backoff base is not positive
	ErrInvalidBackoffBase = errors.New("retry backoff base must be positive")

	// ErrInvalidDelayMode is returned for an unrecognized delay mode
	ErrInvalidDelayMode = errors.New("unrecognized delay mode")

	// ErrInvalidBackoffMode is returned for an unrecognized retry backoff mode
	ErrInvalidBackoffMode = errors.New("unrecognized retry backoff mode")

	// ErrInvalidResumePolicy is returned for an unrecognized resume policy
	ErrInvalidResumePolicy = errors.New("unrecognized resume policy")

	// ErrInvalidMode is returned for an unrecognized dispatch mode
	ErrInvalidMode = errors.New("unrecognized dispatch mode")

	// ErrAlreadyRunning is returned when starting a scheduler twice
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrNotRunning is returned when stopping a scheduler that never started
	ErrNotRunning = errors.New("scheduler not running")

	// ErrItemNotFound is returned when an item id is unknown to the queue
	ErrItemNotFound = errors.New("item not found")

	// ErrSchemaVersion is returned when a loaded snapshot has an unsupported version
	ErrSchemaVersion = errors.New("unsupported state schema version")

	// ErrPersistence is returned after persistence retries are exhausted
	ErrPersistence = errors.New("failed to persist queue state")

	// ErrUnknownCommand is returned for a control command outside the closed set
	ErrUnknownCommand = errors.New("unknown control command")
)

// PermanentError marks a dispatch failure that must not be retried.
// The sink wraps the underlying cause with Permanent to route the item
// straight to the dead letter set.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent dispatch failure: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the retry manager treats it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
