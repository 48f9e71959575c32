package queue

import (
	"time"

	"github.com/google/uuid"
)

// Mode controls how freshly ingested items are routed.
type Mode string

const (
	// ModeImmediate dispatches items right away after a short jitter.
	ModeImmediate Mode = "immediate"
	// ModeQueued places items on the delay queue for later dispatch.
	ModeQueued Mode = "queued"
)

// DelayMode selects how release times are computed for queued items.
type DelayMode string

const (
	DelayModeImmediate DelayMode = "immediate"
	DelayModeRandom    DelayMode = "random"
	DelayModeBatch     DelayMode = "batch"
	DelayModeHybrid    DelayMode = "hybrid"
)

// BackoffMode selects the retry delay progression.
type BackoffMode string

const (
	BackoffFixed       BackoffMode = "fixed"
	BackoffExponential BackoffMode = "exponential"
)

// ResumePolicy decides what happens to release times of items reloaded
// from a durable store after downtime.
type ResumePolicy string

const (
	// ResumeKeep keeps the original release times; overdue items become
	// due on the first scheduler tick after restart.
	ResumeKeep ResumePolicy = "keep"
	// ResumeReschedule recomputes release times relative to restart time.
	ResumeReschedule ResumePolicy = "reschedule"
)

// Status represents the lifecycle state of an item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusScheduled   Status = "scheduled"
	StatusDue         Status = "due"
	StatusDispatching Status = "dispatching"
	StatusSent        Status = "sent"
	StatusRetrying    Status = "retrying"
	StatusDeadLetter  Status = "dead_letter"
)

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusDeadLetter
}

// statusTransitions is the closed set of legal lifecycle moves.
// Sent and DeadLetter are terminal; Retrying re-arms back to Scheduled.
var statusTransitions = map[Status][]Status{
	StatusPending:     {StatusScheduled},
	StatusScheduled:   {StatusDue},
	StatusDue:         {StatusDispatching},
	StatusDispatching: {StatusSent, StatusRetrying, StatusDeadLetter},
	StatusRetrying:    {StatusScheduled, StatusDeadLetter},
}

func canTransition(from, to Status) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Priority represents item priority (0-100, higher dispatches first)
// Using int8 provides sufficient range while keeping memory footprint minimal
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// FileRef points at one downloaded media file on disk.
type FileRef struct {
	Path      string `json:"path"`
	MediaType string `json:"type"`
}

// Payload carries the content of one forwarding task. The queue never
// inspects it; it only travels with the item to the dispatch sink.
type Payload struct {
	MessageID    int64     `json:"message_id"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	Files        []FileRef `json:"files,omitempty"`
	Text         string    `json:"text,omitempty"`
	GroupID      string    `json:"group_id,omitempty"`
}

// Item is one unit of forwarding work on the queue.
type Item struct {
	ID            uuid.UUID  `json:"id"`
	Payload       Payload    `json:"payload"`
	ArrivalTime   time.Time  `json:"arrival_time"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Priority      Priority   `json:"priority"`
	Attempts      int8       `json:"attempts"`
	MaxAttempts   int8       `json:"max_attempts"`
	BatchID       string     `json:"batch_id,omitempty"`
	Status        Status     `json:"status"`
	LastError     *string    `json:"last_error,omitempty"`
	DispatchedAt  *time.Time `json:"dispatched_at,omitempty"`
}

// Stats tracks lifetime counters across restarts.
type Stats struct {
	TotalQueued int64 `json:"total_queued"`
	TotalSent   int64 `json:"total_sent"`
	TotalFailed int64 `json:"total_failed"`
}

// StatusReport is a read-only snapshot of the queue for the control surface.
type StatusReport struct {
	Mode          Mode           `json:"mode"`
	Processing    bool           `json:"processing"`
	PendingCount  int            `json:"pending_count"`
	ReadyCount    int            `json:"ready_count"`
	ByStatus      map[Status]int `json:"by_status"`
	Capacity      int            `json:"capacity"`
	Stats         Stats          `json:"stats"`
	NextDueAt     *time.Time     `json:"next_due_at,omitempty"`
	NextDueIn     *float64       `json:"next_due_in_seconds,omitempty"`
	OldestItemAge *float64       `json:"oldest_item_age_seconds,omitempty"`
}

// SchemaVersion is the persisted state format version.
const SchemaVersion = 1

// State is the durable snapshot of the queue. It round-trips losslessly
// through any Store implementation.
type State struct {
	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
	Stats         Stats     `json:"stats"`
	Items         []Item    `json:"items"`
}
