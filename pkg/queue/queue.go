package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	persistAttempts   = 3
	persistRetryDelay = 250 * time.Millisecond
)

// Queue owns the set of pending forwarding items. All access to the item
// collection goes through its mutex; callers never see internal slices.
type Queue struct {
	cfg    Config
	policy *delayPolicy

	mu      sync.Mutex
	items   map[uuid.UUID]*Item
	history []Item
	stats   Stats

	store  Store
	saveMu sync.Mutex
	alert  func(error)

	now    func() time.Time
	logger *slog.Logger
}

// New creates a queue with the given configuration. A misconfigured
// queue is rejected before any item can be accepted.
func New(cfg Config, opts ...Option) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &queueOptions{
		now:    time.Now,
		logger: slog.Default(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Queue{
		cfg:    cfg,
		policy: newDelayPolicy(cfg, options.rng),
		items:  make(map[uuid.UUID]*Item),
		store:  options.store,
		alert:  options.alert,
		now:    options.now,
		logger: options.logger,
	}, nil
}

// Config returns the queue configuration.
func (q *Queue) Config() Config { return q.cfg }

// Enqueue accepts a payload, assigns its release time under the delay
// policy, and persists the new state. Returns ErrQueueFull when the
// non-terminal item count is at capacity; the caller must apply
// backpressure rather than drop the payload silently.
func (q *Queue) Enqueue(ctx context.Context, payload Payload, opts ...EnqueueOption) (uuid.UUID, error) {
	options := &enqueueOptions{
		priority:    PriorityDefault,
		maxAttempts: q.cfg.MaxAttempts,
	}
	for _, opt := range opts {
		opt(options)
	}
	if !options.priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}

	q.mu.Lock()
	if len(q.items) >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w (%d items)", ErrQueueFull, q.cfg.MaxQueueSize)
	}

	now := q.now()
	item := &Item{
		ID:          uuid.New(),
		Payload:     payload,
		ArrivalTime: now,
		Priority:    options.priority,
		Attempts:    0,
		MaxAttempts: options.maxAttempts,
		Status:      StatusPending,
	}
	item.ScheduledTime, item.BatchID = q.policy.schedule(now)
	item.Status = StatusScheduled

	q.items[item.ID] = item
	q.stats.TotalQueued++

	delay := item.ScheduledTime.Sub(now)
	q.mu.Unlock()

	q.logger.Info("item queued",
		slog.String("item_id", item.ID.String()),
		slog.Int64("message_id", payload.MessageID),
		slog.Duration("delay", delay),
		slog.String("batch_id", item.BatchID))

	q.autoSave(ctx)
	return item.ID, nil
}

// PopDue returns all items whose release time has passed, ordered by
// (scheduled time asc, priority desc, arrival asc). Returned items are
// moved to Dispatching, so a concurrent call never sees them again.
func (q *Queue) PopDue(now time.Time) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*Item
	for _, item := range q.items {
		if item.Status == StatusScheduled && !item.ScheduledTime.After(now) {
			due = append(due, item)
		}
	}

	slices.SortFunc(due, func(a, b *Item) int {
		if c := a.ScheduledTime.Compare(b.ScheduledTime); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := a.ArrivalTime.Compare(b.ArrivalTime); c != 0 {
			return c
		}
		// Final deterministic tie-break for items created in the same instant.
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	out := make([]Item, 0, len(due))
	for _, item := range due {
		q.setStatus(item, StatusDue)
		q.setStatus(item, StatusDispatching)
		out = append(out, cloneItem(item))
	}
	return out
}

// CompleteItem marks a dispatching item as sent and retires it to the
// terminal history.
func (q *Queue) CompleteItem(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if item.Status != StatusDispatching {
		return fmt.Errorf("item %s is not dispatching", id)
	}

	now := q.now()
	item.DispatchedAt = &now
	q.setStatus(item, StatusSent)
	q.retire(item)
	q.stats.TotalSent++
	return nil
}

// FailItem records a failed dispatch attempt. Transient failures re-arm
// the item with a backoff delay until MaxAttempts is reached; permanent
// failures dead-letter it immediately. Returns true when the item was
// re-armed for another attempt.
func (q *Queue) FailItem(id uuid.UUID, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if item.Status != StatusDispatching {
		return false, fmt.Errorf("item %s is not dispatching", id)
	}

	item.Attempts++
	msg := cause.Error()
	item.LastError = &msg

	if IsPermanent(cause) {
		q.setStatus(item, StatusDeadLetter)
		q.retire(item)
		q.stats.TotalFailed++
		return false, nil
	}

	if item.Attempts >= item.MaxAttempts {
		q.setStatus(item, StatusDeadLetter)
		q.retire(item)
		q.stats.TotalFailed++
		return false, nil
	}

	q.setStatus(item, StatusRetrying)
	item.ScheduledTime = q.now().Add(retryDelay(q.cfg, item.Attempts))
	q.setStatus(item, StatusScheduled)
	return true, nil
}

// ReleaseItem puts a popped item back on the queue without counting a
// dispatch attempt. Used when the scheduler stops before the item's
// dispatch was ever started.
func (q *Queue) ReleaseItem(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if item.Status != StatusDispatching {
		return fmt.Errorf("item %s is not dispatching", id)
	}

	q.setStatus(item, StatusRetrying)
	q.setStatus(item, StatusScheduled)
	return nil
}

// Status returns a read-only snapshot for the control surface. Mode and
// Processing are filled in by the controller.
func (q *Queue) Status() StatusReport {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	report := StatusReport{
		PendingCount: len(q.items),
		ByStatus:     make(map[Status]int),
		Capacity:     q.cfg.MaxQueueSize,
		Stats:        q.stats,
	}

	var nextDue, oldest *time.Time
	for _, item := range q.items {
		report.ByStatus[item.Status]++
		if item.Status == StatusScheduled {
			if !item.ScheduledTime.After(now) {
				report.ReadyCount++
			}
			if nextDue == nil || item.ScheduledTime.Before(*nextDue) {
				t := item.ScheduledTime
				nextDue = &t
			}
		}
		if oldest == nil || item.ArrivalTime.Before(*oldest) {
			t := item.ArrivalTime
			oldest = &t
		}
	}
	for _, item := range q.history {
		report.ByStatus[item.Status]++
	}

	if nextDue != nil {
		report.NextDueAt = nextDue
		in := nextDue.Sub(now).Seconds()
		report.NextDueIn = &in
	}
	if oldest != nil {
		age := now.Sub(*oldest).Seconds()
		report.OldestItemAge = &age
	}
	return report
}

// Len returns the number of non-terminal items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes every non-terminal item and reports how many were
// dropped. Terminal history is kept; see ClearHistory.
func (q *Queue) Clear(ctx context.Context) int {
	q.mu.Lock()
	count := len(q.items)
	q.items = make(map[uuid.UUID]*Item)
	q.mu.Unlock()

	q.logger.Info("queue cleared", slog.Int("removed", count))
	q.autoSave(ctx)
	return count
}

// ClearHistory drops retained terminal records for size control.
func (q *Queue) ClearHistory() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := len(q.history)
	q.history = nil
	return count
}

// Load restores queue state from the durable store. Items that were
// mid-dispatch when the snapshot was taken are re-armed as scheduled.
// Under ResumeKeep their original release times survive, so items that
// came due during downtime dispatch on the first scheduler tick.
func (q *Queue) Load(ctx context.Context) error {
	if q.store == nil {
		return nil
	}

	state, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queue state: %w", err)
	}
	if state.SchemaVersion > SchemaVersion {
		return fmt.Errorf("%w: %d", ErrSchemaVersion, state.SchemaVersion)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.stats = state.Stats
	now := q.now()
	restored := 0
	for i := range state.Items {
		item := state.Items[i]
		if item.Status.Terminal() {
			q.history = append(q.history, item)
			continue
		}

		item.Status = StatusScheduled
		if q.cfg.ResumePolicy == ResumeReschedule {
			item.ScheduledTime, item.BatchID = q.policy.schedule(now)
		}
		clone := item
		q.items[item.ID] = &clone
		restored++
	}
	q.trimHistory()

	q.logger.Info("queue state restored",
		slog.Int("items", restored),
		slog.Int("history", len(q.history)),
		slog.Time("saved_at", state.SavedAt))
	return nil
}

// Persist writes the current state to the durable store. Saves are
// serialized; transient failures are retried, and exhausting the retries
// raises a loud alert because running with unpersisted state risks
// silent data loss.
func (q *Queue) Persist(ctx context.Context) error {
	if q.store == nil {
		return nil
	}

	q.saveMu.Lock()
	defer q.saveMu.Unlock()

	q.mu.Lock()
	state := q.snapshotLocked()
	q.mu.Unlock()

	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = q.store.Save(ctx, state); err == nil {
			return nil
		}
		q.logger.Warn("queue state save failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return errors.Join(ErrPersistence, ctx.Err())
		case <-time.After(time.Duration(attempt) * persistRetryDelay):
		}
	}

	err = errors.Join(ErrPersistence, err)
	q.logger.Error("queue state could not be persisted, in-memory state is at risk",
		slog.String("error", err.Error()))
	if q.alert != nil {
		q.alert(err)
	}
	return err
}

// autoSave persists after a state-changing operation when enabled.
// Persist already logs and alerts on failure, so the error stops here;
// the in-memory mutation stands either way.
func (q *Queue) autoSave(ctx context.Context) {
	if !q.cfg.AutoSave {
		return
	}
	_ = q.Persist(ctx)
}

// setStatus applies a lifecycle transition, enforcing the closed
// transition table. A violation is a programming error.
func (q *Queue) setStatus(item *Item, to Status) {
	if !canTransition(item.Status, to) {
		panic(fmt.Sprintf("queue: illegal status transition %s -> %s for item %s", item.Status, to, item.ID))
	}
	item.Status = to
}

// retire moves a terminal item out of the live set into the capped
// history ring. The record is purged on a later persistence cycle once
// the cap pushes it out.
func (q *Queue) retire(item *Item) {
	delete(q.items, item.ID)
	q.history = append(q.history, cloneItem(item))
	q.trimHistory()
}

func (q *Queue) trimHistory() {
	if limit := q.cfg.HistoryLimit; limit > 0 && len(q.history) > limit {
		q.history = q.history[len(q.history)-limit:]
	}
}

func (q *Queue) snapshotLocked() State {
	state := State{
		SchemaVersion: SchemaVersion,
		SavedAt:       q.now(),
		Stats:         q.stats,
		Items:         make([]Item, 0, len(q.items)+len(q.history)),
	}
	for _, item := range q.items {
		state.Items = append(state.Items, cloneItem(item))
	}
	// Deterministic snapshot order keeps file diffs readable.
	slices.SortFunc(state.Items, func(a, b Item) int {
		if c := a.ArrivalTime.Compare(b.ArrivalTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	state.Items = append(state.Items, q.history...)
	return state
}

func cloneItem(item *Item) Item {
	clone := *item
	if item.LastError != nil {
		msg := *item.LastError
		clone.LastError = &msg
	}
	if item.DispatchedAt != nil {
		t := *item.DispatchedAt
		clone.DispatchedAt = &t
	}
	clone.Payload.Files = slices.Clone(item.Payload.Files)
	return clone
}
