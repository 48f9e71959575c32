package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is the periodic driver that pulls due items off the queue
// and hands them to the dispatch sink. A single loop goroutine runs the
// ticks, so one tick never overlaps another and no item is mutated
// concurrently.
type Scheduler struct {
	queue   *Queue
	sink    Sink
	cleanup CleanupFunc
	logger  *slog.Logger
	now     func() time.Time

	checkInterval   time.Duration
	dispatchTimeout time.Duration

	mu      sync.Mutex // guards cancel and WaitGroup transitions
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewScheduler creates a scheduler loop over the given queue and sink.
func NewScheduler(q *Queue, sink Sink, opts ...SchedulerOption) (*Scheduler, error) {
	if q == nil {
		return nil, ErrQueueNil
	}
	if sink == nil {
		return nil, ErrSinkNil
	}

	options := &schedulerOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		queue:           q,
		sink:            sink,
		cleanup:         options.cleanup,
		logger:          options.logger,
		now:             options.now,
		checkInterval:   q.cfg.CheckInterval,
		dispatchTimeout: q.cfg.DispatchTimeout,
	}, nil
}

// Start begins the dispatch loop in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("scheduler started",
		slog.Duration("check_interval", s.checkInterval))
	return nil
}

// Stop halts the loop. An in-flight dispatch finishes or times out
// before Stop returns; already-popped items are not discarded, they are
// marked through the normal outcome path. The mutex is held across the
// cancel-and-wait so a concurrent Start cannot register a new loop on
// the WaitGroup while Stop is draining the old one.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return ErrNotRunning
	}

	s.cancel()
	s.cancel = nil
	s.wg.Wait()
	s.running.Store(false)

	s.logger.Info("scheduler stopped")
	return nil
}

// Running reports whether the dispatch loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Run starts the scheduler and returns a function suitable for errgroup
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		if err := s.Stop(); err != nil && err != ErrNotRunning {
			return err
		}
		return nil
	}
}

// run is the main dispatch loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pop-and-dispatch cycle. Exposed so a stopped engine can
// be driven manually and so tests do not need a real ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	due := s.queue.PopDue(s.now())
	if len(due) == 0 {
		return
	}

	s.logger.Debug("dispatching due items", slog.Int("count", len(due)))

	for i := range due {
		// Stop skips starting new dispatches but never abandons an
		// item that was already popped: it is released back to the
		// queue with its release time and attempt count intact.
		select {
		case <-ctx.Done():
			for _, item := range due[i:] {
				_ = s.queue.ReleaseItem(item.ID)
			}
			_ = s.queue.Persist(context.WithoutCancel(ctx))
			return
		default:
		}
		s.dispatchOne(ctx, due[i])
	}

	if s.queue.cfg.AutoSave {
		_ = s.queue.Persist(ctx)
	}
}

// dispatchOne pushes one item through the sink and records the outcome.
func (s *Scheduler) dispatchOne(ctx context.Context, item Item) {
	start := s.now()

	// The dispatch context is detached from the loop context so a
	// graceful stop lets the attempt run to completion or time out.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.dispatchTimeout)
	err := s.sink.Dispatch(dispatchCtx, item.Payload)
	cancel()

	duration := s.now().Sub(start)

	if err == nil {
		if completeErr := s.queue.CompleteItem(item.ID); completeErr != nil {
			s.logger.Error("failed to mark item as sent",
				slog.String("item_id", item.ID.String()),
				slog.String("error", completeErr.Error()))
			return
		}
		s.logger.Info("item dispatched",
			slog.String("item_id", item.ID.String()),
			slog.Int64("message_id", item.Payload.MessageID),
			slog.Duration("duration", duration))
		if s.cleanup != nil {
			s.cleanup(item.Payload)
		}
		return
	}

	requeued, failErr := s.queue.FailItem(item.ID, err)
	if failErr != nil {
		s.logger.Error("failed to record dispatch failure",
			slog.String("item_id", item.ID.String()),
			slog.String("error", failErr.Error()))
		return
	}

	if requeued {
		s.logger.Warn("dispatch failed, item re-armed",
			slog.String("item_id", item.ID.String()),
			slog.Int("attempts", int(item.Attempts)+1),
			slog.Int("max_attempts", int(item.MaxAttempts)),
			slog.String("error", err.Error()))
		return
	}

	s.logger.Error("item dead-lettered",
		slog.String("item_id", item.ID.String()),
		slog.Int64("message_id", item.Payload.MessageID),
		slog.Bool("permanent", IsPermanent(err)),
		slog.String("error", err.Error()))
}
