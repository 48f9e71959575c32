package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Controller routes freshly ingested items either straight to the sink
// (immediate mode) or onto the delay queue (queued mode). Switching the
// mode is an atomic flag flip; items already inside the queue are never
// touched by a switch.
type Controller struct {
	queue  *Queue
	sched  *Scheduler
	sink   Sink
	logger *slog.Logger

	mode atomic.Value // Mode

	jitterMin time.Duration
	jitterMax time.Duration
	rngMu     sync.Mutex
	rng       *rand.Rand

	sleep    func(ctx context.Context, d time.Duration) error
	handlers map[CommandKind]commandHandler
}

// NewController wires the queue, scheduler, and sink into the ingestion
// entry point and the command surface.
func NewController(q *Queue, sched *Scheduler, sink Sink, opts ...ControllerOption) (*Controller, error) {
	if q == nil {
		return nil, ErrQueueNil
	}
	if sched == nil {
		return nil, ErrSchedulerNil
	}
	if sink == nil {
		return nil, ErrSinkNil
	}

	options := &controllerOptions{
		logger: slog.Default(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(options)
	}

	c := &Controller{
		queue:     q,
		sched:     sched,
		sink:      sink,
		logger:    options.logger,
		jitterMin: q.cfg.ImmediateJitterMin,
		jitterMax: q.cfg.ImmediateJitterMax,
		rng:       options.rng,
		sleep:     options.sleep,
	}
	c.mode.Store(q.cfg.InitialMode())
	c.handlers = c.commandHandlers()
	return c, nil
}

// InitialMode derives the starting dispatch mode from the delay mode:
// "immediate" bypasses the queue, everything else goes through it.
func (c Config) InitialMode() Mode {
	if c.DelayMode == DelayModeImmediate {
		return ModeImmediate
	}
	return ModeQueued
}

// Mode returns the current dispatch mode.
func (c *Controller) Mode() Mode {
	return c.mode.Load().(Mode)
}

// SetMode flips the dispatch mode. Only future ingestion is affected.
// "queue" is accepted as the short form of ModeQueued on the control
// surface.
func (c *Controller) SetMode(mode Mode) error {
	switch mode {
	case ModeImmediate, ModeQueued:
	case "queue":
		mode = ModeQueued
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	prev := c.mode.Swap(mode).(Mode)
	if prev != mode {
		c.logger.Info("dispatch mode switched",
			slog.String("from", string(prev)),
			slog.String("to", string(mode)))
	}
	return nil
}

// DownloadComplete is the ingestion entry point: the downloader hands
// over a fully assembled payload. In queued mode the item lands on the
// delay queue; in immediate mode it is dispatched after a short random
// jitter so forwarding is never literally synchronous.
func (c *Controller) DownloadComplete(ctx context.Context, payload Payload, opts ...EnqueueOption) (uuid.UUID, error) {
	if c.Mode() == ModeQueued {
		return c.queue.Enqueue(ctx, payload, opts...)
	}
	return c.dispatchImmediate(ctx, payload)
}

func (c *Controller) dispatchImmediate(ctx context.Context, payload Payload) (uuid.UUID, error) {
	id := uuid.New()
	jitter := c.drawJitter()

	c.logger.Debug("immediate dispatch",
		slog.String("item_id", id.String()),
		slog.Int64("message_id", payload.MessageID),
		slog.Duration("jitter", jitter))

	if err := c.sleep(ctx, jitter); err != nil {
		return id, err
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, c.queue.cfg.DispatchTimeout)
	defer cancel()

	if err := c.sink.Dispatch(dispatchCtx, payload); err != nil {
		c.logger.Error("immediate dispatch failed",
			slog.String("item_id", id.String()),
			slog.Bool("permanent", IsPermanent(err)),
			slog.String("error", err.Error()))
		return id, fmt.Errorf("immediate dispatch of message %d: %w", payload.MessageID, err)
	}
	return id, nil
}

func (c *Controller) drawJitter() time.Duration {
	if c.jitterMax <= c.jitterMin {
		return c.jitterMin
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.jitterMin + time.Duration(c.rng.Int63n(int64(c.jitterMax-c.jitterMin)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ControllerOption is a functional option for configuring a Controller
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	logger *slog.Logger
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithControllerLogger sets the logger for the controller
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(o *controllerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithControllerRand overrides the jitter random source (used in tests)
func WithControllerRand(rng *rand.Rand) ControllerOption {
	return func(o *controllerOptions) {
		if rng != nil {
			o.rng = rng
		}
	}
}

// WithControllerSleep overrides the jitter sleep (used in tests)
func WithControllerSleep(sleep func(ctx context.Context, d time.Duration) error) ControllerOption {
	return func(o *controllerOptions) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}
