// Package queue implements a delayed-dispatch queue for media forwarding:
// receipt of an item is decoupled from its transmission so that send
// timing can be randomized or batched instead of mirroring the source in
// real time.
//
// The package is organised around four components:
//
//   - Queue      — owns the item set, applies the delay policy on enqueue,
//     and hands out due items in deterministic order
//   - Scheduler  — the periodic loop that pops due items and pushes them
//     through the dispatch sink with retry and backoff
//   - Controller — routes fresh ingestion between immediate and queued
//     dispatch and serves the closed set of control commands
//   - Store      — the persistence boundary; implementations live in
//     pkg/storage (file, Redis, Postgres) plus an in-package MemoryStore
//
// # Delay policy
//
// Release times are computed at enqueue from the configured mode:
//
//   - random: arrival + uniform draw from [MinSendDelay, MaxSendDelay]
//   - batch:  fixed-size batches; the N-th batch of a sequence releases
//     at origin + (N+1) * BatchInterval
//   - hybrid: batch release plus a small per-item jitter so one batch
//     does not fire in a single instant
//
// # Usage
//
//	cfg, err := queue.LoadConfig()
//	if err != nil {
//	    return err
//	}
//
//	q, err := queue.New(cfg, queue.WithStore(store))
//	if err != nil {
//	    return err
//	}
//	if err := q.Load(ctx); err != nil {
//	    return err
//	}
//
//	sched, err := queue.NewScheduler(q, sink, queue.WithCleanup(cleanup))
//	if err != nil {
//	    return err
//	}
//
//	ctrl, err := queue.NewController(q, sched, sink)
//	if err != nil {
//	    return err
//	}
//
//	_ = sched.Start(ctx)
//	id, err := ctrl.DownloadComplete(ctx, payload)
//
// The sink reports a permanent failure by wrapping its error with
// Permanent; everything else is retried with backoff up to MaxAttempts
// before the item is dead-lettered.
package queue
