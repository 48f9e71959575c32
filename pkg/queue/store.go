package queue

import "context"

// Store persists queue state across process restarts. Implementations
// must make Save atomic: a crash mid-write never corrupts the previous
// durable copy. Load returns an empty state, not an error, when nothing
// has been saved yet.
type Store interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context) (State, error)
}
