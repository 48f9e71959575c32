package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/relayq/pkg/queue"
)

// failingStore always fails Save to exercise the escalation path.
type failingStore struct {
	saves int
}

func (f *failingStore) Save(ctx context.Context, state queue.State) error {
	f.saves++
	return errors.New("disk full")
}

func (f *failingStore) Load(ctx context.Context) (queue.State, error) {
	return queue.State{SchemaVersion: queue.SchemaVersion}, nil
}

func TestQueue_Persistence(t *testing.T) {
	t.Parallel()

	t.Run("state round-trips through the store", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock(time.Unix(1_700_000_000, 0))
		store := queue.NewMemoryStore()

		cfg := testConfig()
		cfg.DelayMode = queue.DelayModeRandom
		cfg.MinSendDelay = time.Hour
		cfg.MaxSendDelay = 2 * time.Hour

		q, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)

		var ids []string
		for i := 0; i < 5; i++ {
			id, err := q.Enqueue(context.Background(), payload(int64(i)),
				queue.WithPriority(queue.Priority(10*i)))
			require.NoError(t, err)
			ids = append(ids, id.String())
		}
		require.NoError(t, q.Persist(context.Background()))

		saved, err := store.Load(context.Background())
		require.NoError(t, err)

		// A fresh queue restored from the same store carries the exact
		// same items and counters.
		restored, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)
		require.NoError(t, restored.Load(context.Background()))
		require.NoError(t, restored.Persist(context.Background()))

		reloaded, err := store.Load(context.Background())
		require.NoError(t, err)

		assert.Equal(t, saved.Stats, reloaded.Stats)
		require.Len(t, reloaded.Items, len(ids))
		for i, item := range reloaded.Items {
			assert.Equal(t, saved.Items[i].ID, item.ID)
			assert.Equal(t, saved.Items[i].ScheduledTime, item.ScheduledTime)
			assert.Equal(t, saved.Items[i].Priority, item.Priority)
			assert.Equal(t, saved.Items[i].Payload, item.Payload)
			assert.Equal(t, saved.Items[i].BatchID, item.BatchID)
		}
	})

	t.Run("overdue items keep their release times under ResumeKeep", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock(time.Unix(1_700_000_000, 0))
		store := queue.NewMemoryStore()

		cfg := testConfig()
		cfg.DelayMode = queue.DelayModeRandom
		cfg.MinSendDelay = time.Hour
		cfg.MaxSendDelay = time.Hour
		cfg.ResumePolicy = queue.ResumeKeep

		q, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)
		_, err = q.Enqueue(context.Background(), payload(1))
		require.NoError(t, err)
		require.NoError(t, q.Persist(context.Background()))

		// Long downtime: restart well past the release time.
		clock.Advance(48 * time.Hour)
		restored, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)
		require.NoError(t, restored.Load(context.Background()))

		due := restored.PopDue(clock.Now())
		require.Len(t, due, 1, "overdue item must dispatch on the first check after resume")
	})

	t.Run("release times are recomputed under ResumeReschedule", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock(time.Unix(1_700_000_000, 0))
		store := queue.NewMemoryStore()

		cfg := testConfig()
		cfg.DelayMode = queue.DelayModeRandom
		cfg.MinSendDelay = time.Hour
		cfg.MaxSendDelay = time.Hour

		q, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)
		_, err = q.Enqueue(context.Background(), payload(1))
		require.NoError(t, err)
		require.NoError(t, q.Persist(context.Background()))

		clock.Advance(48 * time.Hour)
		cfg.ResumePolicy = queue.ResumeReschedule
		restored, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)
		require.NoError(t, restored.Load(context.Background()))

		// Nothing due right after resume; the item got a fresh delay.
		assert.Empty(t, restored.PopDue(clock.Now()))
		clock.Advance(time.Hour)
		assert.Len(t, restored.PopDue(clock.Now()), 1)
	})

	t.Run("items mid-dispatch at save time are re-armed on load", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock(time.Unix(1_700_000_000, 0))
		store := queue.NewMemoryStore()

		q, err := queue.New(testConfig(), queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)
		_, err = q.Enqueue(context.Background(), payload(1))
		require.NoError(t, err)
		require.Len(t, q.PopDue(clock.Now()), 1)
		require.NoError(t, q.Persist(context.Background()))

		restored, err := queue.New(testConfig(), queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)
		require.NoError(t, restored.Load(context.Background()))

		due := restored.PopDue(clock.Now())
		require.Len(t, due, 1)
		assert.Equal(t, queue.StatusDispatching, due[0].Status)
	})

	t.Run("terminal history is restored and capped", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock(time.Unix(1_700_000_000, 0))
		store := queue.NewMemoryStore()

		cfg := testConfig()
		cfg.HistoryLimit = 2
		q, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			id, err := q.Enqueue(context.Background(), payload(int64(i)))
			require.NoError(t, err)
			require.Len(t, q.PopDue(clock.Now()), 1)
			require.NoError(t, q.CompleteItem(id))
		}
		require.NoError(t, q.Persist(context.Background()))

		restored, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)
		require.NoError(t, restored.Load(context.Background()))

		report := restored.Status()
		assert.Equal(t, 2, report.ByStatus[queue.StatusSent])
		assert.Equal(t, int64(4), report.Stats.TotalSent)
	})

	t.Run("auto save persists on enqueue and clear", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		cfg := testConfig()
		cfg.AutoSave = true

		q, err := queue.New(cfg, queue.WithStore(store))
		require.NoError(t, err)

		_, err = q.Enqueue(context.Background(), payload(1))
		require.NoError(t, err)

		state, err := store.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, state.Items, 1)

		q.Clear(context.Background())
		state, err = store.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, state.Items)
	})

	t.Run("exhausted persistence retries raise a loud alert", func(t *testing.T) {
		t.Parallel()

		store := &failingStore{}
		var alerted error

		q, err := queue.New(testConfig(),
			queue.WithStore(store),
			queue.WithPersistenceAlert(func(err error) { alerted = err }))
		require.NoError(t, err)

		err = q.Persist(context.Background())
		assert.ErrorIs(t, err, queue.ErrPersistence)
		assert.Equal(t, 3, store.saves)
		require.Error(t, alerted)
		assert.ErrorIs(t, alerted, queue.ErrPersistence)
	})

	t.Run("newer schema versions are rejected", func(t *testing.T) {
		t.Parallel()

		store := queue.NewMemoryStore()
		require.NoError(t, store.Save(context.Background(), queue.State{
			SchemaVersion: queue.SchemaVersion + 1,
		}))

		q, err := queue.New(testConfig(), queue.WithStore(store))
		require.NoError(t, err)
		assert.ErrorIs(t, q.Load(context.Background()), queue.ErrSchemaVersion)
	})
}
