package queue_test

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/relayq/pkg/queue"
)

// snapshot persists the queue into the store and returns the saved items.
func snapshot(t *testing.T, q *queue.Queue, store *queue.MemoryStore) []queue.Item {
	t.Helper()
	require.NoError(t, q.Persist(context.Background()))
	state, err := store.Load(context.Background())
	require.NoError(t, err)
	return state.Items
}

func TestDelayPolicy_Random(t *testing.T) {
	t.Parallel()

	t.Run("offset stays inside the closed interval", func(t *testing.T) {
		t.Parallel()

		arrival := time.Unix(1000, 0)
		clock := newFakeClock(arrival)
		store := queue.NewMemoryStore()

		cfg := testConfig()
		cfg.DelayMode = queue.DelayModeRandom
		cfg.MinSendDelay = 300 * time.Second
		cfg.MaxSendDelay = 7200 * time.Second
		cfg.MaxQueueSize = 100

		q, err := queue.New(cfg,
			queue.WithClock(clock.Now),
			queue.WithStore(store),
			queue.WithRand(rand.New(rand.NewSource(42))))
		require.NoError(t, err)

		for i := 0; i < 50; i++ {
			_, err := q.Enqueue(context.Background(), payload(int64(i)))
			require.NoError(t, err)
		}

		lower := time.Unix(1300, 0)
		upper := time.Unix(8200, 0)
		for _, item := range snapshot(t, q, store) {
			assert.False(t, item.ScheduledTime.Before(lower),
				"scheduled %v before lower bound %v", item.ScheduledTime, lower)
			assert.False(t, item.ScheduledTime.After(upper),
				"scheduled %v after upper bound %v", item.ScheduledTime, upper)
			assert.Empty(t, item.BatchID)
		}
	})

	t.Run("equal bounds give a fixed delay", func(t *testing.T) {
		t.Parallel()

		arrival := time.Unix(1000, 0)
		clock := newFakeClock(arrival)
		store := queue.NewMemoryStore()

		cfg := testConfig()
		cfg.DelayMode = queue.DelayModeRandom
		cfg.MinSendDelay = time.Hour
		cfg.MaxSendDelay = time.Hour

		q, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)

		_, err = q.Enqueue(context.Background(), payload(1))
		require.NoError(t, err)

		items := snapshot(t, q, store)
		require.Len(t, items, 1)
		assert.Equal(t, arrival.Add(time.Hour), items[0].ScheduledTime)
	})
}

func TestDelayPolicy_Batch(t *testing.T) {
	t.Parallel()

	t.Run("twelve items form three batches at fixed releases", func(t *testing.T) {
		t.Parallel()

		origin := time.Unix(1_700_000_000, 0)
		clock := newFakeClock(origin)
		store := queue.NewMemoryStore()

		cfg := testConfig()
		cfg.DelayMode = queue.DelayModeBatch
		cfg.BatchSize = 5
		cfg.BatchInterval = 1800 * time.Second
		cfg.MaxQueueSize = 20

		q, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)

		for i := 0; i < 12; i++ {
			_, err := q.Enqueue(context.Background(), payload(int64(i)))
			require.NoError(t, err)
		}

		releases := make(map[time.Time]int)
		batches := make(map[string]int)
		for _, item := range snapshot(t, q, store) {
			releases[item.ScheduledTime]++
			batches[item.BatchID]++
			assert.False(t, item.ScheduledTime.Before(item.ArrivalTime))
		}

		require.Len(t, batches, 3)
		assert.Equal(t, 5, releases[origin.Add(1800*time.Second)])
		assert.Equal(t, 5, releases[origin.Add(3600*time.Second)])
		assert.Equal(t, 2, releases[origin.Add(5400*time.Second)])
	})

	t.Run("a new sequence starts once the open batch has released", func(t *testing.T) {
		t.Parallel()

		origin := time.Unix(1_700_000_000, 0)
		clock := newFakeClock(origin)
		store := queue.NewMemoryStore()

		cfg := testConfig()
		cfg.DelayMode = queue.DelayModeBatch
		cfg.BatchSize = 5
		cfg.BatchInterval = 30 * time.Minute

		q, err := queue.New(cfg, queue.WithClock(clock.Now), queue.WithStore(store))
		require.NoError(t, err)

		first, err := q.Enqueue(context.Background(), payload(1))
		require.NoError(t, err)

		// The partial batch releases on its own; a later arrival must
		// not be assigned a release time in the past.
		clock.Advance(45 * time.Minute)
		second, err := q.Enqueue(context.Background(), payload(2))
		require.NoError(t, err)

		byID := make(map[string]queue.Item)
		for _, item := range snapshot(t, q, store) {
			byID[item.ID.String()] = item
		}

		firstItem := byID[first.String()]
		secondItem := byID[second.String()]
		assert.Equal(t, origin.Add(30*time.Minute), firstItem.ScheduledTime)
		assert.Equal(t, origin.Add(75*time.Minute), secondItem.ScheduledTime)
		assert.NotEqual(t, firstItem.BatchID, secondItem.BatchID)
	})
}

func TestDelayPolicy_Hybrid(t *testing.T) {
	t.Parallel()

	origin := time.Unix(1_700_000_000, 0)
	clock := newFakeClock(origin)
	store := queue.NewMemoryStore()

	cfg := testConfig()
	cfg.DelayMode = queue.DelayModeHybrid
	cfg.BatchSize = 4
	cfg.BatchInterval = 30 * time.Minute
	cfg.HybridJitterMax = 5 * time.Minute
	cfg.MaxQueueSize = 20

	q, err := queue.New(cfg,
		queue.WithClock(clock.Now),
		queue.WithStore(store),
		queue.WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := q.Enqueue(context.Background(), payload(int64(i)))
		require.NoError(t, err)
	}

	batches := make(map[string][]queue.Item)
	for _, item := range snapshot(t, q, store) {
		batches[item.BatchID] = append(batches[item.BatchID], item)
	}
	require.Len(t, batches, 2)

	windows := map[string]time.Time{
		"-0": origin.Add(30 * time.Minute),
		"-1": origin.Add(60 * time.Minute),
	}
	for suffix, release := range windows {
		var found bool
		for id, items := range batches {
			if !strings.HasSuffix(id, suffix) {
				continue
			}
			found = true
			assert.Len(t, items, 4)
			for _, item := range items {
				// Jitter shifts each item past its batch release, never before it.
				assert.False(t, item.ScheduledTime.Before(release))
				assert.False(t, item.ScheduledTime.After(release.Add(cfg.HybridJitterMax)))
			}
		}
		assert.True(t, found, "no batch with suffix %s", suffix)
	}
}
