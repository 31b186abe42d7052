package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/session"
)

func TestStore_GetOrCreate(t *testing.T) {
	t.Parallel()

	t.Run("creates empty session with zero stats", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		store := session.NewStore(time.Hour, session.WithClock(func() time.Time { return now }))
		defer store.Close()

		sess := store.GetOrCreate("C1")

		require.NotNil(t, sess)
		assert.Equal(t, "C1", sess.ChannelID)
		assert.Empty(t, sess.History())

		stats := sess.Stats()
		assert.Zero(t, stats.TotalCost)
		assert.Zero(t, stats.MessageCount)
		assert.Equal(t, now, stats.CreatedAt)
		assert.Equal(t, now, stats.LastActivityAt)
	})

	t.Run("returns the same session on repeat calls", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(time.Hour)
		defer store.Close()

		a := store.GetOrCreate("C1")
		a.Append(domain.UserTurn("hello", nil))
		b := store.GetOrCreate("C1")

		assert.Same(t, a, b)
		assert.Len(t, b.History(), 1)
	})

	t.Run("channels are isolated", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(time.Hour)
		defer store.Close()

		store.GetOrCreate("C1").Append(domain.UserTurn("one", nil))
		store.GetOrCreate("C2")

		assert.Len(t, store.GetOrCreate("C1").History(), 1)
		assert.Empty(t, store.GetOrCreate("C2").History())
		assert.Equal(t, 2, store.Len())
	})

	t.Run("non-positive timeout falls back to default", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(0)
		defer store.Close()

		assert.Equal(t, session.DefaultIdleTimeout, store.IdleTimeout())
	})
}

func TestStore_Touch(t *testing.T) {
	t.Parallel()

	t.Run("unknown channel is created", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(time.Hour)
		defer store.Close()

		store.Touch("C9")

		_, ok := store.Stats("C9")
		assert.True(t, ok)
	})

	t.Run("updates last activity", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}

		store := session.NewStore(time.Hour, session.WithClock(clock))
		defer store.Close()

		store.GetOrCreate("C1")

		mu.Lock()
		now = now.Add(5 * time.Minute)
		mu.Unlock()
		store.Touch("C1")

		stats, ok := store.Stats("C1")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), stats.CreatedAt)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC), stats.LastActivityAt)
	})
}

func TestStore_IdleEviction(t *testing.T) {
	t.Parallel()

	const idle = 150 * time.Millisecond

	t.Run("idle channel is evicted and history cleared", func(t *testing.T) {
		t.Parallel()

		evicted := make(chan session.EvictReason, 1)
		store := session.NewStore(idle, session.WithEvictHook(func(_ string, reason session.EvictReason) {
			evicted <- reason
		}))
		defer store.Close()

		store.GetOrCreate("C1").Append(domain.UserTurn("hello", nil))

		select {
		case reason := <-evicted:
			assert.Equal(t, session.EvictIdle, reason)
		case <-time.After(2 * time.Second):
			t.Fatal("session was not evicted")
		}

		_, ok := store.Stats("C1")
		assert.False(t, ok)
		assert.Empty(t, store.GetOrCreate("C1").History())
	})

	t.Run("touch just before expiry keeps history", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(idle)
		defer store.Close()

		store.GetOrCreate("C1").Append(domain.UserTurn("hello", nil))

		time.Sleep(idle * 2 / 3)
		store.Touch("C1")
		time.Sleep(idle * 2 / 3)

		stats, ok := store.Stats("C1")
		require.True(t, ok, "session must survive a touch before expiry")
		assert.False(t, stats.CreatedAt.IsZero())
		assert.Len(t, store.GetOrCreate("C1").History(), 1)
	})

	t.Run("busy session is not evicted mid-run", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(idle)
		defer store.Close()

		sess := store.Acquire("C1")
		sess.Append(domain.UserTurn("long question", nil))

		time.Sleep(idle * 3)
		_, ok := store.Stats("C1")
		require.True(t, ok, "active session must not expire")

		store.Release(sess)
		require.Eventually(t, func() bool {
			_, live := store.Stats("C1")
			return !live
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestStore_Evict(t *testing.T) {
	t.Parallel()

	t.Run("discards history and stats", func(t *testing.T) {
		t.Parallel()

		var reasons []session.EvictReason
		store := session.NewStore(time.Hour, session.WithEvictHook(func(_ string, reason session.EvictReason) {
			reasons = append(reasons, reason)
		}))
		defer store.Close()

		sess := store.GetOrCreate("C1")
		sess.Append(domain.UserTurn("hello", nil))
		sess.RecordCost(domain.Usage{InputTokens: 10}, 0.5)
		sess.RecordMessage()

		assert.True(t, store.Evict("C1"))

		_, ok := store.Stats("C1")
		assert.False(t, ok)

		fresh := store.GetOrCreate("C1")
		assert.NotSame(t, sess, fresh)
		assert.Empty(t, fresh.History())
		assert.Zero(t, fresh.Stats().TotalCost)
		assert.Equal(t, []session.EvictReason{session.EvictReset}, reasons)
	})

	t.Run("unknown channel is a no-op", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(time.Hour)
		defer store.Close()

		assert.False(t, store.Evict("nope"))
	})

	t.Run("release after reset does not resurrect", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(time.Hour)
		defer store.Close()

		sess := store.Acquire("C1")
		store.Evict("C1")
		sess.Append(domain.UserTurn("late write", nil))
		store.Release(sess)

		_, ok := store.Stats("C1")
		assert.False(t, ok)
		assert.Empty(t, store.GetOrCreate("C1").History())
	})
}

func TestStore_RecordCost(t *testing.T) {
	t.Parallel()

	t.Run("monotonic across calls", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(time.Hour)
		defer store.Close()

		pricing := domain.Pricing{InputPerMTok: 3, OutputPerMTok: 15}
		usages := []domain.Usage{
			{InputTokens: 1200, OutputTokens: 80},
			{InputTokens: 0, OutputTokens: 0},
			{InputTokens: 5000, OutputTokens: 400},
		}

		prev := 0.0
		var wantTotal float64
		for _, u := range usages {
			cost := pricing.Cost(u)
			wantTotal += cost
			store.RecordCost("C1", u, cost)

			stats, ok := store.Stats("C1")
			require.True(t, ok)
			assert.GreaterOrEqual(t, stats.TotalCost, prev)
			prev = stats.TotalCost
		}

		stats, _ := store.Stats("C1")
		assert.InDelta(t, wantTotal, stats.TotalCost, 1e-12)
		assert.Equal(t, int64(6200), stats.InputTokens)
		assert.Equal(t, int64(480), stats.OutputTokens)
	})

	t.Run("session created by cost recording still expires", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(50 * time.Millisecond)
		defer store.Close()

		store.RecordCost("C9", domain.Usage{InputTokens: 100, OutputTokens: 10}, 0.01)
		_, ok := store.Stats("C9")
		require.True(t, ok)

		require.Eventually(t, func() bool {
			_, live := store.Stats("C9")
			return !live
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("negative deltas are ignored", func(t *testing.T) {
		t.Parallel()

		store := session.NewStore(time.Hour)
		defer store.Close()

		store.RecordCost("C1", domain.Usage{InputTokens: 10}, 1)
		store.RecordCost("C1", domain.Usage{InputTokens: -5}, -1)

		stats, _ := store.Stats("C1")
		assert.InDelta(t, 1.0, stats.TotalCost, 1e-12)
		assert.Equal(t, int64(10), stats.InputTokens)
	})
}
