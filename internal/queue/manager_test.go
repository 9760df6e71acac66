package queue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobin/anthology-api/internal/domain"
	"github.com/tobin/anthology-api/internal/platform/memstore"
	"github.com/tobin/anthology-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestManager(t *testing.T) (*Manager, *memstore.CandidateStore) {
	t.Helper()

	st := memstore.NewCandidateStore()
	manager, err := NewManager(st, DefaultManagerConfig(), testLogger())
	require.NoError(t, err)
	return manager, st
}

func testItem(title, source string, total int) NewItem {
	return NewItem{
		Title:  title,
		Source: source,
		Scores: domain.Scores{Synthesis: total / 3, Relevance: total / 3, Uniqueness: total - 2*(total/3)},
	}
}

func enqueueOne(t *testing.T, m *Manager, title, source string) uuid.UUID {
	t.Helper()

	_, err := m.Enqueue(context.Background(), []NewItem{testItem(title, source, 60)})
	require.NoError(t, err)

	items, err := m.GetSelectableItems(context.Background())
	require.NoError(t, err)
	for _, item := range items {
		if item.Title == title {
			return item.ID
		}
	}
	t.Fatalf("enqueued item %q not found among selectable items", title)
	return uuid.Nil
}

func TestManager_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("counts inserts and duplicates", func(t *testing.T) {
		t.Parallel()

		manager, _ := newTestManager(t)
		items := []NewItem{
			testItem("Solar output doubles", "reuters", 60),
			testItem("Solar output doubles", "reuters", 60),
			testItem("Chip fab delays", "ft", 90),
		}

		result, err := manager.Enqueue(context.Background(), items)
		require.NoError(t, err)
		assert.Equal(t, 2, result.InsertedCount)
		assert.Equal(t, 1, result.DuplicateCount)
	})

	t.Run("deduplicates by external ref", func(t *testing.T) {
		t.Parallel()

		manager, _ := newTestManager(t)
		a := testItem("First title", "reuters", 60)
		a.ExternalRef = "ref-1"
		b := testItem("Different title", "ft", 60)
		b.ExternalRef = "ref-1"

		result, err := manager.Enqueue(context.Background(), []NewItem{a, b})
		require.NoError(t, err)
		assert.Equal(t, 1, result.InsertedCount)
		assert.Equal(t, 1, result.DuplicateCount)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		t.Parallel()

		manager, _ := newTestManager(t)
		_, err := manager.Enqueue(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoItems)
	})
}

func TestManager_Select(t *testing.T) {
	t.Parallel()

	t.Run("partitions winners and failures", func(t *testing.T) {
		t.Parallel()

		manager, _ := newTestManager(t)
		id := enqueueOne(t, manager, "item one", "reuters")
		unknown := uuid.New()

		result, err := manager.Select(context.Background(), []uuid.UUID{id, unknown})
		require.NoError(t, err)

		require.Len(t, result.Items, 1)
		assert.Equal(t, id, result.Items[0].ID)
		assert.Equal(t, domain.CandidateStatusSelected, result.Items[0].Status)
		assert.NotNil(t, result.Items[0].SelectedAt)
		assert.Equal(t, []uuid.UUID{unknown}, result.FailedIDs)
	})

	t.Run("second select of same id fails without rollback", func(t *testing.T) {
		t.Parallel()

		manager, _ := newTestManager(t)
		id := enqueueOne(t, manager, "item one", "reuters")

		first, err := manager.Select(context.Background(), []uuid.UUID{id})
		require.NoError(t, err)
		require.Len(t, first.Items, 1)

		second, err := manager.Select(context.Background(), []uuid.UUID{id})
		require.NoError(t, err)
		assert.Empty(t, second.Items)
		assert.Equal(t, []uuid.UUID{id}, second.FailedIDs)
	})

	t.Run("rejects empty id list", func(t *testing.T) {
		t.Parallel()

		manager, _ := newTestManager(t)
		_, err := manager.Select(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoItemIDs)
	})
}

func TestManager_Select_NoDoubleSelection(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t)

	var ids []uuid.UUID
	for i := 0; i < 20; i++ {
		ids = append(ids, enqueueOne(t, manager, "item "+uuid.NewString(), "reuters"))
	}

	// Two concurrent callers over the same id set: every id must be won
	// exactly once across both.
	var wg sync.WaitGroup
	results := make([]SelectResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			result, err := manager.Select(context.Background(), ids)
			assert.NoError(t, err)
			results[slot] = result
		}(i)
	}
	wg.Wait()

	won := make(map[uuid.UUID]int)
	for _, r := range results {
		for _, item := range r.Items {
			won[item.ID]++
		}
	}

	assert.Len(t, won, len(ids))
	for id, count := range won {
		assert.Equal(t, 1, count, "item %s won more than once", id)
	}
	assert.Equal(t, len(ids), len(results[0].Items)+len(results[1].Items))
}

func TestManager_MarkUsed(t *testing.T) {
	t.Parallel()

	t.Run("idempotent for same article", func(t *testing.T) {
		t.Parallel()

		manager, st := newTestManager(t)
		id := enqueueOne(t, manager, "item one", "reuters")
		_, err := manager.Select(context.Background(), []uuid.UUID{id})
		require.NoError(t, err)

		articleID := uuid.New()

		updated, err := manager.MarkUsed(context.Background(), []uuid.UUID{id}, articleID)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		first, err := st.GetByID(context.Background(), id)
		require.NoError(t, err)

		// Second call is a no-op, and the stored state is unchanged.
		updated, err = manager.MarkUsed(context.Background(), []uuid.UUID{id}, articleID)
		require.NoError(t, err)
		assert.Equal(t, 0, updated)

		second, err := st.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, domain.CandidateStatusUsed, second.Status)
		require.NotNil(t, second.ConsumingArticleID)
		assert.Equal(t, articleID, *second.ConsumingArticleID)
	})

	t.Run("different article is an error", func(t *testing.T) {
		t.Parallel()

		manager, _ := newTestManager(t)
		id := enqueueOne(t, manager, "item one", "reuters")
		_, err := manager.Select(context.Background(), []uuid.UUID{id})
		require.NoError(t, err)

		_, err = manager.MarkUsed(context.Background(), []uuid.UUID{id}, uuid.New())
		require.NoError(t, err)

		_, err = manager.MarkUsed(context.Background(), []uuid.UUID{id}, uuid.New())
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("pending item cannot be marked used", func(t *testing.T) {
		t.Parallel()

		manager, _ := newTestManager(t)
		id := enqueueOne(t, manager, "item one", "reuters")

		_, err := manager.MarkUsed(context.Background(), []uuid.UUID{id}, uuid.New())
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})
}

func TestManager_ResetToPending(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	id := enqueueOne(t, manager, "item one", "reuters")
	_, err := manager.Select(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)

	reset, err := manager.ResetToPending(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	item, err := st.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusPending, item.Status)
	assert.Nil(t, item.SelectedAt)
}

func TestManager_ResetStaleSelected(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	staleID := enqueueOne(t, manager, "stale item", "reuters")
	freshID := enqueueOne(t, manager, "fresh item", "reuters")

	// Reserve the stale item three hours in the past, the fresh one now.
	threeHoursAgo := time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, st.Select(context.Background(), staleID, threeHoursAgo))
	require.NoError(t, st.Select(context.Background(), freshID, time.Now().UTC()))

	count, err := manager.ResetStaleSelected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stale, err := st.GetByID(context.Background(), staleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusPending, stale.Status)

	fresh, err := st.GetByID(context.Background(), freshID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusSelected, fresh.Status)
}

func TestManager_Skip(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	id := enqueueOne(t, manager, "item one", "reuters")

	require.NoError(t, manager.Skip(context.Background(), []uuid.UUID{id}, "duplicate coverage"))

	item, err := st.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusSkipped, item.Status)
	assert.Equal(t, "duplicate coverage", item.SkipReason)

	// Terminal: a skipped item cannot be selected.
	result, err := manager.Select(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}

func TestManager_Expiry(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)

	expired, err := domain.NewCandidateItem("old news", "", "reuters", "", "", domain.Scores{Synthesis: 10}, time.Hour)
	require.NoError(t, err)
	expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.Insert(context.Background(), expired))

	fresh := enqueueOne(t, manager, "fresh news", "reuters")

	// Expired-but-unswept items never appear in selectable listings.
	selectable, err := manager.GetSelectableItems(context.Background())
	require.NoError(t, err)
	require.Len(t, selectable, 1)
	assert.Equal(t, fresh, selectable[0].ID)

	// And the expired item is not selectable either.
	result, err := manager.Select(context.Background(), []uuid.UUID{expired.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{expired.ID}, result.FailedIDs)

	count, err := manager.ExpireOldItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	swept, err := st.GetByID(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusExpired, swept.Status)
}

func TestManager_UpdateScores(t *testing.T) {
	t.Parallel()

	manager, st := newTestManager(t)
	id := enqueueOne(t, manager, "item one", "reuters")

	newScores := domain.Scores{Synthesis: 90, Relevance: 80, Uniqueness: 70}
	require.NoError(t, manager.UpdateScores(context.Background(), id, newScores))

	item, err := st.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, newScores, item.Scores)
	assert.Equal(t, 240, item.TotalScore)

	assert.ErrorIs(t,
		manager.UpdateScores(context.Background(), id, domain.Scores{Synthesis: 200}),
		domain.ErrScoreOutOfRange)
}

func TestManager_Stats(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t)
	a := enqueueOne(t, manager, "a", "reuters")
	enqueueOne(t, manager, "b", "ft")

	_, err := manager.Select(context.Background(), []uuid.UUID{a})
	require.NoError(t, err)

	stats, err := manager.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.CandidateStatusPending])
	assert.Equal(t, 1, stats[domain.CandidateStatusSelected])
}
