package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobin/anthology-api/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testItems(t *testing.T, n int) []*domain.CandidateItem {
	t.Helper()
	items := make([]*domain.CandidateItem, n)
	for i := 0; i < n; i++ {
		item, err := domain.NewCandidateItem(
			fmt.Sprintf("Item %d", i+1),
			fmt.Sprintf("content for item %d", i+1),
			"source-a",
			"",
			"",
			domain.Scores{Synthesis: 80, Relevance: 80, Uniqueness: 80},
			time.Hour,
		)
		require.NoError(t, err)
		items[i] = item
	}
	return items
}

// fixedPlanner returns a prebuilt plan or an error.
type fixedPlanner struct {
	plan *domain.ArticlePlan
	err  error
}

func (p *fixedPlanner) Plan(_ context.Context, items []*domain.CandidateItem) (*domain.ArticlePlan, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.plan != nil {
		return p.plan, nil
	}
	return fallbackFor(items), nil
}

// stubWriter produces deterministic text, optionally blocking on a
// per-position gate and marking chosen positions as failed.
type stubWriter struct {
	gates    map[int]chan struct{}
	failPos  map[int]bool
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (w *stubWriter) WriteSection(_ context.Context, item *domain.CandidateItem, position int, heading, _ string) domain.Section {
	cur := w.inFlight.Add(1)
	for {
		prev := w.maxSeen.Load()
		if cur <= prev || w.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	defer w.inFlight.Add(-1)

	if gate, ok := w.gates[position]; ok {
		<-gate
	}
	if w.failPos[position] {
		return domain.Section{Position: position, Heading: heading, Text: "[Section unavailable]", Failed: true}
	}
	return domain.Section{Position: position, Heading: heading, Text: "text for " + item.Title, Failed: false}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(out))
		}
	}
}

func TestOrchestrator_EmitsSectionsInPlannedOrder(t *testing.T) {
	t.Parallel()

	items := testItems(t, 3)
	plan := &domain.ArticlePlan{
		Thesis:         "a thesis",
		Ordering:       []int{3, 1, 2},
		Headings:       map[int]string{1: "One", 2: "Two", 3: "Three"},
		Title:          "Title",
		ExcerptBullets: []string{"a", "b", "c"},
		Category:       "digest",
		IntroParagraph: "intro",
	}

	// Position 3 is planned first but its writer is held until the
	// others have finished, so completion order inverts planned order.
	gate := make(chan struct{})
	writer := &stubWriter{gates: map[int]chan struct{}{3: gate}}

	orch, err := NewOrchestrator(&fixedPlanner{plan: plan}, writer, Config{WriterCount: 3}, testLogger())
	require.NoError(t, err)

	events, err := orch.Run(context.Background(), items)
	require.NoError(t, err)

	go func() {
		// Release position 3 after the other writers have had time to
		// fill their slots.
		time.Sleep(50 * time.Millisecond)
		close(gate)
	}()

	got := collect(t, events)
	require.Len(t, got, 3+3*len(items))

	assert.Equal(t, EventPlanningStarted, got[0].Type)
	assert.Equal(t, EventPlanned, got[1].Type)
	require.NotNil(t, got[1].Plan)
	assert.Equal(t, []int{3, 1, 2}, got[1].Plan.Ordering)
	assert.Equal(t, EventMetadataReady, got[2].Type)
	require.NotNil(t, got[2].Metadata)
	assert.Equal(t, "Title", got[2].Metadata.Title)
	assert.Equal(t, "a thesis", got[2].Metadata.Thesis)

	wantPositions := []int{3, 1, 2}
	for i, pos := range wantPositions {
		base := 3 + 3*i
		assert.Equal(t, EventWritingStarted, got[base].Type)
		assert.Equal(t, pos, got[base].Position)

		assert.Equal(t, EventSectionReady, got[base+1].Type)
		require.NotNil(t, got[base+1].Section)
		assert.Equal(t, pos, got[base+1].Section.Position)
		assert.False(t, got[base+1].Section.Failed)

		assert.Equal(t, EventWritten, got[base+2].Type)
		require.NotNil(t, got[base+2].Progress)
		assert.Equal(t, i+1, got[base+2].Progress.Completed)
		assert.Equal(t, len(items), got[base+2].Progress.Total)
	}
}

func TestOrchestrator_FailedSectionDoesNotStallRun(t *testing.T) {
	t.Parallel()

	items := testItems(t, 3)
	writer := &stubWriter{failPos: map[int]bool{2: true}}

	orch, err := NewOrchestrator(&fixedPlanner{}, writer, DefaultConfig(), testLogger())
	require.NoError(t, err)

	events, err := orch.Run(context.Background(), items)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3+3*len(items))

	var failed, succeeded int
	for _, ev := range got {
		if ev.Type != EventSectionReady {
			continue
		}
		require.NotNil(t, ev.Section)
		if ev.Section.Failed {
			failed++
			assert.Equal(t, 2, ev.Section.Position)
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, succeeded)
}

func TestOrchestrator_RespectsWriterBound(t *testing.T) {
	t.Parallel()

	items := testItems(t, 5)
	writer := &stubWriter{}

	orch, err := NewOrchestrator(&fixedPlanner{}, writer, Config{WriterCount: 1}, testLogger())
	require.NoError(t, err)

	events, err := orch.Run(context.Background(), items)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3+3*len(items))
	assert.LessOrEqual(t, writer.maxSeen.Load(), int64(1))
}

func TestOrchestrator_FallsBackWhenPlannerErrors(t *testing.T) {
	t.Parallel()

	items := testItems(t, 2)
	writer := &stubWriter{}

	orch, err := NewOrchestrator(&fixedPlanner{err: errors.New("planner blew up")}, writer, DefaultConfig(), testLogger())
	require.NoError(t, err)

	events, err := orch.Run(context.Background(), items)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3+3*len(items))

	require.Equal(t, EventPlanned, got[1].Type)
	require.NotNil(t, got[1].Plan)
	assert.Equal(t, []int{1, 2}, got[1].Plan.Ordering)
	assert.Len(t, got[1].Plan.ExcerptBullets, domain.ExcerptBulletCount)
}

func TestOrchestrator_RejectsEmptyBatch(t *testing.T) {
	t.Parallel()

	orch, err := NewOrchestrator(&fixedPlanner{}, &stubWriter{}, DefaultConfig(), testLogger())
	require.NoError(t, err)

	_, err = orch.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestOrchestrator_RejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	items := testItems(t, 2)
	items[1] = items[0]

	orch, err := NewOrchestrator(&fixedPlanner{}, &stubWriter{}, DefaultConfig(), testLogger())
	require.NoError(t, err)

	_, err = orch.Run(context.Background(), items)
	assert.ErrorIs(t, err, ErrDuplicateItems)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewOrchestrator(nil, &stubWriter{}, DefaultConfig(), testLogger())
	assert.ErrorIs(t, err, ErrNilPlanner)

	_, err = NewOrchestrator(&fixedPlanner{}, nil, DefaultConfig(), testLogger())
	assert.ErrorIs(t, err, ErrNilWriter)

	orch, err := NewOrchestrator(&fixedPlanner{}, &stubWriter{}, Config{WriterCount: 0}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, orch)
}

func TestInflightSet(t *testing.T) {
	t.Parallel()

	t.Run("reservation is all or nothing", func(t *testing.T) {
		t.Parallel()
		s := NewInflightSet()
		a, b, c := uuid.New(), uuid.New(), uuid.New()

		require.True(t, s.TryAdd([]uuid.UUID{a, b}))
		assert.False(t, s.TryAdd([]uuid.UUID{b, c}))
		assert.False(t, s.Contains(c), "failed reservation must not hold any of its ids")

		s.Remove([]uuid.UUID{a, b})
		assert.True(t, s.TryAdd([]uuid.UUID{b, c}))
	})

	t.Run("concurrent reservations never overlap", func(t *testing.T) {
		t.Parallel()
		s := NewInflightSet()
		shared := uuid.New()
		batch := []uuid.UUID{shared, uuid.New()}
		other := []uuid.UUID{shared, uuid.New()}

		var wins atomic.Int64
		var wg sync.WaitGroup
		for _, ids := range [][]uuid.UUID{batch, other} {
			wg.Add(1)
			go func(ids []uuid.UUID) {
				defer wg.Done()
				if s.TryAdd(ids) {
					wins.Add(1)
				}
			}(ids)
		}
		wg.Wait()

		assert.Equal(t, int64(1), wins.Load())
	})
}
