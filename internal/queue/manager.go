package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tobin/anthology-api/internal/domain"
	"github.com/tobin/anthology-api/internal/store"
)

// Validation errors for malformed caller input. These are rejected
// before any mutation is applied.
var (
	ErrNoItems    = errors.New("item list cannot be empty")
	ErrNoItemIDs  = errors.New("item ID list cannot be empty")
	ErrNilStore   = errors.New("store cannot be nil")
	ErrNilArticle = errors.New("article ID cannot be empty")
)

// NewItem carries the caller-supplied fields for one enqueued candidate.
type NewItem struct {
	Title       string
	Content     string
	Source      string
	SourceURL   string
	ExternalRef string
	Scores      domain.Scores
}

// EnqueueResult reports how an enqueue batch split between fresh inserts
// and rows rejected by deduplication.
type EnqueueResult struct {
	InsertedCount  int `json:"inserted_count"`
	DuplicateCount int `json:"duplicate_count"`
}

// SelectResult partitions a selection batch: Items holds the candidates
// that were atomically reserved, FailedIDs the ids that were not
// selectable. A caller never sees a mixed silent success.
type SelectResult struct {
	Items     []*domain.CandidateItem `json:"items"`
	FailedIDs []uuid.UUID             `json:"failed_ids"`
}

// Manager owns all candidate lifecycle mutations. Selection uses the
// store's conditional transition, so two managers (or two goroutines on
// one manager) targeting overlapping id sets can never both win an item.
type Manager struct {
	store          store.CandidateStore
	pendingTTL     time.Duration
	staleThreshold time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// ManagerConfig holds the queue lifecycle settings.
type ManagerConfig struct {
	// PendingTTL is how long an enqueued item stays selectable.
	PendingTTL time.Duration

	// StaleThreshold is how long a selected item may sit unconsumed
	// before the stale sweep reverts it to pending.
	StaleThreshold time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PendingTTL:     72 * time.Hour,
		StaleThreshold: 2 * time.Hour,
	}
}

// NewManager creates a queue Manager backed by the given store.
func NewManager(st store.CandidateStore, cfg ManagerConfig, logger *slog.Logger) (*Manager, error) {
	if st == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultManagerConfig().PendingTTL
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultManagerConfig().StaleThreshold
	}

	return &Manager{
		store:          st,
		pendingTTL:     cfg.PendingTTL,
		staleThreshold: cfg.StaleThreshold,
		logger:         logger.With("component", "queue_manager"),
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// Enqueue inserts the given items as pending candidates with an expiry
// of now + TTL. Items rejected by the dedupe constraint are counted,
// not errored; any other failure aborts the batch.
func (m *Manager) Enqueue(ctx context.Context, items []NewItem) (EnqueueResult, error) {
	if len(items) == 0 {
		return EnqueueResult{}, ErrNoItems
	}

	var result EnqueueResult
	for _, in := range items {
		item, err := domain.NewCandidateItem(in.Title, in.Content, in.Source, in.SourceURL, in.ExternalRef, in.Scores, m.pendingTTL)
		if err != nil {
			return result, fmt.Errorf("invalid item %q: %w", in.Title, err)
		}

		err = m.store.Insert(ctx, item)
		switch {
		case err == nil:
			result.InsertedCount++
		case errors.Is(err, store.ErrDuplicate):
			result.DuplicateCount++
		default:
			return result, fmt.Errorf("failed to enqueue item %q: %w", in.Title, err)
		}
	}

	m.logger.Info("enqueued candidate items",
		"inserted", result.InsertedCount,
		"duplicates", result.DuplicateCount)
	return result, nil
}

// GetSelectableItems returns pending items that have not expired,
// filtered at read time regardless of sweep timing.
func (m *Manager) GetSelectableItems(ctx context.Context) ([]*domain.CandidateItem, error) {
	return m.store.FindSelectable(ctx, m.now())
}

// Select atomically reserves each id pending -> selected. The result is
// partitioned: ids that won the transition come back as Items, ids that
// were not selectable come back in FailedIDs. Winners are not rolled
// back when others fail.
func (m *Manager) Select(ctx context.Context, ids []uuid.UUID) (SelectResult, error) {
	if len(ids) == 0 {
		return SelectResult{}, ErrNoItemIDs
	}

	now := m.now()
	result := SelectResult{Items: []*domain.CandidateItem{}, FailedIDs: []uuid.UUID{}}

	for _, id := range ids {
		err := m.store.Select(ctx, id, now)
		switch {
		case err == nil:
			item, getErr := m.store.GetByID(ctx, id)
			if getErr != nil {
				return result, fmt.Errorf("failed to load selected item %s: %w", id, getErr)
			}
			result.Items = append(result.Items, item)
		case errors.Is(err, store.ErrNotSelectable):
			result.FailedIDs = append(result.FailedIDs, id)
		default:
			return result, fmt.Errorf("failed to select item %s: %w", id, err)
		}
	}

	m.logger.Info("selection batch processed",
		"requested", len(ids),
		"selected", len(result.Items),
		"failed", len(result.FailedIDs))
	return result, nil
}

// MarkUsed transitions each selected id to used, recording the consuming
// article. Re-invoking on ids already used by the same article is a
// no-op, not an error. Returns how many rows actually transitioned.
func (m *Manager) MarkUsed(ctx context.Context, ids []uuid.UUID, articleID uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, ErrNoItemIDs
	}
	if articleID == uuid.Nil {
		return 0, ErrNilArticle
	}

	now := m.now()
	updated := 0
	for _, id := range ids {
		didUpdate, err := m.store.MarkUsed(ctx, id, articleID, now)
		if err != nil {
			return updated, fmt.Errorf("failed to mark item %s used: %w", id, err)
		}
		if didUpdate {
			updated++
		}
	}

	m.logger.Info("marked items used",
		"article_id", articleID,
		"updated", updated)
	return updated, nil
}

// ResetToPending reverts each selected id back to pending, clearing its
// selection timestamp. Used to recover items reserved by an abandoned
// run.
func (m *Manager) ResetToPending(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, ErrNoItemIDs
	}

	reset := 0
	for _, id := range ids {
		err := m.store.ResetToPending(ctx, id)
		switch {
		case err == nil:
			reset++
		case errors.Is(err, store.ErrInvalidTransition):
			// Not selected anymore; nothing to recover.
		default:
			return reset, fmt.Errorf("failed to reset item %s: %w", id, err)
		}
	}
	return reset, nil
}

// ResetStaleSelected reverts every selected item older than the stale
// threshold back to pending, returning how many were reset.
func (m *Manager) ResetStaleSelected(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.staleThreshold)
	count, err := m.store.ResetStaleSelected(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale selections: %w", err)
	}
	if count > 0 {
		m.logger.Info("recovered stale selections", "count", count)
	}
	return count, nil
}

// Skip transitions each pending id to the terminal skipped state,
// recording the reason.
func (m *Manager) Skip(ctx context.Context, ids []uuid.UUID, reason string) error {
	if len(ids) == 0 {
		return ErrNoItemIDs
	}

	now := m.now()
	for _, id := range ids {
		if err := m.store.Skip(ctx, id, reason, now); err != nil {
			return fmt.Errorf("failed to skip item %s: %w", id, err)
		}
	}
	return nil
}

// ExpireOldItems sweeps pending items past their expiry into the expired
// state. Purely bookkeeping: selectable reads already filter by expiry.
func (m *Manager) ExpireOldItems(ctx context.Context) (int, error) {
	count, err := m.store.ExpirePending(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire items: %w", err)
	}
	if count > 0 {
		m.logger.Info("expired pending items", "count", count)
	}
	return count, nil
}

// UpdateScores replaces an item's score dimensions; the total is
// recomputed from the new values.
func (m *Manager) UpdateScores(ctx context.Context, id uuid.UUID, scores domain.Scores) error {
	if err := scores.Validate(); err != nil {
		return err
	}
	if err := m.store.UpdateScores(ctx, id, scores); err != nil {
		return fmt.Errorf("failed to update scores for %s: %w", id, err)
	}
	return nil
}

// Stats returns item counts grouped by status.
func (m *Manager) Stats(ctx context.Context) (map[domain.CandidateStatus]int, error) {
	return m.store.CountByStatus(ctx)
}
