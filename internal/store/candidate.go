package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tobin/anthology-api/internal/domain"
)

// CandidateStore defines the persistence contract for candidate items.
//
// Select and MarkUsed are conditional transitions: the status check and
// the write happen as one atomic storage operation, so two concurrent
// callers can never both win the same item. Implementations must not
// fall back to fetch-compare-write.
// Version: 1.0
type CandidateStore interface {
	// Insert saves a new candidate item.
	// Returns ErrDuplicate if an item with the same (source_identifier,
	// title) pair or the same external_ref already exists.
	Insert(ctx context.Context, item *domain.CandidateItem) error

	// GetByID retrieves a candidate by its unique ID.
	// Returns ErrCandidateNotFound if the item does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CandidateItem, error)

	// FindSelectable returns pending items whose expiry is after now,
	// regardless of whether the expiry sweep has run.
	FindSelectable(ctx context.Context, now time.Time) ([]*domain.CandidateItem, error)

	// Select atomically transitions one item pending -> selected,
	// stamping selected_at. The transition only applies while the item
	// is pending and unexpired at the moment of the write; otherwise
	// ErrNotSelectable is returned and nothing changes.
	Select(ctx context.Context, id uuid.UUID, now time.Time) error

	// MarkUsed atomically transitions one item selected -> used,
	// recording the consuming article. Calling it again for an item
	// already used by the same article is a no-op reported as updated
	// false, nil. Any other state returns ErrInvalidTransition.
	MarkUsed(ctx context.Context, id uuid.UUID, articleID uuid.UUID, now time.Time) (updated bool, err error)

	// ResetToPending transitions one item selected -> pending and
	// clears selected_at. Returns ErrInvalidTransition if the item is
	// not currently selected.
	ResetToPending(ctx context.Context, id uuid.UUID) error

	// ResetStaleSelected reverts every selected item whose selected_at
	// is before cutoff back to pending, returning how many were reset.
	ResetStaleSelected(ctx context.Context, cutoff time.Time) (int, error)

	// Skip transitions one item pending -> skipped, recording a reason.
	// Returns ErrInvalidTransition if the item is not pending.
	Skip(ctx context.Context, id uuid.UUID, reason string, now time.Time) error

	// ExpirePending sweeps pending items whose expiry is at or before
	// now into the expired state, returning how many were expired.
	ExpirePending(ctx context.Context, now time.Time) (int, error)

	// UpdateScores replaces the item's score dimensions and the derived
	// total. Returns ErrCandidateNotFound if the item does not exist.
	UpdateScores(ctx context.Context, id uuid.UUID, scores domain.Scores) error

	// CountByStatus returns item counts grouped by status.
	CountByStatus(ctx context.Context) (map[domain.CandidateStatus]int, error)

	// CountSelectableBySource returns counts of currently selectable
	// items grouped by source identifier.
	CountSelectableBySource(ctx context.Context, now time.Time) (map[string]int, error)
}
