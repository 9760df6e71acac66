// Package memstore provides an in-memory implementation of
// store.CandidateStore. It honors the same conditional-transition
// contract as the postgres store, with a single mutex standing in for
// the storage-level compare-and-set. It backs unit tests and the
// "memory" database backend for local development.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tobin/anthology-api/internal/domain"
	"github.com/tobin/anthology-api/internal/store"
)

// CandidateStore is a mutex-guarded in-memory candidate store.
type CandidateStore struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*domain.CandidateItem
	byDedup map[string]uuid.UUID
	byRef   map[string]uuid.UUID
}

// Ensure CandidateStore implements the store interface.
var _ store.CandidateStore = (*CandidateStore)(nil)

// NewCandidateStore creates an empty in-memory candidate store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{
		items:   make(map[uuid.UUID]*domain.CandidateItem),
		byDedup: make(map[string]uuid.UUID),
		byRef:   make(map[string]uuid.UUID),
	}
}

func dedupKey(source, title string) string {
	return source + "\x00" + title
}

// Insert implements store.CandidateStore.Insert.
func (s *CandidateStore) Insert(ctx context.Context, item *domain.CandidateItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(item.SourceIdentifier, item.Title)
	if _, exists := s.byDedup[key]; exists {
		return store.ErrDuplicate
	}
	if item.ExternalRef != "" {
		if _, exists := s.byRef[item.ExternalRef]; exists {
			return store.ErrDuplicate
		}
	}

	cp := *item
	s.items[item.ID] = &cp
	s.byDedup[key] = item.ID
	if item.ExternalRef != "" {
		s.byRef[item.ExternalRef] = item.ID
	}
	return nil
}

// GetByID implements store.CandidateStore.GetByID.
func (s *CandidateStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CandidateItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrCandidateNotFound
	}
	cp := *item
	return &cp, nil
}

// FindSelectable implements store.CandidateStore.FindSelectable.
// Results are ordered by total score descending, then queued_at
// ascending so older items win ties.
func (s *CandidateStore) FindSelectable(ctx context.Context, now time.Time) ([]*domain.CandidateItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.CandidateItem
	for _, item := range s.items {
		if item.IsSelectable(now) {
			cp := *item
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})

	if out == nil {
		out = []*domain.CandidateItem{}
	}
	return out, nil
}

// Select implements store.CandidateStore.Select. The status check and
// the write happen under one lock, so overlapping selectors cannot both
// win an item.
func (s *CandidateStore) Select(ctx context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return store.ErrNotSelectable
	}
	if !item.IsSelectable(now) {
		return store.ErrNotSelectable
	}

	selectedAt := now
	item.Status = domain.CandidateStatusSelected
	item.SelectedAt = &selectedAt
	return nil
}

// MarkUsed implements store.CandidateStore.MarkUsed.
func (s *CandidateStore) MarkUsed(ctx context.Context, id uuid.UUID, articleID uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false, store.ErrCandidateNotFound
	}

	switch item.Status {
	case domain.CandidateStatusSelected:
		usedAt := now
		item.Status = domain.CandidateStatusUsed
		item.UsedAt = &usedAt
		item.ConsumingArticleID = &articleID
		return true, nil
	case domain.CandidateStatusUsed:
		if item.ConsumingArticleID != nil && *item.ConsumingArticleID == articleID {
			// Re-invocation with the same article is a no-op.
			return false, nil
		}
		return false, store.ErrInvalidTransition
	default:
		return false, store.ErrInvalidTransition
	}
}

// ResetToPending implements store.CandidateStore.ResetToPending.
func (s *CandidateStore) ResetToPending(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return store.ErrCandidateNotFound
	}
	if item.Status != domain.CandidateStatusSelected {
		return store.ErrInvalidTransition
	}

	item.Status = domain.CandidateStatusPending
	item.SelectedAt = nil
	return nil
}

// ResetStaleSelected implements store.CandidateStore.ResetStaleSelected.
func (s *CandidateStore) ResetStaleSelected(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.items {
		if item.Status == domain.CandidateStatusSelected &&
			item.SelectedAt != nil && item.SelectedAt.Before(cutoff) {
			item.Status = domain.CandidateStatusPending
			item.SelectedAt = nil
			count++
		}
	}
	return count, nil
}

// Skip implements store.CandidateStore.Skip.
func (s *CandidateStore) Skip(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return store.ErrCandidateNotFound
	}
	if item.Status != domain.CandidateStatusPending {
		return store.ErrInvalidTransition
	}

	item.Status = domain.CandidateStatusSkipped
	item.SkipReason = reason
	return nil
}

// ExpirePending implements store.CandidateStore.ExpirePending.
func (s *CandidateStore) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.items {
		if item.Status == domain.CandidateStatusPending && !item.ExpiresAt.After(now) {
			item.Status = domain.CandidateStatusExpired
			count++
		}
	}
	return count, nil
}

// UpdateScores implements store.CandidateStore.UpdateScores.
func (s *CandidateStore) UpdateScores(ctx context.Context, id uuid.UUID, scores domain.Scores) error {
	if err := scores.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return store.ErrCandidateNotFound
	}

	item.Scores = scores
	item.TotalScore = scores.Total()
	return nil
}

// CountByStatus implements store.CandidateStore.CountByStatus.
func (s *CandidateStore) CountByStatus(ctx context.Context) (map[domain.CandidateStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.CandidateStatus]int)
	for _, item := range s.items {
		counts[item.Status]++
	}
	return counts, nil
}

// CountSelectableBySource implements store.CandidateStore.CountSelectableBySource.
func (s *CandidateStore) CountSelectableBySource(ctx context.Context, now time.Time) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, item := range s.items {
		if item.IsSelectable(now) {
			counts[item.SourceIdentifier]++
		}
	}
	return counts, nil
}
