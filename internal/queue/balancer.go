package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/tobin/anthology-api/internal/domain"
	"github.com/tobin/anthology-api/internal/store"
)

// Balancer computes diversity-constrained top-k selections: it maximizes
// score while preventing any single source from dominating the result.
// Output order is selection order; narrative order is decided later by
// the planner.
type Balancer struct {
	store  store.CandidateStore
	logger *slog.Logger
	now    func() time.Time
}

// NewBalancer creates a Balancer backed by the given store.
func NewBalancer(st store.CandidateStore, logger *slog.Logger) (*Balancer, error) {
	if st == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Balancer{
		store:  st,
		logger: logger.With("component", "selection_balancer"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// SourceDistribution returns counts of currently selectable items
// grouped by source identifier. Diagnostic companion to
// BalancedSelection.
func (b *Balancer) SourceDistribution(ctx context.Context) (map[string]int, error) {
	return b.store.CountSelectableBySource(ctx, b.now())
}

// sourceGroup is one source's selectable items, best first.
type sourceGroup struct {
	source string
	items  []*domain.CandidateItem
	taken  int
}

// BalancedSelection chooses up to maxItems selectable items. Each source
// gets a soft quota of max(1, ceil(maxItems / distinctSources)); the
// fill repeatedly picks from whichever source has consumed the smallest
// fraction of its quota, preferring higher score and then older
// queued_at on ties. When every under-quota source is exhausted before
// the target count is reached, the quota relaxes so remaining sources
// absorb the unused share.
func (b *Balancer) BalancedSelection(ctx context.Context, maxItems int) ([]*domain.CandidateItem, error) {
	if maxItems <= 0 {
		return []*domain.CandidateItem{}, nil
	}

	items, err := b.store.FindSelectable(ctx, b.now())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []*domain.CandidateItem{}, nil
	}

	groups := groupBySource(items)

	quota := ceilDiv(maxItems, len(groups))
	if quota < 1 {
		quota = 1
	}

	picked := make([]*domain.CandidateItem, 0, maxItems)
	for len(picked) < maxItems {
		best := pickNextGroup(groups, quota)
		if best == nil {
			if !anyItemsLeft(groups) {
				break
			}
			// Every source with items left has hit its quota;
			// redistribute the unused share by relaxing the cap.
			quota++
			continue
		}

		picked = append(picked, best.items[0])
		best.items = best.items[1:]
		best.taken++
	}

	b.logger.Debug("balanced selection computed",
		"requested", maxItems,
		"picked", len(picked),
		"sources", len(groups))
	return picked, nil
}

// groupBySource partitions items by source, preserving the store's
// score-descending, queued-at-ascending order inside each group.
func groupBySource(items []*domain.CandidateItem) []*sourceGroup {
	index := make(map[string]*sourceGroup)
	var groups []*sourceGroup
	for _, item := range items {
		g, ok := index[item.SourceIdentifier]
		if !ok {
			g = &sourceGroup{source: item.SourceIdentifier}
			index[item.SourceIdentifier] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, item)
	}
	return groups
}

// pickNextGroup returns the group to draw from next: the one with the
// smallest consumed quota fraction among groups that still have items
// and headroom. Ties go to the higher-scoring head item, then to the
// older one.
func pickNextGroup(groups []*sourceGroup, quota int) *sourceGroup {
	var best *sourceGroup
	for _, g := range groups {
		if len(g.items) == 0 || g.taken >= quota {
			continue
		}
		if best == nil || groupLess(g, best) {
			best = g
		}
	}
	return best
}

func groupLess(a, b *sourceGroup) bool {
	if a.taken != b.taken {
		// Same quota for every group, so comparing consumed counts
		// compares consumed fractions.
		return a.taken < b.taken
	}
	ah, bh := a.items[0], b.items[0]
	if ah.TotalScore != bh.TotalScore {
		return ah.TotalScore > bh.TotalScore
	}
	return ah.QueuedAt.Before(bh.QueuedAt)
}

func anyItemsLeft(groups []*sourceGroup) bool {
	for _, g := range groups {
		if len(g.items) > 0 {
			return true
		}
	}
	return false
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
