package generation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tobin/anthology-api/internal/domain"
)

// excerptTitleLimit caps the length of excerpt bullets derived from item
// titles during repair.
const excerptTitleLimit = 65

// Planner produces the ArticlePlan for a run with a single completion
// call, then repairs whatever comes back into a structurally valid plan.
type Planner struct {
	completer Completer
	model     string
	logger    *slog.Logger
}

// NewPlanner creates a Planner issuing calls through the given
// completer. model may be empty to use the completer's default.
func NewPlanner(completer Completer, model string, logger *slog.Logger) (*Planner, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completer cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Planner{
		completer: completer,
		model:     model,
		logger:    logger.With("component", "article_planner"),
	}, nil
}

// Plan issues one completion call over all item summaries and returns a
// valid plan. A failed call or unparseable response degrades to the
// deterministic fallback plan; planning never fails a run. The only
// error is an empty item list, rejected before any external call.
func (p *Planner) Plan(ctx context.Context, items []*domain.CandidateItem) (*domain.ArticlePlan, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	raw, err := p.completer.Complete(ctx, CompletionRequest{
		System: plannerSystemPrompt,
		User:   buildPlannerUserPrompt(items),
		Model:  p.model,
	})
	if err != nil {
		p.logger.Warn("planner call failed, using fallback plan", "error", err)
		return FallbackPlan(items), nil
	}

	resp, err := parsePlanResponse(raw)
	if err != nil {
		p.logger.Warn("planner response unparseable, using fallback plan",
			"error", err,
			"response_length", len(raw))
		return FallbackPlan(items), nil
	}

	plan := repairPlan(resp, items)
	if err := plan.Validate(len(items)); err != nil {
		// Repair guarantees validity; reaching this is a bug, but the
		// run still gets a usable plan.
		p.logger.Error("repaired plan failed validation, using fallback plan", "error", err)
		return FallbackPlan(items), nil
	}

	return plan, nil
}

// repairPlan turns whatever the model returned into a plan that honors
// the structural invariants: Ordering becomes a permutation of 1..N
// (bogus entries dropped, missing positions appended in natural order)
// and ExcerptBullets is padded from item titles or truncated to exactly
// three entries. Empty framing fields fall back to deterministic
// defaults.
func repairPlan(resp *planResponse, items []*domain.CandidateItem) *domain.ArticlePlan {
	n := len(items)

	ordering := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for _, pos := range resp.Ordering {
		if pos < 1 || pos > n || seen[pos] {
			continue
		}
		ordering = append(ordering, pos)
		seen[pos] = true
	}
	for pos := 1; pos <= n; pos++ {
		if !seen[pos] {
			ordering = append(ordering, pos)
		}
	}

	bullets := resp.ExcerptBullets
	if len(bullets) > domain.ExcerptBulletCount {
		bullets = bullets[:domain.ExcerptBulletCount]
	}
	for i := len(bullets); i < domain.ExcerptBulletCount; i++ {
		// Pad from item titles, cycling if the run is short.
		title := items[i%n].Title
		bullets = append(bullets, truncate(title, excerptTitleLimit))
	}

	headings := resp.Headings
	if headings == nil {
		headings = make(map[int]string, n)
	}

	plan := &domain.ArticlePlan{
		Thesis:         resp.Thesis,
		Ordering:       ordering,
		Headings:       headings,
		Title:          resp.Title,
		ExcerptBullets: bullets,
		Category:       resp.Category,
		IntroParagraph: resp.IntroParagraph,
	}

	fallback := FallbackPlan(items)
	if plan.Thesis == "" {
		plan.Thesis = fallback.Thesis
	}
	if plan.Title == "" {
		plan.Title = fallback.Title
	}
	if plan.Category == "" {
		plan.Category = fallback.Category
	}
	if plan.IntroParagraph == "" {
		plan.IntroParagraph = fallback.IntroParagraph
	}

	return plan
}

// FallbackPlan is the deterministic plan used when the external call
// fails outright: natural item order, headings equal to item titles, and
// generic framing. The pipeline always has some valid plan to run with.
func FallbackPlan(items []*domain.CandidateItem) *domain.ArticlePlan {
	n := len(items)

	ordering := make([]int, n)
	headings := make(map[int]string, n)
	for i, item := range items {
		ordering[i] = i + 1
		headings[i+1] = item.Title
	}

	bullets := make([]string, 0, domain.ExcerptBulletCount)
	for i := 0; i < domain.ExcerptBulletCount; i++ {
		bullets = append(bullets, truncate(items[i%n].Title, excerptTitleLimit))
	}

	return &domain.ArticlePlan{
		Thesis:         "A roundup of notable recent stories.",
		Ordering:       ordering,
		Headings:       headings,
		Title:          "Today's Digest",
		ExcerptBullets: bullets,
		Category:       "digest",
		IntroParagraph: "This digest brings together several stories worth your attention.",
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
