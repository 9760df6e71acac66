package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tobin/anthology-api/internal/domain"
	"github.com/tobin/anthology-api/internal/pipeline"
	"github.com/tobin/anthology-api/internal/queue"
)

// Service-level errors.
var (
	ErrNoCandidates      = errors.New("no selectable candidates available")
	ErrItemsContended    = errors.New("candidate items are held by another run")
	ErrAllSectionsFailed = errors.New("every section failed to generate")
	ErrNilManager        = errors.New("queue manager cannot be nil")
	ErrNilBalancer       = errors.New("balancer cannot be nil")
	ErrNilRunner         = errors.New("pipeline runner cannot be nil")
)

// runner abstracts the pipeline orchestrator for this service.
type runner interface {
	Run(ctx context.Context, items []*domain.CandidateItem) (<-chan pipeline.Event, error)
}

// RunResult summarizes one completed article run.
type RunResult struct {
	ArticleID      uuid.UUID           `json:"article_id"`
	Plan           *domain.ArticlePlan `json:"plan"`
	Metadata       *pipeline.Metadata  `json:"metadata"`
	Document       string              `json:"document"`
	Sections       []domain.Section    `json:"sections"`
	UsedItemIDs    []uuid.UUID         `json:"used_item_ids"`
	FailedSections int                 `json:"failed_sections"`
}

// Synthesizer runs article generation end to end. A batch of item ids
// belongs to at most one active run at a time; overlapping requests fail
// fast with ErrItemsContended rather than double-consuming content.
type Synthesizer struct {
	manager  *queue.Manager
	balancer *queue.Balancer
	runner   runner
	inflight *pipeline.InflightSet
	logger   *slog.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(manager *queue.Manager, balancer *queue.Balancer, r runner, logger *slog.Logger) (*Synthesizer, error) {
	if manager == nil {
		return nil, ErrNilManager
	}
	if balancer == nil {
		return nil, ErrNilBalancer
	}
	if r == nil {
		return nil, ErrNilRunner
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Synthesizer{
		manager:  manager,
		balancer: balancer,
		runner:   r,
		inflight: pipeline.NewInflightSet(),
		logger:   logger.With("component", "synthesizer"),
	}, nil
}

// GenerateArticle selects up to maxItems balanced candidates, runs the
// pipeline over them, and settles the queue afterwards: items whose
// sections were written are marked used under a fresh article id, items
// whose sections failed go back to pending. Every pipeline event is
// passed to onEvent (which may be nil) as it is emitted, in order.
func (s *Synthesizer) GenerateArticle(ctx context.Context, maxItems int, onEvent func(pipeline.Event)) (*RunResult, error) {
	log := pipelineLogger(s.logger)

	candidates, err := s.balancer.BalancedSelection(ctx, maxItems)
	if err != nil {
		return nil, fmt.Errorf("balanced selection failed: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	ids := itemIDs(candidates)
	if !s.inflight.TryAdd(ids) {
		return nil, ErrItemsContended
	}
	defer s.inflight.Remove(ids)

	selected, err := s.manager.Select(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve items: %w", err)
	}
	if len(selected.Items) == 0 {
		return nil, ErrNoCandidates
	}
	if len(selected.FailedIDs) > 0 {
		log.Info("some candidates lost to a concurrent selection",
			"failed", len(selected.FailedIDs))
	}

	items := selected.Items
	selectedIDs := itemIDs(items)

	result, err := s.runPipeline(ctx, items, onEvent)
	if err != nil {
		// Nothing was consumed; release the reservation in the queue.
		if _, resetErr := s.manager.ResetToPending(ctx, selectedIDs); resetErr != nil {
			log.Error("failed to release items after aborted run", "error", resetErr)
		}
		return nil, err
	}

	if err := s.settle(ctx, items, result, log); err != nil {
		return nil, err
	}

	log.Info("article run completed",
		"article_id", result.ArticleID,
		"used", len(result.UsedItemIDs),
		"failed_sections", result.FailedSections)
	return result, nil
}

// runPipeline executes one run and gathers its outputs from the event
// stream.
func (s *Synthesizer) runPipeline(ctx context.Context, items []*domain.CandidateItem, onEvent func(pipeline.Event)) (*RunResult, error) {
	events, err := s.runner.Run(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	result := &RunResult{ArticleID: uuid.New()}
	for ev := range events {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case pipeline.EventPlanned:
			result.Plan = ev.Plan
		case pipeline.EventMetadataReady:
			result.Metadata = ev.Metadata
		case pipeline.EventSectionReady:
			result.Sections = append(result.Sections, *ev.Section)
			if ev.Section.Failed {
				result.FailedSections++
			}
		}
	}

	result.Document = assembleDocument(result.Metadata, result.Sections)
	return result, nil
}

// settle records the run's outcome in the queue: written items become
// used, failed ones return to pending for a later run.
func (s *Synthesizer) settle(ctx context.Context, items []*domain.CandidateItem, result *RunResult, log *slog.Logger) error {
	var usedIDs, failedIDs []uuid.UUID
	for _, section := range result.Sections {
		item := items[section.Position-1]
		if section.Failed {
			failedIDs = append(failedIDs, item.ID)
		} else {
			usedIDs = append(usedIDs, item.ID)
		}
	}

	if len(failedIDs) > 0 {
		if _, err := s.manager.ResetToPending(ctx, failedIDs); err != nil {
			log.Error("failed to return failed-section items to pending", "error", err)
		}
	}

	if len(usedIDs) == 0 {
		return ErrAllSectionsFailed
	}

	if _, err := s.manager.MarkUsed(ctx, usedIDs, result.ArticleID); err != nil {
		return fmt.Errorf("failed to mark items used: %w", err)
	}
	result.UsedItemIDs = usedIDs
	return nil
}

func itemIDs(items []*domain.CandidateItem) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// assembleDocument renders the final article: framing first, then the
// sections in the order the pipeline emitted them, which is planned
// order.
func assembleDocument(meta *pipeline.Metadata, sections []domain.Section) string {
	var b strings.Builder

	if meta != nil {
		if meta.Title != "" {
			b.WriteString("# " + meta.Title + "\n\n")
		}
		if meta.IntroParagraph != "" {
			b.WriteString(meta.IntroParagraph + "\n\n")
		}
	}

	for _, section := range sections {
		if section.Heading != "" {
			b.WriteString("## " + section.Heading + "\n\n")
		}
		b.WriteString(section.Text + "\n\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func pipelineLogger(base *slog.Logger) *slog.Logger {
	return base.With("run_id", uuid.New().String())
}
