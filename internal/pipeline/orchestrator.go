package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tobin/anthology-api/internal/domain"
)

// Common orchestrator errors.
var (
	ErrNoItems        = errors.New("cannot run a pipeline over zero items")
	ErrNilPlanner     = errors.New("planner cannot be nil")
	ErrNilWriter      = errors.New("section writer cannot be nil")
	ErrDuplicateItems = errors.New("item batch contains duplicate ids")
)

// Planner produces the article plan for a run. Implementations must
// return a structurally valid plan or an error; the production
// implementation never errors except on empty input.
type Planner interface {
	Plan(ctx context.Context, items []*domain.CandidateItem) (*domain.ArticlePlan, error)
}

// SectionWriter produces the text for one planned section. A failure is
// reported inside the returned section, never as an error, so a stalled
// or failing call degrades to a marked slot instead of stalling the run.
type SectionWriter interface {
	WriteSection(ctx context.Context, item *domain.CandidateItem, position int, heading, thesis string) domain.Section
}

// Config holds orchestrator settings.
type Config struct {
	// WriterCount bounds concurrent outstanding section calls.
	// Values below 1 are clamped to 1.
	WriterCount int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{WriterCount: 3}
}

// Orchestrator sequences one run: a single planning call, concurrent
// section writing through a bounded pool, and strictly ordered
// reassembly of the results.
type Orchestrator struct {
	planner Planner
	writer  SectionWriter
	config  Config
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(planner Planner, writer SectionWriter, config Config, logger *slog.Logger) (*Orchestrator, error) {
	if planner == nil {
		return nil, ErrNilPlanner
	}
	if writer == nil {
		return nil, ErrNilWriter
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.WriterCount < 1 {
		config.WriterCount = 1
	}

	return &Orchestrator{
		planner: planner,
		writer:  writer,
		config:  config,
		logger:  logger.With("component", "pipeline_orchestrator"),
	}, nil
}

// Run executes the pipeline over the given items and returns the event
// stream. The channel is buffered for the whole run and closed once
// every planned position has been emitted; consumers may read
// incrementally and will always see sections in final document order.
func (o *Orchestrator) Run(ctx context.Context, items []*domain.CandidateItem) (<-chan Event, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.ID.String()] {
			return nil, ErrDuplicateItems
		}
		seen[item.ID.String()] = true
	}

	// Buffered for the full fixed event sequence, so emission never
	// blocks on a slow consumer.
	events := make(chan Event, 3+3*len(items))

	go o.run(ctx, items, events)
	return events, nil
}

func (o *Orchestrator) run(ctx context.Context, items []*domain.CandidateItem, events chan<- Event) {
	defer close(events)

	n := len(items)
	log := o.logger.With("items", n)

	events <- Event{Type: EventPlanningStarted}

	plan, err := o.planner.Plan(ctx, items)
	if err != nil {
		// The production planner only errors on empty input, which Run
		// already rejected. Guard anyway with the deterministic plan.
		log.Error("planner returned error, continuing with fallback", "error", err)
		plan = fallbackFor(items)
	}

	events <- Event{Type: EventPlanned, Plan: plan}
	events <- Event{Type: EventMetadataReady, Metadata: &Metadata{
		Title:          plan.Title,
		Category:       plan.Category,
		Thesis:         plan.Thesis,
		ExcerptBullets: plan.ExcerptBullets,
		IntroParagraph: plan.IntroParagraph,
	}}

	// One result slot per planned position. Each slot is written by
	// exactly one worker and read once by the sequential consumer
	// below; the only shared mutable state between workers is the
	// claim cursor.
	slots := make([]domain.Section, n)
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}

	var cursor atomic.Int64
	workerCount := o.config.WriterCount
	if workerCount > n {
		workerCount = n
	}

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(cursor.Add(1)) - 1
				if idx >= n {
					return
				}
				pos := plan.Ordering[idx]
				item := items[pos-1]
				heading := plan.HeadingFor(pos, item.Title)
				slots[idx] = o.writer.WriteSection(ctx, item, pos, heading, plan.Thesis)
				close(done[idx])
			}
		}()
	}

	// Consume strictly in planned order while workers keep filling
	// later slots in the background.
	for idx := 0; idx < n; idx++ {
		pos := plan.Ordering[idx]
		item := items[pos-1]
		heading := plan.HeadingFor(pos, item.Title)

		events <- Event{Type: EventWritingStarted, Position: pos, Title: heading}

		<-done[idx]
		section := slots[idx]

		events <- Event{Type: EventSectionReady, Position: pos, Section: &section}
		events <- Event{Type: EventWritten, Progress: &Progress{Completed: idx + 1, Total: n}}
	}

	wg.Wait()
	log.Info("pipeline run completed", "sections", n)
}

// fallbackFor builds a minimal valid plan in natural item order.
func fallbackFor(items []*domain.CandidateItem) *domain.ArticlePlan {
	n := len(items)
	ordering := make([]int, n)
	headings := make(map[int]string, n)
	for i, item := range items {
		ordering[i] = i + 1
		headings[i+1] = item.Title
	}
	bullets := make([]string, domain.ExcerptBulletCount)
	for i := range bullets {
		bullets[i] = items[i%n].Title
	}
	return &domain.ArticlePlan{
		Ordering:       ordering,
		Headings:       headings,
		Title:          "Digest",
		ExcerptBullets: bullets,
		Category:       "digest",
	}
}
