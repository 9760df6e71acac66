package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tobin/anthology-api/internal/domain"
)

// SectionWriter produces the body text for one planned section per
// call. A failed call returns a clearly marked stand-in section rather
// than an error, so one bad slot never stalls or fails the run.
type SectionWriter struct {
	completer Completer
	model     string
	logger    *slog.Logger
}

// NewSectionWriter creates a SectionWriter issuing calls through the
// given completer.
func NewSectionWriter(completer Completer, model string, logger *slog.Logger) (*SectionWriter, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completer cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SectionWriter{
		completer: completer,
		model:     model,
		logger:    logger.With("component", "section_writer"),
	}, nil
}

// WriteSection issues one completion call for the item and returns the
// section text. On any failure the returned section carries Failed=true
// and stand-in text naming the item, keeping the 1:1 mapping between
// planned positions and output.
func (w *SectionWriter) WriteSection(ctx context.Context, item *domain.CandidateItem, position int, heading, thesis string) domain.Section {
	text, err := w.completer.Complete(ctx, CompletionRequest{
		System: sectionSystemPrompt,
		User:   buildSectionUserPrompt(item, heading, thesis),
		Model:  w.model,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		w.logger.Warn("section call failed, emitting stand-in",
			"item_id", item.ID,
			"position", position,
			"error", err)
		return domain.Section{
			Position: position,
			Heading:  heading,
			Text:     standInText(item),
			Failed:   true,
		}
	}

	return domain.Section{
		Position: position,
		Heading:  heading,
		Text:     strings.TrimSpace(text),
	}
}

func standInText(item *domain.CandidateItem) string {
	return fmt.Sprintf("[Section unavailable: generation failed for %q. See the original story at %s.]",
		item.Title, sourceRef(item))
}

func sourceRef(item *domain.CandidateItem) string {
	if item.SourceURL != "" {
		return item.SourceURL
	}
	return item.SourceIdentifier
}
