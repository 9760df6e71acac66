package generation

import (
	"fmt"
	"strings"

	"github.com/tobin/anthology-api/internal/domain"
)

const plannerSystemPrompt = `You are the planning editor for a digest publication. Given a numbered list of candidate stories, design the structure of a single synthesized article that weaves them together.

Respond with a single JSON object and nothing else, using this shape:
{
  "thesis": "one-sentence through-line connecting the stories",
  "ordering": [2, 1, 3],
  "headings": {"1": "heading for story 1", "2": "heading for story 2"},
  "title": "article title",
  "excerpt_bullets": ["bullet one", "bullet two", "bullet three"],
  "category": "one-word category",
  "intro_paragraph": "short introduction for the article"
}

"ordering" lists every story number exactly once, in the order the sections should appear. "excerpt_bullets" must contain exactly three entries.`

const sectionSystemPrompt = `You are a staff writer for a digest publication. Write one section of a larger article. Stay factual to the source material, keep the section self-contained, and do not repeat the article's introduction. Respond with the section text only, no heading and no preamble.`

func buildPlannerUserPrompt(items []*domain.CandidateItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Candidate stories (%d):\n\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s (source: %s)\n", i+1, item.Title, item.SourceIdentifier)
		if item.Content != "" {
			fmt.Fprintf(&b, "   %s\n", summarize(item.Content, 400))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildSectionUserPrompt(item *domain.CandidateItem, heading, thesis string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Article thesis: %s\n\n", thesis)
	fmt.Fprintf(&b, "Section heading: %s\n\n", heading)
	fmt.Fprintf(&b, "Source story: %s (from %s)\n", item.Title, item.SourceIdentifier)
	if item.SourceURL != "" {
		fmt.Fprintf(&b, "URL: %s\n", item.SourceURL)
	}
	if item.Content != "" {
		fmt.Fprintf(&b, "\n%s\n", item.Content)
	}
	return b.String()
}

// summarize truncates s to at most n runes, appending an ellipsis when
// anything was cut.
func summarize(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
