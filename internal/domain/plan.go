package domain

import "errors"

// ExcerptBulletCount is the number of excerpt bullets every plan carries.
const ExcerptBulletCount = 3

// Common validation errors for ArticlePlan.
var (
	ErrOrderingNotPermutation = errors.New("plan ordering is not a permutation of item positions")
	ErrWrongBulletCount       = errors.New("plan must carry exactly three excerpt bullets")
)

// ArticlePlan fixes the structure of an article before any section text
// is written: the narrative order of the items, a heading per item, and
// the framing metadata. It is produced once per run by the planner,
// repaired where the model's output falls short, and immutable afterward.
type ArticlePlan struct {
	Thesis         string         `json:"thesis"`
	Ordering       []int          `json:"ordering"`
	Headings       map[int]string `json:"headings"`
	Title          string         `json:"title"`
	ExcerptBullets []string       `json:"excerpt_bullets"`
	Category       string         `json:"category"`
	IntroParagraph string         `json:"intro_paragraph"`
}

// Validate checks the plan's structural invariants for a run over n
// items: Ordering must be a permutation of 1..n and ExcerptBullets must
// hold exactly three entries. The planner is responsible for repairing a
// plan into this shape before it is used.
func (p *ArticlePlan) Validate(n int) error {
	if len(p.Ordering) != n {
		return ErrOrderingNotPermutation
	}

	seen := make(map[int]bool, n)
	for _, pos := range p.Ordering {
		if pos < 1 || pos > n || seen[pos] {
			return ErrOrderingNotPermutation
		}
		seen[pos] = true
	}

	if len(p.ExcerptBullets) != ExcerptBulletCount {
		return ErrWrongBulletCount
	}

	return nil
}

// HeadingFor returns the heading for the 1-based item position, falling
// back to the given default when the plan has none.
func (p *ArticlePlan) HeadingFor(position int, fallback string) string {
	if h, ok := p.Headings[position]; ok && h != "" {
		return h
	}
	return fallback
}

// Section is the generated text for one candidate item, keyed by its
// planned position. Slots live only for the duration of a run: each is
// written exactly once by a pool worker and read once during reassembly.
type Section struct {
	Position int    `json:"position"`
	Heading  string `json:"heading"`
	Text     string `json:"text"`
	Failed   bool   `json:"failed"`
}
