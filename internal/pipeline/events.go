package pipeline

import "github.com/tobin/anthology-api/internal/domain"

// EventType identifies one step of the pipeline's progress stream.
type EventType string

// Event types, emitted in this fixed sequence: planning-started,
// planned, metadata-ready, then per planned position in order:
// writing-started, section-ready, written.
const (
	EventPlanningStarted EventType = "planning-started"
	EventPlanned         EventType = "planned"
	EventMetadataReady   EventType = "metadata-ready"
	EventWritingStarted  EventType = "writing-started"
	EventSectionReady    EventType = "section-ready"
	EventWritten         EventType = "written"
)

// Metadata is the article framing announced before any section text.
type Metadata struct {
	Title          string   `json:"title"`
	Category       string   `json:"category"`
	Thesis         string   `json:"thesis"`
	ExcerptBullets []string `json:"excerpt_bullets"`
	IntroParagraph string   `json:"intro_paragraph"`
}

// Progress counts completed sections against the run total.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Event is one entry of the progress stream. Which fields are set
// depends on Type: Plan on planned, Metadata on metadata-ready,
// Position/Title on writing-started, Position/Section on section-ready,
// Progress on written.
type Event struct {
	Type     EventType           `json:"type"`
	Plan     *domain.ArticlePlan `json:"plan,omitempty"`
	Metadata *Metadata           `json:"metadata,omitempty"`
	Position int                 `json:"position,omitempty"`
	Title    string              `json:"title,omitempty"`
	Section  *domain.Section     `json:"section,omitempty"`
	Progress *Progress           `json:"progress,omitempty"`
}
