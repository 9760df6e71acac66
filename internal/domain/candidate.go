package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CandidateStatus represents the lifecycle state of a candidate item.
type CandidateStatus string

// Possible candidate status values.
//
// The only reversible edge is pending <-> selected; used, skipped and
// expired are terminal.
const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusSelected CandidateStatus = "selected"
	CandidateStatusUsed     CandidateStatus = "used"
	CandidateStatusSkipped  CandidateStatus = "skipped"
	CandidateStatusExpired  CandidateStatus = "expired"
)

// Common validation errors for CandidateItem.
var (
	ErrEmptyCandidateID     = errors.New("candidate ID cannot be empty")
	ErrEmptyCandidateTitle  = errors.New("candidate title cannot be empty")
	ErrEmptyCandidateSource = errors.New("candidate source identifier cannot be empty")
	ErrInvalidStatus        = errors.New("invalid candidate status")
	ErrScoreOutOfRange      = errors.New("score must be between 0 and 100")
	ErrUsedWithoutArticle   = errors.New("used candidate must reference a consuming article")
)

// Scores holds the three scoring dimensions assigned to a candidate.
// Each dimension is an integer in [0, 100].
type Scores struct {
	Synthesis  int `json:"synthesis"`
	Relevance  int `json:"relevance"`
	Uniqueness int `json:"uniqueness"`
}

// Total returns the derived sum of all dimensions.
func (s Scores) Total() int {
	return s.Synthesis + s.Relevance + s.Uniqueness
}

// Validate checks every dimension is within range.
func (s Scores) Validate() error {
	for _, v := range []int{s.Synthesis, s.Relevance, s.Uniqueness} {
		if v < 0 || v > 100 {
			return ErrScoreOutOfRange
		}
	}
	return nil
}

// CandidateItem is a single piece of content awaiting possible inclusion
// in a synthesized article. It is created by ingestion, owned by the
// candidate store, and mutated exclusively through the queue manager.
type CandidateItem struct {
	ID                 uuid.UUID       `json:"id"`
	Title              string          `json:"title"`
	Content            string          `json:"content,omitempty"`
	SourceIdentifier   string          `json:"source_identifier"`
	SourceURL          string          `json:"source_url,omitempty"`
	ExternalRef        string          `json:"external_ref,omitempty"`
	Scores             Scores          `json:"scores"`
	TotalScore         int             `json:"total_score"`
	Status             CandidateStatus `json:"status"`
	SkipReason         string          `json:"skip_reason,omitempty"`
	QueuedAt           time.Time       `json:"queued_at"`
	SelectedAt         *time.Time      `json:"selected_at,omitempty"`
	UsedAt             *time.Time      `json:"used_at,omitempty"`
	ExpiresAt          time.Time       `json:"expires_at"`
	ConsumingArticleID *uuid.UUID      `json:"consuming_article_id,omitempty"`
}

// NewCandidateItem creates a pending candidate with a fresh ID, the
// derived total score, and an expiry of now + ttl.
// Returns an error if validation fails.
func NewCandidateItem(title, content, source, sourceURL, externalRef string, scores Scores, ttl time.Duration) (*CandidateItem, error) {
	now := time.Now().UTC()
	item := &CandidateItem{
		ID:               uuid.New(),
		Title:            title,
		Content:          content,
		SourceIdentifier: source,
		SourceURL:        sourceURL,
		ExternalRef:      externalRef,
		Scores:           scores,
		TotalScore:       scores.Total(),
		Status:           CandidateStatusPending,
		QueuedAt:         now,
		ExpiresAt:        now.Add(ttl),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks if the CandidateItem has valid data.
func (c *CandidateItem) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyCandidateID
	}

	if c.Title == "" {
		return ErrEmptyCandidateTitle
	}

	if c.SourceIdentifier == "" {
		return ErrEmptyCandidateSource
	}

	if !isValidCandidateStatus(c.Status) {
		return ErrInvalidStatus
	}

	if err := c.Scores.Validate(); err != nil {
		return err
	}

	if c.Status == CandidateStatusUsed && c.ConsumingArticleID == nil {
		return ErrUsedWithoutArticle
	}

	return nil
}

// IsSelectable reports whether the item may feed a generation run at the
// given instant: it must be pending and not yet past its expiry. Expired
// rows that the sweep has not reached yet are filtered out here, at read
// time, independent of sweep timing.
func (c *CandidateItem) IsSelectable(now time.Time) bool {
	return c.Status == CandidateStatusPending && c.ExpiresAt.After(now)
}

// IsTerminal reports whether the item has reached one of the states it
// can never leave.
func (c *CandidateItem) IsTerminal() bool {
	switch c.Status {
	case CandidateStatusUsed, CandidateStatusSkipped, CandidateStatusExpired:
		return true
	default:
		return false
	}
}

// StaleSince reports whether a selected item has sat unconsumed longer
// than the given threshold and is therefore eligible for automatic
// reversion to pending.
func (c *CandidateItem) StaleSince(now time.Time, threshold time.Duration) bool {
	if c.Status != CandidateStatusSelected || c.SelectedAt == nil {
		return false
	}
	return now.Sub(*c.SelectedAt) > threshold
}

func isValidCandidateStatus(status CandidateStatus) bool {
	switch status {
	case CandidateStatusPending, CandidateStatusSelected, CandidateStatusUsed,
		CandidateStatusSkipped, CandidateStatusExpired:
		return true
	default:
		return false
	}
}
