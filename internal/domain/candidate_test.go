package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScores() Scores {
	return Scores{Synthesis: 70, Relevance: 80, Uniqueness: 60}
}

func TestNewCandidateItem(t *testing.T) {
	t.Parallel()

	t.Run("creates pending item with derived total", func(t *testing.T) {
		t.Parallel()

		item, err := NewCandidateItem("Grid storage breakthrough", "body", "reuters", "https://example.com/a", "", validScores(), 72*time.Hour)
		require.NoError(t, err)

		assert.Equal(t, CandidateStatusPending, item.Status)
		assert.Equal(t, 210, item.TotalScore)
		assert.NotEqual(t, uuid.Nil, item.ID)
		assert.True(t, item.ExpiresAt.After(item.QueuedAt))
		assert.Nil(t, item.SelectedAt)
		assert.Nil(t, item.ConsumingArticleID)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		t.Parallel()

		_, err := NewCandidateItem("", "body", "reuters", "", "", validScores(), time.Hour)
		assert.ErrorIs(t, err, ErrEmptyCandidateTitle)
	})

	t.Run("rejects empty source", func(t *testing.T) {
		t.Parallel()

		_, err := NewCandidateItem("title", "", "", "", "", validScores(), time.Hour)
		assert.ErrorIs(t, err, ErrEmptyCandidateSource)
	})

	t.Run("rejects out-of-range score", func(t *testing.T) {
		t.Parallel()

		_, err := NewCandidateItem("title", "", "reuters", "", "", Scores{Synthesis: 101}, time.Hour)
		assert.ErrorIs(t, err, ErrScoreOutOfRange)
	})
}

func TestCandidateItem_Validate(t *testing.T) {
	t.Parallel()

	t.Run("used item requires consuming article", func(t *testing.T) {
		t.Parallel()

		item, err := NewCandidateItem("title", "", "reuters", "", "", validScores(), time.Hour)
		require.NoError(t, err)

		item.Status = CandidateStatusUsed
		assert.ErrorIs(t, item.Validate(), ErrUsedWithoutArticle)

		articleID := uuid.New()
		item.ConsumingArticleID = &articleID
		assert.NoError(t, item.Validate())
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		t.Parallel()

		item, err := NewCandidateItem("title", "", "reuters", "", "", validScores(), time.Hour)
		require.NoError(t, err)

		item.Status = CandidateStatus("archived")
		assert.ErrorIs(t, item.Validate(), ErrInvalidStatus)
	})
}

func TestCandidateItem_IsSelectable(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	item, err := NewCandidateItem("title", "", "reuters", "", "", validScores(), time.Hour)
	require.NoError(t, err)

	assert.True(t, item.IsSelectable(now))

	// Past expiry the item is invisible to selection even before any sweep.
	assert.False(t, item.IsSelectable(now.Add(2*time.Hour)))

	item.Status = CandidateStatusSelected
	assert.False(t, item.IsSelectable(now))
}

func TestCandidateItem_StaleSince(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	threshold := 2 * time.Hour

	item, err := NewCandidateItem("title", "", "reuters", "", "", validScores(), 24*time.Hour)
	require.NoError(t, err)

	// Pending items are never stale.
	assert.False(t, item.StaleSince(now, threshold))

	selectedAt := now.Add(-3 * time.Hour)
	item.Status = CandidateStatusSelected
	item.SelectedAt = &selectedAt
	assert.True(t, item.StaleSince(now, threshold))

	recent := now.Add(-30 * time.Minute)
	item.SelectedAt = &recent
	assert.False(t, item.StaleSince(now, threshold))
}

func TestCandidateItem_IsTerminal(t *testing.T) {
	t.Parallel()

	cases := map[CandidateStatus]bool{
		CandidateStatusPending:  false,
		CandidateStatusSelected: false,
		CandidateStatusUsed:     true,
		CandidateStatusSkipped:  true,
		CandidateStatusExpired:  true,
	}

	for status, terminal := range cases {
		item := &CandidateItem{Status: status}
		assert.Equal(t, terminal, item.IsTerminal(), "status %s", status)
	}
}
