package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArticlePlan_Validate(t *testing.T) {
	t.Parallel()

	bullets := []string{"a", "b", "c"}

	t.Run("accepts permutation with three bullets", func(t *testing.T) {
		t.Parallel()

		plan := &ArticlePlan{Ordering: []int{3, 1, 2}, ExcerptBullets: bullets}
		assert.NoError(t, plan.Validate(3))
	})

	t.Run("rejects duplicate position", func(t *testing.T) {
		t.Parallel()

		plan := &ArticlePlan{Ordering: []int{1, 1, 2}, ExcerptBullets: bullets}
		assert.ErrorIs(t, plan.Validate(3), ErrOrderingNotPermutation)
	})

	t.Run("rejects out-of-range position", func(t *testing.T) {
		t.Parallel()

		plan := &ArticlePlan{Ordering: []int{0, 1, 2}, ExcerptBullets: bullets}
		assert.ErrorIs(t, plan.Validate(3), ErrOrderingNotPermutation)
	})

	t.Run("rejects short ordering", func(t *testing.T) {
		t.Parallel()

		plan := &ArticlePlan{Ordering: []int{1, 2}, ExcerptBullets: bullets}
		assert.ErrorIs(t, plan.Validate(3), ErrOrderingNotPermutation)
	})

	t.Run("rejects wrong bullet count", func(t *testing.T) {
		t.Parallel()

		plan := &ArticlePlan{Ordering: []int{1, 2, 3}, ExcerptBullets: []string{"only one"}}
		assert.ErrorIs(t, plan.Validate(3), ErrWrongBulletCount)
	})
}

func TestArticlePlan_HeadingFor(t *testing.T) {
	t.Parallel()

	plan := &ArticlePlan{Headings: map[int]string{1: "The Opening Move"}}

	assert.Equal(t, "The Opening Move", plan.HeadingFor(1, "fallback"))
	assert.Equal(t, "fallback", plan.HeadingFor(2, "fallback"))

	plan.Headings[3] = ""
	assert.Equal(t, "fallback", plan.HeadingFor(3, "fallback"))
}
