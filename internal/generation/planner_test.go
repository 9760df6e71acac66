package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobin/anthology-api/internal/domain"
)

// fakeCompleter returns canned responses or errors.
type fakeCompleter struct {
	response string
	err      error
	calls    int
	lastReq  CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func planItems(t *testing.T, titles ...string) []*domain.CandidateItem {
	t.Helper()

	items := make([]*domain.CandidateItem, len(titles))
	for i, title := range titles {
		item, err := domain.NewCandidateItem(title, "body of "+title, "source-"+title, "", "", domain.Scores{}, time.Hour)
		require.NoError(t, err)
		items[i] = item
	}
	return items
}

func TestPlanner_Plan(t *testing.T) {
	t.Parallel()

	t.Run("parses fenced response", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{response: "```json\n" + `{
			"thesis": "everything connects",
			"ordering": [3, 1, 2],
			"headings": {"1": "First", "2": "Second", "3": "Third"},
			"title": "The Big Picture",
			"excerpt_bullets": ["one", "two", "three"],
			"category": "technology",
			"intro_paragraph": "An intro."
		}` + "\n```"}

		planner, err := NewPlanner(completer, "test-model", testLogger())
		require.NoError(t, err)

		plan, err := planner.Plan(context.Background(), planItems(t, "a", "b", "c"))
		require.NoError(t, err)

		assert.Equal(t, []int{3, 1, 2}, plan.Ordering)
		assert.Equal(t, "The Big Picture", plan.Title)
		assert.Equal(t, "Third", plan.Headings[3])
		assert.Equal(t, "test-model", completer.lastReq.Model)
		assert.Equal(t, 1, completer.calls)
	})

	t.Run("appends missing ordering indices in natural order", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{response: `{
			"ordering": [3, 1],
			"excerpt_bullets": ["one", "two", "three"]
		}`}

		planner, err := NewPlanner(completer, "", testLogger())
		require.NoError(t, err)

		plan, err := planner.Plan(context.Background(), planItems(t, "a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, []int{3, 1, 2}, plan.Ordering)
	})

	t.Run("drops bogus ordering entries", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{response: `{
			"ordering": [2, 2, 7, -1, 1],
			"excerpt_bullets": ["one", "two", "three"]
		}`}

		planner, err := NewPlanner(completer, "", testLogger())
		require.NoError(t, err)

		plan, err := planner.Plan(context.Background(), planItems(t, "a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, []int{2, 1, 3}, plan.Ordering)
	})

	t.Run("pads excerpt bullets from item titles", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{response: `{
			"ordering": [1, 2, 3],
			"excerpt_bullets": ["only bullet"]
		}`}

		planner, err := NewPlanner(completer, "", testLogger())
		require.NoError(t, err)

		longTitle := strings.Repeat("x", 80)
		plan, err := planner.Plan(context.Background(), planItems(t, "a", longTitle, "c"))
		require.NoError(t, err)

		require.Len(t, plan.ExcerptBullets, 3)
		assert.Equal(t, "only bullet", plan.ExcerptBullets[0])
		// Bullets 2-3 derive from item titles, capped at 65 characters.
		assert.Equal(t, strings.Repeat("x", 65), plan.ExcerptBullets[1])
		assert.Equal(t, "c", plan.ExcerptBullets[2])
	})

	t.Run("truncates excess excerpt bullets", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{response: `{
			"ordering": [1, 2],
			"excerpt_bullets": ["1", "2", "3", "4", "5"]
		}`}

		planner, err := NewPlanner(completer, "", testLogger())
		require.NoError(t, err)

		plan, err := planner.Plan(context.Background(), planItems(t, "a", "b"))
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3"}, plan.ExcerptBullets)
	})

	t.Run("call failure yields fallback plan", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{err: errors.New("rate limited")}
		planner, err := NewPlanner(completer, "", testLogger())
		require.NoError(t, err)

		items := planItems(t, "alpha", "beta")
		plan, err := planner.Plan(context.Background(), items)
		require.NoError(t, err)

		assert.Equal(t, []int{1, 2}, plan.Ordering)
		assert.Equal(t, "alpha", plan.Headings[1])
		assert.Equal(t, "beta", plan.Headings[2])
		assert.NotEmpty(t, plan.Title)
		assert.Len(t, plan.ExcerptBullets, 3)
		assert.NoError(t, plan.Validate(2))
	})

	t.Run("unparseable response yields fallback plan", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{response: "Sorry, I cannot produce JSON today."}
		planner, err := NewPlanner(completer, "", testLogger())
		require.NoError(t, err)

		plan, err := planner.Plan(context.Background(), planItems(t, "a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, plan.Ordering)
		assert.NoError(t, plan.Validate(3))
	})

	t.Run("empty item list rejected", func(t *testing.T) {
		t.Parallel()

		planner, err := NewPlanner(&fakeCompleter{}, "", testLogger())
		require.NoError(t, err)

		_, err = planner.Plan(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoItems)
	})
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", `Here is the plan: {"a": 1} hope it helps!`, `{"a": 1}`},
		{"no object", "no braces here", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, extractJSON(tc.in))
		})
	}
}

func TestSectionWriter_WriteSection(t *testing.T) {
	t.Parallel()

	t.Run("returns trimmed section text", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{response: "  The section body.  \n"}
		writer, err := NewSectionWriter(completer, "", testLogger())
		require.NoError(t, err)

		item := planItems(t, "story")[0]
		section := writer.WriteSection(context.Background(), item, 1, "Heading", "thesis")

		assert.False(t, section.Failed)
		assert.Equal(t, "The section body.", section.Text)
		assert.Equal(t, 1, section.Position)
		assert.Equal(t, "Heading", section.Heading)
	})

	t.Run("failure degrades to marked stand-in", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{err: errors.New("timeout")}
		writer, err := NewSectionWriter(completer, "", testLogger())
		require.NoError(t, err)

		item := planItems(t, "story")[0]
		section := writer.WriteSection(context.Background(), item, 2, "Heading", "thesis")

		assert.True(t, section.Failed)
		assert.Contains(t, section.Text, "story")
		assert.Contains(t, section.Text, "Section unavailable")
	})

	t.Run("blank response is a failure", func(t *testing.T) {
		t.Parallel()

		completer := &fakeCompleter{response: "   "}
		writer, err := NewSectionWriter(completer, "", testLogger())
		require.NoError(t, err)

		item := planItems(t, "story")[0]
		section := writer.WriteSection(context.Background(), item, 3, "Heading", "thesis")
		assert.True(t, section.Failed)
	})
}
