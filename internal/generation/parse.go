package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// planResponse mirrors the JSON shape the planner prompt asks for.
// Heading keys arrive as JSON object keys and unmarshal into int map
// keys directly.
type planResponse struct {
	Thesis         string         `json:"thesis"`
	Ordering       []int          `json:"ordering"`
	Headings       map[int]string `json:"headings"`
	Title          string         `json:"title"`
	ExcerptBullets []string       `json:"excerpt_bullets"`
	Category       string         `json:"category"`
	IntroParagraph string         `json:"intro_paragraph"`
}

// parsePlanResponse extracts and decodes the JSON object from a raw
// model response. Models wrap output in markdown fences or surround it
// with prose often enough that both are stripped before decoding.
func parsePlanResponse(raw string) (*planResponse, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: no JSON object found in response", ErrInvalidResponse)
	}

	var resp planResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return &resp, nil
}

// extractJSON returns the innermost JSON-shaped substring of raw: fences
// are trimmed first, then everything outside the outermost brace pair is
// dropped. Returns "" when no brace pair exists.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}
