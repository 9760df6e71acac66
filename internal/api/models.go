package api

import (
	"time"

	"github.com/tobin/anthology-api/internal/domain"
)

// NewItemRequest is one candidate in an enqueue batch.
type NewItemRequest struct {
	Title       string        `json:"title"        validate:"required,min=1"`
	Content     string        `json:"content"`
	Source      string        `json:"source"       validate:"required,min=1"`
	SourceURL   string        `json:"source_url"`
	ExternalRef string        `json:"external_ref"`
	Scores      ScoresRequest `json:"scores"`
}

// ScoresRequest carries the three scoring dimensions.
type ScoresRequest struct {
	Synthesis  int `json:"synthesis"  validate:"min=0,max=100"`
	Relevance  int `json:"relevance"  validate:"min=0,max=100"`
	Uniqueness int `json:"uniqueness" validate:"min=0,max=100"`
}

// EnqueueRequest is the body of POST /api/queue/items.
type EnqueueRequest struct {
	Items []NewItemRequest `json:"items" validate:"required,min=1,dive"`
}

// IDsRequest names a batch of item ids.
type IDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

// MarkUsedRequest is the body of POST /api/queue/mark-used.
type MarkUsedRequest struct {
	IDs       []string `json:"ids"        validate:"required,min=1,dive,uuid"`
	ArticleID string   `json:"article_id" validate:"required,uuid"`
}

// SkipRequest is the body of POST /api/queue/skip.
type SkipRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,dive,uuid"`
	Reason string   `json:"reason"`
}

// GenerateRequest is the body of POST /api/articles/generate.
type GenerateRequest struct {
	MaxItems int `json:"max_items" validate:"min=1,max=20"`
}

// ItemResponse is the API shape of one candidate item.
type ItemResponse struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Source             string        `json:"source"`
	SourceURL          string        `json:"source_url,omitempty"`
	ExternalRef        string        `json:"external_ref,omitempty"`
	Scores             domain.Scores `json:"scores"`
	TotalScore         int           `json:"total_score"`
	Status             string        `json:"status"`
	SkipReason         string        `json:"skip_reason,omitempty"`
	QueuedAt           time.Time     `json:"queued_at"`
	SelectedAt         *time.Time    `json:"selected_at,omitempty"`
	UsedAt             *time.Time    `json:"used_at,omitempty"`
	ExpiresAt          time.Time     `json:"expires_at"`
	ConsumingArticleID string        `json:"consuming_article_id,omitempty"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

func itemToResponse(item *domain.CandidateItem) ItemResponse {
	resp := ItemResponse{
		ID:          item.ID.String(),
		Title:       item.Title,
		Source:      item.SourceIdentifier,
		SourceURL:   item.SourceURL,
		ExternalRef: item.ExternalRef,
		Scores:      item.Scores,
		TotalScore:  item.TotalScore,
		Status:      string(item.Status),
		SkipReason:  item.SkipReason,
		QueuedAt:    item.QueuedAt,
		SelectedAt:  item.SelectedAt,
		UsedAt:      item.UsedAt,
		ExpiresAt:   item.ExpiresAt,
	}
	if item.ConsumingArticleID != nil {
		resp.ConsumingArticleID = item.ConsumingArticleID.String()
	}
	return resp
}

func itemsToResponse(items []*domain.CandidateItem) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i, item := range items {
		out[i] = itemToResponse(item)
	}
	return out
}
