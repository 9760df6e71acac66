package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tobin/anthology-api/internal/api/shared"
	"github.com/tobin/anthology-api/internal/domain"
	"github.com/tobin/anthology-api/internal/queue"
)

// defaultBalancedMax bounds GET /api/queue/items/balanced when the
// caller gives no max parameter.
const defaultBalancedMax = 5

// QueueHandler exposes the candidate queue operations over HTTP.
type QueueHandler struct {
	manager   *queue.Manager
	balancer  *queue.Balancer
	validator *validator.Validate
}

// NewQueueHandler creates a QueueHandler.
func NewQueueHandler(manager *queue.Manager, balancer *queue.Balancer) *QueueHandler {
	return &QueueHandler{
		manager:   manager,
		balancer:  balancer,
		validator: validator.New(),
	}
}

// AddItems handles POST /api/queue/items.
func (h *QueueHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	items := make([]queue.NewItem, len(req.Items))
	for i, in := range req.Items {
		items[i] = queue.NewItem{
			Title:       in.Title,
			Content:     in.Content,
			Source:      in.Source,
			SourceURL:   in.SourceURL,
			ExternalRef: in.ExternalRef,
			Scores: domain.Scores{
				Synthesis:  in.Scores.Synthesis,
				Relevance:  in.Scores.Relevance,
				Uniqueness: in.Scores.Uniqueness,
			},
		}
	}

	result, err := h.manager.Enqueue(r.Context(), items)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, result)
}

// GetSelectable handles GET /api/queue/items/selectable.
func (h *QueueHandler) GetSelectable(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.GetSelectableItems(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, itemsToResponse(items))
}

// GetBalanced handles GET /api/queue/items/balanced?max=N.
func (h *QueueHandler) GetBalanced(w http.ResponseWriter, r *http.Request) {
	maxItems := defaultBalancedMax
	if raw := r.URL.Query().Get("max"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		maxItems = parsed
	}

	items, err := h.balancer.BalancedSelection(r.Context(), maxItems)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, itemsToResponse(items))
}

// SelectItems handles POST /api/queue/select.
func (h *QueueHandler) SelectItems(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.decodeIDs(w, r)
	if !ok {
		return
	}

	result, err := h.manager.Select(r.Context(), ids)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// MarkUsed handles POST /api/queue/mark-used.
func (h *QueueHandler) MarkUsed(w http.ResponseWriter, r *http.Request) {
	var req MarkUsedRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	ids, err := parseUUIDs(req.IDs)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item id")
		return
	}
	articleID, err := uuid.Parse(req.ArticleID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid article id")
		return
	}

	updated, err := h.manager.MarkUsed(r.Context(), ids, articleID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: updated})
}

// ResetToPending handles POST /api/queue/reset.
func (h *QueueHandler) ResetToPending(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.decodeIDs(w, r)
	if !ok {
		return
	}

	reset, err := h.manager.ResetToPending(r.Context(), ids)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: reset})
}

// ResetStale handles POST /api/queue/reset-stale.
func (h *QueueHandler) ResetStale(w http.ResponseWriter, r *http.Request) {
	count, err := h.manager.ResetStaleSelected(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: count})
}

// Skip handles POST /api/queue/skip.
func (h *QueueHandler) Skip(w http.ResponseWriter, r *http.Request) {
	var req SkipRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	ids, err := parseUUIDs(req.IDs)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item id")
		return
	}

	if err := h.manager.Skip(r.Context(), ids, req.Reason); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: len(ids)})
}

// Expire handles POST /api/queue/expire.
func (h *QueueHandler) Expire(w http.ResponseWriter, r *http.Request) {
	count, err := h.manager.ExpireOldItems(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: count})
}

// UpdateScores handles PATCH /api/queue/items/{id}/scores.
func (h *QueueHandler) UpdateScores(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item id")
		return
	}

	var req ScoresRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	scores := domain.Scores{
		Synthesis:  req.Synthesis,
		Relevance:  req.Relevance,
		Uniqueness: req.Uniqueness,
	}
	if err := h.manager.UpdateScores(r.Context(), id, scores); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, scores)
}

// Stats handles GET /api/queue/stats.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Distribution handles GET /api/queue/distribution.
func (h *QueueHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.balancer.SourceDistribution(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, dist)
}

// decodeIDs reads and validates an IDsRequest body, responding on
// failure.
func (h *QueueHandler) decodeIDs(w http.ResponseWriter, r *http.Request) ([]uuid.UUID, bool) {
	var req IDsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return nil, false
	}

	ids, err := parseUUIDs(req.IDs)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item id")
		return nil, false
	}
	return ids, true
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
