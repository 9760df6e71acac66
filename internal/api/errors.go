package api

import (
	"errors"
	"net/http"

	"github.com/tobin/anthology-api/internal/domain"
	"github.com/tobin/anthology-api/internal/queue"
	"github.com/tobin/anthology-api/internal/service"
	"github.com/tobin/anthology-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes in one
// place, so handlers never leak internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrCandidateNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrNotSelectable),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, service.ErrItemsContended):
		return http.StatusConflict

	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, queue.ErrNoItems),
		errors.Is(err, queue.ErrNoItemIDs),
		errors.Is(err, queue.ErrNilArticle),
		errors.Is(err, domain.ErrScoreOutOfRange),
		errors.Is(err, domain.ErrEmptyCandidateTitle),
		errors.Is(err, domain.ErrEmptyCandidateSource):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrNoCandidates),
		errors.Is(err, service.ErrAllSectionsFailed):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for the error
// without exposing internal detail.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrCandidateNotFound):
		return "Item not found"

	case errors.Is(err, store.ErrDuplicate):
		return "Item already exists"

	case errors.Is(err, store.ErrNotSelectable):
		return "Item is not selectable"

	case errors.Is(err, store.ErrInvalidTransition):
		return "Item is not in a state that allows this operation"

	case errors.Is(err, service.ErrItemsContended):
		return "Items are held by another generation run"

	case errors.Is(err, service.ErrNoCandidates):
		return "No selectable candidates available"

	case errors.Is(err, service.ErrAllSectionsFailed):
		return "Generation failed for every selected item"

	case errors.Is(err, queue.ErrNoItems),
		errors.Is(err, queue.ErrNoItemIDs):
		return "Request must name at least one item"

	case errors.Is(err, domain.ErrScoreOutOfRange):
		return "Scores must be between 0 and 100"

	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrEmptyCandidateTitle),
		errors.Is(err, domain.ErrEmptyCandidateSource):
		return "Invalid item data"

	default:
		return "An unexpected error occurred"
	}
}
