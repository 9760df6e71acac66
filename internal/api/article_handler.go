package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tobin/anthology-api/internal/api/shared"
	"github.com/tobin/anthology-api/internal/pipeline"
	"github.com/tobin/anthology-api/internal/service"
)

// ArticleHandler exposes article generation over HTTP.
type ArticleHandler struct {
	synthesizer *service.Synthesizer
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewArticleHandler creates an ArticleHandler.
func NewArticleHandler(synthesizer *service.Synthesizer, logger *slog.Logger) *ArticleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleHandler{
		synthesizer: synthesizer,
		validator:   validator.New(),
		logger:      logger.With("component", "article_handler"),
	}
}

// completedLine is the final NDJSON record of a generation stream.
type completedLine struct {
	Type      string `json:"type"`
	ArticleID string `json:"article_id"`
	Document  string `json:"document"`
	UsedItems int    `json:"used_items"`
	Failed    int    `json:"failed_sections"`
}

// errorLine reports a failure after the stream has started; the HTTP
// status is already committed by then.
type errorLine struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Generate handles POST /api/articles/generate. The response is NDJSON:
// one line per pipeline event in emission order, then a final completed
// or error line.
func (h *ArticleHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	streaming := false
	onEvent := func(ev pipeline.Event) {
		streaming = true
		if err := enc.Encode(ev); err != nil {
			h.logger.Debug("client stopped reading event stream", "error", err)
			return
		}
		flusher.Flush()
	}

	result, err := h.synthesizer.GenerateArticle(r.Context(), req.MaxItems, onEvent)
	if err != nil {
		// The status line is already committed; an error record is the
		// only channel left for the failure.
		h.logger.Error("article generation failed", "error", err, "streamed", streaming)
		_ = enc.Encode(errorLine{Type: "error", Error: GetSafeErrorMessage(err)})
		flusher.Flush()
		return
	}

	_ = enc.Encode(completedLine{
		Type:      "completed",
		ArticleID: result.ArticleID.String(),
		Document:  result.Document,
		UsedItems: len(result.UsedItemIDs),
		Failed:    result.FailedSections,
	})
	flusher.Flush()
}
