package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tobin/anthology-api/internal/api/shared"
)

// NewRouter builds the application router with all routes and standard
// middleware.
func NewRouter(queueHandler *QueueHandler, articleHandler *ArticleHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(traceMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Post("/items", queueHandler.AddItems)
			r.Get("/items/selectable", queueHandler.GetSelectable)
			r.Get("/items/balanced", queueHandler.GetBalanced)
			r.Patch("/items/{id}/scores", queueHandler.UpdateScores)
			r.Post("/select", queueHandler.SelectItems)
			r.Post("/mark-used", queueHandler.MarkUsed)
			r.Post("/reset", queueHandler.ResetToPending)
			r.Post("/reset-stale", queueHandler.ResetStale)
			r.Post("/skip", queueHandler.Skip)
			r.Post("/expire", queueHandler.Expire)
			r.Get("/stats", queueHandler.Stats)
			r.Get("/distribution", queueHandler.Distribution)
		})

		r.Post("/articles/generate", articleHandler.Generate)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

// traceMiddleware stamps every request context with a trace ID.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(shared.SetTraceID(r.Context())))
	})
}
