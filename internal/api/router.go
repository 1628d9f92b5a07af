package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notionclean/internal/cleanservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *cleanservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Stateless helpers.
	r.Post("/normalize", h.Normalize)
	r.Post("/rewrite", h.Rewrite)

	// Runs.
	r.Post("/runs", h.CreateRun)
	r.Get("/runs/latest", h.LatestRun)
	r.Get("/runs/latest/dangling", h.LatestDangling)
	r.Get("/runs/{id}", h.GetRun)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
