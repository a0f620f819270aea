package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/mtvsearch/internal/session"
	"github.com/starford/mtvsearch/internal/sse"
	"github.com/starford/mtvsearch/internal/status"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// broker, if non-nil, serves GET /events and the per-session event streams
// inside the auth group.
func NewRouter(sessions *session.Service, monitor *status.Monitor, broker *sse.Broker, authEnabled bool, token string) chi.Router {
	h := NewHandler(sessions, monitor, broker)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sessions.
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Delete("/", h.DeleteSession)
		r.Get("/view", h.GetView)
		r.Put("/filters/{field}", h.SetFilter)
		r.Put("/sort", h.SetSort)
		r.Put("/page", h.SetPage)
		r.Post("/refresh", h.RefreshSession)
		if broker != nil {
			r.Get("/events", h.SessionEvents)
		}
	})

	// One-shot search.
	r.Get("/search", h.Search)

	// Database status.
	r.Get("/status", h.GetStatus)
	r.Post("/status/refresh", h.RefreshStatus)

	// SSE endpoint (protected by same auth middleware).
	if broker != nil {
		r.Get("/events", broker.ServeHTTP)
	}

	return r
}
