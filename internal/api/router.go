package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/munin/internal/docservice"
)

// RouterOptions configures the API router.
type RouterOptions struct {
	AuthEnabled bool
	AuthToken   string

	// EventsHandler serves the SSE stream at /api/events when set.
	EventsHandler http.Handler
}

// NewRouter builds the chi router for both API dialects.
//
// The strict dialect lives at /mind/documents. The permissive dialect
// lives at /documents and stays reachable through its historical
// aliases /vectorstore/documents and /api/vectorstore/documents.
func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.AuthToken))

	r.Route("/mind/documents", func(r chi.Router) {
		mountDialect(r, h, docservice.Strict)
	})

	for _, prefix := range []string{"/documents", "/vectorstore/documents", "/api/vectorstore/documents"} {
		r.Route(prefix, func(r chi.Router) {
			mountDialect(r, h, docservice.Permissive)
		})
	}

	if opts.EventsHandler != nil {
		r.Get("/api/events", opts.EventsHandler.ServeHTTP)
	}

	return r
}

// mountDialect wires the shared route shape under one dialect prefix.
// chi allows a single wildcard name per segment position, so the query
// route reuses {id} even though the segment carries a collection name.
func mountDialect(r chi.Router, h *Handler, p docservice.Policy) {
	r.Get("/", h.list(p))
	r.Post("/", h.create(p))
	r.Get("/{id}", h.get(p))
	r.Post("/{id}", h.update(p))
	r.Delete("/{id}", h.delete(p))
	r.Post("/{id}/query", h.query(p))
}
