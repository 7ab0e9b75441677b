package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notecanvas/internal/pageservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// events, if non-nil, is told about every page and text write.
func NewRouter(svc *pageservice.Service, authEnabled bool, token string, sseHandler http.Handler, events EventPublisher) chi.Router {
	h := NewHandler(svc, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/documents", h.ListDocuments)

	r.Route("/notes/{id}/pages", func(r chi.Router) {
		r.Get("/", h.ListPages)
		r.Get("/{n}", h.GetPage)
		r.Put("/{n}", h.PutPage)
		r.Get("/{n}/text", h.GetText)
		r.Put("/{n}/text", h.PutText)
		r.Get("/{n}/image", h.GetImage)
		r.Post("/{n}/image", h.PutImage)
	})

	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
