package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notecanvas/internal/apperr"
	"github.com/starford/notecanvas/internal/checksum"
	"github.com/starford/notecanvas/internal/pageservice"
)

const maxPageBytes = 10 << 20

// EventPublisher receives page changes made through the API.
type EventPublisher interface {
	PublishPageEvent(kind, documentID string, page int)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *pageservice.Service
	events EventPublisher
}

// NewHandler creates a new Handler. events may be nil.
func NewHandler(svc *pageservice.Service, events EventPublisher) *Handler {
	return &Handler{svc: svc, events: events}
}

func (h *Handler) publish(kind, documentID string, page int) {
	if h.events != nil {
		h.events.PublishPageEvent(kind, documentID, page)
	}
}

// pageParams extracts the document id and page number from the URL.
func pageParams(r *http.Request) (string, int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		return "", 0, false
	}
	return chi.URLParam(r, "id"), n, true
}

// writeServiceError maps service errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case errors.Is(err, pageservice.ErrInvalidDocument),
		errors.Is(err, apperr.ErrInvalidPage):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrCorruptSnapshot):
		writeJSON(w, http.StatusBadRequest, errorBody("content is not a valid page snapshot"))
	case errors.Is(err, pageservice.ErrInvalidImage):
		writeJSON(w, http.StatusBadRequest, errorBody("image must be a PNG"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	default:
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents with stored pages
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents(r.Context())
	if err != nil {
		writeServiceError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs})
}

// ListPages handles GET /api/notes/{id}/pages.
//
//	@Summary		List the stored pages of a document
//	@Tags			pages
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Success		200	{object}	PageListResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	list, err := h.svc.ListPages(r.Context(), id)
	if err != nil {
		writeServiceError(w, "list pages", err, slog.String("document_id", id))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetPage handles GET /api/notes/{id}/pages/{n}.
//
//	@Summary		Get one page of a document
//	@Tags			pages
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Param			n	path		int		true	"Page number (1-10)"
//	@Success		200	{object}	PageDetail
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pages/{n} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	id, n, ok := pageParams(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("page number must be an integer"))
		return
	}
	page, err := h.svc.GetPage(r.Context(), id, n)
	if err != nil {
		writeServiceError(w, "get page", err, slog.String("document_id", id), slog.Int("page", n))
		return
	}
	w.Header().Set("ETag", `"`+page.Checksum+`"`)
	writeJSON(w, http.StatusOK, page)
}

// PutPage handles PUT /api/notes/{id}/pages/{n}.
//
//	@Summary		Store a page, last write wins unless If-Match is sent
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string			true	"Document id"
//	@Param			n			path		int				true	"Page number (1-10)"
//	@Param			If-Match	header		string			false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		PutPageRequest	true	"Serialized page snapshot"
//	@Success		200			{object}	PageDetail
//	@Success		201			{object}	PageDetail
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pages/{n} [put]
func (h *Handler) PutPage(w http.ResponseWriter, r *http.Request) {
	id, n, ok := pageParams(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("page number must be an integer"))
		return
	}
	var req PutPageRequest
	if !decodeJSON(w, r, maxPageBytes, &req) {
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	page, created, err := h.svc.PutPage(r.Context(), id, n, []byte(req.Content), ifMatch)
	if err != nil {
		writeServiceError(w, "put page", err, slog.String("document_id", id), slog.Int("page", n))
		return
	}

	status, kind := http.StatusOK, "updated"
	if created {
		status, kind = http.StatusCreated, "created"
	}
	h.publish(kind, id, n)
	w.Header().Set("ETag", checksum.ETag([]byte(req.Content)))
	writeJSON(w, status, page)
}

// GetText handles GET /api/notes/{id}/pages/{n}/text.
//
//	@Summary		Get the recognized text of a page
//	@Tags			pages
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Param			n	path		int		true	"Page number (1-10)"
//	@Success		200	{object}	TextResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pages/{n}/text [get]
func (h *Handler) GetText(w http.ResponseWriter, r *http.Request) {
	id, n, ok := pageParams(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("page number must be an integer"))
		return
	}
	text, err := h.svc.GetText(r.Context(), id, n)
	if err != nil {
		writeServiceError(w, "get text", err, slog.String("document_id", id), slog.Int("page", n))
		return
	}
	writeJSON(w, http.StatusOK, TextResponse{DocumentID: id, Number: n, Text: text})
}

// PutText handles PUT /api/notes/{id}/pages/{n}/text.
//
//	@Summary		Store text recognized on a page
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Document id"
//	@Param			n		path		int				true	"Page number (1-10)"
//	@Param			body	body		PutTextRequest	true	"Recognized text"
//	@Success		200		{object}	TextResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pages/{n}/text [put]
func (h *Handler) PutText(w http.ResponseWriter, r *http.Request) {
	id, n, ok := pageParams(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("page number must be an integer"))
		return
	}
	var req PutTextRequest
	if !decodeJSON(w, r, 1<<20, &req) {
		return
	}
	if err := h.svc.SetText(r.Context(), id, n, req.Text); err != nil {
		writeServiceError(w, "put text", err, slog.String("document_id", id), slog.Int("page", n))
		return
	}
	h.publish("text", id, n)
	writeJSON(w, http.StatusOK, TextResponse{DocumentID: id, Number: n, Text: strings.TrimSpace(req.Text)})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across recognized page text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
