package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxUploadBytes = 50 << 20 // 50 MB

// PutImage handles POST /api/notes/{id}/pages/{n}/image (multipart/form-data,
// field "file").
//
//	@Summary		Upload a rendered PNG of a page
//	@Tags			pages
//	@Accept			mpfd
//	@Produce		json
//	@Param			id		path		string	true	"Document id"
//	@Param			n		path		int		true	"Page number (1-10)"
//	@Param			file	formData	file	true	"PNG image"
//	@Success		201		{object}	ImageUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pages/{n}/image [post]
func (h *Handler) PutImage(w http.ResponseWriter, r *http.Request) {
	id, n, ok := pageParams(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("page number must be an integer"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	if err := h.svc.PutImage(r.Context(), id, n, data); err != nil {
		writeServiceError(w, "put image", err, slog.String("document_id", id), slog.Int("page", n))
		return
	}

	writeJSON(w, http.StatusCreated, ImageUploadResponse{
		DocumentID: id,
		Number:     n,
		Size:       int64(len(data)),
		URL:        fmt.Sprintf("/api/notes/%s/pages/%d/image", id, n),
	})
}

// GetImage handles GET /api/notes/{id}/pages/{n}/image.
//
//	@Summary		Download the rendered PNG of a page
//	@Tags			pages
//	@Produce		png
//	@Param			id	path		string	true	"Document id"
//	@Param			n	path		int		true	"Page number (1-10)"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pages/{n}/image [get]
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, n, ok := pageParams(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("page number must be an integer"))
		return
	}
	data, err := h.svc.GetImage(r.Context(), id, n)
	if err != nil {
		writeServiceError(w, "get image", err, slog.String("document_id", id), slog.Int("page", n))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, fmt.Sprintf("page-%02d.png", n), time.Time{}, bytes.NewReader(data))
}
