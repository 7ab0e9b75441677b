package api

import (
	"github.com/starford/notecanvas/internal/models"
	"github.com/starford/notecanvas/internal/pageservice"
)

// PutPageRequest is the request body for storing a page.
type PutPageRequest struct {
	Content string `json:"content" example:"{\"version\":1,\"width\":800,\"height\":600,\"background\":\"#ffffffff\",\"strokes\":[]}"`
}

// PutTextRequest is the request body for storing recognized text.
type PutTextRequest struct {
	Text string `json:"text" example:"integration by parts" validate:"required"`
}

// TextResponse returns the recognized text of a page.
type TextResponse struct {
	DocumentID string `json:"document_id" example:"math-notes" validate:"required"`
	Number     int    `json:"number" example:"2" validate:"required"`
	Text       string `json:"text" example:"integration by parts"`
}

// PageDetail is the full page response type (aliased from the domain layer).
type PageDetail = pageservice.PageDetail

// PageListResponse lists the stored pages of a document (aliased from the domain layer).
type PageListResponse = pageservice.PageList

// DocumentListResponse wraps the document listing.
type DocumentListResponse struct {
	Documents []models.Document `json:"documents" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.SearchHit `json:"results" validate:"required"`
}

// ImageUploadResponse is returned after a successful page image upload.
type ImageUploadResponse struct {
	DocumentID string `json:"document_id" example:"math-notes" validate:"required"`
	Number     int    `json:"number" example:"2" validate:"required"`
	Size       int64  `json:"size" example:"12345" validate:"required"`
	URL        string `json:"url" example:"/api/notes/math-notes/pages/2/image" validate:"required"`
}
