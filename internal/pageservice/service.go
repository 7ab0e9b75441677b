// Package pageservice coordinates page storage and the page index.
package pageservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/notecanvas/internal/apperr"
	"github.com/starford/notecanvas/internal/checksum"
	"github.com/starford/notecanvas/internal/index"
	"github.com/starford/notecanvas/internal/models"
	"github.com/starford/notecanvas/internal/storage"
	"github.com/starford/notecanvas/internal/surface"
	"github.com/starford/notecanvas/internal/surface/raster"
)

var (
	// ErrInvalidDocument is returned for document ids that cannot name a directory.
	ErrInvalidDocument = errors.New("invalid document id")
	// ErrInvalidImage is returned when an uploaded page image is not a PNG.
	ErrInvalidImage = errors.New("invalid image")
)

// PageDetail is the full representation of a page.
type PageDetail struct {
	DocumentID string    `json:"document_id"`
	Number     int       `json:"number"`
	Content    string    `json:"content"`
	Checksum   string    `json:"checksum"`
	Strokes    int       `json:"strokes"`
	Text       string    `json:"text,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PageListItem is a lightweight item in a list response.
type PageListItem struct {
	Number    int       `json:"number"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	Strokes   int       `json:"strokes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageList lists the stored pages of a document. Total is the highest stored
// page number, which is the page count the editor opens with.
type PageList struct {
	Pages []PageListItem `json:"pages"`
	Total int            `json:"total"`
}

// Service coordinates storage and index operations.
type Service struct {
	store  storage.Provider
	db     *index.DB
	logger *slog.Logger
}

// NewService creates a new page service.
func NewService(store storage.Provider, db *index.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, logger: logger}
}

func validate(documentID string, n int) error {
	if !models.ValidDocumentID(documentID) {
		return fmt.Errorf("pageservice: %w: %q", ErrInvalidDocument, documentID)
	}
	if !models.ValidPage(n) {
		return fmt.Errorf("pageservice: %w: %d", apperr.ErrInvalidPage, n)
	}
	return nil
}

// GetPage reads a page and its recognized text.
func (s *Service) GetPage(_ context.Context, documentID string, n int) (*PageDetail, error) {
	if err := validate(documentID, n); err != nil {
		return nil, err
	}
	data, err := s.store.Read(models.PagePath(documentID, n))
	if err != nil {
		return nil, err
	}
	return s.buildDetail(documentID, n, data)
}

// PutPage stores page content with optional optimistic concurrency: a
// non-empty ifMatch must equal the stored checksum. created reports whether
// the page did not exist before. Non-empty content must be a readable snapshot.
func (s *Service) PutPage(_ context.Context, documentID string, n int, content []byte, ifMatch string) (detail *PageDetail, created bool, err error) {
	if err := validate(documentID, n); err != nil {
		return nil, false, err
	}
	if _, err := surface.Summarize(content); err != nil {
		return nil, false, err
	}

	path := models.PagePath(documentID, n)
	existing, err := s.store.Read(path)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		created = true
		if ifMatch != "" {
			return nil, false, apperr.ErrConflict
		}
	case err != nil:
		return nil, false, err
	case ifMatch != "" && checksum.Sum(existing) != ifMatch:
		return nil, false, apperr.ErrConflict
	}

	if err := s.store.Write(path, content); err != nil {
		return nil, false, err
	}
	if err := index.IndexFile(s.db, path, content, s.logger); err != nil {
		return nil, false, err
	}
	detail, err = s.buildDetail(documentID, n, content)
	if err != nil {
		return nil, false, err
	}
	return detail, created, nil
}

// ListPages returns the indexed pages of a document. An unknown document has
// no pages and a total of zero.
func (s *Service) ListPages(_ context.Context, documentID string) (*PageList, error) {
	if !models.ValidDocumentID(documentID) {
		return nil, fmt.Errorf("pageservice: %w: %q", ErrInvalidDocument, documentID)
	}
	rows, err := s.db.ListPages(documentID)
	if err != nil {
		return nil, err
	}
	out := &PageList{Pages: make([]PageListItem, 0, len(rows))}
	for _, r := range rows {
		out.Pages = append(out.Pages, PageListItem{
			Number:    r.Number,
			Checksum:  r.Checksum,
			Size:      r.Size,
			Strokes:   r.Strokes,
			UpdatedAt: r.UpdatedAt,
		})
		out.Total = max(out.Total, r.Number)
	}
	return out, nil
}

// Documents returns every document with stored pages.
func (s *Service) Documents(_ context.Context) ([]models.Document, error) {
	rows, err := s.db.Documents()
	if err != nil {
		return nil, err
	}
	out := make([]models.Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Document{ID: r.ID, Pages: r.Pages, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

// SetText stores recognized text for a page so it becomes searchable. The
// page itself does not need to be stored yet.
func (s *Service) SetText(_ context.Context, documentID string, n int, text string) error {
	if err := validate(documentID, n); err != nil {
		return err
	}
	return s.db.SetText(documentID, n, strings.TrimSpace(text))
}

// GetText returns the recognized text of a page, or "" when none is stored.
func (s *Service) GetText(_ context.Context, documentID string, n int) (string, error) {
	if err := validate(documentID, n); err != nil {
		return "", err
	}
	return s.db.GetText(documentID, n)
}

// Search finds pages whose recognized text matches query.
func (s *Service) Search(_ context.Context, query string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchHit, 0, len(results))
	for _, r := range results {
		out = append(out, models.SearchHit{DocumentID: r.DocumentID, Number: r.Number, Snippet: r.Snippet})
	}
	return out, nil
}

// PutImage stores a rendered PNG of a page. The data must decode as PNG.
func (s *Service) PutImage(_ context.Context, documentID string, n int, data []byte) error {
	if err := validate(documentID, n); err != nil {
		return err
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("pageservice: %w: not a png: %v", ErrInvalidImage, err)
	}
	return s.store.Write(models.ExportPath(documentID, n), data)
}

// GetImage returns the stored PNG of a page.
func (s *Service) GetImage(_ context.Context, documentID string, n int) ([]byte, error) {
	if err := validate(documentID, n); err != nil {
		return nil, err
	}
	return s.store.Read(models.ExportPath(documentID, n))
}

// RenderPage rasterizes a stored page, stores the PNG as the page image and
// returns it. A page that was never stored renders blank at the default size.
func (s *Service) RenderPage(ctx context.Context, documentID string, n int) ([]byte, error) {
	if err := validate(documentID, n); err != nil {
		return nil, err
	}
	data, err := s.store.Read(models.PagePath(documentID, n))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	var opts []surface.Option
	if len(data) > 0 {
		doc, err := surface.Decode(string(data))
		if err != nil {
			return nil, err
		}
		bg, _ := surface.ParseColor(doc.Background)
		opts = append(opts, surface.WithSize(doc.Width, doc.Height), surface.WithBackground(bg))
	}
	surf, err := surface.New(raster.New(), opts...)
	if err != nil {
		return nil, err
	}
	defer surf.Dispose() //nolint:errcheck
	if err := surf.Load(string(data)); err != nil {
		return nil, err
	}
	img, err := surf.Flatten()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := raster.WritePNG(&buf, img); err != nil {
		return nil, err
	}
	if err := s.PutImage(ctx, documentID, n, buf.Bytes()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) buildDetail(documentID string, n int, data []byte) (*PageDetail, error) {
	detail := &PageDetail{
		DocumentID: documentID,
		Number:     n,
		Content:    string(data),
		Checksum:   checksum.Sum(data),
		UpdatedAt:  time.Now().UTC(),
	}
	if row, err := s.db.GetPage(documentID, n); err == nil {
		detail.Strokes = row.Strokes
		detail.UpdatedAt = row.UpdatedAt
	} else if sum, err := surface.Summarize(data); err == nil {
		detail.Strokes = sum.Strokes
	}
	text, err := s.db.GetText(documentID, n)
	if err != nil {
		return nil, err
	}
	detail.Text = text
	return detail, nil
}
