// Package pages tracks the page slots of one document and moves their content
// to and from the persistence gateway.
package pages

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/notecanvas/internal/apperr"
)

// DefaultMaxPages is the page ceiling per document.
const DefaultMaxPages = 10

// Gateway loads and saves page content. A blank or missing page loads as "".
type Gateway interface {
	LoadPage(ctx context.Context, documentID string, page int) (string, error)
	SavePage(ctx context.Context, documentID string, page int, content string) error
}

type slot struct {
	loaded    bool
	persisted string

	inflight int
	idle     chan struct{} // closed when inflight drops to zero

	issued  uint64
	applied uint64
}

// Store holds the page slots of one document.
//
// Loads of a page wait for that page's in-flight saves, so a page saved on
// the way out is read back with the saved content. Every save takes a
// per-page sequence token; a completion older than one already applied is
// ignored when updating the persisted copy.
type Store struct {
	gw         Gateway
	documentID string
	maxPages   int
	logger     *slog.Logger

	mu    sync.Mutex
	total int
	slots map[int]*slot

	loads singleflight.Group
}

// NewStore creates a store for documentID holding at most maxPages pages.
func NewStore(gw Gateway, documentID string, maxPages int, logger *slog.Logger) *Store {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		gw:         gw,
		documentID: documentID,
		maxPages:   maxPages,
		logger:     logger,
		total:      1,
		slots:      make(map[int]*slot),
	}
}

// DocumentID returns the document the store serves.
func (s *Store) DocumentID() string { return s.documentID }

// MaxPages returns the page ceiling.
func (s *Store) MaxPages() int { return s.maxPages }

// Total returns the number of pages in the document.
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// SetTotal sets the page count, clamped to [1, MaxPages].
func (s *Store) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = max(1, min(n, s.maxPages))
}

// Add appends a page and returns its number.
func (s *Store) Add() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total >= s.maxPages {
		return 0, fmt.Errorf("pages: %w: at most %d pages", apperr.ErrPageLimit, s.maxPages)
	}
	s.total++
	return s.total, nil
}

// Ensure validates page and grows the page count to include it.
func (s *Store) Ensure(page int) error {
	if page < 1 || page > s.maxPages {
		return fmt.Errorf("pages: %w: %d", apperr.ErrInvalidPage, page)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if page > s.total {
		s.total = page
	}
	return nil
}

func (s *Store) slotLocked(page int) *slot {
	sl, ok := s.slots[page]
	if !ok {
		sl = &slot{}
		s.slots[page] = sl
	}
	return sl
}

// Load fetches the page content after any in-flight saves of the page finish.
// Concurrent loads of one page share a single gateway call.
func (s *Store) Load(ctx context.Context, page int) (string, error) {
	if page < 1 || page > s.maxPages {
		return "", fmt.Errorf("pages: %w: %d", apperr.ErrInvalidPage, page)
	}

	s.mu.Lock()
	idle := s.slotLocked(page).idle
	s.mu.Unlock()
	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// The shared call outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(strconv.Itoa(page), func() (any, error) {
		return s.gw.LoadPage(shared, s.documentID, page)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if res.Err != nil {
		return "", fmt.Errorf("pages: load page %d: %w", page, res.Err)
	}
	content := res.Val.(string)

	s.mu.Lock()
	sl := s.slotLocked(page)
	if sl.inflight == 0 {
		sl.loaded = true
		sl.persisted = content
	}
	s.mu.Unlock()
	return content, nil
}

// Save writes content for page through the gateway.
func (s *Store) Save(ctx context.Context, page int, content string) error {
	return s.PrepareSave(page, content)(ctx)
}

// PrepareSave issues a save: the sequence token is taken and the page is
// marked in flight before it returns, so loads started afterwards wait for
// it. The returned function performs the write and must be called exactly once.
func (s *Store) PrepareSave(page int, content string) func(context.Context) error {
	if page < 1 || page > s.maxPages {
		err := fmt.Errorf("pages: %w: %d", apperr.ErrInvalidPage, page)
		return func(context.Context) error { return err }
	}

	s.mu.Lock()
	sl := s.slotLocked(page)
	sl.issued++
	seq := sl.issued
	if sl.inflight == 0 {
		sl.idle = make(chan struct{})
	}
	sl.inflight++
	s.mu.Unlock()

	return func(ctx context.Context) error {
		return s.complete(ctx, sl, page, seq, content)
	}
}

func (s *Store) complete(ctx context.Context, sl *slot, page int, seq uint64, content string) error {
	err := s.gw.SavePage(ctx, s.documentID, page, content)

	s.mu.Lock()
	sl.inflight--
	if sl.inflight == 0 {
		close(sl.idle)
		sl.idle = nil
	}
	switch {
	case err != nil:
	case seq > sl.applied:
		sl.applied = seq
		sl.loaded = true
		sl.persisted = content
	default:
		s.logger.Debug("pages: ignoring out-of-order save completion",
			slog.Int("page", page),
			slog.Uint64("seq", seq),
			slog.Uint64("applied", sl.applied))
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("pages: save page %d: %w", page, err)
	}
	return nil
}

// Persisted returns the last content known to be stored for page.
func (s *Store) Persisted(page int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[page]
	if !ok || !sl.loaded {
		return "", false
	}
	return sl.persisted, true
}

// Saving reports whether page has saves in flight.
func (s *Store) Saving(page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[page]
	return ok && sl.inflight > 0
}
