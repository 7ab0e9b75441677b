// Package history keeps per-page undo stacks of serialized surface snapshots.
package history

import (
	"sync"

	"github.com/starford/notecanvas/internal/checksum"
)

// DefaultLimit bounds the number of snapshots kept per page.
const DefaultLimit = 100

type stack struct {
	entries []string
	digests []string
	pointer int
}

// Manager owns one undo stack per page. It is safe for concurrent use.
//
// Each stack is an ordered sequence of snapshots plus a pointer that is -1
// iff the sequence is empty. Consecutive entries always differ; equality is
// decided by content digest. There is no redo: capturing while the pointer is
// behind the end discards everything after it.
type Manager struct {
	limit int

	mu    sync.Mutex
	pages map[int]*stack
}

// NewManager creates a Manager keeping at most limit snapshots per page.
// A non-positive limit selects DefaultLimit.
func NewManager(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{
		limit: limit,
		pages: make(map[int]*stack),
	}
}

func (m *Manager) stackFor(page int) *stack {
	s, ok := m.pages[page]
	if !ok {
		s = &stack{pointer: -1}
		m.pages[page] = s
	}
	return s
}

// Capture records snapshot for page.
//
// An initial capture replaces the page's stack with a single entry and is
// never compared against earlier state. Any other capture identical to the
// entry at the pointer is a no-op. recorded reports whether the stack changed;
// canUndo reports whether the pointer is now past the first entry.
func (m *Manager) Capture(page int, snapshot string, initial bool) (recorded, canUndo bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	digest := checksum.String(snapshot)

	if initial {
		m.pages[page] = &stack{
			entries: []string{snapshot},
			digests: []string{digest},
			pointer: 0,
		}
		return true, false
	}

	s := m.stackFor(page)
	if s.pointer >= 0 && s.digests[s.pointer] == digest {
		return false, s.pointer > 0
	}

	// Branch overwrite.
	s.entries = s.entries[:s.pointer+1]
	s.digests = s.digests[:s.pointer+1]

	s.entries = append(s.entries, snapshot)
	s.digests = append(s.digests, digest)
	s.pointer = len(s.entries) - 1

	if over := len(s.entries) - m.limit; over > 0 {
		s.entries = append([]string(nil), s.entries[over:]...)
		s.digests = append([]string(nil), s.digests[over:]...)
		s.pointer -= over
	}

	return true, s.pointer > 0
}

// Undo steps the page's pointer back by one and returns the snapshot there.
// ok is false when the pointer is already at the oldest entry or the page
// has no history.
func (m *Manager) Undo(page int) (snapshot string, ok, canUndo bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.pages[page]
	if !exists || s.pointer <= 0 {
		return "", false, false
	}
	s.pointer--
	return s.entries[s.pointer], true, s.pointer > 0
}

// CanUndo reports whether Undo would return a snapshot for page.
func (m *Manager) CanUndo(page int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.pages[page]
	return ok && s.pointer > 0
}

// Current returns the snapshot at the page's pointer.
func (m *Manager) Current(page int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.pages[page]
	if !ok || s.pointer < 0 {
		return "", false
	}
	return s.entries[s.pointer], true
}

// Len returns the number of stored snapshots for page.
func (m *Manager) Len(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.pages[page]; ok {
		return len(s.entries)
	}
	return 0
}

// Pointer returns the page's pointer, -1 when it has no history.
func (m *Manager) Pointer(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.pages[page]; ok {
		return s.pointer
	}
	return -1
}

// Entries returns a copy of the page's snapshots, oldest first.
func (m *Manager) Entries(page int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.pages[page]
	if !ok {
		return nil
	}
	return append([]string(nil), s.entries...)
}

// Reset drops the page's history.
func (m *Manager) Reset(page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, page)
}
