// Package testutil provides shared test helpers for page stores and databases.
package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/starford/notecanvas/internal/index"
	"github.com/starford/notecanvas/internal/storage"
	"github.com/starford/notecanvas/internal/surface"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notecanvas-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary data directory with a storage.FS on it.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Snapshot returns a serialized 100x100 page holding n short pen strokes.
func Snapshot(t *testing.T, n int) string {
	t.Helper()
	doc := surface.Document{Width: 100, Height: 100, Background: "#ffffffff"}
	for i := range n {
		y := float64(10 + i)
		doc.Strokes = append(doc.Strokes, surface.Stroke{
			ID:     fmt.Sprintf("s%d", i+1),
			Tool:   surface.ToolPen,
			Width:  2,
			Color:  "#000000ff",
			Cap:    "round",
			Points: []surface.Point{{X: 10, Y: y}, {X: 50, Y: y}},
		})
	}
	content, err := surface.Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	return content
}
