package index

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/notecanvas/internal/apperr"
	"github.com/starford/notecanvas/internal/storage"
)

const twoStrokes = `{"version":1,"width":100,"height":100,"background":"#ffffffff","strokes":[` +
	`{"id":"a","tool":"pen","width":2,"color":"#000000ff","cap":"round","points":[{"x":1,"y":1},{"x":2,"y":2}]},` +
	`{"id":"b","tool":"pen","width":2,"color":"#000000ff","cap":"round","points":[{"x":3,"y":3},{"x":4,"y":4}]}]}`

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "notecanvas-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages`).Scan(&count); err != nil {
		t.Fatalf("pages table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM page_text`).Scan(&count); err != nil {
		t.Fatalf("page_text table missing: %v", err)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := PageRow{Path: "doc/page-01.json", DocumentID: "doc", Number: 1, Checksum: "abc123", Size: 10, Strokes: 2}
	if err := db.UpsertPage(row); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	cs, err := db.GetChecksum("doc/page-01.json")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "doc/page-01.json", DocumentID: "doc", Number: 1, Checksum: "1", Strokes: 1})
	_ = db.UpsertPage(PageRow{Path: "doc/page-01.json", DocumentID: "doc", Number: 1, Checksum: "2", Strokes: 5})

	p, err := db.GetPage("doc", 1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if p.Checksum != "2" || p.Strokes != 5 {
		t.Errorf("page = %+v", p)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetPage("doc", 4); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	cs, err := db.GetChecksum("doc/page-04.json")
	if err != nil || cs != "" {
		t.Errorf("GetChecksum = %q, %v", cs, err)
	}
}

func TestListPagesAndDocuments(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()
	_ = db.UpsertPage(PageRow{Path: "a/page-02.json", DocumentID: "a", Number: 2, Checksum: "x", UpdatedAt: now})
	_ = db.UpsertPage(PageRow{Path: "a/page-01.json", DocumentID: "a", Number: 1, Checksum: "y", UpdatedAt: now})
	_ = db.UpsertPage(PageRow{Path: "b/page-05.json", DocumentID: "b", Number: 5, Checksum: "z", UpdatedAt: now.Add(time.Minute)})

	pages, err := db.ListPages("a")
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 2 || pages[0].Number != 1 || pages[1].Number != 2 {
		t.Errorf("pages = %+v", pages)
	}

	docs, err := db.Documents()
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "b" || docs[0].Pages != 5 || docs[1].Pages != 2 {
		t.Errorf("documents = %+v", docs)
	}
	if docs[0].UpdatedAt.IsZero() {
		t.Error("document updated_at not parsed")
	}
}

func TestDeletePage_RemovesText(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "doc/page-01.json", DocumentID: "doc", Number: 1, Checksum: "x"})
	_ = db.SetText("doc", 1, "vanishing words")

	if err := db.DeletePage("doc/page-01.json"); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	if cs, _ := db.GetChecksum("doc/page-01.json"); cs != "" {
		t.Errorf("deleted page still has checksum %q", cs)
	}
	if text, _ := db.GetText("doc", 1); text != "" {
		t.Errorf("text survived delete: %q", text)
	}
	if err := db.DeletePage("doc/page-09.json"); err != nil {
		t.Errorf("deleting an unknown page: %v", err)
	}
}

func TestSetTextAndSearch(t *testing.T) {
	db := testDB(t)
	if err := db.SetText("doc", 2, "the quick uniqueword fox"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if err := db.SetText("doc", 2, "replaced uniqueword text"); err != nil {
		t.Fatalf("SetText replace: %v", err)
	}
	text, err := db.GetText("doc", 2)
	if err != nil || text != "replaced uniqueword text" {
		t.Errorf("GetText = %q, %v", text, err)
	}

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != "doc" || results[0].Number != 2 {
		t.Errorf("search results = %+v, want 1 hit for doc page 2", results)
	}
}

func TestSync_IndexesAndRemoves(t *testing.T) {
	db := testDB(t)
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Write("doc/page-01.json", []byte(twoStrokes))
	_ = store.Write("doc/page-02.json", []byte("corrupt"))
	_ = db.UpsertPage(PageRow{Path: "gone/page-01.json", DocumentID: "gone", Number: 1, Checksum: "old"})

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	p, err := db.GetPage("doc", 1)
	if err != nil || p.Strokes != 2 {
		t.Errorf("page 1 = %+v, %v", p, err)
	}
	p, err = db.GetPage("doc", 2)
	if err != nil || p.Strokes != 0 {
		t.Errorf("corrupt page should be indexed with zero strokes: %+v, %v", p, err)
	}
	if cs, _ := db.GetChecksum("gone/page-01.json"); cs != "" {
		t.Error("stale entry not removed")
	}
}

func TestStartResync(t *testing.T) {
	db := testDB(t)
	store, _ := storage.NewFS(t.TempDir())

	r, err := StartResync("", db, store, quietLogger())
	if err != nil || r != nil {
		t.Errorf("empty schedule = %v, %v; want disabled", r, err)
	}
	r.Stop()

	if _, err := StartResync("not a schedule", db, store, quietLogger()); err == nil {
		t.Error("invalid schedule should fail")
	}

	r, err = StartResync("@every 1h", db, store, quietLogger())
	if err != nil {
		t.Fatalf("StartResync: %v", err)
	}
	r.Stop()
}
