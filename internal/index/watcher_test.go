package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/notecanvas/internal/storage"
)

// watcherTestEnv sets up a data dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, *storage.FS, *DB) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorded struct {
	mu     sync.Mutex
	events []string
}

func (r *recorded) callback(kind, doc string, page int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s:%s/%d", kind, doc, page))
}

func (r *recorded) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func TestWatcher_NewPageIndexed(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	_ = os.MkdirAll(filepath.Join(root, "doc"), 0o755)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorded{}
	go Watch(ctx, db, store, quietLogger(), rec.callback)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "doc", "page-01.json"), []byte(twoStrokes), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("doc/page-01.json")
		return cs != ""
	}, "new page not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:doc/1")
	}, "expected created callback for doc page 1")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	_ = os.MkdirAll(filepath.Join(root, "doc"), 0o755)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "doc", "notes.txt"), []byte("hi"), 0o644)
	time.Sleep(300 * time.Millisecond)

	checksums, _ := db.AllChecksums()
	if len(checksums) != 0 {
		t.Errorf("non-page file indexed: %v", checksums)
	}
}

func TestWatcher_NewDocumentDirWatched(t *testing.T) {
	_, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	// Written through storage: mkdir, temp file, rename.
	if err := store.Write("fresh/page-03.json", []byte(twoStrokes)); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		p, err := db.GetPage("fresh", 3)
		return err == nil && p.Strokes == 2
	}, "page in new document dir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	_ = store.Write("doc/page-02.json", []byte(twoStrokes))
	_ = Sync(db, store, quietLogger())

	if cs, _ := db.GetChecksum("doc/page-02.json"); cs == "" {
		t.Fatal("precondition: page should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorded{}
	go Watch(ctx, db, store, quietLogger(), rec.callback)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(root, "doc", "page-02.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("doc/page-02.json")
		return cs == "" && rec.has("deleted:doc/2")
	}, "deleted page still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	_ = store.Write("doc/page-01.json", []byte(twoStrokes))
	_ = Sync(db, store, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(root, "doc", "page-01.json"), filepath.Join(root, "doc", "page-04.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("doc/page-01.json")
		newCS, _ := db.GetChecksum("doc/page-04.json")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old page should be removed and new page indexed")
}
