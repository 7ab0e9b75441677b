package script

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/starford/notecanvas/internal/editor"
	"github.com/starford/notecanvas/internal/pages"
	"github.com/starford/notecanvas/internal/surface"
	"github.com/starford/notecanvas/internal/surface/raster"
	pkgconfig "github.com/starford/notecanvas/pkg/config"
)

type memGateway struct {
	mu    sync.Mutex
	pages map[int]string
}

func (g *memGateway) LoadPage(_ context.Context, _ string, page int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pages[page], nil
}

func (g *memGateway) SavePage(_ context.Context, _ string, page int, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pages[page] = content
	return nil
}

func (g *memGateway) strokes(t *testing.T, page int) int {
	t.Helper()
	g.mu.Lock()
	content := g.pages[page]
	g.mu.Unlock()
	sum, err := surface.Summarize([]byte(content))
	if err != nil {
		t.Fatalf("page %d: %v", page, err)
	}
	return sum.Strokes
}

type uploads struct {
	mu    sync.Mutex
	pages []int
}

func (u *uploads) UploadImage(_ context.Context, _ string, page int, data []byte) error {
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pages = append(u.pages, page)
	return nil
}

func newRunner(t *testing.T, opts ...Option) (*Runner, *memGateway) {
	t.Helper()
	surf, err := surface.New(raster.New(), surface.WithSize(200, 100))
	if err != nil {
		t.Fatal(err)
	}
	gw := &memGateway{pages: map[int]string{}}
	store := pages.NewStore(gw, "doc", pages.DefaultMaxPages, nil)
	ctl := editor.New("doc", surf, store, editor.WithCoalesceWindow(0))
	t.Cleanup(func() { _ = ctl.Close() })
	return NewRunner(ctl, surf, opts...), gw
}

func parse(t *testing.T, src string) *Script {
	t.Helper()
	var s Script
	if err := pkgconfig.Parse([]byte(src), &s); err != nil {
		t.Fatalf("parse script: %v", err)
	}
	return &s
}

func TestRun_UndoToBlank(t *testing.T) {
	r, _ := newRunner(t)
	s := parse(t, `
steps:
  - stroke: [[10, 10], [40, 40]]
  - stroke: [[60, 10], [90, 40]]
  - undo: true
  - undo: true
`)
	rep, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Steps != 4 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if rep.State.CanUndo {
		t.Error("two undos after two strokes should reach the floor")
	}
	if n := len(r.surf.Strokes()); n != 0 {
		t.Errorf("strokes on surface = %d, want 0", n)
	}
}

func TestRun_ReloadDiscardsUnsavedStrokes(t *testing.T) {
	r, gw := newRunner(t)
	s := parse(t, `
steps:
  - stroke: [[10, 10], [40, 40]]
  - save: true
  - stroke: [[60, 10], [90, 40]]
  - reload: true
`)
	rep, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != 0 {
		t.Errorf("failed steps = %d", rep.Failed)
	}
	if n := len(r.surf.Strokes()); n != 1 {
		t.Errorf("strokes after reload = %d, want the saved 1", n)
	}
	if rep.State.CanUndo {
		t.Error("reload should reseed history")
	}
	if got := gw.strokes(t, 1); got != 1 {
		t.Errorf("stored strokes = %d, want 1", got)
	}
}

func TestRun_ResetView(t *testing.T) {
	const pan = `
steps:
  - tool: pan
  - stroke: [[50, 10], [50, 60]]
`
	r, _ := newRunner(t)
	if _, err := r.Run(context.Background(), parse(t, pan)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.surf.Viewport() == surface.Identity {
		t.Fatal("pan drag should move the viewport")
	}

	r, _ = newRunner(t)
	rep, err := r.Run(context.Background(), parse(t, pan+"  - reset_view: true\n"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != 0 {
		t.Errorf("failed steps = %d", rep.Failed)
	}
	if v := r.surf.Viewport(); v != surface.Identity {
		t.Errorf("viewport = %+v, want identity", v)
	}
}

func TestRun_PagesAndSave(t *testing.T) {
	r, gw := newRunner(t)
	s := parse(t, `
page: 2
steps:
  - tool: marker
  - stroke: [[10, 10], [40, 40], [50, 60]]
  - next: true
  - stroke: [[5, 5], [15, 15]]
  - save: true
  - prev: true
`)
	rep, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != 0 {
		t.Errorf("failed steps = %d", rep.Failed)
	}
	if rep.State.ActivePage != 2 || rep.State.TotalPages != 3 || rep.State.Tool != surface.ToolMarker {
		t.Errorf("state = %+v", rep.State)
	}
	if got := gw.strokes(t, 3); got != 1 {
		t.Errorf("page 3 strokes = %d, want 1", got)
	}
	if n := len(r.surf.Strokes()); n != 1 {
		t.Errorf("page 2 on surface has %d strokes, want 1", n)
	}
}

func TestRun_FailedStepsAreCounted(t *testing.T) {
	r, _ := newRunner(t)
	s := parse(t, `
steps:
  - read_aloud: true
  - pause: true
  - stroke: [[10, 10], [20, 20]]
`)
	rep, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != 1 {
		t.Errorf("failed = %d, want 1 (read aloud is not configured)", rep.Failed)
	}
	if !rep.State.CanUndo {
		t.Error("the stroke after the failures should still be recorded")
	}
}

func TestRun_ExportUploads(t *testing.T) {
	up := &uploads{}
	r, _ := newRunner(t, WithUploader(up))
	out := filepath.Join(t.TempDir(), "page.png")
	s := parse(t, `
page: 4
steps:
  - stroke: [[10, 10], [40, 40]]
  - export: `+out+`
`)
	if _, err := r.Run(context.Background(), s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("export missing: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil || cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("export = %+v, %v", cfg, err)
	}
	if len(up.pages) != 1 || up.pages[0] != 4 {
		t.Errorf("uploads = %v", up.pages)
	}
}

func TestRun_WaitUsesClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, _ := newRunner(t, WithClock(clock))
	s := parse(t, "steps:\n  - wait: 5s\n")

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), s)
		done <- err
	}()

	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait step did not finish after the clock advanced")
	}
}

func TestRun_CancelledWait(t *testing.T) {
	r, _ := newRunner(t, WithClock(clockwork.NewFakeClock()))
	s := parse(t, "steps:\n  - wait: 1h\n  - stroke: [[1, 1], [2, 2]]\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	if _, err := r.Run(ctx, s); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no steps":        "page: 1\n",
		"two actions":     "steps:\n  - undo: true\n    save: true\n",
		"reload and undo": "steps:\n  - reload: true\n    undo: true\n",
		"empty step":      "steps:\n  - {}\n",
		"unknown tool":    "steps:\n  - tool: crayon\n",
		"short stroke":    "steps:\n  - stroke: [[1, 1]]\n",
		"bad wait":        "steps:\n  - wait: soon\n",
		"negative wait":   "steps:\n  - wait: -1s\n",
		"negative page":   "page: -2\nsteps:\n  - undo: true\n",
		"negative switch": "steps:\n  - page: -1\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			var s Script
			if err := pkgconfig.Parse([]byte(src), &s); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("REPLAY_DOC", "lecture-3")
	path := filepath.Join(t.TempDir(), "replay.yaml")
	src := "document: ${REPLAY_DOC}\nsteps:\n  - add_page: true\n  - autosave: true\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Document != "lecture-3" || s.Page != 1 || len(s.Steps) != 2 {
		t.Errorf("script = %+v", s)
	}
	if s.Steps[0].Name() != "add_page" || s.Steps[1].Name() != "autosave" {
		t.Errorf("step names = %s, %s", s.Steps[0].Name(), s.Steps[1].Name())
	}
}
