package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/starford/notecanvas/internal/editor"
	"github.com/starford/notecanvas/internal/surface"
	"github.com/starford/notecanvas/internal/surface/raster"
)

// ImageUploader stores an exported page image remotely.
type ImageUploader interface {
	UploadImage(ctx context.Context, documentID string, page int, png []byte) error
}

// Report summarizes a run.
type Report struct {
	Steps  int          `json:"steps"`
	Failed int          `json:"failed"`
	State  editor.State `json:"state"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock used by wait steps.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Runner) { r.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithUploader makes export steps also upload the image.
func WithUploader(u ImageUploader) Option {
	return func(r *Runner) { r.uploader = u }
}

// Runner plays scripts against one editor session.
type Runner struct {
	ctl      *editor.Controller
	surf     *surface.Surface
	clock    clockwork.Clock
	logger   *slog.Logger
	uploader ImageUploader
}

// NewRunner creates a runner for the controller editing surf.
func NewRunner(ctl *editor.Controller, surf *surface.Surface, opts ...Option) *Runner {
	r := &Runner{
		ctl:    ctl,
		surf:   surf,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run opens the script's start page and plays every step. A failing step is
// logged and counted; the run continues with the next step. Only a failure
// to open the start page or a cancelled ctx stops the run.
func (r *Runner) Run(ctx context.Context, s *Script) (*Report, error) {
	if err := r.ctl.Open(ctx, s.Page); err != nil {
		return nil, fmt.Errorf("script: open page %d: %w", s.Page, err)
	}

	rep := &Report{}
	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := &s.Steps[i]
		rep.Steps++
		if err := r.step(ctx, step); err != nil {
			rep.Failed++
			r.logger.Warn("script: step failed",
				slog.Int("step", i+1),
				slog.String("action", step.Name()),
				slog.String("error", err.Error()))
			continue
		}
		r.logger.Debug("script: step done", slog.Int("step", i+1), slog.String("action", step.Name()))
	}

	r.ctl.Flush()
	rep.State = r.ctl.State()
	return rep, nil
}

func (r *Runner) step(ctx context.Context, s *Step) error {
	switch {
	case s.Tool != "":
		return r.ctl.SetTool(ctx, surface.Tool(s.Tool))
	case len(s.Stroke) > 0:
		r.stroke(s.Stroke)
		return nil
	case s.Wait != "":
		d, err := time.ParseDuration(s.Wait)
		if err != nil {
			return err
		}
		select {
		case <-r.clock.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case s.Undo:
		if !r.ctl.Undo(ctx) {
			r.logger.Debug("script: nothing to undo")
		}
		return nil
	case s.Reload:
		return r.ctl.Reload(ctx)
	case s.ResetView:
		r.surf.ResetViewport()
		return nil
	case s.Page != 0:
		return r.ctl.SwitchToPage(ctx, s.Page)
	case s.Next:
		return r.ctl.NextPage(ctx)
	case s.Prev:
		return r.ctl.PrevPage(ctx)
	case s.AddPage:
		return r.ctl.AddPage(ctx)
	case s.Save:
		return r.ctl.Save(ctx)
	case s.Autosave:
		return r.ctl.Autosave(ctx)
	case s.ReadAloud:
		return r.ctl.StartAccessoryPlayback(ctx)
	case s.Pause:
		return r.ctl.PausePlayback(ctx)
	case s.Stop:
		r.ctl.StopPlayback(ctx)
		return nil
	case s.Export != "":
		return r.export(ctx, s.Export)
	}
	return errOneAction
}

// stroke replays a pointer drag through the given points.
func (r *Runner) stroke(points [][2]float64) {
	r.surf.PointerDown(points[0][0], points[0][1])
	for _, p := range points[1:] {
		r.surf.PointerMove(p[0], p[1])
	}
	last := points[len(points)-1]
	r.surf.PointerUp(last[0], last[1])
}

func (r *Runner) export(ctx context.Context, path string) error {
	img, err := r.surf.Flatten()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("script: create export: %w", err)
	}
	if err := raster.WritePNG(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("script: close export: %w", err)
	}

	if r.uploader == nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("script: read export: %w", err)
	}
	return r.uploader.UploadImage(ctx, r.ctl.DocumentID(), r.ctl.State().ActivePage, data)
}
