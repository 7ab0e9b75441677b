package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/starford/notecanvas/internal/accessory"
	"github.com/starford/notecanvas/internal/editor"
	"github.com/starford/notecanvas/internal/gateway"
	"github.com/starford/notecanvas/internal/models"
	"github.com/starford/notecanvas/internal/pages"
	"github.com/starford/notecanvas/internal/script"
	"github.com/starford/notecanvas/internal/surface"
	"github.com/starford/notecanvas/internal/surface/raster"
)

// Replay plays s as an editing session against the page service at
// cfg.Editor.BaseURL and returns the run report.
func Replay(ctx context.Context, s *script.Script, opts ...Option) (*script.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg, logger := app.config, app.logger
	ed := cfg.Editor

	if s.Document == "" {
		return nil, errors.New("replay: script has no document")
	}

	creds := gateway.NewCredentials(ed.Token)
	gw := gateway.New(ed.BaseURL, gateway.WithTokenSource(creds))

	total, err := gw.PageCount(ctx, s.Document)
	if err != nil {
		return nil, fmt.Errorf("replay: count pages: %w", err)
	}
	store := pages.NewStore(gw, s.Document, models.MaxPages, logger)
	store.SetTotal(total)

	surf, err := surface.New(raster.New(),
		surface.WithSize(ed.Width, ed.Height),
		surface.WithSwipeThreshold(ed.SwipeThreshold))
	if err != nil {
		return nil, fmt.Errorf("replay: create surface: %w", err)
	}

	editorOpts := []editor.Option{
		editor.WithLogger(logger),
		editor.WithNotifier(editor.LogNotifier{Logger: logger}),
		editor.WithCoalesceWindow(ed.CoalesceWindow),
		editor.WithHistoryLimit(ed.HistoryLimit),
		editor.WithTextSink(gw),
	}
	if acc := cfg.Accessory; acc.Enabled() {
		voice, err := acc.VoiceConfig()
		if err != nil {
			return nil, err
		}
		editorOpts = append(editorOpts,
			editor.WithRecognizer(accessory.NewOCRClient(acc.OCRURL, acc.Timeout, creds)),
			editor.WithSynthesizer(accessory.NewSpeechClient(acc.TTSURL, acc.Timeout, creds)),
			editor.WithPlayer(&accessory.CommandPlayer{Command: acc.Player, Args: acc.PlayerArgs, Logger: logger}),
			editor.WithVoice(voice),
		)
	}

	ctl := editor.New(s.Document, surf, store, editorOpts...)
	defer func() {
		if err := ctl.Close(); err != nil {
			logger.Warn("replay: close editor", slog.String("error", err.Error()))
		}
	}()

	if ed.Autosave != "" {
		autosave := cron.New()
		if _, err := autosave.AddFunc(ed.Autosave, func() {
			if err := ctl.Autosave(ctx); err != nil {
				logger.Warn("replay: autosave failed", slog.String("error", err.Error()))
			}
		}); err != nil {
			return nil, fmt.Errorf("replay: invalid autosave schedule %q: %w", ed.Autosave, err)
		}
		autosave.Start()
		defer func() { <-autosave.Stop().Done() }()
	}

	logger.Info("replay: starting",
		slog.String("document", s.Document),
		slog.Int("pages", store.Total()),
		slog.Int("steps", len(s.Steps)))

	runner := script.NewRunner(ctl, surf, script.WithLogger(logger), script.WithUploader(gw))
	rep, err := runner.Run(ctx, s)
	if err != nil {
		return nil, err
	}
	if err := ctl.Save(ctx); err != nil {
		logger.Warn("replay: final save failed", slog.String("error", err.Error()))
	}
	return rep, nil
}
