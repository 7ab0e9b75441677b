// Package editor owns the annotation session of one document: the active page,
// its undo history, saving and the read-aloud accessory.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notecanvas/internal/accessory"
	"github.com/starford/notecanvas/internal/apperr"
	"github.com/starford/notecanvas/internal/history"
	"github.com/starford/notecanvas/internal/surface"
)

// ErrAccessoryUnavailable is returned when read-aloud has no OCR, speech or
// player configured.
var ErrAccessoryUnavailable = errors.New("editor: read aloud is not configured")

// DefaultMaxImageDim bounds the longest side of the image sent for recognition.
const DefaultMaxImageDim = 2000

// PageStore is the page slot bookkeeping the controller drives.
type PageStore interface {
	MaxPages() int
	Total() int
	Add() (int, error)
	Ensure(page int) error
	Load(ctx context.Context, page int) (string, error)
	PrepareSave(page int, content string) func(context.Context) error
}

// TextSink stores recognized page text.
type TextSink interface {
	SaveText(ctx context.Context, documentID string, page int, text string) error
}

// PlaybackState is the read-aloud player state.
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)

// State is the externally visible session state.
type State struct {
	ActivePage   int           `json:"active_page"`
	TotalPages   int           `json:"total_pages"`
	CanUndo      bool          `json:"can_undo"`
	IsSaving     bool          `json:"is_saving"`
	IsConverting bool          `json:"is_converting"`
	Loading      bool          `json:"loading"`
	Dirty        bool          `json:"dirty"`
	Tool         surface.Tool  `json:"tool"`
	Playback     PlaybackState `json:"playback"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock driving capture coalescing.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithCoalesceWindow sets the quiet period before a history capture.
func WithCoalesceWindow(d time.Duration) Option {
	return func(c *Controller) { c.window = d }
}

// WithHistoryLimit caps undo entries per page.
func WithHistoryLimit(n int) Option {
	return func(c *Controller) { c.historyLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithRecognizer sets the OCR client.
func WithRecognizer(r accessory.Recognizer) Option {
	return func(c *Controller) { c.recognizer = r }
}

// WithSynthesizer sets the speech client.
func WithSynthesizer(s accessory.Synthesizer) Option {
	return func(c *Controller) { c.synthesizer = s }
}

// WithPlayer sets the audio player.
func WithPlayer(p accessory.Player) Option {
	return func(c *Controller) { c.player = p }
}

// WithVoice sets the speech voice and rate.
func WithVoice(v accessory.VoiceConfig) Option {
	return func(c *Controller) { c.voice = v }
}

// WithTextSink stores recognized text alongside the page.
func WithTextSink(s TextSink) Option {
	return func(c *Controller) { c.textSink = s }
}

// WithMaxImageDim bounds the recognition image size. Zero keeps full size.
func WithMaxImageDim(n int) Option {
	return func(c *Controller) { c.maxImageDim = n }
}

// Controller coordinates the surface, page store and history of one document.
//
// Only the page that finished loading accepts history captures and saves.
// While a load is outstanding the active page number already points at the
// target, the buffer is blank and mutations are ignored.
type Controller struct {
	documentID string
	surface    *surface.Surface
	pages      PageStore
	history    *history.Manager
	coalescer  *history.Coalescer

	clock        clockwork.Clock
	window       time.Duration
	historyLimit int
	logger       *slog.Logger
	notifier     Notifier
	recognizer   accessory.Recognizer
	synthesizer  accessory.Synthesizer
	player       accessory.Player
	voice        accessory.VoiceConfig
	textSink     TextSink
	maxImageDim  int

	mu sync.Mutex

	active  int
	loaded  int // page whose content is in the buffer, 0 while loading
	loading bool
	loadSeq uint64

	// last page that finished loading, restored if a switch fails
	fallbackPage    int
	fallbackContent string

	tool     surface.Tool
	canUndo  bool
	suppress bool // buffer was replaced by undo; autosave skips until the next capture
	dirty    bool
	editSeq  uint64
	saving   int

	converting bool
	playback   accessory.Playback
	playState  PlaybackState
	playSeq    uint64

	bg     errgroup.Group
	closed bool
}

// New creates a controller for documentID. Call Open to load the first page.
func New(documentID string, surf *surface.Surface, pages PageStore, opts ...Option) *Controller {
	c := &Controller{
		documentID:   documentID,
		surface:      surf,
		pages:        pages,
		window:       history.DefaultWindow,
		historyLimit: history.DefaultLimit,
		logger:       slog.Default(),
		notifier:     NopNotifier{},
		voice:        accessory.DefaultVoice,
		maxImageDim:  DefaultMaxImageDim,
		tool:         surface.ToolPen,
		playState:    PlaybackIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.history = history.NewManager(c.historyLimit)
	c.coalescer = history.NewCoalescer(c.clock, c.window, c.onCapture)

	surf.ConfigureTool(c.tool)
	surf.OnMutation(c.handleMutation)
	surf.OnSwipe(c.handleSwipe)
	return c
}

// DocumentID returns the document being edited.
func (c *Controller) DocumentID() string { return c.documentID }

// History exposes the per-page undo stacks.
func (c *Controller) History() *history.Manager { return c.history }

// State returns a snapshot of the session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{
		ActivePage:   c.active,
		TotalPages:   c.pages.Total(),
		CanUndo:      c.canUndo,
		IsSaving:     c.saving > 0,
		IsConverting: c.converting,
		Loading:      c.loading,
		Dirty:        c.dirty,
		Tool:         c.tool,
		Playback:     c.playState,
	}
}

func (c *Controller) emit(ctx context.Context, event string, data any) {
	c.notifier.Emit(ctx, event, data)
}

func (c *Controller) notify(ctx context.Context, level, msg string) {
	c.notifier.Emit(ctx, EventNotice, Notice{Level: level, Message: msg})
}

// Open loads page as the first active page.
func (c *Controller) Open(ctx context.Context, page int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if page < 1 || page > c.pages.MaxPages() {
		c.mu.Unlock()
		return fmt.Errorf("editor: open page %d: %w", page, apperr.ErrInvalidPage)
	}
	return c.loadLocked(ctx, page)
}

// Reload discards unsaved edits and reads the active page again.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.active == 0 {
		c.mu.Unlock()
		return nil
	}
	c.coalescer.Cancel()
	return c.loadLocked(ctx, c.active)
}

// SwitchToPage makes page active. The page being left is captured and saved
// in the background before the new page is read. Invalid page numbers and
// the current page are ignored.
func (c *Controller) SwitchToPage(ctx context.Context, page int) error {
	c.mu.Lock()
	if c.closed || page < 1 || page > c.pages.MaxPages() || page == c.active {
		c.mu.Unlock()
		return nil
	}
	c.departLocked(ctx)
	return c.loadLocked(ctx, page)
}

// departLocked flushes and saves the page in the buffer. The save is issued
// before it returns and completes in the background.
func (c *Controller) departLocked(ctx context.Context) {
	if c.loaded == 0 || c.loaded != c.active {
		return
	}
	if c.coalescer.TakePending() {
		c.captureLocked()
	}
	page := c.active
	content, err := c.surface.Serialize()
	if err != nil {
		c.logger.Error("editor: serialize page on switch",
			slog.Int("page", page), slog.String("error", err.Error()))
		return
	}
	c.fallbackPage, c.fallbackContent = page, content

	run := c.pages.PrepareSave(page, content)
	saveCtx := context.WithoutCancel(ctx)
	c.saving++
	c.bg.Go(func() error {
		err := run(saveCtx)

		c.mu.Lock()
		c.saving--
		st := c.stateLocked()
		c.mu.Unlock()
		c.emit(saveCtx, EventStateChanged, st)

		if err != nil {
			c.logger.Error("editor: background save failed",
				slog.Int("page", page), slog.String("error", err.Error()))
			c.notify(saveCtx, NoticeError, fmt.Sprintf("Failed to save page %d", page))
		}
		return nil
	})
}

// loadLocked makes page active and reads it. It is called with c.mu held and
// releases it.
func (c *Controller) loadLocked(ctx context.Context, page int) error {
	if err := c.pages.Ensure(page); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("editor: %w", err)
	}
	c.coalescer.Cancel()
	c.active = page
	c.loaded = 0
	c.loading = true
	c.loadSeq++
	seq := c.loadSeq
	c.dirty, c.suppress, c.canUndo = false, false, false
	c.surface.Clear()
	st := c.stateLocked()
	c.mu.Unlock()
	c.emit(ctx, EventStateChanged, st)

	content, err := c.pages.Load(ctx, page)

	c.mu.Lock()
	if seq != c.loadSeq || c.closed {
		c.mu.Unlock()
		c.logger.Debug("editor: discarding stale page load", slog.Int("page", page))
		return nil
	}
	c.loading = false
	if err != nil {
		restored := c.rollbackLocked()
		st := c.stateLocked()
		c.mu.Unlock()

		c.logger.Error("editor: load page",
			slog.Int("page", page),
			slog.Int("restored", restored),
			slog.String("error", err.Error()))
		c.emit(ctx, EventStateChanged, st)
		c.notify(ctx, NoticeError, fmt.Sprintf("Failed to load page %d", page))
		return fmt.Errorf("editor: load page %d: %w", page, err)
	}

	loadErr := c.surface.Load(content)
	c.surface.ConfigureTool(c.tool)
	c.loaded = page
	c.fallbackPage, c.fallbackContent = 0, ""
	if snap, err := c.surface.Serialize(); err == nil {
		_, c.canUndo = c.history.Capture(page, snap, true)
	}
	loadedEv := PageLoaded{Page: page, Strokes: len(c.surface.Strokes()), Corrupt: loadErr != nil}
	st = c.stateLocked()
	c.mu.Unlock()

	c.emit(ctx, EventPageLoaded, loadedEv)
	c.emit(ctx, EventStateChanged, st)
	if loadErr != nil {
		c.logger.Warn("editor: corrupt page content", slog.Int("page", page), slog.String("error", loadErr.Error()))
		c.notify(ctx, NoticeError, fmt.Sprintf("Page %d could not be read and was opened blank", page))
		return fmt.Errorf("editor: load page %d: %w", page, loadErr)
	}
	return nil
}

// rollbackLocked restores the last loaded page after a failed switch and
// returns its number, or 0 when there is none.
func (c *Controller) rollbackLocked() int {
	page := c.fallbackPage
	if page == 0 {
		return 0
	}
	if err := c.surface.Load(c.fallbackContent); err != nil {
		c.logger.Error("editor: restore page", slog.Int("page", page), slog.String("error", err.Error()))
	}
	c.surface.ConfigureTool(c.tool)
	c.active = page
	c.loaded = page
	c.canUndo = c.history.CanUndo(page)
	c.fallbackPage, c.fallbackContent = 0, ""
	return page
}

// NextPage switches to the following page.
func (c *Controller) NextPage(ctx context.Context) error {
	c.mu.Lock()
	target := c.active + 1
	c.mu.Unlock()
	return c.SwitchToPage(ctx, target)
}

// PrevPage switches to the preceding page.
func (c *Controller) PrevPage(ctx context.Context) error {
	c.mu.Lock()
	target := c.active - 1
	c.mu.Unlock()
	return c.SwitchToPage(ctx, target)
}

// AddPage appends a page and switches to it.
func (c *Controller) AddPage(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}

	page, err := c.pages.Add()
	if err != nil {
		if errors.Is(err, apperr.ErrPageLimit) {
			c.notify(ctx, NoticeError, fmt.Sprintf("Maximum of %d pages reached", c.pages.MaxPages()))
		}
		return fmt.Errorf("editor: add page: %w", err)
	}
	return c.SwitchToPage(ctx, page)
}

func (c *Controller) handleMutation(surface.Mutation) {
	c.mu.Lock()
	live := !c.closed && c.loaded != 0 && c.loaded == c.active
	c.mu.Unlock()
	if live {
		c.coalescer.Trigger()
	}
}

func (c *Controller) handleSwipe(dir surface.Direction) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.bg.Go(func() error {
		ctx := context.Background()
		var err error
		if dir == surface.SwipeNext {
			err = c.NextPage(ctx)
		} else {
			err = c.PrevPage(ctx)
		}
		if err != nil {
			c.logger.Debug("editor: swipe navigation", slog.String("direction", dir.String()), slog.String("error", err.Error()))
		}
		return nil
	})
	c.mu.Unlock()
}

func (c *Controller) onCapture() {
	c.mu.Lock()
	if c.closed || !c.captureLocked() {
		c.mu.Unlock()
		return
	}
	st := c.stateLocked()
	c.mu.Unlock()
	c.emit(context.Background(), EventStateChanged, st)
}

// captureLocked records the buffer in the active page's history and reports
// whether a new entry was written.
func (c *Controller) captureLocked() bool {
	if c.loaded == 0 || c.loaded != c.active {
		return false
	}
	snap, err := c.surface.Serialize()
	if err != nil {
		c.logger.Error("editor: serialize for history", slog.Int("page", c.active), slog.String("error", err.Error()))
		return false
	}
	recorded, canUndo := c.history.Capture(c.active, snap, false)
	c.canUndo = canUndo
	if recorded {
		c.dirty = true
		c.suppress = false
		c.editSeq++
	}
	return recorded
}

// Flush runs an armed history capture now and reports whether one ran.
func (c *Controller) Flush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.coalescer.TakePending() {
		return false
	}
	c.captureLocked()
	return true
}

// Undo restores the previous snapshot of the active page.
func (c *Controller) Undo(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || c.loaded == 0 || c.loaded != c.active {
		c.mu.Unlock()
		return false
	}
	if c.coalescer.TakePending() {
		c.captureLocked()
	}
	snap, ok, canUndo := c.history.Undo(c.active)
	c.canUndo = canUndo
	if ok {
		c.surface.Clear()
		c.suppress = true
		if err := c.surface.Load(snap); err != nil {
			c.logger.Error("editor: undo restore", slog.Int("page", c.active), slog.String("error", err.Error()))
		}
		c.surface.ConfigureTool(c.tool)
		if err := c.surface.Render(); err != nil {
			c.logger.Warn("editor: render after undo", slog.String("error", err.Error()))
		}
	}
	st := c.stateLocked()
	c.mu.Unlock()

	c.emit(ctx, EventStateChanged, st)
	return ok
}

// SetTool selects the drawing tool.
func (c *Controller) SetTool(ctx context.Context, tool surface.Tool) error {
	if _, err := surface.ParseTool(string(tool)); err != nil {
		return fmt.Errorf("editor: %w", err)
	}
	c.mu.Lock()
	c.tool = tool
	c.surface.ConfigureTool(tool)
	st := c.stateLocked()
	c.mu.Unlock()

	c.emit(ctx, EventStateChanged, st)
	return nil
}

// Save writes the active page and waits for the result.
func (c *Controller) Save(ctx context.Context) error {
	return c.persist(ctx, false)
}

// Autosave writes the active page when it has edits that were not produced
// by an undo.
func (c *Controller) Autosave(ctx context.Context) error {
	return c.persist(ctx, true)
}

func (c *Controller) persist(ctx context.Context, auto bool) error {
	c.mu.Lock()
	if c.closed || c.loaded == 0 || c.loaded != c.active {
		c.mu.Unlock()
		return nil
	}
	if c.coalescer.TakePending() {
		c.captureLocked()
	}
	if auto && (!c.dirty || c.suppress) {
		c.mu.Unlock()
		return nil
	}
	page := c.active
	content, err := c.surface.Serialize()
	if err != nil {
		c.mu.Unlock()
		c.notify(ctx, NoticeError, fmt.Sprintf("Failed to save page %d", page))
		return fmt.Errorf("editor: save page %d: %w", page, err)
	}
	edit := c.editSeq
	run := c.pages.PrepareSave(page, content)
	c.saving++
	st := c.stateLocked()
	c.mu.Unlock()
	c.emit(ctx, EventStateChanged, st)

	err = run(ctx)

	c.mu.Lock()
	c.saving--
	if err == nil && c.active == page && c.editSeq == edit {
		c.dirty = false
	}
	st = c.stateLocked()
	c.mu.Unlock()
	c.emit(ctx, EventStateChanged, st)

	if err != nil {
		c.logger.Error("editor: save page", slog.Int("page", page), slog.String("error", err.Error()))
		c.notify(ctx, NoticeError, fmt.Sprintf("Failed to save page %d", page))
		return fmt.Errorf("editor: save page %d: %w", page, err)
	}
	c.logger.Info("editor: page saved", slog.Int("page", page), slog.Bool("autosave", auto))
	if !auto {
		c.notify(ctx, NoticeInfo, fmt.Sprintf("Page %d saved", page))
	}
	return nil
}

// StartAccessoryPlayback reads the active page aloud: the page is flattened,
// recognized and synthesized, then played. With audio already loaded it
// toggles pause instead.
func (c *Controller) StartAccessoryPlayback(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.converting {
		c.mu.Unlock()
		return nil
	}
	if c.playback != nil {
		c.mu.Unlock()
		return c.PausePlayback(ctx)
	}
	if c.recognizer == nil || c.synthesizer == nil || c.player == nil {
		c.mu.Unlock()
		c.notify(ctx, NoticeError, "Read aloud is not available")
		return ErrAccessoryUnavailable
	}
	img, err := c.surface.Flatten()
	if err != nil {
		c.mu.Unlock()
		c.notify(ctx, NoticeError, "Failed to read the page aloud")
		return fmt.Errorf("editor: flatten page: %w", err)
	}
	page := c.active
	voice := c.voice
	c.converting = true
	st := c.stateLocked()
	c.mu.Unlock()
	c.emit(ctx, EventStateChanged, st)

	err = c.readAloud(ctx, page, img, voice)

	c.mu.Lock()
	c.converting = false
	st = c.stateLocked()
	c.mu.Unlock()
	c.emit(ctx, EventStateChanged, st)

	if err != nil {
		c.logger.Warn("editor: read aloud", slog.Int("page", page), slog.String("error", err.Error()))
		msg := "Failed to read the page aloud"
		if errors.Is(err, apperr.ErrNoText) {
			msg = "No text found on this page"
		}
		c.notify(ctx, NoticeError, msg)
		return err
	}
	return nil
}

func (c *Controller) readAloud(ctx context.Context, page int, img image.Image, voice accessory.VoiceConfig) error {
	dataURL, err := accessory.ImageDataURL(img, c.maxImageDim)
	if err != nil {
		return fmt.Errorf("editor: encode page %d: %w", page, err)
	}
	text, err := c.recognizer.Recognize(ctx, c.documentID, page, dataURL)
	if err != nil {
		return fmt.Errorf("editor: recognize page %d: %w", page, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("editor: page %d: %w", page, apperr.ErrNoText)
	}
	if c.textSink != nil {
		if err := c.textSink.SaveText(ctx, c.documentID, page, text); err != nil {
			c.logger.Warn("editor: store page text", slog.Int("page", page), slog.String("error", err.Error()))
		}
	}

	c.StopPlayback(ctx)
	audio, err := c.synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		return fmt.Errorf("editor: synthesize page %d: %w", page, err)
	}
	pb, err := c.player.Play(ctx, audio)
	if err != nil {
		return fmt.Errorf("editor: play page %d: %w", page, err)
	}

	c.mu.Lock()
	c.playSeq++
	seq := c.playSeq
	c.playback = pb
	c.playState = PlaybackPlaying
	c.mu.Unlock()

	go c.watchPlayback(pb, seq)
	return nil
}

func (c *Controller) watchPlayback(pb accessory.Playback, seq uint64) {
	<-pb.Done()

	c.mu.Lock()
	current := c.playSeq == seq
	if current {
		c.playback = nil
		c.playState = PlaybackIdle
	}
	st := c.stateLocked()
	c.mu.Unlock()

	if err := pb.Stop(); err != nil {
		c.logger.Debug("editor: release playback", slog.String("error", err.Error()))
	}
	if current {
		c.emit(context.Background(), EventStateChanged, st)
	}
}

// PausePlayback pauses playing audio or resumes paused audio.
func (c *Controller) PausePlayback(ctx context.Context) error {
	c.mu.Lock()
	pb := c.playback
	if pb == nil {
		c.mu.Unlock()
		return nil
	}
	var err error
	if c.playState == PlaybackPlaying {
		if err = pb.Pause(); err == nil {
			c.playState = PlaybackPaused
		}
	} else {
		if err = pb.Resume(); err == nil {
			c.playState = PlaybackPlaying
		}
	}
	st := c.stateLocked()
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("editor: toggle playback: %w", err)
	}
	c.emit(ctx, EventStateChanged, st)
	return nil
}

// StopPlayback stops and releases any loaded audio.
func (c *Controller) StopPlayback(ctx context.Context) {
	c.mu.Lock()
	pb := c.playback
	c.playback = nil
	c.playSeq++
	changed := c.playState != PlaybackIdle
	c.playState = PlaybackIdle
	st := c.stateLocked()
	c.mu.Unlock()

	if pb != nil {
		if err := pb.Stop(); err != nil {
			c.logger.Warn("editor: stop playback", slog.String("error", err.Error()))
		}
	}
	if changed {
		c.emit(ctx, EventStateChanged, st)
	}
}

// Close stops timers and playback, waits for background saves and releases
// the surface.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.coalescer.Stop()
	c.StopPlayback(context.Background())
	_ = c.bg.Wait()
	return c.surface.Dispose()
}
