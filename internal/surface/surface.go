// Package surface implements the drawing surface: tool configuration, pointer
// input, the stroke buffer and its serializer. Rendering is delegated to an
// injected Backend.
package surface

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Defaults for a new surface.
const (
	DefaultWidth          = 794
	DefaultHeight         = 1123
	DefaultSwipeThreshold = 100.0

	// MaxDimension bounds the canvas width and height.
	MaxDimension = 10000

	minZoom = 0.1
	maxZoom = 10
)

// DefaultBackground is the page color. The eraser paints with it.
var DefaultBackground = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Viewport maps canvas coordinates to the render target: screen = canvas*Zoom + Offset.
type Viewport struct {
	OffsetX float64
	OffsetY float64
	Zoom    float64
}

// Identity is the unpanned, unzoomed viewport.
var Identity = Viewport{Zoom: 1}

func (v Viewport) toCanvas(x, y float64) Point {
	return Point{X: (x - v.OffsetX) / v.Zoom, Y: (y - v.OffsetY) / v.Zoom}
}

// Backend is the render target a Surface draws into.
type Backend interface {
	Init(width, height int, background color.NRGBA) error
	Draw(strokes []Stroke, vp Viewport) error
	// Image returns a copy of the last drawn frame.
	Image() image.Image
	Dispose() error
}

// MutationKind classifies buffer changes.
type MutationKind string

const (
	StrokeCompleted MutationKind = "stroke.completed"
	ObjectAdded     MutationKind = "object.added"
	ObjectModified  MutationKind = "object.modified"
	ObjectRemoved   MutationKind = "object.removed"
)

// Mutation is emitted after the buffer changed through input or object edits.
type Mutation struct {
	Kind     MutationKind
	StrokeID string
}

// Direction of a page swipe gesture.
type Direction int

const (
	SwipeNext Direction = iota + 1
	SwipePrev
)

func (d Direction) String() string {
	switch d {
	case SwipeNext:
		return "next"
	case SwipePrev:
		return "prev"
	default:
		return "none"
	}
}

// Option configures a Surface.
type Option func(*Surface)

// WithSize sets the canvas size in logical pixels.
func WithSize(width, height int) Option {
	return func(s *Surface) {
		s.width, s.height = width, height
	}
}

// WithBackground sets the page color.
func WithBackground(c color.NRGBA) Option {
	return func(s *Surface) {
		s.background = c
	}
}

// WithSwipeThreshold sets the horizontal drag distance that counts as a page swipe.
func WithSwipeThreshold(px float64) Option {
	return func(s *Surface) {
		s.swipeThreshold = px
	}
}

// WithIDGenerator replaces the stroke id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Surface) {
		s.newID = fn
	}
}

// Surface owns the stroke buffer of the page being edited.
// Listeners are always called without internal locks held.
type Surface struct {
	backend        Backend
	width, height  int
	background     color.NRGBA
	swipeThreshold float64
	newID          func() string

	mu       sync.Mutex
	tool     Tool
	brush    Brush
	strokes  []Stroke
	current  *Stroke
	moved    bool
	viewport Viewport
	pan      *panDrag
	disposed bool

	onMutation []func(Mutation)
	onSwipe    []func(Direction)
}

type panDrag struct {
	startX, startY float64
	origin         Viewport
}

// New creates a surface and initializes its backend.
func New(backend Backend, opts ...Option) (*Surface, error) {
	s := &Surface{
		backend:        backend,
		width:          DefaultWidth,
		height:         DefaultHeight,
		background:     DefaultBackground,
		swipeThreshold: DefaultSwipeThreshold,
		newID:          uuid.NewString,
		viewport:       Identity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.width <= 0 || s.height <= 0 || s.width > MaxDimension || s.height > MaxDimension {
		return nil, fmt.Errorf("surface: invalid size %dx%d", s.width, s.height)
	}
	if err := backend.Init(s.width, s.height, s.background); err != nil {
		return nil, fmt.Errorf("surface: init backend: %w", err)
	}
	s.tool = ToolPen
	s.brush, _ = BrushFor(ToolPen, s.background)
	if err := s.renderLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// OnMutation registers fn for buffer mutations.
func (s *Surface) OnMutation(fn func(Mutation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutation = append(s.onMutation, fn)
}

// OnSwipe registers fn for page swipe gestures made with the pan tool.
func (s *Surface) OnSwipe(fn func(Direction)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSwipe = append(s.onSwipe, fn)
}

// ConfigureTool applies the tool's brush. Switching away from a drawing tool
// drops any stroke in progress.
func (s *Surface) ConfigureTool(tool Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool = tool
	if b, ok := BrushFor(tool, s.background); ok {
		s.brush = b
	}
	if !tool.Draws() {
		s.current = nil
	}
	s.pan = nil
}

// Tool returns the active tool.
func (s *Surface) Tool() Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

// Brush returns the brush applied to new strokes.
func (s *Surface) Brush() Brush {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brush
}

// PointerDown begins a stroke, or a pan drag in pan mode.
// Coordinates are in render target space.
func (s *Surface) PointerDown(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if s.tool == ToolPan {
		s.pan = &panDrag{startX: x, startY: y, origin: s.viewport}
		return
	}
	s.current = &Stroke{
		Tool:   s.tool,
		Width:  s.brush.Width,
		Color:  FormatColor(s.brush.Color),
		Cap:    s.brush.Cap,
		Points: []Point{s.viewport.toCanvas(x, y)},
	}
	s.moved = false
}

// PointerMove extends the stroke in progress or pans the viewport.
func (s *Surface) PointerMove(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if s.pan != nil {
		s.viewport.OffsetX = s.pan.origin.OffsetX + x - s.pan.startX
		s.viewport.OffsetY = s.pan.origin.OffsetY + y - s.pan.startY
		_ = s.renderLocked()
		return
	}
	if s.current == nil {
		return
	}
	s.current.Points = append(s.current.Points, s.viewport.toCanvas(x, y))
	s.moved = true
	_ = s.renderLocked()
}

// PointerUp completes the stroke in progress. A stroke needs at least one
// move to be kept. In pan mode a horizontal drag longer than the swipe
// threshold emits a swipe: dragging left selects the next page.
func (s *Surface) PointerUp(x, y float64) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}

	if s.pan != nil {
		drag := s.pan
		s.pan = nil
		dx := drag.startX - x
		var dir Direction
		if math.Abs(dx) > s.swipeThreshold {
			dir = SwipePrev
			if dx > 0 {
				dir = SwipeNext
			}
		}
		listeners := append([]func(Direction){}, s.onSwipe...)
		s.mu.Unlock()
		if dir != 0 {
			for _, fn := range listeners {
				fn(dir)
			}
		}
		return
	}

	stroke := s.current
	s.current = nil
	if stroke == nil || !s.moved {
		s.mu.Unlock()
		return
	}
	if last := stroke.Points[len(stroke.Points)-1]; s.viewport.toCanvas(x, y) != last {
		stroke.Points = append(stroke.Points, s.viewport.toCanvas(x, y))
	}
	stroke.ID = s.newID()
	s.strokes = append(s.strokes, *stroke)
	_ = s.renderLocked()
	s.emitLocked(Mutation{Kind: StrokeCompleted, StrokeID: stroke.ID})
}

// Wheel zooms around (x, y) in pan mode. Positive delta zooms out.
func (s *Surface) Wheel(delta, x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.tool != ToolPan {
		return
	}
	zoom := s.viewport.Zoom * math.Pow(0.999, delta)
	zoom = math.Max(minZoom, math.Min(maxZoom, zoom))
	ratio := zoom / s.viewport.Zoom
	s.viewport.OffsetX = x - (x-s.viewport.OffsetX)*ratio
	s.viewport.OffsetY = y - (y-s.viewport.OffsetY)*ratio
	s.viewport.Zoom = zoom
	_ = s.renderLocked()
}

// Viewport returns the current pan and zoom.
func (s *Surface) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// ResetViewport returns to the identity viewport.
func (s *Surface) ResetViewport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = Identity
	_ = s.renderLocked()
}

// AddStroke appends a stroke and emits ObjectAdded. An empty id is generated.
func (s *Surface) AddStroke(stroke Stroke) (string, error) {
	if _, err := stroke.RGBA(); err != nil {
		return "", fmt.Errorf("surface: add stroke: %w", err)
	}
	if stroke.Width <= 0 || len(stroke.Points) == 0 {
		return "", fmt.Errorf("surface: add stroke: empty stroke")
	}
	s.mu.Lock()
	if stroke.ID == "" {
		stroke.ID = s.newID()
	}
	stroke.Points = append([]Point(nil), stroke.Points...)
	s.strokes = append(s.strokes, stroke)
	_ = s.renderLocked()
	s.emitLocked(Mutation{Kind: ObjectAdded, StrokeID: stroke.ID})
	return stroke.ID, nil
}

// RemoveStroke deletes a stroke by id and emits ObjectRemoved.
func (s *Surface) RemoveStroke(id string) bool {
	s.mu.Lock()
	for i := range s.strokes {
		if s.strokes[i].ID == id {
			s.strokes = append(s.strokes[:i], s.strokes[i+1:]...)
			_ = s.renderLocked()
			s.emitLocked(Mutation{Kind: ObjectRemoved, StrokeID: id})
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// RecolorStroke changes a stroke's color and emits ObjectModified.
func (s *Surface) RecolorStroke(id string, c color.NRGBA) bool {
	s.mu.Lock()
	for i := range s.strokes {
		if s.strokes[i].ID == id {
			s.strokes[i].Color = FormatColor(c)
			_ = s.renderLocked()
			s.emitLocked(Mutation{Kind: ObjectModified, StrokeID: id})
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// Strokes returns a copy of the completed strokes.
func (s *Surface) Strokes() []Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stroke, len(s.strokes))
	copy(out, s.strokes)
	return out
}

// Serialize snapshots the completed strokes. The stroke in progress and the
// viewport are not part of the snapshot.
func (s *Surface) Serialize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Encode(Document{
		Width:      s.width,
		Height:     s.height,
		Background: FormatColor(s.background),
		Strokes:    s.strokes,
	})
}

// Load replaces the buffer with content. Empty content is a blank page.
// On corrupt content the buffer is left blank and the error wraps
// apperr.ErrCorruptSnapshot.
func (s *Surface) Load(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokes = nil
	s.current = nil

	if strings.TrimSpace(content) == "" {
		return s.renderLocked()
	}
	doc, err := Decode(content)
	if err != nil {
		_ = s.renderLocked()
		return err
	}
	s.strokes = doc.Strokes
	return s.renderLocked()
}

// Clear empties the buffer to a blank background.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokes = nil
	s.current = nil
	_ = s.renderLocked()
}

// Render redraws the buffer.
func (s *Surface) Render() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked()
}

// Flatten renders the whole page at identity viewport and returns the image.
func (s *Surface) Flatten() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, fmt.Errorf("surface: disposed")
	}
	if err := s.backend.Draw(s.strokes, Identity); err != nil {
		return nil, fmt.Errorf("surface: flatten: %w", err)
	}
	img := s.backend.Image()
	if err := s.renderLocked(); err != nil {
		return nil, err
	}
	return img, nil
}

// Dispose releases the backend. The surface ignores input afterwards.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	s.disposed = true
	s.onMutation = nil
	s.onSwipe = nil
	return s.backend.Dispose()
}

func (s *Surface) renderLocked() error {
	if s.disposed {
		return nil
	}
	strokes := s.strokes
	if s.current != nil && len(s.current.Points) > 1 {
		strokes = append(append([]Stroke(nil), s.strokes...), *s.current)
	}
	if err := s.backend.Draw(strokes, s.viewport); err != nil {
		return fmt.Errorf("surface: render: %w", err)
	}
	return nil
}

// emitLocked releases s.mu before calling listeners.
func (s *Surface) emitLocked(m Mutation) {
	listeners := append([]func(Mutation){}, s.onMutation...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(m)
	}
}
