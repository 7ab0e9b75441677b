package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/starford/notecanvas/internal/surface"
)

func newCanvas(t *testing.T) *Canvas {
	t.Helper()
	c := New()
	if err := c.Init(100, 100, surface.DefaultBackground); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func hline(tool surface.Tool, y float64) surface.Stroke {
	b, _ := surface.BrushFor(tool, surface.DefaultBackground)
	return surface.Stroke{
		Tool:   tool,
		Width:  b.Width,
		Color:  surface.FormatColor(b.Color),
		Cap:    b.Cap,
		Points: []surface.Point{{X: 10, Y: y}, {X: 90, Y: y}},
	}
}

func TestDraw_PenStrokeIsOpaque(t *testing.T) {
	c := newCanvas(t)
	if err := c.Draw([]surface.Stroke{hline(surface.ToolPen, 50)}, surface.Identity); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	img := c.Image()
	if got := rgbaAt(img, 50, 50); got.R > 0x40 {
		t.Errorf("pixel on stroke = %v, want dark", got)
	}
	if got := rgbaAt(img, 50, 10); got != (color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("pixel off stroke = %v, want white", got)
	}
}

func TestDraw_MarkerIsTranslucent(t *testing.T) {
	c := newCanvas(t)
	_ = c.Draw([]surface.Stroke{hline(surface.ToolMarker, 50)}, surface.Identity)
	got := rgbaAt(c.Image(), 50, 50)
	if got.R != 0xff || got.G != 0xff {
		t.Errorf("marker over white should keep red and green, got %v", got)
	}
	if got.B == 0xff || got.B == 0 {
		t.Errorf("marker blue channel = %d, want partially covered", got.B)
	}
}

func TestDraw_EraserPaintsBackground(t *testing.T) {
	c := newCanvas(t)
	strokes := []surface.Stroke{hline(surface.ToolPen, 50), hline(surface.ToolEraser, 50)}
	_ = c.Draw(strokes, surface.Identity)
	if got := rgbaAt(c.Image(), 50, 50); got != (color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("erased pixel = %v, want white", got)
	}
}

func TestDraw_ViewportOffset(t *testing.T) {
	c := newCanvas(t)
	_ = c.Draw([]surface.Stroke{hline(surface.ToolPen, 20)}, surface.Viewport{OffsetY: 30, Zoom: 1})
	img := c.Image()
	if got := rgbaAt(img, 50, 50); got.R > 0x40 {
		t.Errorf("shifted stroke missing at y=50: %v", got)
	}
	if got := rgbaAt(img, 50, 20); got.R != 0xff {
		t.Errorf("unshifted position should be blank: %v", got)
	}
}

func TestImage_IsACopy(t *testing.T) {
	c := newCanvas(t)
	before := c.Image()
	_ = c.Draw([]surface.Stroke{hline(surface.ToolPen, 50)}, surface.Identity)
	if got := rgbaAt(before, 50, 50); got.R != 0xff {
		t.Error("earlier frame should not change after a new draw")
	}
}

func TestDraw_BeforeInitFails(t *testing.T) {
	if err := New().Draw(nil, surface.Identity); err == nil {
		t.Error("expected error drawing before Init")
	}
}

func TestWritePNG(t *testing.T) {
	c := newCanvas(t)
	var buf bytes.Buffer
	if err := WritePNG(&buf, c.Image()); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 100 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}
}
