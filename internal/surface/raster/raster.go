// Package raster renders surface strokes into an in-memory RGBA image.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/starford/notecanvas/internal/surface"
)

// capSegments is the polygon resolution used for round caps and joins.
const capSegments = 16

// Canvas is a surface.Backend backed by *image.RGBA.
type Canvas struct {
	mu         sync.Mutex
	img        *image.RGBA
	background color.NRGBA
	z          *vector.Rasterizer
}

var _ surface.Backend = (*Canvas)(nil)

// New returns an uninitialized canvas.
func New() *Canvas {
	return &Canvas{}
}

// Init allocates the render target.
func (c *Canvas) Init(width, height int, background color.NRGBA) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("raster: invalid size %dx%d", width, height)
	}
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	c.background = background
	c.z = vector.NewRasterizer(width, height)
	c.fillLocked()
	return nil
}

// Draw repaints the background and every stroke through vp.
func (c *Canvas) Draw(strokes []surface.Stroke, vp surface.Viewport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil {
		return fmt.Errorf("raster: not initialized")
	}
	c.fillLocked()
	for i, s := range strokes {
		col, err := s.RGBA()
		if err != nil {
			return fmt.Errorf("raster: stroke %d: %w", i, err)
		}
		c.strokeLocked(s, col, vp)
	}
	return nil
}

// Image returns a copy of the current frame.
func (c *Canvas) Image() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil {
		return image.NewRGBA(image.Rectangle{})
	}
	out := image.NewRGBA(c.img.Bounds())
	xdraw.Copy(out, image.Point{}, c.img, c.img.Bounds(), xdraw.Src, nil)
	return out
}

// Dispose drops the render target.
func (c *Canvas) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.img = nil
	c.z = nil
	return nil
}

func (c *Canvas) fillLocked() {
	xdraw.Draw(c.img, c.img.Bounds(), image.NewUniform(c.background), image.Point{}, xdraw.Src)
}

// strokeLocked rasterizes one stroke as segment quads plus round joins into a
// single coverage mask, so translucent strokes do not darken where they overlap
// themselves.
func (c *Canvas) strokeLocked(s surface.Stroke, col color.NRGBA, vp surface.Viewport) {
	b := c.img.Bounds()
	c.z.Reset(b.Dx(), b.Dy())

	half := s.Width * vp.Zoom / 2
	pts := make([][2]float64, len(s.Points))
	for i, p := range s.Points {
		pts[i] = [2]float64{p.X*vp.Zoom + vp.OffsetX, p.Y*vp.Zoom + vp.OffsetY}
	}

	for i := 0; i+1 < len(pts); i++ {
		a, e := pts[i], pts[i+1]
		dx, dy := e[0]-a[0], e[1]-a[1]
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		polygon(c.z, [][2]float64{
			{a[0] + nx, a[1] + ny},
			{e[0] + nx, e[1] + ny},
			{e[0] - nx, e[1] - ny},
			{a[0] - nx, a[1] - ny},
		})
	}

	round := s.Cap == surface.CapRound || s.Cap == ""
	for i, p := range pts {
		end := i == 0 || i == len(pts)-1
		if round || !end || len(pts) == 1 {
			disc(c.z, p, half)
		}
	}

	c.z.DrawOp = xdraw.Over
	c.z.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

func disc(z *vector.Rasterizer, center [2]float64, r float64) {
	pts := make([][2]float64, capSegments)
	for i := range pts {
		theta := 2 * math.Pi * float64(i) / capSegments
		pts[i] = [2]float64{center[0] + r*math.Cos(theta), center[1] + r*math.Sin(theta)}
	}
	polygon(z, pts)
}

// polygon adds a closed path with a consistent winding so that overlapping
// pieces of one stroke add up instead of cancelling.
func polygon(z *vector.Rasterizer, pts [][2]float64) {
	var area float64
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	if area < 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	z.MoveTo(float32(pts[0][0]), float32(pts[0][1]))
	for _, p := range pts[1:] {
		z.LineTo(float32(p[0]), float32(p[1]))
	}
	z.ClosePath()
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("raster: encode png: %w", err)
	}
	return nil
}
